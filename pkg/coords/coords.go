// Package coords maps geometry between PDF user space (origin bottom-left,
// y-up) and editor space (origin top-left, y-down, multiplied by the page's
// render scale). It is the only place the y-flip and scale multiplication
// happen; everything else works in editor space.
package coords

import (
	"errors"
	"math"
)

// normalizeScale treats non-positive scales as 1.
func normalizeScale(scale float64) float64 {
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 1
	}
	return scale
}

// ToEditorSpace converts a point in PDF user space to editor space.
func ToEditorSpace(pdfX, pdfY, pageHeight, scale float64) (float64, float64) {
	scale = normalizeScale(scale)
	return pdfX * scale, (pageHeight - pdfY) * scale
}

// ToPdfSpace converts a point in editor space to PDF user space.
func ToPdfSpace(editorX, editorY, pageHeight, scale float64) (float64, float64) {
	scale = normalizeScale(scale)
	return editorX / scale, pageHeight - editorY/scale
}

// LengthToEditor scales a PDF length into editor space.
func LengthToEditor(l, scale float64) float64 {
	return l * normalizeScale(scale)
}

// LengthToPdf scales an editor length into PDF user space.
func LengthToPdf(l, scale float64) float64 {
	return l / normalizeScale(scale)
}

// Point is a 2D point.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle given by its origin and size.
// In editor space the origin is the top-left corner; in PDF space it is the
// bottom-left corner.
type Rect struct {
	X, Y, Width, Height float64
}

// RectToPdf converts an editor-space rectangle into a PDF-space rectangle
// whose origin is its lower-left corner.
func RectToPdf(r Rect, pageHeight, scale float64) Rect {
	x, top := ToPdfSpace(r.X, r.Y, pageHeight, scale)
	w := LengthToPdf(r.Width, scale)
	h := LengthToPdf(r.Height, scale)
	return Rect{X: x, Y: top - h, Width: w, Height: h}
}

// RectToEditor converts a PDF-space rectangle (lower-left origin) into an
// editor-space rectangle (top-left origin).
func RectToEditor(r Rect, pageHeight, scale float64) Rect {
	x, y := ToEditorSpace(r.X, r.Y+r.Height, pageHeight, scale)
	return Rect{X: x, Y: y, Width: LengthToEditor(r.Width, scale), Height: LengthToEditor(r.Height, scale)}
}

// Contains reports whether o lies within r, allowing tol of slack on every side.
func (r Rect) Contains(o Rect, tol float64) bool {
	return o.X >= r.X-tol && o.Y >= r.Y-tol &&
		o.X+o.Width <= r.X+r.Width+tol && o.Y+o.Height <= r.Y+r.Height+tol
}

// Matrix is a PDF transformation matrix [a b c d e f].
type Matrix struct {
	A, B, C, D, E, F float64
}

// Identity returns the identity matrix.
func Identity() Matrix {
	return Matrix{A: 1, D: 1}
}

// Multiply returns m × o (m applied first, then o).
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		A: m.A*o.A + m.B*o.C,
		B: m.A*o.B + m.B*o.D,
		C: m.C*o.A + m.D*o.C,
		D: m.C*o.B + m.D*o.D,
		E: m.E*o.A + m.F*o.C + o.E,
		F: m.E*o.B + m.F*o.D + o.F,
	}
}

// Transform applies the matrix to a point.
func (m Matrix) Transform(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// Inverse returns the inverse matrix.
func (m Matrix) Inverse() (Matrix, error) {
	det := m.A*m.D - m.B*m.C
	if math.Abs(det) < 1e-12 {
		return Matrix{}, errors.New("coords: singular matrix")
	}
	return Matrix{
		A: m.D / det,
		B: -m.B / det,
		C: -m.C / det,
		D: m.A / det,
		E: (m.C*m.F - m.D*m.E) / det,
		F: (m.B*m.E - m.A*m.F) / det,
	}, nil
}

// Translate returns a translation matrix.
func Translate(tx, ty float64) Matrix {
	return Matrix{A: 1, D: 1, E: tx, F: ty}
}

// Scale returns a scaling matrix.
func Scale(sx, sy float64) Matrix {
	return Matrix{A: sx, D: sy}
}

// Rotate returns a counter-clockwise rotation by deg degrees.
func Rotate(deg float64) Matrix {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return Matrix{A: c, B: s, C: -s, D: c}
}

// Array returns the matrix as [a b c d e f].
func (m Matrix) Array() [6]float64 {
	return [6]float64{m.A, m.B, m.C, m.D, m.E, m.F}
}

// ScalePolicy chooses the render scale of a page.
type ScalePolicy struct {
	// Fixed, when positive, is used for every page.
	Fixed float64
	// ViewportWidth is the editor width pages are fitted to when Fixed is unset.
	ViewportWidth float64
	// MaxScale caps the fitted scale.
	MaxScale float64
}

// DefaultScalePolicy fits pages to an 800 unit wide viewport, at most 1.5x.
var DefaultScalePolicy = ScalePolicy{ViewportWidth: 800, MaxScale: 1.5}

// ScaleFor returns the scale for a page of the given PDF width.
func (p ScalePolicy) ScaleFor(pageWidth float64) float64 {
	if p.Fixed > 0 {
		return p.Fixed
	}
	if p.ViewportWidth <= 0 || pageWidth <= 0 {
		return 1
	}
	s := p.ViewportWidth / pageWidth
	if p.MaxScale > 0 && s > p.MaxScale {
		s = p.MaxScale
	}
	return s
}
