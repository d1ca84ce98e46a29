package compose

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

const (
	// baselineRatio places the baseline at 80% of the run height from its top.
	baselineRatio = 0.8
	// kappa is the Bezier control distance of a quarter ellipse.
	kappa = 0.5522847498
)

// canvas accumulates the content of one element at a time.
type canvas struct {
	overlay *pdf.PageOverlay
	page    *pdf.Page
	scale   float64
	buf     bytes.Buffer
}

func (cv *canvas) reset() { cv.buf.Reset() }

func (cv *canvas) op(args ...interface{}) {
	for i, a := range args {
		if i > 0 {
			cv.buf.WriteByte(' ')
		}
		switch v := a.(type) {
		case float64:
			cv.buf.WriteString(num(v))
		case int:
			cv.buf.WriteString(strconv.Itoa(v))
		default:
			fmt.Fprint(&cv.buf, v)
		}
	}
	cv.buf.WriteByte('\n')
}

func num(v float64) string {
	v = math.Round(v*10000) / 10000
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (cv *canvas) fillColor(c pdf.Color) {
	r, g, b := c.Components()
	cv.op(r, g, b, "rg")
}

func (cv *canvas) strokeColor(c pdf.Color) {
	r, g, b := c.Components()
	cv.op(r, g, b, "RG")
}

func (cv *canvas) concat(m coords.Matrix) {
	cv.op(m.A, m.B, m.C, m.D, m.E, m.F, "cm")
}

func (cv *canvas) alpha(opacity float64) {
	if opacity > 0 && opacity < 1 {
		cv.op("/"+cv.overlay.Alpha(opacity), "gs")
	}
}

// rotateAbout returns a clockwise rotation by deg around (x, y) in PDF space.
func rotateAbout(x, y, deg float64) coords.Matrix {
	return coords.Translate(-x, -y).Multiply(coords.Rotate(-deg)).Multiply(coords.Translate(x, y))
}

// cover paints an opaque rectangle over the extracted run orig. The box is
// padded for descenders and antialiasing.
func (cv *canvas) cover(orig pdf.TextRun, bg pdf.Color) {
	r := cv.pdfRect(orig.X, orig.Y, orig.Width, orig.Height)
	baseX, baseY := r.X, r.Y
	below := 0.25 * r.Height
	r.X -= 0.5
	r.Width += 1
	r.Y -= below
	r.Height += below + 0.5

	cv.op("q")
	if orig.Rotation != 0 {
		cv.concat(rotateAbout(baseX, baseY, orig.Rotation))
	}
	cv.fillColor(bg)
	cv.op(r.X, r.Y, r.Width, r.Height, "re")
	cv.op("f")
	cv.op("Q")
}

// text draws run with the closest standard font.
func (cv *canvas) text(run pdf.TextRun, log observability.Logger) error {
	size := coords.LengthToPdf(run.FontSize, cv.scale)
	if size <= 0 || math.IsNaN(size) {
		return fmt.Errorf("invalid font size %v", run.FontSize)
	}
	base := StandardFont(run.FontName, run.FontWeight, run.FontStyle)
	encoded, missing := encodeWinAnsi(run.Text)
	if missing > 0 {
		log.Debug("characters outside WinAnsi replaced",
			observability.String("id", run.ID), observability.Int("count", missing))
	}

	bx, by := cv.pdfPoint(run.X, run.Y+run.Height*baselineRatio)
	// x is the left edge, the center or the right edge of the text
	width := textWidth(run.Text, base, size)
	dx := 0.0
	switch run.TextAlign {
	case pdf.AlignCenter:
		dx = -width / 2
	case pdf.AlignRight:
		dx = -width
	}

	m := coords.Translate(bx, by)
	if run.Rotation != 0 {
		m = coords.Rotate(-run.Rotation).Multiply(m)
	}

	cv.op("q")
	cv.alpha(run.Opacity)
	cv.concat(m)
	cv.fillColor(run.Color)
	cv.op("BT")
	cv.op("/"+cv.overlay.StandardFont(base), size, "Tf")
	cv.op(dx, 0.0, "Td")
	cv.op(encoded, "Tj")
	cv.op("ET")
	if run.Underline {
		cv.op(dx, -0.12*size, width, math.Max(0.05*size, 0.5), "re")
		cv.op("f")
	}
	cv.op("Q")
	return nil
}

func (cv *canvas) shape(s pdf.ShapeElement) error {
	stroke, fill := s.Stroke, s.Fill
	if s.Kind == pdf.ShapeLine {
		fill = nil
	}
	if stroke == nil && fill == nil {
		stroke = &pdf.Black
	}
	lineWidth := coords.LengthToPdf(s.StrokeWidth, cv.scale)
	if s.StrokeWidth <= 0 {
		lineWidth = 1
	}

	cv.op("q")
	cv.alpha(s.Opacity)
	r := cv.pdfRect(s.X, s.Y, s.Width, s.Height)
	if s.Rotation != 0 {
		cv.concat(rotateAbout(r.X+r.Width/2, r.Y+r.Height/2, s.Rotation))
	}
	if fill != nil {
		cv.fillColor(*fill)
	}
	if stroke != nil {
		cv.strokeColor(*stroke)
		cv.op(lineWidth, "w")
	}

	switch s.Kind {
	case pdf.ShapeRectangle, "":
		cv.op(r.X, r.Y, r.Width, r.Height, "re")
	case pdf.ShapeEllipse:
		cv.ellipse(r)
	case pdf.ShapeLine:
		x1, y1 := cv.pdfPoint(s.X, s.Y)
		x2, y2 := cv.pdfPoint(s.X+s.Width, s.Y+s.Height)
		cv.op(x1, y1, "m")
		cv.op(x2, y2, "l")
	default:
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}

	switch {
	case fill != nil && stroke != nil:
		cv.op("B")
	case fill != nil:
		cv.op("f")
	default:
		cv.op("S")
	}
	cv.op("Q")
	return nil
}

func (cv *canvas) ellipse(r coords.Rect) {
	rx, ry := r.Width/2, r.Height/2
	cx, cy := r.X+rx, r.Y+ry
	ox, oy := rx*kappa, ry*kappa
	cv.op(cx+rx, cy, "m")
	cv.op(cx+rx, cy+oy, cx+ox, cy+ry, cx, cy+ry, "c")
	cv.op(cx-ox, cy+ry, cx-rx, cy+oy, cx-rx, cy, "c")
	cv.op(cx-rx, cy-oy, cx-ox, cy-ry, cx, cy-ry, "c")
	cv.op(cx+ox, cy-ry, cx+rx, cy-oy, cx+rx, cy, "c")
	cv.op("h")
}

func (cv *canvas) image(img pdf.ImageElement) error {
	if img.Width <= 0 || img.Height <= 0 {
		return fmt.Errorf("invalid image size %vx%v", img.Width, img.Height)
	}
	decoded, err := decodeSource(img.Src)
	if err != nil {
		return err
	}
	name, err := cv.overlay.Image(imageData(decoded))
	if err != nil {
		return err
	}
	r := cv.pdfRect(img.X, img.Y, img.Width, img.Height)
	cv.op("q")
	cv.alpha(img.Opacity)
	cv.concat(coords.Matrix{A: r.Width, D: r.Height, E: r.X, F: r.Y})
	cv.op("/"+name, "Do")
	cv.op("Q")
	return nil
}

func (cv *canvas) qrcode(q pdf.QRPlaceholder) error {
	if q.Size <= 0 {
		return errors.New("QR code size must be positive")
	}
	modules, err := qrModules(q.Content)
	if err != nil {
		return err
	}
	r := cv.pdfRect(q.X, q.Y, q.Size, q.Size)
	unit := r.Width / float64(len(modules))
	top := r.Y + r.Height

	cv.op("q")
	if q.Background != nil {
		cv.fillColor(*q.Background)
		cv.op(r.X, r.Y, r.Width, r.Height, "re")
		cv.op("f")
	}
	cv.fillColor(q.Foreground)
	for i, row := range modules {
		y := top - float64(i+1)*unit
		for j := 0; j < len(row); {
			if !row[j] {
				j++
				continue
			}
			start := j
			for j < len(row) && row[j] {
				j++
			}
			cv.op(r.X+float64(start)*unit, y, float64(j-start)*unit, unit, "re")
		}
	}
	cv.op("f")
	cv.op("Q")
	return nil
}
