// Package content walks PDF content streams and records what a page paints:
// positioned text items and filled rectangles, in paint order.
package content

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// maxFormDepth bounds form XObject recursion.
const maxFormDepth = 8

// unknownGlyphWidth is the advance, in em, assumed for fonts without metrics.
const unknownGlyphWidth = 0.6

// Interpreter executes content stream operators against a graphics state
// stack.
type Interpreter struct {
	ctx   context.Context
	stack *StateStack
	items []pdf.TextItem
	fills []pdf.FillRect
	seq   int
	depth int
	ops   int

	subpaths [][]coords.Point
	curves   bool
}

// Interpret runs the content of page and returns what it paints. Coordinates
// are relative to the lower-left corner of the page box.
func Interpret(ctx context.Context, page *pdf.Page) (tc *pdf.TextContent, err error) {
	data, err := page.Content()
	if err != nil {
		return nil, err
	}
	origin := coords.Translate(-page.Box.X, -page.Box.Y)
	in := newInterpreter(ctx, origin, page.Resources())
	if err := in.run(data); err != nil {
		return nil, fmt.Errorf("page %d: %w", page.Number, err)
	}
	return &pdf.TextContent{
		PageNumber: page.Number,
		Width:      page.Width(),
		Height:     page.Height(),
		Rotation:   page.Rotation,
		Items:      in.items,
		Fills:      in.fills,
	}, nil
}

// InterpretContent runs a bare content stream. res may be nil, in which case
// strings are decoded as WinAnsi and widths are unknown.
func InterpretContent(ctx context.Context, data []byte, res *pdf.Resources) ([]pdf.TextItem, []pdf.FillRect, error) {
	in := newInterpreter(ctx, coords.Identity(), res)
	if err := in.run(data); err != nil {
		return nil, nil, err
	}
	return in.items, in.fills, nil
}

func newInterpreter(ctx context.Context, ctm coords.Matrix, res *pdf.Resources) *Interpreter {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Interpreter{
		ctx:   ctx,
		stack: NewStateStack(NewGraphicsState(ctm, res)),
	}
}

func (in *Interpreter) run(data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("content stream panic: %v", r)
		}
	}()

	lexer := NewLexer(data)
	var operands []interface{}
	for {
		tok, lexErr := lexer.Next()
		if lexErr != nil {
			if lexErr == errEOF {
				return nil
			}
			return lexErr
		}
		if tok.Type != TokenOperator {
			operands = append(operands, tok.Value)
			continue
		}
		in.ops++
		if in.ops%256 == 0 {
			if err := in.ctx.Err(); err != nil {
				return err
			}
		}
		if err := in.do(tok.Value.(string), operands); err != nil {
			return err
		}
		operands = operands[:0]
	}
}

func (in *Interpreter) next() int {
	in.seq++
	return in.seq - 1
}

// do processes a PDF operator with its operands
func (in *Interpreter) do(op string, operands []interface{}) error {
	st := in.stack.Current()

	switch op {
	case "q":
		in.stack.Save()
	case "Q":
		in.stack.Restore()
	case "cm":
		if m, ok := matrixOperand(operands); ok {
			st.CTM = m.Multiply(st.CTM)
		}

	// Path construction
	case "m":
		if x, y, ok := pointOperand(operands); ok {
			px, py := st.CTM.Transform(x, y)
			in.subpaths = append(in.subpaths, []coords.Point{{X: px, Y: py}})
		}
	case "l":
		if x, y, ok := pointOperand(operands); ok && len(in.subpaths) > 0 {
			px, py := st.CTM.Transform(x, y)
			last := len(in.subpaths) - 1
			in.subpaths[last] = append(in.subpaths[last], coords.Point{X: px, Y: py})
		}
	case "c", "v", "y":
		in.curves = true
	case "re":
		if len(operands) == 4 {
			x, y := toFloat(operands[0]), toFloat(operands[1])
			w, h := toFloat(operands[2]), toFloat(operands[3])
			var sp []coords.Point
			for _, c := range [][2]float64{{x, y}, {x + w, y}, {x + w, y + h}, {x, y + h}} {
				px, py := st.CTM.Transform(c[0], c[1])
				sp = append(sp, coords.Point{X: px, Y: py})
			}
			in.subpaths = append(in.subpaths, sp)
		}
	case "h":
		// subpaths are treated as closed when filled

	// Path painting
	case "f", "F", "f*", "B", "B*", "b", "b*":
		in.fillPath(st)
		in.resetPath()
	case "S", "s", "n":
		in.resetPath()

	// Text objects
	case "BT":
		st.TextMatrix = coords.Identity()
		st.TextLineMatrix = coords.Identity()
	case "ET":
	case "Tf":
		if len(operands) == 2 {
			name := toName(operands[0])
			st.FontName = name
			st.Font = st.Resources.Font(name)
			st.FontSize = toFloat(operands[1])
		}
	case "Td":
		if x, y, ok := pointOperand(operands); ok {
			in.moveLine(st, x, y)
		}
	case "TD":
		if x, y, ok := pointOperand(operands); ok {
			st.Leading = -y
			in.moveLine(st, x, y)
		}
	case "Tm":
		if m, ok := matrixOperand(operands); ok {
			st.TextMatrix = m
			st.TextLineMatrix = m
		}
	case "T*":
		in.moveLine(st, 0, -st.Leading)
	case "Tc":
		if len(operands) == 1 {
			st.CharSpace = toFloat(operands[0])
		}
	case "Tw":
		if len(operands) == 1 {
			st.WordSpace = toFloat(operands[0])
		}
	case "Tz":
		if len(operands) == 1 {
			st.HScale = toFloat(operands[0])
		}
	case "TL":
		if len(operands) == 1 {
			st.Leading = toFloat(operands[0])
		}
	case "Ts":
		if len(operands) == 1 {
			st.TextRise = toFloat(operands[0])
		}
	case "Tr":
		if len(operands) == 1 {
			st.RenderMode = int(toFloat(operands[0]))
		}
	case "Tj":
		if len(operands) == 1 {
			in.show(st, []interface{}{operands[0]})
		}
	case "TJ":
		if len(operands) == 1 {
			if arr, ok := operands[0].([]interface{}); ok {
				in.show(st, arr)
			}
		}
	case "'":
		if len(operands) == 1 {
			in.moveLine(st, 0, -st.Leading)
			in.show(st, []interface{}{operands[0]})
		}
	case "\"":
		if len(operands) == 3 {
			st.WordSpace = toFloat(operands[0])
			st.CharSpace = toFloat(operands[1])
			in.moveLine(st, 0, -st.Leading)
			in.show(st, []interface{}{operands[2]})
		}

	// Color
	case "g", "rg", "k":
		st.FillColor = numbers(operands)
	case "G", "RG", "K":
		st.StrokeColor = numbers(operands)
	case "sc", "scn":
		if n := numbers(operands); len(n) > 0 {
			st.FillColor = n
		}
	case "SC", "SCN":
		if n := numbers(operands); len(n) > 0 {
			st.StrokeColor = n
		}
	case "cs":
		st.FillColor = []float64{0}
	case "CS":
		st.StrokeColor = []float64{0}

	// XObjects
	case "Do":
		if len(operands) == 1 {
			return in.doXObject(st, toName(operands[0]))
		}
	}
	return nil
}

func (in *Interpreter) moveLine(st *GraphicsState, tx, ty float64) {
	st.TextLineMatrix = coords.Translate(tx, ty).Multiply(st.TextLineMatrix)
	st.TextMatrix = st.TextLineMatrix
}

func (in *Interpreter) resetPath() {
	in.subpaths = in.subpaths[:0]
	in.curves = false
}

// fillPath records every subpath of the current path that is an axis-aligned
// rectangle.
func (in *Interpreter) fillPath(st *GraphicsState) {
	if in.curves {
		return
	}
	color := pdf.ColorFromComponents(st.FillColor)
	for _, sp := range in.subpaths {
		x0, y0, x1, y1, ok := rectangleBounds(sp)
		if !ok {
			continue
		}
		in.fills = append(in.fills, pdf.FillRect{X0: x0, Y0: y0, X1: x1, Y1: y1, Color: color, Seq: in.next()})
	}
}

// rectangleBounds reports whether the points form an axis-aligned rectangle
// and returns its bounds.
func rectangleBounds(points []coords.Point) (x0, y0, x1, y1 float64, ok bool) {
	if len(points) == 5 && nearPoint(points[0], points[4]) {
		points = points[:4]
	}
	if len(points) != 4 {
		return 0, 0, 0, 0, false
	}
	x0, x1 = points[0].X, points[0].X
	y0, y1 = points[0].Y, points[0].Y
	for _, p := range points[1:] {
		x0, x1 = math.Min(x0, p.X), math.Max(x1, p.X)
		y0, y1 = math.Min(y0, p.Y), math.Max(y1, p.Y)
	}
	const tolerance = 0.1
	for _, p := range points {
		atCorner := (math.Abs(p.X-x0) < tolerance || math.Abs(p.X-x1) < tolerance) &&
			(math.Abs(p.Y-y0) < tolerance || math.Abs(p.Y-y1) < tolerance)
		if !atCorner {
			return 0, 0, 0, 0, false
		}
	}
	return x0, y0, x1, y1, x1-x0 > tolerance && y1-y0 > tolerance
}

func nearPoint(a, b coords.Point) bool {
	return math.Abs(a.X-b.X) < 0.1 && math.Abs(a.Y-b.Y) < 0.1
}

// show emits one text item for a Tj string or a whole TJ array.
func (in *Interpreter) show(st *GraphicsState, parts []interface{}) {
	if st.FontSize == 0 {
		return
	}
	th := st.HScale / 100
	start := st.TextMatrix

	var text strings.Builder
	advance := 0.0
	known := true
	for _, part := range parts {
		switch v := part.(type) {
		case []byte:
			s, adv, ok := in.glyphRun(st, v, th)
			text.WriteString(s)
			advance += adv
			known = known && ok
			st.TextMatrix = coords.Translate(adv, 0).Multiply(st.TextMatrix)
		case float64:
			tx := -v / 1000 * st.FontSize * th
			if tx > 0.25*st.FontSize*th && text.Len() > 0 && !strings.HasSuffix(text.String(), " ") {
				text.WriteByte(' ')
			}
			advance += tx
			st.TextMatrix = coords.Translate(tx, 0).Multiply(st.TextMatrix)
		}
	}

	s := text.String()
	if s == "" {
		return
	}
	trm := coords.Matrix{A: st.FontSize * th, D: st.FontSize, F: st.TextRise}.
		Multiply(start).Multiply(st.CTM)
	width := 0.0
	if known {
		m := start.Multiply(st.CTM)
		width = advance * math.Hypot(m.A, m.B)
	}
	fontName := st.FontName
	if st.Font != nil && st.Font.BaseFont != "" {
		fontName = st.Font.PostScriptName()
	}
	in.items = append(in.items, pdf.TextItem{
		Str:       s,
		Transform: trm.Array(),
		Width:     width,
		FontName:  fontName,
		Color:     pdf.ColorFromComponents(st.FillColor),
		Invisible: st.RenderMode == 3 || st.RenderMode == 7,
		Seq:       in.next(),
	})
}

// glyphRun decodes raw and returns its text-space advance. ok is false when
// the advance is estimated.
func (in *Interpreter) glyphRun(st *GraphicsState, raw []byte, th float64) (string, float64, bool) {
	var (
		text   string
		widths []float64
		known  bool
		codes  []uint32
		single = true
	)
	if st.Font != nil {
		text = st.Font.Decode(raw)
		widths, known = st.Font.GlyphWidths(raw)
		codes = st.Font.Codes(raw)
		single = !st.Font.TwoByte()
	} else {
		text = pdf.DecodeWinAnsi(raw)
		for _, b := range raw {
			codes = append(codes, uint32(b))
		}
	}

	adv := 0.0
	for i, code := range codes {
		w0 := unknownGlyphWidth
		if known {
			w0 = widths[i] / 1000
		}
		tx := w0*st.FontSize + st.CharSpace
		if single && code == 32 {
			tx += st.WordSpace
		}
		adv += tx * th
	}
	return text, adv, known
}

func (in *Interpreter) doXObject(st *GraphicsState, name string) error {
	if in.depth >= maxFormDepth {
		return nil
	}
	form, err := st.Resources.Form(name)
	if err != nil || form == nil {
		return nil
	}

	depth := in.stack.Depth()
	in.stack.Save()
	fs := in.stack.Current()
	fs.CTM = form.Matrix.Multiply(fs.CTM)
	if form.Resources != nil {
		fs.Resources = form.Resources
	}

	in.depth++
	saved := in.subpaths
	in.subpaths = nil
	err = in.run(form.Content)
	in.subpaths = saved
	in.depth--

	for in.stack.Depth() > depth {
		in.stack.Restore()
	}
	return err
}

// Helper functions

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	default:
		return 0
	}
}

func toName(v interface{}) string {
	switch val := v.(type) {
	case Name:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

func numbers(operands []interface{}) []float64 {
	var out []float64
	for _, o := range operands {
		if f, ok := o.(float64); ok {
			out = append(out, f)
		}
	}
	return out
}

func pointOperand(operands []interface{}) (float64, float64, bool) {
	if len(operands) != 2 {
		return 0, 0, false
	}
	return toFloat(operands[0]), toFloat(operands[1]), true
}

func matrixOperand(operands []interface{}) (coords.Matrix, bool) {
	if len(operands) != 6 {
		return coords.Matrix{}, false
	}
	return coords.Matrix{
		A: toFloat(operands[0]), B: toFloat(operands[1]),
		C: toFloat(operands[2]), D: toFloat(operands[3]),
		E: toFloat(operands[4]), F: toFloat(operands[5]),
	}, true
}

// Source serves page content from a pdfcpu-backed document.
type Source struct {
	doc *pdf.Document
}

// NewSource wraps doc.
func NewSource(doc *pdf.Document) *Source {
	return &Source{doc: doc}
}

// NumPages returns the page count.
func (s *Source) NumPages() int { return s.doc.NumPages() }

// TextContent interprets page n.
func (s *Source) TextContent(ctx context.Context, n int) (*pdf.TextContent, error) {
	page, err := s.doc.Page(n)
	if err != nil {
		return nil, err
	}
	return Interpret(ctx, page)
}
