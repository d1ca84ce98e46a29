// Package compose writes an edited document: it covers changed original text
// with opaque rectangles, then draws replacement text, shapes, images and QR
// codes on top of each page.
package compose

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/overlay"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

type config struct {
	background pdf.Color
	logger     observability.Logger
}

// Option configures a Composer.
type Option func(*config)

// WithBackground sets the cover rectangle color.
func WithBackground(c pdf.Color) Option {
	return func(cfg *config) {
		cfg.background = c
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(cfg *config) {
		cfg.logger = observability.OrNop(l)
	}
}

// Composer exports edited documents.
type Composer struct {
	cfg config
}

// New returns a Composer. Covers are white unless WithBackground is given.
func New(opts ...Option) *Composer {
	cfg := config{background: pdf.White, logger: observability.NopLogger{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Composer{cfg: cfg}
}

// Request is everything an export needs.
type Request struct {
	// Original is the loaded document. It is never modified.
	Original []byte
	// Scales maps page numbers to the editor scale of that page. Missing
	// pages use scale 1.
	Scales map[int]float64
	// State is the overlay to draw.
	State overlay.State
	// Originals holds the extracted geometry of every extracted run, keyed
	// by id. Covers are drawn at these positions.
	Originals map[string]pdf.TextRun
}

// Result is the exported document and a count of drawn and skipped elements.
type Result struct {
	Bytes   []byte
	Drawn   int
	Skipped int
}

// Export draws req.State over a fresh copy of req.Original. An element that
// fails to draw is skipped and counted; any failure to produce the document
// itself is a *pdf.ExportError.
func (c *Composer) Export(ctx context.Context, req Request) (*Result, error) {
	log := c.cfg.logger.With(observability.Stage(observability.StageExport))

	doc, err := pdf.Open(req.Original)
	if err != nil {
		return nil, &pdf.ExportError{Err: err}
	}

	res := &Result{}
	pages := pagesOf(req.State)
	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	for _, n := range numbers {
		if err := ctx.Err(); err != nil {
			return nil, &pdf.ExportError{Err: err}
		}
		elements := req.State.ElementsOnPage(n)
		page, err := doc.Page(n)
		if err != nil {
			count := len(elements.TextRuns) + len(elements.Shapes) + len(elements.Images) + len(elements.QRCodes)
			log.Warn("elements on missing page skipped", observability.Int("page", n),
				observability.Int("count", count), observability.Err(err))
			res.Skipped += count
			continue
		}
		drawn, skipped, err := c.composePage(page, elements, req, log)
		res.Drawn += drawn
		res.Skipped += skipped
		if err != nil {
			return nil, &pdf.ExportError{Err: fmt.Errorf("page %d: %w", n, err)}
		}
	}

	var buf bytes.Buffer
	if err := doc.Write(&buf); err != nil {
		return nil, &pdf.ExportError{Err: err}
	}
	res.Bytes = buf.Bytes()
	log.Info("export finished", observability.Int("drawn", res.Drawn),
		observability.Int("skipped", res.Skipped), observability.Int("bytes", len(res.Bytes)))
	return res, nil
}

func pagesOf(st overlay.State) map[int]struct{} {
	pages := make(map[int]struct{})
	for _, r := range st.TextRuns {
		pages[r.PageNumber] = struct{}{}
	}
	for _, s := range st.Shapes {
		pages[s.PageNumber] = struct{}{}
	}
	for _, img := range st.Images {
		pages[img.PageNumber] = struct{}{}
	}
	for _, q := range st.QRCodes {
		pages[q.PageNumber] = struct{}{}
	}
	return pages
}

// element is one drawable overlay element.
type element struct {
	id    string
	z     int
	paint func(*canvas) error
}

func (c *Composer) composePage(page *pdf.Page, st overlay.State, req Request, log observability.Logger) (drawn, skipped int, err error) {
	scale := req.Scales[page.Number]
	if scale <= 0 {
		scale = 1
	}
	ov := page.NewOverlay()
	cv := &canvas{
		overlay: ov,
		page:    page,
		scale:   scale,
	}

	var out bytes.Buffer
	out.WriteString("q\n")

	// Covers go first so that no replacement text is painted over by
	// another edit's cover.
	for _, r := range st.TextRuns {
		orig, extracted := req.Originals[r.ID]
		if !extracted || (!r.IsDeleted() && r.SameAppearance(orig)) {
			continue
		}
		cv.reset()
		cv.cover(orig, c.cfg.background)
		out.Write(cv.buf.Bytes())
	}

	var elements []element
	for _, r := range st.TextRuns {
		if r.IsDeleted() || r.Text == "" {
			continue
		}
		if orig, extracted := req.Originals[r.ID]; extracted && r.SameAppearance(orig) {
			continue
		}
		run := r
		elements = append(elements, element{id: r.ID, z: r.ZIndex, paint: func(cv *canvas) error {
			return cv.text(run, log)
		}})
	}
	for _, s := range st.Shapes {
		shape := s
		elements = append(elements, element{id: s.ID, z: s.ZIndex, paint: func(cv *canvas) error {
			return cv.shape(shape)
		}})
	}
	for _, img := range st.Images {
		im := img
		elements = append(elements, element{id: img.ID, z: img.ZIndex, paint: func(cv *canvas) error {
			return cv.image(im)
		}})
	}
	for _, q := range st.QRCodes {
		qr := q
		elements = append(elements, element{id: q.ID, z: q.ZIndex, paint: func(cv *canvas) error {
			return cv.qrcode(qr)
		}})
	}
	sort.SliceStable(elements, func(i, j int) bool { return elements[i].z < elements[j].z })

	for _, el := range elements {
		cv.reset()
		if err := paintSafely(el, cv); err != nil {
			log.Warn("element skipped", observability.Int("page", page.Number),
				observability.String("id", el.id), observability.Err(err))
			skipped++
			continue
		}
		out.Write(cv.buf.Bytes())
		drawn++
	}
	out.WriteString("Q\n")

	if err := ov.Apply(out.Bytes()); err != nil {
		return drawn, skipped, err
	}
	return drawn, skipped, nil
}

func paintSafely(el element, cv *canvas) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while drawing: %v", r)
		}
	}()
	return el.paint(cv)
}

// pdfRect converts an editor-space box to PDF space relative to the page
// box origin.
func (cv *canvas) pdfRect(x, y, w, h float64) coords.Rect {
	r := coords.RectToPdf(coords.Rect{X: x, Y: y, Width: w, Height: h}, cv.page.Height(), cv.scale)
	r.X += cv.page.Box.X
	r.Y += cv.page.Box.Y
	return r
}

// pdfPoint converts an editor-space point to PDF space.
func (cv *canvas) pdfPoint(x, y float64) (float64, float64) {
	px, py := coords.ToPdfSpace(x, y, cv.page.Height(), cv.scale)
	return px + cv.page.Box.X, py + cv.page.Box.Y
}
