// Package raster paints PDF pages onto bitmaps for display under the editor
// overlay.
//
// Pages are painted from the same content walk used for text extraction:
// filled rectangles and text, in paint order. Vector paths other than
// rectangles and embedded images are not drawn.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sort"
	"strings"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/pyhub-apps/pdfedit-golang/pkg/content"
	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

const (
	// DefaultMaxSize is the largest accepted input.
	DefaultMaxSize = 50 << 20
	// DefaultTimeout bounds one render attempt.
	DefaultTimeout = 30 * time.Second
	// maxDimension caps bitmap width and height in pixels.
	maxDimension = 8000
	// dataURLPrefix prefixes every BackgroundImage.
	dataURLPrefix = "data:image/png;base64,"
)

type config struct {
	scale      coords.ScalePolicy
	maxSize    int
	timeout    time.Duration
	primary    Backend
	fallback   Backend
	classifier pdf.StyleClassifier
	logger     observability.Logger
}

// Option configures a Renderer.
type Option func(*config)

// WithScalePolicy sets how the scale of each page is chosen.
func WithScalePolicy(p coords.ScalePolicy) Option {
	return func(c *config) {
		c.scale = p
	}
}

// WithScale fixes the scale of every page.
func WithScale(scale float64) Option {
	return func(c *config) {
		c.scale = coords.ScalePolicy{Fixed: scale}
	}
}

// WithMaxSize sets the input size ceiling in bytes.
func WithMaxSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithTimeout bounds each render attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBackends sets the primary and fallback glyph backends.
func WithBackends(primary, fallback Backend) Option {
	return func(c *config) {
		c.primary = primary
		c.fallback = fallback
	}
}

// WithClassifier sets how weight and style are derived from font names.
func WithClassifier(sc pdf.StyleClassifier) Option {
	return func(c *config) {
		if sc != nil {
			c.classifier = sc
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *config) {
		c.logger = observability.OrNop(l)
	}
}

// Renderer rasterizes documents.
type Renderer struct {
	cfg     config
	backend Backend
}

// New configures the glyph backend once and returns a Renderer.
func New(opts ...Option) (*Renderer, error) {
	cfg := config{
		scale:      coords.DefaultScalePolicy,
		maxSize:    DefaultMaxSize,
		timeout:    DefaultTimeout,
		primary:    NewFreetypeBackend(),
		fallback:   BasicBackend{},
		classifier: extract.HeuristicClassifier{},
		logger:     observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	backend, err := Configure(cfg.primary, cfg.fallback)
	if err != nil {
		return nil, err
	}
	if cfg.primary != nil && backend != cfg.primary {
		cfg.logger.Warn("using fallback raster backend",
			observability.Stage(observability.StageRender), observability.String("backend", backend.Name()))
	}
	return &Renderer{cfg: cfg, backend: backend}, nil
}

// Backend returns the configured glyph backend.
func (r *Renderer) Backend() Backend { return r.backend }

// Result holds the pages that rendered and a warning per page that did not.
type Result struct {
	Pages    []pdf.PageGeometry
	Warnings []error
	// Degraded is set when the pages come from the reduced-fidelity retry.
	Degraded bool
}

// Render rasterizes every page of data. A page that fails is omitted and
// reported as a *pdf.RenderError in Warnings. Input that cannot be parsed is
// a *pdf.LoadError; an attempt exceeding the timeout is retried once in
// degraded mode before a *pdf.TimeoutError is returned.
func (r *Renderer) Render(ctx context.Context, data []byte) (*Result, error) {
	log := r.cfg.logger.With(observability.Stage(observability.StageRender))
	if len(data) == 0 {
		return nil, &pdf.LoadError{Reason: "empty input", Err: pdf.ErrEmptyInput}
	}
	if len(data) > r.cfg.maxSize {
		return nil, &pdf.LoadError{
			Reason: fmt.Sprintf("%d bytes over the %d byte limit", len(data), r.cfg.maxSize),
			Err:    pdf.ErrTooLarge,
		}
	}

	res, err := r.attempt(ctx, data, false)
	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return res, err
	}
	log.Warn("render timed out, retrying in degraded mode", observability.String("after", r.cfg.timeout.String()))

	res, err = r.attempt(ctx, data, true)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		log.Error("degraded render timed out")
		return nil, &pdf.TimeoutError{Op: "render", After: r.cfg.timeout, Retried: true, Err: err}
	}
	return res, err
}

type outcome struct {
	res *Result
	err error
}

// attempt runs one bounded render. The worker checks its context between
// pages, but pdf.Open cannot be cancelled: a parser that hangs inside it
// keeps the worker goroutine alive after the timeout and only its result
// is dropped.
func (r *Renderer) attempt(ctx context.Context, data []byte, degraded bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		res, err := r.render(ctx, data, degraded)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		return o.res, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Renderer) render(ctx context.Context, data []byte, degraded bool) (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &pdf.LoadError{Reason: "renderer panic", Err: fmt.Errorf("%v", p)}
		}
	}()
	log := r.cfg.logger.With(observability.Stage(observability.StageRender))

	doc, err := pdf.Open(data)
	if err != nil {
		return nil, &pdf.LoadError{Reason: "unparseable document", Err: err}
	}

	res = &Result{Degraded: degraded}
	for n := 1; n <= doc.NumPages(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		geom, err := r.renderPage(ctx, doc, n, degraded)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warn("page skipped", observability.Int("page", n), observability.Err(err))
			res.Warnings = append(res.Warnings, &pdf.RenderError{Page: n, Err: err})
			continue
		}
		res.Pages = append(res.Pages, geom)
	}
	if len(res.Pages) == 0 {
		return nil, &pdf.LoadError{Reason: "no page could be rendered", Err: errors.Join(res.Warnings...)}
	}
	log.Debug("render finished", observability.Int("pages", len(res.Pages)), observability.Bool("degraded", degraded))
	return res, nil
}

func (r *Renderer) renderPage(ctx context.Context, doc *pdf.Document, n int, degraded bool) (pdf.PageGeometry, error) {
	page, err := doc.Page(n)
	if err != nil {
		return pdf.PageGeometry{}, err
	}
	tc, err := content.Interpret(ctx, page)
	if err != nil {
		return pdf.PageGeometry{}, err
	}

	scale := r.cfg.scale.ScaleFor(page.Width())
	w := int(math.Ceil(page.Width() * scale))
	h := int(math.Ceil(page.Height() * scale))
	if w <= 0 || h <= 0 || w > maxDimension || h > maxDimension {
		return pdf.PageGeometry{}, fmt.Errorf("bitmap size %dx%d out of range", w, h)
	}

	var img *image.RGBA
	if degraded {
		// half resolution, glyphs as bars, then scaled back up
		small := r.Paint(tc, scale/2, true)
		img = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.BiLinear.Scale(img, img.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	} else {
		img = r.Paint(tc, scale, false)
	}

	url, err := EncodeDataURL(img)
	if err != nil {
		return pdf.PageGeometry{}, err
	}
	return pdf.PageGeometry{
		PageNumber:      n,
		Width:           coords.LengthToEditor(page.Width(), scale),
		Height:          coords.LengthToEditor(page.Height(), scale),
		PDFWidth:        page.Width(),
		PDFHeight:       page.Height(),
		Scale:           scale,
		Rotation:        page.Rotation,
		BackgroundImage: url,
	}, nil
}

type paintOp struct {
	seq  int
	fill *pdf.FillRect
	text *pdf.TextItem
}

// Paint draws the fills and visible text of tc onto a white bitmap at scale.
// With bars set, each text item becomes a gray bar instead of glyphs.
func (r *Renderer) Paint(tc *pdf.TextContent, scale float64, bars bool) *image.RGBA {
	w := int(math.Ceil(tc.Width * scale))
	h := int(math.Ceil(tc.Height * scale))
	img := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	ops := make([]paintOp, 0, len(tc.Fills)+len(tc.Items))
	for i := range tc.Fills {
		ops = append(ops, paintOp{seq: tc.Fills[i].Seq, fill: &tc.Fills[i]})
	}
	for i := range tc.Items {
		ops = append(ops, paintOp{seq: tc.Items[i].Seq, text: &tc.Items[i]})
	}
	sort.SliceStable(ops, func(i, j int) bool { return ops[i].seq < ops[j].seq })

	for _, op := range ops {
		switch {
		case op.fill != nil:
			f := op.fill
			rect := coords.RectToEditor(coords.Rect{X: f.X0, Y: f.Y0, Width: f.X1 - f.X0, Height: f.Y1 - f.Y0}, tc.Height, scale)
			draw.Draw(img, pixelRect(rect), image.NewUniform(rgba(f.Color)), image.Point{}, draw.Over)
		case op.text != nil && !op.text.Invisible && strings.TrimSpace(op.text.Str) != "":
			r.paintText(img, tc.Height, scale, op.text, bars)
		}
	}
	return img
}

func (r *Renderer) paintText(img *image.RGBA, pageHeight, scale float64, item *pdf.TextItem, bars bool) {
	size := item.FontSize()
	x, y := coords.ToEditorSpace(item.Transform[4], item.Transform[5], pageHeight, scale)
	weight, style := r.cfg.classifier.Classify(item.FontName)
	if bars {
		width := item.Width
		if width <= 0 {
			width = r.cfg.classifier.EstimateWidth(item.Str, item.FontName, size)
		}
		shade := color.Gray{Y: 160}
		if weight == pdf.FontWeightBold {
			shade.Y = 96
		}
		bar := coords.Rect{X: x, Y: y - size*0.6*scale, Width: width * scale, Height: size * 0.6 * scale}
		draw.Draw(img, pixelRect(bar), image.NewUniform(shade), image.Point{}, draw.Over)
		return
	}
	r.backend.DrawText(img, TextOp{
		X:      x,
		Y:      y,
		Size:   size * scale,
		Text:   item.Str,
		Weight: weight,
		Style:  style,
		Color:  rgba(item.Color),
	})
}

func pixelRect(r coords.Rect) image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.Width)), int(math.Ceil(r.Y+r.Height)),
	)
}

func rgba(c pdf.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// EncodeDataURL encodes img as a PNG data URL.
func EncodeDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode page bitmap: %w", err)
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeDataURL returns the PNG bytes of a BackgroundImage.
func DecodeDataURL(url string) ([]byte, error) {
	if !strings.HasPrefix(url, dataURLPrefix) {
		return nil, errors.New("not a PNG data URL")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(url, dataURLPrefix))
}
