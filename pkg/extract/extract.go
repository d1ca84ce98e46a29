// Package extract turns positioned page text into editable TextRuns in
// editor space.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// Granularity selects block-level or word-level runs.
type Granularity int

const (
	// Block yields one run per content stream text item.
	Block Granularity = iota
	// Word splits every item on whitespace.
	Word
)

func (g Granularity) String() string {
	if g == Word {
		return "word"
	}
	return "block"
}

// ParseGranularity maps "word" to Word and anything else to Block.
func ParseGranularity(s string) Granularity {
	if strings.EqualFold(strings.TrimSpace(s), "word") {
		return Word
	}
	return Block
}

type config struct {
	granularity Granularity
	scale       coords.ScalePolicy
	visibleOnly bool
	classifier  pdf.StyleClassifier
	backends    []Backend
	timeout     time.Duration
	logger      observability.Logger
}

// Option configures an Extractor.
type Option func(*config)

// WithGranularity sets block- or word-level extraction.
func WithGranularity(g Granularity) Option {
	return func(c *config) {
		c.granularity = g
	}
}

// WithScalePolicy sets how the editor scale of each page is chosen.
func WithScalePolicy(p coords.ScalePolicy) Option {
	return func(c *config) {
		c.scale = p
	}
}

// WithScale fixes the editor scale for every page.
func WithScale(scale float64) Option {
	return func(c *config) {
		c.scale = coords.ScalePolicy{Fixed: scale}
	}
}

// WithVisibleOnly drops runs fully covered by a filled rectangle painted after
// them, and runs drawn in an invisible render mode.
func WithVisibleOnly(v bool) Option {
	return func(c *config) {
		c.visibleOnly = v
	}
}

// WithClassifier replaces the style classifier.
func WithClassifier(sc pdf.StyleClassifier) Option {
	return func(c *config) {
		if sc != nil {
			c.classifier = sc
		}
	}
}

// WithBackends replaces the backend fallback chain.
func WithBackends(backends ...Backend) Option {
	return func(c *config) {
		if len(backends) > 0 {
			c.backends = backends
		}
	}
}

// WithTimeout bounds each extraction attempt. An attempt that exceeds it is
// retried once before Extract fails with a *pdf.TimeoutError. Zero leaves
// extraction bounded only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(c *config) {
		c.logger = observability.OrNop(l)
	}
}

// Extractor extracts TextRuns from documents.
type Extractor struct {
	cfg config
}

// New returns an Extractor.
func New(opts ...Option) *Extractor {
	cfg := config{
		granularity: Block,
		scale:       coords.DefaultScalePolicy,
		classifier:  HeuristicClassifier{},
		backends:    DefaultBackends(),
		logger:      observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Extractor{cfg: cfg}
}

// Page holds the runs of one page.
type Page struct {
	Number int
	// Width and Height are the page box in PDF units.
	Width   float64
	Height  float64
	Scale   float64
	Runs    []pdf.TextRun
	Backend string
	// Err is set when no backend could read the page.
	Err error
}

// Extract reads every page of data. Pages are read by the first backend that
// succeeds for that page; a page no backend can read is returned with Err set.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]Page, error) {
	if e.cfg.timeout <= 0 {
		return e.extract(ctx, data)
	}
	pages, err := e.attempt(ctx, data)
	if !errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return pages, err
	}
	e.cfg.logger.Warn("extraction timed out, retrying", observability.Stage(observability.StageExtract),
		observability.String("after", e.cfg.timeout.String()))

	pages, err = e.attempt(ctx, data)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, &pdf.TimeoutError{Op: "extract", After: e.cfg.timeout, Retried: true, Err: err}
	}
	return pages, err
}

type outcome struct {
	pages []Page
	err   error
}

// attempt runs one bounded extraction. Parsers do not observe ctx while
// opening a document, so a worker stuck in one keeps running after the
// timeout; only its result is discarded.
func (e *Extractor) attempt(ctx context.Context, data []byte) ([]Page, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		pages, err := e.extract(ctx, data)
		done <- outcome{pages, err}
	}()

	select {
	case o := <-done:
		return o.pages, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Extractor) extract(ctx context.Context, data []byte) ([]Page, error) {
	if len(data) == 0 {
		return nil, pdf.ErrEmptyInput
	}
	log := e.cfg.logger.With(observability.Stage(observability.StageExtract))

	sources := make([]pdf.TextContentSource, len(e.cfg.backends))
	openErrs := make([]error, len(e.cfg.backends))
	open := func(i int) (pdf.TextContentSource, error) {
		if sources[i] == nil && openErrs[i] == nil {
			src, err := e.cfg.backends[i].Open(data)
			if err != nil {
				log.Warn("backend could not open document",
					observability.String("backend", e.cfg.backends[i].Name), observability.Err(err))
				openErrs[i] = err
			}
			sources[i] = src
		}
		return sources[i], openErrs[i]
	}

	count := 0
	var firstErr error
	for i := range e.cfg.backends {
		src, err := open(i)
		if err == nil && src.NumPages() > 0 {
			count = src.NumPages()
			break
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if count == 0 {
		if firstErr == nil {
			firstErr = errors.New("document has no pages")
		}
		return nil, fmt.Errorf("no extraction backend could read the document: %w", firstErr)
	}

	pages := make([]Page, 0, count)
	for n := 1; n <= count; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := e.extractPage(ctx, n, open, log)
		if page.Err != nil {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		pages = append(pages, page)
	}
	log.Debug("extraction finished", observability.Int("pages", len(pages)))
	return pages, nil
}

func (e *Extractor) extractPage(ctx context.Context, n int, open func(int) (pdf.TextContentSource, error), log observability.Logger) Page {
	var lastErr error
	for i, b := range e.cfg.backends {
		src, err := open(i)
		if err != nil || n > src.NumPages() {
			continue
		}
		tc, err := src.TextContent(ctx, n)
		if err != nil {
			log.Warn("backend failed on page",
				observability.String("backend", b.Name), observability.Int("page", n), observability.Err(err))
			lastErr = err
			continue
		}
		scale := e.cfg.scale.ScaleFor(tc.Width)
		return Page{
			Number:  n,
			Width:   tc.Width,
			Height:  tc.Height,
			Scale:   scale,
			Runs:    e.Runs(tc, scale),
			Backend: b.Name,
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("page %d: no backend available", n)
	}
	log.Error("page skipped", observability.Int("page", n), observability.Err(lastErr))
	return Page{Number: n, Err: lastErr}
}

// Runs converts the text items of one page into runs at the given scale. Run
// ids derive from the page number and item index only, so repeated
// extraction of the same content yields the same ids.
func (e *Extractor) Runs(tc *pdf.TextContent, scale float64) []pdf.TextRun {
	var hidden map[int]bool
	if e.cfg.visibleOnly {
		hidden = hiddenItems(tc, e.cfg.classifier)
	}

	var runs []pdf.TextRun
	for idx, item := range tc.Items {
		if strings.TrimSpace(item.Str) == "" || hidden[idx] {
			continue
		}
		run := e.blockRun(tc, idx, item, scale)
		// word positions advance along x only, so rotated items stay whole
		if e.cfg.granularity == Word && run.Rotation == 0 {
			runs = append(runs, splitWords(run, tc.PageNumber, idx)...)
			continue
		}
		runs = append(runs, run)
	}
	return runs
}

func (e *Extractor) blockRun(tc *pdf.TextContent, idx int, item pdf.TextItem, scale float64) pdf.TextRun {
	size := item.FontSize()
	width := item.Width
	if width <= 0 {
		width = e.cfg.classifier.EstimateWidth(item.Str, item.FontName, size)
	}
	x, y := coords.ToEditorSpace(item.Transform[4], item.Transform[5]+size, tc.Height, scale)
	weight, style := e.cfg.classifier.Classify(item.FontName)

	run := pdf.TextRun{
		ID:         pdf.TextRunID(tc.PageNumber, idx),
		Text:       item.Str,
		X:          x,
		Y:          y,
		Width:      coords.LengthToEditor(width, scale),
		Height:     coords.LengthToEditor(size, scale),
		FontSize:   coords.LengthToEditor(size, scale),
		FontName:   item.FontName,
		FontWeight: weight,
		FontStyle:  style,
		Color:      item.Color,
		PageNumber: tc.PageNumber,
		TextAlign:  pdf.AlignLeft,
	}
	if rot := item.Rotation(); math.Abs(rot) > 0.01 {
		run.Rotation = -rot
	}
	return run
}

// hiddenItems returns the indexes of items that are invisible or fully
// covered by a fill painted after them.
func hiddenItems(tc *pdf.TextContent, sc pdf.StyleClassifier) map[int]bool {
	hidden := make(map[int]bool)
	for idx, item := range tc.Items {
		if item.Invisible {
			hidden[idx] = true
			continue
		}
		size := item.FontSize()
		width := item.Width
		if width <= 0 {
			width = sc.EstimateWidth(item.Str, item.FontName, size)
		}
		box := coords.Rect{X: item.Transform[4], Y: item.Transform[5], Width: width, Height: size}
		for _, f := range tc.Fills {
			if f.Seq <= item.Seq {
				continue
			}
			cover := coords.Rect{X: f.X0, Y: f.Y0, Width: f.X1 - f.X0, Height: f.Y1 - f.Y0}
			if cover.Contains(box, 0.5) {
				hidden[idx] = true
				break
			}
		}
	}
	return hidden
}
