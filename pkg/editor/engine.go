// Package editor ties rasterization, extraction, the edit overlay, history
// and export into one editing session.
//
// Mutations and undo/redo are serialized by the Engine. Loading runs
// rasterization and extraction in parallel; a load that finishes after a
// newer one started is discarded. Only one export runs at a time.
package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"sync"
	"sync/atomic"

	"github.com/pyhub-apps/pdfedit-golang/pkg/compose"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/history"
	"github.com/pyhub-apps/pdfedit-golang/pkg/observability"
	"github.com/pyhub-apps/pdfedit-golang/pkg/overlay"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
	"github.com/pyhub-apps/pdfedit-golang/pkg/raster"
)

// Engine is one editing session.
type Engine struct {
	cfg       config
	log       observability.Logger
	renderer  *raster.Renderer
	extractor *extract.Extractor
	composer  *compose.Composer

	mu       sync.Mutex
	store    *overlay.Store
	history  *history.Manager[overlay.State]
	pages    []pdf.PageGeometry
	scales   map[int]float64
	original []byte
	warnings []error
	loadGen  uint64

	loading   atomic.Int32
	exporting atomic.Bool

	subMu       sync.Mutex
	subscribers map[int]func()
	nextSub     int
}

// New configures the raster backend once and returns an empty Engine.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	renderer, err := raster.New(
		raster.WithScalePolicy(cfg.scale),
		raster.WithMaxSize(cfg.maxSize),
		raster.WithTimeout(cfg.timeout),
		raster.WithBackends(cfg.rasterPrimary, cfg.rasterFallback),
		raster.WithClassifier(cfg.classifier),
		raster.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure renderer: %w", err)
	}

	extractOpts := []extract.Option{
		extract.WithScalePolicy(cfg.scale),
		extract.WithGranularity(cfg.granularity),
		extract.WithClassifier(cfg.classifier),
		extract.WithTimeout(cfg.timeout),
		extract.WithLogger(cfg.logger),
	}
	if len(cfg.extractBackends) > 0 {
		extractOpts = append(extractOpts, extract.WithBackends(cfg.extractBackends...))
	}

	e := &Engine{
		cfg:       cfg,
		log:       cfg.logger,
		renderer:  renderer,
		extractor: extract.New(extractOpts...),
		composer:  compose.New(compose.WithBackground(cfg.background), compose.WithLogger(cfg.logger)),
		store: overlay.New(
			overlay.WithClock(cfg.clock),
			overlay.WithClassifier(cfg.classifier),
		),
		history:     history.New(cfg.historyLimit, overlay.State.Clone),
		scales:      make(map[int]float64),
		subscribers: make(map[int]func()),
	}
	e.history.Reset(e.store.Snapshot())
	// every acknowledged mutation is snapshotted before the mutating call
	// returns; restores run with the listener muted
	e.store.SetListener(func() {
		e.history.Push(e.store.Snapshot())
	})
	return e, nil
}

// Subscribe registers fn to be called after every observable state change.
// It returns a function that removes the subscription.
func (e *Engine) Subscribe(fn func()) func() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	return func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subscribers, id)
	}
}

func (e *Engine) notify() {
	e.subMu.Lock()
	fns := make([]func(), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		fns = append(fns, fn)
	}
	e.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func isPDFMime(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return mt == "application/pdf" || mt == "application/x-pdf"
}

// LoadPDF replaces the session with a new document. The MIME type must be
// application/pdf. On failure the previous document and every edit are
// discarded. A load overtaken by a newer one returns pdf.ErrSuperseded and
// changes nothing.
func (e *Engine) LoadPDF(ctx context.Context, data []byte, mimeType string) ([]pdf.PageGeometry, error) {
	log := e.log.With(observability.Stage(observability.StageLoad))
	if !isPDFMime(mimeType) {
		err := &pdf.ValidationError{Field: "mime type", Message: fmt.Sprintf("%q is not application/pdf", mimeType)}
		log.Warn("load rejected", observability.Err(err))
		return nil, err
	}

	e.mu.Lock()
	e.loadGen++
	gen := e.loadGen
	e.mu.Unlock()

	e.loading.Add(1)
	e.notify()
	defer func() {
		e.loading.Add(-1)
		e.notify()
	}()

	var (
		wg         sync.WaitGroup
		rendered   *raster.Result
		renderErr  error
		pages      []extract.Page
		extractErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rendered, renderErr = e.renderer.Render(ctx, data)
	}()
	go func() {
		defer wg.Done()
		pages, extractErr = e.extractor.Extract(ctx, data)
	}()
	wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.loadGen {
		log.Info("stale load discarded", observability.Int64("generation", int64(gen)))
		return nil, pdf.ErrSuperseded
	}

	err := renderErr
	if err == nil && extractErr != nil {
		var timeout *pdf.TimeoutError
		if errors.As(extractErr, &timeout) {
			err = timeout
		} else {
			err = &pdf.LoadError{Reason: "text extraction failed", Err: extractErr}
		}
	}
	if err != nil {
		e.reset()
		log.Error("load failed", observability.Err(err))
		return nil, err
	}

	// Runs are only kept for pages that have a background; a page that
	// failed to render is absent from PDFPages and cannot be edited.
	e.scales = make(map[int]float64, len(rendered.Pages))
	for _, g := range rendered.Pages {
		e.scales[g.PageNumber] = g.Scale
	}
	var runs []pdf.TextRun
	warnings := append([]error(nil), rendered.Warnings...)
	for _, p := range pages {
		if _, ok := e.scales[p.Number]; !ok {
			if len(p.Runs) > 0 {
				log.Warn("text of unrendered page dropped", observability.Int("page", p.Number),
					observability.Int("runs", len(p.Runs)))
			}
			continue
		}
		if p.Err != nil {
			log.Warn("page text unavailable", observability.Int("page", p.Number), observability.Err(p.Err))
			warnings = append(warnings, fmt.Errorf("extract page %d: %w", p.Number, p.Err))
			continue
		}
		runs = append(runs, p.Runs...)
	}

	e.original = bytes.Clone(data)
	e.pages = rendered.Pages
	e.warnings = warnings
	e.store.SetExtracted(runs)
	e.history.Reset(e.store.Snapshot())

	log.Info("document loaded", observability.Int("pages", len(e.pages)),
		observability.Int("runs", len(runs)), observability.Int("warnings", len(warnings)),
		observability.Bool("degraded", rendered.Degraded))
	return append([]pdf.PageGeometry(nil), e.pages...), nil
}

// reset drops the document and every edit. e.mu must be held.
func (e *Engine) reset() {
	e.original = nil
	e.pages = nil
	e.warnings = nil
	e.scales = make(map[int]float64)
	e.store.SetExtracted(nil)
	e.history.Reset(e.store.Snapshot())
}

// mutate runs fn under the session lock and notifies subscribers when fn
// reports a change.
func (e *Engine) mutate(fn func() bool) bool {
	e.mu.Lock()
	changed := fn()
	e.mu.Unlock()
	if changed {
		e.notify()
	}
	return changed
}

func (e *Engine) checkPage(page int) error {
	if e.original == nil {
		return pdf.ErrNoDocument
	}
	if _, ok := e.scales[page]; !ok {
		return &pdf.ValidationError{Field: "page", Message: fmt.Sprintf("page %d is not loaded", page)}
	}
	return nil
}

// UpdateTextRun merges patch into run id. An unknown id is ignored.
func (e *Engine) UpdateTextRun(id string, patch pdf.TextRunPatch) bool {
	return e.mutate(func() bool {
		return e.store.UpdateTextRun(id, patch)
	})
}

// AddTextRun adds a default-styled run at (x, y) in editor space and returns
// its id.
func (e *Engine) AddTextRun(page int, x, y float64, text string) (string, error) {
	var id string
	var err error
	e.mutate(func() bool {
		if err = e.checkPage(page); err != nil {
			return false
		}
		id = e.store.AddTextRun(page, x, y, text)
		return true
	})
	return id, err
}

// AddShape adds a shape and returns its id.
func (e *Engine) AddShape(s pdf.ShapeElement) (string, error) {
	var id string
	var err error
	e.mutate(func() bool {
		if err = e.checkPage(s.PageNumber); err != nil {
			return false
		}
		id = e.store.AddShape(s)
		return true
	})
	return id, err
}

// AddImage adds an image and returns its id.
func (e *Engine) AddImage(img pdf.ImageElement) (string, error) {
	var id string
	var err error
	e.mutate(func() bool {
		if err = e.checkPage(img.PageNumber); err != nil {
			return false
		}
		id = e.store.AddImage(img)
		return true
	})
	return id, err
}

// AddQRCode adds a QR placeholder and returns its id.
func (e *Engine) AddQRCode(q pdf.QRPlaceholder) (string, error) {
	var id string
	var err error
	e.mutate(func() bool {
		if err = e.checkPage(q.PageNumber); err != nil {
			return false
		}
		id = e.store.AddQRCode(q)
		return true
	})
	return id, err
}

// UpdateShape applies fn to shape id.
func (e *Engine) UpdateShape(id string, fn func(*pdf.ShapeElement)) bool {
	return e.mutate(func() bool { return e.store.UpdateShape(id, fn) })
}

// UpdateImage applies fn to image id.
func (e *Engine) UpdateImage(id string, fn func(*pdf.ImageElement)) bool {
	return e.mutate(func() bool { return e.store.UpdateImage(id, fn) })
}

// UpdateQRCode applies fn to QR placeholder id.
func (e *Engine) UpdateQRCode(id string, fn func(*pdf.QRPlaceholder)) bool {
	return e.mutate(func() bool { return e.store.UpdateQRCode(id, fn) })
}

// DeleteElement soft-deletes an extracted run or removes a custom element.
func (e *Engine) DeleteElement(id string) bool {
	return e.mutate(func() bool { return e.store.DeleteElement(id) })
}

// DuplicateElement copies id to a new custom element and returns its id.
func (e *Engine) DuplicateElement(id string) (string, bool) {
	var newID string
	ok := e.mutate(func() bool {
		var dup bool
		newID, dup = e.store.DuplicateElement(id)
		return dup
	})
	return newID, ok
}

// RevertTextRun discards the edits of run id.
func (e *Engine) RevertTextRun(id string) bool {
	return e.mutate(func() bool { return e.store.RevertTextRun(id) })
}

// HasChanged reports whether the text of run id was changed.
func (e *Engine) HasChanged(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.HasChanged(id)
}

// Undo restores the previous snapshot.
func (e *Engine) Undo() bool {
	return e.mutate(func() bool { return e.restore(e.history.Undo()) })
}

// Redo restores the next snapshot.
func (e *Engine) Redo() bool {
	return e.mutate(func() bool { return e.restore(e.history.Redo()) })
}

func (e *Engine) restore(st overlay.State, ok bool) bool {
	if !ok {
		return false
	}
	unmute := e.store.Mute()
	defer unmute()
	e.store.Restore(st)
	return true
}

// ExportPDF writes the edited document. Only one export runs at a time; a
// concurrent call fails with pdf.ErrBusy.
func (e *Engine) ExportPDF(ctx context.Context) ([]byte, error) {
	res, err := e.Export(ctx)
	if err != nil {
		return nil, err
	}
	return res.Bytes, nil
}

// Export is ExportPDF with the count of drawn and skipped elements.
func (e *Engine) Export(ctx context.Context) (*compose.Result, error) {
	if !e.exporting.CompareAndSwap(false, true) {
		return nil, pdf.ErrBusy
	}
	defer e.exporting.Store(false)

	e.mu.Lock()
	if e.original == nil {
		e.mu.Unlock()
		return nil, pdf.ErrNoDocument
	}
	req := compose.Request{
		Original:  e.original,
		Scales:    make(map[int]float64, len(e.scales)),
		State:     e.store.Snapshot(),
		Originals: e.store.Originals(),
	}
	for n, s := range e.scales {
		req.Scales[n] = s
	}
	e.mu.Unlock()

	res, err := e.composer.Export(ctx, req)
	if err != nil {
		var exportErr *pdf.ExportError
		if !errors.As(err, &exportErr) {
			err = &pdf.ExportError{Err: err}
		}
		e.log.Error("export failed", observability.Stage(observability.StageExport), observability.Err(err))
		return nil, err
	}
	return res, nil
}

// IsExporting reports whether an export is running.
func (e *Engine) IsExporting() bool { return e.exporting.Load() }

// IsLoading reports whether a load is in progress.
func (e *Engine) IsLoading() bool { return e.loading.Load() > 0 }

// PDFPages returns the geometry of every rendered page.
func (e *Engine) PDFPages() []pdf.PageGeometry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]pdf.PageGeometry(nil), e.pages...)
}

// TextRuns returns the current runs, soft-deleted ones excluded.
func (e *Engine) TextRuns() []pdf.TextRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []pdf.TextRun
	for _, r := range e.store.TextRuns() {
		if !r.IsDeleted() {
			out = append(out, r)
		}
	}
	return out
}

// TextRun returns the current state of run id, soft-deleted or not.
func (e *Engine) TextRun(id string) (pdf.TextRun, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.TextRun(id)
}

// Shapes returns the shapes in insertion order.
func (e *Engine) Shapes() []pdf.ShapeElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Shapes()
}

// Images returns the images in insertion order.
func (e *Engine) Images() []pdf.ImageElement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Images()
}

// QRCodes returns the QR placeholders in insertion order.
func (e *Engine) QRCodes() []pdf.QRPlaceholder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.QRCodes()
}

// Snapshot returns the overlay state.
func (e *Engine) Snapshot() overlay.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Snapshot()
}

// CanUndo reports whether Undo would change the state.
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo reports whether Redo would change the state.
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// HistoryLen returns the number of stored snapshots.
func (e *Engine) HistoryLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Len()
}

// Warnings returns the per-page problems of the last load.
func (e *Engine) Warnings() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.warnings...)
}
