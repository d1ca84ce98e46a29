// Package overlay holds the user's edits on top of the extracted text runs.
//
// Every element is stored in editor space. An id present in the store is the
// authoritative state of that element; an extracted run with no entry is
// unchanged. The store is not safe for concurrent use.
package overlay

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"time"

	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

const (
	// DefaultFontSize is the size of runs created by AddTextRun.
	DefaultFontSize = 16.0
	// DefaultFontName is the font of runs created by AddTextRun.
	DefaultFontName = "Helvetica"
	// DuplicateOffset is added to x and y of a duplicated element.
	DuplicateOffset = 20.0
)

type config struct {
	now        func() time.Time
	newID      func(now time.Time) string
	classifier pdf.StyleClassifier
}

// Option configures a Store.
type Option func(*config)

// WithClock replaces time.Now for ids and snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator replaces the custom element id generator. Generated ids
// must carry pdf.CustomIDPrefix.
func WithIDGenerator(gen func(now time.Time) string) Option {
	return func(c *config) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithClassifier sets the width estimator for new runs.
func WithClassifier(sc pdf.StyleClassifier) Option {
	return func(c *config) {
		if sc != nil {
			c.classifier = sc
		}
	}
}

// NewID returns "custom-<unix nanos>-<random base36>".
func NewID(now time.Time) string {
	return pdf.CustomIDPrefix + strconv.FormatInt(now.UnixNano(), 10) + "-" +
		strconv.FormatUint(rand.Uint64()&0xffffffffff, 36)
}

// Store is the edit overlay.
type Store struct {
	cfg config

	runs     map[string]pdf.TextRun
	runOrder []string

	shapes     map[string]pdf.ShapeElement
	shapeOrder []string

	images     map[string]pdf.ImageElement
	imageOrder []string

	qrcodes map[string]pdf.QRPlaceholder
	qrOrder []string

	extracted      map[string]pdf.TextRun
	extractedOrder []string

	listener func()
	muted    int
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	cfg := config{
		now:        time.Now,
		newID:      NewID,
		classifier: extract.HeuristicClassifier{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Store{cfg: cfg, extracted: make(map[string]pdf.TextRun)}
	s.clear()
	return s
}

func (s *Store) clear() {
	s.runs = make(map[string]pdf.TextRun)
	s.runOrder = nil
	s.shapes = make(map[string]pdf.ShapeElement)
	s.shapeOrder = nil
	s.images = make(map[string]pdf.ImageElement)
	s.imageOrder = nil
	s.qrcodes = make(map[string]pdf.QRPlaceholder)
	s.qrOrder = nil
}

// SetListener registers fn to be called after every mutation. Pass nil to
// remove it.
func (s *Store) SetListener(fn func()) {
	s.listener = fn
}

// Mute suspends the listener until the returned function is called. Calls
// nest.
func (s *Store) Mute() func() {
	s.muted++
	done := false
	return func() {
		if !done {
			done = true
			s.muted--
		}
	}
}

func (s *Store) changed() {
	if s.listener != nil && s.muted == 0 {
		s.listener()
	}
}

// SetExtracted discards every edit and replaces the extracted baseline. It
// does not notify the listener.
func (s *Store) SetExtracted(runs []pdf.TextRun) {
	s.clear()
	s.extracted = make(map[string]pdf.TextRun, len(runs))
	s.extractedOrder = make([]string, 0, len(runs))
	for _, r := range runs {
		if _, dup := s.extracted[r.ID]; dup {
			continue
		}
		s.extracted[r.ID] = r.Clone()
		s.extractedOrder = append(s.extractedOrder, r.ID)
	}
}

// Extracted returns the extracted baseline of id.
func (s *Store) Extracted(id string) (pdf.TextRun, bool) {
	r, ok := s.extracted[id]
	return r.Clone(), ok
}

// Originals returns a copy of the extracted baseline keyed by id.
func (s *Store) Originals() map[string]pdf.TextRun {
	out := make(map[string]pdf.TextRun, len(s.extracted))
	for id, r := range s.extracted {
		out[id] = r.Clone()
	}
	return out
}

// Overlay returns the stored edit of id, without falling back to the
// extracted value.
func (s *Store) Overlay(id string) (pdf.TextRun, bool) {
	r, ok := s.runs[id]
	return r.Clone(), ok
}

// TextRun returns the current state of id: the overlay value if present,
// else the extracted one.
func (s *Store) TextRun(id string) (pdf.TextRun, bool) {
	if r, ok := s.runs[id]; ok {
		return r.Clone(), true
	}
	return s.Extracted(id)
}

func (s *Store) putRun(r pdf.TextRun) {
	if _, ok := s.runs[r.ID]; !ok {
		s.runOrder = append(s.runOrder, r.ID)
	}
	s.runs[r.ID] = r
}

// UpdateTextRun merges patch into the current state of id and marks it
// edited. OriginalText is captured on the first edit only. An unknown id is
// ignored and reported as false.
func (s *Store) UpdateTextRun(id string, patch pdf.TextRunPatch) bool {
	cur, ok := s.TextRun(id)
	if !ok {
		return false
	}
	if cur.OriginalText == nil {
		orig := cur.Text
		cur.OriginalText = &orig
	}
	patch.Apply(&cur)
	cur.ID = id
	cur.IsEdited = true
	s.putRun(cur)
	s.changed()
	return true
}

// AddTextRun creates a custom run with default styling and returns its id.
func (s *Store) AddTextRun(page int, x, y float64, text string) string {
	id := s.cfg.newID(s.cfg.now())
	weight, style := s.cfg.classifier.Classify(DefaultFontName)
	s.putRun(pdf.TextRun{
		ID:         id,
		Text:       text,
		X:          x,
		Y:          y,
		Width:      s.cfg.classifier.EstimateWidth(text, DefaultFontName, DefaultFontSize),
		Height:     DefaultFontSize,
		FontSize:   DefaultFontSize,
		FontName:   DefaultFontName,
		FontWeight: weight,
		FontStyle:  style,
		Color:      pdf.Black,
		PageNumber: page,
		TextAlign:  pdf.AlignLeft,
	})
	s.changed()
	return id
}

// AddShape inserts shape under a new id and returns the id. An empty Kind
// becomes a rectangle.
func (s *Store) AddShape(shape pdf.ShapeElement) string {
	shape = shape.Clone()
	shape.ID = s.cfg.newID(s.cfg.now())
	if shape.Kind == "" {
		shape.Kind = pdf.ShapeRectangle
	}
	s.shapes[shape.ID] = shape
	s.shapeOrder = append(s.shapeOrder, shape.ID)
	s.changed()
	return shape.ID
}

// AddImage inserts img under a new id and returns the id.
func (s *Store) AddImage(img pdf.ImageElement) string {
	img.ID = s.cfg.newID(s.cfg.now())
	s.images[img.ID] = img
	s.imageOrder = append(s.imageOrder, img.ID)
	s.changed()
	return img.ID
}

// AddQRCode inserts q under a new id and returns the id.
func (s *Store) AddQRCode(q pdf.QRPlaceholder) string {
	q = q.Clone()
	q.ID = s.cfg.newID(s.cfg.now())
	s.qrcodes[q.ID] = q
	s.qrOrder = append(s.qrOrder, q.ID)
	s.changed()
	return q.ID
}

// UpdateShape applies fn to a copy of the shape and stores the result.
func (s *Store) UpdateShape(id string, fn func(*pdf.ShapeElement)) bool {
	sh, ok := s.shapes[id]
	if !ok {
		return false
	}
	sh = sh.Clone()
	fn(&sh)
	sh.ID = id
	s.shapes[id] = sh
	s.changed()
	return true
}

// UpdateImage applies fn to a copy of the image and stores the result.
func (s *Store) UpdateImage(id string, fn func(*pdf.ImageElement)) bool {
	img, ok := s.images[id]
	if !ok {
		return false
	}
	fn(&img)
	img.ID = id
	s.images[id] = img
	s.changed()
	return true
}

// UpdateQRCode applies fn to a copy of the placeholder and stores the result.
func (s *Store) UpdateQRCode(id string, fn func(*pdf.QRPlaceholder)) bool {
	q, ok := s.qrcodes[id]
	if !ok {
		return false
	}
	q = q.Clone()
	fn(&q)
	q.ID = id
	s.qrcodes[id] = q
	s.changed()
	return true
}

// DeleteElement removes id. Extracted runs are soft-deleted: they stay in
// the store with empty text so export still covers the original glyphs.
// Custom elements are removed outright.
func (s *Store) DeleteElement(id string) bool {
	if _, ok := s.extracted[id]; ok {
		cur, _ := s.TextRun(id)
		if cur.OriginalText == nil {
			orig := cur.Text
			cur.OriginalText = &orig
		}
		cur.Text = ""
		cur.IsEdited = true
		s.putRun(cur)
		s.changed()
		return true
	}

	switch {
	case hasKey(s.runs, id):
		delete(s.runs, id)
		s.runOrder = remove(s.runOrder, id)
	case hasKey(s.shapes, id):
		delete(s.shapes, id)
		s.shapeOrder = remove(s.shapeOrder, id)
	case hasKey(s.images, id):
		delete(s.images, id)
		s.imageOrder = remove(s.imageOrder, id)
	case hasKey(s.qrcodes, id):
		delete(s.qrcodes, id)
		s.qrOrder = remove(s.qrOrder, id)
	default:
		return false
	}
	s.changed()
	return true
}

// DuplicateElement copies the current state of id to a new custom element
// offset by DuplicateOffset, and returns the new id. Soft-deleted runs cannot
// be duplicated.
func (s *Store) DuplicateElement(id string) (string, bool) {
	newID := s.cfg.newID(s.cfg.now())

	if r, ok := s.TextRun(id); ok {
		if r.IsDeleted() {
			return "", false
		}
		r.ID = newID
		r.X += DuplicateOffset
		r.Y += DuplicateOffset
		r.OriginalText = nil
		r.IsEdited = false
		s.putRun(r)
		s.changed()
		return newID, true
	}
	if sh, ok := s.shapes[id]; ok {
		sh = sh.Clone()
		sh.ID = newID
		sh.X += DuplicateOffset
		sh.Y += DuplicateOffset
		s.shapes[newID] = sh
		s.shapeOrder = append(s.shapeOrder, newID)
		s.changed()
		return newID, true
	}
	if img, ok := s.images[id]; ok {
		img.ID = newID
		img.X += DuplicateOffset
		img.Y += DuplicateOffset
		s.images[newID] = img
		s.imageOrder = append(s.imageOrder, newID)
		s.changed()
		return newID, true
	}
	if q, ok := s.qrcodes[id]; ok {
		q = q.Clone()
		q.ID = newID
		q.X += DuplicateOffset
		q.Y += DuplicateOffset
		s.qrcodes[newID] = q
		s.qrOrder = append(s.qrOrder, newID)
		s.changed()
		return newID, true
	}
	return "", false
}

// RevertTextRun drops every edit of an extracted run, or restores the
// original text of an edited custom run.
func (s *Store) RevertTextRun(id string) bool {
	r, ok := s.runs[id]
	if !ok {
		return false
	}
	if _, extracted := s.extracted[id]; extracted {
		delete(s.runs, id)
		s.runOrder = remove(s.runOrder, id)
	} else {
		if r.OriginalText == nil {
			return false
		}
		r.Text = *r.OriginalText
		r.OriginalText = nil
		r.IsEdited = false
		s.runs[id] = r
	}
	s.changed()
	return true
}

// HasChanged reports whether the text of id differs from the text it had
// before its first edit.
func (s *Store) HasChanged(id string) bool {
	r, ok := s.runs[id]
	if !ok || !r.IsEdited || r.OriginalText == nil {
		return false
	}
	return *r.OriginalText != r.Text
}

// TextRuns returns the current state of every run, soft-deleted ones
// included: extracted runs in extraction order followed by custom runs in
// insertion order.
func (s *Store) TextRuns() []pdf.TextRun {
	out := make([]pdf.TextRun, 0, len(s.extractedOrder)+len(s.runOrder))
	for _, id := range s.extractedOrder {
		r, _ := s.TextRun(id)
		out = append(out, r)
	}
	for _, id := range s.runOrder {
		if _, ok := s.extracted[id]; !ok {
			out = append(out, s.runs[id].Clone())
		}
	}
	return out
}

// Shapes returns the shapes in insertion order.
func (s *Store) Shapes() []pdf.ShapeElement {
	out := make([]pdf.ShapeElement, 0, len(s.shapeOrder))
	for _, id := range s.shapeOrder {
		out = append(out, s.shapes[id].Clone())
	}
	return out
}

// Images returns the images in insertion order.
func (s *Store) Images() []pdf.ImageElement {
	out := make([]pdf.ImageElement, 0, len(s.imageOrder))
	for _, id := range s.imageOrder {
		out = append(out, s.images[id])
	}
	return out
}

// QRCodes returns the QR placeholders in insertion order.
func (s *Store) QRCodes() []pdf.QRPlaceholder {
	out := make([]pdf.QRPlaceholder, 0, len(s.qrOrder))
	for _, id := range s.qrOrder {
		out = append(out, s.qrcodes[id].Clone())
	}
	return out
}

// Snapshot returns a deep copy of the overlay maps. Unedited extracted runs
// are not part of it.
func (s *Store) Snapshot() State {
	st := State{
		TextRuns:  make([]pdf.TextRun, 0, len(s.runOrder)),
		Shapes:    s.Shapes(),
		Images:    s.Images(),
		QRCodes:   s.QRCodes(),
		Timestamp: s.cfg.now(),
	}
	for _, id := range s.runOrder {
		st.TextRuns = append(st.TextRuns, s.runs[id].Clone())
	}
	return st
}

// Restore replaces the overlay maps wholesale with st. The extracted
// baseline is kept and the listener is not notified.
func (s *Store) Restore(st State) {
	s.clear()
	st = st.Clone()
	for _, r := range st.TextRuns {
		s.putRun(r)
	}
	for _, sh := range st.Shapes {
		if !hasKey(s.shapes, sh.ID) {
			s.shapeOrder = append(s.shapeOrder, sh.ID)
		}
		s.shapes[sh.ID] = sh
	}
	for _, img := range st.Images {
		if !hasKey(s.images, img.ID) {
			s.imageOrder = append(s.imageOrder, img.ID)
		}
		s.images[img.ID] = img
	}
	for _, q := range st.QRCodes {
		if !hasKey(s.qrcodes, q.ID) {
			s.qrOrder = append(s.qrOrder, q.ID)
		}
		s.qrcodes[q.ID] = q
	}
}

// Len returns the number of overlay entries of every kind.
func (s *Store) Len() int {
	return len(s.runs) + len(s.shapes) + len(s.images) + len(s.qrcodes)
}

// String summarizes the store for logs.
func (s *Store) String() string {
	return fmt.Sprintf("overlay(runs=%d shapes=%d images=%d qrcodes=%d extracted=%d)",
		len(s.runs), len(s.shapes), len(s.images), len(s.qrcodes), len(s.extracted))
}

func hasKey[V any](m map[string]V, id string) bool {
	_, ok := m[id]
	return ok
}

func remove(order []string, id string) []string {
	if i := slices.Index(order, id); i >= 0 {
		return slices.Delete(order, i, i+1)
	}
	return order
}
