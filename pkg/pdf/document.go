package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/pyhub-apps/pdfedit-golang/pkg/coords"
)

var configDirOnce sync.Once

// Configuration returns the pdfcpu configuration used to read and write
// documents. pdfcpu's on-disk config directory is disabled on first use.
func Configuration() *model.Configuration {
	configDirOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false
	return conf
}

// ReadContext parses and validates data into a pdfcpu context. Panics raised
// by the parser on malformed input are returned as errors.
func ReadContext(data []byte) (ctx *model.Context, err error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	defer func() {
		if r := recover(); r != nil {
			ctx, err = nil, fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()

	ctx, err = api.ReadContext(bytes.NewReader(data), Configuration())
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, fmt.Errorf("invalid PDF: %w", err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("document has no pages")
	}
	return ctx, nil
}

// Document is a parsed PDF backed by a pdfcpu context.
type Document struct {
	ctx *model.Context
}

// Open parses a PDF held in memory.
func Open(data []byte) (*Document, error) {
	ctx, err := ReadContext(data)
	if err != nil {
		return nil, err
	}
	return &Document{ctx: ctx}, nil
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	return d.ctx.PageCount
}

// Context exposes the underlying pdfcpu context.
func (d *Document) Context() *model.Context {
	return d.ctx
}

// Page is one page of a Document.
type Page struct {
	Number int
	// Box is the MediaBox with its lower-left corner in X,Y.
	Box      coords.Rect
	Rotation int

	doc       *Document
	dict      types.Dict
	resDict   types.Dict
	resources *Resources
}

// Page returns page n (1-based).
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > d.ctx.PageCount {
		return nil, fmt.Errorf("page number %d out of range [1, %d]", n, d.ctx.PageCount)
	}

	pageDict, _, attrs, err := d.ctx.PageDict(n, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get page dict: %w", err)
	}
	if pageDict == nil {
		return nil, fmt.Errorf("page %d not found", n)
	}

	p := &Page{
		Number: n,
		Box:    coords.Rect{Width: 612, Height: 792},
		doc:    d,
		dict:   pageDict,
	}
	var resDict types.Dict
	if attrs != nil {
		if attrs.MediaBox != nil {
			mb := attrs.MediaBox
			p.Box = coords.Rect{X: mb.LL.X, Y: mb.LL.Y, Width: mb.Width(), Height: mb.Height()}
		}
		p.Rotation = attrs.Rotate
		resDict = attrs.Resources
	}
	if resDict == nil {
		resDict, _ = d.ctx.DereferenceDict(pageDict["Resources"])
	}
	p.resDict = resDict
	p.resources = d.newResources(resDict)
	return p, nil
}

// Width returns the page box width in PDF units.
func (p *Page) Width() float64 { return p.Box.Width }

// Height returns the page box height in PDF units.
func (p *Page) Height() float64 { return p.Box.Height }

// Resources returns the page's resource dictionary.
func (p *Page) Resources() *Resources { return p.resources }

// Content returns the page's content streams, decoded and concatenated.
func (p *Page) Content() ([]byte, error) {
	contents, err := p.doc.ctx.Dereference(p.dict["Contents"])
	if err != nil {
		return nil, fmt.Errorf("failed to dereference content: %w", err)
	}
	if contents == nil {
		return nil, nil
	}

	var streams [][]byte
	switch v := contents.(type) {
	case types.Array:
		for i, item := range v {
			data, err := p.doc.streamContent(item)
			if err != nil {
				return nil, fmt.Errorf("content stream %d: %w", i, err)
			}
			streams = append(streams, data)
		}
	default:
		data, err := p.doc.streamContent(p.dict["Contents"])
		if err != nil {
			return nil, err
		}
		streams = append(streams, data)
	}
	return combineContentStreams(streams), nil
}

func (d *Document) streamContent(o types.Object) ([]byte, error) {
	sd, _, err := d.ctx.DereferenceStreamDict(o)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference stream: %w", err)
	}
	if sd == nil {
		return nil, nil
	}
	return decodeStream(sd)
}

func decodeStream(sd *types.StreamDict) ([]byte, error) {
	if len(sd.Content) > 0 {
		return sd.Content, nil
	}
	if err := sd.Decode(); err != nil {
		return nil, fmt.Errorf("failed to decode stream: %w", err)
	}
	return sd.Content, nil
}

func combineContentStreams(streams [][]byte) []byte {
	var combined []byte
	for _, s := range streams {
		combined = append(combined, s...)
		combined = append(combined, '\n')
	}
	return combined
}

// Resources resolves fonts and form XObjects by resource name.
type Resources struct {
	doc   *Document
	dict  types.Dict
	fonts map[string]*Font
}

func (d *Document) newResources(dict types.Dict) *Resources {
	return &Resources{doc: d, dict: dict, fonts: make(map[string]*Font)}
}

func (r *Resources) subDict(key string) types.Dict {
	if r == nil || r.dict == nil {
		return nil
	}
	d, err := r.doc.ctx.DereferenceDict(r.dict[key])
	if err != nil {
		return nil
	}
	return d
}

// Font returns the font registered under name, or nil.
func (r *Resources) Font(name string) *Font {
	if r == nil {
		return nil
	}
	if f, ok := r.fonts[name]; ok {
		return f
	}
	var f *Font
	if fonts := r.subDict("Font"); fonts != nil {
		if obj, ok := fonts[name]; ok {
			f, _ = r.doc.loadFont(name, obj)
		}
	}
	r.fonts[name] = f
	return f
}

// Form is a form XObject ready for interpretation.
type Form struct {
	Content []byte
	Matrix  coords.Matrix
	// Resources is nil when the form inherits its parent's resources.
	Resources *Resources
}

// Form returns the form XObject registered under name. It returns nil, nil
// when name refers to an image or is missing.
func (r *Resources) Form(name string) (*Form, error) {
	xobjects := r.subDict("XObject")
	if xobjects == nil {
		return nil, nil
	}
	obj, ok := xobjects[name]
	if !ok {
		return nil, nil
	}
	sd, _, err := r.doc.ctx.DereferenceStreamDict(obj)
	if err != nil {
		return nil, fmt.Errorf("xobject %s: %w", name, err)
	}
	if sd == nil || nameOf(sd.Dict["Subtype"]) != "Form" {
		return nil, nil
	}

	content, err := decodeStream(sd)
	if err != nil {
		return nil, fmt.Errorf("xobject %s: %w", name, err)
	}
	form := &Form{Content: content, Matrix: coords.Identity()}
	if arr, err := r.doc.ctx.DereferenceArray(sd.Dict["Matrix"]); err == nil && len(arr) == 6 {
		var m [6]float64
		for i := range m {
			m[i], _ = r.doc.number(arr[i])
		}
		form.Matrix = coords.Matrix{A: m[0], B: m[1], C: m[2], D: m[3], E: m[4], F: m[5]}
	}
	if res, err := r.doc.ctx.DereferenceDict(sd.Dict["Resources"]); err == nil && res != nil {
		form.Resources = r.doc.newResources(res)
	}
	return form, nil
}

func (d *Document) number(o types.Object) (float64, bool) {
	o, err := d.ctx.Dereference(o)
	if err != nil {
		return 0, false
	}
	switch v := o.(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func nameOf(o types.Object) string {
	if n, ok := o.(types.Name); ok {
		return string(n)
	}
	return ""
}

// Font is a decoded font resource.
type Font struct {
	// Name is the resource name (F1), BaseFont the PostScript name.
	Name     string
	BaseFont string
	Subtype  string
	Encoding string

	ToUnicode *ToUnicodeCMap

	FirstChar    int
	Widths       []float64
	MissingWidth float64

	// Composite fonts.
	DefaultWidth float64
	cidWidths    map[uint32]float64

	differences map[byte]rune
}

func (d *Document) loadFont(name string, o types.Object) (*Font, error) {
	fd, err := d.ctx.DereferenceDict(o)
	if err != nil {
		return nil, fmt.Errorf("font %s: %w", name, err)
	}
	if fd == nil {
		return nil, fmt.Errorf("font %s: not a dictionary", name)
	}

	f := &Font{
		Name:         name,
		BaseFont:     nameOf(fd["BaseFont"]),
		Subtype:      nameOf(fd["Subtype"]),
		DefaultWidth: 1000,
	}

	if enc, err := d.ctx.Dereference(fd["Encoding"]); err == nil {
		switch v := enc.(type) {
		case types.Name:
			f.Encoding = string(v)
		case types.Dict:
			f.Encoding = nameOf(v["BaseEncoding"])
			f.differences = d.differences(v["Differences"])
		}
	}

	if fd["ToUnicode"] != nil {
		if data, err := d.streamContent(fd["ToUnicode"]); err == nil && len(data) > 0 {
			if cmap, err := ParseToUnicodeCMap(data); err == nil {
				f.ToUnicode = cmap
			}
		}
	}

	if fc, ok := d.number(fd["FirstChar"]); ok {
		f.FirstChar = int(fc)
	}
	if arr, err := d.ctx.DereferenceArray(fd["Widths"]); err == nil {
		for _, w := range arr {
			v, _ := d.number(w)
			f.Widths = append(f.Widths, v)
		}
	}
	if desc, err := d.ctx.DereferenceDict(fd["FontDescriptor"]); err == nil && desc != nil {
		f.MissingWidth, _ = d.number(desc["MissingWidth"])
	}

	if f.Subtype == "Type0" {
		if arr, err := d.ctx.DereferenceArray(fd["DescendantFonts"]); err == nil && len(arr) > 0 {
			if desc, err := d.ctx.DereferenceDict(arr[0]); err == nil && desc != nil {
				if dw, ok := d.number(desc["DW"]); ok {
					f.DefaultWidth = dw
				}
				f.cidWidths = d.cidWidths(desc["W"])
			}
		}
	}
	return f, nil
}

// differences reads an /Encoding /Differences array.
func (d *Document) differences(o types.Object) map[byte]rune {
	arr, err := d.ctx.DereferenceArray(o)
	if err != nil || len(arr) == 0 {
		return nil
	}
	m := make(map[byte]rune)
	code := 0
	for _, item := range arr {
		if n, ok := d.number(item); ok {
			code = int(n)
			continue
		}
		if name := nameOf(item); name != "" {
			if r, ok := glyphRune(name); ok && code >= 0 && code < 256 {
				m[byte(code)] = r
			}
			code++
		}
	}
	return m
}

// cidWidths reads a CIDFont /W array: c [w1 w2 ...] or cFirst cLast w.
func (d *Document) cidWidths(o types.Object) map[uint32]float64 {
	arr, err := d.ctx.DereferenceArray(o)
	if err != nil {
		return nil
	}
	m := make(map[uint32]float64)
	for i := 0; i < len(arr); {
		first, ok := d.number(arr[i])
		if !ok || i+1 >= len(arr) {
			break
		}
		if list, err := d.ctx.DereferenceArray(arr[i+1]); err == nil && list != nil {
			for j, w := range list {
				v, _ := d.number(w)
				m[uint32(first)+uint32(j)] = v
			}
			i += 2
			continue
		}
		if i+2 >= len(arr) {
			break
		}
		last, _ := d.number(arr[i+1])
		w, _ := d.number(arr[i+2])
		for c := uint32(first); c <= uint32(last); c++ {
			m[c] = w
		}
		i += 3
	}
	return m
}

var namedGlyphs = map[string]rune{
	"space": ' ', "exclam": '!', "quotedbl": '"', "numbersign": '#', "dollar": '$',
	"percent": '%', "ampersand": '&', "quotesingle": '\'', "parenleft": '(', "parenright": ')',
	"asterisk": '*', "plus": '+', "comma": ',', "hyphen": '-', "period": '.', "slash": '/',
	"zero": '0', "one": '1', "two": '2', "three": '3', "four": '4',
	"five": '5', "six": '6', "seven": '7', "eight": '8', "nine": '9',
	"colon": ':', "semicolon": ';', "less": '<', "equal": '=', "greater": '>', "question": '?',
	"at": '@', "bracketleft": '[', "backslash": '\\', "bracketright": ']', "underscore": '_',
	"quoteleft": '‘', "quoteright": '’', "quotedblleft": '“', "quotedblright": '”',
	"endash": '–', "emdash": '—', "bullet": '•', "fi": 'ﬁ', "fl": 'ﬂ',
}

func glyphRune(name string) (rune, bool) {
	if r, ok := namedGlyphs[name]; ok {
		return r, true
	}
	if len(name) == 1 {
		return rune(name[0]), true
	}
	if strings.HasPrefix(name, "uni") && len(name) == 7 {
		if v, err := strconv.ParseUint(name[3:], 16, 32); err == nil {
			return rune(v), true
		}
	}
	return 0, false
}
