package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// OverlayMarker is the comment line that starts appended overlay content.
const OverlayMarker = "% pdfedit overlay"

// Resource name prefixes used by page overlays.
const (
	FontResourcePrefix   = "PEF"
	GStateResourcePrefix = "PEGS"
	ImageResourcePrefix  = "PEIm"
)

// ImageData is an 8-bit DeviceRGB raster with an optional DeviceGray alpha
// channel of the same size.
type ImageData struct {
	Width, Height int
	RGB           []byte
	Alpha         []byte
}

// PageOverlay collects content and resources painted on top of a page. The
// page is only modified by Apply.
type PageOverlay struct {
	page   *Page
	res    types.Dict
	subs   map[string]types.Dict
	fonts  map[string]string
	states map[float64]string
}

// NewOverlay starts an overlay on p. Existing resources are copied, never
// modified in place.
func (p *Page) NewOverlay() *PageOverlay {
	res := types.Dict{}
	for k, v := range p.resDict {
		res[k] = v
	}
	return &PageOverlay{
		page:   p,
		res:    res,
		subs:   make(map[string]types.Dict),
		fonts:  make(map[string]string),
		states: make(map[float64]string),
	}
}

func (o *PageOverlay) sub(key string) types.Dict {
	if d, ok := o.subs[key]; ok {
		return d
	}
	d := types.Dict{}
	if existing, err := o.page.doc.ctx.DereferenceDict(o.res[key]); err == nil {
		for k, v := range existing {
			d[k] = v
		}
	}
	o.res[key] = d
	o.subs[key] = d
	return d
}

func (o *PageOverlay) register(key, prefix string, obj types.Object) string {
	d := o.sub(key)
	for i := 1; ; i++ {
		name := prefix + strconv.Itoa(i)
		if _, taken := d[name]; !taken {
			d[name] = obj
			return name
		}
	}
}

// StandardFont registers one of the standard 14 fonts with WinAnsi encoding
// and returns its resource name.
func (o *PageOverlay) StandardFont(baseFont string) string {
	if name, ok := o.fonts[baseFont]; ok {
		return name
	}
	dict := types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(baseFont),
	}
	if baseFont != "Symbol" && baseFont != "ZapfDingbats" {
		dict["Encoding"] = types.Name("WinAnsiEncoding")
	}
	name := o.register("Font", FontResourcePrefix, dict)
	o.fonts[baseFont] = name
	return name
}

// Alpha registers a graphics state with constant fill and stroke alpha and
// returns its resource name.
func (o *PageOverlay) Alpha(alpha float64) string {
	if name, ok := o.states[alpha]; ok {
		return name
	}
	dict := types.Dict{
		"Type": types.Name("ExtGState"),
		"ca":   types.Float(alpha),
		"CA":   types.Float(alpha),
	}
	name := o.register("ExtGState", GStateResourcePrefix, dict)
	o.states[alpha] = name
	return name
}

// Image registers img as an image XObject and returns its resource name.
func (o *PageOverlay) Image(img ImageData) (string, error) {
	if img.Width <= 0 || img.Height <= 0 || len(img.RGB) != img.Width*img.Height*3 {
		return "", fmt.Errorf("invalid image data %dx%d with %d bytes", img.Width, img.Height, len(img.RGB))
	}
	ctx := o.page.doc.ctx

	sd, err := ctx.NewStreamDictForBuf(img.RGB)
	if err != nil {
		return "", err
	}
	sd.Dict["Type"] = types.Name("XObject")
	sd.Dict["Subtype"] = types.Name("Image")
	sd.Dict["Width"] = types.Integer(img.Width)
	sd.Dict["Height"] = types.Integer(img.Height)
	sd.Dict["ColorSpace"] = types.Name("DeviceRGB")
	sd.Dict["BitsPerComponent"] = types.Integer(8)

	if img.Alpha != nil {
		if len(img.Alpha) != img.Width*img.Height {
			return "", fmt.Errorf("alpha channel has %d bytes, want %d", len(img.Alpha), img.Width*img.Height)
		}
		mask, err := ctx.NewStreamDictForBuf(img.Alpha)
		if err != nil {
			return "", err
		}
		mask.Dict["Type"] = types.Name("XObject")
		mask.Dict["Subtype"] = types.Name("Image")
		mask.Dict["Width"] = types.Integer(img.Width)
		mask.Dict["Height"] = types.Integer(img.Height)
		mask.Dict["ColorSpace"] = types.Name("DeviceGray")
		mask.Dict["BitsPerComponent"] = types.Integer(8)
		if err := mask.Encode(); err != nil {
			return "", fmt.Errorf("failed to encode soft mask: %w", err)
		}
		ref, err := ctx.IndRefForNewObject(*mask)
		if err != nil {
			return "", err
		}
		sd.Dict["SMask"] = *ref
	}

	if err := sd.Encode(); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	ref, err := ctx.IndRefForNewObject(*sd)
	if err != nil {
		return "", err
	}
	return o.register("XObject", ImageResourcePrefix, *ref), nil
}

// Apply wraps the page's existing content in q/Q, appends content after
// OverlayMarker and installs the extended resources.
func (o *PageOverlay) Apply(content []byte) error {
	ctx := o.page.doc.ctx
	dict := o.page.dict

	newStream := func(data []byte) (types.IndirectRef, error) {
		sd, err := ctx.NewStreamDictForBuf(data)
		if err != nil {
			return types.IndirectRef{}, err
		}
		if err := sd.Encode(); err != nil {
			return types.IndirectRef{}, err
		}
		ref, err := ctx.IndRefForNewObject(*sd)
		if err != nil {
			return types.IndirectRef{}, err
		}
		return *ref, nil
	}

	prefix, err := newStream([]byte("q\n"))
	if err != nil {
		return fmt.Errorf("failed to create content prefix: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("\nQ\n")
	buf.WriteString(OverlayMarker)
	buf.WriteString("\n")
	buf.Write(content)
	suffix, err := newStream(buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to create overlay content: %w", err)
	}

	contents := types.Array{prefix}
	existing, err := ctx.Dereference(dict["Contents"])
	if err != nil {
		return fmt.Errorf("failed to dereference content: %w", err)
	}
	switch v := existing.(type) {
	case nil:
	case types.Array:
		contents = append(contents, v...)
	default:
		contents = append(contents, dict["Contents"])
	}
	contents = append(contents, suffix)

	dict["Contents"] = contents
	dict["Resources"] = o.res
	return nil
}

// Write serializes the document.
func (d *Document) Write(w io.Writer) error {
	if err := api.WriteContext(d.ctx, w); err != nil {
		return fmt.Errorf("failed to write PDF: %w", err)
	}
	return nil
}
