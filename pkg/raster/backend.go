package raster

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// TextOp is one string to paint. X and Y are the baseline origin in device
// pixels; Size is the em size in pixels.
type TextOp struct {
	X, Y   float64
	Size   float64
	Text   string
	Weight pdf.FontWeight
	Style  pdf.FontStyle
	Color  color.Color
}

// Backend paints glyphs onto a page bitmap.
type Backend interface {
	Name() string
	// Init prepares the backend. It is called once by Configure.
	Init() error
	DrawText(dst draw.Image, op TextOp)
}

// Configure initializes primary, falling back to fallback when primary fails
// to initialize. It fails when neither can be initialized.
func Configure(primary, fallback Backend) (Backend, error) {
	var errs []error
	for _, b := range []Backend{primary, fallback} {
		if b == nil {
			continue
		}
		err := b.Init()
		if err == nil {
			return b, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no raster backend configured")
	}
	return nil, fmt.Errorf("raster backend initialization failed: %w", errors.Join(errs...))
}

type faceKey struct {
	weight pdf.FontWeight
	style  pdf.FontStyle
}

// FreetypeBackend draws with the Go font family through freetype.
type FreetypeBackend struct {
	fonts map[faceKey]*truetype.Font
}

// NewFreetypeBackend returns an uninitialized FreetypeBackend.
func NewFreetypeBackend() *FreetypeBackend {
	return &FreetypeBackend{}
}

func (b *FreetypeBackend) Name() string { return "freetype" }

// Init parses the four Go font faces.
func (b *FreetypeBackend) Init() error {
	sources := map[faceKey][]byte{
		{pdf.FontWeightNormal, pdf.FontStyleNormal}: goregular.TTF,
		{pdf.FontWeightBold, pdf.FontStyleNormal}:   gobold.TTF,
		{pdf.FontWeightNormal, pdf.FontStyleItalic}: goitalic.TTF,
		{pdf.FontWeightBold, pdf.FontStyleItalic}:   gobolditalic.TTF,
	}
	fonts := make(map[faceKey]*truetype.Font, len(sources))
	for key, ttf := range sources {
		f, err := truetype.Parse(ttf)
		if err != nil {
			return fmt.Errorf("failed to parse %s/%s face: %w", key.weight, key.style, err)
		}
		fonts[key] = f
	}
	b.fonts = fonts
	return nil
}

func (b *FreetypeBackend) DrawText(dst draw.Image, op TextOp) {
	f := b.fonts[faceKey{op.Weight, op.Style}]
	if f == nil {
		f = b.fonts[faceKey{pdf.FontWeightNormal, pdf.FontStyleNormal}]
	}
	if f == nil || op.Size <= 0 {
		return
	}
	face := truetype.NewFace(f, &truetype.Options{Size: op.Size, DPI: 72, Hinting: font.HintingNone})
	defer face.Close()
	drawString(dst, face, op)
}

// BasicBackend draws with the fixed 7x13 bitmap face regardless of size.
type BasicBackend struct{}

func (BasicBackend) Name() string { return "basicfont" }
func (BasicBackend) Init() error  { return nil }

func (BasicBackend) DrawText(dst draw.Image, op TextOp) {
	drawString(dst, basicfont.Face7x13, op)
}

func drawString(dst draw.Image, face font.Face, op TextOp) {
	c := op.Color
	if c == nil {
		c = color.Black
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(op.X * 64), Y: fixed.Int26_6(op.Y * 64)},
	}
	d.DrawString(op.Text)
}
