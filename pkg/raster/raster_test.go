package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/pyhub-apps/pdfedit-golang/internal/pdftest"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

type brokenBackend struct{ name string }

func (b brokenBackend) Name() string                { return b.name }
func (b brokenBackend) Init() error                 { return errors.New("no fonts") }
func (b brokenBackend) DrawText(draw.Image, TextOp) {}

type slowBackend struct{ delay time.Duration }

func (slowBackend) Name() string { return "slow" }
func (slowBackend) Init() error  { return nil }
func (b slowBackend) DrawText(draw.Image, TextOp) {
	time.Sleep(b.delay)
}

type slowClassifier struct {
	extract.HeuristicClassifier
	delay time.Duration
}

func (c slowClassifier) Classify(name string) (pdf.FontWeight, pdf.FontStyle) {
	time.Sleep(c.delay)
	return c.HeuristicClassifier.Classify(name)
}

func TestConfigure(t *testing.T) {
	b, err := Configure(brokenBackend{"primary"}, BasicBackend{})
	if err != nil {
		t.Fatal(err)
	}
	if b.Name() != "basicfont" {
		t.Errorf("backend = %s, want the fallback", b.Name())
	}

	b, err = Configure(NewFreetypeBackend(), BasicBackend{})
	if err != nil || b.Name() != "freetype" {
		t.Errorf("Configure = %v, %v", b, err)
	}

	_, err = Configure(brokenBackend{"a"}, brokenBackend{"b"})
	if err == nil || !strings.Contains(err.Error(), "a: no fonts") || !strings.Contains(err.Error(), "b: no fonts") {
		t.Errorf("err = %v", err)
	}
	if _, err := Configure(nil, nil); err == nil {
		t.Error("expected error without backends")
	}
	if _, err := New(WithBackends(brokenBackend{"a"}, nil)); err == nil {
		t.Error("New accepted an unusable backend")
	}
}

func decodePage(t *testing.T, geom pdf.PageGeometry) image.Image {
	t.Helper()
	raw, err := DecodeDataURL(geom.BackgroundImage)
	if err != nil {
		t.Fatal(err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return img
}

func hasDarkPixel(img image.Image, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray)
			if g.Y < 128 {
				return true
			}
		}
	}
	return false
}

func TestRenderInvoice(t *testing.T) {
	r, err := New(WithScale(1))
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Render(context.Background(), pdftest.Invoice())
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pages) != 1 || len(res.Warnings) != 0 || res.Degraded {
		t.Fatalf("result = %+v", res)
	}
	geom := res.Pages[0]
	if geom.PageNumber != 1 || geom.Width != 612 || geom.Height != 792 || geom.Scale != 1 ||
		geom.PDFWidth != 612 || geom.PDFHeight != 792 {
		t.Errorf("geometry = %+v", geom)
	}

	img := decodePage(t, geom)
	if img.Bounds().Dx() != 612 || img.Bounds().Dy() != 792 {
		t.Fatalf("bitmap = %v", img.Bounds())
	}
	// baseline at y = 792 - 700
	if !hasDarkPixel(img, image.Rect(72, 80, 160, 94)) {
		t.Error("no glyph pixels where the invoice text is drawn")
	}
	if hasDarkPixel(img, image.Rect(300, 300, 400, 400)) {
		t.Error("unexpected ink in an empty region")
	}
}

func TestAutoFitScale(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	data := pdftest.New().AddPage(200, 100, "").AddPage(1600, 800, "").Bytes()
	res, err := r.Render(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Pages) != 2 {
		t.Fatalf("got %d pages", len(res.Pages))
	}
	if s := res.Pages[0].Scale; s != 1.5 {
		t.Errorf("small page scale = %v, want capped 1.5", s)
	}
	if s := res.Pages[1].Scale; s != 0.5 {
		t.Errorf("large page scale = %v, want 0.5", s)
	}
	if res.Pages[1].Width != 800 || res.Pages[1].Height != 400 {
		t.Errorf("large page editor size = %vx%v", res.Pages[1].Width, res.Pages[1].Height)
	}
}

func TestPaintFills(t *testing.T) {
	r, err := New(WithBackends(BasicBackend{}, nil))
	if err != nil {
		t.Fatal(err)
	}
	tc := &pdf.TextContent{
		Width: 100, Height: 100,
		Fills: []pdf.FillRect{
			{X0: 10, Y0: 10, X1: 20, Y1: 20, Color: pdf.Black, Seq: 0},
			{X0: 15, Y0: 10, X1: 20, Y1: 20, Color: pdf.White, Seq: 1},
		},
	}
	img := r.Paint(tc, 2, false)
	if img.Bounds().Dx() != 200 {
		t.Fatalf("bitmap = %v", img.Bounds())
	}
	if got := img.RGBAAt(25, 170); got != (color.RGBA{A: 255}) {
		t.Errorf("pixel inside black fill = %v", got)
	}
	if got := img.RGBAAt(35, 170); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("pixel under later white fill = %v", got)
	}
	if got := img.RGBAAt(5, 5); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("background pixel = %v", got)
	}
}

func TestRenderLoadErrors(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	var loadErr *pdf.LoadError

	_, err = r.Render(ctx, nil)
	if !errors.As(err, &loadErr) || !errors.Is(err, pdf.ErrEmptyInput) {
		t.Errorf("empty input: %v", err)
	}

	data := pdftest.Invoice()
	_, err = r.Render(ctx, data[:len(data)/2])
	if !errors.As(err, &loadErr) {
		t.Errorf("truncated input: %v", err)
	}

	small, _ := New(WithMaxSize(16))
	_, err = small.Render(ctx, data)
	if !errors.As(err, &loadErr) || !errors.Is(err, pdf.ErrTooLarge) {
		t.Errorf("oversized input: %v", err)
	}
}

func TestTimeoutRetriesDegraded(t *testing.T) {
	r, err := New(
		WithScale(0.5),
		WithTimeout(300*time.Millisecond),
		WithBackends(slowBackend{delay: 2 * time.Second}, nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.Render(context.Background(), pdftest.Invoice())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Degraded || len(res.Pages) != 1 {
		t.Fatalf("result = %+v", res)
	}
	img := decodePage(t, res.Pages[0])
	if img.Bounds().Dx() != 306 {
		t.Errorf("degraded bitmap width = %d, want full-size 306", img.Bounds().Dx())
	}
}

func TestTimeoutAfterRetry(t *testing.T) {
	r, err := New(
		WithTimeout(50*time.Millisecond),
		WithClassifier(slowClassifier{delay: time.Second}),
	)
	if err != nil {
		t.Fatal(err)
	}
	_, err = r.Render(context.Background(), pdftest.Invoice())
	var timeout *pdf.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if !timeout.Retried || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timeout = %+v", timeout)
	}
}

func TestDataURL(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	url, err := EncodeDataURL(img)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("url = %q", url)
	}
	raw, err := DecodeDataURL(url)
	if err != nil || !bytes.HasPrefix(raw, []byte("\x89PNG")) {
		t.Errorf("decoded = %q, %v", raw[:min(len(raw), 8)], err)
	}
	if _, err := DecodeDataURL("data:image/jpeg;base64,AAAA"); err == nil {
		t.Error("accepted a non-PNG data URL")
	}
}
