package compose

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/pyhub-apps/pdfedit-golang/internal/pdftest"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/overlay"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

func ptr[T any](v T) *T { return &v }

// load extracts data at scale 1 into a fresh overlay store.
func load(t *testing.T, data []byte) *overlay.Store {
	t.Helper()
	pages, err := extract.New(extract.WithScale(1), extract.WithBackends(extract.PDFCPU())).
		Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	var runs []pdf.TextRun
	for _, p := range pages {
		runs = append(runs, p.Runs...)
	}
	s := overlay.New()
	s.SetExtracted(runs)
	return s
}

func export(t *testing.T, data []byte, s *overlay.Store) *Result {
	t.Helper()
	res, err := New().Export(context.Background(), Request{
		Original:  data,
		Scales:    map[int]float64{1: 1},
		State:     s.Snapshot(),
		Originals: s.Originals(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return res
}

// visibleText re-extracts data, dropping covered text.
func visibleText(t *testing.T, data []byte) []pdf.TextRun {
	t.Helper()
	pages, err := extract.New(extract.WithScale(1), extract.WithVisibleOnly(true), extract.WithBackends(extract.PDFCPU())).
		Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	var runs []pdf.TextRun
	for _, p := range pages {
		runs = append(runs, p.Runs...)
	}
	return runs
}

func overlayContent(t *testing.T, data []byte, page int) string {
	t.Helper()
	doc, err := pdf.Open(data)
	if err != nil {
		t.Fatal(err)
	}
	p, err := doc.Page(page)
	if err != nil {
		t.Fatal(err)
	}
	content, err := p.Content()
	if err != nil {
		t.Fatal(err)
	}
	s := string(content)
	i := strings.Index(s, pdf.OverlayMarker)
	if i < 0 {
		t.Fatalf("no overlay marker in page content:\n%s", s)
	}
	return s[i:]
}

func TestInvoiceReplacement(t *testing.T) {
	data := pdftest.Invoice()
	pristine := bytes.Clone(data)
	s := load(t, data)

	if !s.UpdateTextRun("p1-i0", pdf.TextRunPatch{Text: ptr("Invoice #2002")}) {
		t.Fatal("extracted run p1-i0 not found")
	}
	res := export(t, data, s)
	if res.Drawn != 1 || res.Skipped != 0 {
		t.Errorf("drawn=%d skipped=%d", res.Drawn, res.Skipped)
	}
	if !bytes.Equal(data, pristine) {
		t.Fatal("export modified the input bytes")
	}

	runs := visibleText(t, res.Bytes)
	var texts []string
	for _, r := range runs {
		texts = append(texts, r.Text)
	}
	joined := strings.Join(texts, "|")
	if !strings.Contains(joined, "Invoice #2002") {
		t.Errorf("new text missing: %q", joined)
	}
	if strings.Contains(joined, "1001") {
		t.Errorf("old text still visible: %q", joined)
	}

	// the replacement baseline sits at pageHeight - y - 0.8*height
	for _, r := range runs {
		if r.Text == "Invoice #2002" && math.Abs((792-r.Y-r.FontSize)-702.4) > 0.01 {
			t.Errorf("replacement baseline = %v, want 702.4", 792-r.Y-r.FontSize)
		}
	}

	// exporting the same state twice gives the same result
	again := export(t, data, s)
	if !bytes.Equal(visibleJoin(t, again.Bytes), visibleJoin(t, res.Bytes)) {
		t.Error("repeated export differs")
	}
}

func visibleJoin(t *testing.T, data []byte) []byte {
	var b bytes.Buffer
	for _, r := range visibleText(t, data) {
		b.WriteString(r.Text)
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func TestAddedTextPosition(t *testing.T) {
	data := pdftest.Invoice()
	s := load(t, data)
	s.AddTextRun(1, 50, 50, "Stamp")

	var stamp *pdf.TextRun
	runs := visibleText(t, export(t, data, s).Bytes)
	for i := range runs {
		if runs[i].Text == "Stamp" {
			stamp = &runs[i]
		}
	}
	if stamp == nil {
		t.Fatalf("Stamp not found in %+v", runs)
	}
	if math.Abs(stamp.X-50) > 1 || math.Abs(stamp.Y-46.8) > 1 {
		t.Errorf("Stamp at (%v, %v), want near (50, 46.8)", stamp.X, stamp.Y)
	}
	if stamp.FontSize != 16 {
		t.Errorf("Stamp size = %v", stamp.FontSize)
	}
	// the untouched original is still there
	if runs[0].Text != "Invoice #1001" {
		t.Errorf("first run = %q", runs[0].Text)
	}
}

func TestTextStyling(t *testing.T) {
	// "Stamp" in 16pt Helvetica is 46.24pt wide; its baseline sits at
	// 792 - 100 - 0.8*16 = 679.2.
	tests := []struct {
		name  string
		patch pdf.TextRunPatch
		want  []string
		skip  []string
	}{
		{
			name:  "left",
			patch: pdf.TextRunPatch{},
			want:  []string{"1 0 0 1 300 679.2 cm\n", "0 0 Td\n"},
			skip:  []string{" gs\n", " re\n"},
		},
		{
			name:  "center",
			patch: pdf.TextRunPatch{TextAlign: ptr(pdf.AlignCenter)},
			want:  []string{"-23.12 0 Td\n"},
		},
		{
			name:  "right",
			patch: pdf.TextRunPatch{TextAlign: ptr(pdf.AlignRight)},
			want:  []string{"-46.24 0 Td\n"},
		},
		{
			name:  "underline",
			patch: pdf.TextRunPatch{Underline: ptr(true)},
			want:  []string{"ET\n0 -1.92 46.24 0.8 re\nf\nQ\n"},
		},
		{
			name:  "underline follows alignment",
			patch: pdf.TextRunPatch{TextAlign: ptr(pdf.AlignRight), Underline: ptr(true)},
			want:  []string{"ET\n-46.24 -1.92 46.24 0.8 re\nf\n"},
		},
		{
			name:  "rotation",
			patch: pdf.TextRunPatch{Rotation: ptr(90.0)},
			want:  []string{"0 -1 1 0 300 679.2 cm\n"},
		},
		{
			name:  "opacity",
			patch: pdf.TextRunPatch{Opacity: ptr(0.5)},
			want:  []string{"q\n/PEGS1 gs\n1 0 0 1 300 679.2 cm\n"},
		},
		{
			name:  "opaque",
			patch: pdf.TextRunPatch{Opacity: ptr(1.0)},
			skip:  []string{" gs\n"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := pdftest.Invoice()
			s := load(t, data)
			id := s.AddTextRun(1, 300, 100, "Stamp")
			s.UpdateTextRun(id, tt.patch)

			content := overlayContent(t, export(t, data, s).Bytes, 1)
			for _, want := range tt.want {
				if !strings.Contains(content, want) {
					t.Errorf("overlay content lacks %q:\n%s", want, content)
				}
			}
			for _, skip := range tt.skip {
				if strings.Contains(content, skip) {
					t.Errorf("overlay content has %q:\n%s", skip, content)
				}
			}
		})
	}
}

func TestCoversPrecedeText(t *testing.T) {
	data := pdftest.SinglePage(
		pdftest.Text("F1", 12, 72, 700, "First line") +
			pdftest.Text("F2", 12, 72, 680, "Second line"))
	s := load(t, data)
	s.UpdateTextRun("p1-i0", pdf.TextRunPatch{Text: ptr("1st")})
	s.UpdateTextRun("p1-i1", pdf.TextRunPatch{Text: ptr("2nd"), Y: ptr(100.0)})

	out := export(t, data, s).Bytes
	content := overlayContent(t, out, 1)
	bt := strings.Index(content, "BT")
	if bt < 0 {
		t.Fatalf("no text in overlay:\n%s", content)
	}
	if n := strings.Count(content[:bt], " re\nf\n"); n != 2 {
		t.Errorf("%d covers before the first text object, want 2:\n%s", n, content)
	}
	if strings.Contains(content[bt:], " re\nf\n") {
		t.Errorf("cover drawn after text:\n%s", content)
	}
	if !strings.Contains(content, "/Helvetica-Bold") && !strings.Contains(content, "/PEF2") {
		t.Errorf("bold run not set in a second font:\n%s", content)
	}

	var texts []string
	for _, r := range visibleText(t, out) {
		texts = append(texts, r.Text)
	}
	if got := strings.Join(texts, ","); got != "1st,2nd" {
		t.Errorf("visible text = %q", got)
	}
}

func TestDeletedRunIsCovered(t *testing.T) {
	data := pdftest.Invoice()
	s := load(t, data)
	s.DeleteElement("p1-i0")

	res := export(t, data, s)
	if res.Drawn != 0 {
		t.Errorf("drawn = %d", res.Drawn)
	}
	if runs := visibleText(t, res.Bytes); len(runs) != 0 {
		t.Errorf("deleted text still visible: %+v", runs)
	}
}

func TestUnchangedRunNotRedrawn(t *testing.T) {
	data := pdftest.Invoice()
	s := load(t, data)
	// an edit that restores the original appearance
	s.UpdateTextRun("p1-i0", pdf.TextRunPatch{Text: ptr("Invoice #1001")})

	res := export(t, data, s)
	if res.Drawn != 0 {
		t.Errorf("drawn = %d", res.Drawn)
	}
	if strings.Contains(overlayContent(t, res.Bytes, 1), " re\n") {
		t.Error("cover drawn for an unchanged run")
	}
}

func pngDataURL(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.NRGBA{R: 200, A: uint8(64*(x+1) - 1)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestShapesImagesAndQRCodes(t *testing.T) {
	data := pdftest.Invoice()
	pristine := bytes.Clone(data)
	s := load(t, data)

	red := pdf.Color{R: 255}
	s.AddShape(pdf.ShapeElement{PageNumber: 1, Kind: pdf.ShapeRectangle, X: 10, Y: 10, Width: 100, Height: 50, Fill: &red})
	s.AddShape(pdf.ShapeElement{PageNumber: 1, Kind: pdf.ShapeEllipse, X: 200, Y: 10, Width: 80, Height: 40, Stroke: &red, StrokeWidth: 2, Rotation: 30})
	s.AddShape(pdf.ShapeElement{PageNumber: 1, Kind: pdf.ShapeLine, X: 10, Y: 300, Width: 200, Height: 0, Opacity: 0.5})
	s.AddImage(pdf.ImageElement{PageNumber: 1, X: 300, Y: 300, Width: 40, Height: 40, Src: pngDataURL(t)})
	s.AddQRCode(pdf.QRPlaceholder{PageNumber: 1, X: 400, Y: 400, Size: 100, Content: "https://example.com", Background: &pdf.White})
	s.AddImage(pdf.ImageElement{PageNumber: 1, X: 0, Y: 0, Width: 10, Height: 10, Src: "not an image"})
	s.AddShape(pdf.ShapeElement{PageNumber: 1, Kind: "star", Width: 5, Height: 5})
	s.AddTextRun(9, 0, 0, "page nine")

	res := export(t, data, s)
	if res.Drawn != 5 || res.Skipped != 3 {
		t.Errorf("drawn=%d skipped=%d, want 5 and 3", res.Drawn, res.Skipped)
	}
	if !bytes.Equal(data, pristine) {
		t.Fatal("export modified the input bytes")
	}

	content := overlayContent(t, res.Bytes, 1)
	for _, want := range []string{
		"1 0 0 rg\n10 732 100 50 re\nf\n",
		" c\n",
		"/PEGS1 gs",
		"/PEIm1 Do",
		"40 0 0 40 300 452 cm",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("overlay content lacks %q:\n%s", want, content)
		}
	}

	// the original text is neither covered nor redrawn
	runs := visibleText(t, res.Bytes)
	if len(runs) != 1 || runs[0].Text != "Invoice #1001" {
		t.Errorf("visible runs = %+v", runs)
	}
}

func TestZIndexOrder(t *testing.T) {
	data := pdftest.Invoice()
	s := load(t, data)
	blue := pdf.Color{B: 255}
	green := pdf.Color{G: 255}
	top := s.AddShape(pdf.ShapeElement{PageNumber: 1, X: 0, Y: 0, Width: 10, Height: 10, Fill: &blue})
	s.UpdateShape(top, func(sh *pdf.ShapeElement) { sh.ZIndex = 5 })
	s.AddShape(pdf.ShapeElement{PageNumber: 1, X: 0, Y: 0, Width: 10, Height: 10, Fill: &green})

	content := overlayContent(t, export(t, data, s).Bytes, 1)
	g := strings.Index(content, "0 1 0 rg")
	b := strings.Index(content, "0 0 1 rg")
	if g < 0 || b < 0 || g > b {
		t.Errorf("green (z=0) should precede blue (z=5):\n%s", content)
	}
}

func TestExportErrors(t *testing.T) {
	_, err := New().Export(context.Background(), Request{Original: []byte("not a pdf")})
	var exportErr *pdf.ExportError
	if !errors.As(err, &exportErr) {
		t.Errorf("err = %v, want ExportError", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := overlay.New()
	s.AddTextRun(1, 0, 0, "x")
	_, err = New().Export(ctx, Request{Original: pdftest.Invoice(), State: s.Snapshot()})
	if !errors.As(err, &exportErr) || !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled export err = %v", err)
	}
}

func TestStandardFont(t *testing.T) {
	tests := []struct {
		name   string
		weight pdf.FontWeight
		style  pdf.FontStyle
		want   string
	}{
		{"Helvetica", pdf.FontWeightNormal, pdf.FontStyleNormal, "Helvetica"},
		{"ArialMT", pdf.FontWeightBold, pdf.FontStyleNormal, "Helvetica-Bold"},
		{"Times-Roman", pdf.FontWeightNormal, pdf.FontStyleItalic, "Times-Italic"},
		{"NotoSerif", pdf.FontWeightBold, pdf.FontStyleItalic, "Times-BoldItalic"},
		{"NotoSans", pdf.FontWeightNormal, pdf.FontStyleNormal, "Helvetica"},
		{"Courier", pdf.FontWeightBold, pdf.FontStyleItalic, "Courier-BoldOblique"},
		{"JetBrainsMono", pdf.FontWeightNormal, pdf.FontStyleItalic, "Courier-Oblique"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StandardFont(tt.name, tt.weight, tt.style); got != tt.want {
				t.Errorf("StandardFont = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeWinAnsi(t *testing.T) {
	got, missing := encodeWinAnsi("Aé€✓")
	if got != "<41E9803F>" || missing != 1 {
		t.Errorf("encodeWinAnsi = %s, %d", got, missing)
	}
}
