package extract

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/pyhub-apps/pdfedit-golang/internal/pdftest"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

func TestHeuristicClassifier(t *testing.T) {
	tests := []struct {
		font   string
		weight pdf.FontWeight
		style  pdf.FontStyle
	}{
		{"Helvetica", pdf.FontWeightNormal, pdf.FontStyleNormal},
		{"Helvetica-Bold", pdf.FontWeightBold, pdf.FontStyleNormal},
		{"ABCDEF+Arial-BoldItalicMT", pdf.FontWeightBold, pdf.FontStyleItalic},
		{"Courier-Oblique", pdf.FontWeightNormal, pdf.FontStyleItalic},
		{"times-BOLDITALIC", pdf.FontWeightBold, pdf.FontStyleItalic},
		{"", pdf.FontWeightNormal, pdf.FontStyleNormal},
	}
	for _, tt := range tests {
		t.Run(tt.font, func(t *testing.T) {
			w, s := HeuristicClassifier{}.Classify(tt.font)
			if w != tt.weight || s != tt.style {
				t.Errorf("Classify(%q) = %s/%s, want %s/%s", tt.font, w, s, tt.weight, tt.style)
			}
		})
	}
}

func TestEstimateWidth(t *testing.T) {
	c := HeuristicClassifier{}
	if got := c.EstimateWidth("hello", "", 10); math.Abs(got-30) > 1e-9 {
		t.Errorf("EstimateWidth(hello) = %v, want 30", got)
	}
	// e + combining acute is a single grapheme.
	if got := c.EstimateWidth("é", "", 10); math.Abs(got-6) > 1e-9 {
		t.Errorf("EstimateWidth(combining) = %v, want 6", got)
	}

	m := MetricsClassifier{}
	if got := m.EstimateWidth("ii", "Helvetica", 10); math.Abs(got-4.44) > 0.01 {
		t.Errorf("core metrics width = %v, want 4.44", got)
	}
	if got := m.EstimateWidth("ii", "UnknownSans", 10); math.Abs(got-12) > 1e-9 {
		t.Errorf("fallback width = %v, want 12", got)
	}
}

func TestRunsGeometry(t *testing.T) {
	tc := &pdf.TextContent{
		PageNumber: 2,
		Width:      612,
		Height:     792,
		Items: []pdf.TextItem{
			{Str: "   ", Transform: [6]float64{12, 0, 0, 12, 0, 0}},
			{Str: "Total", Transform: [6]float64{12, 0, 0, 12, 72, 700}, FontName: "Helvetica-Bold", Color: pdf.Color{R: 200}},
		},
	}
	runs := New().Runs(tc, 1.5)
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}

	want := pdf.TextRun{
		ID:         "p2-i1",
		Text:       "Total",
		X:          108,
		Y:          120,
		Width:      5 * 12 * 0.6 * 1.5,
		Height:     18,
		FontSize:   18,
		FontName:   "Helvetica-Bold",
		FontWeight: pdf.FontWeightBold,
		FontStyle:  pdf.FontStyleNormal,
		Color:      pdf.Color{R: 200},
		PageNumber: 2,
		TextAlign:  pdf.AlignLeft,
	}
	if diff := cmp.Diff(want, runs[0], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestRotatedRun(t *testing.T) {
	// 90 degrees counter-clockwise in PDF space.
	tc := &pdf.TextContent{PageNumber: 1, Width: 612, Height: 792, Items: []pdf.TextItem{
		{Str: "Up", Transform: [6]float64{0, 10, -10, 0, 100, 100}, Width: 20},
	}}
	runs := New().Runs(tc, 1)
	if len(runs) != 1 {
		t.Fatalf("got %d runs", len(runs))
	}
	if runs[0].FontSize != 10 {
		t.Errorf("FontSize = %v, want 10", runs[0].FontSize)
	}
	if math.Abs(runs[0].Rotation+90) > 1e-9 {
		t.Errorf("Rotation = %v, want -90", runs[0].Rotation)
	}
}

func TestRotatedRunNotSplit(t *testing.T) {
	tc := &pdf.TextContent{PageNumber: 1, Width: 612, Height: 792, Items: []pdf.TextItem{
		{Str: "Up there", Transform: [6]float64{0, 10, -10, 0, 100, 100}, Width: 40},
	}}
	runs := New(WithGranularity(Word)).Runs(tc, 1)
	if len(runs) != 1 || runs[0].ID != "p1-i0" || runs[0].Text != "Up there" {
		t.Errorf("runs = %+v, want the whole item", runs)
	}
}

func TestWordGranularity(t *testing.T) {
	tc := &pdf.TextContent{PageNumber: 1, Width: 612, Height: 792, Items: []pdf.TextItem{
		{Str: "Hello  big world", Transform: [6]float64{10, 0, 0, 10, 100, 500}, Width: 160},
	}}
	runs := New(WithGranularity(Word)).Runs(tc, 1)

	type wordPos struct {
		ID         string
		Text       string
		X, Width   float64
		SpaceAfter float64
	}
	var got []wordPos
	for _, r := range runs {
		got = append(got, wordPos{r.ID, r.Text, r.X, r.Width, r.SpaceAfter})
	}
	want := []wordPos{
		{"p1-i0-w0", "Hello", 100, 50, 20},
		{"p1-i0-w1", "big", 170, 30, 10},
		{"p1-i0-w2", "world", 210, 50, 0},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("words mismatch (-want +got):\n%s", diff)
	}
}

func TestVisibleOnly(t *testing.T) {
	tc := &pdf.TextContent{
		PageNumber: 1, Width: 612, Height: 792,
		Items: []pdf.TextItem{
			{Str: "covered", Transform: [6]float64{10, 0, 0, 10, 100, 100}, Width: 40, Seq: 0},
			{Str: "on top", Transform: [6]float64{10, 0, 0, 10, 100, 100}, Width: 40, Seq: 2},
			{Str: "ghost", Transform: [6]float64{10, 0, 0, 10, 300, 300}, Width: 40, Invisible: true, Seq: 3},
		},
		Fills: []pdf.FillRect{{X0: 99, Y0: 97, X1: 141, Y1: 111, Color: pdf.White, Seq: 1}},
	}

	all := New().Runs(tc, 1)
	if len(all) != 3 {
		t.Fatalf("without filter got %d runs", len(all))
	}

	visible := New(WithVisibleOnly(true)).Runs(tc, 1)
	if len(visible) != 1 || visible[0].Text != "on top" || visible[0].ID != "p1-i1" {
		t.Fatalf("visible runs = %+v", visible)
	}
}

func TestExtractIdempotent(t *testing.T) {
	data := pdftest.New().
		AddPage(612, 792, pdftest.Text("F1", 12, 72, 700, "Invoice #1001")+pdftest.Text("F3", 10, 72, 650, "Thank you")).
		AddPage(595, 842, pdftest.Text("F2", 14, 50, 800, "Page two")).
		Bytes()

	e := New(WithScale(1))
	first, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("extraction not idempotent (-first +second):\n%s", diff)
	}

	if len(first) != 2 {
		t.Fatalf("got %d pages", len(first))
	}
	if first[0].Backend != "pdfcpu" {
		t.Errorf("backend = %q", first[0].Backend)
	}
	if first[1].Width != 595 || first[1].Height != 842 {
		t.Errorf("page 2 size = %vx%v", first[1].Width, first[1].Height)
	}

	runs := first[0].Runs
	if len(runs) != 2 {
		t.Fatalf("page 1 runs = %+v", runs)
	}
	if runs[0].ID != "p1-i0" || runs[0].Text != "Invoice #1001" {
		t.Errorf("first run = %+v", runs[0])
	}
	if math.Abs(runs[0].Y-80) > 1e-9 || runs[0].X != 72 {
		t.Errorf("first run position = (%v, %v), want (72, 80)", runs[0].X, runs[0].Y)
	}
	if runs[1].FontStyle != pdf.FontStyleItalic {
		t.Errorf("Times-Italic run style = %s", runs[1].FontStyle)
	}
	if first[1].Runs[0].ID != "p2-i0" || first[1].Runs[0].FontWeight != pdf.FontWeightBold {
		t.Errorf("page 2 run = %+v", first[1].Runs[0])
	}
}

type fakeSource struct {
	pages map[int]*pdf.TextContent
	err   error
}

func (f *fakeSource) NumPages() int { return len(f.pages) }

func (f *fakeSource) TextContent(_ context.Context, n int) (*pdf.TextContent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[n], nil
}

func TestBackendFallback(t *testing.T) {
	content := &pdf.TextContent{PageNumber: 1, Width: 100, Height: 100, Items: []pdf.TextItem{
		{Str: "fallback", Transform: [6]float64{10, 0, 0, 10, 0, 50}},
	}}
	broken := Backend{Name: "broken", Open: func([]byte) (pdf.TextContentSource, error) {
		return nil, errors.New("cannot open")
	}}
	failing := Backend{Name: "failing", Open: func([]byte) (pdf.TextContentSource, error) {
		return &fakeSource{pages: map[int]*pdf.TextContent{1: nil}, err: errors.New("bad page")}, nil
	}}
	working := Backend{Name: "working", Open: func([]byte) (pdf.TextContentSource, error) {
		return &fakeSource{pages: map[int]*pdf.TextContent{1: content}}, nil
	}}

	pages, err := New(WithBackends(broken, failing, working), WithScale(1)).Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 1 || pages[0].Backend != "working" || len(pages[0].Runs) != 1 {
		t.Fatalf("pages = %+v", pages)
	}

	pages, err = New(WithBackends(broken, failing)).Extract(context.Background(), []byte("%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if pages[0].Err == nil {
		t.Error("expected page error when every backend fails")
	}

	if _, err := New(WithBackends(broken)).Extract(context.Background(), []byte("%PDF")); err == nil {
		t.Error("expected error when no backend opens the document")
	}
	if _, err := New().Extract(context.Background(), nil); !errors.Is(err, pdf.ErrEmptyInput) {
		t.Errorf("empty input error = %v", err)
	}
}

func TestExtractTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	var opens atomic.Int32
	hang := Backend{Name: "hang", Open: func([]byte) (pdf.TextContentSource, error) {
		opens.Add(1)
		<-release
		return nil, errors.New("released")
	}}

	start := time.Now()
	_, err := New(WithTimeout(50*time.Millisecond), WithBackends(hang)).Extract(context.Background(), []byte("%PDF"))
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Extract took %v", elapsed)
	}
	var timeout *pdf.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want *pdf.TimeoutError", err)
	}
	if timeout.Op != "extract" || !timeout.Retried || timeout.After != 50*time.Millisecond {
		t.Errorf("timeout = %+v", timeout)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapping context.DeadlineExceeded", err)
	}
	if n := opens.Load(); n != 2 {
		t.Errorf("backend opened %d times, want 2", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(WithTimeout(time.Minute), WithBackends(hang)).Extract(ctx, []byte("%PDF"))
	if !errors.Is(err, context.Canceled) || errors.As(err, &timeout) {
		t.Errorf("cancelled extract err = %v, want context.Canceled", err)
	}
}

func TestGroupGlyphs(t *testing.T) {
	var glyphs []glyph
	x := 10.0
	for _, ch := range "ab" {
		glyphs = append(glyphs, glyph{font: "F", fontSize: 10, x: x, y: 100, w: 5, s: string(ch)})
		x += 5
	}
	// a gap of 4 (> a quarter em) becomes a space
	glyphs = append(glyphs, glyph{font: "F", fontSize: 10, x: x + 4, y: 100, w: 5, s: "c"})
	// next line
	glyphs = append(glyphs, glyph{font: "F", fontSize: 10, x: 10, y: 80, w: 5, s: "d"})

	items := groupGlyphs(glyphs)
	if len(items) != 2 {
		t.Fatalf("got %d items: %+v", len(items), items)
	}
	if items[0].Str != "ab c" || items[0].Width != 19 {
		t.Errorf("first item = %q width %v", items[0].Str, items[0].Width)
	}
	if items[1].Str != "d" || items[1].Transform[5] != 80 || items[1].Seq != 1 {
		t.Errorf("second item = %+v", items[1])
	}
}

func TestGlyphBackends(t *testing.T) {
	data := pdftest.Invoice()
	for _, b := range []Backend{Ledongthuc(), Dslipak()} {
		t.Run(b.Name, func(t *testing.T) {
			src, err := b.Open(data)
			if err != nil {
				t.Fatal(err)
			}
			if src.NumPages() != 1 {
				t.Fatalf("NumPages() = %d", src.NumPages())
			}
			tc, err := src.TextContent(context.Background(), 1)
			if err != nil {
				t.Fatal(err)
			}
			var text []string
			for _, item := range tc.Items {
				text = append(text, item.Str)
			}
			if joined := strings.Join(text, " "); !strings.Contains(joined, "Invoice") {
				t.Errorf("text = %q", joined)
			}
		})
	}
}
