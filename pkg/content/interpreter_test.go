package content

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/pyhub-apps/pdfedit-golang/internal/pdftest"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

func TestLexer(t *testing.T) {
	data := []byte("/F1 12 Tf [(A\\(b\\)) -250 <4243>] TJ % comment\n1 0 0 1 5.5 -.5 cm true")
	var got []interface{}
	lexer := NewLexer(data)
	for {
		tok, err := lexer.Next()
		if err != nil {
			break
		}
		got = append(got, tok.Value)
	}

	want := []interface{}{
		Name("F1"), 12.0, "Tf",
		[]interface{}{[]byte("A(b)"), -250.0, []byte("BC")}, "TJ",
		1.0, 0.0, 0.0, 1.0, 5.5, -0.5, "cm",
		true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestLexerSkipsInlineImage(t *testing.T) {
	data := []byte("BI /W 1 /H 1 /BPC 8 ID \x00\xffEI\x01 EI BT /F1 10 Tf (after) Tj ET")
	items, _, err := InterpretContent(context.Background(), data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Str != "after" {
		t.Fatalf("items = %+v", items)
	}
}

func TestUnescape(t *testing.T) {
	tests := map[string]string{
		`a\nb`:      "a\nb",
		`\101\102`:  "AB",
		`x\\y`:      `x\y`,
		"line\\\nc": "linec",
	}
	for in, want := range tests {
		if got := string(unescape([]byte(in))); got != want {
			t.Errorf("unescape(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTextTransform(t *testing.T) {
	data := []byte(`
		q 2 0 0 2 10 20 cm
		BT /F1 10 Tf 1 0 0 1 5 6 Tm 0.5 0 0 rg (Hi) Tj ET
		Q`)
	items, _, err := InterpretContent(context.Background(), data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	want := [6]float64{20, 0, 0, 20, 20, 32}
	if diff := cmp.Diff(want, items[0].Transform, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("transform mismatch (-want +got):\n%s", diff)
	}
	if items[0].FontSize() != 20 {
		t.Errorf("FontSize() = %v", items[0].FontSize())
	}
	if items[0].Color != (pdf.Color{R: 128}) {
		t.Errorf("color = %+v", items[0].Color)
	}
	if items[0].Width != 0 {
		t.Errorf("width without metrics = %v, want 0", items[0].Width)
	}
}

func TestTJKerningInsertsSpace(t *testing.T) {
	data := []byte(`BT /F1 10 Tf 0 0 Td [(Hello) -400 (World) -20 (!)] TJ (next) Tj ET`)
	items, _, err := InterpretContent(context.Background(), data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].Str != "Hello World!" {
		t.Errorf("TJ text = %q", items[0].Str)
	}
	// 11 glyphs at 0.6em plus 4.2 of adjustments.
	if x := items[1].Transform[4]; math.Abs(x-(11*6+4.2)) > 1e-9 {
		t.Errorf("next item x = %v", x)
	}
	if items[0].Seq >= items[1].Seq {
		t.Error("sequence numbers must increase")
	}
}

func TestInvisibleText(t *testing.T) {
	data := []byte(`BT /F1 10 Tf 3 Tr (hidden) Tj 0 Tr (shown) Tj ET`)
	items, _, err := InterpretContent(context.Background(), data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || !items[0].Invisible || items[1].Invisible {
		t.Fatalf("items = %+v", items)
	}
}

func TestFillRects(t *testing.T) {
	data := []byte(`
		1 g 10 20 30 40 re f
		0 0 1 rg 100 100 m 150 100 l 150 120 l 100 120 l h f
		0 g 0 0 m 10 0 l 5 10 l h f
		200 200 50 50 re S
		300 300 m 310 300 310 310 300 310 c f`)
	_, fills, err := InterpretContent(context.Background(), data, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []pdf.FillRect{
		{X0: 10, Y0: 20, X1: 40, Y1: 60, Color: pdf.White, Seq: 0},
		{X0: 100, Y0: 100, X1: 150, Y1: 120, Color: pdf.Color{B: 255}, Seq: 1},
	}
	if diff := cmp.Diff(want, fills); diff != "" {
		t.Errorf("fills mismatch (-want +got):\n%s", diff)
	}
}

func TestInterpretPage(t *testing.T) {
	doc, err := pdf.Open(pdftest.Invoice())
	if err != nil {
		t.Fatal(err)
	}
	tc, err := NewSource(doc).TextContent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Width != 612 || tc.Height != 792 {
		t.Errorf("page size = %vx%v", tc.Width, tc.Height)
	}
	if len(tc.Items) != 1 {
		t.Fatalf("got %d items", len(tc.Items))
	}
	item := tc.Items[0]
	if item.Str != "Invoice #1001" {
		t.Errorf("text = %q", item.Str)
	}
	if item.FontName != "Helvetica" {
		t.Errorf("font = %q", item.FontName)
	}
	if item.Transform != [6]float64{12, 0, 0, 12, 72, 700} {
		t.Errorf("transform = %v", item.Transform)
	}
	// Helvetica advances: 6226 thousandths of an em.
	if math.Abs(item.Width-74.712) > 0.5 {
		t.Errorf("width = %v, want about 74.7", item.Width)
	}
}
