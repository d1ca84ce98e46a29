package coords

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestToEditorSpace(t *testing.T) {
	x, y := ToEditorSpace(100, 700, 792, 1.5)
	if x != 150 || y != 138 {
		t.Errorf("ToEditorSpace = (%v, %v), want (150, 138)", x, y)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		x, y, pageHeight, scale float64
	}{
		{0, 0, 792, 1},
		{50, 50, 792, 1},
		{123.456, 987.654, 842, 1.5},
		{-10, 2000, 595, 0.33},
		{612, 792, 792, 2.75},
		{1e-3, 1e-3, 100, 1e3},
		{10, 10, 100, 0}, // zero scale behaves as 1
	}

	for _, tt := range tests {
		px, py := ToPdfSpace(tt.x, tt.y, tt.pageHeight, tt.scale)
		ex, ey := ToEditorSpace(px, py, tt.pageHeight, tt.scale)
		if math.Abs(ex-tt.x) > 1e-9 || math.Abs(ey-tt.y) > 1e-9 {
			t.Errorf("round trip of (%v, %v) h=%v s=%v gave (%v, %v)", tt.x, tt.y, tt.pageHeight, tt.scale, ex, ey)
		}
	}
}

func TestRectConversion(t *testing.T) {
	editor := Rect{X: 30, Y: 60, Width: 90, Height: 18}
	pdfRect := RectToPdf(editor, 792, 1.5)

	want := Rect{X: 20, Y: 792 - 40 - 12, Width: 60, Height: 12}
	if diff := cmp.Diff(want, pdfRect, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("RectToPdf mismatch (-want +got):\n%s", diff)
	}

	back := RectToEditor(pdfRect, 792, 1.5)
	if diff := cmp.Diff(editor, back, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("RectToEditor mismatch (-want +got):\n%s", diff)
	}
}

func TestMatrix(t *testing.T) {
	m := Scale(2, 3).Multiply(Translate(10, 20))
	x, y := m.Transform(1, 1)
	if x != 12 || y != 23 {
		t.Errorf("Transform = (%v, %v), want (12, 23)", x, y)
	}

	inv, err := m.Inverse()
	if err != nil {
		t.Fatal(err)
	}
	ox, oy := inv.Transform(x, y)
	if math.Abs(ox-1) > 1e-9 || math.Abs(oy-1) > 1e-9 {
		t.Errorf("inverse gave (%v, %v)", ox, oy)
	}

	if _, err := (Matrix{}).Inverse(); err == nil {
		t.Error("expected error for singular matrix")
	}

	r := Rotate(90)
	rx, ry := r.Transform(1, 0)
	if math.Abs(rx) > 1e-9 || math.Abs(ry-1) > 1e-9 {
		t.Errorf("Rotate(90) of (1,0) = (%v, %v)", rx, ry)
	}
}

func TestContains(t *testing.T) {
	outer := Rect{X: 0, Y: 0, Width: 100, Height: 20}
	if !outer.Contains(Rect{X: 10, Y: 2, Width: 50, Height: 10}, 0) {
		t.Error("expected containment")
	}
	if outer.Contains(Rect{X: 90, Y: 2, Width: 50, Height: 10}, 0.5) {
		t.Error("unexpected containment")
	}
}

func TestScalePolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy ScalePolicy
		width  float64
		want   float64
	}{
		{"fixed", ScalePolicy{Fixed: 2}, 612, 2},
		{"fit", ScalePolicy{ViewportWidth: 306}, 612, 0.5},
		{"capped", DefaultScalePolicy, 200, 1.5},
		{"default fit", DefaultScalePolicy, 1000, 0.8},
		{"no viewport", ScalePolicy{}, 612, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.ScaleFor(tt.width); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ScaleFor(%v) = %v, want %v", tt.width, got, tt.want)
			}
		})
	}
}
