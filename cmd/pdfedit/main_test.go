package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-runewidth"

	"github.com/pyhub-apps/pdfedit-golang/internal/pdftest"
	"github.com/pyhub-apps/pdfedit-golang/pkg/extract"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunExtract(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "invoice.pdf", pdftest.Invoice())

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"extract", in}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("output:\n%s", stdout.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.HasPrefix(lines[1], "p1-i0") ||
		!strings.HasSuffix(lines[1], "Invoice #1001") {
		t.Errorf("output:\n%s", stdout.String())
	}
}

func TestRunApply(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "invoice.pdf", pdftest.Invoice())
	out := filepath.Join(dir, "out.pdf")
	script := writeFile(t, dir, "edits.yaml", []byte(`
edits:
  - replace: {find: "#1001", text: "Invoice #2002"}
  - shape: {page: 1, x: 10, y: 10, width: 40, height: 20, fill: "#ff0000"}
  - delete: p1-i9
`))
	config := writeFile(t, dir, "pdfedit.yaml", []byte("scale: 1\n"))

	var stdout, stderr bytes.Buffer
	args := []string{"-config", config, "apply", "-script", script, "-o", out, in}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v\n%s", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "2 edits applied, 2 elements drawn, 0 skipped") {
		t.Errorf("stdout = %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "edit 3 changed nothing") {
		t.Errorf("stderr = %q", stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	pages, err := extract.New(extract.WithScale(1), extract.WithVisibleOnly(true), extract.WithBackends(extract.PDFCPU())).
		Extract(context.Background(), data)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages[0].Runs) != 1 || pages[0].Runs[0].Text != "Invoice #2002" {
		t.Errorf("visible runs = %+v", pages[0].Runs)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "invoice.pdf", pdftest.Invoice())
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown command", []string{"explode", in}, "unknown command"},
		{"missing file", []string{"extract", filepath.Join(dir, "nope.pdf")}, "failed to read PDF"},
		{"empty query", []string{"find", in}, "invalid query"},
		{"bad config", []string{"-config", filepath.Join(dir, "nope.yaml"), "extract", in}, "failed to read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestParseScript(t *testing.T) {
	s, err := parseScript([]byte(`
edits:
  - update: {id: p1-i0, patch: {text: "x", color: {r: 200}, fontWeight: bold}}
  - qr: {page: 1, size: 64, content: "hi", foreground: "#123456"}
  - undo: true
`))
	if err != nil {
		t.Fatal(err)
	}
	bold := pdf.FontWeightBold
	text := "x"
	red := pdf.Color{R: 200}
	want := []Edit{
		{Update: &UpdateEdit{ID: "p1-i0", Patch: pdf.TextRunPatch{Text: &text, Color: &red, FontWeight: &bold}}},
		{QR: &QREdit{Page: 1, Size: 64, Content: "hi", Foreground: pdf.Color{R: 0x12, G: 0x34, B: 0x56}}},
		{Undo: true},
	}
	if diff := cmp.Diff(want, s.Edits); diff != "" {
		t.Errorf("edits mismatch (-want +got):\n%s", diff)
	}

	bad := []string{
		"edits:\n  - {delete: a, revert: b}\n",
		"edits:\n  - {}\n",
		"edits:\n  - shape: {colour: red}\n",
	}
	for _, src := range bad {
		if _, err := parseScript([]byte(src)); err == nil {
			t.Errorf("parseScript(%q) succeeded", src)
		}
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := Config{Timeout: "soon"}
	if _, err := cfg.Options(nil); err == nil {
		t.Error("invalid timeout accepted")
	}
	cfg = Config{Background: "#zzz"}
	if _, err := cfg.Options(nil); err == nil {
		t.Error("invalid background accepted")
	}
	cfg = Config{Scale: 2, MaxSizeMB: 1, Timeout: "5s", HistoryLimit: 10, Granularity: "word", Background: "#fff"}
	opts, err := cfg.Options(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(opts) != 7 {
		t.Errorf("options = %d, want 7", len(opts))
	}
}

func TestWriteRunsAlignsWideText(t *testing.T) {
	runs := []pdf.TextRun{
		{ID: "p1-i0", PageNumber: 1, FontName: "ＭＳ明朝", Text: "請求書"},
		{ID: "p1-i1", PageNumber: 1, FontName: "Helvetica", FontWeight: pdf.FontWeightBold, Text: "Total"},
	}
	var buf bytes.Buffer
	if err := writeRuns(&buf, runs); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	var cols []int
	for _, line := range lines {
		// the text column starts after the last double space
		i := strings.LastIndex(line, "  ")
		cols = append(cols, runewidth.StringWidth(line[:i+2]))
	}
	if diff := cmp.Diff([]int{cols[0], cols[0], cols[0]}, cols); diff != "" {
		t.Errorf("text column misaligned (-want +got):\n%s\n%s", diff, buf.String())
	}
	if !strings.Contains(lines[2], "Helvetica bold") {
		t.Errorf("font label missing: %q", lines[2])
	}
}
