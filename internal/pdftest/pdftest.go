// Package pdftest builds small uncompressed PDF documents in memory for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Fonts available to every page, by resource name.
var Fonts = map[string]string{
	"F1": "Helvetica",
	"F2": "Helvetica-Bold",
	"F3": "Times-Italic",
	"F4": "Courier-BoldOblique",
}

var fontOrder = []string{"F1", "F2", "F3", "F4"}

type page struct {
	width, height float64
	content       string
}

// Builder assembles a PDF page by page.
type Builder struct {
	pages []page
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// AddPage appends a page with the given size and raw content stream.
func (b *Builder) AddPage(width, height float64, content string) *Builder {
	b.pages = append(b.pages, page{width: width, height: height, content: content})
	return b
}

// Bytes serializes the document with an exact cross-reference table.
func (b *Builder) Bytes() []byte {
	const (
		catalogObj   = 1
		pagesObj     = 2
		resourcesObj = 3
		firstFontObj = 4
	)
	firstPageObj := firstFontObj + len(fontOrder)
	size := firstPageObj + 2*len(b.pages)

	var buf bytes.Buffer
	offsets := make([]int, size)
	obj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	obj(catalogObj, fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj))

	kids := make([]string, len(b.pages))
	for i := range b.pages {
		kids[i] = fmt.Sprintf("%d 0 R", firstPageObj+2*i)
	}
	obj(pagesObj, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(b.pages)))

	var fonts strings.Builder
	for i, name := range fontOrder {
		fmt.Fprintf(&fonts, " /%s %d 0 R", name, firstFontObj+i)
	}
	obj(resourcesObj, fmt.Sprintf("<< /Font <<%s >> /ProcSet [/PDF /Text] >>", fonts.String()))

	for i, name := range fontOrder {
		obj(firstFontObj+i, fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding >>", Fonts[name]))
	}

	for i, p := range b.pages {
		pageNum := firstPageObj + 2*i
		obj(pageNum, fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 %s %s] /Resources %d 0 R /Contents %d 0 R >>",
			pagesObj, num(p.width), num(p.height), resourcesObj, pageNum+1))
		obj(pageNum+1, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.content), p.content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < size; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, catalogObj, xref)
	return buf.Bytes()
}

func num(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// Text returns a content fragment showing s with font at (x, y).
func Text(font string, size, x, y float64, s string) string {
	return fmt.Sprintf("BT /%s %s Tf %s %s Td (%s) Tj ET\n", font, num(size), num(x), num(y), Escape(s))
}

// FilledRect returns a content fragment painting a gray rectangle.
func FilledRect(x, y, w, h, gray float64) string {
	return fmt.Sprintf("q %s g %s %s %s %s re f Q\n", num(gray), num(x), num(y), num(w), num(h))
}

// Escape escapes a string literal body.
func Escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

// SinglePage returns a one-page US Letter document with the given content.
func SinglePage(content string) []byte {
	return New().AddPage(612, 792, content).Bytes()
}

// Invoice returns a one-page document showing "Invoice #1001" in 12pt
// Helvetica with its baseline at (72, 700).
func Invoice() []byte {
	return SinglePage(Text("F1", 12, 72, 700, "Invoice #1001"))
}
