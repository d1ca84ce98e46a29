package extract

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"

	dpdf "github.com/dslipak/pdf"
	lpdf "github.com/ledongthuc/pdf"

	"github.com/pyhub-apps/pdfedit-golang/pkg/content"
	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// Backend opens a document for text-content enumeration.
type Backend struct {
	Name string
	Open func(data []byte) (pdf.TextContentSource, error)
}

// PDFCPU walks content streams through the pdfcpu object model. It reports
// fills as well as text, so it is the only backend that supports the hidden
// text filter.
func PDFCPU() Backend {
	return Backend{
		Name: "pdfcpu",
		Open: func(data []byte) (pdf.TextContentSource, error) {
			doc, err := pdf.Open(data)
			if err != nil {
				return nil, err
			}
			return content.NewSource(doc), nil
		},
	}
}

// Ledongthuc reads glyph records with github.com/ledongthuc/pdf.
func Ledongthuc() Backend {
	return Backend{
		Name: "ledongthuc",
		Open: func(data []byte) (src pdf.TextContentSource, err error) {
			defer recoverInto(&err)
			r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				return nil, fmt.Errorf("failed to open PDF with ledongthuc: %w", err)
			}
			return &ledongthucSource{r: r}, nil
		},
	}
}

// Dslipak reads glyph records with github.com/dslipak/pdf.
func Dslipak() Backend {
	return Backend{
		Name: "dslipak",
		Open: func(data []byte) (src pdf.TextContentSource, err error) {
			defer recoverInto(&err)
			r, err := dpdf.NewReader(bytes.NewReader(data), int64(len(data)))
			if err != nil {
				return nil, fmt.Errorf("failed to open PDF with dslipak: %w", err)
			}
			return &dslipakSource{r: r}, nil
		},
	}
}

// DefaultBackends returns the fallback chain: pdfcpu, ledongthuc, dslipak.
func DefaultBackends() []Backend {
	return []Backend{PDFCPU(), Ledongthuc(), Dslipak()}
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parser panic: %v", r)
	}
}

// glyph is a positioned glyph record as reported by the rsc.io/pdf family.
type glyph struct {
	font     string
	fontSize float64
	x, y, w  float64
	s        string
}

type ledongthucSource struct {
	r *lpdf.Reader
}

func (s *ledongthucSource) NumPages() int { return s.r.NumPage() }

func (s *ledongthucSource) TextContent(ctx context.Context, n int) (tc *pdf.TextContent, err error) {
	defer recoverInto(&err)
	if n < 1 || n > s.r.NumPage() {
		return nil, fmt.Errorf("invalid page number: %d", n)
	}
	page := s.r.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", n)
	}

	x0, y0, width, height := 0.0, 0.0, 612.0, 792.0
	if mb := page.V.Key("MediaBox"); mb.Kind() == lpdf.Array && mb.Len() == 4 {
		x0, y0 = mb.Index(0).Float64(), mb.Index(1).Float64()
		width, height = mb.Index(2).Float64()-x0, mb.Index(3).Float64()-y0
	}
	rotation := 0
	if rot := page.V.Key("Rotate"); rot.Kind() == lpdf.Integer {
		rotation = int(rot.Int64())
	}

	var glyphs []glyph
	for _, t := range page.Content().Text {
		glyphs = append(glyphs, glyph{font: t.Font, fontSize: t.FontSize, x: t.X - x0, y: t.Y - y0, w: t.W, s: t.S})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pdf.TextContent{
		PageNumber: n,
		Width:      width,
		Height:     height,
		Rotation:   rotation,
		Items:      groupGlyphs(glyphs),
	}, nil
}

type dslipakSource struct {
	r *dpdf.Reader
}

func (s *dslipakSource) NumPages() int { return s.r.NumPage() }

func (s *dslipakSource) TextContent(ctx context.Context, n int) (tc *pdf.TextContent, err error) {
	defer recoverInto(&err)
	if n < 1 || n > s.r.NumPage() {
		return nil, fmt.Errorf("invalid page number: %d", n)
	}
	page := s.r.Page(n)
	if page.V.IsNull() {
		return nil, fmt.Errorf("page %d not found", n)
	}

	x0, y0, width, height := 0.0, 0.0, 612.0, 792.0
	if mb := page.V.Key("MediaBox"); mb.Kind() == dpdf.Array && mb.Len() == 4 {
		x0, y0 = mb.Index(0).Float64(), mb.Index(1).Float64()
		width, height = mb.Index(2).Float64()-x0, mb.Index(3).Float64()-y0
	}

	var glyphs []glyph
	for _, t := range page.Content().Text {
		glyphs = append(glyphs, glyph{font: t.Font, fontSize: t.FontSize, x: t.X - x0, y: t.Y - y0, w: t.W, s: t.S})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pdf.TextContent{
		PageNumber: n,
		Width:      width,
		Height:     height,
		Items:      groupGlyphs(glyphs),
	}, nil
}

// groupGlyphs joins consecutive glyphs sharing a baseline and font into text
// items. A horizontal gap wider than a quarter em becomes a space; a jump
// back or a gap wider than two em starts a new item.
func groupGlyphs(glyphs []glyph) []pdf.TextItem {
	var (
		items []pdf.TextItem
		cur   *pdf.TextItem
		text  strings.Builder
		endX  float64
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Str = text.String()
		if strings.TrimSpace(cur.Str) != "" {
			cur.Width = endX - cur.Transform[4]
			cur.Seq = len(items)
			items = append(items, *cur)
		}
		cur = nil
		text.Reset()
	}

	for _, g := range glyphs {
		if g.s == "" {
			continue
		}
		if cur != nil {
			size := cur.Transform[3]
			gap := g.x - endX
			sameLine := math.Abs(g.y-cur.Transform[5]) < 0.5 && g.font == cur.FontName &&
				math.Abs(g.fontSize-size) < 0.01
			if !sameLine || gap < -0.5*size || gap > 2*size {
				flush()
			} else if gap > 0.25*size && !strings.HasSuffix(text.String(), " ") && g.s != " " {
				text.WriteByte(' ')
			}
		}
		if cur == nil {
			cur = &pdf.TextItem{
				Transform: [6]float64{g.fontSize, 0, 0, g.fontSize, g.x, g.y},
				FontName:  pdf.StripSubsetPrefix(g.font),
			}
		}
		text.WriteString(g.s)
		endX = g.x + g.w
	}
	flush()
	return items
}
