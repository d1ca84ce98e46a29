package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

const maxTextColumn = 48

// writeRuns prints runs as a column-aligned table. Widths are measured in
// terminal cells so that CJK text lines up.
func writeRuns(w io.Writer, runs []pdf.TextRun) error {
	header := []string{"ID", "PAGE", "X", "Y", "W", "H", "SIZE", "FONT", "TEXT"}
	rows := [][]string{header}
	for _, r := range runs {
		text := strings.ReplaceAll(r.Text, "\n", " ")
		rows = append(rows, []string{
			r.ID,
			fmt.Sprint(r.PageNumber),
			fmt.Sprintf("%.1f", r.X),
			fmt.Sprintf("%.1f", r.Y),
			fmt.Sprintf("%.1f", r.Width),
			fmt.Sprintf("%.1f", r.Height),
			fmt.Sprintf("%.1f", r.FontSize),
			fontLabel(r),
			runewidth.Truncate(text, maxTextColumn, "…"),
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
			b.WriteString("  ")
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}
	}
	return nil
}

func fontLabel(r pdf.TextRun) string {
	label := r.FontName
	if r.FontWeight == pdf.FontWeightBold {
		label += " bold"
	}
	if r.FontStyle == pdf.FontStyleItalic {
		label += " italic"
	}
	return label
}
