package editor

import (
	"math"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// Find returns the ids of the current runs whose text contains query,
// ignoring case.
func (e *Engine) Find(query string) ([]string, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &pdf.ValidationError{Field: "query", Message: "must not be empty"}
	}
	fold := cases.Fold()
	needle := fold.String(query)

	var ids []string
	for _, r := range e.TextRuns() {
		if strings.Contains(fold.String(r.Text), needle) {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// PageText joins the current runs of page in reading order. Runs whose
// vertical centers are within half a line of each other share a line; words
// on a line are separated by a space when they carry a SpaceAfter hint or
// are visibly apart.
func (e *Engine) PageText(page int) (string, error) {
	e.mu.Lock()
	loaded := e.original != nil
	_, known := e.scales[page]
	e.mu.Unlock()
	if !loaded {
		return "", pdf.ErrNoDocument
	}
	if !known {
		return "", &pdf.ValidationError{Field: "page", Message: "page is not loaded"}
	}

	var runs []pdf.TextRun
	for _, r := range e.TextRuns() {
		if r.PageNumber == page && r.Text != "" {
			runs = append(runs, r)
		}
	}
	lines := groupLines(runs)

	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for j, r := range line {
			if j > 0 {
				prev := line[j-1]
				gap := r.X - (prev.X + prev.Width)
				if prev.SpaceAfter > 0 || gap > 0.2*math.Max(prev.FontSize, 1) {
					b.WriteByte(' ')
				}
			}
			b.WriteString(r.Text)
		}
	}
	return b.String(), nil
}

func groupLines(runs []pdf.TextRun) [][]pdf.TextRun {
	center := func(r pdf.TextRun) float64 { return r.Y + r.Height/2 }
	sort.SliceStable(runs, func(i, j int) bool { return center(runs[i]) < center(runs[j]) })

	var lines [][]pdf.TextRun
	var lineCenter, lineHeight float64
	for _, r := range runs {
		n := len(lines)
		if n > 0 && math.Abs(center(r)-lineCenter) <= math.Max(lineHeight, r.Height)/2 {
			lines[n-1] = append(lines[n-1], r)
			continue
		}
		lines = append(lines, []pdf.TextRun{r})
		lineCenter, lineHeight = center(r), r.Height
	}
	for _, line := range lines {
		sort.SliceStable(line, func(i, j int) bool { return line[i].X < line[j].X })
	}
	return lines
}
