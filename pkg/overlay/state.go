package overlay

import (
	"time"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// State is a deep copy of every overlay map, in insertion order. It is the
// unit the history manager stores.
type State struct {
	TextRuns  []pdf.TextRun       `json:"textRuns"`
	Shapes    []pdf.ShapeElement  `json:"shapes"`
	Images    []pdf.ImageElement  `json:"images"`
	QRCodes   []pdf.QRPlaceholder `json:"qrCodes"`
	Timestamp time.Time           `json:"timestamp"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	out := State{Timestamp: s.Timestamp}
	if s.TextRuns != nil {
		out.TextRuns = make([]pdf.TextRun, len(s.TextRuns))
		for i, r := range s.TextRuns {
			out.TextRuns[i] = r.Clone()
		}
	}
	if s.Shapes != nil {
		out.Shapes = make([]pdf.ShapeElement, len(s.Shapes))
		for i, sh := range s.Shapes {
			out.Shapes[i] = sh.Clone()
		}
	}
	if s.Images != nil {
		out.Images = append([]pdf.ImageElement(nil), s.Images...)
	}
	if s.QRCodes != nil {
		out.QRCodes = make([]pdf.QRPlaceholder, len(s.QRCodes))
		for i, q := range s.QRCodes {
			out.QRCodes[i] = q.Clone()
		}
	}
	return out
}

// Empty reports whether s holds no elements.
func (s State) Empty() bool {
	return len(s.TextRuns) == 0 && len(s.Shapes) == 0 && len(s.Images) == 0 && len(s.QRCodes) == 0
}

// ElementsOnPage returns the elements of s that belong to page.
func (s State) ElementsOnPage(page int) State {
	out := State{Timestamp: s.Timestamp}
	for _, r := range s.TextRuns {
		if r.PageNumber == page {
			out.TextRuns = append(out.TextRuns, r)
		}
	}
	for _, sh := range s.Shapes {
		if sh.PageNumber == page {
			out.Shapes = append(out.Shapes, sh)
		}
	}
	for _, img := range s.Images {
		if img.PageNumber == page {
			out.Images = append(out.Images, img)
		}
	}
	for _, q := range s.QRCodes {
		if q.PageNumber == page {
			out.QRCodes = append(out.QRCodes, q)
		}
	}
	return out
}
