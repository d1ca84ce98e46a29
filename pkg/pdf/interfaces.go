package pdf

import "context"

// TextContentSource enumerates the positioned text of an opened document.
type TextContentSource interface {
	NumPages() int
	// TextContent returns the content of page n (1-based).
	TextContent(ctx context.Context, n int) (*TextContent, error)
}

// StyleClassifier recovers font style and metrics from a font name. The
// default implementation is heuristic; a metrics-backed one can replace it
// without touching extraction or export.
type StyleClassifier interface {
	Classify(fontName string) (FontWeight, FontStyle)
	// EstimateWidth returns the advance of text set in fontName at fontSize,
	// in the same units as fontSize.
	EstimateWidth(text, fontName string, fontSize float64) float64
}
