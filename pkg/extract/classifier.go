package extract

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"github.com/rivo/uniseg"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

// AverageGlyphWidth is the em fraction assumed per character when no metrics
// are available. It is a heuristic, not a measurement.
const AverageGlyphWidth = 0.6

// HeuristicClassifier infers style from font name substrings and estimates
// widths from the character count.
type HeuristicClassifier struct{}

// Classify matches "bold" (and heavy weights) and "italic"/"oblique",
// case-insensitively.
func (HeuristicClassifier) Classify(fontName string) (pdf.FontWeight, pdf.FontStyle) {
	name := strings.ToLower(fontName)
	weight := pdf.FontWeightNormal
	for _, marker := range []string{"bold", "black", "heavy", "semibold", "demi"} {
		if strings.Contains(name, marker) {
			weight = pdf.FontWeightBold
			break
		}
	}
	style := pdf.FontStyleNormal
	if strings.Contains(name, "italic") || strings.Contains(name, "oblique") {
		style = pdf.FontStyleItalic
	}
	return weight, style
}

// EstimateWidth returns graphemes * fontSize * AverageGlyphWidth.
func (HeuristicClassifier) EstimateWidth(text, _ string, fontSize float64) float64 {
	return float64(uniseg.GraphemeClusterCount(text)) * fontSize * AverageGlyphWidth
}

// MetricsClassifier uses the standard 14 font metrics when the font name is
// one of them and falls back to the heuristic otherwise.
type MetricsClassifier struct {
	HeuristicClassifier
}

// EstimateWidth measures text with core font metrics when available.
func (c MetricsClassifier) EstimateWidth(text, fontName string, fontSize float64) float64 {
	name := pdf.StripSubsetPrefix(fontName)
	if font.IsCoreFont(name) {
		return font.TextWidth(text, name, 1000) / 1000 * fontSize
	}
	return c.HeuristicClassifier.EstimateWidth(text, fontName, fontSize)
}
