package compose

import (
	"encoding/hex"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"golang.org/x/text/encoding/charmap"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

type family int

const (
	helvetica family = iota
	times
	courier
)

var standardFonts = map[family][4]string{
	helvetica: {"Helvetica", "Helvetica-Bold", "Helvetica-Oblique", "Helvetica-BoldOblique"},
	times:     {"Times-Roman", "Times-Bold", "Times-Italic", "Times-BoldItalic"},
	courier:   {"Courier", "Courier-Bold", "Courier-Oblique", "Courier-BoldOblique"},
}

func familyOf(fontName string) family {
	name := strings.ToLower(fontName)
	switch {
	case strings.Contains(name, "courier") || strings.Contains(name, "mono"):
		return courier
	case strings.Contains(name, "times") || (strings.Contains(name, "serif") && !strings.Contains(name, "sans")):
		return times
	}
	return helvetica
}

// StandardFont picks the standard 14 font closest to fontName with the given
// weight and style. The family follows the name; the face is a four-way match
// on bold and italic.
func StandardFont(fontName string, weight pdf.FontWeight, style pdf.FontStyle) string {
	idx := 0
	if weight == pdf.FontWeightBold {
		idx |= 1
	}
	if style == pdf.FontStyleItalic {
		idx |= 2
	}
	return standardFonts[familyOf(fontName)][idx]
}

// encodeWinAnsi returns text as a PDF hex string in WinAnsi encoding. Runes
// outside the encoding become '?'.
func encodeWinAnsi(text string) (string, int) {
	raw := make([]byte, 0, len(text))
	missing := 0
	for _, r := range text {
		b, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			b = '?'
			missing++
		}
		raw = append(raw, b)
	}
	return "<" + strings.ToUpper(hex.EncodeToString(raw)) + ">", missing
}

// textWidth measures text set in a standard font, in the units of size.
func textWidth(text, baseFont string, size float64) float64 {
	return font.TextWidth(text, baseFont, 1000) / 1000 * size
}
