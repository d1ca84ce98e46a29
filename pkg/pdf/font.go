package pdf

import (
	"strings"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/font"
	"golang.org/x/text/encoding/charmap"
)

// TwoByte reports whether show-strings of f use two-byte codes.
func (f *Font) TwoByte() bool {
	return f.Subtype == "Type0"
}

// PostScriptName returns BaseFont without a subset prefix (ABCDEF+).
func (f *Font) PostScriptName() string {
	return StripSubsetPrefix(f.BaseFont)
}

// StripSubsetPrefix removes a six-letter subset tag from a font name.
func StripSubsetPrefix(name string) string {
	if i := strings.IndexByte(name, '+'); i == 6 {
		return name[i+1:]
	}
	return name
}

// Codes splits a show-string into character codes.
func (f *Font) Codes(raw []byte) []uint32 {
	if f.TwoByte() {
		codes := make([]uint32, 0, len(raw)/2)
		for i := 0; i+1 < len(raw); i += 2 {
			codes = append(codes, uint32(raw[i])<<8|uint32(raw[i+1]))
		}
		return codes
	}
	codes := make([]uint32, len(raw))
	for i, b := range raw {
		codes[i] = uint32(b)
	}
	return codes
}

// Decode maps a show-string to Unicode text.
func (f *Font) Decode(raw []byte) string {
	if f.ToUnicode != nil {
		if s := f.ToUnicode.Decode(raw); s != "" {
			return s
		}
	}
	if f.TwoByte() {
		units := make([]uint16, 0, len(raw)/2)
		for _, c := range f.Codes(raw) {
			units = append(units, uint16(c))
		}
		return string(utf16.Decode(units))
	}
	return decodeSimple(raw, f.Encoding, f.differences)
}

func decodeSimple(raw []byte, encoding string, differences map[byte]rune) string {
	cm := charmap.Windows1252
	if encoding == "MacRomanEncoding" {
		cm = charmap.Macintosh
	}
	var b strings.Builder
	for _, c := range raw {
		if r, ok := differences[c]; ok {
			b.WriteRune(r)
			continue
		}
		r := cm.DecodeByte(c)
		if r < 0x20 || r == 0xFFFD {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DecodeWinAnsi decodes a simple-font show-string without font information.
func DecodeWinAnsi(raw []byte) string {
	return decodeSimple(raw, "WinAnsiEncoding", nil)
}

// GlyphWidths returns the advance of each code of raw in glyph space
// (thousandths of the font size). ok is false when f carries no usable metrics.
func (f *Font) GlyphWidths(raw []byte) (widths []float64, ok bool) {
	codes := f.Codes(raw)
	widths = make([]float64, len(codes))

	if f.TwoByte() {
		for i, c := range codes {
			if w, found := f.cidWidths[c]; found {
				widths[i] = w
			} else {
				widths[i] = f.DefaultWidth
			}
		}
		return widths, true
	}

	if len(f.Widths) > 0 {
		for i, c := range codes {
			idx := int(c) - f.FirstChar
			if idx >= 0 && idx < len(f.Widths) {
				widths[i] = f.Widths[idx]
			} else {
				widths[i] = f.MissingWidth
			}
		}
		return widths, true
	}

	name := f.PostScriptName()
	if !font.IsCoreFont(name) {
		return nil, false
	}
	for i, c := range codes {
		ch := decodeSimple([]byte{byte(c)}, f.Encoding, f.differences)
		if ch == "" {
			continue
		}
		widths[i] = font.TextWidth(ch, name, 1000)
	}
	return widths, true
}
