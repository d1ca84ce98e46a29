package pdf

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf16"
)

var (
	bfCharSectionRe  = regexp.MustCompile(`(?s)beginbfchar(.*?)endbfchar`)
	bfCharEntryRe    = regexp.MustCompile(`<([0-9A-Fa-f]+)>\s*<([0-9A-Fa-f]*)>`)
	bfRangeSectionRe = regexp.MustCompile(`(?s)beginbfrange(.*?)endbfrange`)
	bfRangeEntryRe   = regexp.MustCompile(`<([0-9A-Fa-f]+)>\s*<([0-9A-Fa-f]+)>\s*(<[0-9A-Fa-f]*>|\[[^\]]*\])`)
	hexTokenRe       = regexp.MustCompile(`<([0-9A-Fa-f]*)>`)
)

// ToUnicodeCMap maps character codes of a font to Unicode text.
type ToUnicodeCMap struct {
	single map[uint32]string
	ranges []cmapRange

	// codeLen is the byte width of source codes seen while parsing (1 or 2).
	codeLen int
}

type cmapRange struct {
	lo, hi uint32
	base   []uint16 // UTF-16 of the first destination, incremented across the range
	list   []string // explicit destinations, when the range maps to an array
}

// NewToUnicodeCMap returns an empty CMap.
func NewToUnicodeCMap() *ToUnicodeCMap {
	return &ToUnicodeCMap{single: make(map[uint32]string)}
}

// ParseToUnicodeCMap parses a ToUnicode CMap stream.
func ParseToUnicodeCMap(data []byte) (*ToUnicodeCMap, error) {
	cmap := NewToUnicodeCMap()
	if err := cmap.Parse(data); err != nil {
		return nil, err
	}
	return cmap, nil
}

// Parse reads bfchar and bfrange sections from data.
func (c *ToUnicodeCMap) Parse(data []byte) error {
	content := string(data)

	for _, section := range bfCharSectionRe.FindAllStringSubmatch(content, -1) {
		for _, m := range bfCharEntryRe.FindAllStringSubmatch(section[1], -1) {
			code, n, err := parseCode(m[1])
			if err != nil {
				return fmt.Errorf("bfchar source %q: %w", m[1], err)
			}
			c.noteCodeLen(n)
			c.single[code] = decodeUTF16Hex(m[2])
		}
	}

	for _, section := range bfRangeSectionRe.FindAllStringSubmatch(content, -1) {
		for _, m := range bfRangeEntryRe.FindAllStringSubmatch(section[1], -1) {
			lo, n, err := parseCode(m[1])
			if err != nil {
				return fmt.Errorf("bfrange start %q: %w", m[1], err)
			}
			hi, _, err := parseCode(m[2])
			if err != nil {
				return fmt.Errorf("bfrange end %q: %w", m[2], err)
			}
			if hi < lo {
				continue
			}
			c.noteCodeLen(n)

			r := cmapRange{lo: lo, hi: hi}
			if strings.HasPrefix(m[3], "[") {
				for _, tok := range hexTokenRe.FindAllStringSubmatch(m[3], -1) {
					r.list = append(r.list, decodeUTF16Hex(tok[1]))
				}
			} else {
				raw, err := hex.DecodeString(evenHex(strings.Trim(m[3], "<>")))
				if err != nil {
					continue
				}
				r.base = bytesToUTF16(raw)
			}
			c.ranges = append(c.ranges, r)
		}
	}

	return nil
}

func (c *ToUnicodeCMap) noteCodeLen(n int) {
	if n > c.codeLen {
		c.codeLen = n
	}
}

// CodeLength returns the byte width of codes mapped by this CMap.
func (c *ToUnicodeCMap) CodeLength() int {
	if c.codeLen == 0 {
		return 1
	}
	return c.codeLen
}

// Lookup maps a single character code.
func (c *ToUnicodeCMap) Lookup(code uint32) (string, bool) {
	if s, ok := c.single[code]; ok {
		return s, true
	}
	for _, r := range c.ranges {
		if code < r.lo || code > r.hi {
			continue
		}
		offset := code - r.lo
		if r.list != nil {
			if int(offset) < len(r.list) {
				return r.list[offset], true
			}
			return "", false
		}
		if len(r.base) == 0 {
			return "", false
		}
		units := append([]uint16(nil), r.base...)
		units[len(units)-1] += uint16(offset)
		return string(utf16.Decode(units)), true
	}
	return "", false
}

// Decode maps a raw show-string to text. Unmapped codes fall back to their
// byte value.
func (c *ToUnicodeCMap) Decode(raw []byte) string {
	var b strings.Builder
	step := c.CodeLength()
	for i := 0; i < len(raw); {
		if step == 2 && i+1 < len(raw) {
			code := uint32(raw[i])<<8 | uint32(raw[i+1])
			if s, ok := c.Lookup(code); ok {
				b.WriteString(s)
				i += 2
				continue
			}
		}
		if s, ok := c.Lookup(uint32(raw[i])); ok {
			b.WriteString(s)
		} else if raw[i] >= 0x20 && raw[i] < 0x7f {
			b.WriteByte(raw[i])
		}
		i++
	}
	return b.String()
}

// Len returns the number of codes covered by the CMap.
func (c *ToUnicodeCMap) Len() int {
	n := len(c.single)
	for _, r := range c.ranges {
		n += int(r.hi-r.lo) + 1
	}
	return n
}

func parseCode(h string) (uint32, int, error) {
	raw, err := hex.DecodeString(evenHex(h))
	if err != nil {
		return 0, 0, err
	}
	if len(raw) == 0 || len(raw) > 4 {
		return 0, 0, fmt.Errorf("code length %d out of range", len(raw))
	}
	var code uint32
	for _, b := range raw {
		code = code<<8 | uint32(b)
	}
	return code, len(raw), nil
}

func evenHex(h string) string {
	if len(h)%2 == 1 {
		return h + "0"
	}
	return h
}

func bytesToUTF16(raw []byte) []uint16 {
	if len(raw) == 1 {
		return []uint16{uint16(raw[0])}
	}
	units := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		units = append(units, uint16(raw[i])<<8|uint16(raw[i+1]))
	}
	return units
}

func decodeUTF16Hex(h string) string {
	raw, err := hex.DecodeString(evenHex(h))
	if err != nil {
		return ""
	}
	units := bytesToUTF16(raw)
	if len(units) > 1 && units[0] == 0xFEFF {
		units = units[1:]
	}
	return string(utf16.Decode(units))
}
