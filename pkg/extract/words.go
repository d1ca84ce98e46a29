package extract

import (
	"unicode"

	"github.com/rivo/uniseg"

	"github.com/pyhub-apps/pdfedit-golang/pkg/pdf"
)

type word struct {
	text   string
	start  int // grapheme offset
	length int
	gap    int // whitespace graphemes up to the next word
}

// splitWords splits a block run on whitespace. Positions are re-accumulated
// with a uniform per-grapheme advance of width/graphemes, and each word keeps
// the width of the whitespace that followed it in SpaceAfter.
func splitWords(run pdf.TextRun, page, item int) []pdf.TextRun {
	words, total := scanWords(run.Text)
	if len(words) == 0 || total == 0 {
		return nil
	}
	advance := run.Width / float64(total)

	out := make([]pdf.TextRun, 0, len(words))
	for i, w := range words {
		r := run
		r.ID = pdf.WordRunID(page, item, i)
		r.Text = w.text
		r.X = run.X + float64(w.start)*advance
		r.Width = float64(w.length) * advance
		r.SpaceAfter = 0
		if i < len(words)-1 {
			r.SpaceAfter = float64(w.gap) * advance
		}
		out = append(out, r)
	}
	return out
}

func scanWords(text string) ([]word, int) {
	var (
		words []word
		cur   *word
		pos   int
	)
	g := uniseg.NewGraphemes(text)
	for g.Next() {
		cluster := g.Str()
		space := isSpaceCluster(g.Runes())
		switch {
		case space && cur != nil:
			words = append(words, *cur)
			cur = nil
			words[len(words)-1].gap = 1
		case space && len(words) > 0:
			words[len(words)-1].gap++
		case space:
		case cur == nil:
			cur = &word{text: cluster, start: pos, length: 1}
		default:
			cur.text += cluster
			cur.length++
		}
		pos++
	}
	if cur != nil {
		words = append(words, *cur)
	}
	return words, pos
}

func isSpaceCluster(runes []rune) bool {
	for _, r := range runes {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return len(runes) > 0
}
