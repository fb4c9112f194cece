package textnorm

import "strings"

// Excerpt returns a window of roughly radius words on each side of the first
// word whose folded form satisfies match, with ellipses marking cuts. When no
// word matches (or match is nil) the leading window is returned. The window is
// built from the original text, so casing and accents survive.
func Excerpt(text string, radius int, match func(foldedWord string) bool) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if radius <= 0 {
		radius = 5
	}

	center := 0
	if match != nil {
		for i, w := range words {
			if match(Fold(w)) {
				center = i
				break
			}
		}
	}

	start := center - radius
	if start < 0 {
		start = 0
	}
	end := center + radius + 1
	if end > len(words) {
		end = len(words)
	}

	out := strings.Join(words[start:end], " ")
	if start > 0 {
		out = "…" + out
	}
	if end < len(words) {
		out += "…"
	}
	return out
}
