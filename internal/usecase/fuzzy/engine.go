// Package fuzzy scores approximate lexical similarity between a query and an
// item's text, tolerant of typos, transpositions, and irregular whitespace.
// Comparison happens on folded text (see textnorm), so diacritics and mixed
// scripts neither crash the match nor zero it out.
package fuzzy

import (
	"github.com/xrash/smetrics"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/textnorm"
)

// Jaro-Winkler parameters (standard values).
const (
	jaroBoost  = 0.7
	jaroPrefix = 4
)

// jaroAcceptance gates the Jaro-Winkler score per token pair. Below it the
// stricter normalized edit distance is used instead: plain Jaro-Winkler rates
// unrelated words too generously to feed into an average.
const jaroAcceptance = 0.84

// maxCandidateRunes caps the substring-window scan; personal captures are
// short, anything longer is matched on its head.
const maxCandidateRunes = 2048

// Engine is the fuzzy match engine. minScore filters out weak hits so fusion
// only sees signals worth ranking.
type Engine struct {
	minScore float64
}

// New creates a fuzzy engine with the given score floor.
func New(minScore float64) *Engine {
	return &Engine{minScore: minScore}
}

// Match scores the query against the item's raw text and summary, keeping the
// better of the two. The boolean reports whether the hit clears the floor.
func (e *Engine) Match(query string, item *domain.Item) (domain.MatchResult, bool) {
	rawScore := Similarity(query, item.RawText)
	sumScore := Similarity(query, item.Summary)

	score := rawScore
	source := item.RawText
	if sumScore > rawScore {
		score = sumScore
		source = item.Summary
	}
	if score < e.minScore {
		return domain.MatchResult{}, false
	}

	queryTokens := textnorm.Tokens(query)
	excerpt := textnorm.Excerpt(source, 5, func(word string) bool {
		for _, qt := range queryTokens {
			if smetrics.JaroWinkler(qt, word, jaroBoost, jaroPrefix) >= jaroAcceptance {
				return true
			}
		}
		return false
	})

	return domain.MatchResult{
		Item:     item,
		Score:    score,
		Strategy: domain.StrategyFuzzy,
		Excerpt:  excerpt,
	}, true
}

// Similarity computes an approximate similarity in [0,1] between query and
// candidate. Both sides are folded first. An empty candidate scores 0; a
// query longer than the candidate is scored against the best-aligned window
// rather than being penalized for the length mismatch.
func Similarity(query, candidate string) float64 {
	q := textnorm.Fold(textnorm.CollapseSpace(query))
	c := textnorm.Fold(textnorm.CollapseSpace(candidate))
	if q == "" || c == "" {
		return 0
	}
	if q == c {
		return 1
	}

	token := tokenSimilarity(q, c)
	window := windowSimilarity(q, c)
	if token > window {
		return token
	}
	return window
}

// tokenSimilarity averages, over the query tokens, each token's best
// Jaro-Winkler score against the candidate tokens. Length-normalized by
// construction, so short and long candidates compare on the same scale.
func tokenSimilarity(q, c string) float64 {
	queryTokens := textnorm.Tokens(q)
	candTokens := textnorm.Tokens(c)
	if len(queryTokens) == 0 || len(candTokens) == 0 {
		return 0
	}

	var sum float64
	for _, qt := range queryTokens {
		best := 0.0
		for _, ct := range candTokens {
			s := editSimilarity(qt, ct)
			if jw := smetrics.JaroWinkler(qt, ct, jaroBoost, jaroPrefix); jw >= jaroAcceptance && jw > s {
				s = jw
			}
			if s > best {
				best = s
			}
		}
		sum += best
	}
	return sum / float64(len(queryTokens))
}

// windowSimilarity slides a query-sized rune window over the candidate and
// keeps the best normalized edit-distance score.
func windowSimilarity(q, c string) float64 {
	qr := []rune(q)
	cr := []rune(c)
	if len(cr) > maxCandidateRunes {
		cr = cr[:maxCandidateRunes]
	}
	if len(cr) <= len(qr) {
		return editSimilarity(q, string(cr))
	}

	w := len(qr)
	best := 0.0
	for i := 0; i+w <= len(cr); i++ {
		if s := editSimilarity(q, string(cr[i:i+w])); s > best {
			best = s
		}
	}
	return best
}

// editSimilarity converts Levenshtein distance into a [0,1] score normalized
// by the longer string.
func editSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 1
	}
	s := 1 - float64(dist)/float64(longest)
	if s < 0 {
		return 0
	}
	return s
}
