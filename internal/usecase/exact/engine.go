// Package exact implements the exact and structured match engine: substring
// containment in text, category label matches, and metadata token matches.
// All comparisons run on folded text, so they are case- and accent-insensitive.
package exact

import (
	"strings"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/textnorm"
)

// Containment scores. A full-text match is 1.0; partial containment scales
// with the match-length ratio but stays at or above structured-signal weight
// so exact hits outrank statistical ones of equal magnitude.
const (
	containBase     = 0.6
	containSpan     = 0.4
	categoryEqual   = 1.0
	categoryContain = 0.85
)

// Engine is the exact/structured match engine. Stateless and safe for
// concurrent use.
type Engine struct{}

// New creates an exact engine.
func New() *Engine { return &Engine{} }

// Match returns every structured hit of the query against one item: an
// "exact" hit for substring containment in raw text or summary, a "category"
// hit when the query names the item's category, and a "metadata" hit when
// query tokens appear verbatim in structured fields.
func (e *Engine) Match(query string, item *domain.Item) []domain.MatchResult {
	fq := textnorm.Fold(textnorm.CollapseSpace(query))
	if fq == "" {
		return nil
	}

	var results []domain.MatchResult
	if r, ok := e.matchText(fq, item); ok {
		results = append(results, r)
	}
	if r, ok := e.matchCategory(fq, item); ok {
		results = append(results, r)
	}
	if r, ok := e.matchMetadata(fq, item); ok {
		results = append(results, r)
	}
	return results
}

func (e *Engine) matchText(fq string, item *domain.Item) (domain.MatchResult, bool) {
	best := 0.0
	source := ""
	for _, text := range []string{item.RawText, item.Summary} {
		ft := textnorm.Fold(textnorm.CollapseSpace(text))
		if ft == "" || !strings.Contains(ft, fq) {
			continue
		}
		score := 1.0
		if ft != fq {
			score = containBase + containSpan*float64(len(fq))/float64(len(ft))
		}
		if score > best {
			best = score
			source = text
		}
	}
	if best == 0 {
		return domain.MatchResult{}, false
	}

	firstToken := ""
	if tokens := strings.Fields(fq); len(tokens) > 0 {
		firstToken = tokens[0]
	}
	excerpt := textnorm.Excerpt(source, 5, func(word string) bool {
		return firstToken != "" && strings.Contains(word, firstToken)
	})

	return domain.MatchResult{
		Item:     item,
		Score:    best,
		Strategy: domain.StrategyExact,
		Excerpt:  excerpt,
	}, true
}

func (e *Engine) matchCategory(fq string, item *domain.Item) (domain.MatchResult, bool) {
	fc := textnorm.Fold(item.Category)
	if fc == "" {
		return domain.MatchResult{}, false
	}

	var score float64
	switch {
	case fc == fq:
		score = categoryEqual
	case strings.Contains(fc, fq) || strings.Contains(fq, fc):
		score = categoryContain
	default:
		return domain.MatchResult{}, false
	}

	return domain.MatchResult{
		Item:     item,
		Score:    score,
		Strategy: domain.StrategyCategory,
		Excerpt:  item.Category,
	}, true
}

// matchMetadata scores the fraction of query tokens that appear verbatim as
// tokens of the item's metadata keys or values.
func (e *Engine) matchMetadata(fq string, item *domain.Item) (domain.MatchResult, bool) {
	queryTokens := textnorm.Tokens(fq)
	if len(queryTokens) == 0 || len(item.Metadata) == 0 {
		return domain.MatchResult{}, false
	}

	fieldTokens := make(map[string]struct{})
	for k, v := range item.Metadata {
		for _, t := range textnorm.Tokens(k) {
			fieldTokens[t] = struct{}{}
		}
		for _, t := range textnorm.Tokens(v) {
			fieldTokens[t] = struct{}{}
		}
	}

	matched := 0
	var hit string
	for _, qt := range queryTokens {
		if _, ok := fieldTokens[qt]; ok {
			matched++
			if hit == "" {
				hit = qt
			}
		}
	}
	if matched == 0 {
		return domain.MatchResult{}, false
	}

	return domain.MatchResult{
		Item:     item,
		Score:    float64(matched) / float64(len(queryTokens)),
		Strategy: domain.StrategyMetadata,
		Excerpt:  hit,
	}, true
}
