// Package fusion merges the match engines' result sets into one strictly
// ordered, deduplicated list. It owns no state: Fuse is a pure function of
// its input.
package fusion

import (
	"sort"

	"github.com/stashbox-io/stashbox/internal/domain"
)

// strategyBonus is added per additional distinct contributing strategy:
// score = max(signals) + strategyBonus * (strategies - 1), clamped to 1.
// Adding a signal can only raise a score, which keeps the combination
// monotonic.
const strategyBonus = 0.1

type group struct {
	item    *domain.Item
	signals []domain.MatchResult
}

// Fuse groups match results by item, combines each item's signals into one
// relevance score, and returns the list ordered by score descending with ties
// broken by item recency (newer wins) and finally by item ID. Zero input
// yields an empty list, which is a valid outcome, not an error.
func Fuse(matches []domain.MatchResult) []domain.FusedResult {
	if len(matches) == 0 {
		return nil
	}

	groups := make(map[string]*group)
	order := make([]string, 0, len(matches))

	for _, m := range matches {
		if m.Item == nil {
			continue
		}
		g, ok := groups[m.Item.ID]
		if !ok {
			g = &group{item: m.Item}
			groups[m.Item.ID] = g
			order = append(order, m.Item.ID)
		}
		g.signals = append(g.signals, m)
	}

	fused := make([]domain.FusedResult, 0, len(groups))
	for _, id := range order {
		fused = append(fused, combine(groups[id]))
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].Relevance != fused[j].Relevance {
			return fused[i].Relevance > fused[j].Relevance
		}
		ti, tj := fused[i].Item.CreatedAt, fused[j].Item.CreatedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return fused[i].Item.ID < fused[j].Item.ID
	})
	return fused
}

func combine(g *group) domain.FusedResult {
	best := g.signals[0]
	seen := make(map[domain.Strategy]struct{}, len(g.signals))
	excerpt := ""

	for _, s := range g.signals {
		seen[s.Strategy] = struct{}{}
		if better(s, best) {
			best = s
		}
		if excerpt == "" && s.Excerpt != "" {
			excerpt = s.Excerpt
		}
	}
	if best.Excerpt != "" {
		excerpt = best.Excerpt
	}

	score := clamp(best.Score)
	score = clamp(score + strategyBonus*float64(len(seen)-1))

	strategies := make([]domain.Strategy, 0, len(seen))
	for s := range seen {
		strategies = append(strategies, s)
	}
	sort.Slice(strategies, func(i, j int) bool {
		return strategies[i].Precedence() < strategies[j].Precedence()
	})

	return domain.FusedResult{
		Item:       g.item,
		Relevance:  score,
		MatchType:  best.Strategy,
		Excerpt:    excerpt,
		Strategies: strategies,
	}
}

// better picks the dominant signal: higher score first, structured strategy
// precedence on equal scores, so the winner never depends on input order.
func better(a, b domain.MatchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Strategy.Precedence() < b.Strategy.Precedence()
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
