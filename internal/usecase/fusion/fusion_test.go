package fusion

import (
	"testing"
	"time"

	"github.com/stashbox-io/stashbox/internal/domain"
)

func item(id string, age time.Duration) *domain.Item {
	return &domain.Item{ID: id, OwnerID: "u1", CreatedAt: time.Now().Add(-age)}
}

func match(it *domain.Item, score float64, s domain.Strategy) domain.MatchResult {
	return domain.MatchResult{Item: it, Score: score, Strategy: s}
}

func TestFuseEmptyInput(t *testing.T) {
	if got := Fuse(nil); len(got) != 0 {
		t.Errorf("expected empty list, got %d", len(got))
	}
	if got := Fuse([]domain.MatchResult{}); len(got) != 0 {
		t.Errorf("expected empty list, got %d", len(got))
	}
}

func TestFuseDeduplicatesByItem(t *testing.T) {
	a := item("a", time.Hour)
	results := Fuse([]domain.MatchResult{
		match(a, 0.8, domain.StrategySemantic),
		match(a, 0.7, domain.StrategyFuzzy),
		match(a, 0.9, domain.StrategyExact),
	})
	if len(results) != 1 {
		t.Fatalf("expected 1 fused result, got %d", len(results))
	}
	r := results[0]
	if r.MatchType != domain.StrategyExact {
		t.Errorf("dominant type = %s, want exact", r.MatchType)
	}
	// max(0.9) + 0.1*(3-1) = 1.1 -> clamped
	if r.Relevance != 1.0 {
		t.Errorf("relevance = %f, want 1.0 (clamped)", r.Relevance)
	}
	if len(r.Strategies) != 3 {
		t.Errorf("expected 3 contributing strategies, got %v", r.Strategies)
	}
	if r.Strategies[0] != domain.StrategyExact {
		t.Errorf("strategies not in precedence order: %v", r.Strategies)
	}
}

func TestFuseMonotonicity(t *testing.T) {
	a := item("a", time.Hour)
	single := Fuse([]domain.MatchResult{match(a, 0.5, domain.StrategyFuzzy)})
	double := Fuse([]domain.MatchResult{
		match(a, 0.5, domain.StrategyFuzzy),
		match(a, 0.3, domain.StrategyCategory),
	})
	if double[0].Relevance < single[0].Relevance {
		t.Errorf("adding a signal lowered the score: %f -> %f",
			single[0].Relevance, double[0].Relevance)
	}
}

func TestFuseBounds(t *testing.T) {
	a := item("a", time.Hour)
	b := item("b", time.Hour)
	results := Fuse([]domain.MatchResult{
		match(a, 1.0, domain.StrategyExact),
		match(a, 1.0, domain.StrategyCategory),
		match(a, 1.0, domain.StrategySemantic),
		match(b, -0.2, domain.StrategySemantic), // defensive: negative input
	})
	for _, r := range results {
		if r.Relevance < 0 || r.Relevance > 1 {
			t.Errorf("relevance %f out of [0,1] for %s", r.Relevance, r.Item.ID)
		}
	}
}

func TestFuseStructuredOutranksStatistical(t *testing.T) {
	// Equal-strength semantic-only vs semantic+exact: the exact hit must win.
	plain := item("plain", time.Hour)
	backed := item("backed", time.Hour)
	results := Fuse([]domain.MatchResult{
		match(plain, 0.8, domain.StrategySemantic),
		match(backed, 0.8, domain.StrategySemantic),
		match(backed, 0.8, domain.StrategyExact),
	})
	if results[0].Item.ID != "backed" {
		t.Errorf("expected exact-backed item first, got %s", results[0].Item.ID)
	}
	if results[0].MatchType != domain.StrategyExact {
		t.Errorf("dominant type = %s, want exact", results[0].MatchType)
	}
}

func TestFuseOrderingAndRecencyTieBreak(t *testing.T) {
	older := item("older", 2*time.Hour)
	newer := item("newer", time.Hour)
	top := item("top", 3*time.Hour)

	results := Fuse([]domain.MatchResult{
		match(older, 0.6, domain.StrategyFuzzy),
		match(newer, 0.6, domain.StrategyFuzzy),
		match(top, 0.9, domain.StrategyFuzzy),
	})

	if results[0].Item.ID != "top" {
		t.Fatalf("expected top first, got %s", results[0].Item.ID)
	}
	if results[1].Item.ID != "newer" || results[2].Item.ID != "older" {
		t.Errorf("recency tie-break failed: %s before %s",
			results[1].Item.ID, results[2].Item.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Relevance > results[i-1].Relevance {
			t.Error("relevance not non-increasing")
		}
	}
}

func TestFuseDeterministic(t *testing.T) {
	a := item("a", time.Hour)
	b := item("b", time.Hour)
	in := []domain.MatchResult{
		match(a, 0.7, domain.StrategyFuzzy),
		match(b, 0.7, domain.StrategySemantic),
		match(a, 0.7, domain.StrategySemantic),
	}

	first := Fuse(in)
	for i := 0; i < 20; i++ {
		again := Fuse(in)
		for i := range first {
			if first[i].Item.ID != again[i].Item.ID || first[i].MatchType != again[i].MatchType {
				t.Fatal("fusion output depends on iteration order")
			}
		}
	}
}

func TestFuseExcerptFromDominantSignal(t *testing.T) {
	a := item("a", time.Hour)
	results := Fuse([]domain.MatchResult{
		{Item: a, Score: 0.5, Strategy: domain.StrategyFuzzy, Excerpt: "fuzzy excerpt"},
		{Item: a, Score: 0.9, Strategy: domain.StrategyExact, Excerpt: "exact excerpt"},
	})
	if results[0].Excerpt != "exact excerpt" {
		t.Errorf("excerpt = %q, want the dominant signal's", results[0].Excerpt)
	}
}
