package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/repository/vectorindex"
)

func mustQuery(t *testing.T, text, ownerID string, filters domain.Filters, limit, offset int) domain.Query {
	t.Helper()
	q, err := domain.NewQuery(text, ownerID, filters, limit, offset)
	if err != nil {
		t.Fatalf("NewQuery(%q): %v", text, err)
	}
	return q
}

func TestSearchEmptyQueryNoFilters(t *testing.T) {
	svc, _ := newTestService(t, &itemsStub{}, nil, nil)

	q := mustQuery(t, "", "user-1", domain.Filters{}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 0 || len(resp.Results) != 0 {
		t.Errorf("blank query with no filters must match nothing, got %d results", resp.Total)
	}
	if resp.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", resp.Confidence)
	}
}

func TestSearchTypoQuery(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("it-1", "user-1", "Paid the electricity bill, $142 due on March 5th", "bills", time.Hour),
			makeItem("it-2", "user-1", "Grocery run: milk, eggs, coffee beans", "shopping", 2*time.Hour),
			makeItem("it-3", "user-1", "Quarterly revenue forecast draft for the board", "work", 3*time.Hour),
		},
	}}
	// No embedding provider configured; lexical strategies carry the query.
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "electrisity bill", "user-1", domain.Filters{}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("typo query matched nothing")
	}
	top := resp.Results[0]
	if top.Item.ID != "it-1" {
		t.Fatalf("top result = %s, want it-1", top.Item.ID)
	}
	if top.Relevance <= 0.5 {
		t.Errorf("top relevance = %v, want > 0.5", top.Relevance)
	}
	if resp.Confidence != top.Relevance {
		t.Errorf("confidence = %v, want top relevance %v", resp.Confidence, top.Relevance)
	}
	for _, r := range resp.Results {
		if r.Item.ID == "it-3" {
			t.Error("unrelated forecast item matched a bill query")
		}
	}
}

func TestSearchFilterOnlyCategory(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("old-bill", "user-1", "Water bill for January", "bills", 72*time.Hour),
			makeItem("new-bill", "user-1", "Internet bill autopay receipt", "bills", time.Hour),
			makeItem("note", "user-1", "Weekend hiking plan", "personal", 2*time.Hour),
		},
	}}
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "", "user-1", domain.Filters{Categories: []string{"bills"}}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("got %d results, want 2 bills", len(resp.Results))
	}
	if resp.Results[0].Item.ID != "new-bill" || resp.Results[1].Item.ID != "old-bill" {
		t.Errorf("filter-only results not in recency order: %s, %s",
			resp.Results[0].Item.ID, resp.Results[1].Item.ID)
	}
	for _, r := range resp.Results {
		if r.MatchType != domain.StrategyCategory {
			t.Errorf("result %s tagged %s, want category", r.Item.ID, r.MatchType)
		}
	}
}

func TestSearchOwnerIsolation(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"alice": {makeItem("a-rent", "alice", "Pay rent by the 1st, $1800", "bills", time.Hour)},
		"bob":   {makeItem("b-rent", "bob", "Pay rent to new landlord account", "bills", time.Hour)},
	}}
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "pay rent", "alice", domain.Filters{}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("owner's own item not found")
	}
	for _, r := range resp.Results {
		if r.Item.OwnerID != "alice" {
			t.Fatalf("result %s belongs to %s", r.Item.ID, r.Item.OwnerID)
		}
	}
}

func TestSearchGuardCatchesCrossOwnerLeak(t *testing.T) {
	// An item reader that wrongly returns another owner's item must trip the
	// isolation guard instead of leaking the result.
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"alice": {makeItem("b-secret", "bob", "pay rent reminder", "bills", time.Hour)},
	}}
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "pay rent", "alice", domain.Filters{}, 10, 0)
	_, err := svc.Search(context.Background(), q, "")
	if !errors.Is(err, domain.ErrOwnerIsolation) {
		t.Fatalf("err = %v, want ErrOwnerIsolation", err)
	}
}

func TestSearchDegradedEmbeddingProvider(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {makeItem("it-1", "user-1", "Paid the electricity bill today", "bills", time.Hour)},
	}}
	embed := &embedStub{embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: upstream 503", domain.ErrEmbeddingProviderError)
	}}
	svc, _ := newTestService(t, items, embed, &indexStub{})

	q := mustQuery(t, "electricity bill", "user-1", domain.Filters{}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search must degrade, not fail: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("lexical strategies produced nothing while provider was down")
	}
	for _, s := range resp.Strategies {
		if s == domain.StrategySemantic {
			t.Error("semantic listed as used while provider was down")
		}
	}
}

func TestSearchSemanticNeighbors(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("it-1", "user-1", "Monthly power statement archived", "bills", time.Hour),
			makeItem("it-2", "user-1", "Weekend hiking plan", "personal", 2*time.Hour),
		},
	}}
	embed := &embedStub{embedFn: func(context.Context, string) (domain.EmbeddingResult, error) {
		return domain.EmbeddingResult{Embedding: []float32{1, 0}, Model: "test"}, nil
	}}
	index := &indexStub{topKFn: func(ownerID string, _ []float32, _ int) []vectorindex.Neighbor {
		if ownerID != "user-1" {
			t.Errorf("TopK queried for owner %s", ownerID)
		}
		return []vectorindex.Neighbor{
			{ItemID: "it-1", Similarity: 0.91},
			{ItemID: "gone", Similarity: 0.88}, // deleted item, vector still indexed
		}
	}}
	svc, _ := newTestService(t, items, embed, index)

	q := mustQuery(t, "energy invoice", "user-1", domain.Filters{}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 1 || resp.Results[0].Item.ID != "it-1" {
		t.Fatalf("results = %+v, want only it-1", resp.Results)
	}
	if resp.Results[0].MatchType != domain.StrategySemantic {
		t.Errorf("match type = %s, want semantic", resp.Results[0].MatchType)
	}
	if got := resp.Results[0].Relevance; got < 0.9 || got > 1 {
		t.Errorf("relevance = %v, want cosine score in (0.9, 1]", got)
	}
}

func TestSearchEnhancementFlag(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {makeItem("it-1", "user-1", "Invoice from the electric company", "bills", time.Hour)},
	}}

	t.Run("rewrite applied", func(t *testing.T) {
		svc, _ := newTestService(t, items, nil, nil)
		svc.WithEnhancer(&enhanceStub{enhanceFn: func(_ context.Context, raw string) (string, error) {
			return raw + " invoice electric", nil
		}})

		q := mustQuery(t, "power bill", "user-1", domain.Filters{}, 10, 0)
		resp, err := svc.Search(context.Background(), q, "")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if !resp.Enhanced {
			t.Error("Enhanced = false after successful rewrite")
		}
		if len(resp.Results) == 0 {
			t.Error("expanded query matched nothing")
		}
	})

	t.Run("enhancer failure falls back", func(t *testing.T) {
		svc, _ := newTestService(t, items, nil, nil)
		svc.WithEnhancer(&enhanceStub{enhanceFn: func(context.Context, string) (string, error) {
			return "", errors.New("model overloaded")
		}})

		q := mustQuery(t, "invoice electric", "user-1", domain.Filters{}, 10, 0)
		resp, err := svc.Search(context.Background(), q, "")
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if resp.Enhanced {
			t.Error("Enhanced = true after enhancer failure")
		}
		if len(resp.Results) == 0 {
			t.Error("raw query matched nothing after fallback")
		}
	})
}

func TestSearchMinConfidenceFilter(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("strong", "user-1", "electricity bill paid in full", "bills", time.Hour),
			makeItem("weak", "user-1", "electronics store opening hours", "shopping", time.Hour),
		},
	}}
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "electricity bill", "user-1", domain.Filters{MinConfidence: 0.9}, 10, 0)
	resp, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range resp.Results {
		if r.Relevance < 0.9 {
			t.Errorf("result %s relevance %v below min_confidence", r.Item.ID, r.Relevance)
		}
	}
}

func TestSearchPaginationAndMore(t *testing.T) {
	owner := "user-1"
	var all []*domain.Item
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("it-%d", i)
		all = append(all, makeItem(id, owner, "team meeting notes from planning session", "work", time.Duration(i)*time.Hour))
	}
	items := &itemsStub{byOwner: map[string][]*domain.Item{owner: all}}
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "meeting notes", owner, domain.Filters{}, 2, 0)
	resp, err := svc.Search(context.Background(), q, "conv-1")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 || resp.Total != 5 || !resp.HasMore {
		t.Fatalf("page 1: got %d of %d (hasMore=%v), want 2 of 5 with more",
			len(resp.Results), resp.Total, resp.HasMore)
	}

	seen := map[string]bool{}
	for _, r := range resp.Results {
		seen[r.Item.ID] = true
	}

	for remaining := 3; remaining > 0; {
		page, err := svc.More(context.Background(), owner, "conv-1", 2)
		if err != nil {
			t.Fatalf("More: %v", err)
		}
		for _, r := range page.Results {
			if seen[r.Item.ID] {
				t.Fatalf("item %s returned twice across pages", r.Item.ID)
			}
			seen[r.Item.ID] = true
		}
		remaining -= len(page.Results)
		if page.Remaining != remaining {
			t.Fatalf("Remaining = %d, want %d", page.Remaining, remaining)
		}
	}
	if len(seen) != 5 {
		t.Errorf("pagination covered %d of 5 results", len(seen))
	}

	page, err := svc.More(context.Background(), owner, "conv-1", 2)
	if err != nil {
		t.Fatalf("More on drained session: %v", err)
	}
	if len(page.Results) != 0 || page.HasMore {
		t.Errorf("drained session returned %d results (hasMore=%v)", len(page.Results), page.HasMore)
	}
}

func TestMoreConcurrentExactlyOnce(t *testing.T) {
	owner := "user-1"
	var all []*domain.Item
	for i := 0; i < 40; i++ {
		id := fmt.Sprintf("it-%02d", i)
		all = append(all, makeItem(id, owner, "team meeting notes from planning session", "work", time.Duration(i)*time.Hour))
	}
	items := &itemsStub{byOwner: map[string][]*domain.Item{owner: all}}
	svc, _ := newTestService(t, items, nil, nil)

	q := mustQuery(t, "meeting notes", owner, domain.Filters{}, 2, 0)
	resp, err := svc.Search(context.Background(), q, "conv-1")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Two clients mashing "show more" on the same conversation must split
	// the tail between them without repeating a result.
	pages := make(chan []domain.FusedResult, 40)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				page, err := svc.More(context.Background(), owner, "conv-1", 3)
				if err != nil {
					t.Errorf("More: %v", err)
					return
				}
				if len(page.Results) == 0 {
					return
				}
				pages <- page.Results
			}
		}()
	}
	wg.Wait()
	close(pages)

	seen := map[string]bool{}
	for _, r := range resp.Results {
		seen[r.Item.ID] = true
	}
	for page := range pages {
		for _, r := range page {
			if seen[r.Item.ID] {
				t.Fatalf("item %s returned twice across concurrent pages", r.Item.ID)
			}
			seen[r.Item.ID] = true
		}
	}
	if len(seen) != 40 {
		t.Errorf("pagination covered %d of 40 results", len(seen))
	}
}

func TestMoreUnknownSession(t *testing.T) {
	svc, _ := newTestService(t, &itemsStub{}, nil, nil)

	_, err := svc.More(context.Background(), "user-1", "never-searched", 10)
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
}

func TestSearchDeterministic(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("it-a", "user-1", "electricity bill for the apartment", "bills", time.Hour),
			makeItem("it-b", "user-1", "electricity usage report attached", "bills", time.Hour),
			makeItem("it-c", "user-1", "bill from the dentist office", "health", 2*time.Hour),
		},
	}}
	svc, _ := newTestService(t, items, nil, nil)
	q := mustQuery(t, "electricity bill", "user-1", domain.Filters{}, 10, 0)

	first, err := svc.Search(context.Background(), q, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := svc.Search(context.Background(), q, "")
		if err != nil {
			t.Fatalf("Search run %d: %v", i, err)
		}
		if len(again.Results) != len(first.Results) {
			t.Fatalf("run %d returned %d results, first run %d", i, len(again.Results), len(first.Results))
		}
		for j := range again.Results {
			if again.Results[j].Item.ID != first.Results[j].Item.ID ||
				again.Results[j].Relevance != first.Results[j].Relevance {
				t.Fatalf("run %d diverged at position %d", i, j)
			}
		}
	}
}

func TestQuickSearch(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("it-1", "user-1", "wifi password is hunter2-guest", "home", time.Hour),
			makeItem("it-2", "user-1", "router admin password reset steps", "home", 2*time.Hour),
			makeItem("it-3", "user-1", "grocery list for saturday", "shopping", time.Hour),
		},
	}}
	svc, _ := newTestService(t, items, nil, nil)

	got, err := svc.QuickSearch(context.Background(), "user-1", "wifi password", 2)
	if err != nil {
		t.Fatalf("QuickSearch: %v", err)
	}
	if len(got) == 0 || got[0].Item.ID != "it-1" {
		t.Fatalf("results = %+v, want it-1 first", got)
	}
	if len(got) > 2 {
		t.Errorf("limit not applied, got %d results", len(got))
	}

	empty, err := svc.QuickSearch(context.Background(), "user-1", "   ", 2)
	if err != nil {
		t.Fatalf("QuickSearch blank: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("blank quick search returned %d results", len(empty))
	}

	if _, err := svc.QuickSearch(context.Background(), "", "wifi", 2); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Errorf("missing owner err = %v, want ErrInvalidQuery", err)
	}
}

func TestSuggest(t *testing.T) {
	items := &itemsStub{byOwner: map[string][]*domain.Item{
		"user-1": {
			makeItem("it-1", "user-1", "Billing address updated", "bills", time.Hour),
			makeItem("it-2", "user-1", "birthday gift ideas", "personal", 2*time.Hour),
			makeItem("it-3", "user-1", "tax documents scanned", "bills", 3*time.Hour),
		},
	}}
	svc, _ := newTestService(t, items, nil, nil)

	got, err := svc.Suggest(context.Background(), "user-1", "bi", 10)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("no suggestions for a matching prefix")
	}
	if got[0] != "bills" {
		t.Errorf("first suggestion = %q, want the category label first", got[0])
	}
	for _, s := range got {
		if s == "tax" || s == "gift" {
			t.Errorf("suggestion %q does not share the prefix", s)
		}
	}
}
