package search

import (
	"context"
	"testing"
	"time"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/repository/session"
	"github.com/stashbox-io/stashbox/internal/repository/vectorindex"
	"github.com/stashbox-io/stashbox/internal/usecase/exact"
	"github.com/stashbox-io/stashbox/internal/usecase/fuzzy"
)

type itemsStub struct {
	byOwner map[string][]*domain.Item
	err     error
}

func (s *itemsStub) ListByOwner(_ context.Context, ownerID string) ([]*domain.Item, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byOwner[ownerID], nil
}

type embedStub struct {
	embedFn func(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

func (s *embedStub) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	return s.embedFn(ctx, text)
}

type indexStub struct {
	topKFn func(ownerID string, query []float32, k int) []vectorindex.Neighbor
}

func (s *indexStub) TopK(ownerID string, query []float32, k int) []vectorindex.Neighbor {
	if s.topKFn == nil {
		return nil
	}
	return s.topKFn(ownerID, query, k)
}

type enhanceStub struct {
	enhanceFn func(ctx context.Context, raw string) (string, error)
}

func (s *enhanceStub) Enhance(ctx context.Context, raw string) (string, error) {
	return s.enhanceFn(ctx, raw)
}

func makeItem(id, ownerID, text, category string, age time.Duration) *domain.Item {
	return &domain.Item{
		ID:          id,
		OwnerID:     ownerID,
		RawText:     text,
		Category:    category,
		ContentType: domain.ContentTypeText,
		CreatedAt:   time.Now().Add(-age),
	}
}

// newTestService wires the orchestrator with the real lexical engines, stub
// providers, and an in-memory session store.
func newTestService(t *testing.T, items *itemsStub, embed domain.Embedder, index VectorSearcher) (*Service, *session.MemoryStore) {
	t.Helper()
	sessions := session.NewMemoryStore(time.Minute, nil)
	t.Cleanup(func() { _ = sessions.Close() })

	svc := New(
		items, index, embed,
		fuzzy.New(0.55), exact.New(), sessions,
		nil, Config{},
	)
	return svc, sessions
}
