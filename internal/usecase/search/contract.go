package search

import (
	"context"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/repository/session"
	"github.com/stashbox-io/stashbox/internal/repository/vectorindex"
)

// ItemReader lists the candidate items of one owner.
type ItemReader interface {
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Item, error)
}

// VectorSearcher answers owner-scoped nearest-neighbor queries.
type VectorSearcher interface {
	TopK(ownerID string, query []float32, k int) []vectorindex.Neighbor
}

// FuzzyMatcher scores approximate lexical similarity against one item.
type FuzzyMatcher interface {
	Match(query string, item *domain.Item) (domain.MatchResult, bool)
}

// ExactMatcher produces exact/category/metadata hits against one item.
type ExactMatcher interface {
	Match(query string, item *domain.Item) []domain.MatchResult
}

// SessionStore persists pagination state between search and "more" calls.
// Advance is the store's atomic page handout; see session.Store.
// Satisfied by both session backends.
type SessionStore interface {
	Put(ctx context.Context, s *session.Session) error
	Advance(ctx context.Context, key, ownerID string, pageSize int) ([]domain.FusedResult, int, error)
}
