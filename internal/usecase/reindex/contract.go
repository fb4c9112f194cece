package reindex

import (
	"context"

	"github.com/stashbox-io/stashbox/internal/domain"
)

// ItemStore gives the reindexer access to stored items and lets it persist
// freshly computed vectors.
type ItemStore interface {
	ListAll(ctx context.Context) ([]*domain.Item, error)
	SetVector(ctx context.Context, ownerID, id string, vector []float32) error
}

// VectorIndex is the in-memory index the reindexer fills.
type VectorIndex interface {
	Upsert(ownerID, itemID string, vector []float32) error
	Has(ownerID, itemID string) bool
	Size() int
}
