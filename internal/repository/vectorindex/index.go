// Package vectorindex provides the in-memory cosine similarity index. It is
// the engine's system of record for per-item vectors: owner-bucketed, safe for
// concurrent readers and writers, and deterministic in its result ordering.
package vectorindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/stashbox-io/stashbox/internal/domain"
)

// Neighbor is one nearest-neighbor hit.
type Neighbor struct {
	ItemID     string
	Similarity float64
}

// Index stores item vectors bucketed by owner. TopK never crosses owner
// buckets, which makes owner isolation structural rather than a filter.
type Index struct {
	mu     sync.RWMutex
	dims   int
	owners map[string]map[string][]float32
}

// New creates an index for vectors of the given dimension.
func New(dims int) *Index {
	return &Index{dims: dims, owners: make(map[string]map[string][]float32)}
}

// Dims returns the configured vector dimension.
func (x *Index) Dims() int { return x.dims }

// Upsert stores or replaces the vector for an item. The vector is copied, so
// concurrent upserts for different items cannot corrupt each other.
func (x *Index) Upsert(ownerID, itemID string, vector []float32) error {
	if itemID == "" || ownerID == "" {
		return fmt.Errorf("%w: item and owner ids are required", domain.ErrInvalidQuery)
	}
	if len(vector) != x.dims {
		return fmt.Errorf("%w: got %d, index expects %d", domain.ErrVectorDimMismatch, len(vector), x.dims)
	}

	cp := make([]float32, len(vector))
	copy(cp, vector)

	x.mu.Lock()
	defer x.mu.Unlock()
	bucket, ok := x.owners[ownerID]
	if !ok {
		bucket = make(map[string][]float32)
		x.owners[ownerID] = bucket
	}
	bucket[itemID] = cp
	return nil
}

// Delete removes an item's vector. Missing entries are a no-op.
func (x *Index) Delete(ownerID, itemID string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if bucket, ok := x.owners[ownerID]; ok {
		delete(bucket, itemID)
		if len(bucket) == 0 {
			delete(x.owners, ownerID)
		}
	}
}

// Has reports whether a vector is stored for the item.
func (x *Index) Has(ownerID, itemID string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.owners[ownerID][itemID]
	return ok
}

// Size returns the total number of indexed vectors across all owners.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := 0
	for _, bucket := range x.owners {
		n += len(bucket)
	}
	return n
}

// TopK returns the k most similar items of the given owner, ordered by cosine
// similarity descending, ties broken by item ID for determinism. Only items of
// ownerID are ever considered.
func (x *Index) TopK(ownerID string, query []float32, k int) []Neighbor {
	if k <= 0 {
		return nil
	}

	x.mu.RLock()
	bucket := x.owners[ownerID]
	neighbors := make([]Neighbor, 0, len(bucket))
	for id, vec := range bucket {
		neighbors = append(neighbors, Neighbor{ItemID: id, Similarity: Cosine(query, vec)})
	}
	x.mu.RUnlock()

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Similarity != neighbors[j].Similarity {
			return neighbors[i].Similarity > neighbors[j].Similarity
		}
		return neighbors[i].ItemID < neighbors[j].ItemID
	})

	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors
}

// Cosine computes dot(a,b) / (|a|*|b|). A zero-norm vector or a length
// mismatch yields 0, never NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
