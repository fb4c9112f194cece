// Package reindex rebuilds the semantic index from the item store: warming it
// from persisted vectors at startup and embedding items that have none.
package reindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/metrics"
)

const defaultWorkers = 4

// ItemError records one item that could not be reindexed.
type ItemError struct {
	ItemID  string `json:"item_id"`
	OwnerID string `json:"owner_id"`
	Reason  string `json:"reason"`
}

// Summary reports the outcome of one reindex run.
type Summary struct {
	Processed int         `json:"processed"`
	Skipped   int         `json:"skipped"`
	Errors    []ItemError `json:"errors,omitempty"`
}

// Service embeds un-indexed items through a bounded worker pool.
type Service struct {
	store   ItemStore
	index   VectorIndex
	embed   domain.Embedder
	logger  *zap.Logger
	workers int
}

// New creates the reindex service. workers <= 0 uses a small default; the
// pool bounds concurrent embedding calls so a large backlog cannot stampede
// the provider.
func New(store ItemStore, index VectorIndex, embed domain.Embedder, logger *zap.Logger, workers int) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{store: store, index: index, embed: embed, logger: logger, workers: workers}
}

// Warm loads persisted vectors into the index without touching the embedding
// provider. Called at startup so restarts do not degrade semantic search.
func (s *Service) Warm(ctx context.Context) (int, error) {
	items, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list items: %w", err)
	}

	loaded := 0
	for _, item := range items {
		if !item.HasVector() {
			continue
		}
		if err := s.index.Upsert(item.OwnerID, item.ID, item.Vector); err != nil {
			s.logger.Warn("skipping persisted vector",
				zap.String("item_id", item.ID), zap.Error(err))
			continue
		}
		loaded++
	}
	metrics.IndexVectors.Set(float64(s.index.Size()))
	s.logger.Info("semantic index warmed", zap.Int("vectors", loaded), zap.Int("items", len(items)))
	return loaded, nil
}

// Reindex embeds every item missing from the index and persists the vectors.
// With force set, already-indexed items are re-embedded too. The run is
// idempotent: a second pass over a fully indexed store processes nothing.
// Per-item failures are collected, never fatal.
func (s *Service) Reindex(ctx context.Context, force bool) (*Summary, error) {
	if s.embed == nil {
		return nil, fmt.Errorf("%w: no embedding provider configured", domain.ErrEmbeddingProviderError)
	}

	items, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary Summary
	)
	fail := func(item *domain.Item, reason string) {
		mu.Lock()
		summary.Errors = append(summary.Errors, ItemError{
			ItemID: item.ID, OwnerID: item.OwnerID, Reason: reason,
		})
		mu.Unlock()
	}

	for _, item := range items {
		if !force && s.index.Has(item.OwnerID, item.ID) {
			summary.Skipped++
			continue
		}
		if ctx.Err() != nil {
			break
		}

		item := item
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			if err := s.reindexOne(ctx, item); err != nil {
				fail(item, err.Error())
				return
			}
			mu.Lock()
			summary.Processed++
			mu.Unlock()
		}); err != nil {
			wg.Done()
			fail(item, err.Error())
		}
	}
	wg.Wait()

	// Submission order is nondeterministic under the pool; report errors
	// in a stable order.
	sort.Slice(summary.Errors, func(i, j int) bool {
		return summary.Errors[i].ItemID < summary.Errors[j].ItemID
	})

	metrics.IndexVectors.Set(float64(s.index.Size()))
	s.logger.Info("reindex finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", len(summary.Errors)))
	return &summary, ctx.Err()
}

func (s *Service) reindexOne(ctx context.Context, item *domain.Item) error {
	text := item.EmbeddingText()
	if text == "" {
		return fmt.Errorf("no embeddable text: %w", domain.ErrEmptyInput)
	}

	emb, err := s.embed.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	if err := s.index.Upsert(item.OwnerID, item.ID, emb.Embedding); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if err := s.store.SetVector(ctx, item.OwnerID, item.ID, emb.Embedding); err != nil {
		return fmt.Errorf("persist vector: %w", err)
	}
	return nil
}
