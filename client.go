// Package stashbox embeds the hybrid search engine in-process: capture items,
// search them with the combined semantic/fuzzy/exact pipeline, and page
// through results, without running the stashd server.
package stashbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/repository/itemstore"
	"github.com/stashbox-io/stashbox/internal/repository/session"
	"github.com/stashbox-io/stashbox/internal/repository/vectorindex"
	exactuc "github.com/stashbox-io/stashbox/internal/usecase/exact"
	feedbackuc "github.com/stashbox-io/stashbox/internal/usecase/feedback"
	fuzzyuc "github.com/stashbox-io/stashbox/internal/usecase/fuzzy"
	reindexuc "github.com/stashbox-io/stashbox/internal/usecase/reindex"
	searchuc "github.com/stashbox-io/stashbox/internal/usecase/search"
)

// Re-exported domain types, so embedding hosts do not import internal packages.
type (
	// Item is a captured piece of content.
	Item = domain.Item
	// Query is a validated search request.
	Query = domain.Query
	// Filters narrow a search beyond text relevance.
	Filters = domain.Filters
	// FusedResult is one ranked search hit.
	FusedResult = domain.FusedResult
	// Feedback is a user rating of a search outcome.
	Feedback = domain.Feedback
	// Embedder vectorizes text for semantic search.
	Embedder = domain.Embedder
)

// Sentinel errors surfaced by the client.
var (
	ErrItemNotFound   = domain.ErrItemNotFound
	ErrInvalidQuery   = domain.ErrInvalidQuery
	ErrSessionExpired = domain.ErrSessionExpired
)

// NewQuery validates and normalizes search parameters.
func NewQuery(text, ownerID string, filters Filters, limit, offset int) (Query, error) {
	return domain.NewQuery(text, ownerID, filters, limit, offset)
}

// Client is the embedded engine entry point.
type Client struct {
	store    *itemstore.Store
	index    *vectorindex.Index
	sessions *session.MemoryStore
	embedder domain.Embedder
	search   *searchuc.Service
	reindex  *reindexuc.Service
	feedback *feedbackuc.Service
	logger   *zap.Logger
}

// New creates an embedded engine. Without WithEmbedder the semantic strategy
// stays off and search runs on the lexical strategies.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		dimensions:    1536,
		fuzzyMinScore: 0.55,
		sessionTTL:    session.DefaultTTL,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.storagePath == "" && !cfg.inMemory {
		return nil, errors.New("stashbox: storage path required (or use WithInMemory)")
	}

	store, err := itemstore.Open(cfg.storagePath, cfg.inMemory, cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("stashbox: open item store: %w", err)
	}

	index := vectorindex.New(cfg.dimensions)
	sessions := session.NewMemoryStore(cfg.sessionTTL, cfg.logger)

	searchSvc := searchuc.New(
		store, index, cfg.embedder,
		fuzzyuc.New(cfg.fuzzyMinScore), exactuc.New(), sessions,
		cfg.logger, searchuc.Config{},
	)
	if cfg.enhancer != nil {
		searchSvc.WithEnhancer(cfg.enhancer)
	}

	c := &Client{
		store:    store,
		index:    index,
		sessions: sessions,
		embedder: cfg.embedder,
		search:   searchSvc,
		reindex:  reindexuc.New(store, index, cfg.embedder, cfg.logger, cfg.reindexWorkers),
		feedback: feedbackuc.New(store, cfg.logger),
		logger:   cfg.logger,
	}

	if _, err := c.reindex.Warm(context.Background()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("stashbox: warm index: %w", err)
	}
	return c, nil
}

// Close releases the item store and the session reaper.
func (c *Client) Close() error {
	serr := c.sessions.Close()
	if err := c.store.Close(); err != nil {
		return err
	}
	return serr
}

// Capture stores an item and, when an embedder is configured, indexes it for
// semantic search. An embedding failure degrades to lexical-only for that
// item; the capture itself still succeeds.
func (c *Client) Capture(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if err := c.store.Put(ctx, item); err != nil {
		return err
	}

	if c.embedder == nil {
		return nil
	}
	emb, err := c.embedder.Embed(ctx, item.EmbeddingText())
	if err != nil {
		c.logger.Warn("capture stored without semantic index",
			zap.String("item_id", item.ID), zap.Error(err))
		return nil
	}
	if err := c.index.Upsert(item.OwnerID, item.ID, emb.Embedding); err != nil {
		return fmt.Errorf("index item %s: %w", item.ID, err)
	}
	if err := c.store.SetVector(ctx, item.OwnerID, item.ID, emb.Embedding); err != nil {
		return fmt.Errorf("persist vector for %s: %w", item.ID, err)
	}
	return nil
}

// Get loads one captured item.
func (c *Client) Get(ctx context.Context, ownerID, id string) (*Item, error) {
	return c.store.Get(ctx, ownerID, id)
}

// Delete removes an item and its vector.
func (c *Client) Delete(ctx context.Context, ownerID, id string) error {
	if err := c.store.Delete(ctx, ownerID, id); err != nil {
		return err
	}
	c.index.Delete(ownerID, id)
	return nil
}

// Search runs the full hybrid pipeline. conversationID may be empty when the
// caller does not need pagination.
func (c *Client) Search(ctx context.Context, q Query, conversationID string) (*searchuc.Response, error) {
	return c.search.Search(ctx, q, conversationID)
}

// QuickSearch runs the lexical strategies only, skipping the embedding call.
func (c *Client) QuickSearch(ctx context.Context, ownerID, text string, limit int) ([]FusedResult, error) {
	return c.search.QuickSearch(ctx, ownerID, text, limit)
}

// More returns the next page of an earlier Search with the same
// conversationID.
func (c *Client) More(ctx context.Context, ownerID, conversationID string, pageSize int) (*searchuc.Page, error) {
	return c.search.More(ctx, ownerID, conversationID, pageSize)
}

// Suggest returns completion candidates for a prefix.
func (c *Client) Suggest(ctx context.Context, ownerID, prefix string, limit int) ([]string, error) {
	return c.search.Suggest(ctx, ownerID, prefix, limit)
}

// Reindex embeds items missing from the semantic index.
func (c *Client) Reindex(ctx context.Context, force bool) (*reindexuc.Summary, error) {
	return c.reindex.Reindex(ctx, force)
}

// RecordFeedback stores a user rating of a search outcome.
func (c *Client) RecordFeedback(ctx context.Context, fb *Feedback) (*Feedback, error) {
	return c.feedback.Record(ctx, fb)
}
