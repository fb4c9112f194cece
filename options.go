package stashbox

import (
	"time"

	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
)

type clientConfig struct {
	storagePath    string
	inMemory       bool
	dimensions     int
	fuzzyMinScore  float64
	sessionTTL     time.Duration
	reindexWorkers int
	embedder       domain.Embedder
	enhancer       domain.Enhancer
	logger         *zap.Logger
}

// Option configures the embedded engine.
type Option func(*clientConfig)

// WithStoragePath sets the on-disk item store location.
func WithStoragePath(path string) Option {
	return func(c *clientConfig) { c.storagePath = path }
}

// WithInMemory keeps the item store in memory. Useful for tests and for
// hosts that persist captures elsewhere.
func WithInMemory() Option {
	return func(c *clientConfig) { c.inMemory = true }
}

// WithEmbedder enables semantic search through the given provider. Without
// it the engine runs on the lexical strategies only.
func WithEmbedder(e domain.Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithEnhancer enables best-effort query rewriting before matching.
func WithEnhancer(e domain.Enhancer) Option {
	return func(c *clientConfig) { c.enhancer = e }
}

// WithDimensions sets the embedding vector width. Must match the embedder.
func WithDimensions(d int) Option {
	return func(c *clientConfig) { c.dimensions = d }
}

// WithFuzzyMinScore sets the fuzzy match floor.
func WithFuzzyMinScore(score float64) Option {
	return func(c *clientConfig) { c.fuzzyMinScore = score }
}

// WithSessionTTL sets the pagination session inactivity window.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *clientConfig) { c.sessionTTL = ttl }
}

// WithReindexWorkers bounds concurrent embedding calls during reindexing.
func WithReindexWorkers(n int) Option {
	return func(c *clientConfig) { c.reindexWorkers = n }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = l }
}
