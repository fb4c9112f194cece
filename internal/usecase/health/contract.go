package health

import "context"

// StorePinger checks item store availability.
type StorePinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// IndexSizer reports how many vectors the semantic index holds.
type IndexSizer interface {
	Size() int
}
