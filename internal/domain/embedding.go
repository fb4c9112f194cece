package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// Enhancer rewrites a raw user query (synonym/translation expansion) before
// matching. Best-effort: callers fall back to the raw query on any failure.
type Enhancer interface {
	Enhance(ctx context.Context, rawQuery string) (string, error)
}

// EmbeddingResult carries the embedding vector and usage back to the caller.
type EmbeddingResult struct {
	Embedding    []float32
	Model        string
	PromptTokens int
	TotalTokens  int
}
