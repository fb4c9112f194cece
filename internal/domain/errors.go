package domain

import "errors"

var (
	// ErrEmptyInput signals empty or whitespace-only input caught by local
	// validation, before any provider call.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidQuery signals a malformed search request.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrItemNotFound signals a missing item.
	ErrItemNotFound = errors.New("item not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrEmbeddingProviderError signals an embedding or enhancement provider
	// failure. Degrades the affected strategy, never the whole search.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrSessionExpired signals that pagination state is gone; the caller must
	// re-run the search.
	ErrSessionExpired = errors.New("search session expired")
	// ErrOwnerIsolation signals an internal invariant breach: a result crossed
	// owner boundaries. Should be unreachable; guarded explicitly anyway.
	ErrOwnerIsolation = errors.New("owner isolation violation")
)
