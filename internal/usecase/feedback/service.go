// Package feedback records user ratings of search results for offline
// quality tuning.
package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
)

// Store persists feedback records.
type Store interface {
	PutFeedback(ctx context.Context, fb *domain.Feedback) error
	ListFeedback(ctx context.Context, ownerID string, limit int) ([]*domain.Feedback, error)
}

// Service validates and stores search feedback.
type Service struct {
	store  Store
	logger *zap.Logger
}

// New creates a feedback service.
func New(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// Record validates the feedback, assigns it an ID and timestamp, and persists
// it. The stored record is returned.
func (s *Service) Record(ctx context.Context, fb *domain.Feedback) (*domain.Feedback, error) {
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	fb.ID = uuid.NewString()
	fb.CreatedAt = time.Now().UTC()

	if err := s.store.PutFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("store feedback: %w", err)
	}
	s.logger.Debug("feedback recorded",
		zap.String("owner_id", fb.OwnerID), zap.Int("rating", fb.Rating))
	return fb, nil
}

// Recent returns the owner's latest feedback records.
func (s *Service) Recent(ctx context.Context, ownerID string, limit int) ([]*domain.Feedback, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidQuery)
	}
	return s.store.ListFeedback(ctx, ownerID, limit)
}
