// Package session implements the search session store: the per-conversation
// cache of a fused result list that "show more" requests paginate over. Two
// backends exist: in-process memory with an active expiry sweep, and Redis
// with native TTLs for multi-process deployments.
package session

import (
	"context"
	"time"

	"github.com/stashbox-io/stashbox/internal/domain"
)

// DefaultTTL is the inactivity window after which a session expires.
const DefaultTTL = 10 * time.Minute

// Session holds the full ordered result set of one search plus the cursor of
// items already shown. It snapshots results; the item store stays the system
// of record.
type Session struct {
	Key       string               `json:"key"`
	OwnerID   string               `json:"owner_id"`
	Query     string               `json:"query"`
	Results   []domain.FusedResult `json:"results"`
	Cursor    int                  `json:"cursor"`
	CreatedAt time.Time            `json:"created_at"`
	LastSeen  time.Time            `json:"last_seen"`
}

// Remaining returns the number of results not yet shown.
func (s *Session) Remaining() int {
	if s.Cursor >= len(s.Results) {
		return 0
	}
	return len(s.Results) - s.Cursor
}

// NextPage returns the next slice of up to pageSize results and advances the
// cursor. Every result is returned exactly once across successive calls.
func (s *Session) NextPage(pageSize int) []domain.FusedResult {
	if pageSize <= 0 || s.Cursor >= len(s.Results) {
		return nil
	}
	end := s.Cursor + pageSize
	if end > len(s.Results) {
		end = len(s.Results)
	}
	page := s.Results[s.Cursor:end]
	s.Cursor = end
	return page
}

// Store is the session persistence contract. Get and Advance return
// domain.ErrSessionExpired for missing or expired sessions; Put and Advance
// reset the inactivity window.
//
// Advance hands out the next page of up to pageSize results and moves the
// cursor in one atomic step: concurrent "show more" calls for the same
// conversation never receive the same result twice. It returns the page and
// the number of results still unshown, and rejects a caller whose ownerID
// does not match the session with domain.ErrOwnerIsolation.
type Store interface {
	Put(ctx context.Context, s *Session) error
	Get(ctx context.Context, key string) (*Session, error)
	Advance(ctx context.Context, key, ownerID string, pageSize int) ([]domain.FusedResult, int, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Key derives the store key from owner and conversation identifiers.
func Key(ownerID, conversationID string) string {
	return ownerID + ":" + conversationID
}
