package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/metrics"
)

// sweepInterval is how often the reaper scans for expired sessions.
const sweepInterval = time.Minute

// MemoryStore keeps sessions in an owned map and actively sweeps expired
// entries with a background reaper, so memory stays bounded even without
// incoming requests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryStore creates a memory store and starts its reaper.
// ttl <= 0 falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration, logger *zap.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.reap()
	return m
}

// Put stores a session and resets its inactivity window.
func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	if s.Key == "" {
		return fmt.Errorf("%w: session key is required", domain.ErrInvalidQuery)
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastSeen = now

	m.mu.Lock()
	m.sessions[s.Key] = s
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return nil
}

// Get returns a detached copy of the session, or domain.ErrSessionExpired
// when it is missing or past the inactivity window. Expiry is also checked
// here so a session cannot outlive its TTL between sweeps. The copy keeps
// callers from mutating stored state outside the lock; cursor movement goes
// through Advance.
func (m *MemoryStore) Get(_ context.Context, key string) (*Session, error) {
	var out *Session
	stale := false

	m.mu.RLock()
	s, ok := m.sessions[key]
	if ok {
		if time.Since(s.LastSeen) > m.ttl {
			stale = true
		} else {
			cp := *s
			cp.Results = append([]domain.FusedResult(nil), s.Results...)
			out = &cp
		}
	}
	m.mu.RUnlock()

	if !ok {
		return nil, domain.ErrSessionExpired
	}
	if stale {
		m.mu.Lock()
		delete(m.sessions, key)
		metrics.SessionsLive.Set(float64(len(m.sessions)))
		m.mu.Unlock()
		return nil, domain.ErrSessionExpired
	}
	return out, nil
}

// Advance returns the next page and moves the cursor under the store lock.
func (m *MemoryStore) Advance(_ context.Context, key, ownerID string, pageSize int) ([]domain.FusedResult, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return nil, 0, domain.ErrSessionExpired
	}
	if time.Since(s.LastSeen) > m.ttl {
		delete(m.sessions, key)
		metrics.SessionsLive.Set(float64(len(m.sessions)))
		return nil, 0, domain.ErrSessionExpired
	}
	if s.OwnerID != ownerID {
		return nil, 0, fmt.Errorf("session %s: %w", key, domain.ErrOwnerIsolation)
	}

	page := s.NextPage(pageSize)
	s.LastSeen = time.Now()
	return page, s.Remaining(), nil
}

// Delete removes a session. Missing keys are a no-op.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.sessions, key)
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the reaper and waits for it to finish.
func (m *MemoryStore) Close() error {
	close(m.stop)
	<-m.done
	return nil
}

func (m *MemoryStore) reap() {
	defer close(m.done)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep removes every session past its inactivity window.
func (m *MemoryStore) sweep() {
	cutoff := time.Now().Add(-m.ttl)
	m.mu.Lock()
	removed := 0
	for key, s := range m.sessions {
		if s.LastSeen.Before(cutoff) {
			delete(m.sessions, key)
			removed++
		}
	}
	metrics.SessionsLive.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	if removed > 0 {
		m.logger.Debug("swept expired search sessions", zap.Int("removed", removed))
	}
}
