package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"github.com/stashbox-io/stashbox/internal/domain"
)

// RedisStore keeps sessions in Redis with native TTLs. Expiry needs no
// reaper: the server evicts keys itself, which also makes the store safe to
// share across processes.
type RedisStore struct {
	client    rueidis.Client
	ttl       time.Duration
	keyPrefix string
}

// RedisConfig holds Redis session store settings.
type RedisConfig struct {
	Addrs     []string
	Password  string
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisStore connects to Redis and returns a TTL-backed session store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: cfg.Addrs,
		Password:    cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "stashbox:session:"
	}
	return &RedisStore{client: client, ttl: ttl, keyPrefix: prefix}, nil
}

func (r *RedisStore) metaKey(key string) string   { return r.keyPrefix + key }
func (r *RedisStore) cursorKey(key string) string { return r.keyPrefix + key + ":cursor" }

// Put stores the session as JSON with the inactivity TTL. The result list is
// immutable after Put; the cursor lives in its own key so Advance can move it
// with a single INCRBY.
func (r *RedisStore) Put(ctx context.Context, s *Session) error {
	if s.Key == "" {
		return fmt.Errorf("%w: session key is required", domain.ErrInvalidQuery)
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastSeen = now

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	cmds := []rueidis.Completed{
		r.client.B().Set().Key(r.metaKey(s.Key)).Value(string(data)).Ex(r.ttl).Build(),
		r.client.B().Set().Key(r.cursorKey(s.Key)).Value(strconv.Itoa(s.Cursor)).Ex(r.ttl).Build(),
	}
	for _, resp := range r.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
	}
	return nil
}

// Get loads a session; a missing key means it expired.
func (r *RedisStore) Get(ctx context.Context, key string) (*Session, error) {
	s, err := r.load(ctx, key)
	if err != nil {
		return nil, err
	}
	cmd := r.client.B().Get().Key(r.cursorKey(key)).Build()
	cursor, err := r.client.Do(ctx, cmd).AsInt64()
	if err != nil && !rueidis.IsRedisNil(err) {
		return nil, fmt.Errorf("load session cursor: %w", err)
	}
	s.Cursor = int(cursor)
	if s.Cursor > len(s.Results) {
		s.Cursor = len(s.Results)
	}
	return s, nil
}

// Advance reserves the next cursor range with INCRBY, so concurrent pagination
// calls, even from different processes, never see the same result twice.
func (r *RedisStore) Advance(ctx context.Context, key, ownerID string, pageSize int) ([]domain.FusedResult, int, error) {
	if pageSize <= 0 {
		return nil, 0, fmt.Errorf("%w: page size must be positive", domain.ErrInvalidQuery)
	}
	s, err := r.load(ctx, key)
	if err != nil {
		return nil, 0, err
	}
	if s.OwnerID != ownerID {
		return nil, 0, fmt.Errorf("session %s: %w", key, domain.ErrOwnerIsolation)
	}

	cmd := r.client.B().Incrby().Key(r.cursorKey(key)).Increment(int64(pageSize)).Build()
	end, err := r.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return nil, 0, fmt.Errorf("advance session cursor: %w", err)
	}

	total := len(s.Results)
	stop := int(end)
	if stop > total {
		stop = total
	}
	start := int(end) - pageSize
	if start > total {
		start = total
	}

	// Reset the inactivity window on both keys.
	refresh := []rueidis.Completed{
		r.client.B().Expire().Key(r.metaKey(key)).Seconds(int64(r.ttl.Seconds())).Build(),
		r.client.B().Expire().Key(r.cursorKey(key)).Seconds(int64(r.ttl.Seconds())).Build(),
	}
	for _, resp := range r.client.DoMulti(ctx, refresh...) {
		if err := resp.Error(); err != nil {
			return nil, 0, fmt.Errorf("refresh session ttl: %w", err)
		}
	}
	return s.Results[start:stop], total - stop, nil
}

// Delete removes a session and its cursor.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	cmd := r.client.B().Del().Key(r.metaKey(key), r.cursorKey(key)).Build()
	if err := r.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) load(ctx context.Context, key string) (*Session, error) {
	cmd := r.client.B().Get().Key(r.metaKey(key)).Build()
	data, err := r.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, domain.ErrSessionExpired
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// Close releases the Redis connection.
func (r *RedisStore) Close() error {
	r.client.Close()
	return nil
}
