// Package search is the engine's public entry point: it sequences query
// enhancement, fan-out across the match strategies, rank fusion, filtering,
// and pagination sessions.
package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/metrics"
	"github.com/stashbox-io/stashbox/internal/repository/session"
	"github.com/stashbox-io/stashbox/internal/textnorm"
	"github.com/stashbox-io/stashbox/internal/usecase/fusion"
)

// Config holds orchestrator tuning.
type Config struct {
	// EngineTimeout bounds each match strategy; an over-budget engine
	// contributes nothing instead of stalling the search.
	EngineTimeout time.Duration
	// EnhanceTimeout bounds the best-effort query rewrite.
	EnhanceTimeout time.Duration
	// TopK is how many nearest neighbors the semantic strategy requests.
	TopK int
	// QuickLimit is the default result count for QuickSearch.
	QuickLimit int
	// DefaultPageSize is used by More when the caller passes no size.
	DefaultPageSize int
}

func (c *Config) applyDefaults() {
	if c.EngineTimeout <= 0 {
		c.EngineTimeout = 3 * time.Second
	}
	if c.EnhanceTimeout <= 0 {
		c.EnhanceTimeout = 2 * time.Second
	}
	if c.TopK <= 0 {
		c.TopK = 50
	}
	if c.QuickLimit <= 0 {
		c.QuickLimit = 5
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = 10
	}
}

// Response is the outcome of one Search call.
type Response struct {
	Results        []domain.FusedResult
	Total          int
	Strategies     []domain.Strategy
	Enhanced       bool
	Confidence     float64
	ProcessingTime time.Duration
	HasMore        bool
}

// Page is one advanceSession slice.
type Page struct {
	Results   []domain.FusedResult
	HasMore   bool
	Remaining int
}

// Service orchestrates hybrid search.
type Service struct {
	items    ItemReader
	index    VectorSearcher
	embed    domain.Embedder
	enhance  domain.Enhancer
	fuzzy    FuzzyMatcher
	exact    ExactMatcher
	sessions SessionStore
	logger   *zap.Logger
	cfg      Config
}

// New creates the search orchestrator.
func New(
	items ItemReader, index VectorSearcher, embed domain.Embedder,
	fuzzy FuzzyMatcher, exact ExactMatcher, sessions SessionStore,
	logger *zap.Logger, cfg Config,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.applyDefaults()
	return &Service{
		items: items, index: index, embed: embed,
		fuzzy: fuzzy, exact: exact, sessions: sessions,
		logger: logger, cfg: cfg,
	}
}

// WithEnhancer attaches the optional query enhancement step.
func (s *Service) WithEnhancer(e domain.Enhancer) *Service {
	s.enhance = e
	return s
}

// Search runs the full pipeline and caches the fused list for pagination
// under (owner, conversationID). Strategy failures degrade the result set;
// only an unreachable item store is a hard error.
func (s *Service) Search(ctx context.Context, q domain.Query, conversationID string) (*Response, error) {
	start := time.Now()

	// Empty query with no filters matches nothing, deterministically.
	if q.IsBlank() && q.Filters.IsEmpty() {
		metrics.SearchRequestsTotal.WithLabelValues("search", "empty").Inc()
		return &Response{ProcessingTime: time.Since(start)}, nil
	}

	items, err := s.items.ListByOwner(ctx, q.OwnerID)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, fmt.Errorf("list items: %w", err)
	}

	var fused []domain.FusedResult
	enhanced := false
	if q.IsBlank() {
		fused = s.filterOnly(q, items)
	} else {
		queryText, applied := s.enhanceQuery(ctx, q.Text)
		enhanced = applied
		fused = fusion.Fuse(s.fanOut(ctx, q.OwnerID, queryText, items))
	}

	if err := guardOwner(fused, q.OwnerID); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("search", "error").Inc()
		return nil, err
	}

	fused = applyFilters(fused, q.Filters)

	for _, r := range fused {
		metrics.StrategyResultsTotal.WithLabelValues(string(r.MatchType)).Inc()
	}

	resp := &Response{
		Results:    pageOf(fused, q.Offset, q.Limit),
		Total:      len(fused),
		Strategies: strategiesUsed(fused),
		Enhanced:   enhanced,
		Confidence: confidence(fused),
		HasMore:    q.Offset+q.Limit < len(fused),
	}

	if conversationID != "" && s.sessions != nil {
		cursor := q.Offset + len(resp.Results)
		sess := &session.Session{
			Key:     session.Key(q.OwnerID, conversationID),
			OwnerID: q.OwnerID,
			Query:   q.Text,
			Results: fused,
			Cursor:  cursor,
		}
		if err := s.sessions.Put(ctx, sess); err != nil {
			// Pagination is a convenience; the search itself succeeded.
			s.logger.Warn("failed to cache search session", zap.Error(err))
		}
	}

	resp.ProcessingTime = time.Since(start)
	metrics.SearchRequestsTotal.WithLabelValues("search", "ok").Inc()
	metrics.SearchDuration.WithLabelValues("search").Observe(resp.ProcessingTime.Seconds())
	return resp, nil
}

// QuickSearch is the low-latency variant: lexical strategies only, no
// embedding round-trip, no session. Owner isolation is identical to Search.
func (s *Service) QuickSearch(ctx context.Context, ownerID, text string, limit int) ([]domain.FusedResult, error) {
	start := time.Now()
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidQuery)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = s.cfg.QuickLimit
	}

	items, err := s.items.ListByOwner(ctx, ownerID)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("quick", "error").Inc()
		return nil, fmt.Errorf("list items: %w", err)
	}

	var matches []domain.MatchResult
	for _, item := range items {
		matches = append(matches, s.exact.Match(text, item)...)
		if m, ok := s.fuzzy.Match(text, item); ok {
			matches = append(matches, m)
		}
	}

	fused := fusion.Fuse(matches)
	if err := guardOwner(fused, ownerID); err != nil {
		return nil, err
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}

	metrics.SearchRequestsTotal.WithLabelValues("quick", "ok").Inc()
	metrics.SearchDuration.WithLabelValues("quick").Observe(time.Since(start).Seconds())
	return fused, nil
}

// More returns the next page of a previously fused result set and advances
// the cursor. A missing or timed-out session yields domain.ErrSessionExpired;
// the caller must re-run Search.
func (s *Service) More(ctx context.Context, ownerID, conversationID string, pageSize int) (*Page, error) {
	if s.sessions == nil {
		return nil, domain.ErrSessionExpired
	}
	if pageSize <= 0 {
		pageSize = s.cfg.DefaultPageSize
	}

	key := session.Key(ownerID, conversationID)
	page, remaining, err := s.sessions.Advance(ctx, key, ownerID, pageSize)
	if err != nil {
		if errors.Is(err, domain.ErrSessionExpired) {
			metrics.SearchRequestsTotal.WithLabelValues("more", "expired").Inc()
		} else {
			metrics.SearchRequestsTotal.WithLabelValues("more", "error").Inc()
		}
		return nil, err
	}

	metrics.SearchRequestsTotal.WithLabelValues("more", "ok").Inc()
	return &Page{
		Results:   page,
		HasMore:   remaining > 0,
		Remaining: remaining,
	}, nil
}

// Suggest returns owner-scoped completion candidates for a prefix: category
// labels first, then leading terms of recent items.
func (s *Service) Suggest(ctx context.Context, ownerID, prefix string, limit int) ([]string, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = s.cfg.QuickLimit
	}
	fp := textnorm.Fold(strings.TrimSpace(prefix))

	items, err := s.items.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	seen := make(map[string]struct{})
	var out []string
	add := func(candidate string) {
		folded := textnorm.Fold(candidate)
		if folded == "" {
			return
		}
		if fp != "" && !strings.HasPrefix(folded, fp) {
			return
		}
		if _, dup := seen[folded]; dup {
			return
		}
		seen[folded] = struct{}{}
		out = append(out, candidate)
	}

	for _, item := range items {
		add(item.Category)
	}
	for _, item := range items {
		if len(out) >= limit {
			break
		}
		for _, word := range strings.Fields(item.RawText) {
			add(word)
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// enhanceQuery runs the best-effort rewrite. Any failure falls back to the
// raw query; the boolean reports whether a rewrite was applied.
func (s *Service) enhanceQuery(ctx context.Context, raw string) (string, bool) {
	if s.enhance == nil {
		return raw, false
	}
	ectx, cancel := context.WithTimeout(ctx, s.cfg.EnhanceTimeout)
	defer cancel()

	out, err := s.enhance.Enhance(ectx, raw)
	if err != nil || strings.TrimSpace(out) == "" {
		metrics.StrategyDegradedTotal.WithLabelValues("enhancement", degradeReason(err)).Inc()
		s.logger.Debug("query enhancement skipped", zap.Error(err))
		return raw, false
	}
	return out, out != raw
}

// fanOut runs the three match strategies concurrently over the owner's
// items. Each strategy has its own timeout; a failed or slow strategy
// contributes an empty set instead of blocking the others.
func (s *Service) fanOut(ctx context.Context, ownerID, query string, items []*domain.Item) []domain.MatchResult {
	var (
		g        errgroup.Group
		semantic []domain.MatchResult
		exact    []domain.MatchResult
		fuzzy    []domain.MatchResult
	)

	g.Go(func() error {
		semantic = s.runSemantic(ctx, ownerID, query, items)
		return nil
	})
	g.Go(func() error {
		exact = s.runLexical(ctx, "exact", items, func(item *domain.Item) []domain.MatchResult {
			return s.exact.Match(query, item)
		})
		return nil
	})
	g.Go(func() error {
		fuzzy = s.runLexical(ctx, "fuzzy", items, func(item *domain.Item) []domain.MatchResult {
			if m, ok := s.fuzzy.Match(query, item); ok {
				return []domain.MatchResult{m}
			}
			return nil
		})
		return nil
	})
	// Strategies degrade internally and never return errors here.
	_ = g.Wait()

	// Fixed concatenation order keeps repeated runs byte-identical.
	all := make([]domain.MatchResult, 0, len(semantic)+len(exact)+len(fuzzy))
	all = append(all, semantic...)
	all = append(all, exact...)
	all = append(all, fuzzy...)
	return all
}

// runSemantic embeds the query and resolves nearest neighbors to items. A
// provider failure means "semantic unavailable for this query", not an error.
func (s *Service) runSemantic(ctx context.Context, ownerID, query string, items []*domain.Item) []domain.MatchResult {
	if s.embed == nil || s.index == nil {
		return nil
	}
	ectx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()

	emb, err := s.embed.Embed(ectx, query)
	if err != nil {
		metrics.StrategyDegradedTotal.WithLabelValues("semantic", degradeReason(err)).Inc()
		s.logger.Warn("semantic strategy unavailable", zap.Error(err))
		return nil
	}

	byID := make(map[string]*domain.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	var results []domain.MatchResult
	for _, n := range s.index.TopK(ownerID, emb.Embedding, s.cfg.TopK) {
		item, ok := byID[n.ItemID]
		if !ok {
			continue // vector for an item deleted from the store
		}
		score := n.Similarity
		if score <= 0 {
			continue
		}
		if score > 1 {
			score = 1
		}
		results = append(results, domain.MatchResult{
			Item:     item,
			Score:    score,
			Strategy: domain.StrategySemantic,
			Excerpt:  textnorm.Excerpt(item.RawText, 5, nil),
		})
	}
	return results
}

// runLexical applies a pure matcher across the items, checking the engine
// budget between iterations; on timeout the partial result set is kept.
func (s *Service) runLexical(
	ctx context.Context, name string, items []*domain.Item,
	match func(*domain.Item) []domain.MatchResult,
) []domain.MatchResult {
	deadline := time.Now().Add(s.cfg.EngineTimeout)
	var results []domain.MatchResult
	for i, item := range items {
		if i%64 == 0 && (ctx.Err() != nil || time.Now().After(deadline)) {
			metrics.StrategyDegradedTotal.WithLabelValues(name, "timeout").Inc()
			s.logger.Warn("lexical strategy cut short",
				zap.String("strategy", name), zap.Int("scanned", i), zap.Int("total", len(items)))
			break
		}
		results = append(results, match(item)...)
	}
	return results
}

// filterOnly handles blank-text queries: every item passing the structural
// filters is returned, tagged by the filter that selected it, ordered by
// recency via fusion's tie-break.
func (s *Service) filterOnly(q domain.Query, items []*domain.Item) []domain.FusedResult {
	tag := domain.StrategyMetadata
	if len(q.Filters.Categories) > 0 {
		tag = domain.StrategyCategory
	}

	var matches []domain.MatchResult
	for _, item := range items {
		if !q.Filters.MatchItem(item) {
			continue
		}
		matches = append(matches, domain.MatchResult{
			Item:     item,
			Score:    1.0,
			Strategy: tag,
			Excerpt:  textnorm.Excerpt(item.RawText, 5, nil),
		})
	}
	return fusion.Fuse(matches)
}

// guardOwner enforces the isolation invariant on the fused list. It should
// never fire; when it does the search fails loudly instead of leaking data.
func guardOwner(fused []domain.FusedResult, ownerID string) error {
	for _, r := range fused {
		if r.Item.OwnerID != ownerID {
			return fmt.Errorf("item %s crossed owner boundary: %w", r.Item.ID, domain.ErrOwnerIsolation)
		}
	}
	return nil
}

func applyFilters(fused []domain.FusedResult, f domain.Filters) []domain.FusedResult {
	if f.IsEmpty() {
		return fused
	}
	out := fused[:0:0]
	for _, r := range fused {
		if !f.MatchItem(r.Item) {
			continue
		}
		if r.Relevance < f.MinConfidence {
			continue
		}
		out = append(out, r)
	}
	return out
}

func pageOf(fused []domain.FusedResult, offset, limit int) []domain.FusedResult {
	if offset >= len(fused) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(fused) {
		end = len(fused)
	}
	return fused[offset:end]
}

func strategiesUsed(fused []domain.FusedResult) []domain.Strategy {
	seen := make(map[domain.Strategy]struct{})
	for _, r := range fused {
		for _, s := range r.Strategies {
			seen[s] = struct{}{}
		}
	}
	out := make([]domain.Strategy, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Precedence() < out[j].Precedence() })
	return out
}

// confidence summarizes result quality as the top score, or 0 when empty.
// Callers use it to decide whether to offer a "try different keywords" hint.
func confidence(fused []domain.FusedResult) float64 {
	if len(fused) == 0 {
		return 0
	}
	return fused[0].Relevance
}

func degradeReason(err error) string {
	switch {
	case err == nil:
		return "empty"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrEmptyInput):
		return "empty_input"
	default:
		return "error"
	}
}
