// Package httpapi exposes the search engine over a chi-routed JSON API.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
	feedbackuc "github.com/stashbox-io/stashbox/internal/usecase/feedback"
	healthuc "github.com/stashbox-io/stashbox/internal/usecase/health"
	reindexuc "github.com/stashbox-io/stashbox/internal/usecase/reindex"
	searchuc "github.com/stashbox-io/stashbox/internal/usecase/search"
)

// ownerHeader identifies the requesting owner. Every data route requires it;
// the value scopes all reads and writes.
const ownerHeader = "X-Owner-ID"

// Error response codes.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeNotFound         = "not_found"
	codeSessionExpired   = "session_expired"
	codeProviderError    = "embedding_provider_error"
	codeInternalError    = "internal_error"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the use case services behind the HTTP routes.
type Server struct {
	search        *searchuc.Service
	reindex       *reindexuc.Service
	feedback      *feedbackuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	search *searchuc.Service,
	reindex *reindexuc.Service,
	feedback *feedbackuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:   search,
		reindex:  reindex,
		feedback: feedback,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrSessionExpired, http.StatusGone, codeSessionExpired),
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrEmptyInput, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrItemNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
	}
	return s
}

// Routes builds the router. Middleware (auth, metrics, logging) is attached
// by the composition root.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/search/more", s.handleMore)
		r.Get("/quick-search", s.handleQuickSearch)
		r.Get("/suggest", s.handleSuggest)
		r.Post("/reindex", s.handleReindex)
		r.Post("/feedback", s.handleFeedback)
	})
	return r
}

// handleSearch handles POST /api/v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	filters, err := filtersFromDTO(req.Filters)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	q, err := domain.NewQuery(req.Query, ownerID, filters, req.Limit, req.Offset)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.search.Search(r.Context(), q, req.ConversationID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseToDTO(resp))
}

// handleMore handles POST /api/v1/search/more.
func (s *Server) handleMore(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	var req moreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ConversationID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "conversation_id is required")
		return
	}

	page, err := s.search.More(r.Context(), ownerID, req.ConversationID, req.PageSize)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, moreResponse{
		Results:   resultsToDTO(page.Results),
		HasMore:   page.HasMore,
		Remaining: page.Remaining,
	})
}

// handleQuickSearch handles GET /api/v1/quick-search.
func (s *Server) handleQuickSearch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	limit := queryInt(r, "limit")

	results, err := s.search.QuickSearch(r.Context(), ownerID, query, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": resultsToDTO(results),
		"total":   len(results),
	})
}

// handleSuggest handles GET /api/v1/suggest.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	prefix := r.URL.Query().Get("prefix")
	limit := queryInt(r, "limit")

	suggestions, err := s.search.Suggest(r.Context(), ownerID, prefix, limit)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

// handleReindex handles POST /api/v1/reindex. The run is synchronous; the
// response carries the per-item outcome.
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	summary, err := s.reindex.Reindex(r.Context(), req.Force)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleFeedback handles POST /api/v1/feedback.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := s.ownerID(w, r)
	if !ok {
		return
	}

	var fb domain.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	fb.OwnerID = ownerID

	stored, err := s.feedback.Record(r.Context(), &fb)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, stored)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":     report.Status,
		"checks":     report.Checks,
		"index_size": report.IndexSize,
	})
}

func (s *Server) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := r.Header.Get(ownerHeader)
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, ownerHeader+" header is required")
		return "", false
	}
	return ownerID, true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSessionExpired,
		domain.ErrInvalidQuery,
		domain.ErrEmptyInput,
		domain.ErrItemNotFound,
		domain.ErrEmbeddingProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
