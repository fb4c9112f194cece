package httpapi

import (
	"fmt"
	"time"

	"github.com/stashbox-io/stashbox/internal/domain"
	"github.com/stashbox-io/stashbox/internal/usecase/search"
)

type searchRequest struct {
	Query          string      `json:"query"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Limit          int         `json:"limit,omitempty"`
	Offset         int         `json:"offset,omitempty"`
	Filters        *filtersDTO `json:"filters,omitempty"`
}

type filtersDTO struct {
	ContentTypes  []string   `json:"content_types,omitempty"`
	Categories    []string   `json:"categories,omitempty"`
	DateFrom      *time.Time `json:"date_from,omitempty"`
	DateTo        *time.Time `json:"date_to,omitempty"`
	MinConfidence float64    `json:"min_confidence,omitempty"`
}

type moreRequest struct {
	ConversationID string `json:"conversation_id"`
	PageSize       int    `json:"page_size,omitempty"`
}

type reindexRequest struct {
	Force bool `json:"force,omitempty"`
}

type resultDTO struct {
	ItemID      string            `json:"item_id"`
	Text        string            `json:"text"`
	Summary     string            `json:"summary,omitempty"`
	Category    string            `json:"category,omitempty"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Relevance   float64           `json:"relevance"`
	MatchType   string            `json:"match_type"`
	Excerpt     string            `json:"excerpt,omitempty"`
	Strategies  []string          `json:"strategies,omitempty"`
}

type searchResponse struct {
	Results          []resultDTO `json:"results"`
	Total            int         `json:"total"`
	Strategies       []string    `json:"strategies,omitempty"`
	Enhanced         bool        `json:"enhanced"`
	Confidence       float64     `json:"confidence"`
	ProcessingTimeMS int64       `json:"processing_time_ms"`
	HasMore          bool        `json:"has_more"`
}

type moreResponse struct {
	Results   []resultDTO `json:"results"`
	HasMore   bool        `json:"has_more"`
	Remaining int         `json:"remaining"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func filtersFromDTO(f *filtersDTO) (domain.Filters, error) {
	if f == nil {
		return domain.Filters{}, nil
	}
	out := domain.Filters{
		Categories:    f.Categories,
		MinConfidence: f.MinConfidence,
	}
	for _, ct := range f.ContentTypes {
		t := domain.ContentType(ct)
		if !t.IsValid() {
			return domain.Filters{}, fmt.Errorf("unknown content type %q", ct)
		}
		out.ContentTypes = append(out.ContentTypes, t)
	}
	if f.DateFrom != nil {
		out.Dates.From = *f.DateFrom
	}
	if f.DateTo != nil {
		out.Dates.To = *f.DateTo
	}
	return out, nil
}

func resultToDTO(r domain.FusedResult) resultDTO {
	strategies := make([]string, len(r.Strategies))
	for i, s := range r.Strategies {
		strategies[i] = string(s)
	}
	return resultDTO{
		ItemID:      r.Item.ID,
		Text:        r.Item.RawText,
		Summary:     r.Item.Summary,
		Category:    r.Item.Category,
		ContentType: string(r.Item.ContentType),
		Metadata:    r.Item.Metadata,
		CreatedAt:   r.Item.CreatedAt,
		Relevance:   r.Relevance,
		MatchType:   string(r.MatchType),
		Excerpt:     r.Excerpt,
		Strategies:  strategies,
	}
}

func resultsToDTO(rs []domain.FusedResult) []resultDTO {
	out := make([]resultDTO, len(rs))
	for i, r := range rs {
		out[i] = resultToDTO(r)
	}
	return out
}

func searchResponseToDTO(resp *search.Response) searchResponse {
	strategies := make([]string, len(resp.Strategies))
	for i, s := range resp.Strategies {
		strategies[i] = string(s)
	}
	return searchResponse{
		Results:          resultsToDTO(resp.Results),
		Total:            resp.Total,
		Strategies:       strategies,
		Enhanced:         resp.Enhanced,
		Confidence:       resp.Confidence,
		ProcessingTimeMS: resp.ProcessingTime.Milliseconds(),
		HasMore:          resp.HasMore,
	}
}
