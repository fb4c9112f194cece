package domain

import (
	"fmt"
	"strings"
	"time"
)

// Search parameter limits.
const (
	MaxQueryLength = 1024
	DefaultLimit   = 10
	MaxLimit       = 50
)

// DateRange bounds item creation time. Zero values leave the bound open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (d DateRange) Contains(t time.Time) bool {
	if !d.From.IsZero() && t.Before(d.From) {
		return false
	}
	if !d.To.IsZero() && t.After(d.To) {
		return false
	}
	return true
}

// Filters narrow a search beyond text relevance.
type Filters struct {
	ContentTypes  []ContentType
	Categories    []string
	Dates         DateRange
	MinConfidence float64
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return len(f.ContentTypes) == 0 && len(f.Categories) == 0 &&
		f.Dates.From.IsZero() && f.Dates.To.IsZero() && f.MinConfidence == 0
}

// MatchItem applies the structural filters (type, category, date) to an item.
// MinConfidence is applied to the fused score, not here.
func (f Filters) MatchItem(item *Item) bool {
	if len(f.ContentTypes) > 0 {
		ok := false
		for _, ct := range f.ContentTypes {
			if item.ContentType == ct {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Categories) > 0 {
		ok := false
		for _, c := range f.Categories {
			if strings.EqualFold(item.Category, c) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return f.Dates.Contains(item.CreatedAt)
}

// Query is a validated, owner-scoped search request.
type Query struct {
	Text    string
	OwnerID string
	Filters Filters
	Limit   int
	Offset  int
}

// NewQuery validates and normalizes search parameters.
// Defaults: limit=10, clamped to MaxLimit. Empty text is allowed (filter-only
// search); empty text with no filters deterministically yields zero results.
func NewQuery(text, ownerID string, filters Filters, limit, offset int) (Query, error) {
	if ownerID == "" {
		return Query{}, fmt.Errorf("%w: owner id is required", ErrInvalidQuery)
	}
	if len(text) > MaxQueryLength {
		return Query{}, fmt.Errorf("%w: query too long (max %d chars)", ErrInvalidQuery, MaxQueryLength)
	}
	if filters.MinConfidence < 0 || filters.MinConfidence > 1 {
		return Query{}, fmt.Errorf("%w: min_confidence must be between 0 and 1", ErrInvalidQuery)
	}
	for _, ct := range filters.ContentTypes {
		if !ct.IsValid() {
			return Query{}, fmt.Errorf("%w: unknown content type %q", ErrInvalidQuery, ct)
		}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Query{
		Text:    strings.TrimSpace(text),
		OwnerID: ownerID,
		Filters: filters,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// IsBlank reports whether the query carries no text.
func (q Query) IsBlank() bool { return q.Text == "" }
