package domain

import (
	"strings"
	"time"
)

// ContentType classifies the capture channel of an item.
type ContentType string

// Supported content types.
const (
	ContentTypeText  ContentType = "text"
	ContentTypeVoice ContentType = "voice"
	ContentTypeImage ContentType = "image"
	ContentTypeEmail ContentType = "email"
)

// IsValid reports whether the content type is one of the known values.
func (c ContentType) IsValid() bool {
	switch c {
	case ContentTypeText, ContentTypeVoice, ContentTypeImage, ContentTypeEmail:
		return true
	}
	return false
}

// Item is one captured piece of content ("dump") as seen by the search engine.
// RawText is always present; Summary, Category and Vector are filled in by the
// ingestion pipeline as the AI steps complete. An item without a vector is still
// searchable by the lexical strategies.
type Item struct {
	ID          string            `json:"id"`
	OwnerID     string            `json:"owner_id"`
	RawText     string            `json:"raw_text"`
	Summary     string            `json:"summary,omitempty"`
	Category    string            `json:"category,omitempty"`
	ContentType ContentType       `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Vector      []float32         `json:"vector,omitempty"`
}

// HasVector reports whether the item has been semantically indexed.
func (i *Item) HasVector() bool { return len(i.Vector) > 0 }

// EmbeddingText returns the text sent to the embedding provider: the AI summary
// when present (denser signal), otherwise the raw text.
func (i *Item) EmbeddingText() string {
	if s := strings.TrimSpace(i.Summary); s != "" {
		return s
	}
	return strings.TrimSpace(i.RawText)
}
