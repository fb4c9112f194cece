package domain

import (
	"fmt"
	"time"
)

// Feedback is an advisory user rating of a prior query+result pair. Recorded
// for quality tuning; never consulted by the ranking path.
type Feedback struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Query     string    `json:"query"`
	ItemID    string    `json:"item_id,omitempty"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the feedback record.
func (f *Feedback) Validate() error {
	if f.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvalidQuery)
	}
	if f.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidQuery)
	}
	if f.Rating < 1 || f.Rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidQuery)
	}
	return nil
}
