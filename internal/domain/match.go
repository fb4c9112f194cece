package domain

// MatchResult is a single engine's verdict on one item. Several results for the
// same item (from different strategies) are legal; rank fusion merges them.
type MatchResult struct {
	Item     *Item
	Score    float64 // [0,1]
	Strategy Strategy
	Excerpt  string
}

// FusedResult is one entry of the final ranked list.
type FusedResult struct {
	Item       *Item      `json:"item"`
	Relevance  float64    `json:"relevance"`
	MatchType  Strategy   `json:"match_type"`
	Excerpt    string     `json:"excerpt,omitempty"`
	Strategies []Strategy `json:"strategies,omitempty"`
}
