package domain

// Strategy identifies which match engine produced a result. The set is closed:
// fusion and formatting handle every value exhaustively.
type Strategy string

// Match strategies, ordered by precision.
const (
	StrategyExact    Strategy = "exact"
	StrategyCategory Strategy = "category"
	StrategyMetadata Strategy = "metadata"
	StrategySemantic Strategy = "semantic"
	StrategyFuzzy    Strategy = "fuzzy"
)

// IsValid reports whether the strategy is one of the known tags.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyExact, StrategyCategory, StrategyMetadata, StrategySemantic, StrategyFuzzy:
		return true
	}
	return false
}

// Precedence orders strategies for deterministic tie-breaking: structured
// signals outrank statistical ones. Lower value wins.
func (s Strategy) Precedence() int {
	switch s {
	case StrategyExact:
		return 0
	case StrategyCategory:
		return 1
	case StrategyMetadata:
		return 2
	case StrategySemantic:
		return 3
	case StrategyFuzzy:
		return 4
	}
	return 5
}
