package search

import "github.com/quietbeacon/epi/internal/types"

// MatchRank classifies how a result matched the query. Higher ranks
// always order before lower ones regardless of score.
type MatchRank uint8

const (
	RankNone MatchRank = iota
	RankFuzzy
	RankKeyword
	RankExact
)

// String returns the rank's wire name.
func (r MatchRank) String() string {
	switch r {
	case RankExact:
		return "exact"
	case RankKeyword:
		return "keyword"
	case RankFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// MarshalText makes ranks encode as their wire name in JSON responses.
func (r MatchRank) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a wire name back into a rank. Unknown names
// decode as RankNone instead of failing the whole response.
func (r *MatchRank) UnmarshalText(text []byte) error {
	switch string(text) {
	case "exact":
		*r = RankExact
	case "keyword":
		*r = RankKeyword
	case "fuzzy":
		*r = RankFuzzy
	default:
		*r = RankNone
	}
	return nil
}

// Result couples a procedure with how it matched. The caller uses rank
// and score to disambiguate when several procedures match equally; the
// engine never silently picks a winner for them.
type Result struct {
	Procedure *types.Procedure `json:"procedure"`
	Rank      MatchRank        `json:"rank"`
	Score     float64          `json:"score"`

	// Matched lists the normalized query tokens that landed on this
	// procedure, in query order. Empty for exact matches.
	Matched []string `json:"matched,omitempty"`

	// Warning explains fuzzy interpretations ("oxigen" read as
	// "oxygen") so callers can surface them.
	Warning string `json:"warning,omitempty"`
}
