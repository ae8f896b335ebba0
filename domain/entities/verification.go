package entities

import "time"

// PatternMatch records a single satisfied pattern within a verification
type PatternMatch struct {
	PatternID      string `json:"pattern_id"`
	PatternName    string `json:"pattern_name"`
	MatchedNumbers []int  `json:"matched_numbers"`
}

// VerificationResult is the outcome of evaluating a cartela grid against
// the drawn numbers and every active win pattern. All satisfied patterns
// are aggregated, not just the first.
type VerificationResult struct {
	IsWinner            bool           `json:"is_winner"`
	MatchedPatternIDs   []string       `json:"matched_pattern_ids"`
	MatchedPatternNames []string       `json:"matched_pattern_names"`
	MatchedNumbers      []int          `json:"matched_numbers"` // Union across satisfied patterns
	PerPattern          []PatternMatch `json:"per_pattern"`
	VerifiedAt          time.Time      `json:"verified_at"`
	Locked              bool           `json:"locked"`
}
