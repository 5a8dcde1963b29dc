package models

import "time"

// PatternScore tracks how often predictions with a given feature signature were right.
type PatternScore struct {
	Signature    string    `json:"signature"`
	SuccessCount int64     `json:"success_count"`
	FailureCount int64     `json:"failure_count"`
	SuccessRate  float64   `json:"success_rate"`
	LastSeen     time.Time `json:"last_seen"`
}

// Record returns s with one more outcome counted.
func (s PatternScore) Record(success bool, at time.Time) PatternScore {
	if success {
		s.SuccessCount++
	} else {
		s.FailureCount++
	}
	if total := s.SuccessCount + s.FailureCount; total > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(total)
	}
	if at.After(s.LastSeen) {
		s.LastSeen = at
	}
	return s
}

// Samples is the number of outcomes counted.
func (s PatternScore) Samples() int64 { return s.SuccessCount + s.FailureCount }
