package models

import "time"

// Method names which sources produced a prediction.
type Method string

const (
	MethodEnsemble       Method = "ensemble"
	MethodMLOnly         Method = "ml_only"
	MethodHistoricalOnly Method = "historical_only"
	MethodNone           Method = "none"
)

// EnrichmentNote is what a parsed enrichment response contributed to a prediction.
type EnrichmentNote struct {
	Direction            Direction `json:"direction,omitempty"`
	Confidence           float64   `json:"confidence"`
	Reasoning            string    `json:"reasoning,omitempty"`
	RiskLevel            string    `json:"risk_level,omitempty"`
	ManipulationDetected bool      `json:"manipulation_detected"`
	ManipulationReason   string    `json:"manipulation_reason,omitempty"`
	Raw                  string    `json:"raw,omitempty"`
}

// Prediction is created once by the engine and mutated exactly once by the validator.
type Prediction struct {
	ID                  string          `json:"id"`
	Symbol              string          `json:"symbol"`
	Timestamp           time.Time       `json:"timestamp"`
	Direction           Direction       `json:"direction"`
	Confidence          float64         `json:"confidence"`
	RawConfidence       float64         `json:"raw_confidence"`
	Method              Method          `json:"method"`
	MeetsThreshold      bool            `json:"meets_threshold"`
	FeatureSet          FeatureSet      `json:"feature_set"`
	Patterns            []string        `json:"patterns"`
	ModelVersion        int64           `json:"model_version"`
	ManipulationWarning bool            `json:"manipulation_warning"`
	Enrichment          *EnrichmentNote `json:"enrichment,omitempty"`

	Validated           bool       `json:"validated"`
	WasCorrect          *bool      `json:"was_correct,omitempty"`
	ActualOutcome       Direction  `json:"actual_outcome,omitempty"`
	ValidationTimestamp *time.Time `json:"validation_timestamp,omitempty"`
}

// Resolution is the ground truth the validator attaches to a prediction.
type Resolution struct {
	Outcome         Direction `json:"outcome"`
	WasCorrect      bool      `json:"was_correct"`
	ResolvedAt      time.Time `json:"resolved_at"`
	AnchorClose     float64   `json:"anchor_close"`
	ResolutionClose float64   `json:"resolution_close"`
}

// Resolve applies r once; a second call fails with ErrAlreadyValidated.
func (p *Prediction) Resolve(r Resolution) error {
	if p.Validated {
		return ErrAlreadyValidated
	}
	correct := r.WasCorrect
	at := r.ResolvedAt
	p.Validated = true
	p.WasCorrect = &correct
	p.ActualOutcome = r.Outcome
	p.ValidationTimestamp = &at
	return nil
}

// Correct reports whether the prediction was resolved as correct.
func (p Prediction) Correct() bool { return p.WasCorrect != nil && *p.WasCorrect }

// HistoricalRecord is the analogy-search view of a prediction.
func (p Prediction) HistoricalRecord() HistoricalRecord {
	rec := HistoricalRecord{PredictionID: p.ID, Symbol: p.Symbol, Timestamp: p.Timestamp, FeatureSet: p.FeatureSet}
	if p.Validated {
		rec.Outcome = p.ActualOutcome
	}
	return rec
}

// HistoricalRecord pairs a past feature set with its realised outcome (empty while unresolved).
type HistoricalRecord struct {
	PredictionID string     `json:"prediction_id"`
	Symbol       string     `json:"symbol"`
	Timestamp    time.Time  `json:"timestamp"`
	FeatureSet   FeatureSet `json:"feature_set"`
	Outcome      Direction  `json:"outcome,omitempty"`
}

// PredictionFilter narrows prediction scans. Zero values mean "any".
type PredictionFilter struct {
	Symbol          string
	Validated       *bool
	From            time.Time
	To              time.Time
	ValidatedAfter  time.Time
	ValidatedBefore time.Time
	Limit           int
}

// BoolPtr is a helper for PredictionFilter.Validated.
func BoolPtr(b bool) *bool { return &b }
