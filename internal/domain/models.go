// Package domain provides core domain models and types.
package domain

import "time"

// TestType identifies the statistical test family a hypothesis is evaluated with.
// The set is closed: every evaluation dispatches over exactly these four values.
type TestType string

const (
	// TestCorrelation runs Pearson/Spearman correlation on daily-aligned series
	TestCorrelation TestType = "correlation"
	// TestGrangerCausality fits restricted/unrestricted lag models with an F-test
	TestGrangerCausality TestType = "granger_causality"
	// TestEventStudy tests cumulative abnormal returns around event occurrences
	TestEventStudy TestType = "event_study"
	// TestPermutation builds a shuffle-based null distribution of the correlation
	TestPermutation TestType = "permutation"
)

// Valid returns true for a known test type
func (t TestType) Valid() bool {
	switch t {
	case TestCorrelation, TestGrangerCausality, TestEventStudy, TestPermutation:
		return true
	default:
		return false
	}
}

// HypothesisStatus represents the lifecycle state of a hypothesis
type HypothesisStatus string

const (
	StatusPending   HypothesisStatus = "pending"
	StatusRunning   HypothesisStatus = "running"
	StatusCompleted HypothesisStatus = "completed"
	StatusFailed    HypothesisStatus = "failed"
)

// Hypothesis is a candidate event-type/asset predictive claim.
// Records are mutated only by the evaluator (status/result fields) and are
// never deleted; a re-evaluation produces a fresh verdict with a new TestedAt.
type Hypothesis struct {
	ID           string           `json:"id"`
	Claim        string           `json:"claim"`
	EventType    string           `json:"event_type"`
	MarketAsset  string           `json:"market_asset"`
	TestType     TestType         `json:"test_type"`
	LookbackDays int              `json:"lookback_days"`
	Priority     int              `json:"priority"`
	Status       HypothesisStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	TestedAt     *time.Time       `json:"tested_at,omitempty"`
}

// Verdict is the immutable statistical result of one evaluation run.
// PopulationSize is the hypothesis population snapshot the correction was
// computed against; it is stored so the verdict is reproducible.
type Verdict struct {
	ID             string                 `json:"id"`
	HypothesisID   string                 `json:"hypothesis_id"`
	PValue         float64                `json:"p_value"`
	AdjustedPValue float64                `json:"adjusted_p_value"`
	EffectSize     float64                `json:"effect_size"`
	SampleSize     int                    `json:"sample_size"`
	PopulationSize int                    `json:"population_size"`
	Significant    bool                   `json:"significant"`
	Diagnostics    map[string]interface{} `json:"diagnostics,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// RelationshipStatus marks whether a relationship still clears the
// significance bar. Invalidation is an explicit operation, never a delete.
type RelationshipStatus string

const (
	RelationshipActive      RelationshipStatus = "active"
	RelationshipInvalidated RelationshipStatus = "invalidated"
)

// Relationship is the durable record of a hypothesis that cleared significance
// after family-wise correction. It owns a copy of the statistical summary so
// downstream alerting never has to join back onto verdict history.
type Relationship struct {
	ID             string             `json:"id"`
	HypothesisID   string             `json:"hypothesis_id"`
	VerdictID      string             `json:"verdict_id"`
	EventType      string             `json:"event_type"`
	MarketAsset    string             `json:"market_asset"`
	HitRate        float64            `json:"hit_rate"`
	Edge           float64            `json:"edge"`
	PValue         float64            `json:"p_value"`
	AdjustedPValue float64            `json:"adjusted_p_value"`
	SampleSize     int                `json:"sample_size"`
	Description    string             `json:"description"`
	Status         RelationshipStatus `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	InvalidatedAt  *time.Time         `json:"invalidated_at,omitempty"`
}

// Event is a single discrete occurrence from an external feed
// (news item, filing, economic release, prediction-market move).
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Entity    string    `json:"entity,omitempty"`
	Magnitude *float64  `json:"magnitude,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
}

// PricePoint is one OHLCV bar for a market asset
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    *int64    `json:"volume,omitempty"`
}
