package synthesis

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/domain"
)

// LogHook is the no-transport completion hook used when no synthesis
// endpoint is configured. Findings still show up in the logs.
type LogHook struct {
	log zerolog.Logger
}

var _ domain.CompletionHook = (*LogHook)(nil)

// NewLogHook creates a log-only completion hook
func NewLogHook(log zerolog.Logger) *LogHook {
	return &LogHook{log: log.With().Str("component", "completion_log").Logger()}
}

// OnEvaluationCompleted logs the significant verdict
func (h *LogHook) OnEvaluationCompleted(ctx context.Context, hypothesisID string, verdict *domain.Verdict) {
	h.log.Info().
		Str("hypothesis_id", hypothesisID).
		Float64("p_value", verdict.PValue).
		Float64("adjusted_p_value", verdict.AdjustedPValue).
		Float64("effect_size", verdict.EffectSize).
		Int("sample_size", verdict.SampleSize).
		Int("population_size", verdict.PopulationSize).
		Msg("Significant relationship confirmed")
}
