package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
)

// PendingSweepJob wakes the worker pool so hypotheses inserted outside a
// trigger path (bulk imports, requeues after a crash) still get picked up.
type PendingSweepJob struct {
	pool *Pool
}

// NewPendingSweepJob creates the periodic pending-hypothesis sweep
func NewPendingSweepJob(pool *Pool) *PendingSweepJob {
	return &PendingSweepJob{pool: pool}
}

// Name returns the job name
func (j *PendingSweepJob) Name() string { return "pending_sweep" }

// Run triggers the pool. The pool itself decides what is eligible.
func (j *PendingSweepJob) Run() error {
	j.pool.Trigger()
	return nil
}

// LapseReviewJob finds relationships whose original p-value no longer
// clears the correction threshold at the current population size. Lapsed
// relationships are reported, never auto-invalidated: invalidation is an
// explicit reviewer action so downstream consumers see a stable set.
type LapseReviewJob struct {
	verdicts      *verdicts.Repository
	relationships *relationships.Repository
	alpha         float64
	log           zerolog.Logger
}

// NewLapseReviewJob creates the daily significance-lapse review
func NewLapseReviewJob(verdictsRepo *verdicts.Repository, relationshipsRepo *relationships.Repository, alpha float64, log zerolog.Logger) *LapseReviewJob {
	return &LapseReviewJob{
		verdicts:      verdictsRepo,
		relationships: relationshipsRepo,
		alpha:         alpha,
		log:           log.With().Str("component", "lapse_review").Logger(),
	}
}

// Name returns the job name
func (j *LapseReviewJob) Name() string { return "lapse_review" }

// Run reports every active relationship that has lapsed
func (j *LapseReviewJob) Run() error {
	population, err := j.verdicts.Population()
	if err != nil {
		return err
	}

	lapsed, err := j.relationships.FindLapsed(population, j.alpha)
	if err != nil {
		return err
	}

	for _, rel := range lapsed {
		j.log.Warn().
			Str("relationship_id", rel.ID).
			Str("event_type", rel.EventType).
			Str("market_asset", rel.MarketAsset).
			Float64("p_value", rel.PValue).
			Int("population_size", population).
			Msg("Relationship no longer significant at current population size")
	}

	if len(lapsed) > 0 {
		j.log.Info().Int("lapsed", len(lapsed)).Msg("Lapse review found candidates for invalidation")
	} else {
		j.log.Debug().Msg("Lapse review found no lapsed relationships")
	}

	return nil
}
