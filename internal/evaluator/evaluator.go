// Package evaluator orchestrates one hypothesis evaluation: fetch the event
// and price series, align them, run the test family, apply population-wide
// correction, and persist the verdict atomically with the population
// counter bump.
package evaluator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/align"
	"github.com/aristath/edgefinder/internal/correction"
	"github.com/aristath/edgefinder/internal/database"
	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
	"github.com/aristath/edgefinder/internal/modules/relationships"
	"github.com/aristath/edgefinder/internal/modules/verdicts"
	"github.com/aristath/edgefinder/internal/stattest"
	"github.com/aristath/edgefinder/internal/utils"
)

// ErrHypothesisNotFound is returned when the hypothesis id does not exist
var ErrHypothesisNotFound = errors.New("hypothesis not found")

// ErrNotPending is returned when a hypothesis is already running or was
// evaluated since it was scheduled. The second of two concurrent attempts
// for the same id always gets this; only one verdict is produced.
var ErrNotPending = errors.New("hypothesis is not pending")

// commitAttempts bounds retries on a stale population snapshot. The commit
// mutex makes in-process races impossible, so more than a couple of
// attempts means another writer owns the database.
const commitAttempts = 3

// Config holds evaluation tunables
type Config struct {
	FamilyWiseAlpha  float64
	MinSamples       int
	GrangerMaxLag    int
	PermutationCount int
	EventWindowPre   int
	EventWindowPost  int
	BaselinePeriod   int
	QueryTimeout     time.Duration
}

// Evaluator runs the evaluation pipeline for single hypotheses
type Evaluator struct {
	cfg           Config
	eventSource   domain.EventSource
	priceSource   domain.PriceSource
	researchDB    *database.DB
	hypotheses    *hypotheses.Repository
	verdicts      *verdicts.Repository
	relationships *relationships.Repository
	corrector     *correction.Corrector
	hook          domain.CompletionHook
	log           zerolog.Logger

	// commitMu serializes the population-snapshot read with the verdict
	// write so two completions cannot both correct against the same
	// population size.
	commitMu sync.Mutex
}

// New creates a new evaluator. hook may be nil when no downstream consumer
// is wired.
func New(
	cfg Config,
	eventSource domain.EventSource,
	priceSource domain.PriceSource,
	researchDB *database.DB,
	hypothesesRepo *hypotheses.Repository,
	verdictsRepo *verdicts.Repository,
	relationshipsRepo *relationships.Repository,
	hook domain.CompletionHook,
	log zerolog.Logger,
) *Evaluator {
	return &Evaluator{
		cfg:           cfg,
		eventSource:   eventSource,
		priceSource:   priceSource,
		researchDB:    researchDB,
		hypotheses:    hypothesesRepo,
		verdicts:      verdictsRepo,
		relationships: relationshipsRepo,
		corrector:     correction.New(cfg.FamilyWiseAlpha),
		hook:          hook,
		log:           log.With().Str("component", "evaluator").Logger(),
	}
}

// Evaluate runs one hypothesis end to end and returns its verdict.
//
// State machine: Pending -> Running via a conditional update (exactly one
// winner per id), then Running -> Completed or Running -> Failed with the
// failure reason recorded verbatim. Cancellation is honored between I/O
// suspension points only; once the test has produced a result, persistence
// always completes so a possibly-significant verdict is never lost.
func (e *Evaluator) Evaluate(ctx context.Context, hypothesisID string) (*domain.Verdict, error) {
	h, err := e.hypotheses.GetByID(hypothesisID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, ErrHypothesisNotFound
	}

	became, err := e.hypotheses.MarkRunning(h.ID)
	if err != nil {
		return nil, err
	}
	if !became {
		return nil, ErrNotPending
	}

	timer := utils.NewTimer("evaluate_"+string(h.TestType), e.log)
	verdict, err := e.run(ctx, h)
	timer.Stop()
	if err != nil {
		if failErr := e.hypotheses.MarkFailed(h.ID, err.Error()); failErr != nil {
			e.log.Error().Err(failErr).Str("hypothesis_id", h.ID).Msg("Failed to record failure")
		}
		e.log.Warn().Err(err).Str("hypothesis_id", h.ID).Msg("Evaluation failed")
		return nil, err
	}

	if err := e.hypotheses.MarkCompleted(h.ID, verdict.CreatedAt); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("hypothesis_id", h.ID).
		Float64("p_value", verdict.PValue).
		Float64("adjusted_p_value", verdict.AdjustedPValue).
		Bool("significant", verdict.Significant).
		Msg("Evaluation completed")

	// Exactly one completion signal per run, and only for significant
	// verdicts; non-significant completions update the hypothesis record
	// with no downstream signal.
	if verdict.Significant && e.hook != nil {
		e.hook.OnEvaluationCompleted(context.Background(), h.ID, verdict)
	}

	return verdict, nil
}

// run fetches, aligns, tests, corrects, and persists. Any returned error
// moves the hypothesis to Failed.
func (e *Evaluator) run(ctx context.Context, h *domain.Hypothesis) (*domain.Verdict, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -h.LookbackDays)

	events, err := e.fetchEvents(ctx, h, start, end)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prices, err := e.fetchPrices(ctx, h, start, end)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := e.runTest(h, events, prices)
	if err != nil {
		return nil, err
	}

	// Computation is done; persistence must not observe the caller's
	// cancellation from here on.
	return e.commit(h, result)
}

func (e *Evaluator) fetchEvents(ctx context.Context, h *domain.Hypothesis, start, end time.Time) ([]domain.Event, error) {
	queryCtx, cancel := e.queryContext(ctx)
	defer cancel()

	events, err := e.eventSource.QueryEvents(queryCtx, h.EventType, "", start, end)
	if err != nil {
		return nil, &domain.CollaboratorUnavailableError{Collaborator: "event store", Err: err}
	}
	return events, nil
}

func (e *Evaluator) fetchPrices(ctx context.Context, h *domain.Hypothesis, start, end time.Time) ([]domain.PricePoint, error) {
	queryCtx, cancel := e.queryContext(ctx)
	defer cancel()

	prices, err := e.priceSource.QueryPrices(queryCtx, h.MarketAsset, start, end)
	if err != nil {
		return nil, &domain.CollaboratorUnavailableError{Collaborator: "price store", Err: err}
	}
	return prices, nil
}

func (e *Evaluator) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.cfg.QueryTimeout)
}

// runTest dispatches over the closed test-family set. The switch is
// exhaustive: an unknown type is a storage-level invariant violation.
func (e *Evaluator) runTest(h *domain.Hypothesis, events []domain.Event, prices []domain.PricePoint) (*stattest.Result, error) {
	switch h.TestType {
	case domain.TestCorrelation:
		series, err := align.Align(events, prices, align.Options{MinSamples: e.cfg.MinSamples})
		if err != nil {
			return nil, err
		}
		result, err := stattest.Correlation(series.X, series.Y)
		if err != nil {
			return nil, err
		}
		result.Diagnostics["dropped_events"] = series.DroppedEvents
		return result, nil

	case domain.TestGrangerCausality:
		series, err := align.Align(events, prices, align.Options{MinSamples: e.cfg.MinSamples})
		if err != nil {
			return nil, err
		}
		result, err := stattest.GrangerCausality(series.X, series.Y, e.cfg.GrangerMaxLag)
		if err != nil {
			return nil, err
		}
		result.Diagnostics["dropped_events"] = series.DroppedEvents
		// Cross-correlation best lag is advisory: it tells the reviewer
		// where the association concentrates inside the lag grid.
		if leadLag, llErr := stattest.LeadLag(series.X, series.Y, e.cfg.GrangerMaxLag); llErr == nil {
			result.Diagnostics["lead_lag_best"] = leadLag.BestLag
			result.Diagnostics["lead_lag_correlation"] = leadLag.BestCorrelation
		}
		return result, nil

	case domain.TestEventStudy:
		windows, err := align.BuildEventWindows(
			events, prices,
			e.cfg.EventWindowPre, e.cfg.EventWindowPost,
			e.cfg.BaselinePeriod, e.cfg.MinSamples,
		)
		if err != nil {
			return nil, err
		}
		result, err := stattest.EventStudy(windows.CARs)
		if err != nil {
			return nil, err
		}
		result.Diagnostics["dropped_events"] = windows.DroppedEvents
		result.Diagnostics["window_pre"] = windows.Pre
		result.Diagnostics["window_post"] = windows.Post
		return result, nil

	case domain.TestPermutation:
		series, err := align.Align(events, prices, align.Options{MinSamples: e.cfg.MinSamples})
		if err != nil {
			return nil, err
		}
		result, err := stattest.Permutation(series.X, series.Y, e.cfg.PermutationCount)
		if err != nil {
			return nil, err
		}
		result.Diagnostics["dropped_events"] = series.DroppedEvents
		return result, nil

	default:
		return nil, fmt.Errorf("unknown test type: %s", h.TestType)
	}
}

// commit writes the verdict atomically with the population counter bump and,
// for significant verdicts, the relationship record. The population read and
// the write happen in one transaction under the commit mutex, so the
// correction is always computed against the population the write lands in.
func (e *Evaluator) commit(h *domain.Hypothesis, result *stattest.Result) (*domain.Verdict, error) {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	var verdict *domain.Verdict
	var lastErr error

	for attempt := 0; attempt < commitAttempts; attempt++ {
		verdict = nil
		lastErr = database.WithTransaction(e.researchDB.Conn(), func(tx *sql.Tx) error {
			snapshot, err := e.verdicts.PopulationTx(tx)
			if err != nil {
				return err
			}

			// The hypothesis being evaluated counts toward its own
			// correction, so the divisor includes it.
			population := snapshot + 1
			adjusted, significant := e.corrector.Correct(result.PValue, population)

			v := &domain.Verdict{
				HypothesisID:   h.ID,
				PValue:         result.PValue,
				AdjustedPValue: adjusted,
				EffectSize:     result.EffectSize,
				SampleSize:     result.SampleSize,
				PopulationSize: population,
				Significant:    significant,
				Diagnostics:    result.Diagnostics,
				CreatedAt:      time.Now().UTC(),
			}

			if err := e.verdicts.InsertTx(tx, v); err != nil {
				return err
			}
			if err := e.verdicts.BumpPopulationTx(tx, snapshot); err != nil {
				return err
			}

			if significant {
				if err := e.relationships.CreateTx(tx, e.buildRelationship(h, v, result)); err != nil {
					return err
				}
			}

			verdict = v
			return nil
		})

		if lastErr == nil {
			return verdict, nil
		}
		if !errors.Is(lastErr, domain.ErrPopulationSnapshotStale) {
			return nil, lastErr
		}
		// Fresh snapshot on the next attempt
	}

	return nil, lastErr
}

func (e *Evaluator) buildRelationship(h *domain.Hypothesis, v *domain.Verdict, result *stattest.Result) *domain.Relationship {
	hitRate := diagFloat(result.Diagnostics, "hit_rate", 0.5)
	edge := diagFloat(result.Diagnostics, "edge", 0)

	return &domain.Relationship{
		HypothesisID:   h.ID,
		VerdictID:      v.ID,
		EventType:      h.EventType,
		MarketAsset:    h.MarketAsset,
		HitRate:        hitRate,
		Edge:           edge,
		PValue:         v.PValue,
		AdjustedPValue: v.AdjustedPValue,
		SampleSize:     v.SampleSize,
		Description: fmt.Sprintf("%s -> %s: %.1f%% hit rate, p=%.4f (adjusted %.4f)",
			h.EventType, h.MarketAsset, hitRate*100, v.PValue, v.AdjustedPValue),
		CreatedAt: v.CreatedAt,
	}
}

func diagFloat(diagnostics map[string]interface{}, key string, fallback float64) float64 {
	if diagnostics == nil {
		return fallback
	}
	if value, ok := diagnostics[key].(float64); ok {
		return value
	}
	return fallback
}
