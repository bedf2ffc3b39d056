package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/edgefinder/internal/domain"
	"github.com/aristath/edgefinder/internal/evaluator"
	"github.com/aristath/edgefinder/internal/modules/hypotheses"
)

// PoolConfig holds worker pool tunables
type PoolConfig struct {
	Workers        int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Pool drains pending hypotheses through a fixed set of evaluation workers.
// Dequeue order is priority descending, then submission time ascending.
// The in-flight map keeps one hypothesis from occupying two workers; the
// conditional Pending->Running update in the repository backs that up
// across processes.
type Pool struct {
	cfg        PoolConfig
	evaluator  *evaluator.Evaluator
	hypotheses *hypotheses.Repository
	log        zerolog.Logger

	trigger chan struct{}
	jobs    chan string
	stop    chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	inFlight map[string]bool
}

// NewPool creates a new evaluation worker pool
func NewPool(cfg PoolConfig, eval *evaluator.Evaluator, hypothesesRepo *hypotheses.Repository, log zerolog.Logger) *Pool {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Pool{
		cfg:        cfg,
		evaluator:  eval,
		hypotheses: hypothesesRepo,
		log:        log.With().Str("component", "eval_pool").Logger(),
		trigger:    make(chan struct{}, 1),
		jobs:       make(chan string, cfg.Workers*4),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		inFlight:   make(map[string]bool),
	}
}

// Run starts the workers and the dispatch loop. It blocks until Stop is
// called.
func (p *Pool) Run() {
	defer close(p.stopped)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}

	for {
		select {
		case <-p.stop:
			cancel()
			close(p.jobs)
			p.wg.Wait()
			return
		case <-p.trigger:
			p.dispatchPending()
		}
	}
}

// Stop cancels in-flight evaluations and waits for the workers to exit.
// Evaluations interrupted mid-fetch fail with a context error and can be
// requeued; completed computations still persist their verdicts.
func (p *Pool) Stop() {
	close(p.stop)
	<-p.stopped
}

// Trigger wakes the dispatcher to check for pending work. Non-blocking,
// safe from any goroutine.
func (p *Pool) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
		// Trigger already pending
	}
}

// InFlight returns the number of hypotheses currently being evaluated
func (p *Pool) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// dispatchPending hands pending hypotheses to idle workers. Hypotheses
// already in flight are skipped so a slow evaluation is never doubled up.
func (p *Pool) dispatchPending() {
	pending, err := p.hypotheses.ListPending(p.cfg.Workers * 4)
	if err != nil {
		p.log.Error().Err(err).Msg("Failed to list pending hypotheses")
		return
	}

	for _, h := range pending {
		p.mu.Lock()
		if p.inFlight[h.ID] {
			p.mu.Unlock()
			continue
		}
		p.inFlight[h.ID] = true
		p.mu.Unlock()

		select {
		case p.jobs <- h.ID:
		case <-p.stop:
			p.clearInFlight(h.ID)
			return
		default:
			// Queue full; the next trigger picks it up
			p.clearInFlight(h.ID)
			return
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()

	for id := range p.jobs {
		p.process(ctx, id)
		p.clearInFlight(id)
		p.Trigger()
	}
}

// process runs one hypothesis with retries. Transient failures (collaborator
// outages, stale population snapshots) requeue the hypothesis and back off
// exponentially; permanent failures leave it in Failed with the reason
// recorded by the evaluator.
func (p *Pool) process(ctx context.Context, id string) {
	for attempt := 1; ; attempt++ {
		_, err := p.evaluator.Evaluate(ctx, id)
		if err == nil || errors.Is(err, evaluator.ErrNotPending) {
			return
		}
		if errors.Is(err, evaluator.ErrHypothesisNotFound) {
			p.log.Warn().Str("hypothesis_id", id).Msg("Hypothesis vanished from queue")
			return
		}
		if ctx.Err() != nil {
			// Shutdown; leave the hypothesis Failed with the context error,
			// the next sweep after restart can requeue it.
			return
		}
		if !domain.IsRetryable(err) || attempt >= p.cfg.MaxAttempts {
			p.log.Error().Err(err).Str("hypothesis_id", id).Int("attempts", attempt).Msg("Evaluation gave up")
			return
		}

		requeued, reqErr := p.hypotheses.Requeue(id)
		if reqErr != nil || !requeued {
			p.log.Error().Err(reqErr).Str("hypothesis_id", id).Msg("Failed to requeue hypothesis")
			return
		}

		delay := p.cfg.RetryBaseDelay << (attempt - 1)
		p.log.Warn().
			Err(err).
			Str("hypothesis_id", id).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Transient evaluation failure, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) clearInFlight(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}
