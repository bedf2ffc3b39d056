package domain

import (
	"context"
	"time"
)

// EventSource is the collaborator boundary for the event store.
// Implementations must return events ordered by timestamp ascending.
type EventSource interface {
	// QueryEvents returns events of a type (optionally scoped to an entity)
	// within [start, end]. An empty entity matches all entities.
	QueryEvents(ctx context.Context, eventType, entity string, start, end time.Time) ([]Event, error)
}

// PriceSource is the collaborator boundary for market data.
// Implementations must return bars ordered by timestamp ascending.
type PriceSource interface {
	QueryPrices(ctx context.Context, asset string, start, end time.Time) ([]PricePoint, error)
}

// CompletionHook is notified exactly once per completed evaluation run.
// It is the boundary consumed by the external alerting/synthesis layer.
// The hook fires only for significant verdicts; non-significant completions
// update the hypothesis record without a downstream signal.
type CompletionHook interface {
	OnEvaluationCompleted(ctx context.Context, hypothesisID string, verdict *Verdict)
}
