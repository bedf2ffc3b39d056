package testing

import (
	"time"

	"github.com/aristath/edgefinder/internal/domain"
)

// FixtureStart is the first trading day used by the generated series
var FixtureStart = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

// NewPriceSeries generates n consecutive daily closes starting at
// FixtureStart. The step function receives the day index and returns the
// close for that day.
func NewPriceSeries(n int, step func(i int) float64) []domain.PricePoint {
	prices := make([]domain.PricePoint, 0, n)
	for i := 0; i < n; i++ {
		close := step(i)
		prices = append(prices, domain.PricePoint{
			Timestamp: FixtureStart.AddDate(0, 0, i),
			Open:      close,
			High:      close * 1.01,
			Low:       close * 0.99,
			Close:     close,
		})
	}
	return prices
}

// NewEventsOnDays generates one unit-magnitude event per listed day index,
// timestamped mid-session on that day.
func NewEventsOnDays(eventType string, days ...int) []domain.Event {
	events := make([]domain.Event, 0, len(days))
	for _, day := range days {
		magnitude := 1.0
		events = append(events, domain.Event{
			Timestamp: FixtureStart.AddDate(0, 0, day).Add(14 * time.Hour),
			Entity:    eventType,
			Magnitude: &magnitude,
		})
	}
	return events
}

// PredictivePrices builds a price path where the close jumps by jump percent
// the day after each listed event day and stays flat otherwise. Used to
// exercise the happy path where events cleanly predict next-day returns.
func PredictivePrices(n int, jump float64, eventDays ...int) []domain.PricePoint {
	isEventDay := make(map[int]bool, len(eventDays))
	for _, day := range eventDays {
		isEventDay[day] = true
	}

	price := 100.0
	return NewPriceSeries(n, func(i int) float64 {
		if i > 0 && isEventDay[i-1] {
			price *= 1 + jump
		}
		return price
	})
}
