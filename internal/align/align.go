// Package align turns a sparse event stream and a dense price stream into
// matched, regularly-indexed series suitable for statistical testing.
//
// Alignment is daily: both streams are bucketed onto the price series'
// trading-day grid. Missing price days (weekends, holidays) are excluded,
// not interpolated, so no autocorrelation is manufactured. Events falling
// on non-trading days roll forward to the next trading day.
package align

import (
	"sort"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/aristath/edgefinder/internal/domain"
)

// DefaultMinSamples is the minimum number of aligned observations required
// before any statistical test is attempted.
const DefaultMinSamples = 10

// Options controls alignment behaviour
type Options struct {
	MinSamples int // 0 means DefaultMinSamples
}

// AlignedSeries pairs daily event intensity with the forward one-day return
// of the asset. Y[i] is the return realized over the trading day AFTER
// Dates[i], so a lag-0 association between X and Y measures next-day
// predictability, which is what an event/asset hypothesis claims.
// Ephemeral: produced fresh per evaluation, never persisted.
type AlignedSeries struct {
	Dates         []time.Time
	X             []float64 // Event magnitude (or occurrence indicator) per trading day
	Y             []float64 // Forward one-day simple return
	DroppedEvents int       // Events with no trading data at or after their timestamp
}

// Len returns the number of aligned observations
func (s *AlignedSeries) Len() int {
	return len(s.X)
}

// EventWindows holds one cumulative-abnormal-return observation per event
// occurrence, for event-study testing. Overlapping windows for the same
// entity are intentionally not merged; each occurrence counts independently.
type EventWindows struct {
	CARs          []float64
	Pre, Post     int // Window in trading days around the event
	DroppedEvents int // Events with no trading data inside their window
}

// Align buckets events onto the price series' trading-day grid and pairs
// each day's event intensity with the next trading day's return.
// Fails with InsufficientDataError when fewer than MinSamples observations
// survive alignment.
func Align(events []domain.Event, prices []domain.PricePoint, opts Options) (*AlignedSeries, error) {
	minSamples := opts.MinSamples
	if minSamples == 0 {
		minSamples = DefaultMinSamples
	}

	days, closes := tradingGrid(prices)
	// Need at least minSamples+1 closes to produce minSamples forward returns
	if len(days) < minSamples+1 {
		return nil, &domain.InsufficientDataError{Got: maxInt(len(days)-1, 0), Required: minSamples, Stage: "align"}
	}

	returns := CalculateReturns(closes)

	// Sum event magnitudes per trading day; an event without magnitude
	// counts as an occurrence indicator of 1. Non-trading-day events roll
	// forward to the next trading day.
	intensity := make([]float64, len(days))
	dropped := 0
	for _, ev := range events {
		idx := searchDay(days, dayOf(ev.Timestamp))
		if idx < 0 {
			dropped++
			continue
		}
		if ev.Magnitude != nil {
			intensity[idx] += *ev.Magnitude
		} else {
			intensity[idx] += 1.0
		}
	}

	// Day i pairs with the return from day i to day i+1, so the last
	// trading day has no observation.
	aligned := &AlignedSeries{
		Dates:         days[:len(days)-1],
		X:             intensity[:len(days)-1],
		Y:             returns,
		DroppedEvents: dropped,
	}

	if aligned.Len() < minSamples {
		return nil, &domain.InsufficientDataError{Got: aligned.Len(), Required: minSamples, Stage: "align"}
	}

	return aligned, nil
}

// BuildEventWindows computes one cumulative abnormal return per event
// occurrence over [-pre, +post] trading days around the event, against a
// rolling-mean (SMA) baseline of the asset's own returns. Events whose
// window contains no trading data are dropped and counted, not silently
// ignored; the caller's sample-size check sees the shortfall.
func BuildEventWindows(events []domain.Event, prices []domain.PricePoint, pre, post, baselinePeriod, minSamples int) (*EventWindows, error) {
	if minSamples == 0 {
		minSamples = DefaultMinSamples
	}

	days, closes := tradingGrid(prices)
	if len(days) < 2 {
		return nil, &domain.InsufficientDataError{Got: 0, Required: minSamples, Stage: "event_windows"}
	}

	returns := CalculateReturns(closes)

	// Market-neutral baseline: rolling mean of the asset's daily returns.
	// talib leaves the warmup prefix at zero, which degrades gracefully to
	// raw returns at the start of the series.
	var baseline []float64
	if baselinePeriod > 1 && len(returns) >= baselinePeriod {
		baseline = talib.Sma(returns, baselinePeriod)
	} else {
		baseline = make([]float64, len(returns))
	}

	// returns[i] covers the day days[i] -> days[i+1]; anchor each event on
	// its trading day and clip the window to the available return range.
	cars := make([]float64, 0, len(events))
	dropped := 0
	for _, ev := range events {
		anchor := searchDay(days, dayOf(ev.Timestamp))
		if anchor < 0 {
			dropped++
			continue
		}

		lo := maxInt(anchor-pre, 0)
		hi := minInt(anchor+post, len(returns)-1)
		if lo > hi {
			dropped++
			continue
		}

		car := 0.0
		for i := lo; i <= hi; i++ {
			car += returns[i] - baseline[i]
		}
		cars = append(cars, car)
	}

	if len(cars) < minSamples {
		return nil, &domain.InsufficientDataError{Got: len(cars), Required: minSamples, Stage: "event_windows"}
	}

	return &EventWindows{
		CARs:          cars,
		Pre:           pre,
		Post:          post,
		DroppedEvents: dropped,
	}, nil
}

// tradingGrid extracts the sorted unique trading days and their closes.
// Sub-daily bars collapse to the last close of each UTC day.
func tradingGrid(prices []domain.PricePoint) ([]time.Time, []float64) {
	byDay := make(map[time.Time]float64, len(prices))
	for _, p := range prices {
		byDay[dayOf(p.Timestamp)] = p.Close
	}

	days := make([]time.Time, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	closes := make([]float64, len(days))
	for i, d := range days {
		closes[i] = byDay[d]
	}

	return days, closes
}

// dayOf normalizes a timestamp to its UTC trading day
func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// searchDay returns the index of the first trading day >= day, or -1 when
// the day falls after the end of the grid.
func searchDay(days []time.Time, day time.Time) int {
	idx := sort.Search(len(days), func(i int) bool { return !days[i].Before(day) })
	if idx == len(days) {
		return -1
	}
	return idx
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
