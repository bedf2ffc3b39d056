package align

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/edgefinder/internal/domain"
	testingpkg "github.com/aristath/edgefinder/internal/testing"
)

func TestAlign_ForwardReturns(t *testing.T) {
	// 1% jump the day after each event, flat otherwise
	eventDays := []int{2, 5, 8, 11, 14, 17, 20, 23, 26, 29}
	prices := testingpkg.PredictivePrices(40, 0.01, eventDays...)
	events := testingpkg.NewEventsOnDays("cpi_release", eventDays...)

	series, err := Align(events, prices, Options{})
	require.NoError(t, err)

	require.Equal(t, len(prices)-1, series.Len())
	assert.Equal(t, 0, series.DroppedEvents)

	// Every event day must pair with the next day's jump
	for i := range series.Dates {
		if series.X[i] > 0 {
			assert.InDelta(t, 0.01, series.Y[i], 1e-9, "event day %d should see the next-day jump", i)
		} else {
			assert.InDelta(t, 0.0, series.Y[i], 1e-9, "quiet day %d should be flat", i)
		}
	}
}

func TestAlign_SumsMagnitudesPerDay(t *testing.T) {
	prices := testingpkg.NewPriceSeries(15, func(i int) float64 { return 100 + float64(i) })

	m1, m2 := 2.5, 1.5
	events := []domain.Event{
		{Timestamp: testingpkg.FixtureStart.AddDate(0, 0, 3).Add(9 * time.Hour), Magnitude: &m1},
		{Timestamp: testingpkg.FixtureStart.AddDate(0, 0, 3).Add(15 * time.Hour), Magnitude: &m2},
		{Timestamp: testingpkg.FixtureStart.AddDate(0, 0, 4)}, // no magnitude: indicator
	}

	series, err := Align(events, prices, Options{})
	require.NoError(t, err)

	assert.InDelta(t, 4.0, series.X[3], 1e-9)
	assert.InDelta(t, 1.0, series.X[4], 1e-9)
}

func TestAlign_NonTradingDayRollsForward(t *testing.T) {
	// Trading days with a gap: day index 5 missing from the grid
	prices := make([]domain.PricePoint, 0, 14)
	for i := 0; i < 15; i++ {
		if i == 5 {
			continue
		}
		prices = append(prices, domain.PricePoint{
			Timestamp: testingpkg.FixtureStart.AddDate(0, 0, i),
			Close:     100,
		})
	}

	events := []domain.Event{
		{Timestamp: testingpkg.FixtureStart.AddDate(0, 0, 5).Add(10 * time.Hour)},
	}

	series, err := Align(events, prices, Options{})
	require.NoError(t, err)

	// Event on the missing day lands on the next trading day (index 5 in the
	// compacted grid is the original day 6)
	assert.InDelta(t, 1.0, series.X[5], 1e-9)
	assert.Equal(t, 0, series.DroppedEvents)
}

func TestAlign_EventAfterGridIsDropped(t *testing.T) {
	prices := testingpkg.NewPriceSeries(15, func(i int) float64 { return 100 })
	events := []domain.Event{
		{Timestamp: testingpkg.FixtureStart.AddDate(0, 0, 100)},
	}

	series, err := Align(events, prices, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, series.DroppedEvents)
}

func TestAlign_InsufficientData(t *testing.T) {
	prices := testingpkg.NewPriceSeries(5, func(i int) float64 { return 100 })

	_, err := Align(nil, prices, Options{})
	require.Error(t, err)

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, DefaultMinSamples, insufficientErr.Required)
	assert.False(t, domain.IsRetryable(err))
}

func TestAlign_EmptyPrices(t *testing.T) {
	_, err := Align(nil, nil, Options{})

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 0, insufficientErr.Got)
}

func TestCalculateReturns(t *testing.T) {
	returns := CalculateReturns([]float64{100, 110, 99})

	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-9)
	assert.InDelta(t, -0.10, returns[1], 1e-9)
}

func TestBuildEventWindows_PositiveCARs(t *testing.T) {
	eventDays := []int{5, 10, 15, 20, 25, 30, 35, 40, 45, 50}
	prices := testingpkg.PredictivePrices(60, 0.02, eventDays...)
	events := testingpkg.NewEventsOnDays("fomc_decision", eventDays...)

	windows, err := BuildEventWindows(events, prices, 1, 5, 0, 10)
	require.NoError(t, err)

	require.Len(t, windows.CARs, 10)
	assert.Equal(t, 0, windows.DroppedEvents)

	// Each window contains exactly one 2% jump against a zero baseline
	for _, car := range windows.CARs {
		assert.InDelta(t, 0.02, car, 1e-9)
	}
}

func TestBuildEventWindows_ClipsAtBoundaries(t *testing.T) {
	prices := testingpkg.NewPriceSeries(30, func(i int) float64 { return 100 + float64(i) })
	// Events at the very start and end of the grid still produce windows
	days := []int{0, 1, 2, 3, 4, 5, 27, 28, 29, 29}
	events := testingpkg.NewEventsOnDays("earnings", days...)

	windows, err := BuildEventWindows(events, prices, 2, 5, 0, 10)
	require.NoError(t, err)
	assert.Len(t, windows.CARs, 10)
}

func TestBuildEventWindows_InsufficientEvents(t *testing.T) {
	prices := testingpkg.NewPriceSeries(30, func(i int) float64 { return 100 })
	events := testingpkg.NewEventsOnDays("earnings", 5, 10)

	_, err := BuildEventWindows(events, prices, 1, 5, 0, 10)

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, 2, insufficientErr.Got)
}
