package stattest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/edgefinder/internal/domain"
)

// ramp returns a smooth increasing series with a deterministic wiggle so
// no input is constant and no fit is exactly perfect.
func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) + 0.3*math.Sin(float64(i))
	}
	return out
}

func noisy(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}
	return out
}

func TestCorrelation_StrongPositive(t *testing.T) {
	x := ramp(30)
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 2*x[i] + 0.1*math.Cos(float64(i))
	}

	result, err := Correlation(x, y)
	require.NoError(t, err)

	assert.Greater(t, result.Statistic, 0.99)
	assert.Less(t, result.PValue, 1e-6)
	assert.Equal(t, 30, result.SampleSize)
	assert.Equal(t, "pearson", result.Diagnostics["method"])
	assert.Equal(t, result.Statistic, result.EffectSize)
}

func TestCorrelation_SpearmanOnSkewedInput(t *testing.T) {
	// Heavy spike series fails the skew screen, so the rank coefficient
	// becomes authoritative
	x := make([]float64, 30)
	y := make([]float64, 30)
	for i := range x {
		y[i] = float64(i)
	}
	x[9], x[19], x[29] = 10, 10, 10

	result, err := Correlation(x, y)
	require.NoError(t, err)

	assert.Equal(t, "spearman", result.Diagnostics["method"])
	assert.Equal(t, result.Diagnostics["spearman"], result.Statistic)
}

func TestCorrelation_ConstantSeries(t *testing.T) {
	x := make([]float64, 20)
	y := ramp(20)

	_, err := Correlation(x, y)

	var numErr *domain.NumericalError
	require.ErrorAs(t, err, &numErr)
	assert.Equal(t, "correlation", numErr.Test)
	assert.False(t, domain.IsRetryable(err))
}

func TestCorrelation_InsufficientSamples(t *testing.T) {
	_, err := Correlation(ramp(5), ramp(5))

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, MinSamplesCorrelation, insufficientErr.Required)
}

func TestCorrelation_LengthMismatch(t *testing.T) {
	_, err := Correlation(ramp(20), ramp(21))

	var numErr *domain.NumericalError
	require.ErrorAs(t, err, &numErr)
}

func TestCorrelation_Deterministic(t *testing.T) {
	x := noisy(50, 7)
	y := noisy(50, 8)

	first, err := Correlation(x, y)
	require.NoError(t, err)
	second, err := Correlation(x, y)
	require.NoError(t, err)

	assert.Equal(t, first.Statistic, second.Statistic)
	assert.Equal(t, first.PValue, second.PValue)
}

func TestGrangerCausality_LaggedDependence(t *testing.T) {
	// y follows x with a one-day delay
	x := noisy(80, 42)
	y := make([]float64, len(x))
	for t1 := 1; t1 < len(x); t1++ {
		y[t1] = 0.9*x[t1-1] + 0.05*math.Sin(float64(t1))
	}

	result, err := GrangerCausality(x, y, 5)
	require.NoError(t, err)

	assert.Less(t, result.PValue, 0.001)
	assert.Equal(t, 1, result.Diagnostics["best_lag"])
	assert.Greater(t, result.EffectSize, 0.5)
}

func TestGrangerCausality_LagGridCapped(t *testing.T) {
	// 30 observations cannot support a 10-lag unrestricted model
	x := noisy(30, 1)
	y := noisy(30, 2)

	result, err := GrangerCausality(x, y, 10)
	require.NoError(t, err)

	gridSize := result.Diagnostics["lag_grid_size"].(int)
	assert.Less(t, gridSize, 10)
	assert.GreaterOrEqual(t, gridSize, 1)
}

func TestGrangerCausality_PValueIsGridCorrected(t *testing.T) {
	x := noisy(60, 3)
	y := noisy(60, 4)

	result, err := GrangerCausality(x, y, 5)
	require.NoError(t, err)

	rawMin := result.Diagnostics["raw_min_p_value"].(float64)
	gridSize := result.Diagnostics["lag_grid_size"].(int)
	assert.InDelta(t, math.Min(1, rawMin*float64(gridSize)), result.PValue, 1e-12)
}

func TestGrangerCausality_InsufficientSamples(t *testing.T) {
	_, err := GrangerCausality(ramp(20), ramp(20), 5)

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
	assert.Equal(t, MinSamplesGranger, insufficientErr.Required)
}

func TestGrangerCausality_ConstantSeries(t *testing.T) {
	_, err := GrangerCausality(make([]float64, 40), ramp(40), 5)

	var numErr *domain.NumericalError
	require.ErrorAs(t, err, &numErr)
}

func TestEventStudy_PositiveCARs(t *testing.T) {
	cars := make([]float64, 20)
	for i := range cars {
		cars[i] = 0.02 + 0.002*math.Sin(float64(i))
	}

	result, err := EventStudy(cars)
	require.NoError(t, err)

	assert.Less(t, result.PValue, 1e-6)
	// Effect size is the mean CAR in basis points
	assert.InDelta(t, 200, result.EffectSize, 15)
	assert.Equal(t, 1.0, result.Diagnostics["hit_rate"])

	ciLow := result.Diagnostics["ci_low"].(float64)
	ciHigh := result.Diagnostics["ci_high"].(float64)
	assert.Greater(t, ciLow, 0.0)
	assert.Greater(t, ciHigh, ciLow)
}

func TestEventStudy_ZeroVariance(t *testing.T) {
	cars := make([]float64, 15)
	for i := range cars {
		cars[i] = 0.01
	}

	_, err := EventStudy(cars)

	var numErr *domain.NumericalError
	require.ErrorAs(t, err, &numErr)
	assert.Equal(t, "event_study", numErr.Test)
}

func TestEventStudy_InsufficientSamples(t *testing.T) {
	_, err := EventStudy([]float64{0.01, 0.02})

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
}

func TestPermutation_StrongAssociation(t *testing.T) {
	x := ramp(40)
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 3 * x[i]
	}

	result, err := Permutation(x, y, 200)
	require.NoError(t, err)

	// No shuffle should match a perfect correlation
	assert.InDelta(t, 1.0/201.0, result.PValue, 1e-12)
	assert.Equal(t, 0, result.Diagnostics["extreme"])
}

func TestPermutation_NeverExactlyZero(t *testing.T) {
	x := ramp(30)
	y := make([]float64, len(x))
	copy(y, x)

	result, err := Permutation(x, y, 100)
	require.NoError(t, err)
	assert.Greater(t, result.PValue, 0.0)
}

func TestPermutation_Deterministic(t *testing.T) {
	x := noisy(40, 11)
	y := noisy(40, 12)

	first, err := Permutation(x, y, 500)
	require.NoError(t, err)
	second, err := Permutation(x, y, 500)
	require.NoError(t, err)

	assert.Equal(t, first.PValue, second.PValue)
	assert.Equal(t, first.Diagnostics["extreme"], second.Diagnostics["extreme"])
}

func TestPermutation_ConstantSeries(t *testing.T) {
	_, err := Permutation(make([]float64, 20), ramp(20), 100)

	var numErr *domain.NumericalError
	require.ErrorAs(t, err, &numErr)
}

func TestLeadLag_RecoversKnownShift(t *testing.T) {
	// y trails x by two steps, so x leads at lag +2
	x := noisy(60, 21)
	y := make([]float64, len(x))
	for t1 := 2; t1 < len(x); t1++ {
		y[t1] = x[t1-2]
	}

	result, err := LeadLag(x, y, 5)
	require.NoError(t, err)

	assert.Equal(t, 2, result.BestLag)
	assert.Greater(t, math.Abs(result.BestCorrelation), 0.9)
	assert.Contains(t, result.Correlations, "2")
	assert.Contains(t, result.Correlations, "-2")
}

func TestLeadLag_TooShortForAnyLag(t *testing.T) {
	_, err := LeadLag(ramp(5), ramp(5), 3)

	var insufficientErr *domain.InsufficientDataError
	require.ErrorAs(t, err, &insufficientErr)
}

func TestHitRate(t *testing.T) {
	// Above-median x always pairs with positive y
	x := []float64{0, 0, 0, 5, 5, 5}
	y := []float64{-0.01, -0.02, -0.01, 0.02, 0.01, 0.03}

	assert.Equal(t, 1.0, hitRate(x, y))
}

func TestRanks_TiesShareMeanRank(t *testing.T) {
	got := ranks([]float64{10, 20, 20, 30})
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, got)
}
