package stattest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/edgefinder/internal/domain"
)

// LeadLagResult reports the lag at which two series are most strongly
// associated. It feeds Granger test configuration as a diagnostic; it is
// not a standalone significance test.
type LeadLagResult struct {
	BestLag         int
	BestCorrelation float64
	PValue          float64 // p-value of the best correlation
	SampleSize      int     // overlap length at the best lag
	Correlations    map[string]float64
}

// LeadLag computes cross-correlation across the symmetric lag window
// [-maxLag, +maxLag]. A positive best lag means x leads y.
func LeadLag(x, y []float64, maxLag int) (*LeadLagResult, error) {
	if len(x) != len(y) {
		return nil, &domain.NumericalError{Test: "lead_lag", Reason: "series lengths differ"}
	}
	if maxLag <= 0 {
		maxLag = DefaultGrangerMaxLag
	}

	correlations := make(map[string]float64, 2*maxLag+1)
	bestLag := 0
	bestCorr := 0.0
	bestN := 0
	found := false

	for lag := -maxLag; lag <= maxLag; lag++ {
		xs, ys := shiftPair(x, y, lag)
		if len(xs) < MinSamplesLeadLag {
			continue
		}
		if isConstant(xs) || isConstant(ys) {
			continue
		}

		corr := stat.Correlation(xs, ys, nil)
		correlations[fmt.Sprintf("%d", lag)] = corr

		if !found || math.Abs(corr) > math.Abs(bestCorr) {
			found = true
			bestLag = lag
			bestCorr = corr
			bestN = len(xs)
		}
	}

	if !found {
		return nil, &domain.InsufficientDataError{Got: len(x), Required: MinSamplesLeadLag, Stage: "lead_lag"}
	}

	return &LeadLagResult{
		BestLag:         bestLag,
		BestCorrelation: bestCorr,
		PValue:          correlationPValue(bestCorr, bestN),
		SampleSize:      bestN,
		Correlations:    correlations,
	}, nil
}

// shiftPair aligns x against y offset by lag. Positive lag pairs x[t]
// with y[t+lag] (x leads); negative pairs x[t] with y[t+lag] behind it
// (y leads).
func shiftPair(x, y []float64, lag int) ([]float64, []float64) {
	switch {
	case lag < 0:
		return x[-lag:], y[:len(y)+lag]
	case lag > 0:
		return x[:len(x)-lag], y[lag:]
	default:
		return x, y
	}
}
