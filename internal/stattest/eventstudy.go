package stattest

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/edgefinder/internal/domain"
)

// EventStudy runs a one-sample t-test of the cumulative-abnormal-return
// sample against a zero-mean null. Effect size is the mean CAR in basis
// points; the hit rate is the fraction of occurrences with CAR in the
// hypothesized (positive) direction.
func EventStudy(cars []float64) (*Result, error) {
	n := len(cars)
	if n < MinSamplesEventStudy {
		return nil, &domain.InsufficientDataError{Got: n, Required: MinSamplesEventStudy, Stage: "event_study"}
	}

	mean := stat.Mean(cars, nil)
	stdDev := stat.StdDev(cars, nil)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return nil, &domain.NumericalError{Test: "event_study", Reason: "zero variance in CAR sample"}
	}

	tStat := mean / (stdDev / math.Sqrt(float64(n)))
	pValue := tTestPValue(tStat, n-1)

	positive := 0
	for _, car := range cars {
		if car > 0 {
			positive++
		}
	}
	hitRate := float64(positive) / float64(n)

	// 95% confidence interval for the mean CAR
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 1)}
	halfWidth := tDist.Quantile(0.975) * stdDev / math.Sqrt(float64(n))

	return &Result{
		Statistic:  tStat,
		PValue:     pValue,
		EffectSize: mean * 10000, // basis points
		SampleSize: n,
		Diagnostics: map[string]interface{}{
			"mean_car": mean,
			"std_car":  stdDev,
			"hit_rate": hitRate,
			"edge":     mean / stdDev,
			"ci_low":   mean - halfWidth,
			"ci_high":  mean + halfWidth,
		},
	}, nil
}
