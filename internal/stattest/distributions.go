package stattest

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// tTestPValue computes the two-tailed p-value for a t statistic using
// Student's t-distribution.
func tTestPValue(tStatistic float64, degreesOfFreedom int) float64 {
	if degreesOfFreedom <= 0 {
		return 1.0
	}

	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(degreesOfFreedom)}
	return 2 * (1 - tDist.CDF(math.Abs(tStatistic)))
}

// correlationPValue computes the two-tailed p-value for a correlation
// coefficient via the t-transform r*sqrt((n-2)/(1-r^2)).
func correlationPValue(correlation float64, sampleSize int) float64 {
	if sampleSize < 3 {
		return 1.0
	}
	if math.Abs(correlation) >= 1 {
		return 0.0
	}

	df := float64(sampleSize - 2)
	tStatistic := correlation * math.Sqrt(df/(1-correlation*correlation))

	return tTestPValue(tStatistic, sampleSize-2)
}

// fTestPValue computes the upper-tail p-value for an F statistic
func fTestPValue(fStatistic float64, df1, df2 int) float64 {
	if df1 <= 0 || df2 <= 0 {
		return 1.0
	}
	if fStatistic <= 0 {
		return 1.0
	}

	fDist := distuv.F{D1: float64(df1), D2: float64(df2)}
	return 1 - fDist.CDF(fStatistic)
}
