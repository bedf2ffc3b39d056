package stattest

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/edgefinder/internal/domain"
)

// DefaultGrangerMaxLag bounds the lag grid when the caller passes 0
const DefaultGrangerMaxLag = 10

// GrangerCausality tests whether x Granger-causes y by comparing, for each
// lag 1..maxLag, a restricted autoregression of y against an unrestricted
// model that adds lagged x terms, using an F-test on the residual sums of
// squares. The reported p-value is the minimum across the lag grid after a
// local Bonferroni correction for the grid size; that inner multiplicity is
// separate from the population-wide correction applied downstream.
func GrangerCausality(x, y []float64, maxLag int) (*Result, error) {
	if len(x) != len(y) {
		return nil, &domain.NumericalError{Test: "granger", Reason: "series lengths differ"}
	}
	n := len(x)
	if n < MinSamplesGranger {
		return nil, &domain.InsufficientDataError{Got: n, Required: MinSamplesGranger, Stage: "granger"}
	}
	if isConstant(x) || isConstant(y) {
		return nil, &domain.NumericalError{Test: "granger", Reason: "zero variance in input series"}
	}
	if maxLag <= 0 {
		maxLag = DefaultGrangerMaxLag
	}

	// Cap the grid so the unrestricted model keeps positive residual
	// degrees of freedom: n-lag observations against 2*lag+1 coefficients.
	for maxLag > 1 && n-maxLag <= 2*maxLag+1 {
		maxLag--
	}

	bestLag := 0
	bestP := math.Inf(1)
	bestF := 0.0
	bestR2Gain := 0.0
	perLag := make(map[string]interface{}, maxLag)

	for lag := 1; lag <= maxLag; lag++ {
		fStat, pVal, r2Gain, err := grangerAtLag(x, y, lag)
		if err != nil {
			return nil, err
		}

		perLag[fmt.Sprintf("lag_%d", lag)] = pVal
		if pVal < bestP {
			bestP = pVal
			bestLag = lag
			bestF = fStat
			bestR2Gain = r2Gain
		}
	}

	// Local Bonferroni over the lag grid: searching the grid for the
	// minimum p-value is itself multiple testing.
	adjusted := math.Min(1, bestP*float64(maxLag))

	return &Result{
		Statistic:  bestF,
		PValue:     adjusted,
		EffectSize: bestR2Gain,
		SampleSize: n,
		Diagnostics: map[string]interface{}{
			"best_lag":        bestLag,
			"raw_min_p_value": bestP,
			"lag_grid_size":   maxLag,
			"p_values_by_lag": perLag,
		},
	}, nil
}

// grangerAtLag fits the restricted and unrestricted models for one lag and
// returns the F statistic, its p-value, and the R-squared gain of the
// unrestricted model.
func grangerAtLag(x, y []float64, lag int) (fStat, pValue, r2Gain float64, err error) {
	n := len(y)
	rows := n - lag

	// Restricted: y_t ~ 1 + y_{t-1..t-lag}
	// Unrestricted adds x_{t-1..t-lag}
	restricted := mat.NewDense(rows, lag+1, nil)
	unrestricted := mat.NewDense(rows, 2*lag+1, nil)
	target := mat.NewVecDense(rows, nil)

	for t := lag; t < n; t++ {
		r := t - lag
		target.SetVec(r, y[t])
		restricted.Set(r, 0, 1)
		unrestricted.Set(r, 0, 1)
		for i := 1; i <= lag; i++ {
			restricted.Set(r, i, y[t-i])
			unrestricted.Set(r, i, y[t-i])
			unrestricted.Set(r, lag+i, x[t-i])
		}
	}

	rssRestricted, err := olsRSS(restricted, target)
	if err != nil {
		return 0, 0, 0, err
	}
	rssUnrestricted, err := olsRSS(unrestricted, target)
	if err != nil {
		return 0, 0, 0, err
	}

	dfNum := lag
	dfDen := rows - (2*lag + 1)
	if dfDen <= 0 {
		return 0, 0, 0, &domain.NumericalError{Test: "granger", Reason: fmt.Sprintf("no residual degrees of freedom at lag %d", lag)}
	}
	if rssUnrestricted <= 0 {
		// Perfect fit: the F statistic diverges, p-value is effectively zero
		return math.Inf(1), 0, 1, nil
	}

	fStat = ((rssRestricted - rssUnrestricted) / float64(dfNum)) / (rssUnrestricted / float64(dfDen))
	if fStat < 0 {
		fStat = 0
	}
	pValue = fTestPValue(fStat, dfNum, dfDen)
	if rssRestricted > 0 {
		r2Gain = (rssRestricted - rssUnrestricted) / rssRestricted
	}

	return fStat, pValue, r2Gain, nil
}

// olsRSS solves the least-squares problem via QR and returns the residual
// sum of squares. A rank-deficient design matrix surfaces as NumericalError.
func olsRSS(design *mat.Dense, target *mat.VecDense) (float64, error) {
	rows, cols := design.Dims()

	var qr mat.QR
	qr.Factorize(design)

	coef := mat.NewVecDense(cols, nil)
	if err := qr.SolveVecTo(coef, false, target); err != nil {
		return 0, &domain.NumericalError{Test: "granger", Reason: "singular design matrix in lag regression"}
	}

	fitted := mat.NewVecDense(rows, nil)
	fitted.MulVec(design, coef)

	rss := 0.0
	for i := 0; i < rows; i++ {
		resid := target.AtVec(i) - fitted.AtVec(i)
		rss += resid * resid
	}

	if math.IsNaN(rss) || math.IsInf(rss, 0) {
		return 0, &domain.NumericalError{Test: "granger", Reason: "non-finite residuals in lag regression"}
	}

	return rss, nil
}
