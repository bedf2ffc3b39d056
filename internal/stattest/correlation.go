package stattest

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/edgefinder/internal/domain"
)

// Normality pre-check thresholds. A series failing either makes the
// rank-based Spearman coefficient authoritative over Pearson.
const (
	skewThreshold     = 2.0
	kurtosisThreshold = 7.0
)

// Correlation runs both Pearson and Spearman correlation on the aligned
// series and reports both. Spearman is authoritative when either series
// fails the skew/kurtosis normality pre-check; Pearson otherwise.
func Correlation(x, y []float64) (*Result, error) {
	if len(x) != len(y) {
		return nil, &domain.NumericalError{Test: "correlation", Reason: "series lengths differ"}
	}
	n := len(x)
	if n < MinSamplesCorrelation {
		return nil, &domain.InsufficientDataError{Got: n, Required: MinSamplesCorrelation, Stage: "correlation"}
	}
	if isConstant(x) || isConstant(y) {
		return nil, &domain.NumericalError{Test: "correlation", Reason: "zero variance in input series"}
	}

	pearson := stat.Correlation(x, y, nil)
	spearman := stat.Correlation(ranks(x), ranks(y), nil)

	pearsonP := correlationPValue(pearson, n)
	spearmanP := correlationPValue(spearman, n)

	normal := passesNormalityCheck(x) && passesNormalityCheck(y)

	statistic, pValue, method := pearson, pearsonP, "pearson"
	if !normal {
		statistic, pValue, method = spearman, spearmanP, "spearman"
	}

	return &Result{
		Statistic:  statistic,
		PValue:     pValue,
		EffectSize: statistic,
		SampleSize: n,
		Diagnostics: map[string]interface{}{
			"method":     method,
			"pearson":    pearson,
			"pearson_p":  pearsonP,
			"spearman":   spearman,
			"spearman_p": spearmanP,
			"hit_rate":   hitRate(x, y),
		},
	}, nil
}

// hitRate is the fraction of observations where above-median event intensity
// coincides with a positive return (and below-median with non-positive).
func hitRate(x, y []float64) float64 {
	med := median(x)
	hits := 0
	for i := range x {
		if (x[i] > med) == (y[i] > 0) {
			hits++
		}
	}
	return float64(hits) / float64(len(x))
}

// passesNormalityCheck applies a skew/excess-kurtosis screen. It is a cheap
// pre-check, not a formal normality test.
func passesNormalityCheck(data []float64) bool {
	skew := stat.Skew(data, nil)
	kurt := stat.ExKurtosis(data, nil)
	if math.IsNaN(skew) || math.IsNaN(kurt) {
		return false
	}
	return math.Abs(skew) <= skewThreshold && math.Abs(kurt) <= kurtosisThreshold
}

// ranks returns average ranks (1-based), with ties sharing their mean rank
func ranks(data []float64) []float64 {
	n := len(data)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return data[idx[a]] < data[idx[b]] })

	ranked := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && data[idx[j+1]] == data[idx[i]] {
			j++
		}
		// Average rank over the tie run [i, j]
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranked[idx[k]] = avg
		}
		i = j + 1
	}

	return ranked
}

func median(data []float64) float64 {
	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func isConstant(data []float64) bool {
	for i := 1; i < len(data); i++ {
		if data[i] != data[0] {
			return false
		}
	}
	return true
}
