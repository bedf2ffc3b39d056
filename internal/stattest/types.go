// Package stattest implements the statistical test library. Each test is a
// pure function: aligned series in, (statistic, p-value, effect size,
// diagnostics) out, deterministic for identical inputs.
//
// A test fails (does not error) when its sample is below the family's
// required minimum; this is always reported as InsufficientDataError, never
// as a fabricated low-confidence result.
package stattest

// Per-family minimum sample sizes. Granger needs room for its lag models;
// the others inherit the aligner's floor.
const (
	MinSamplesCorrelation = 10
	MinSamplesGranger     = 30
	MinSamplesEventStudy  = 10
	MinSamplesPermutation = 10
	MinSamplesLeadLag     = 10
)

// Result is the output of one statistical test
type Result struct {
	Statistic   float64
	PValue      float64
	EffectSize  float64
	SampleSize  int
	Diagnostics map[string]interface{}
}
