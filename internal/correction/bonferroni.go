// Package correction maintains family-wise significance correction across
// the full hypothesis population.
//
// With dozens of event/asset pairs tested simultaneously, a naive p < 0.05
// threshold produces false discoveries at a rate proportional to the
// population size. Bonferroni is deliberately conservative: false
// "discoveries" drive automated alerts that carry real decision weight, so
// precision wins over recall here.
package correction

// DefaultFamilyWiseAlpha is the post-correction significance level
const DefaultFamilyWiseAlpha = 0.05

// Corrector applies Bonferroni family-wise correction against a hypothesis
// population snapshot.
type Corrector struct {
	alpha float64
}

// New creates a corrector with the given family-wise alpha (0 uses the default)
func New(alpha float64) *Corrector {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultFamilyWiseAlpha
	}
	return &Corrector{alpha: alpha}
}

// Alpha returns the configured family-wise significance level
func (c *Corrector) Alpha() float64 {
	return c.alpha
}

// Correct computes the Bonferroni-adjusted p-value against the given
// population size and whether it clears the family-wise bar.
//
// populationSize is the count of hypotheses with a completed verdict at
// correction time, including the one being evaluated, so correction
// strictness increases monotonically as the population grows. The adjusted
// value is clamped to 1 and is never below the raw p-value.
func (c *Corrector) Correct(pValue float64, populationSize int) (adjusted float64, significant bool) {
	if populationSize < 1 {
		populationSize = 1
	}

	adjusted = pValue * float64(populationSize)
	if adjusted > 1 {
		adjusted = 1
	}
	if adjusted < pValue {
		adjusted = pValue
	}

	return adjusted, adjusted < c.alpha
}
