package align

// CalculateReturns converts a close-price series to simple returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]
func CalculateReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			returns[i-1] = (closes[i] - closes[i-1]) / closes[i-1]
		}
	}

	return returns
}
