package gateway

import (
	"math"
	"strconv"
)

// FormatConfidence renders a probability in [0,1] as a percentage string.
// Values that round to 100 at two decimals are printed without decimals
// ("100%"); everything else keeps two ("87.23%"). Out-of-range input is
// clamped first.
func FormatConfidence(probability float64) string {
	percent := ClampProbability(probability) * 100
	rendered := strconv.FormatFloat(percent, 'f', 2, 64)
	if rendered == "100.00" {
		return "100%"
	}
	return rendered + "%"
}

// ClampProbability limits p to [0,1]; NaN becomes 0.
func ClampProbability(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}
