package rollpressure

import "math"

// TimeWeight maps days to expiry onto (0, 1], rising toward 1 as expiry
// approaches. Days at or below 1 are treated as 1.
func TimeWeight(daysToExpiry int, alpha float64) float64 {
	d := daysToExpiry
	if d < 1 {
		d = 1
	}
	return (1 + alpha) / (float64(d) + alpha)
}

// Clamp bounds v to [lo, hi]. NaN passes through unchanged.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Min(math.Max(v, lo), hi)
}

// IsAlert applies the alert rule. It deliberately ignores roll pressure.
func IsAlert(posScore float64, daysToExpiry int, p Params) bool {
	if math.IsNaN(posScore) {
		return false
	}
	return posScore >= p.PosScoreThreshold && daysToExpiry <= p.DaysThreshold
}

func nan() float64 { return math.NaN() }
