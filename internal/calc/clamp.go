package calc

import "math"

const (
	// MaxInput bounds meter readings, test litres and money amounts.
	MaxInput = 1e12
	// MaxPrice bounds a price per litre.
	MaxPrice = 1e6
)

// Clamp applies the input-boundary rule: anything below min, and any
// non-finite value, becomes min; anything above max becomes max.
func Clamp(v float64, min float64, max float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ClampInput clamps a user supplied reading or amount to [0, MaxInput].
func ClampInput(v float64) float64 {
	return Clamp(v, 0, MaxInput)
}

// ValidPrice reports whether v is a usable price per litre.
func ValidPrice(v float64) bool {
	return v > 0 && v <= MaxPrice && !math.IsNaN(v)
}
