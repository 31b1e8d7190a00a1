package numeric

import (
	"math"

	"golang.org/x/exp/constraints"
)

func Clamp[T constraints.Integer | constraints.Float](value, low, high T) T {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// MapRange maps value from [fromLow, fromHigh] onto [toLow, toHigh] without clamping.
// A degenerate source range maps everything to toLow.
func MapRange(value, fromLow, fromHigh, toLow, toHigh float64) float64 {
	if fromHigh == fromLow {
		return toLow
	}
	return toLow + (value-fromLow)*(toHigh-toLow)/(fromHigh-fromLow)
}

// MapThroughNeutral clamps value to [low, high] and maps it piecewise so that
// neutral always lands on outNeutral, whatever the asymmetry of either side.
func MapThroughNeutral(value, low, neutral, high, outLow, outNeutral, outHigh float64) float64 {
	if math.IsNaN(value) {
		return outNeutral
	}
	value = Clamp(value, low, high)
	if value < neutral {
		return MapRange(value, low, neutral, outLow, outNeutral)
	}
	if value > neutral {
		return MapRange(value, neutral, high, outNeutral, outHigh)
	}
	return outNeutral
}

func Sign(value float64) int {
	if value > 0 {
		return 1
	}
	if value < 0 {
		return -1
	}
	return 0
}

// Finite replaces NaN and infinities with fallback.
func Finite(value, fallback float64) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fallback
	}
	return value
}
