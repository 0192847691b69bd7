package model

import "math"

// Default bounds for a plausible running or walking pace, in seconds per km.
const (
	DefaultMinPaceSecondsPerKm = 240
	DefaultMaxPaceSecondsPerKm = 720
)

// PacePerKm returns round(movingSeconds / km), or 0 and false when the
// inputs cannot produce a pace.
func PacePerKm(movingSeconds int, km float64) (int, bool) {
	if km <= 0 || movingSeconds <= 0 {
		return 0, false
	}
	return int(math.Round(float64(movingSeconds) / km)), true
}

// PaceWithinRange reports whether pace lies in [minPace, maxPace]. Zero bounds
// fall back to the defaults.
func PaceWithinRange(pace, minPace, maxPace int) bool {
	if minPace == 0 {
		minPace = DefaultMinPaceSecondsPerKm
	}
	if maxPace == 0 {
		maxPace = DefaultMaxPaceSecondsPerKm
	}
	return pace >= minPace && pace <= maxPace
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
