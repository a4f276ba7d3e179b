// Package units provides shared constants and conversions for angle units
// and frame timing.
package units

import (
	"fmt"
	"math"
)

// Angle unit constants
const (
	Radians = "rad"
	Degrees = "deg"
)

// ValidAngleUnits contains all valid angle unit values
var ValidAngleUnits = []string{Radians, Degrees}

// IsValidAngleUnit checks if the given unit is in the list of valid units
func IsValidAngleUnit(unit string) bool {
	for _, valid := range ValidAngleUnits {
		if unit == valid {
			return true
		}
	}
	return false
}

// ConvertAngle converts an angle in radians to the target units. Unknown
// units leave the value in radians.
func ConvertAngle(rad float64, targetUnits string) float64 {
	switch targetUnits {
	case Degrees:
		return rad * 180 / math.Pi
	default:
		return rad
	}
}

// FrameIntervalMsec returns the time between frames at the given rate.
func FrameIntervalMsec(framesPerSecond float64) (float64, error) {
	if framesPerSecond <= 0 || math.IsInf(framesPerSecond, 0) || math.IsNaN(framesPerSecond) {
		return 0, fmt.Errorf("frames per second must be positive, got %g", framesPerSecond)
	}
	return 1000 / framesPerSecond, nil
}
