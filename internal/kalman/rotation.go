package kalman

import "math"

// RotationCounter turns a wrapped angle in (-π, π] into a continuous one by
// counting full turns. A jump larger than π between consecutive samples is
// taken as a wrap across the ±π boundary.
type RotationCounter struct {
	previous    float64
	rotations   int
	initialized bool
}

// UpdateAngle records a new wrapped angle sample.
func (c *RotationCounter) UpdateAngle(angle float64) {
	if c.initialized {
		delta := angle - c.previous
		if delta > math.Pi {
			c.rotations--
		} else if delta < -math.Pi {
			c.rotations++
		}
	}
	c.previous = angle
	c.initialized = true
}

// AngleWithRotations returns the last sample plus 2π per counted turn.
func (c *RotationCounter) AngleWithRotations() float64 {
	return c.previous + float64(c.rotations)*2*math.Pi
}

// Rotations returns the signed number of full turns counted so far.
func (c *RotationCounter) Rotations() int { return c.rotations }

// Reset clears the count and the reference sample.
func (c *RotationCounter) Reset() {
	*c = RotationCounter{}
}
