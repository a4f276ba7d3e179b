package kalman

import "github.com/golang/geo/r3"

// Tracker3D smooths a 3D position with a constant velocity model and carries
// the last measured rotation alongside it.
//
// A tracker starts without a position. The first Update adopts the
// measurement directly; after that each Update runs a Kalman correction.
// Every UpdateNotFound consumes one unit of the not-found countdown and the
// track is dropped when it reaches zero. Predict is ignored while there is no
// track.
type Tracker3D struct {
	params   Params3D
	filter   *filter
	rotation r3.Vector
}

// NewTracker3D returns a tracker in the acquiring state.
func NewTracker3D(params Params3D) *Tracker3D {
	return &Tracker3D{
		params: params,
		filter: newFilter(3, params.processNoise(), params.measurementNoise(), params.timeout()),
	}
}

// Predict extrapolates the state by elapsedMsec milliseconds.
func (t *Tracker3D) Predict(elapsedMsec float64) {
	t.filter.predict(elapsedMsec)
}

// Update folds in a measured position and records the rotation as given.
func (t *Tracker3D) Update(position, rotation r3.Vector) {
	t.filter.correct([]float64{position.X, position.Y, position.Z})
	t.rotation = rotation
}

// UpdateNotFound records a frame in which the marker was not seen.
func (t *Tracker3D) UpdateNotFound() {
	t.filter.miss()
}

// HasPosition reports whether the tracker holds a live estimate.
func (t *Tracker3D) HasPosition() bool {
	return t.filter.tracking()
}

// Position returns the filtered position.
func (t *Tracker3D) Position() r3.Vector {
	return r3.Vector{X: t.filter.position(0), Y: t.filter.position(1), Z: t.filter.position(2)}
}

// Velocity returns the filtered velocity in units per millisecond.
func (t *Tracker3D) Velocity() r3.Vector {
	return r3.Vector{X: t.filter.velocity(0), Y: t.filter.velocity(1), Z: t.filter.velocity(2)}
}

// Rotation returns the last rotation passed to Update.
func (t *Tracker3D) Rotation() r3.Vector {
	return t.rotation
}

// Params returns the active parameters.
func (t *Tracker3D) Params() Params3D {
	return t.params
}

// SetParams swaps the noise model without touching the current estimate.
func (t *Tracker3D) SetParams(params Params3D) {
	t.params = params
	t.filter.setNoise(params.processNoise(), params.measurementNoise())
	t.filter.timeout = params.timeout()
	if t.filter.countdown > t.filter.timeout {
		t.filter.countdown = t.filter.timeout
	}
}
