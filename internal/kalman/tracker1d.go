package kalman

// Tracker1D is the scalar counterpart of Tracker3D, used for unwrapped
// marker angles.
type Tracker1D struct {
	params Params1D
	filter *filter
}

// NewTracker1D returns a tracker in the acquiring state.
func NewTracker1D(params Params1D) *Tracker1D {
	return &Tracker1D{
		params: params,
		filter: newFilter(1,
			[]float64{params.PositionProcessNoise, params.VelocityProcessNoise},
			[]float64{params.MeasurementNoise},
			params.timeout()),
	}
}

// Predict extrapolates the value by elapsedMsec milliseconds.
func (t *Tracker1D) Predict(elapsedMsec float64) { t.filter.predict(elapsedMsec) }

// Update folds in a measured value.
func (t *Tracker1D) Update(value float64) { t.filter.correct([]float64{value}) }

// UpdateNotFound records a frame without a measurement.
func (t *Tracker1D) UpdateNotFound() { t.filter.miss() }

// HasPosition reports whether the tracker holds a live estimate.
func (t *Tracker1D) HasPosition() bool { return t.filter.tracking() }

// Position returns the filtered value.
func (t *Tracker1D) Position() float64 { return t.filter.position(0) }

// Velocity returns the filtered rate of change per millisecond.
func (t *Tracker1D) Velocity() float64 { return t.filter.velocity(0) }

// Params returns the active parameters.
func (t *Tracker1D) Params() Params1D { return t.params }
