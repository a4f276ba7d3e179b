package marker

import (
	"github.com/golang/geo/r3"

	"github.com/banshee-data/marker.tracker/internal/kalman"
)

// Track follows one marker id across frames. Position goes through a 3D
// filter; the in-plane angle is unwrapped by a RotationCounter before it
// reaches a 1D filter so headings stay continuous across ±π.
type Track struct {
	id int

	posFilter       *kalman.Tracker3D
	angleFilter     *kalman.Tracker1D
	rotationCounter kalman.RotationCounter

	pos      r3.Vector
	angle    float64
	detected bool
	misses   int
}

// NewTrack returns a track using the moving object noise profile.
func NewTrack(id int) *Track {
	return NewTrackWithParams(id, kalman.MovingObjectParams(), kalman.DefaultParams1D())
}

// NewTrackWithParams returns a track with explicit filter parameters.
func NewTrackWithParams(id int, pos kalman.Params3D, angle kalman.Params1D) *Track {
	return &Track{
		id:          id,
		posFilter:   kalman.NewTracker3D(pos),
		angleFilter: kalman.NewTracker1D(angle),
	}
}

func (t *Track) ID() int { return t.id }

// SetPositionRotation records a detection taken elapsedMsec after the
// previous frame.
func (t *Track) SetPositionRotation(pos r3.Vector, angle float64, elapsedMsec float64) {
	t.pos = pos
	t.posFilter.Predict(elapsedMsec)
	t.posFilter.Update(pos, r3.Vector{Z: angle})

	t.angleFilter.Predict(elapsedMsec)
	t.rotationCounter.UpdateAngle(angle)
	t.angle = t.rotationCounter.AngleWithRotations()
	t.angleFilter.Update(t.angle)

	t.detected = true
	t.misses = 0
}

// SetNotDetected advances the filters through a frame without a detection.
func (t *Track) SetNotDetected(elapsedMsec float64) {
	t.posFilter.Predict(elapsedMsec)
	t.posFilter.UpdateNotFound()
	t.angleFilter.Predict(elapsedMsec)
	t.angleFilter.UpdateNotFound()

	t.detected = false
	t.misses++
}

// IsDetected reports whether the last frame contained this marker.
func (t *Track) IsDetected() bool { return t.detected }

// Position is the last raw measured position.
func (t *Track) Position() r3.Vector { return t.pos }

// Angle is the last raw angle with full turns added back.
func (t *Track) Angle() float64 { return t.angle }

// Misses is the number of consecutive frames without a detection.
func (t *Track) Misses() int { return t.misses }

// IsDetectedFiltered reports whether both filters still hold an estimate.
func (t *Track) IsDetectedFiltered() bool {
	return t.posFilter.HasPosition() && t.angleFilter.HasPosition()
}

func (t *Track) FilteredPosition() r3.Vector { return t.posFilter.Position() }

func (t *Track) FilteredAngle() float64 { return t.angleFilter.Position() }

// TrackState is a point-in-time copy of a Track.
type TrackState struct {
	ID               int       `json:"id"`
	Detected         bool      `json:"detected"`
	DetectedFiltered bool      `json:"detected_filtered"`
	Position         r3.Vector `json:"position"`
	Angle            float64   `json:"angle"`
	FilteredPosition r3.Vector `json:"filtered_position"`
	FilteredAngle    float64   `json:"filtered_angle"`
	Misses           int       `json:"misses"`
}

// State copies the current values out of the track.
func (t *Track) State() TrackState {
	return TrackState{
		ID:               t.id,
		Detected:         t.detected,
		DetectedFiltered: t.IsDetectedFiltered(),
		Position:         t.pos,
		Angle:            t.angle,
		FilteredPosition: t.FilteredPosition(),
		FilteredAngle:    t.FilteredAngle(),
		Misses:           t.misses,
	}
}
