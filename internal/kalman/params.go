package kalman

import (
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/config"
)

const (
	// DefaultNotFoundTimeout3D is the number of consecutive misses a 3D
	// track survives.
	DefaultNotFoundTimeout3D = 300
	// DefaultNotFoundTimeout1D is the number of consecutive misses an angle
	// track survives.
	DefaultNotFoundTimeout1D = 90
)

// Params3D configures a Tracker3D. Process noise is applied per state
// element (x and y share the XY values), measurement noise per measured
// axis.
type Params3D struct {
	PositionXYProcessNoise float64 `json:"position_xy_process_noise"`
	PositionZProcessNoise  float64 `json:"position_z_process_noise"`
	VelocityXYProcessNoise float64 `json:"velocity_xy_process_noise"`
	VelocityZProcessNoise  float64 `json:"velocity_z_process_noise"`
	MeasurementXYNoise     float64 `json:"measurement_xy_noise"`
	MeasurementZNoise      float64 `json:"measurement_z_noise"`
	NotFoundTimeout        int     `json:"not_found_timeout"`
}

// DefaultParams3D returns the general purpose noise profile.
func DefaultParams3D() Params3D {
	return Params3D{
		PositionXYProcessNoise: 1e-5,
		PositionZProcessNoise:  1e-8,
		VelocityXYProcessNoise: 1e-5,
		VelocityZProcessNoise:  1e-8,
		MeasurementXYNoise:     1,
		MeasurementZNoise:      1,
		NotFoundTimeout:        DefaultNotFoundTimeout3D,
	}
}

// MovingObjectParams is tuned for markers on vehicles that move freely.
func MovingObjectParams() Params3D {
	return Params3D{
		PositionXYProcessNoise: 10,
		PositionZProcessNoise:  30,
		VelocityXYProcessNoise: 10,
		VelocityZProcessNoise:  30,
		MeasurementXYNoise:     3,
		MeasurementZNoise:      3,
		NotFoundTimeout:        DefaultNotFoundTimeout3D,
	}
}

// StaticMarkerParams is tuned for markers that never move, such as the
// reference markers defining the ground plane.
func StaticMarkerParams() Params3D {
	return Params3D{
		PositionXYProcessNoise: 1e-7,
		PositionZProcessNoise:  1e-10,
		VelocityXYProcessNoise: 1e-7,
		VelocityZProcessNoise:  1e-10,
		MeasurementXYNoise:     1,
		MeasurementZNoise:      1,
		NotFoundTimeout:        DefaultNotFoundTimeout3D,
	}
}

// Params3DFromTuning builds Params3D from a TuningConfig, falling back to
// the config defaults for unset fields.
func Params3DFromTuning(cfg *config.TuningConfig) Params3D {
	return Params3D{
		PositionXYProcessNoise: cfg.GetPositionXYProcessNoise(),
		PositionZProcessNoise:  cfg.GetPositionZProcessNoise(),
		VelocityXYProcessNoise: cfg.GetVelocityXYProcessNoise(),
		VelocityZProcessNoise:  cfg.GetVelocityZProcessNoise(),
		MeasurementXYNoise:     cfg.GetMeasurementXYNoise(),
		MeasurementZNoise:      cfg.GetMeasurementZNoise(),
		NotFoundTimeout:        cfg.GetNotFoundTimeout(),
	}
}

func (p Params3D) processNoise() []float64 {
	return []float64{
		p.PositionXYProcessNoise, p.PositionXYProcessNoise, p.PositionZProcessNoise,
		p.VelocityXYProcessNoise, p.VelocityXYProcessNoise, p.VelocityZProcessNoise,
	}
}

func (p Params3D) measurementNoise() []float64 {
	return []float64{p.MeasurementXYNoise, p.MeasurementXYNoise, p.MeasurementZNoise}
}

func (p Params3D) timeout() int {
	if p.NotFoundTimeout <= 0 {
		return DefaultNotFoundTimeout3D
	}
	return p.NotFoundTimeout
}

// Validate reports negative noise levels.
func (p Params3D) Validate() error {
	for i, v := range append(p.processNoise(), p.measurementNoise()...) {
		if v < 0 {
			return fmt.Errorf("noise term %d is negative: %g", i, v)
		}
	}
	return nil
}

// Params1D configures a Tracker1D.
type Params1D struct {
	PositionProcessNoise float64 `json:"position_process_noise"`
	VelocityProcessNoise float64 `json:"velocity_process_noise"`
	MeasurementNoise     float64 `json:"measurement_noise"`
	NotFoundTimeout      int     `json:"not_found_timeout"`
}

// DefaultParams1D returns unit noise on every term.
func DefaultParams1D() Params1D {
	return Params1D{
		PositionProcessNoise: 1,
		VelocityProcessNoise: 1,
		MeasurementNoise:     1,
		NotFoundTimeout:      DefaultNotFoundTimeout1D,
	}
}

// Params1DFromTuning builds the angle filter parameters from a TuningConfig.
func Params1DFromTuning(cfg *config.TuningConfig) Params1D {
	return Params1D{
		PositionProcessNoise: cfg.GetAngleProcessNoise(),
		VelocityProcessNoise: cfg.GetAngleVelocityProcessNoise(),
		MeasurementNoise:     cfg.GetAngleMeasurementNoise(),
		NotFoundTimeout:      cfg.GetAngleNotFoundTimeout(),
	}
}

func (p Params1D) timeout() int {
	if p.NotFoundTimeout <= 0 {
		return DefaultNotFoundTimeout1D
	}
	return p.NotFoundTimeout
}

// Validate reports negative noise levels.
func (p Params1D) Validate() error {
	if p.PositionProcessNoise < 0 || p.VelocityProcessNoise < 0 || p.MeasurementNoise < 0 {
		return fmt.Errorf("negative noise in %+v", p)
	}
	return nil
}
