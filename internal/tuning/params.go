// Package tuning searches Kalman filter noise parameters with the genetic
// algorithm by replaying recorded or synthetic marker tracks.
package tuning

import (
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/genetic"
	"github.com/banshee-data/marker.tracker/internal/kalman"
)

const (
	// Genome3DSize is the number of genes mapped onto kalman.Params3D.
	Genome3DSize = 6
	// Genome1DSize is the number of genes mapped onto kalman.Params1D.
	Genome1DSize = 3
)

// ParamsFromGenome maps genes, in order, to position XY/Z process noise,
// velocity XY/Z process noise and measurement XY/Z noise.
func ParamsFromGenome(g genetic.Genome, notFoundTimeout int) (kalman.Params3D, error) {
	if len(g) != Genome3DSize {
		return kalman.Params3D{}, fmt.Errorf("genome has %d genes, want %d", len(g), Genome3DSize)
	}
	return kalman.Params3D{
		PositionXYProcessNoise: g[0],
		PositionZProcessNoise:  g[1],
		VelocityXYProcessNoise: g[2],
		VelocityZProcessNoise:  g[3],
		MeasurementXYNoise:     g[4],
		MeasurementZNoise:      g[5],
		NotFoundTimeout:        notFoundTimeout,
	}, nil
}

// GenomeFromParams is the inverse of ParamsFromGenome.
func GenomeFromParams(p kalman.Params3D) genetic.Genome {
	return genetic.Genome{
		p.PositionXYProcessNoise,
		p.PositionZProcessNoise,
		p.VelocityXYProcessNoise,
		p.VelocityZProcessNoise,
		p.MeasurementXYNoise,
		p.MeasurementZNoise,
	}
}

// Params1DFromGenome maps genes to position process noise, velocity process
// noise and measurement noise.
func Params1DFromGenome(g genetic.Genome) (kalman.Params1D, error) {
	if len(g) != Genome1DSize {
		return kalman.Params1D{}, fmt.Errorf("genome has %d genes, want %d", len(g), Genome1DSize)
	}
	return kalman.Params1D{
		PositionProcessNoise: g[0],
		VelocityProcessNoise: g[1],
		MeasurementNoise:     g[2],
		NotFoundTimeout:      kalman.DefaultNotFoundTimeout1D,
	}, nil
}

// GenomeFromParams1D is the inverse of Params1DFromGenome.
func GenomeFromParams1D(p kalman.Params1D) genetic.Genome {
	return genetic.Genome{p.PositionProcessNoise, p.VelocityProcessNoise, p.MeasurementNoise}
}
