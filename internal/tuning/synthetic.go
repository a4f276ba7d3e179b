package tuning

import (
	"errors"
	"math"

	"github.com/banshee-data/marker.tracker/internal/genetic"
	"github.com/banshee-data/marker.tracker/internal/kalman"
)

// SyntheticEvaluator scores a 3 gene genome by tracking a generated 1D
// trajectory with Gaussian measurement noise. The object rests at Start and
// moves at Velocity per step from MoveFrame on. Every call draws its noise
// from a fresh source seeded with Seed so all genomes see the same samples.
type SyntheticEvaluator struct {
	Frames      int
	Start       float64
	MoveFrame   int
	Velocity    float64
	NoiseStdDev float64
	// Loops is the number of noisy replays averaged per evaluation.
	Loops int
	Seed  int64
}

// NewSyntheticEvaluator returns a stationary object at 1000 observed for
// 200 steps with unit measurement noise, averaged over 10 replays.
func NewSyntheticEvaluator() *SyntheticEvaluator {
	return &SyntheticEvaluator{
		Frames:      200,
		Start:       1000,
		MoveFrame:   555,
		Velocity:    5,
		NoiseStdDev: 1,
		Loops:       10,
		Seed:        1,
	}
}

// Actual returns the true position at step i.
func (e *SyntheticEvaluator) Actual(i int) float64 {
	if i < e.MoveFrame {
		return e.Start
	}
	return e.Start + e.Velocity*float64(i-e.MoveFrame+1)
}

// Evaluate implements genetic.Evaluator. The fitness is the mean absolute
// difference between the corrected and the true position.
func (e *SyntheticEvaluator) Evaluate(genome genetic.Genome) (float64, error) {
	params, err := Params1DFromGenome(genome)
	if err != nil {
		return 0, err
	}
	if e.Frames <= 0 {
		return 0, errors.New("synthetic evaluator needs at least one frame")
	}
	loops := max(e.Loops, 1)
	rng := genetic.NewRandom(e.Seed)

	total := 0.0
	for l := 0; l < loops; l++ {
		total += e.replay(params, rng)
	}
	return total / float64(loops), nil
}

func (e *SyntheticEvaluator) replay(params kalman.Params1D, rng *genetic.Random) float64 {
	tr := kalman.NewTracker1D(params)
	sum := 0.0
	for i := 0; i < e.Frames; i++ {
		actual := e.Actual(i)
		tr.Predict(1)
		tr.Update(rng.Gaussian(actual, e.NoiseStdDev))
		sum += math.Abs(tr.Position() - actual)
	}
	return sum / float64(e.Frames)
}
