package tuning

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/genetic"
	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/marker"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/recording"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

var (
	smoothGenome = genetic.Genome{1e-6, 1e-6, 1e-6, 1e-6, 100, 100}
	followGenome = genetic.Genome{100, 100, 100, 100, 1e-6, 1e-6}
)

// jitterRecording has marker 45 resting at (10, 20, 500) with unit noise and
// marker 7 visible in every other frame.
func jitterRecording(frames int) *recording.Recording {
	rng := genetic.NewRandom(3)
	rec := &recording.Recording{MsecsPerFrame: 1000.0 / 30}
	for i := 0; i < frames; i++ {
		f := &marker.Frame{Index: i}
		f.Markers = append(f.Markers, marker.Detection{
			ID: 45,
			Position: r3.Vector{
				X: rng.Gaussian(10, 1),
				Y: rng.Gaussian(20, 1),
				Z: rng.Gaussian(500, 1),
			},
		})
		if i%2 == 0 {
			f.Markers = append(f.Markers, marker.Detection{ID: 7, Position: r3.Vector{X: 1, Y: 1, Z: 1}})
		}
		rec.Frames = append(rec.Frames, f)
	}
	return rec
}

func TestParamsGenomeMapping(t *testing.T) {
	p := kalman.MovingObjectParams()
	got, err := ParamsFromGenome(GenomeFromParams(p), p.NotFoundTimeout)
	require.NoError(t, err)
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}

	_, err = ParamsFromGenome(genetic.Genome{1, 2}, 0)
	assert.Error(t, err)

	p1 := kalman.DefaultParams1D()
	got1, err := Params1DFromGenome(GenomeFromParams1D(p1))
	require.NoError(t, err)
	assert.Equal(t, p1, got1)
	_, err = Params1DFromGenome(genetic.Genome{1})
	assert.Error(t, err)
}

func TestParseScoreMode(t *testing.T) {
	for _, m := range []ScoreMode{ScoreStationary, ScoreGroundTruth} {
		got, err := ParseScoreMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseScoreMode("nope")
	assert.Error(t, err)
}

func TestNewRecordingEvaluatorValidation(t *testing.T) {
	rec := jitterRecording(4)
	tests := []struct {
		name string
		rec  *recording.Recording
		opts RecordingOptions
	}{
		{"nil recording", nil, RecordingOptions{TargetIDs: []int{45}}},
		{"no targets", rec, RecordingOptions{}},
		{"unknown target", rec, RecordingOptions{TargetIDs: []int{99}}},
		{"short ground truth", rec, RecordingOptions{TargetIDs: []int{45}, Mode: ScoreGroundTruth,
			GroundTruth: map[int][]r3.Vector{45: {{}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecordingEvaluator(tt.rec, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestReplayHasEntryPerFrame(t *testing.T) {
	rec := jitterRecording(6)
	ev, err := NewRecordingEvaluator(rec, RecordingOptions{TargetIDs: []int{45}})
	require.NoError(t, err)
	assert.Equal(t, []int{7, 45}, ev.IDs())

	log, err := ev.Replay(GenomeFromParams(kalman.DefaultParams3D()))
	require.NoError(t, err)
	for _, id := range ev.IDs() {
		assert.Len(t, log[id], 6, "id %d", id)
	}
	assert.True(t, log[7][0].HasMarker)
	assert.False(t, log[7][0].Predicted, "first sighting has no prior track")
	assert.False(t, log[7][1].HasMarker)
	assert.True(t, log[7][1].Predicted, "gap is extrapolated")
	assert.Equal(t, r3.Vector{X: 1, Y: 1, Z: 1}, log[7][2].Update)
	assert.Nil(t, rec.Frames[0].FilteredMarkers, "recording is not modified")
}

func TestStationaryErrorZeroForConstantMarker(t *testing.T) {
	rec := &recording.Recording{MsecsPerFrame: 33}
	for i := 0; i < 10; i++ {
		rec.Frames = append(rec.Frames, &marker.Frame{Index: i, Markers: []marker.Detection{{ID: 3, Position: r3.Vector{X: 4, Y: 5, Z: 6}}}})
	}
	ev, err := NewRecordingEvaluator(rec, RecordingOptions{TargetIDs: []int{3}})
	require.NoError(t, err)
	score, err := ev.Evaluate(followGenome)
	require.NoError(t, err)
	assert.InDelta(t, 0, score, 1e-12)
}

func TestStationaryErrorPrefersSmoothing(t *testing.T) {
	ev, err := NewRecordingEvaluator(jitterRecording(300), RecordingOptions{TargetIDs: []int{45}})
	require.NoError(t, err)

	smooth, err := ev.Evaluate(smoothGenome)
	require.NoError(t, err)
	follow, err := ev.Evaluate(followGenome)
	require.NoError(t, err)
	assert.Less(t, smooth, follow)

	_, err = ev.Evaluate(genetic.Genome{1})
	assert.Error(t, err)
}

func TestGroundTruthError(t *testing.T) {
	rec := jitterRecording(200)
	truth := make([]r3.Vector, len(rec.Frames))
	for i := range truth {
		truth[i] = r3.Vector{X: 10, Y: 20, Z: 500}
	}
	ev, err := NewRecordingEvaluator(rec, RecordingOptions{
		TargetIDs:   []int{45},
		Mode:        ScoreGroundTruth,
		GroundTruth: map[int][]r3.Vector{45: truth},
	})
	require.NoError(t, err)

	smooth, err := ev.Evaluate(smoothGenome)
	require.NoError(t, err)
	follow, err := ev.Evaluate(followGenome)
	require.NoError(t, err)
	assert.Less(t, smooth, follow)
	assert.InDelta(t, math.Sqrt(8/math.Pi), follow, 0.3, "following the measurement leaves the raw noise")
}

func TestWriteReplayCSV(t *testing.T) {
	ev, err := NewRecordingEvaluator(jitterRecording(3), RecordingOptions{TargetIDs: []int{45}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, ev.WriteReplayCSV(&buf, smoothGenome))
	lines := strings.Split(buf.String(), "\n")
	assert.Equal(t, "id,7", lines[0])
	assert.Equal(t, strings.Join(ReplayHeader, ","), lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "0,1,1,1,,,,1,1,1,,"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "1,,,,1,1,1,,,,,"), lines[3])
	assert.Equal(t, "", lines[5])
	assert.Equal(t, "id,45", lines[6])

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, ev.WriteReplayCSVFile(fsys, "/out/gen000.csv", smoothGenome))
	data, err := fsys.ReadFile("/out/gen000.csv")
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(data))
}

func TestSyntheticEvaluator(t *testing.T) {
	ev := NewSyntheticEvaluator()
	assert.Equal(t, 1000.0, ev.Actual(554))
	assert.Equal(t, 1005.0, ev.Actual(555))

	smooth, err := ev.Evaluate(genetic.Genome{1e-10, 1e-10, 5})
	require.NoError(t, err)
	follow, err := ev.Evaluate(genetic.Genome{100, 100, 1e-6})
	require.NoError(t, err)
	assert.Less(t, smooth, follow)

	again, err := ev.Evaluate(genetic.Genome{1e-10, 1e-10, 5})
	require.NoError(t, err)
	assert.Equal(t, smooth, again, "evaluation is deterministic for a fixed seed")

	_, err = ev.Evaluate(genetic.Genome{1, 2})
	assert.Error(t, err)
}

type memStore struct {
	mu      sync.Mutex
	fitness []float64
}

func (s *memStore) RecordGeneration(_ context.Context, runID string, gen int, fitness float64, genome []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if runID != "run-1" {
		return errors.New("unexpected run id")
	}
	s.fitness = append(s.fitness, fitness)
	return nil
}

func newSyntheticGA(t *testing.T, pop int) *genetic.GeneticAlgorithm {
	t.Helper()
	rng := genetic.NewRandom(5)
	lab, err := genetic.NewGenomeLab(genetic.LabConfig{
		GenomeSize:      Genome1DSize,
		InitMin:         1e-7,
		InitMax:         100,
		ClipMin:         1e-10,
		ClipMax:         1e10,
		MutationMulProb: 0.2,
		MutationMulStd:  2,
		CrossoverMin:    0,
		CrossoverMax:    0.4,
	}, rng)
	require.NoError(t, err)
	ev := NewSyntheticEvaluator()
	ev.Loops = 1
	ga, err := genetic.New(genetic.Config{PopulationSize: pop, ElitePortion: 0.1, RankSelectionMultiplier: 10}, lab, ev, rng)
	require.NoError(t, err)
	return ga
}

func TestRunnerRunsAllGenerations(t *testing.T) {
	r := NewRunner(newSyntheticGA(t, 20), 4)
	r.RunID = "run-1"
	store := &memStore{}
	r.Store = store
	clock := timeutil.NewMockClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	r.Clock = clock

	var seen []Progress
	r.OnProgress(func(p Progress) { seen = append(seen, p) })

	best, err := r.Run(context.Background())
	require.NoError(t, err)

	p := r.Progress()
	assert.True(t, p.Done)
	assert.Equal(t, 3, p.Generation)
	assert.Len(t, p.History, 4)
	assert.Equal(t, best.Fitness, p.BestFitness)
	assert.Equal(t, clock.Now(), p.StartedAt)
	for i := 1; i < len(p.History); i++ {
		assert.LessOrEqual(t, p.History[i], p.History[i-1], "elitism keeps the best")
	}
	assert.Equal(t, p.History, store.fitness)
	require.NotEmpty(t, seen)
	assert.True(t, seen[len(seen)-1].Done)
}

func TestRunnerStopsAtTarget(t *testing.T) {
	r := NewRunner(newSyntheticGA(t, 10), 50)
	r.TargetFitness = math.Inf(1)
	_, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, r.Progress().History, 1)
}

func TestRunnerWritesReplayCSV(t *testing.T) {
	rng := genetic.NewRandom(1)
	ev, err := NewRecordingEvaluator(jitterRecording(5), RecordingOptions{TargetIDs: []int{45}})
	require.NoError(t, err)
	lab, err := genetic.NewGenomeLab(genetic.DefaultLabConfig(Genome3DSize), rng)
	require.NoError(t, err)
	ga, err := genetic.New(genetic.Config{PopulationSize: 6, RankSelectionMultiplier: 2}, lab, ev, rng)
	require.NoError(t, err)

	fsys := fsutil.NewMemoryFileSystem()
	r := NewRunner(ga, 2)
	r.Replay, r.FS, r.CSVDir = ev, fsys, "/csv"
	_, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/csv/gen000.csv", "/csv/gen001.csv"}, fsys.Names())
}

func TestRunnerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(newSyntheticGA(t, 4), 3)
	_, err := r.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	p := r.Progress()
	assert.True(t, p.Done)
	assert.NotEmpty(t, p.Error)
}

func TestRunnerRejectsBadSetup(t *testing.T) {
	_, err := (&Runner{}).Run(context.Background())
	assert.Error(t, err)
	_, err = NewRunner(newSyntheticGA(t, 2), 0).Run(context.Background())
	assert.Error(t, err)
}

func TestFormatGenome(t *testing.T) {
	assert.Equal(t, "[1, 0.5, 1e-10]", FormatGenome([]float64{1, 0.5, 1e-10}))
	assert.Equal(t, "[]", FormatGenome(nil))
}
