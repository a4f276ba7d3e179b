package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/db"
	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/recording"
	"github.com/banshee-data/marker.tracker/internal/testutil"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
	"github.com/banshee-data/marker.tracker/internal/tuning"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func smallConfig() *config.TuningConfig {
	cfg := config.DefaultTuningConfig()
	applyOverrides(cfg, 3, 16, 2, 7)
	return cfg
}

var target = testutil.SyntheticMarker{ID: 45, Start: r3.Vector{X: 5, Y: 5, Z: 400}}

func writeRecordings(t *testing.T, fsys fsutil.FileSystem) {
	t.Helper()
	noisy := target
	noisy.NoiseStdDev = 1
	require.NoError(t, recording.Save(fsys, "/rec/noisy.json", testutil.SyntheticRecording(60, 3, noisy)))
	require.NoError(t, recording.Save(fsys, "/rec/truth.json", testutil.SyntheticRecording(60, 3, target)))
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"", nil, false},
		{"45", []int{45}, false},
		{" 1, 2 ,3", []int{1, 2, 3}, false},
		{"1,x", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseIDs(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultTuningConfig()
	applyOverrides(cfg, 0, 0, -1, 0)
	assert.Equal(t, config.DefaultTuningConfig(), cfg, "defaults leave the config alone")

	applyOverrides(cfg, 5, 10, 0, 99)
	assert.Equal(t, 5, cfg.GetGenerations())
	assert.Equal(t, 10, cfg.GetPopulationSize())
	assert.Equal(t, 0, cfg.GetWorkers())
	assert.Equal(t, int64(99), cfg.GetRandomSeed())
}

func TestRunSyntheticPersists(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tuning.db")
	fsys := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))

	best, err := run(ctx, fsys, options{
		Config:     smallConfig(),
		Name:       "synthetic",
		DBPath:     dbPath,
		SeedConfig: true,
		PlotPath:   "/out/fitness.png",
		HTMLPath:   "/out/fitness.html",
		Clock:      clock,
	})
	require.NoError(t, err)
	assert.Len(t, best.Genome, tuning.Genome1DSize)

	_, err = fsys.ReadFile("/out/fitness.png")
	assert.NoError(t, err)
	html, err := fsys.ReadFile("/out/fitness.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "Best fitness")

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	store := db.NewTuningStore(database, nil)
	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusFinished, runs[0].Status)
	assert.Equal(t, "synthetic", runs[0].Evaluator)
	require.NotNil(t, runs[0].BestFitness)
	assert.Equal(t, best.Fitness, *runs[0].BestFitness)

	gens, err := store.ListGenerations(ctx, runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, gens, 3)
}

func TestRunRecordingWithSeedRun(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "tuning.db")
	fsys := fsutil.NewMemoryFileSystem()
	writeRecordings(t, fsys)

	opts := options{
		Config:        smallConfig(),
		RecordingPath: "/rec/noisy.json",
		TargetIDs:     []int{45},
		DBPath:        dbPath,
		CSVDir:        "/csv",
	}
	first, err := run(ctx, fsys, opts)
	require.NoError(t, err)
	assert.Len(t, first.Genome, tuning.Genome3DSize)
	for _, name := range []string{"/csv/gen000.csv", "/csv/gen001.csv", "/csv/gen002.csv"} {
		_, err := fsys.ReadFile(name)
		assert.NoError(t, err, name)
	}

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	runs, err := db.NewTuningStore(database, nil).ListRuns(ctx, 1)
	database.Close()
	require.NoError(t, err)
	require.Len(t, runs, 1)

	opts.SeedRun = runs[0].ID
	opts.CSVDir = ""
	second, err := run(ctx, fsys, opts)
	require.NoError(t, err)
	assert.Len(t, second.Genome, tuning.Genome3DSize)

	database, err = db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	runs, err = db.NewTuningStore(database, nil).ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunGroundTruth(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeRecordings(t, fsys)

	best, err := run(context.Background(), fsys, options{
		Config:          smallConfig(),
		RecordingPath:   "/rec/noisy.json",
		GroundTruthPath: "/rec/truth.json",
		Score:           tuning.ScoreGroundTruth,
		TargetIDs:       []int{45},
	})
	require.NoError(t, err)
	assert.Greater(t, best.Fitness, 0.0)
	assert.Less(t, best.Fitness, 3.0)
}

func TestRunErrors(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	writeRecordings(t, fsys)

	tests := []struct {
		name string
		opts options
	}{
		{"missing recording", options{RecordingPath: "/rec/none.json"}},
		{"unknown target", options{RecordingPath: "/rec/noisy.json", TargetIDs: []int{7}}},
		{"ground truth without file", options{RecordingPath: "/rec/noisy.json", TargetIDs: []int{45}, Score: tuning.ScoreGroundTruth}},
		{"seed run without database", options{SeedRun: "abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Config = smallConfig()
			_, err := run(context.Background(), fsys, tt.opts)
			assert.Error(t, err)
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := run(ctx, fsutil.NewMemoryFileSystem(), options{Config: smallConfig()})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunFailureIsRecorded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tuning.db")
	cfg := smallConfig()
	zero := 0
	cfg.Generations = &zero

	_, err := run(context.Background(), fsutil.NewMemoryFileSystem(), options{Config: cfg, DBPath: dbPath})
	require.Error(t, err)

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()
	runs, err := db.NewTuningStore(database, nil).ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "generations must be positive")
}
