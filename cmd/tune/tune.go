package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/db"
	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/genetic"
	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/monitor"
	"github.com/banshee-data/marker.tracker/internal/recording"
	"github.com/banshee-data/marker.tracker/internal/report"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
	"github.com/banshee-data/marker.tracker/internal/tuning"
)

// options is the resolved command line.
type options struct {
	Config *config.TuningConfig
	Name   string

	// RecordingPath selects the recording evaluator; empty runs the
	// synthetic 1D evaluator.
	RecordingPath   string
	GroundTruthPath string
	Score           tuning.ScoreMode
	TargetIDs       []int

	DBPath     string
	SeedRun    string
	SeedConfig bool

	CSVDir   string
	PlotPath string
	HTMLPath string
	Listen   string

	Clock timeutil.Clock
}

// job is a configured run ready to start.
type job struct {
	runner     *tuning.Runner
	evaluator  string
	genomeSize int
	replay     *tuning.RecordingEvaluator
}

func newEvaluator(fsys fsutil.FileSystem, opts options) (genetic.Evaluator, *tuning.RecordingEvaluator, int, error) {
	if opts.RecordingPath == "" {
		return tuning.NewSyntheticEvaluator(), nil, tuning.Genome1DSize, nil
	}
	rec, err := recording.Load(fsys, opts.RecordingPath)
	if err != nil {
		return nil, nil, 0, err
	}
	targets := opts.TargetIDs
	if len(targets) == 0 {
		targets = opts.Config.GetTargetMarkerIDs()
	}
	ro := tuning.RecordingOptions{
		TargetIDs:       targets,
		Mode:            opts.Score,
		NotFoundTimeout: opts.Config.GetNotFoundTimeout(),
	}
	if opts.Score == tuning.ScoreGroundTruth {
		if opts.GroundTruthPath == "" {
			return nil, nil, 0, errors.New("ground-truth scoring needs a ground truth recording")
		}
		truth, err := recording.Load(fsys, opts.GroundTruthPath)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("ground truth: %w", err)
		}
		if ro.GroundTruth, err = groundTruth(truth, targets); err != nil {
			return nil, nil, 0, err
		}
	}
	ev, err := tuning.NewRecordingEvaluator(rec, ro)
	if err != nil {
		return nil, nil, 0, err
	}
	return ev, ev, tuning.Genome3DSize, nil
}

// groundTruth takes the true trajectory of each id from a recording that
// holds it in every frame.
func groundTruth(truth *recording.Recording, ids []int) (map[int][]r3.Vector, error) {
	out := make(map[int][]r3.Vector, len(ids))
	for _, id := range ids {
		positions := make([]r3.Vector, len(truth.Frames))
		for i, f := range truth.Frames {
			d, ok := f.Find(id)
			if !ok {
				return nil, fmt.Errorf("ground truth has no marker %d in frame %d", id, i)
			}
			positions[i] = d.Position
		}
		out[id] = positions
	}
	return out, nil
}

func labConfig(cfg *config.TuningConfig, size int) genetic.LabConfig {
	return genetic.LabConfig{
		GenomeSize:      size,
		InitMin:         cfg.GetInitMin(),
		InitMax:         cfg.GetInitMax(),
		ClipMin:         cfg.GetClipMin(),
		ClipMax:         cfg.GetClipMax(),
		MutationMulProb: cfg.GetMutationMulProb(),
		MutationMulStd:  cfg.GetMutationMulStd(),
		MutationAddProb: cfg.GetMutationAddProb(),
		MutationAddStd:  cfg.GetMutationAddStd(),
		CrossoverMin:    cfg.GetCrossoverMin(),
		CrossoverMax:    cfg.GetCrossoverMax(),
		PrecisionBits:   genetic.DefaultPrecisionBits,
	}
}

// configGenome is the configured noise model as a genome of size genes.
func configGenome(cfg *config.TuningConfig, size int) genetic.Genome {
	if size == tuning.Genome1DSize {
		return tuning.GenomeFromParams1D(kalman.Params1DFromTuning(cfg))
	}
	return tuning.GenomeFromParams(kalman.Params3DFromTuning(cfg))
}

func newJob(ctx context.Context, fsys fsutil.FileSystem, opts options, store *db.TuningStore) (*job, error) {
	cfg := opts.Config
	evaluator, replay, size, err := newEvaluator(fsys, opts)
	if err != nil {
		return nil, err
	}

	rng := genetic.NewRandom(cfg.GetRandomSeed())
	lab, err := genetic.NewGenomeLab(labConfig(cfg, size), rng)
	if err != nil {
		return nil, fmt.Errorf("genome lab: %w", err)
	}
	ga, err := genetic.New(genetic.Config{
		PopulationSize:          cfg.GetPopulationSize(),
		ElitePortion:            cfg.GetElitePortion(),
		RankSelectionMultiplier: cfg.GetRankSelectionMultiplier(),
		Workers:                 cfg.GetWorkers(),
	}, lab, evaluator, rng)
	if err != nil {
		return nil, fmt.Errorf("genetic algorithm: %w", err)
	}

	var seeds []genetic.Genome
	if opts.SeedConfig {
		seeds = append(seeds, configGenome(cfg, size))
	}
	if opts.SeedRun != "" {
		if store == nil {
			return nil, errors.New("seeding from a run needs the run database")
		}
		best, fitness, err := store.BestGenome(ctx, opts.SeedRun)
		if err != nil {
			return nil, fmt.Errorf("seed run %s: %w", opts.SeedRun, err)
		}
		log.Printf("Seeding from run %s (fitness %g)", opts.SeedRun, fitness)
		seeds = append(seeds, best)
	}
	if len(seeds) > 0 {
		if err := ga.Seed(seeds); err != nil {
			return nil, err
		}
	}

	runner := tuning.NewRunner(ga, cfg.GetGenerations())
	runner.TargetFitness = cfg.GetTargetFitness()
	if opts.Clock != nil {
		runner.Clock = opts.Clock
	}
	if replay != nil && opts.CSVDir != "" {
		runner.Replay = replay
		runner.FS = fsys
		runner.CSVDir = opts.CSVDir
	}

	name := "synthetic"
	if replay != nil {
		name = "recording"
	}
	return &job{runner: runner, evaluator: name, genomeSize: size, replay: replay}, nil
}

func run(ctx context.Context, fsys fsutil.FileSystem, opts options) (best genetic.Scored, err error) {
	var store *db.TuningStore
	if opts.DBPath != "" {
		database, err := db.NewDB(opts.DBPath)
		if err != nil {
			return best, fmt.Errorf("failed to open run database: %w", err)
		}
		defer database.Close()
		store = db.NewTuningStore(database, opts.Clock)
	}

	j, err := newJob(ctx, fsys, opts, store)
	if err != nil {
		return best, err
	}

	if store != nil {
		cfgJSON, merr := json.Marshal(opts.Config)
		if merr != nil {
			return best, merr
		}
		tr := &db.TuningRun{
			Name:           opts.Name,
			Evaluator:      j.evaluator,
			GenomeSize:     j.genomeSize,
			PopulationSize: opts.Config.GetPopulationSize(),
			Config:         cfgJSON,
		}
		if err := store.CreateRun(ctx, tr); err != nil {
			return best, err
		}
		j.runner.RunID = tr.ID
		j.runner.Store = store
		log.Printf("Tuning run %s (%s evaluator)", tr.ID, j.evaluator)
		defer func() {
			// ctx may already be cancelled; the outcome is still recorded.
			if ferr := store.FinishRun(context.Background(), tr.ID, best.Fitness, best.Genome, err); ferr != nil {
				log.Printf("failed to finish run %s: %v", tr.ID, ferr)
			}
		}()
	}

	var wg sync.WaitGroup
	if opts.Listen != "" {
		srvCtx, stop := context.WithCancel(ctx)
		server := monitor.NewServer(monitor.ServerConfig{Address: opts.Listen, Progress: j.runner, Runs: runStore(store)})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.Start(srvCtx); err != nil {
				log.Printf("monitor: %v", err)
			}
		}()
		defer func() {
			stop()
			wg.Wait()
		}()
	}

	best, err = j.runner.Run(ctx)
	if err != nil {
		return best, err
	}
	logBest(best, j)

	history := j.runner.Progress().History
	if opts.PlotPath != "" {
		if err := report.PlotFitness(fsys, opts.PlotPath, history); err != nil {
			return best, fmt.Errorf("fitness plot: %w", err)
		}
	}
	if opts.HTMLPath != "" {
		if err := writeFitnessHTML(fsys, opts.HTMLPath, history); err != nil {
			return best, err
		}
	}
	return best, nil
}

// runStore avoids handing the monitor a typed nil.
func runStore(store *db.TuningStore) monitor.RunStore {
	if store == nil {
		return nil
	}
	return store
}

func logBest(best genetic.Scored, j *job) {
	log.Printf("Best fitness %g, genome %s", best.Fitness, tuning.FormatGenome(best.Genome))
	var params any
	var err error
	if j.genomeSize == tuning.Genome1DSize {
		params, err = tuning.Params1DFromGenome(best.Genome)
	} else {
		params, err = tuning.ParamsFromGenome(best.Genome, kalman.DefaultNotFoundTimeout3D)
	}
	if err != nil {
		return
	}
	if data, err := json.MarshalIndent(params, "", "  "); err == nil {
		log.Printf("Best parameters:\n%s", data)
	}
}

func writeFitnessHTML(fsys fsutil.FileSystem, path string, history []float64) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return report.FitnessChartHTML(f, history)
}
