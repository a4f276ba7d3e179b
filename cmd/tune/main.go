package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/tuning"
	"github.com/banshee-data/marker.tracker/internal/version"
)

var (
	configPath      = flag.String("config", "", "Tuning config JSON (defaults when empty)")
	name            = flag.String("name", "", "Name stored with the run")
	recordingPath   = flag.String("recording", "", "Recorded detections JSON; empty tunes the synthetic 1D tracker")
	groundTruthPath = flag.String("ground-truth", "", "Recording holding the true target positions (for -score ground-truth)")
	score           = flag.String("score", "stationary", "Scoring mode: stationary or ground-truth")
	targets         = flag.String("targets", "", "Comma-separated target marker ids overriding the config")

	generations = flag.Int("generations", 0, "Generations to run (config value when 0)")
	population  = flag.Int("population", 0, "Population size (config value when 0)")
	workers     = flag.Int("workers", -1, "Concurrent evaluations, 0 for GOMAXPROCS (config value when negative)")
	seed        = flag.Int64("seed", 0, "Random seed (config value when 0)")

	dbPath     = flag.String("db", "tuning.db", "Run database; empty disables persistence")
	seedRun    = flag.String("seed-run", "", "Seed the population with the best genome of this stored run")
	seedConfig = flag.Bool("seed-config", false, "Seed the population with the configured noise parameters")

	csvDir   = flag.String("csv-dir", "", "Write the replay of each generation's best genome to this directory")
	plotPath = flag.String("plot", "", "Write a fitness PNG to this path")
	htmlPath = flag.String("html", "", "Write a fitness HTML chart to this path")
	listen   = flag.String("listen", "", "Serve tuning progress on this address, e.g. :8082")

	showVersion = flag.Bool("version", false, "Print version and exit")
)

func parseIDs(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// applyOverrides copies the non-default flag values into cfg.
func applyOverrides(cfg *config.TuningConfig, generations, population, workers int, seed int64) {
	if generations > 0 {
		cfg.Generations = &generations
	}
	if population > 0 {
		cfg.PopulationSize = &population
	}
	if workers >= 0 {
		cfg.Workers = &workers
	}
	if seed != 0 {
		cfg.RandomSeed = &seed
	}
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("tune"))
		return
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	applyOverrides(cfg, *generations, *population, *workers, *seed)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	mode, err := tuning.ParseScoreMode(*score)
	if err != nil {
		log.Fatalf("Invalid -score: %v", err)
	}
	ids, err := parseIDs(*targets)
	if err != nil {
		log.Fatalf("Invalid -targets: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, err = run(ctx, fsutil.OSFileSystem{}, options{
		Config:          cfg,
		Name:            *name,
		RecordingPath:   *recordingPath,
		GroundTruthPath: *groundTruthPath,
		Score:           mode,
		TargetIDs:       ids,
		DBPath:          *dbPath,
		SeedRun:         *seedRun,
		SeedConfig:      *seedConfig,
		CSVDir:          *csvDir,
		PlotPath:        *plotPath,
		HTMLPath:        *htmlPath,
		Listen:          *listen,
	})
	if err != nil {
		stop()
		log.Printf("tuning failed: %v", err)
		os.Exit(1)
	}
}
