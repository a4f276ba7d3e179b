package tuning

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/genetic"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
	"github.com/banshee-data/marker.tracker/internal/trackall"
)

// GenerationStore persists the best individual of each generation.
type GenerationStore interface {
	RecordGeneration(ctx context.Context, runID string, generation int, fitness float64, genome []float64) error
}

// ReplayWriter writes a diagnostic replay of a genome to a file.
type ReplayWriter interface {
	WriteReplayCSVFile(fsys fsutil.FileSystem, path string, genome genetic.Genome) error
}

// Progress is a snapshot of a running tuning job.
type Progress struct {
	RunID       string    `json:"run_id,omitempty"`
	Generation  int       `json:"generation"`
	Generations int       `json:"generations"`
	BestFitness float64   `json:"best_fitness"`
	BestGenome  []float64 `json:"best_genome"`
	// History holds the best fitness of every evaluated generation.
	History   []float64 `json:"history"`
	StartedAt time.Time `json:"started_at"`
	ElapsedS  float64   `json:"elapsed_s"`
	Done      bool      `json:"done"`
	Error     string    `json:"error,omitempty"`
}

// Runner drives a GeneticAlgorithm for a number of generations.
type Runner struct {
	GA          *genetic.GeneticAlgorithm
	Generations int
	// TargetFitness stops the run once the best fitness drops below it.
	// Zero disables the early stop.
	TargetFitness float64

	RunID string
	Store GenerationStore

	// When Replay and FS are set, the best genome of every generation is
	// replayed to CSVDir/gen<NNN>.csv.
	Replay ReplayWriter
	FS     fsutil.FileSystem
	CSVDir string

	Clock timeutil.Clock

	mu        sync.Mutex
	progress  Progress
	observers []func(Progress)
}

// NewRunner returns a runner for generations generations using the real
// clock.
func NewRunner(ga *genetic.GeneticAlgorithm, generations int) *Runner {
	return &Runner{GA: ga, Generations: generations, Clock: timeutil.RealClock{}}
}

// OnProgress registers fn to be called after every generation and once when
// the run ends. Observers run on the Run goroutine.
func (r *Runner) OnProgress(fn func(Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Progress returns a copy of the latest snapshot. It is safe to call from
// other goroutines while Run is active.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyProgress(r.progress)
}

func copyProgress(p Progress) Progress {
	p.BestGenome = append([]float64(nil), p.BestGenome...)
	p.History = append([]float64(nil), p.History...)
	return p
}

// Run evaluates and breeds generations until Generations is reached, the
// target fitness is met or ctx is cancelled. It returns the best individual
// of the last evaluated generation.
func (r *Runner) Run(ctx context.Context) (best genetic.Scored, err error) {
	if r.GA == nil {
		return genetic.Scored{}, errors.New("runner has no genetic algorithm")
	}
	if r.Generations <= 0 {
		return genetic.Scored{}, fmt.Errorf("generations must be positive, got %d", r.Generations)
	}
	if r.Clock == nil {
		r.Clock = timeutil.RealClock{}
	}
	if r.FS != nil && r.Replay != nil && r.CSVDir != "" {
		if err := r.FS.MkdirAll(r.CSVDir, 0o755); err != nil {
			return genetic.Scored{}, fmt.Errorf("failed to create %s: %w", r.CSVDir, err)
		}
	}

	start := r.Clock.Now()
	r.update(func(p *Progress) {
		*p = Progress{RunID: r.RunID, Generations: r.Generations, StartedAt: start}
	})
	defer func() {
		r.update(func(p *Progress) {
			p.Done = true
			p.ElapsedS = r.Clock.Since(start).Seconds()
			if err != nil {
				p.Error = err.Error()
			}
		})
	}()

	for gen := 0; gen < r.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return best, err
		}
		scored, err := r.GA.EvaluateAll(ctx)
		if err != nil {
			return best, fmt.Errorf("generation %d: %w", gen, err)
		}
		best = scored
		monitoring.Logf("Gen: %d, Error: %s, Genome: %s", gen, trackall.FormatFloat(best.Fitness), FormatGenome(best.Genome))

		if err := r.afterGeneration(ctx, gen, best); err != nil {
			return best, err
		}
		r.update(func(p *Progress) {
			p.Generation = gen
			p.BestFitness = best.Fitness
			p.BestGenome = append([]float64(nil), best.Genome...)
			p.History = append(p.History, best.Fitness)
			p.ElapsedS = r.Clock.Since(start).Seconds()
		})

		if r.TargetFitness > 0 && best.Fitness < r.TargetFitness {
			break
		}
		if gen < r.Generations-1 {
			if err := r.GA.NextGeneration(); err != nil {
				return best, err
			}
		}
	}
	return best, nil
}

func (r *Runner) afterGeneration(ctx context.Context, gen int, best genetic.Scored) error {
	if r.Store != nil {
		if err := r.Store.RecordGeneration(ctx, r.RunID, gen, best.Fitness, best.Genome); err != nil {
			return fmt.Errorf("failed to record generation %d: %w", gen, err)
		}
	}
	if r.Replay != nil && r.FS != nil {
		path := filepath.Join(r.CSVDir, fmt.Sprintf("gen%03d.csv", gen))
		if err := r.Replay.WriteReplayCSVFile(r.FS, path, best.Genome); err != nil {
			return fmt.Errorf("failed to write replay for generation %d: %w", gen, err)
		}
	}
	return nil
}

func (r *Runner) update(fn func(*Progress)) {
	r.mu.Lock()
	fn(&r.progress)
	snapshot := copyProgress(r.progress)
	observers := append(([]func(Progress))(nil), r.observers...)
	r.mu.Unlock()

	for _, o := range observers {
		o(snapshot)
	}
}

// FormatGenome renders g as "[a, b, c]".
func FormatGenome(g []float64) string {
	parts := make([]string, len(g))
	for i, v := range g {
		parts[i] = trackall.FormatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
