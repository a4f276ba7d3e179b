package genetic

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
)

// ErrNotEvaluated is returned when a new generation is requested before the
// current population has been scored.
var ErrNotEvaluated = errors.New("population has not been evaluated")

// Evaluator scores a genome. Lower is better. Implementations must be safe
// for concurrent use because EvaluateAll fans out over a worker pool.
type Evaluator interface {
	Evaluate(genome Genome) (float64, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(genome Genome) (float64, error)

func (f EvaluatorFunc) Evaluate(genome Genome) (float64, error) { return f(genome) }

// Scored pairs a genome with its fitness.
type Scored struct {
	Genome  Genome  `json:"genome"`
	Fitness float64 `json:"fitness"`
}

// Config sizes a GeneticAlgorithm.
type Config struct {
	PopulationSize int
	// ElitePortion of the sorted population is copied unchanged into the
	// next generation.
	ElitePortion float64
	// RankSelectionMultiplier is how many times more likely the best
	// individual is to be picked as a parent than the worst.
	RankSelectionMultiplier float64
	// Workers bounds concurrent evaluations. Zero means GOMAXPROCS.
	Workers int
}

// Validate checks population sizing.
func (c Config) Validate() error {
	if c.PopulationSize <= 0 {
		return fmt.Errorf("population size must be positive, got %d", c.PopulationSize)
	}
	if c.ElitePortion < 0 || c.ElitePortion > 1 {
		return fmt.Errorf("elite portion must be within [0, 1], got %g", c.ElitePortion)
	}
	if c.RankSelectionMultiplier < 1 {
		return fmt.Errorf("rank selection multiplier must be at least 1, got %g", c.RankSelectionMultiplier)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// GeneticAlgorithm evolves a fixed size population of genomes produced by a
// GenomeLab.
type GeneticAlgorithm struct {
	cfg       Config
	lab       *GenomeLab
	evaluator Evaluator
	rng       *Random

	population []Scored
	evaluated  bool
	generation int
}

// New creates an algorithm whose initial population comes from
// lab.Biogenesis, clipped like every later genome.
func New(cfg Config, lab *GenomeLab, evaluator Evaluator, rng *Random) (*GeneticAlgorithm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lab == nil || evaluator == nil || rng == nil {
		return nil, errors.New("lab, evaluator and random source are required")
	}
	ga := &GeneticAlgorithm{
		cfg:        cfg,
		lab:        lab,
		evaluator:  evaluator,
		rng:        rng,
		population: make([]Scored, cfg.PopulationSize),
	}
	for i := range ga.population {
		ga.population[i].Genome = lab.Clip(lab.Biogenesis())
	}
	return ga, nil
}

// Seed replaces the first individuals with clipped copies of genomes, for
// example to resume from a stored best. The population must be re-evaluated
// afterwards.
func (ga *GeneticAlgorithm) Seed(genomes []Genome) error {
	n := min(len(genomes), len(ga.population))
	for i := 0; i < n; i++ {
		if len(genomes[i]) != ga.lab.GenomeSize() {
			return fmt.Errorf("seed genome %d has %d genes, want %d", i, len(genomes[i]), ga.lab.GenomeSize())
		}
	}
	for i := 0; i < n; i++ {
		ga.population[i] = Scored{Genome: ga.lab.Clip(genomes[i].Clone())}
	}
	ga.evaluated = false
	return nil
}

// Generation returns how many times NextGeneration has succeeded.
func (ga *GeneticAlgorithm) Generation() int { return ga.generation }

// Population returns a copy of the current population. After EvaluateAll it
// is sorted best first.
func (ga *GeneticAlgorithm) Population() []Scored {
	out := make([]Scored, len(ga.population))
	for i, s := range ga.population {
		out[i] = Scored{Genome: s.Genome.Clone(), Fitness: s.Fitness}
	}
	return out
}

// Evaluated reports whether the current population has been scored.
func (ga *GeneticAlgorithm) Evaluated() bool { return ga.evaluated }

// Best returns the best scored individual.
func (ga *GeneticAlgorithm) Best() (Scored, error) {
	if !ga.evaluated {
		return Scored{}, ErrNotEvaluated
	}
	b := ga.population[0]
	return Scored{Genome: b.Genome.Clone(), Fitness: b.Fitness}, nil
}

type evalResult struct {
	idx     int
	fitness float64
	err     error
}

// EvaluateAll scores every genome concurrently, sorts the population
// ascending by fitness and returns the best. Any evaluator error or context
// cancellation aborts the generation and leaves it unevaluated. NaN fitness
// sorts last.
func (ga *GeneticAlgorithm) EvaluateAll(ctx context.Context) (Scored, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	n := len(ga.population)
	workers := ga.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	workers = min(workers, n)

	jobs := make(chan int)
	results := make(chan evalResult, n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- evalResult{idx: idx, err: err}
					continue
				}
				f, err := ga.evaluator.Evaluate(ga.population[idx].Genome)
				results <- evalResult{idx: idx, fitness: f, err: err}
			}
		}()
	}

	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	fitness := make([]float64, n)
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("evaluate genome %d: %w", r.idx, r.err)
			}
			continue
		}
		fitness[r.idx] = r.fitness
	}
	if firstErr != nil {
		ga.evaluated = false
		return Scored{}, firstErr
	}

	for i := range ga.population {
		ga.population[i].Fitness = fitness[i]
	}
	sort.SliceStable(ga.population, func(i, j int) bool {
		return less(ga.population[i].Fitness, ga.population[j].Fitness)
	})
	ga.evaluated = true
	return ga.Best()
}

func less(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

// EliteCount returns how many individuals survive unchanged.
func (ga *GeneticAlgorithm) EliteCount() int {
	n := len(ga.population)
	e := int(math.Ceil(ga.cfg.ElitePortion * float64(n)))
	return max(0, min(e, n))
}

// rouletteWheel returns the cumulative selection weights for a population
// sorted best first: rank i weighs 1 + (mult-1)(n-i-1)/(n-1).
func rouletteWheel(n int, mult float64) []float64 {
	wheel := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		bonus := 0.0
		if n > 1 {
			bonus = (mult - 1) * float64(n-i-1) / float64(n-1)
		}
		total += 1 + bonus
		wheel[i] = total
	}
	return wheel
}

func (ga *GeneticAlgorithm) pick(wheel []float64) Genome {
	r := ga.rng.Uniform(0, wheel[len(wheel)-1])
	i := sort.SearchFloat64s(wheel, r)
	if i >= len(wheel) {
		i = len(wheel) - 1
	}
	return ga.population[i].Genome
}

// NextGeneration keeps the elites and fills the rest of the population with
// clipped, mutated children of roulette-selected parents. Fitness values are
// cleared and the population must be evaluated again.
func (ga *GeneticAlgorithm) NextGeneration() error {
	if !ga.evaluated {
		return ErrNotEvaluated
	}
	n := len(ga.population)
	elites := ga.EliteCount()
	wheel := rouletteWheel(n, ga.cfg.RankSelectionMultiplier)

	next := make([]Scored, n)
	for i := 0; i < elites; i++ {
		next[i] = Scored{Genome: ga.population[i].Genome.Clone()}
	}
	for i := elites; i < n; i++ {
		a, b := ga.pick(wheel), ga.pick(wheel)
		next[i] = Scored{Genome: ga.lab.Clip(ga.lab.Mutate(ga.lab.Reproduce(a, b)))}
	}

	ga.population = next
	ga.evaluated = false
	ga.generation++
	return nil
}

// Genomes returns copies of the current genomes in population order.
func (ga *GeneticAlgorithm) Genomes() []Genome {
	out := make([]Genome, len(ga.population))
	for i, s := range ga.population {
		out[i] = s.Genome.Clone()
	}
	return out
}
