// Package genetic implements a generational genetic algorithm over real
// valued genomes with rank based roulette selection and elitism. Lower
// fitness is better.
package genetic

import (
	"errors"
	"fmt"
	"math"
)

// Genome is a fixed length vector of genes.
type Genome []float64

// Clone returns a copy of g.
func (g Genome) Clone() Genome {
	return append(Genome(nil), g...)
}

// DefaultPrecisionBits is the number of explicit mantissa bits Clip keeps.
const DefaultPrecisionBits = 8

// LabConfig holds the gene ranges and operator rates of a GenomeLab.
type LabConfig struct {
	GenomeSize int

	InitMin, InitMax float64
	ClipMin, ClipMax float64

	// With probability MutationMulProb a gene is scaled by 1+g for
	// g ~ N(0, MutationMulStd) when g ≥ 0, or divided by 1−g otherwise.
	MutationMulProb float64
	MutationMulStd  float64
	// With probability MutationAddProb a gene gets N(0, MutationAddStd) added.
	MutationAddProb float64
	MutationAddStd  float64

	// Reproduce draws one crossover amount a from [CrossoverMin, CrossoverMax]
	// per child and takes each gene from the second parent with probability a.
	CrossoverMin float64
	CrossoverMax float64

	// PrecisionBits is the number of explicit mantissa bits Clip keeps.
	// Zero means DefaultPrecisionBits; 52 or more disables masking.
	PrecisionBits int
}

// DefaultLabConfig returns a config with the usual operator rates for a
// genome of the given size.
func DefaultLabConfig(size int) LabConfig {
	return LabConfig{
		GenomeSize:      size,
		InitMin:         0,
		InitMax:         1,
		ClipMin:         0,
		ClipMax:         math.MaxFloat64,
		MutationMulProb: 0.33,
		MutationMulStd:  1.2,
		CrossoverMin:    0,
		CrossoverMax:    0.5,
	}
}

// Validate checks sizes and ranges.
func (c LabConfig) Validate() error {
	if c.GenomeSize <= 0 {
		return fmt.Errorf("genome size must be positive, got %d", c.GenomeSize)
	}
	if c.InitMin > c.InitMax {
		return fmt.Errorf("init range inverted: [%g, %g]", c.InitMin, c.InitMax)
	}
	if c.ClipMin > c.ClipMax {
		return fmt.Errorf("clip range inverted: [%g, %g]", c.ClipMin, c.ClipMax)
	}
	if c.CrossoverMin > c.CrossoverMax {
		return fmt.Errorf("crossover range inverted: [%g, %g]", c.CrossoverMin, c.CrossoverMax)
	}
	if c.MutationMulStd < 0 || c.MutationAddStd < 0 {
		return errors.New("mutation standard deviations must be non-negative")
	}
	return nil
}

// GenomeLab creates, mutates, recombines and clips genomes.
type GenomeLab struct {
	cfg  LabConfig
	rng  *Random
	mask uint64
}

// NewGenomeLab validates cfg and returns a lab drawing from rng.
func NewGenomeLab(cfg LabConfig, rng *Random) (*GenomeLab, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("random source is required")
	}
	bits := cfg.PrecisionBits
	if bits <= 0 {
		bits = DefaultPrecisionBits
	}
	mask := ^uint64(0)
	if bits < 52 {
		mask <<= uint(52 - bits)
	}
	return &GenomeLab{cfg: cfg, rng: rng, mask: mask}, nil
}

// Config returns the lab configuration.
func (l *GenomeLab) Config() LabConfig { return l.cfg }

// GenomeSize returns the number of genes per genome.
func (l *GenomeLab) GenomeSize() int { return l.cfg.GenomeSize }

// Biogenesis returns a genome with every gene uniform in [InitMin, InitMax].
func (l *GenomeLab) Biogenesis() Genome {
	g := make(Genome, l.cfg.GenomeSize)
	for i := range g {
		g[i] = l.rng.Uniform(l.cfg.InitMin, l.cfg.InitMax)
	}
	return g
}

// Mutate perturbs g in place and returns it.
func (l *GenomeLab) Mutate(g Genome) Genome {
	for i := range g {
		if l.rng.Bool(l.cfg.MutationMulProb) {
			v := l.rng.Gaussian(0, l.cfg.MutationMulStd)
			if v >= 0 {
				g[i] *= 1 + v
			} else {
				g[i] /= 1 - v
			}
		}
		if l.rng.Bool(l.cfg.MutationAddProb) {
			g[i] += l.rng.Gaussian(0, l.cfg.MutationAddStd)
		}
	}
	return g
}

// Reproduce returns a child of a and b. One crossover amount is drawn per
// child and also serves as the per-gene probability of taking b's gene, so
// a zero amount yields a copy of a.
func (l *GenomeLab) Reproduce(a, b Genome) Genome {
	amount := l.rng.Uniform(l.cfg.CrossoverMin, l.cfg.CrossoverMax)
	child := make(Genome, l.cfg.GenomeSize)
	for i := range child {
		if amount > 0 && l.rng.Bool(amount) {
			child[i] = b[i]
		} else {
			child[i] = a[i]
		}
	}
	return child
}

// Clip truncates every gene's mantissa to the configured precision and then
// clamps it to [ClipMin, ClipMax]. g is modified in place and returned.
func (l *GenomeLab) Clip(g Genome) Genome {
	for i, v := range g {
		if math.IsNaN(v) {
			v = l.cfg.ClipMin
		}
		v = math.Float64frombits(math.Float64bits(v) & l.mask)
		if v < l.cfg.ClipMin {
			v = l.cfg.ClipMin
		} else if v > l.cfg.ClipMax {
			v = l.cfg.ClipMax
		}
		g[i] = v
	}
	return g
}
