package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds filter noise levels, replay timing and genetic
// algorithm settings. All fields are optional; the Get* accessors supply
// defaults so partial configs are safe.
type TuningConfig struct {
	// 3D marker filter
	PositionXYProcessNoise *float64 `json:"position_xy_process_noise,omitempty"`
	PositionZProcessNoise  *float64 `json:"position_z_process_noise,omitempty"`
	VelocityXYProcessNoise *float64 `json:"velocity_xy_process_noise,omitempty"`
	VelocityZProcessNoise  *float64 `json:"velocity_z_process_noise,omitempty"`
	MeasurementXYNoise     *float64 `json:"measurement_xy_noise,omitempty"`
	MeasurementZNoise      *float64 `json:"measurement_z_noise,omitempty"`
	NotFoundTimeout        *int     `json:"not_found_timeout,omitempty"`

	// 1D angle filter
	AngleProcessNoise         *float64 `json:"angle_process_noise,omitempty"`
	AngleVelocityProcessNoise *float64 `json:"angle_velocity_process_noise,omitempty"`
	AngleMeasurementNoise     *float64 `json:"angle_measurement_noise,omitempty"`
	AngleNotFoundTimeout      *int     `json:"angle_not_found_timeout,omitempty"`

	// Replay
	FramesPerSecond    *float64 `json:"frames_per_second,omitempty"`
	ReferenceMarkerIDs []int    `json:"reference_marker_ids,omitempty"`
	TargetMarkerIDs    []int    `json:"target_marker_ids,omitempty"`

	// Genetic algorithm
	PopulationSize          *int     `json:"population_size,omitempty"`
	ElitePortion            *float64 `json:"elite_portion,omitempty"`
	RankSelectionMultiplier *float64 `json:"rank_selection_multiplier,omitempty"`
	Generations             *int     `json:"generations,omitempty"`
	TargetFitness           *float64 `json:"target_fitness,omitempty"`
	Workers                 *int     `json:"workers,omitempty"`
	RandomSeed              *int64   `json:"random_seed,omitempty"`
	InitMin                 *float64 `json:"init_min,omitempty"`
	InitMax                 *float64 `json:"init_max,omitempty"`
	ClipMin                 *float64 `json:"clip_min,omitempty"`
	ClipMax                 *float64 `json:"clip_max,omitempty"`
	MutationMulProb         *float64 `json:"mutation_mul_prob,omitempty"`
	MutationMulStd          *float64 `json:"mutation_mul_std,omitempty"`
	MutationAddProb         *float64 `json:"mutation_add_prob,omitempty"`
	MutationAddStd          *float64 `json:"mutation_add_std,omitempty"`
	CrossoverMin            *float64 `json:"crossover_min,omitempty"`
	CrossoverMax            *float64 `json:"crossover_max,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// Panics if the file cannot be found; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	noises := []struct {
		name string
		v    *float64
	}{
		{"position_xy_process_noise", c.PositionXYProcessNoise},
		{"position_z_process_noise", c.PositionZProcessNoise},
		{"velocity_xy_process_noise", c.VelocityXYProcessNoise},
		{"velocity_z_process_noise", c.VelocityZProcessNoise},
		{"measurement_xy_noise", c.MeasurementXYNoise},
		{"measurement_z_noise", c.MeasurementZNoise},
		{"angle_process_noise", c.AngleProcessNoise},
		{"angle_velocity_process_noise", c.AngleVelocityProcessNoise},
		{"angle_measurement_noise", c.AngleMeasurementNoise},
	}
	for _, n := range noises {
		if n.v != nil && *n.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %g", n.name, *n.v)
		}
	}

	if c.NotFoundTimeout != nil && *c.NotFoundTimeout <= 0 {
		return fmt.Errorf("not_found_timeout must be positive, got %d", *c.NotFoundTimeout)
	}
	if c.AngleNotFoundTimeout != nil && *c.AngleNotFoundTimeout <= 0 {
		return fmt.Errorf("angle_not_found_timeout must be positive, got %d", *c.AngleNotFoundTimeout)
	}
	if c.FramesPerSecond != nil && *c.FramesPerSecond <= 0 {
		return fmt.Errorf("frames_per_second must be positive, got %g", *c.FramesPerSecond)
	}
	if c.PopulationSize != nil && *c.PopulationSize <= 0 {
		return fmt.Errorf("population_size must be positive, got %d", *c.PopulationSize)
	}
	if c.ElitePortion != nil && (*c.ElitePortion < 0 || *c.ElitePortion > 1) {
		return fmt.Errorf("elite_portion must be between 0 and 1, got %g", *c.ElitePortion)
	}
	if c.RankSelectionMultiplier != nil && *c.RankSelectionMultiplier < 1 {
		return fmt.Errorf("rank_selection_multiplier must be at least 1, got %g", *c.RankSelectionMultiplier)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.GetInitMin() > c.GetInitMax() {
		return fmt.Errorf("init_min %g exceeds init_max %g", c.GetInitMin(), c.GetInitMax())
	}
	if c.GetClipMin() > c.GetClipMax() {
		return fmt.Errorf("clip_min %g exceeds clip_max %g", c.GetClipMin(), c.GetClipMax())
	}
	if c.GetCrossoverMin() > c.GetCrossoverMax() {
		return fmt.Errorf("crossover_min %g exceeds crossover_max %g", c.GetCrossoverMin(), c.GetCrossoverMax())
	}
	return nil
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetPositionXYProcessNoise returns the position_xy_process_noise value or the default.
func (c *TuningConfig) GetPositionXYProcessNoise() float64 {
	return getFloat(c.PositionXYProcessNoise, 1e-5)
}

// GetPositionZProcessNoise returns the position_z_process_noise value or the default.
func (c *TuningConfig) GetPositionZProcessNoise() float64 {
	return getFloat(c.PositionZProcessNoise, 1e-8)
}

// GetVelocityXYProcessNoise returns the velocity_xy_process_noise value or the default.
func (c *TuningConfig) GetVelocityXYProcessNoise() float64 {
	return getFloat(c.VelocityXYProcessNoise, 1e-5)
}

// GetVelocityZProcessNoise returns the velocity_z_process_noise value or the default.
func (c *TuningConfig) GetVelocityZProcessNoise() float64 {
	return getFloat(c.VelocityZProcessNoise, 1e-8)
}

// GetMeasurementXYNoise returns the measurement_xy_noise value or the default.
func (c *TuningConfig) GetMeasurementXYNoise() float64 {
	return getFloat(c.MeasurementXYNoise, 1)
}

// GetMeasurementZNoise returns the measurement_z_noise value or the default.
func (c *TuningConfig) GetMeasurementZNoise() float64 {
	return getFloat(c.MeasurementZNoise, 1)
}

// GetNotFoundTimeout returns the number of missed frames before a 3D track is dropped.
func (c *TuningConfig) GetNotFoundTimeout() int {
	return getInt(c.NotFoundTimeout, 300)
}

// GetAngleProcessNoise returns the angle_process_noise value or the default.
func (c *TuningConfig) GetAngleProcessNoise() float64 {
	return getFloat(c.AngleProcessNoise, 1)
}

// GetAngleVelocityProcessNoise returns the angle_velocity_process_noise value or the default.
func (c *TuningConfig) GetAngleVelocityProcessNoise() float64 {
	return getFloat(c.AngleVelocityProcessNoise, 1)
}

// GetAngleMeasurementNoise returns the angle_measurement_noise value or the default.
func (c *TuningConfig) GetAngleMeasurementNoise() float64 {
	return getFloat(c.AngleMeasurementNoise, 1)
}

// GetAngleNotFoundTimeout returns the number of missed frames before an angle track is dropped.
func (c *TuningConfig) GetAngleNotFoundTimeout() int {
	return getInt(c.AngleNotFoundTimeout, 90)
}

// GetFramesPerSecond returns the replay frame rate or the default of 30.
func (c *TuningConfig) GetFramesPerSecond() float64 {
	return getFloat(c.FramesPerSecond, 30)
}

// GetReferenceMarkerIDs returns the ids of the stationary reference markers.
func (c *TuningConfig) GetReferenceMarkerIDs() []int {
	if len(c.ReferenceMarkerIDs) == 0 {
		return []int{1, 2, 3, 4}
	}
	return append([]int(nil), c.ReferenceMarkerIDs...)
}

// GetTargetMarkerIDs returns the ids scored during tuning.
func (c *TuningConfig) GetTargetMarkerIDs() []int {
	if len(c.TargetMarkerIDs) == 0 {
		return []int{45}
	}
	return append([]int(nil), c.TargetMarkerIDs...)
}

func (c *TuningConfig) GetPopulationSize() int { return getInt(c.PopulationSize, 200) }

func (c *TuningConfig) GetElitePortion() float64 { return getFloat(c.ElitePortion, 0.02) }

func (c *TuningConfig) GetRankSelectionMultiplier() float64 {
	return getFloat(c.RankSelectionMultiplier, 16)
}

func (c *TuningConfig) GetGenerations() int { return getInt(c.Generations, 200) }

// GetTargetFitness returns the fitness at which tuning stops early. Zero
// disables the early stop.
func (c *TuningConfig) GetTargetFitness() float64 { return getFloat(c.TargetFitness, 0) }

// GetWorkers returns the evaluation worker count. Zero means one per CPU.
func (c *TuningConfig) GetWorkers() int { return getInt(c.Workers, 0) }

// GetRandomSeed returns the seed for the genetic algorithm random source.
func (c *TuningConfig) GetRandomSeed() int64 {
	if c.RandomSeed == nil {
		return 1
	}
	return *c.RandomSeed
}

func (c *TuningConfig) GetInitMin() float64 { return getFloat(c.InitMin, 0) }
func (c *TuningConfig) GetInitMax() float64 { return getFloat(c.InitMax, 10) }
func (c *TuningConfig) GetClipMin() float64 { return getFloat(c.ClipMin, 1e-10) }
func (c *TuningConfig) GetClipMax() float64 { return getFloat(c.ClipMax, 1e5) }

func (c *TuningConfig) GetMutationMulProb() float64 { return getFloat(c.MutationMulProb, 0.33) }
func (c *TuningConfig) GetMutationMulStd() float64  { return getFloat(c.MutationMulStd, 1.2) }
func (c *TuningConfig) GetMutationAddProb() float64 { return getFloat(c.MutationAddProb, 0) }
func (c *TuningConfig) GetMutationAddStd() float64  { return getFloat(c.MutationAddStd, 0) }
func (c *TuningConfig) GetCrossoverMin() float64    { return getFloat(c.CrossoverMin, 0) }
func (c *TuningConfig) GetCrossoverMax() float64    { return getFloat(c.CrossoverMax, 0.5) }

// DefaultTuningConfig returns a config with every field populated from the
// accessor defaults.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		PositionXYProcessNoise:    ptrFloat64(c.GetPositionXYProcessNoise()),
		PositionZProcessNoise:     ptrFloat64(c.GetPositionZProcessNoise()),
		VelocityXYProcessNoise:    ptrFloat64(c.GetVelocityXYProcessNoise()),
		VelocityZProcessNoise:     ptrFloat64(c.GetVelocityZProcessNoise()),
		MeasurementXYNoise:        ptrFloat64(c.GetMeasurementXYNoise()),
		MeasurementZNoise:         ptrFloat64(c.GetMeasurementZNoise()),
		NotFoundTimeout:           ptrInt(c.GetNotFoundTimeout()),
		AngleProcessNoise:         ptrFloat64(c.GetAngleProcessNoise()),
		AngleVelocityProcessNoise: ptrFloat64(c.GetAngleVelocityProcessNoise()),
		AngleMeasurementNoise:     ptrFloat64(c.GetAngleMeasurementNoise()),
		AngleNotFoundTimeout:      ptrInt(c.GetAngleNotFoundTimeout()),
		FramesPerSecond:           ptrFloat64(c.GetFramesPerSecond()),
		ReferenceMarkerIDs:        c.GetReferenceMarkerIDs(),
		TargetMarkerIDs:           c.GetTargetMarkerIDs(),
		PopulationSize:            ptrInt(c.GetPopulationSize()),
		ElitePortion:              ptrFloat64(c.GetElitePortion()),
		RankSelectionMultiplier:   ptrFloat64(c.GetRankSelectionMultiplier()),
		Generations:               ptrInt(c.GetGenerations()),
		TargetFitness:             ptrFloat64(c.GetTargetFitness()),
		Workers:                   ptrInt(c.GetWorkers()),
		RandomSeed:                ptrInt64(c.GetRandomSeed()),
		InitMin:                   ptrFloat64(c.GetInitMin()),
		InitMax:                   ptrFloat64(c.GetInitMax()),
		ClipMin:                   ptrFloat64(c.GetClipMin()),
		ClipMax:                   ptrFloat64(c.GetClipMax()),
		MutationMulProb:           ptrFloat64(c.GetMutationMulProb()),
		MutationMulStd:            ptrFloat64(c.GetMutationMulStd()),
		MutationAddProb:           ptrFloat64(c.GetMutationAddProb()),
		MutationAddStd:            ptrFloat64(c.GetMutationAddStd()),
		CrossoverMin:              ptrFloat64(c.GetCrossoverMin()),
		CrossoverMax:              ptrFloat64(c.GetCrossoverMax()),
	}
}
