package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/marker.tracker/internal/timeutil"
)

// Run statuses.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("tuning run not found")

// TuningRun describes one genetic algorithm run.
type TuningRun struct {
	ID             string          `json:"run_id"`
	Name           string          `json:"name"`
	Evaluator      string          `json:"evaluator"`
	GenomeSize     int             `json:"genome_size"`
	PopulationSize int             `json:"population_size"`
	Config         json.RawMessage `json:"config,omitempty"`
	Status         string          `json:"status"`
	BestFitness    *float64        `json:"best_fitness,omitempty"`
	BestGenome     []float64       `json:"best_genome,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	FinishedAt     *time.Time      `json:"finished_at,omitempty"`
}

// TuningGeneration is the best individual of one generation.
type TuningGeneration struct {
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	Fitness    float64   `json:"best_fitness"`
	Genome     []float64 `json:"genome"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TuningStore persists tuning runs and their per-generation results.
type TuningStore struct {
	db    *DB
	clock timeutil.Clock
}

// NewTuningStore wraps db. A nil clock uses the real clock.
func NewTuningStore(db *DB, clock timeutil.Clock) *TuningStore {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TuningStore{db: db, clock: clock}
}

// CreateRun inserts run with status running. An empty ID is replaced with a
// new UUID; CreatedAt is set from the store clock.
func (s *TuningStore) CreateRun(ctx context.Context, run *TuningRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.GenomeSize <= 0 {
		return fmt.Errorf("genome size must be positive, got %d", run.GenomeSize)
	}
	if len(run.Config) == 0 {
		run.Config = json.RawMessage("{}")
	}
	run.Status = RunStatusRunning
	run.CreatedAt = s.clock.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tuning_runs (run_id, name, evaluator, genome_size, population_size, config_json, status, created_unix_nanos)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Name, run.Evaluator, run.GenomeSize, run.PopulationSize, string(run.Config), run.Status, run.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to create tuning run: %w", err)
	}
	return nil
}

// RecordGeneration stores the best individual of a generation. Recording the
// same generation twice replaces the earlier row.
func (s *TuningStore) RecordGeneration(ctx context.Context, runID string, generation int, fitness float64, genome []float64) error {
	data, err := json.Marshal(genome)
	if err != nil {
		return fmt.Errorf("failed to encode genome: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO tuning_generations (run_id, generation, best_fitness, genome_json, recorded_unix_nanos)
		VALUES (?, ?, ?, ?, ?)`,
		runID, generation, fitness, string(data), s.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record generation %d of run %s: %w", generation, runID, err)
	}
	return nil
}

// FinishRun stores the final best individual. A non-nil runErr marks the run
// failed.
func (s *TuningStore) FinishRun(ctx context.Context, runID string, fitness float64, genome []float64, runErr error) error {
	data, err := json.Marshal(genome)
	if err != nil {
		return fmt.Errorf("failed to encode genome: %w", err)
	}
	status, msg := RunStatusFinished, sql.NullString{}
	if runErr != nil {
		status = RunStatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tuning_runs
		SET status = ?, best_fitness = ?, best_genome_json = ?, error = ?, finished_unix_nanos = ?
		WHERE run_id = ?`,
		status, fitness, string(data), msg, s.clock.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRunNotFound
	}
	return nil
}

const runColumns = `run_id, name, evaluator, genome_size, population_size, config_json, status,
	best_fitness, best_genome_json, error, created_unix_nanos, finished_unix_nanos`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*TuningRun, error) {
	var (
		run      TuningRun
		config   string
		fitness  sql.NullFloat64
		genome   sql.NullString
		errMsg   sql.NullString
		created  int64
		finished sql.NullInt64
	)
	if err := row.Scan(&run.ID, &run.Name, &run.Evaluator, &run.GenomeSize, &run.PopulationSize, &config,
		&run.Status, &fitness, &genome, &errMsg, &created, &finished); err != nil {
		return nil, err
	}
	run.Config = json.RawMessage(config)
	if fitness.Valid {
		f := fitness.Float64
		run.BestFitness = &f
	}
	if genome.Valid {
		if err := json.Unmarshal([]byte(genome.String), &run.BestGenome); err != nil {
			return nil, fmt.Errorf("failed to decode genome of run %s: %w", run.ID, err)
		}
	}
	run.Error = errMsg.String
	run.CreatedAt = time.Unix(0, created).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return &run, nil
}

// GetRun returns the run with the given id.
func (s *TuningStore) GetRun(ctx context.Context, runID string) (*TuningRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM tuning_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first. limit ≤ 0 returns all.
func (s *TuningStore) ListRuns(ctx context.Context, limit int) ([]TuningRun, error) {
	query := `SELECT ` + runColumns + ` FROM tuning_runs ORDER BY created_unix_nanos DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []TuningRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListGenerations returns the recorded generations of a run in order.
func (s *TuningStore) ListGenerations(ctx context.Context, runID string) ([]TuningGeneration, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT generation, best_fitness, genome_json, recorded_unix_nanos
		FROM tuning_generations WHERE run_id = ? ORDER BY generation`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations of run %s: %w", runID, err)
	}
	defer rows.Close()

	var gens []TuningGeneration
	for rows.Next() {
		g := TuningGeneration{RunID: runID}
		var genome string
		var recorded int64
		if err := rows.Scan(&g.Generation, &g.Fitness, &genome, &recorded); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(genome), &g.Genome); err != nil {
			return nil, fmt.Errorf("failed to decode genome of generation %d: %w", g.Generation, err)
		}
		g.RecordedAt = time.Unix(0, recorded).UTC()
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// BestGenome returns the lowest fitness genome recorded for a run.
func (s *TuningStore) BestGenome(ctx context.Context, runID string) ([]float64, float64, error) {
	var genome string
	var fitness float64
	err := s.db.QueryRowContext(ctx, `
		SELECT genome_json, best_fitness FROM tuning_generations
		WHERE run_id = ? ORDER BY best_fitness ASC, generation ASC LIMIT 1`, runID).Scan(&genome, &fitness)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrRunNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get best genome of run %s: %w", runID, err)
	}
	var out []float64
	if err := json.Unmarshal([]byte(genome), &out); err != nil {
		return nil, 0, fmt.Errorf("failed to decode genome: %w", err)
	}
	return out, fitness, nil
}
