package tuning

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/genetic"
	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/marker"
	"github.com/banshee-data/marker.tracker/internal/recording"
	"github.com/banshee-data/marker.tracker/internal/trackall"
)

// ScoreMode selects how RecordingEvaluator turns a replay into a fitness.
type ScoreMode int

const (
	// ScoreStationary sums, over the target ids, the squared deviation of
	// every corrected position from that id's mean corrected position.
	ScoreStationary ScoreMode = iota
	// ScoreGroundTruth averages the distance between corrected positions
	// and a known trajectory.
	ScoreGroundTruth
)

func (m ScoreMode) String() string {
	switch m {
	case ScoreStationary:
		return "stationary"
	case ScoreGroundTruth:
		return "ground-truth"
	default:
		return fmt.Sprintf("ScoreMode(%d)", int(m))
	}
}

// ParseScoreMode parses the String form of a ScoreMode.
func ParseScoreMode(s string) (ScoreMode, error) {
	switch s {
	case "stationary", "":
		return ScoreStationary, nil
	case "ground-truth":
		return ScoreGroundTruth, nil
	default:
		return 0, fmt.Errorf("unknown score mode %q", s)
	}
}

// ReplayEntry is one frame of one id in a replay.
type ReplayEntry struct {
	HasMarker bool
	Measured  r3.Vector
	// Predicted is set when the tracker held a position after predict.
	Predicted bool
	Predict   r3.Vector
	// Update is the corrected position; only meaningful with HasMarker.
	Update r3.Vector
}

// RecordingOptions configures a RecordingEvaluator.
type RecordingOptions struct {
	// TargetIDs are the ids scored. They must occur in the recording.
	TargetIDs       []int
	Mode            ScoreMode
	NotFoundTimeout int
	// GroundTruth holds, per target id, the true position for every frame.
	// Required for ScoreGroundTruth.
	GroundTruth map[int][]r3.Vector
}

// RecordingEvaluator scores a 6 gene genome by replaying a recording through
// one Tracker3D per id. It never modifies the recording and is safe for
// concurrent use.
type RecordingEvaluator struct {
	frames       []*marker.Frame
	msecPerFrame float64
	ids          []int
	opts         RecordingOptions
}

// NewRecordingEvaluator validates opts against rec.
func NewRecordingEvaluator(rec *recording.Recording, opts RecordingOptions) (*RecordingEvaluator, error) {
	if rec == nil || len(rec.Frames) == 0 {
		return nil, recording.ErrNoFrames
	}
	if len(opts.TargetIDs) == 0 {
		return nil, errors.New("at least one target id is required")
	}
	ids := trackall.AllMarkerIDs(rec.Frames, false)
	known := make(map[int]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	for _, id := range opts.TargetIDs {
		if !known[id] {
			return nil, fmt.Errorf("target id %d does not occur in the recording", id)
		}
		if opts.Mode == ScoreGroundTruth {
			if got := len(opts.GroundTruth[id]); got != len(rec.Frames) {
				return nil, fmt.Errorf("ground truth for id %d has %d frames, want %d", id, got, len(rec.Frames))
			}
		}
	}
	return &RecordingEvaluator{
		frames:       rec.Frames,
		msecPerFrame: rec.MsecsPerFrame,
		ids:          ids,
		opts:         opts,
	}, nil
}

// IDs returns every id in the recording.
func (e *RecordingEvaluator) IDs() []int { return e.ids }

// Replay runs the recording with the parameters encoded in genome. Each id
// gets one entry per frame.
func (e *RecordingEvaluator) Replay(genome genetic.Genome) (map[int][]ReplayEntry, error) {
	params, err := ParamsFromGenome(genome, e.opts.NotFoundTimeout)
	if err != nil {
		return nil, err
	}
	trackers := make(map[int]*kalman.Tracker3D, len(e.ids))
	log := make(map[int][]ReplayEntry, len(e.ids))
	for _, id := range e.ids {
		trackers[id] = kalman.NewTracker3D(params)
		log[id] = make([]ReplayEntry, 0, len(e.frames))
	}

	for _, frame := range e.frames {
		found := make(map[int]bool, len(frame.Markers))
		for _, d := range frame.Markers {
			if found[d.ID] {
				continue
			}
			found[d.ID] = true
			tr := trackers[d.ID]
			tr.Predict(e.msecPerFrame)
			entry := ReplayEntry{HasMarker: true, Measured: d.Position, Predicted: tr.HasPosition(), Predict: tr.Position()}
			tr.Update(d.Position, d.Rotation)
			entry.Update = tr.Position()
			log[d.ID] = append(log[d.ID], entry)
		}
		for _, id := range e.ids {
			if found[id] {
				continue
			}
			tr := trackers[id]
			tr.Predict(e.msecPerFrame)
			tr.UpdateNotFound()
			log[id] = append(log[id], ReplayEntry{Predicted: tr.HasPosition(), Predict: tr.Position()})
		}
	}
	return log, nil
}

// Evaluate implements genetic.Evaluator.
func (e *RecordingEvaluator) Evaluate(genome genetic.Genome) (float64, error) {
	log, err := e.Replay(genome)
	if err != nil {
		return 0, err
	}
	switch e.opts.Mode {
	case ScoreGroundTruth:
		return e.groundTruthError(log), nil
	default:
		return stationaryError(log, e.opts.TargetIDs), nil
	}
}

func stationaryError(log map[int][]ReplayEntry, targets []int) float64 {
	total := 0.0
	for _, id := range targets {
		var sum r3.Vector
		n := 0
		for _, en := range log[id] {
			if en.HasMarker {
				sum = sum.Add(en.Update)
				n++
			}
		}
		if n == 0 {
			continue
		}
		mean := sum.Mul(1 / float64(n))
		for _, en := range log[id] {
			if en.HasMarker {
				d := en.Update.Sub(mean)
				total += d.Dot(d)
			}
		}
	}
	return total
}

func (e *RecordingEvaluator) groundTruthError(log map[int][]ReplayEntry) float64 {
	total := 0.0
	n := 0
	for _, id := range e.opts.TargetIDs {
		truth := e.opts.GroundTruth[id]
		for i, en := range log[id] {
			if en.HasMarker {
				total += en.Update.Distance(truth[i])
				n++
			}
		}
	}
	if n == 0 {
		return math.Inf(1)
	}
	return total / float64(n)
}

// ReplayHeader is the column header of the replay CSV.
var ReplayHeader = []string{
	"frame",
	"marker_x", "marker_y", "marker_z",
	"predict_x", "predict_y", "predict_z",
	"update_x", "update_y", "update_z",
	"predict_dist", "update_dist",
}

// WriteReplayCSV writes the replay of genome: for every id an "id,<id>"
// line, the header, one row per frame and a blank line.
func (e *RecordingEvaluator) WriteReplayCSV(w io.Writer, genome genetic.Genome) error {
	log, err := e.Replay(genome)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	for _, id := range e.ids {
		if err := cw.Write([]string{"id", strconv.Itoa(id)}); err != nil {
			return err
		}
		if err := cw.Write(ReplayHeader); err != nil {
			return err
		}
		for i, en := range log[id] {
			row := []string{strconv.Itoa(i)}
			row = appendVector(row, en.Measured, en.HasMarker)
			row = appendVector(row, en.Predict, en.Predicted)
			row = appendVector(row, en.Update, en.HasMarker)
			row = append(row,
				optional(en.HasMarker && en.Predicted, en.Measured.Distance(en.Predict)),
				optional(en.HasMarker, en.Measured.Distance(en.Update)),
			)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write frame %d of id %d: %w", i, id, err)
			}
		}
		if err := cw.Write(nil); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReplayCSVFile writes the replay CSV of genome to path.
func (e *RecordingEvaluator) WriteReplayCSVFile(fsys fsutil.FileSystem, path string, genome genetic.Genome) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return e.WriteReplayCSV(f, genome)
}

func appendVector(row []string, v r3.Vector, present bool) []string {
	return append(row, optional(present, v.X), optional(present, v.Y), optional(present, v.Z))
}

func optional(present bool, v float64) string {
	if !present {
		return ""
	}
	return trackall.FormatFloat(v)
}
