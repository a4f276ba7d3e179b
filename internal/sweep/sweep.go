// Package sweep replays a recording through a grid of Kalman noise levels
// and summarises the smoothing each combination achieves.
package sweep

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/marker"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/trackall"
)

// DefaultLevels is the noise grid used when none is given: the extremes of
// the useful covariance range.
var DefaultLevels = []float64{1e-8, 1}

// Case is one point of the grid. Each value is used for both the XY and
// the Z component.
type Case struct {
	MeasurementNoise     float64 `json:"measurement_noise"`
	PositionProcessNoise float64 `json:"position_process_noise"`
	VelocityProcessNoise float64 `json:"velocity_process_noise"`
}

// DefaultCases is the full grid over DefaultLevels.
func DefaultCases() []Case {
	return Grid(DefaultLevels, DefaultLevels, DefaultLevels)
}

// Params returns the tracker parameters of c.
func (c Case) Params(notFoundTimeout int) kalman.Params3D {
	return kalman.Params3D{
		PositionXYProcessNoise: c.PositionProcessNoise,
		PositionZProcessNoise:  c.PositionProcessNoise,
		VelocityXYProcessNoise: c.VelocityProcessNoise,
		VelocityZProcessNoise:  c.VelocityProcessNoise,
		MeasurementXYNoise:     c.MeasurementNoise,
		MeasurementZNoise:      c.MeasurementNoise,
		NotFoundTimeout:        notFoundTimeout,
	}
}

// FileName is the per-case CSV name, e.g. "markers1e-08-1-1.csv".
func (c Case) FileName() string {
	return fmt.Sprintf("markers%s-%s-%s.csv", formatLevel(c.MeasurementNoise),
		formatLevel(c.PositionProcessNoise), formatLevel(c.VelocityProcessNoise))
}

func formatLevel(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Grid returns every combination of the three level lists, measurement
// noise varying slowest.
func Grid(measurement, positionProcess, velocityProcess []float64) []Case {
	cases := make([]Case, 0, len(measurement)*len(positionProcess)*len(velocityProcess))
	for _, m := range measurement {
		for _, pp := range positionProcess {
			for _, pv := range velocityProcess {
				cases = append(cases, Case{MeasurementNoise: m, PositionProcessNoise: pp, VelocityProcessNoise: pv})
			}
		}
	}
	return cases
}

// ParseLevels parses a comma-separated list of floats. An empty string
// returns nil.
func ParseLevels(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		if v < 0 {
			return nil, fmt.Errorf("noise level must not be negative, got %g", v)
		}
		out = append(out, v)
	}
	return out, nil
}

// Result is the outcome of one case for one marker id.
type Result struct {
	Case
	ID    int
	Stats trackall.IDStats
}

// Options configures Run.
type Options struct {
	MsecPerFrame    float64
	NotFoundTimeout int
	// When FS is set each case's diagnostic CSV is written to Dir.
	FS  fsutil.FileSystem
	Dir string
}

// Run tracks frames once per case and returns per id statistics in case
// order. The frames' FilteredMarkers hold the output of the last case.
func Run(frames []*marker.Frame, cases []Case, opts Options) ([]Result, error) {
	if opts.MsecPerFrame <= 0 {
		return nil, fmt.Errorf("frame interval must be positive, got %g", opts.MsecPerFrame)
	}
	if opts.FS != nil && opts.Dir != "" {
		if err := opts.FS.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", opts.Dir, err)
		}
	}
	var results []Result
	for i, c := range cases {
		params := c.Params(opts.NotFoundTimeout)
		if err := params.Validate(); err != nil {
			return nil, fmt.Errorf("case %d: %w", i, err)
		}
		monitoring.Logf("=== Combination %d/%d: noiseM=%g, noisePP=%g, noisePV=%g ===",
			i+1, len(cases), c.MeasurementNoise, c.PositionProcessNoise, c.VelocityProcessNoise)

		trackall.TrackAllMarkers(frames, opts.MsecPerFrame, params)
		if opts.FS != nil {
			path := filepath.Join(opts.Dir, c.FileName())
			if err := trackall.WriteCSVFile(opts.FS, path, frames); err != nil {
				return nil, fmt.Errorf("case %d: %w", i, err)
			}
		}

		stats := trackall.Stats(frames)
		for _, id := range trackall.AllMarkerIDs(frames, false) {
			results = append(results, Result{Case: c, ID: id, Stats: stats[id]})
		}
	}
	return results, nil
}

// SummaryHeader is the column header of WriteSummary.
var SummaryHeader = []string{
	"noise_m", "noise_pp", "noise_pv", "id",
	"measured_count", "filtered_count",
	"measured_std_x", "measured_std_y", "measured_std_z",
	"filtered_std_x", "filtered_std_y", "filtered_std_z",
	"smoothing",
}

// WriteSummary writes one CSV row per result. Smoothing is the ratio of
// the measured to the filtered stdev magnitude; it is empty when the
// filtered stdev is zero.
func WriteSummary(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, r := range results {
		s := r.Stats
		smoothing := ""
		if f := s.FilteredStdDev.Norm(); f > 0 && s.HasMeasured() {
			smoothing = trackall.FormatFloat(s.MeasuredStdDev.Norm() / f)
		}
		row := []string{
			formatLevel(r.MeasurementNoise), formatLevel(r.PositionProcessNoise), formatLevel(r.VelocityProcessNoise),
			strconv.Itoa(r.ID),
			strconv.Itoa(s.MeasuredCount), strconv.Itoa(s.FilteredCount),
			trackall.FormatFloat(s.MeasuredStdDev.X), trackall.FormatFloat(s.MeasuredStdDev.Y), trackall.FormatFloat(s.MeasuredStdDev.Z),
			trackall.FormatFloat(s.FilteredStdDev.X), trackall.FormatFloat(s.FilteredStdDev.Y), trackall.FormatFloat(s.FilteredStdDev.Z),
			smoothing,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryFile writes WriteSummary output to path on fsys.
func WriteSummaryFile(fsys fsutil.FileSystem, path string, results []Result) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return WriteSummary(f, results)
}
