package trackall

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/marker"
)

// CSVHeader is the column header written above each marker's rows.
var CSVHeader = []string{
	"frame",
	"x_measured", "x_filtered", "dist",
	"y_measured", "y_filtered", "dist",
	"z_measured", "z_filtered", "dist",
	"x_rotation", "y_rotation", "z_rotation",
}

// IDStats summarises one marker over a frame sequence. Standard deviations
// are population values per axis; a Has flag is false when there were no
// samples of that kind.
type IDStats struct {
	MeasuredCount  int
	FilteredCount  int
	MeasuredMean   r3.Vector
	FilteredMean   r3.Vector
	MeasuredStdDev r3.Vector
	FilteredStdDev r3.Vector
}

func (s IDStats) HasMeasured() bool { return s.MeasuredCount > 0 }
func (s IDStats) HasFiltered() bool { return s.FilteredCount > 0 }

// Stats computes IDStats for every id in frames.
func Stats(frames []*marker.Frame) map[int]IDStats {
	out := make(map[int]IDStats)
	for _, id := range AllMarkerIDs(frames, false) {
		out[id] = statsFor(frames, id)
	}
	return out
}

func statsFor(frames []*marker.Frame, id int) IDStats {
	var measured, filtered [3][]float64
	for _, f := range frames {
		if d, ok := f.Find(id); ok {
			appendAxes(&measured, d.Position)
		}
		if d, ok := f.FindFiltered(id); ok {
			appendAxes(&filtered, d.Position)
		}
	}
	s := IDStats{MeasuredCount: len(measured[0]), FilteredCount: len(filtered[0])}
	s.MeasuredMean, s.MeasuredStdDev = meanStdDev(measured)
	s.FilteredMean, s.FilteredStdDev = meanStdDev(filtered)
	return s
}

func appendAxes(axes *[3][]float64, v r3.Vector) {
	axes[0] = append(axes[0], v.X)
	axes[1] = append(axes[1], v.Y)
	axes[2] = append(axes[2], v.Z)
}

func meanStdDev(axes [3][]float64) (mean, std r3.Vector) {
	if len(axes[0]) == 0 {
		return r3.Vector{}, r3.Vector{}
	}
	var m, s [3]float64
	for i := range axes {
		m[i], s[i] = stat.PopMeanStdDev(axes[i], nil)
	}
	return r3.Vector{X: m[0], Y: m[1], Z: m[2]}, r3.Vector{X: s[0], Y: s[1], Z: s[2]}
}

// WriteCSV writes the per-marker diagnostic table for frames: an "id,<id>"
// line, the column header, one row per frame with empty cells where a value
// is missing, a STDEV row and a blank line.
func WriteCSV(w io.Writer, frames []*marker.Frame) error {
	cw := csv.NewWriter(w)

	for _, id := range AllMarkerIDs(frames, false) {
		if err := cw.Write([]string{"id", strconv.Itoa(id)}); err != nil {
			return fmt.Errorf("write id line: %w", err)
		}
		if err := cw.Write(CSVHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		for i, f := range frames {
			if err := cw.Write(frameRow(i, f, id)); err != nil {
				return fmt.Errorf("write frame %d of id %d: %w", i, id, err)
			}
		}
		if err := cw.Write(stdevRow(statsFor(frames, id))); err != nil {
			return fmt.Errorf("write stdev row: %w", err)
		}
		if err := cw.Write(nil); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func frameRow(index int, f *marker.Frame, id int) []string {
	m, hasM := f.Find(id)
	flt, hasF := f.FindFiltered(id)

	row := make([]string, 0, len(CSVHeader))
	row = append(row, strconv.Itoa(index))
	for axis := 0; axis < 3; axis++ {
		mv, fv := axisOf(m.Position, axis), axisOf(flt.Position, axis)
		row = append(row,
			optional(hasM, mv),
			optional(hasF, fv),
			optional(hasM && hasF, fv-mv),
		)
	}
	row = append(row,
		optional(hasM, m.Rotation.X),
		optional(hasM, m.Rotation.Y),
		optional(hasM, m.Rotation.Z),
	)
	return row
}

func stdevRow(s IDStats) []string {
	row := []string{"STDEV"}
	for axis := 0; axis < 3; axis++ {
		row = append(row,
			optional(s.HasMeasured(), axisOf(s.MeasuredStdDev, axis)),
			optional(s.HasFiltered(), axisOf(s.FilteredStdDev, axis)),
			"",
		)
	}
	return row
}

func axisOf(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func optional(present bool, v float64) string {
	if !present {
		return ""
	}
	return FormatFloat(v)
}

// FormatFloat renders v in the shortest form that round-trips.
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCSVFile writes the diagnostic table to path on fsys.
func WriteCSVFile(fsys fsutil.FileSystem, path string, frames []*marker.Frame) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	return WriteCSV(f, frames)
}
