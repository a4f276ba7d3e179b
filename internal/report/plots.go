// Package report renders tracking and tuning results as PNG plots and
// interactive HTML charts.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/marker"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to plot")

var axisColors = [3]color.Color{
	color.RGBA{R: 220, G: 50, B: 47, A: 255},
	color.RGBA{R: 38, G: 139, B: 210, A: 255},
	color.RGBA{R: 133, G: 153, B: 0, A: 255},
}

var axisNames = [3]string{"x", "y", "z"}

// TrackSeries returns the raw and filtered samples of one axis of marker id
// indexed by frame. Frames without a value are skipped.
func TrackSeries(frames []*marker.Frame, id, axis int) (raw, filtered plotter.XYs) {
	for i, f := range frames {
		if d, ok := f.Find(id); ok {
			raw = append(raw, plotter.XY{X: float64(i), Y: component(d, axis)})
		}
		if d, ok := f.FindFiltered(id); ok {
			filtered = append(filtered, plotter.XY{X: float64(i), Y: component(d, axis)})
		}
	}
	return raw, filtered
}

func component(d marker.Detection, axis int) float64 {
	switch axis {
	case 0:
		return d.Position.X
	case 1:
		return d.Position.Y
	default:
		return d.Position.Z
	}
}

// PlotTrack writes a PNG with one panel per axis showing the raw and the
// filtered position of marker id over the frames.
func PlotTrack(fsys fsutil.FileSystem, path string, frames []*marker.Frame, id int) error {
	plots := make([][]*plot.Plot, 3)
	total := 0
	for axis := 0; axis < 3; axis++ {
		raw, filtered := TrackSeries(frames, id, axis)
		total += len(raw) + len(filtered)

		p := plot.New()
		p.Title.Text = fmt.Sprintf("Marker %d - %s", id, axisNames[axis])
		p.X.Label.Text = "Frame"
		p.Y.Label.Text = axisNames[axis]

		if len(raw) > 0 {
			pts, err := plotter.NewScatter(raw)
			if err != nil {
				return err
			}
			pts.GlyphStyle.Radius = vg.Points(1.5)
			pts.GlyphStyle.Color = color.Gray{Y: 120}
			p.Add(pts)
			p.Legend.Add("measured", pts)
		}
		if len(filtered) > 0 {
			line, err := plotter.NewLine(filtered)
			if err != nil {
				return err
			}
			line.Color = axisColors[axis]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add("filtered", line)
		}
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
		plots[axis] = []*plot.Plot{p}
	}
	if total == 0 {
		return fmt.Errorf("marker %d: %w", id, ErrNoData)
	}

	const width, height = 14 * vg.Inch, 12 * vg.Inch
	img := vgimg.New(width, height)
	t := draw.Tiles{Rows: 3, Cols: 1, PadX: vg.Millimeter, PadY: vg.Millimeter * 2, PadTop: vg.Millimeter, PadBottom: vg.Millimeter, PadLeft: vg.Millimeter, PadRight: vg.Millimeter}
	canvases := plot.Align(plots, t, draw.New(img))
	for r := range plots {
		plots[r][0].Draw(canvases[r][0])
	}
	return writeTo(fsys, path, vgimg.PngCanvas{Canvas: img})
}

// PlotFitness writes a PNG of the best fitness per generation. The y axis is
// logarithmic when every value is positive and the values differ.
func PlotFitness(fsys fsutil.FileSystem, path string, history []float64) error {
	if len(history) == 0 {
		return ErrNoData
	}
	pts := make(plotter.XYs, len(history))
	positive, varies := true, false
	for i, f := range history {
		pts[i] = plotter.XY{X: float64(i), Y: f}
		if f <= 0 {
			positive = false
		}
		if f != history[0] {
			varies = true
		}
	}

	p := plot.New()
	p.Title.Text = "Best fitness per generation"
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"
	if positive && varies {
		p.Y.Scale = plot.LogScale{}
		p.Y.Tick.Marker = plot.LogTicks{Prec: -1}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = axisColors[1]
	line.Width = vg.Points(1)
	p.Add(line)
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(10*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		return err
	}
	return writeTo(fsys, path, wt)
}

func writeTo(fsys fsutil.FileSystem, path string, wt io.WriterTo) (err error) {
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
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()
	if _, err := wt.WriteTo(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
