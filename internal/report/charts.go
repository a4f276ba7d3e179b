package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/marker.tracker/internal/marker"
)

// EchartsAssetsHost is where rendered pages load the echarts scripts from.
var EchartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// FitnessChart builds a line chart of the best fitness per generation.
func FitnessChart(history []float64) *charts.Line {
	x := make([]string, len(history))
	data := make([]opts.LineData, len(history))
	for i, f := range history {
		x[i] = strconv.Itoa(i)
		data[i] = opts.LineData{Value: f}
	}

	yAxis := opts.YAxis{Name: "Fitness", Scale: opts.Bool(true)}
	if positive(history) {
		yAxis.Type = "log"
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Tuning Progress", Width: "100%", Height: "480px", AssetsHost: EchartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Best fitness", Subtitle: fmt.Sprintf("generations=%d", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Generation", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(yAxis),
	)
	line.SetXAxis(x).AddSeries("best", data)
	return line
}

// FitnessChartHTML renders FitnessChart as a standalone HTML page.
func FitnessChartHTML(w io.Writer, history []float64) error {
	return FitnessChart(history).Render(w)
}

// TrackChart builds a line chart of the raw and filtered x, y and z of
// marker id. Frames without a value are left as gaps.
func TrackChart(frames []*marker.Frame, id int) (*charts.Line, error) {
	x := make([]string, len(frames))
	var raw, filtered [3][]opts.LineData
	count := 0
	for i, f := range frames {
		x[i] = strconv.Itoa(i)
		m, hasM := f.Find(id)
		flt, hasF := f.FindFiltered(id)
		if hasM || hasF {
			count++
		}
		for axis := 0; axis < 3; axis++ {
			raw[axis] = append(raw[axis], lineValue(hasM, component(m, axis)))
			filtered[axis] = append(filtered[axis], lineValue(hasF, component(flt, axis)))
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("marker %d: %w", id, ErrNoData)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("Marker %d", id), Width: "100%", Height: "600px", AssetsHost: EchartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Marker %d", id), Subtitle: fmt.Sprintf("frames=%d detected=%d", len(frames), count)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(x)
	for axis := 0; axis < 3; axis++ {
		line.AddSeries(axisNames[axis]+" measured", raw[axis])
		line.AddSeries(axisNames[axis]+" filtered", filtered[axis])
	}
	return line, nil
}

// TrackChartHTML renders TrackChart as a standalone HTML page.
func TrackChartHTML(w io.Writer, frames []*marker.Frame, id int) error {
	line, err := TrackChart(frames, id)
	if err != nil {
		return err
	}
	return line.Render(w)
}

// lineValue returns "-", the echarts marker for a missing point, when the
// value is absent.
func lineValue(present bool, v float64) opts.LineData {
	if !present {
		return opts.LineData{Value: "-"}
	}
	return opts.LineData{Value: v}
}

func positive(values []float64) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if v <= 0 {
			return false
		}
	}
	return true
}
