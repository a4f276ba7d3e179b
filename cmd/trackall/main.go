package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/plane"
	"github.com/banshee-data/marker.tracker/internal/recording"
	"github.com/banshee-data/marker.tracker/internal/report"
	"github.com/banshee-data/marker.tracker/internal/sweep"
	"github.com/banshee-data/marker.tracker/internal/trackall"
	"github.com/banshee-data/marker.tracker/internal/units"
	"github.com/banshee-data/marker.tracker/internal/version"
)

var (
	recordingPath = flag.String("recording", "", "Recorded detections JSON file (required)")
	configPath    = flag.String("config", "", "Tuning config JSON (defaults when empty)")
	preset        = flag.String("preset", "", "Noise preset overriding the config: default, moving or static")
	fps           = flag.Float64("fps", 0, "Frames per second overriding the recording's frame interval")
	output        = flag.String("output", "markers.csv", "Diagnostic CSV output file")
	plotDir       = flag.String("plot-dir", "", "Write per-marker PNG and HTML charts to this directory")

	sweepEnabled = flag.Bool("sweep", false, "Also run the noise grid sweep")
	sweepDir     = flag.String("sweep-dir", "sweep", "Output directory for sweep CSVs")
	noiseM       = flag.String("noise-m", "", "Comma-separated measurement noise levels (default 1e-8,1)")
	noisePP      = flag.String("noise-pp", "", "Comma-separated position process noise levels (default 1e-8,1)")
	noisePV      = flag.String("noise-pv", "", "Comma-separated velocity process noise levels (default 1e-8,1)")

	showVersion = flag.Bool("version", false, "Print version and exit")
)

// options is the resolved command line.
type options struct {
	RecordingPath string
	Config        *config.TuningConfig
	Preset        string
	FPS           float64
	Output        string
	PlotDir       string

	Sweep      bool
	SweepDir   string
	SweepCases []sweep.Case
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String("trackall"))
		return
	}
	if *recordingPath == "" {
		log.Fatal("-recording is required")
	}

	cfg := config.DefaultTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}

	opts := options{
		RecordingPath: *recordingPath,
		Config:        cfg,
		Preset:        *preset,
		FPS:           *fps,
		Output:        *output,
		PlotDir:       *plotDir,
		Sweep:         *sweepEnabled,
		SweepDir:      *sweepDir,
	}
	if opts.Sweep {
		cases, err := sweepCases(*noiseM, *noisePP, *noisePV)
		if err != nil {
			log.Fatalf("Invalid sweep levels: %v", err)
		}
		opts.SweepCases = cases
	}

	if err := run(fsutil.OSFileSystem{}, opts); err != nil {
		log.Fatalf("trackall failed: %v", err)
	}
}

func sweepCases(m, pp, pv string) ([]sweep.Case, error) {
	var levels [3][]float64
	for i, s := range []string{m, pp, pv} {
		v, err := sweep.ParseLevels(s)
		if err != nil {
			return nil, err
		}
		if len(v) == 0 {
			v = sweep.DefaultLevels
		}
		levels[i] = v
	}
	return sweep.Grid(levels[0], levels[1], levels[2]), nil
}

func resolveParams(cfg *config.TuningConfig, preset string) (kalman.Params3D, error) {
	var p kalman.Params3D
	switch preset {
	case "":
		return kalman.Params3DFromTuning(cfg), nil
	case "default":
		p = kalman.DefaultParams3D()
	case "moving":
		p = kalman.MovingObjectParams()
	case "static":
		p = kalman.StaticMarkerParams()
	default:
		return p, fmt.Errorf("unknown preset %q (must be default, moving or static)", preset)
	}
	p.NotFoundTimeout = cfg.GetNotFoundTimeout()
	return p, nil
}

func run(fsys fsutil.FileSystem, opts options) error {
	rec, err := recording.Load(fsys, opts.RecordingPath)
	if err != nil {
		return err
	}
	msecPerFrame := rec.MsecsPerFrame
	if opts.FPS > 0 {
		if msecPerFrame, err = units.FrameIntervalMsec(opts.FPS); err != nil {
			return err
		}
	}
	params, err := resolveParams(opts.Config, opts.Preset)
	if err != nil {
		return err
	}

	log.Printf("Loaded %d frames from %s (%.2f ms/frame)", len(rec.Frames), opts.RecordingPath, msecPerFrame)
	trackReferencePlane(rec, msecPerFrame, opts.Config.GetReferenceMarkerIDs())

	trackall.TrackAllMarkers(rec.Frames, msecPerFrame, params)
	if err := fsys.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return err
	}
	if err := trackall.WriteCSVFile(fsys, opts.Output, rec.Frames); err != nil {
		return err
	}
	logStats(rec)
	log.Printf("Wrote %s", opts.Output)

	if opts.PlotDir != "" {
		if err := writePlots(fsys, opts.PlotDir, rec); err != nil {
			return err
		}
	}

	if opts.Sweep {
		results, err := sweep.Run(rec.Frames, opts.SweepCases, sweep.Options{
			MsecPerFrame:    msecPerFrame,
			NotFoundTimeout: params.NotFoundTimeout,
			FS:              fsys,
			Dir:             opts.SweepDir,
		})
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		summary := filepath.Join(opts.SweepDir, "summary.csv")
		if err := sweep.WriteSummaryFile(fsys, summary, results); err != nil {
			return err
		}
		log.Printf("Sweep complete: %d combinations, summary %s", len(opts.SweepCases), summary)
	}
	return nil
}

// trackReferencePlane replays the reference markers and logs the plane they
// settle on.
func trackReferencePlane(rec *recording.Recording, msecPerFrame float64, ids []int) {
	if len(ids) == 0 {
		return
	}
	tracker := plane.NewReferencePlaneTracker(ids)
	for _, f := range rec.Frames {
		tracker.TrackMarkers(msecPerFrame, f.Markers)
	}
	if !tracker.HasPlane() {
		log.Printf("No reference plane from markers %v", ids)
		return
	}
	p := tracker.Plane()
	log.Printf("Reference plane z = %.4f x + %.4f y + %.4f (normal %v, %d markers)",
		p.A, p.B, p.D, p.Normal, tracker.ValidTrackerCount())
}

func logStats(rec *recording.Recording) {
	stats := trackall.Stats(rec.Frames)
	for _, id := range trackall.AllMarkerIDs(rec.Frames, false) {
		s := stats[id]
		log.Printf("id %d: measured %d stdev %.4f, filtered %d stdev %.4f",
			id, s.MeasuredCount, s.MeasuredStdDev.Norm(), s.FilteredCount, s.FilteredStdDev.Norm())
	}
}

func writePlots(fsys fsutil.FileSystem, dir string, rec *recording.Recording) error {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, id := range trackall.AllMarkerIDs(rec.Frames, true) {
		png := filepath.Join(dir, fmt.Sprintf("marker%d.png", id))
		if err := report.PlotTrack(fsys, png, rec.Frames, id); err != nil {
			return err
		}
		html := filepath.Join(dir, fmt.Sprintf("marker%d.html", id))
		f, err := fsys.Create(html)
		if err != nil {
			return err
		}
		if err := report.TrackChartHTML(f, rec.Frames, id); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	log.Printf("Wrote charts to %s", dir)
	return nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -recording frames.json [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
}
