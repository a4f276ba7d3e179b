// Package recording reads and writes recorded marker detection sequences.
//
// A recording is a JSON document:
//
//	{"msecs_per_frame": 33.3,
//	 "frames": [{"markers": [{"id": 1, "position": [x, y, z],
//	             "rotation": [rx, ry, rz], "screen": [sx, sy]}]}]}
//
// "screen" is optional.
package recording

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/banshee-data/marker.tracker/internal/fsutil"
	"github.com/banshee-data/marker.tracker/internal/marker"
)

// MaxFileSize bounds the size of a recording Load accepts.
const MaxFileSize = 256 * 1024 * 1024

// ErrNoFrames is returned for a recording without frames.
var ErrNoFrames = errors.New("recording has no frames")

// Recording is a sequence of frames captured at a fixed frame interval.
type Recording struct {
	MsecsPerFrame float64
	Frames        []*marker.Frame
}

type fileDetection struct {
	ID       int        `json:"id"`
	Position [3]float64 `json:"position"`
	Rotation [3]float64 `json:"rotation"`
	Screen   []float64  `json:"screen,omitempty"`
}

type fileFrame struct {
	Markers []fileDetection `json:"markers"`
}

type fileRecording struct {
	MsecsPerFrame float64     `json:"msecs_per_frame"`
	Frames        []fileFrame `json:"frames"`
}

// Decode parses a recording document. Frames are numbered from zero in file
// order.
func Decode(data []byte) (*Recording, error) {
	var fr fileRecording
	if err := json.Unmarshal(data, &fr); err != nil {
		return nil, fmt.Errorf("failed to parse recording JSON: %w", err)
	}
	if len(fr.Frames) == 0 {
		return nil, ErrNoFrames
	}
	if fr.MsecsPerFrame <= 0 {
		return nil, fmt.Errorf("msecs_per_frame must be positive, got %g", fr.MsecsPerFrame)
	}

	rec := &Recording{MsecsPerFrame: fr.MsecsPerFrame, Frames: make([]*marker.Frame, len(fr.Frames))}
	for i, f := range fr.Frames {
		frame := &marker.Frame{Index: i, Markers: make([]marker.Detection, 0, len(f.Markers))}
		for _, m := range f.Markers {
			d := marker.Detection{
				ID:       m.ID,
				Position: r3.Vector{X: m.Position[0], Y: m.Position[1], Z: m.Position[2]},
				Rotation: r3.Vector{X: m.Rotation[0], Y: m.Rotation[1], Z: m.Rotation[2]},
			}
			switch len(m.Screen) {
			case 0:
			case 2:
				d.Screen = &r2.Point{X: m.Screen[0], Y: m.Screen[1]}
			default:
				return nil, fmt.Errorf("frame %d marker %d: screen must have 2 values, got %d", i, m.ID, len(m.Screen))
			}
			frame.Markers = append(frame.Markers, d)
		}
		rec.Frames[i] = frame
	}
	return rec, nil
}

// Encode renders rec as a recording document. Filtered detections are not
// part of the format.
func Encode(rec *Recording) ([]byte, error) {
	fr := fileRecording{MsecsPerFrame: rec.MsecsPerFrame, Frames: make([]fileFrame, len(rec.Frames))}
	for i, f := range rec.Frames {
		markers := make([]fileDetection, 0, len(f.Markers))
		for _, d := range f.Markers {
			fd := fileDetection{
				ID:       d.ID,
				Position: [3]float64{d.Position.X, d.Position.Y, d.Position.Z},
				Rotation: [3]float64{d.Rotation.X, d.Rotation.Y, d.Rotation.Z},
			}
			if d.Screen != nil {
				fd.Screen = []float64{d.Screen.X, d.Screen.Y}
			}
			markers = append(markers, fd)
		}
		fr.Frames[i] = fileFrame{Markers: markers}
	}
	return json.MarshalIndent(fr, "", "  ")
}

// Load reads a recording from path. The file must have a .json extension
// and be no larger than MaxFileSize.
func Load(fsys fsutil.FileSystem, path string) (*Recording, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("recording must have .json extension, got %q", ext)
	}
	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat recording: %w", err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("recording too large: %d bytes (max %d)", info.Size(), MaxFileSize)
	}
	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}
	rec, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return rec, nil
}

// Save writes rec to path, creating the parent directory.
func Save(fsys fsutil.FileSystem, path string, rec *Recording) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("failed to encode recording: %w", err)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return fsys.WriteFile(path, data, 0o644)
}

// Clone returns a deep copy of the frames so a tracking pass can write
// FilteredMarkers without touching rec.
func (rec *Recording) Clone() []*marker.Frame {
	out := make([]*marker.Frame, len(rec.Frames))
	for i, f := range rec.Frames {
		markers := make([]marker.Detection, len(f.Markers))
		copy(markers, f.Markers)
		out[i] = &marker.Frame{Index: f.Index, Markers: markers}
	}
	return out
}
