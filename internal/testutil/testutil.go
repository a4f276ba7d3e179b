// Package testutil provides shared test helpers and synthetic marker
// fixtures.
package testutil

import (
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/marker.tracker/internal/marker"
	"github.com/banshee-data/marker.tracker/internal/recording"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// SyntheticMarker describes one marker in a generated frame sequence.
type SyntheticMarker struct {
	ID int
	// Start is the position in frame 0; Velocity is added per frame.
	Start    r3.Vector
	Velocity r3.Vector
	// NoiseStdDev is the Gaussian noise added to each measured axis.
	NoiseStdDev float64
	// DropEvery removes the detection from every n-th frame. Zero keeps all.
	DropEvery int
}

// TruePosition returns the noise free position of m in frame i.
func (m SyntheticMarker) TruePosition(i int) r3.Vector {
	return m.Start.Add(m.Velocity.Mul(float64(i)))
}

// SyntheticFrames generates n frames of detections. The same seed always
// yields the same frames.
func SyntheticFrames(n int, seed int64, markers ...SyntheticMarker) []*marker.Frame {
	rng := rand.New(rand.NewSource(seed))
	frames := make([]*marker.Frame, n)
	for i := range frames {
		f := &marker.Frame{Index: i}
		for _, m := range markers {
			if m.DropEvery > 0 && i%m.DropEvery == m.DropEvery-1 {
				continue
			}
			p := m.TruePosition(i)
			if m.NoiseStdDev > 0 {
				p = p.Add(r3.Vector{
					X: rng.NormFloat64() * m.NoiseStdDev,
					Y: rng.NormFloat64() * m.NoiseStdDev,
					Z: rng.NormFloat64() * m.NoiseStdDev,
				})
			}
			f.Markers = append(f.Markers, marker.Detection{ID: m.ID, Position: p})
		}
		frames[i] = f
	}
	return frames
}

// SyntheticRecording wraps SyntheticFrames in a recording at 30 frames per
// second.
func SyntheticRecording(n int, seed int64, markers ...SyntheticMarker) *recording.Recording {
	return &recording.Recording{
		MsecsPerFrame: 1000.0 / 30,
		Frames:        SyntheticFrames(n, seed, markers...),
	}
}
