package marker

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	m.Run()
}

func TestIDsSortedAndUnique(t *testing.T) {
	ds := []Detection{{ID: 9}, {ID: 2}, {ID: 9}, {ID: 5}}
	if diff := cmp.Diff([]int{2, 5, 9}, IDs(ds)); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, IDs(nil))
}

func TestFrameFind(t *testing.T) {
	screen := r2.Point{X: 10, Y: 20}
	f := Frame{
		Markers:         []Detection{{ID: 1, Position: r3.Vector{X: 1}, Screen: &screen}},
		FilteredMarkers: []Detection{{ID: 2}},
	}
	d, ok := f.Find(1)
	require.True(t, ok)
	assert.Equal(t, 10.0, d.Screen.X)

	_, ok = f.Find(2)
	assert.False(t, ok)
	_, ok = f.FindFiltered(2)
	assert.True(t, ok)
}

func TestTrackDetectionAndLoss(t *testing.T) {
	pos := kalman.MovingObjectParams()
	pos.NotFoundTimeout = 2
	angle := kalman.DefaultParams1D()
	angle.NotFoundTimeout = 5
	tr := NewTrackWithParams(4, pos, angle)
	assert.Equal(t, 4, tr.ID())
	assert.False(t, tr.IsDetectedFiltered())

	tr.SetPositionRotation(r3.Vector{X: 1, Y: 2, Z: 3}, 0.25, 33)
	assert.True(t, tr.IsDetected())
	assert.True(t, tr.IsDetectedFiltered())
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, tr.Position())
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, tr.FilteredPosition())
	assert.Equal(t, 0.25, tr.FilteredAngle())

	tr.SetNotDetected(33)
	assert.False(t, tr.IsDetected())
	assert.True(t, tr.IsDetectedFiltered())
	assert.Equal(t, 1, tr.Misses())

	tr.SetNotDetected(33)
	assert.False(t, tr.IsDetectedFiltered(), "position filter timed out")
	assert.Equal(t, r3.Vector{X: 1, Y: 2, Z: 3}, tr.Position(), "raw position keeps the last detection")
}

func TestTrackUnwrapsAngle(t *testing.T) {
	tr := NewTrack(1)
	tr.SetPositionRotation(r3.Vector{}, math.Pi-0.1, 33)
	tr.SetPositionRotation(r3.Vector{}, -math.Pi+0.1, 33)
	assert.InDelta(t, math.Pi+0.1, tr.Angle(), 1e-12)
	assert.Greater(t, tr.FilteredAngle(), 2.0, "filter sees the unwrapped angle")
}

func TestSessionProcessDetections(t *testing.T) {
	s := NewSession(DefaultSessionConfig())
	s.ProcessDetections([]Detection{
		{ID: 3, Position: r3.Vector{X: 1}},
		{ID: 1, Position: r3.Vector{Y: 1}},
	})
	s.ProcessDetections([]Detection{{ID: 1, Position: r3.Vector{Y: 2}}})

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap[0].ID)
	assert.True(t, snap[0].Detected)
	assert.Equal(t, 3, snap[1].ID)
	assert.False(t, snap[1].Detected)
	assert.True(t, snap[1].DetectedFiltered)
	assert.Equal(t, 1, snap[1].Misses)
	assert.Equal(t, 2, s.Frames())

	_, ok := s.Track(7)
	assert.False(t, ok)
}

func TestSessionFramesPerSecond(t *testing.T) {
	s := NewSession(SessionConfig{})
	assert.Equal(t, 30.0, s.FramesPerSecond())
	s.SetFramesPerSecond(60)
	assert.Equal(t, 60.0, s.FramesPerSecond())
	s.SetFramesPerSecond(-1)
	assert.Equal(t, 60.0, s.FramesPerSecond())
}

func TestSessionUsesClockForElapsedTime(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	cfg := DefaultSessionConfig()
	cfg.Clock = clock
	s := NewSession(cfg)

	// Move at 1 unit per millisecond with irregular frame spacing.
	x := 0.0
	for i := 0; i < 60; i++ {
		step := time.Duration(20+i%3*10) * time.Millisecond
		clock.Advance(step)
		x += timeutil.Milliseconds(step)
		s.ProcessDetections([]Detection{{ID: 1, Position: r3.Vector{X: x}}})
	}
	st, ok := s.Track(1)
	require.True(t, ok)
	assert.InDelta(t, x, st.FilteredPosition.X, 1.0)
}

func TestSessionConcurrentReaders(t *testing.T) {
	s := NewSession(DefaultSessionConfig())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.ProcessDetections([]Detection{{ID: i % 5, Position: r3.Vector{X: float64(i)}}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = s.Snapshot()
		}
	}()
	wg.Wait()
	assert.Len(t, s.Snapshot(), 5)
}
