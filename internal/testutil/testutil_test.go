package testutil

import (
	"net/http"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertStatusCode(t *testing.T) {
	AssertStatusCode(t, http.StatusOK, http.StatusOK)
	AssertNoError(t, nil)
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodGet, "/api/tuning/progress")
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/tuning/progress", req.URL.Path)

	w := NewTestRecorder()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, w.Body.Len())
}

func TestSyntheticFrames(t *testing.T) {
	m := SyntheticMarker{ID: 4, Start: r3.Vector{X: 1, Y: 2, Z: 300}, Velocity: r3.Vector{X: 1}, DropEvery: 4}
	frames := SyntheticFrames(8, 1, m)
	require.Len(t, frames, 8)

	var present []int
	for i, f := range frames {
		assert.Equal(t, i, f.Index)
		if d, ok := f.Find(4); ok {
			present = append(present, i)
			assert.Equal(t, m.TruePosition(i), d.Position, "no noise requested")
		}
	}
	if diff := cmp.Diff([]int{0, 1, 2, 4, 5, 6}, present); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestSyntheticFramesDeterministic(t *testing.T) {
	m := SyntheticMarker{ID: 1, Start: r3.Vector{Z: 100}, NoiseStdDev: 2}
	a := SyntheticFrames(20, 7, m)
	b := SyntheticFrames(20, 7, m)
	for i := range a {
		assert.Equal(t, a[i].Markers, b[i].Markers)
	}
	c := SyntheticFrames(20, 8, m)
	assert.NotEqual(t, a[0].Markers, c[0].Markers)
}

func TestSyntheticRecording(t *testing.T) {
	rec := SyntheticRecording(5, 1, SyntheticMarker{ID: 9})
	assert.InDelta(t, 33.333, rec.MsecsPerFrame, 1e-3)
	assert.Len(t, rec.Frames, 5)
}
