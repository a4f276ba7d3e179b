package marker

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
)

// SessionConfig controls how a Session times frames and which noise
// profiles new tracks use.
type SessionConfig struct {
	FramesPerSecond float64
	PositionParams  kalman.Params3D
	AngleParams     kalman.Params1D

	// Clock, when set, makes the session measure the real time between
	// ProcessDetections calls instead of assuming a fixed frame rate.
	Clock timeutil.Clock
}

// DefaultSessionConfig tracks moving objects at 30 frames per second.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		FramesPerSecond: 30,
		PositionParams:  kalman.MovingObjectParams(),
		AngleParams:     kalman.DefaultParams1D(),
	}
}

// Session keeps one Track per marker id seen in a live stream. Tracks are
// created on first sighting and live as long as the session. Safe for
// concurrent use.
type Session struct {
	mu        sync.RWMutex
	config    SessionConfig
	tracks    map[int]*Track
	frames    int
	lastFrame time.Time
}

// NewSession creates an empty session.
func NewSession(config SessionConfig) *Session {
	if config.FramesPerSecond <= 0 {
		config.FramesPerSecond = 30
	}
	return &Session{
		config: config,
		tracks: make(map[int]*Track),
	}
}

// FramesPerSecond returns the assumed frame rate.
func (s *Session) FramesPerSecond() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config.FramesPerSecond
}

// SetFramesPerSecond changes the assumed frame rate. Non-positive values are
// ignored.
func (s *Session) SetFramesPerSecond(fps float64) {
	if fps <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.FramesPerSecond = fps
}

// ProcessDetections feeds one frame of detections into the session. Tracks
// for ids absent from the frame are advanced as not detected.
func (s *Session) ProcessDetections(detections []Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := s.elapsedMsecLocked()
	found := make(map[int]struct{}, len(detections))
	for _, d := range detections {
		found[d.ID] = struct{}{}
		track, ok := s.tracks[d.ID]
		if !ok {
			track = NewTrackWithParams(d.ID, s.config.PositionParams, s.config.AngleParams)
			s.tracks[d.ID] = track
			monitoring.Logf("marker: new track id=%d at frame %d", d.ID, s.frames)
		}
		track.SetPositionRotation(d.Position, d.InPlaneAngle(), elapsed)
	}
	for id, track := range s.tracks {
		if _, ok := found[id]; !ok {
			track.SetNotDetected(elapsed)
		}
	}
	s.frames++
}

func (s *Session) elapsedMsecLocked() float64 {
	fixed := 1000 / s.config.FramesPerSecond
	if s.config.Clock == nil {
		return fixed
	}
	now := s.config.Clock.Now()
	defer func() { s.lastFrame = now }()
	if s.lastFrame.IsZero() {
		return fixed
	}
	return timeutil.Milliseconds(now.Sub(s.lastFrame))
}

// Frames returns the number of frames processed.
func (s *Session) Frames() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Snapshot returns the state of every track ordered by id.
func (s *Session) Snapshot() []TrackState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]TrackState, 0, len(s.tracks))
	for _, t := range s.tracks {
		states = append(states, t.State())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// Track returns the state of a single track.
func (s *Session) Track(id int) (TrackState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tracks[id]
	if !ok {
		return TrackState{}, false
	}
	return t.State(), true
}
