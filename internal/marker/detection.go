// Package marker holds per-frame marker detections and the per-marker track
// state built from them.
package marker

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// Detection is one marker observation in one frame. Position and Rotation
// come from pose estimation in camera space; Screen is the marker centre in
// image coordinates when the detector reported it.
type Detection struct {
	ID       int
	Position r3.Vector
	Rotation r3.Vector
	Screen   *r2.Point
}

// InPlaneAngle is the rotation about the camera axis, used as the 2D marker
// heading.
func (d Detection) InPlaneAngle() float64 {
	return d.Rotation.Z
}

// Frame is one video frame worth of detections. FilteredMarkers is filled by
// the tracking pass and holds one smoothed entry per tracked id.
type Frame struct {
	Index           int
	Markers         []Detection
	FilteredMarkers []Detection
}

// Find returns the raw detection with the given id.
func (f *Frame) Find(id int) (Detection, bool) {
	return find(f.Markers, id)
}

// FindFiltered returns the filtered detection with the given id.
func (f *Frame) FindFiltered(id int) (Detection, bool) {
	return find(f.FilteredMarkers, id)
}

func find(list []Detection, id int) (Detection, bool) {
	for _, d := range list {
		if d.ID == id {
			return d, true
		}
	}
	return Detection{}, false
}

// IDs returns the distinct ids in the detections, ascending.
func IDs(detections []Detection) []int {
	seen := make(map[int]struct{}, len(detections))
	ids := make([]int, 0, len(detections))
	for _, d := range detections {
		if _, ok := seen[d.ID]; ok {
			continue
		}
		seen[d.ID] = struct{}{}
		ids = append(ids, d.ID)
	}
	sort.Ints(ids)
	return ids
}
