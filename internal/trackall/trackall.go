// Package trackall replays a recorded frame sequence through one Kalman
// tracker per marker id and attaches the filtered detections to each frame.
package trackall

import (
	"sort"

	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/marker"
)

// AllMarkerIDs returns every id seen in the raw detections of frames, and
// in the filtered detections too when includeFiltered is set. The result is
// sorted ascending.
func AllMarkerIDs(frames []*marker.Frame, includeFiltered bool) []int {
	seen := make(map[int]struct{})
	for _, f := range frames {
		for _, d := range f.Markers {
			seen[d.ID] = struct{}{}
		}
		if includeFiltered {
			for _, d := range f.FilteredMarkers {
				seen[d.ID] = struct{}{}
			}
		}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// TrackAllMarkers runs every marker id through its own tracker and replaces
// each frame's FilteredMarkers. Detected ids are predicted and corrected;
// absent ids are predicted and charged a miss, and stay in the output while
// their tracker still holds a position.
func TrackAllMarkers(frames []*marker.Frame, msecPerFrame float64, params kalman.Params3D) {
	ids := AllMarkerIDs(frames, false)
	trackers := make(map[int]*kalman.Tracker3D, len(ids))
	for _, id := range ids {
		trackers[id] = kalman.NewTracker3D(params)
	}

	for _, frame := range frames {
		filtered := make([]marker.Detection, 0, len(ids))
		found := make(map[int]struct{}, len(frame.Markers))

		for _, d := range frame.Markers {
			found[d.ID] = struct{}{}
			tr := trackers[d.ID]
			tr.Predict(msecPerFrame)
			tr.Update(d.Position, d.Rotation)
			filtered = append(filtered, filteredDetection(d.ID, tr))
		}

		for _, id := range ids {
			if _, ok := found[id]; ok {
				continue
			}
			tr := trackers[id]
			tr.Predict(msecPerFrame)
			tr.UpdateNotFound()
			if tr.HasPosition() {
				filtered = append(filtered, filteredDetection(id, tr))
			}
		}

		frame.FilteredMarkers = filtered
	}
}

func filteredDetection(id int, tr *kalman.Tracker3D) marker.Detection {
	return marker.Detection{
		ID:       id,
		Position: tr.Position(),
		Rotation: tr.Rotation(),
	}
}
