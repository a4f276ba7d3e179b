package plane

import (
	"math"
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/marker.tracker/internal/kalman"
	"github.com/banshee-data/marker.tracker/internal/marker"
)

// Half extents of the rectangle returned by CornerPoints, in world units.
const (
	CornerHalfWidth  = 860
	CornerHalfHeight = 540
)

// ReferencePlane is the plane z = A x + B y + D fitted to the reference
// markers, together with the screen to world mapping derived from them.
type ReferencePlane struct {
	A, B, D float64
	// Normal is (A, B, −1) scaled to unit length and Offset is D on the
	// same scale.
	Normal r3.Vector
	Offset float64
	// ScreenToWorld maps a row vector (sx, sy, 1) to world coordinates.
	ScreenToWorld [3][3]float64
}

// ReferencePlaneTracker tracks the stationary reference markers and keeps
// the plane through their filtered positions up to date.
type ReferencePlaneTracker struct {
	referenceIDs map[int]struct{}
	params       kalman.Params3D
	trackers     map[int]*kalman.Tracker3D

	hasPlane bool
	plane    ReferencePlane

	observers []func(ReferencePlane)
}

// NewReferencePlaneTracker creates a tracker for the given reference ids
// using the static marker noise profile.
func NewReferencePlaneTracker(referenceIDs []int) *ReferencePlaneTracker {
	return NewReferencePlaneTrackerWithParams(referenceIDs, kalman.StaticMarkerParams())
}

// NewReferencePlaneTrackerWithParams creates a tracker whose per-marker
// filters use params.
func NewReferencePlaneTrackerWithParams(referenceIDs []int, params kalman.Params3D) *ReferencePlaneTracker {
	ids := make(map[int]struct{}, len(referenceIDs))
	for _, id := range referenceIDs {
		ids[id] = struct{}{}
	}
	return &ReferencePlaneTracker{
		referenceIDs: ids,
		params:       params,
		trackers:     make(map[int]*kalman.Tracker3D),
	}
}

// OnPlaneChanged registers fn to be called after every frame that yields a
// plane.
func (t *ReferencePlaneTracker) OnPlaneChanged(fn func(ReferencePlane)) {
	t.observers = append(t.observers, fn)
}

// IsReference reports whether id is one of the reference markers.
func (t *ReferencePlaneTracker) IsReference(id int) bool {
	_, ok := t.referenceIDs[id]
	return ok
}

// TrackMarkers advances every reference tracker by elapsedMsec, folds in the
// reference markers found in detections and refits the plane when at least
// three trackers hold a position.
func (t *ReferencePlaneTracker) TrackMarkers(elapsedMsec float64, detections []marker.Detection) {
	for _, tr := range t.trackers {
		tr.Predict(elapsedMsec)
	}
	for _, d := range detections {
		if !t.IsReference(d.ID) {
			continue
		}
		tr, ok := t.trackers[d.ID]
		if !ok {
			tr = kalman.NewTracker3D(t.params)
			t.trackers[d.ID] = tr
		}
		tr.Update(d.Position, d.Rotation)
	}

	positions := t.validPositions()
	if len(positions) < 3 {
		t.hasPlane = false
		return
	}

	next, ok := fitReferencePlane(positions)
	if ok {
		next.ScreenToWorld, ok = t.solveScreenToWorld(detections)
	}
	t.hasPlane = ok
	if !ok {
		return
	}
	t.plane = next
	for _, fn := range t.observers {
		fn(next)
	}
}

// validPositions returns the filtered positions of the trackers holding one,
// ordered by id so the fit is deterministic.
func (t *ReferencePlaneTracker) validPositions() []r3.Vector {
	ids := make([]int, 0, len(t.trackers))
	for id, tr := range t.trackers {
		if tr.HasPosition() {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]r3.Vector, len(ids))
	for i, id := range ids {
		out[i] = t.trackers[id].Position()
	}
	return out
}

// fitReferencePlane solves z = a x + b y + d in the least squares sense.
func fitReferencePlane(points []r3.Vector) (ReferencePlane, bool) {
	design := mat.NewDense(len(points), 3, nil)
	z := mat.NewVecDense(len(points), nil)
	for i, p := range points {
		design.SetRow(i, []float64{p.X, p.Y, 1})
		z.SetVec(i, p.Z)
	}
	abd, ok := LeastSquares(design, z)
	if !ok {
		return ReferencePlane{}, false
	}

	a, b, d := abd.AtVec(0), abd.AtVec(1), abd.AtVec(2)
	length := math.Sqrt(a*a + b*b + 1)
	return ReferencePlane{
		A:      a,
		B:      b,
		D:      d,
		Normal: r3.Vector{X: a / length, Y: b / length, Z: -1 / length},
		Offset: d / length,
	}, true
}

// solveScreenToWorld fits the 3×3 matrix T with [sx sy 1]·T ≈ world for the
// reference markers in this frame that carry a screen position and whose
// tracker holds a position.
func (t *ReferencePlaneTracker) solveScreenToWorld(detections []marker.Detection) ([3][3]float64, bool) {
	var screen []r2.Point
	var world []r3.Vector
	seen := make(map[int]struct{}, len(detections))
	for _, d := range detections {
		if d.Screen == nil {
			continue
		}
		if _, dup := seen[d.ID]; dup {
			continue
		}
		tr, ok := t.trackers[d.ID]
		if !ok || !tr.HasPosition() {
			continue
		}
		seen[d.ID] = struct{}{}
		screen = append(screen, *d.Screen)
		world = append(world, tr.Position())
	}

	var out [3][3]float64
	if len(screen) < 3 {
		return out, false
	}

	design := mat.NewDense(len(screen), 3, nil)
	for i, s := range screen {
		design.SetRow(i, []float64{s.X, s.Y, 1})
	}
	for col := 0; col < 3; col++ {
		target := mat.NewVecDense(len(world), nil)
		for i, w := range world {
			target.SetVec(i, component(w, col))
		}
		x, ok := LeastSquares(design, target)
		if !ok {
			return out, false
		}
		for row := 0; row < 3; row++ {
			out[row][col] = x.AtVec(row)
		}
	}
	return out, true
}

func component(v r3.Vector, i int) float64 {
	switch i {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// HasPlane reports whether the last TrackMarkers call produced a plane.
func (t *ReferencePlaneTracker) HasPlane() bool { return t.hasPlane }

// Plane returns the most recent successful fit. It is left unchanged by
// frames that fail to produce a plane.
func (t *ReferencePlaneTracker) Plane() ReferencePlane { return t.plane }

// ValidTrackerCount returns the number of reference trackers holding a
// position.
func (t *ReferencePlaneTracker) ValidTrackerCount() int {
	n := 0
	for _, tr := range t.trackers {
		if tr.HasPosition() {
			n++
		}
	}
	return n
}

// CenterPoint is the point where the plane crosses the z axis.
func (t *ReferencePlaneTracker) CenterPoint() r3.Vector {
	return r3.Vector{Z: t.plane.D}
}

// CornerPoints returns the corners of a rectangle in the plane centred on
// CenterPoint, ordered bottom-left, bottom-right, top-left, top-right.
func (t *ReferencePlaneTracker) CornerPoints() [4]r3.Vector {
	c := t.CenterPoint()
	n := t.plane.Normal
	unitX := r3.Vector{X: n.Z, Z: -n.X}.Normalize()
	unitY := r3.Vector{Y: n.Z, Z: -n.Y}.Normalize()
	sx := unitX.Mul(CornerHalfWidth)
	sy := unitY.Mul(CornerHalfHeight)
	return [4]r3.Vector{
		c.Sub(sx).Sub(sy),
		c.Add(sx).Sub(sy),
		c.Sub(sx).Add(sy),
		c.Add(sx).Add(sy),
	}
}

// ProjectPoint maps a screen position onto world coordinates with the
// current screen to world transform.
func (t *ReferencePlaneTracker) ProjectPoint(screen r2.Point) r3.Vector {
	return t.plane.Project(screen)
}

// Project maps a screen position through the plane's transform.
func (p ReferencePlane) Project(screen r2.Point) r3.Vector {
	in := [3]float64{screen.X, screen.Y, 1}
	var out [3]float64
	for col := 0; col < 3; col++ {
		for row := 0; row < 3; row++ {
			out[col] += in[row] * p.ScreenToWorld[row][col]
		}
	}
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}
