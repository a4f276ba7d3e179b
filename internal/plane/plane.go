// Package plane fits planes to marker positions and tracks the reference
// plane spanned by stationary reference markers.
package plane

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// colinearTolerance is the smallest ratio between the second and first
// singular value of the centred points for which the points still span a
// plane.
const colinearTolerance = 1e-9

// Plane is a x + b y + c z + d = 0 with (a, b, c) of unit length when it
// comes from FitToPoints.
type Plane struct {
	A, B, C, D float64
}

// Normal returns (a, b, c).
func (p Plane) Normal() r3.Vector {
	return r3.Vector{X: p.A, Y: p.B, Z: p.C}
}

// Distance returns the signed distance from pt to the plane. Only
// meaningful for a unit normal.
func (p Plane) Distance(pt r3.Vector) float64 {
	return p.Normal().Dot(pt) + p.D
}

// Project returns the closest point on the plane to pt.
func (p Plane) Project(pt r3.Vector) r3.Vector {
	return pt.Sub(p.Normal().Mul(p.Distance(pt)))
}

// XAngle is the angle in radians between the plane normal and the x axis.
func (p Plane) XAngle() float64 { return p.axisAngle(r3.Vector{X: 1}) }

// YAngle is the angle in radians between the plane normal and the y axis.
func (p Plane) YAngle() float64 { return p.axisAngle(r3.Vector{Y: 1}) }

// ZAngle is the angle in radians between the plane normal and the z axis.
func (p Plane) ZAngle() float64 { return p.axisAngle(r3.Vector{Z: 1}) }

func (p Plane) axisAngle(axis r3.Vector) float64 {
	n := p.Normal()
	if n.Norm() == 0 {
		return math.NaN()
	}
	return float64(n.Angle(axis))
}

// FitToPoints returns the total least squares plane through points. The
// normal has unit length and its largest component is positive. ok is false
// for fewer than three points or when the points do not span a plane.
func FitToPoints(points []r3.Vector) (Plane, bool) {
	if len(points) < 3 {
		return Plane{}, false
	}

	var centroid r3.Vector
	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))

	centred := mat.NewDense(len(points), 3, nil)
	for i, p := range points {
		q := p.Sub(centroid)
		centred.SetRow(i, []float64{q.X, q.Y, q.Z})
	}

	var svd mat.SVD
	if !svd.Factorize(centred, mat.SVDThinV) {
		return Plane{}, false
	}
	values := svd.Values(nil)
	if values[0] == 0 || values[1]/values[0] < colinearTolerance {
		return Plane{}, false
	}

	var v mat.Dense
	svd.VTo(&v)
	normal := r3.Vector{X: v.At(0, 2), Y: v.At(1, 2), Z: v.At(2, 2)}.Normalize()
	if largest(normal) < 0 {
		normal = normal.Mul(-1)
	}

	return Plane{
		A: normal.X,
		B: normal.Y,
		C: normal.Z,
		D: -normal.Dot(centroid),
	}, true
}

// largest returns the component of v with the greatest magnitude.
func largest(v r3.Vector) float64 {
	switch v.LargestComponent() {
	case r3.XAxis:
		return v.X
	case r3.YAxis:
		return v.Y
	default:
		return v.Z
	}
}
