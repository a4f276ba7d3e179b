package plane

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// MaxConditionNumber is the largest condition number of the design matrix
// accepted by LeastSquares.
const MaxConditionNumber = 1e10

// LeastSquares solves min ‖A x − b‖ by QR decomposition. ok is false when A
// has fewer rows than columns or is too badly conditioned to trust.
func LeastSquares(a mat.Matrix, b mat.Vector) (*mat.VecDense, bool) {
	r, c := a.Dims()
	if r < c || b.Len() != r {
		return nil, false
	}

	var qr mat.QR
	qr.Factorize(a)
	if cond := qr.Cond(); math.IsNaN(cond) || cond > MaxConditionNumber {
		return nil, false
	}

	var x mat.VecDense
	if err := qr.SolveVecTo(&x, false, b); err != nil {
		return nil, false
	}
	if !finite(x.RawVector().Data) {
		return nil, false
	}
	return &x, true
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
