package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// filter is a constant velocity Kalman filter over n measured dimensions.
// The state holds n positions followed by n velocities; only positions are
// measured.
type filter struct {
	n int

	state      *mat.VecDense
	errorCov   *mat.Dense
	// priorState and priorCov hold the last predicted or initialised
	// estimate. Every correction starts from them.
	priorState *mat.VecDense
	priorCov   *mat.Dense
	transition *mat.Dense
	measure    *mat.Dense
	processCov *mat.Dense
	measureCov *mat.Dense

	// countdown is the number of further misses tolerated before the track
	// is dropped. Zero means no track.
	countdown int
	timeout   int
}

func newFilter(n int, process, measurement []float64, timeout int) *filter {
	f := &filter{
		n:          n,
		state:      mat.NewVecDense(2*n, nil),
		errorCov:   identity(2 * n),
		priorState: mat.NewVecDense(2*n, nil),
		priorCov:   identity(2 * n),
		transition: identity(2 * n),
		measure:    mat.NewDense(n, 2*n, nil),
		timeout:    timeout,
	}
	for i := 0; i < n; i++ {
		f.measure.Set(i, i, 1)
	}
	f.setNoise(process, measurement)
	return f
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func diagonal(values []float64) *mat.Dense {
	m := mat.NewDense(len(values), len(values), nil)
	for i, v := range values {
		m.Set(i, i, v)
	}
	return m
}

func (f *filter) setNoise(process, measurement []float64) {
	f.processCov = diagonal(process)
	f.measureCov = diagonal(measurement)
}

func (f *filter) tracking() bool { return f.countdown > 0 }

// predict advances the state by dt milliseconds: x = F x, P = F P Fᵀ + Q.
func (f *filter) predict(dt float64) {
	if !f.tracking() {
		return
	}
	for i := 0; i < f.n; i++ {
		f.transition.Set(i, i+f.n, dt)
	}

	var x mat.VecDense
	x.MulVec(f.transition, f.state)
	f.state.CopyVec(&x)

	var fp, p mat.Dense
	fp.Mul(f.transition, f.errorCov)
	p.Mul(&fp, f.transition.T())
	p.Add(&p, f.processCov)
	f.errorCov.Copy(&p)
	f.savePrior()
}

func (f *filter) savePrior() {
	f.priorState.CopyVec(f.state)
	f.priorCov.Copy(f.errorCov)
}

// correct folds in a position measurement, starting from the last predicted
// or initialised estimate so repeated calls do not count a measurement
// twice. The first measurement after the track was lost initialises the
// state directly.
func (f *filter) correct(z []float64) {
	if !f.tracking() {
		f.reset(z)
		return
	}
	f.countdown = f.timeout

	// S = H P⁻ Hᵀ + R
	var hp, s mat.Dense
	hp.Mul(f.measure, f.priorCov)
	s.Mul(&hp, f.measure.T())
	s.Add(&s, f.measureCov)
	// A singular or badly conditioned innovation covariance drops the
	// measurement; the countdown was still refreshed above.
	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		return
	}

	// K = P⁻ Hᵀ S⁻¹
	var pht, gain mat.Dense
	pht.Mul(f.priorCov, f.measure.T())
	gain.Mul(&pht, &sInv)

	// x = x⁻ + K (z - H x⁻)
	var hx, innovation, dx mat.VecDense
	hx.MulVec(f.measure, f.priorState)
	innovation.SubVec(mat.NewVecDense(f.n, append([]float64(nil), z...)), &hx)
	dx.MulVec(&gain, &innovation)

	var next mat.VecDense
	next.AddVec(f.priorState, &dx)

	// P = (I - K H) P⁻
	var kh, ikh, p mat.Dense
	kh.Mul(&gain, f.measure)
	ikh.Sub(identity(2*f.n), &kh)
	p.Mul(&ikh, f.priorCov)

	if !finite(next.RawVector().Data) || !finite(p.RawMatrix().Data) {
		f.reset(z)
		return
	}
	f.state.CopyVec(&next)
	f.errorCov.Copy(&p)
}

func (f *filter) reset(z []float64) {
	for i := 0; i < f.n; i++ {
		f.state.SetVec(i, z[i])
		f.state.SetVec(i+f.n, 0)
	}
	f.errorCov = identity(2 * f.n)
	f.savePrior()
	f.countdown = f.timeout
}

func (f *filter) miss() {
	if f.countdown > 0 {
		f.countdown--
	}
}

func (f *filter) position(i int) float64 { return f.state.AtVec(i) }
func (f *filter) velocity(i int) float64 { return f.state.AtVec(i + f.n) }

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
