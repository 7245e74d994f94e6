// Package kalman implements the constant-velocity Kalman filter driving
// the tracker's global motion estimate: state [x, y, vx, vy] with a 4x4
// covariance, predicted each frame and corrected from a 2-D position
// measurement (the tracker feeds it the pool's weighted centroid).
//
// The F*P*F^T + Q / Kalman-gain update is expressed through gonum/mat
// rather than hand-unrolled scalar arithmetic, so the state vector's
// dimension can change without re-deriving the unrolled form.
package kalman

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// minDeterminantThreshold guards the innovation-covariance inverse against
// a near-singular 2x2 matrix.
const minDeterminantThreshold = 1e-6

// Params bounds and tunes the filter's numerical behaviour.
type Params struct {
	ProcessNoisePos   float64 // position process noise, per second of dt
	ProcessNoiseVel   float64 // velocity process noise, per second of dt
	MeasurementNoise  float64 // measurement noise variance (isotropic, x and y)
	MaxPredictDt      float64 // dt is clamped to this before predicting
	MaxCovarianceDiag float64 // diagonal covariance entries are capped here
	MaxSpeed          float64 // post-predict velocity magnitude is clamped here
}

// DefaultParams carries the filter constants in pixel-and-frame units.
func DefaultParams() Params {
	return Params{
		ProcessNoisePos:   0.5,
		ProcessNoiseVel:   2.0,
		MeasurementNoise:  4.0,
		MaxPredictDt:      5.0,
		MaxCovarianceDiag: 1e4,
		MaxSpeed:          500,
	}
}

// Filter is a single constant-velocity 2-D Kalman filter instance.
type Filter struct {
	params Params

	x *mat.VecDense // [x, y, vx, vy]
	p *mat.Dense    // 4x4 covariance
}

// New creates a filter initialised at position (x0, y0) with zero
// velocity and an isotropic starting covariance of 4x the measurement
// noise.
func New(params Params, x0, y0 float64) *Filter {
	p0 := 4 * params.MeasurementNoise
	if p0 <= 0 {
		p0 = 10
	}
	f := &Filter{
		params: params,
		x:      mat.NewVecDense(4, []float64{x0, y0, 0, 0}),
		p: mat.NewDense(4, 4, []float64{
			p0, 0, 0, 0,
			0, p0, 0, 0,
			0, 0, p0, 0,
			0, 0, 0, p0,
		}),
	}
	return f
}

// Position returns the current [x, y] state estimate.
func (f *Filter) Position() (x, y float64) { return f.x.AtVec(0), f.x.AtVec(1) }

// Velocity returns the current [vx, vy] state estimate.
func (f *Filter) Velocity() (vx, vy float64) { return f.x.AtVec(2), f.x.AtVec(3) }

// Speed returns the current velocity magnitude.
func (f *Filter) Speed() float64 {
	vx, vy := f.Velocity()
	return math.Hypot(vx, vy)
}

// Covariance returns a copy of the 4x4 state covariance.
func (f *Filter) Covariance() *mat.Dense {
	var out mat.Dense
	out.CloneFrom(f.p)
	return &out
}

// Predict advances the state by dt seconds under the constant-velocity
// model, growing covariance by the configured process noise. dt is
// clamped to params.MaxPredictDt to bound covariance growth across frame
// gaps. If the resulting state or covariance is non-finite the filter
// resets to position (0,0), zero velocity and an inflated covariance,
// and reports ok=false.
func (f *Filter) Predict(dt float64) (ok bool) {
	if dt > f.params.MaxPredictDt {
		dt = f.params.MaxPredictDt
	}

	ff := mat.NewDense(4, 4, []float64{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})

	var newX mat.VecDense
	newX.MulVec(ff, f.x)
	f.x = &newX

	var fp, fpft mat.Dense
	fp.Mul(ff, f.p)
	fpft.Mul(&fp, ff.T())

	q := mat.NewDense(4, 4, []float64{
		f.params.ProcessNoisePos * dt, 0, 0, 0,
		0, f.params.ProcessNoisePos * dt, 0, 0,
		0, 0, f.params.ProcessNoiseVel * dt, 0,
		0, 0, 0, f.params.ProcessNoiseVel * dt,
	})
	fpft.Add(&fpft, q)

	for i := 0; i < 4; i++ {
		if fpft.At(i, i) > f.params.MaxCovarianceDiag {
			fpft.Set(i, i, f.params.MaxCovarianceDiag)
		}
	}
	f.p = &fpft

	if !f.finite() {
		f.reset()
		return false
	}
	f.clampVelocity()
	return true
}

// Update corrects the state from a 2-D position measurement (zx, zy),
// e.g. the pool's weighted centroid for this frame. Returns ok=false with
// the state unchanged if the innovation covariance is singular; if the
// update would produce a non-finite state, the filter is reset and
// ok=false is returned.
func (f *Filter) Update(zx, zy float64) (ok bool) {
	yx := zx - f.x.AtVec(0)
	yy := zy - f.x.AtVec(1)

	s00 := f.p.At(0, 0) + f.params.MeasurementNoise
	s01 := f.p.At(0, 1)
	s10 := f.p.At(1, 0)
	s11 := f.p.At(1, 1) + f.params.MeasurementNoise

	det := s00*s11 - s01*s10
	if math.Abs(det) < minDeterminantThreshold {
		return false
	}

	invS00 := s11 / det
	invS01 := -s01 / det
	invS10 := -s10 / det
	invS11 := s00 / det

	// K = P * H^T * S^-1, H = [I2 | 0], so P*H^T is just P's first two
	// columns: K is 4x2.
	k := mat.NewDense(4, 2, nil)
	for i := 0; i < 4; i++ {
		p0 := f.p.At(i, 0)
		p1 := f.p.At(i, 1)
		k.Set(i, 0, p0*invS00+p1*invS10)
		k.Set(i, 1, p0*invS01+p1*invS11)
	}

	innovation := mat.NewVecDense(2, []float64{yx, yy})
	var correction mat.VecDense
	correction.MulVec(k, innovation)

	var newX mat.VecDense
	newX.AddVec(f.x, &correction)

	h := mat.NewDense(2, 4, []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
	})
	var kh, iMinusKH mat.Dense
	kh.Mul(k, h)
	iMinusKH.Sub(identity4(), &kh)

	var newP mat.Dense
	newP.Mul(&iMinusKH, f.p)

	savedX, savedP := f.x, f.p
	f.x, f.p = &newX, &newP

	if !f.finite() {
		f.x, f.p = savedX, savedP
		f.reset()
		return false
	}
	return true
}

func identity4() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// finite reports whether every state and covariance-diagonal entry is
// neither NaN nor infinite.
func (f *Filter) finite() bool {
	for i := 0; i < 4; i++ {
		if math.IsNaN(f.x.AtVec(i)) || math.IsInf(f.x.AtVec(i), 0) {
			return false
		}
		if math.IsNaN(f.p.At(i, i)) || math.IsInf(f.p.At(i, i), 0) {
			return false
		}
	}
	return true
}

// reset restores the filter to a fresh, well-conditioned state at the
// origin after a step produced NaN/Inf.
func (f *Filter) reset() {
	f.x = mat.NewVecDense(4, []float64{0, 0, 0, 0})
	f.p = mat.NewDense(4, 4, []float64{
		10, 0, 0, 0,
		0, 10, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// clampVelocity scales vx/vy proportionally so speed never exceeds
// params.MaxSpeed, preventing teleport-like extrapolation from a noisy
// update.
func (f *Filter) clampVelocity() {
	speed := f.Speed()
	if speed > f.params.MaxSpeed && speed > 0 {
		scale := f.params.MaxSpeed / speed
		f.x.SetVec(2, f.x.AtVec(2)*scale)
		f.x.SetVec(3, f.x.AtVec(3)*scale)
	}
}
