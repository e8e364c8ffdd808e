// Package filter provides per-track position smoothing: a 2-D Kalman
// filter over a scalar-diagonal covariance, and a cheaper alpha-beta
// alternative. State is expressed with gonum vectors/matrices the way
// Valkyrie's fusion.ExtendedKalmanFilter represents its larger 15-state
// filter, scaled down to this package's 4-state [x, y, vx, vy] model.
package filter

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Config holds the tunable noise parameters for Kalman2D.
type Config struct {
	ProcessNoise     float64 // Q, default 0.1
	MeasurementNoise float64 // R, default 1.0
	BaseRateHz       float64 // fallback dt when no true interval is known
}

// DefaultConfig returns the spec's default Q=0.1, R=1.0, base rate 10 Hz.
func DefaultConfig() Config {
	return Config{ProcessNoise: 0.1, MeasurementNoise: 1.0, BaseRateHz: 10.0}
}

// Kalman2D is a 2-D Kalman filter over [x, y, vx, vy] with a
// scalar-diagonal covariance, matching the spec's simplified model.
type Kalman2D struct {
	cfg Config

	state      *mat.VecDense // [x, y, vx, vy]
	covariance *mat.VecDense // diagonal-only: [px, py, pvx, pvy]

	initialized bool
}

// NewKalman2D constructs an uninitialized filter; call Initialize or
// Update to seed it from the first measurement.
func NewKalman2D(cfg Config) *Kalman2D {
	if cfg.ProcessNoise <= 0 {
		cfg.ProcessNoise = 0.1
	}
	if cfg.MeasurementNoise <= 0 {
		cfg.MeasurementNoise = 1.0
	}
	if cfg.BaseRateHz <= 0 {
		cfg.BaseRateHz = 10.0
	}
	return &Kalman2D{
		cfg:        cfg,
		state:      mat.NewVecDense(4, nil),
		covariance: mat.NewVecDense(4, nil),
	}
}

// Initialize sets the mean to (x, y), zeros velocity, and resets
// covariance to unit uncertainty.
func (k *Kalman2D) Initialize(x, y float64) {
	k.state.SetVec(0, x)
	k.state.SetVec(1, y)
	k.state.SetVec(2, 0)
	k.state.SetVec(3, 0)
	k.covariance.SetVec(0, 1.0)
	k.covariance.SetVec(1, 1.0)
	k.covariance.SetVec(2, 1.0)
	k.covariance.SetVec(3, 1.0)
	k.initialized = true
}

// Predict propagates the mean by velocity over dt seconds and inflates the
// diagonal covariance by Q*dt^2.
func (k *Kalman2D) Predict(dt float64) {
	if !k.initialized {
		return
	}
	x, y := k.state.AtVec(0), k.state.AtVec(1)
	vx, vy := k.state.AtVec(2), k.state.AtVec(3)

	k.state.SetVec(0, x+vx*dt)
	k.state.SetVec(1, y+vy*dt)

	q := k.cfg.ProcessNoise * dt * dt
	k.covariance.SetVec(0, k.covariance.AtVec(0)+q)
	k.covariance.SetVec(1, k.covariance.AtVec(1)+q)
	k.covariance.SetVec(2, k.covariance.AtVec(2)+q)
	k.covariance.SetVec(3, k.covariance.AtVec(3)+q)
}

// Update corrects the filter with a new (measX, measY) measurement. dt is
// the true elapsed time since the last update if known; pass 0 to fall
// back to the configured base rate, matching the spec's "falling back to
// the configured base rate when no true dt is known". Returns true when
// the post-update state was non-finite and the filter was reinitialized
// from the raw measurement (the spec's FilterDegenerate recovery path).
func (k *Kalman2D) Update(measX, measY, dt float64) bool {
	if !k.initialized {
		k.Initialize(measX, measY)
		return false
	}
	if dt <= 0 {
		dt = 1.0 / k.cfg.BaseRateHz
	}

	px, py := k.covariance.AtVec(0), k.covariance.AtVec(1)
	r := k.cfg.MeasurementNoise

	kx := px / (px + r)
	ky := py / (py + r)

	innovX := measX - k.state.AtVec(0)
	innovY := measY - k.state.AtVec(1)

	k.state.SetVec(0, k.state.AtVec(0)+kx*innovX)
	k.state.SetVec(1, k.state.AtVec(1)+ky*innovY)
	k.state.SetVec(2, innovX/dt)
	k.state.SetVec(3, innovY/dt)

	k.covariance.SetVec(0, px*(1.0-kx))
	k.covariance.SetVec(1, py*(1.0-ky))

	if k.degenerate() {
		k.Initialize(measX, measY)
		return true
	}
	return false
}

// degenerate reports whether the state contains NaN or Inf, the condition
// the spec calls FilterDegenerate: caller reinitializes from the raw
// measurement without losing the track.
func (k *Kalman2D) degenerate() bool {
	for i := 0; i < 4; i++ {
		v := k.state.AtVec(i)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// State returns the current (x, y, vx, vy) estimate.
func (k *Kalman2D) State() (x, y, vx, vy float64) {
	return k.state.AtVec(0), k.state.AtVec(1), k.state.AtVec(2), k.state.AtVec(3)
}

// Initialized reports whether the filter has ever been seeded.
func (k *Kalman2D) Initialized() bool { return k.initialized }

// AlphaBeta is a cheaper scalar-channel smoother, the spec's alternative
// to the Kalman filter, with defaults alpha=0.85, beta=0.005.
type AlphaBeta struct {
	alpha, beta float64
	value       float64
	velocity    float64
	initialized bool
}

// NewAlphaBeta constructs an alpha-beta filter with the given gains.
func NewAlphaBeta(alpha, beta float64) *AlphaBeta {
	if alpha <= 0 {
		alpha = 0.85
	}
	if beta <= 0 {
		beta = 0.005
	}
	return &AlphaBeta{alpha: alpha, beta: beta}
}

// Initialize seeds the filter with an initial scalar value.
func (f *AlphaBeta) Initialize(value float64) {
	f.value = value
	f.velocity = 0
	f.initialized = true
}

// Update corrects the estimate given a new measurement over dt seconds.
func (f *AlphaBeta) Update(measurement, dt float64) {
	if !f.initialized {
		f.Initialize(measurement)
		return
	}
	if dt <= 0 {
		dt = 0.1
	}
	predicted := f.value + f.velocity*dt
	residual := measurement - predicted

	f.value = predicted + f.alpha*residual
	f.velocity = f.velocity + (f.beta/dt)*residual
}

// Value returns the current smoothed estimate and its rate of change.
func (f *AlphaBeta) Value() (value, velocity float64) {
	return f.value, f.velocity
}
