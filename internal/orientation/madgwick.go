package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/sweeney/wrist-pager/internal/logic"
)

const degToRad = math.Pi / 180

// DefaultBeta is the filter gain used on the device.
const DefaultBeta = 0.1

// gravity is the earth-frame reference for the accelerometer.
var gravity = r3.Vec{Z: 1}

// Madgwick is a gradient-descent orientation filter over gyroscope,
// accelerometer and (optionally) magnetometer readings. The state q rotates
// the sensor frame into the earth frame.
type Madgwick struct {
	beta float64
	dt   float64
	q    quat.Number
}

// NewMadgwick creates a filter for readings arriving at sampleFreq Hz.
func NewMadgwick(sampleFreq, beta float64) *Madgwick {
	return &Madgwick{
		beta: beta,
		dt:   1 / sampleFreq,
		q:    quat.Number{Real: 1},
	}
}

// Update advances the filter by one reading. Without a magnetometer
// reading the yaw is integrated from the gyroscope only.
func (f *Madgwick) Update(r Raw) {
	omega := r3.Scale(degToRad, r3.Vec(r.Gyro))
	qDot := quat.Scale(0.5, quat.Mul(f.q, pure(omega)))

	if !r.Accel.IsZero() {
		grad := f.gradient(gravity, r3.Unit(r3.Vec(r.Accel)))
		if !r.Mag.IsZero() {
			m := r3.Unit(r3.Vec(r.Mag))
			h := r3.Rotation(f.q).Rotate(m)
			ref := r3.Vec{X: math.Hypot(h.X, h.Y), Z: h.Z}
			grad = quat.Add(grad, f.gradient(ref, m))
		}
		if n := quat.Abs(grad); n > 0 {
			qDot = quat.Sub(qDot, quat.Scale(f.beta/n, grad))
		}
	}

	q := quat.Add(f.q, quat.Scale(f.dt, qDot))
	f.q = quat.Scale(1/quat.Abs(q), q)
}

// gradient is the gradient over q of ½|q*⊗d⊗q − s|², where d is an
// earth-frame reference and s its measurement in the sensor frame.
func (f *Madgwick) gradient(d, s r3.Vec) quat.Number {
	e := r3.Sub(r3.Rotation(quat.Conj(f.q)).Rotate(d), s)
	return quat.Scale(-2, quat.Mul(quat.Mul(pure(d), f.q), pure(e)))
}

// Sample returns the current orientation. Yaw is shifted into [0,360].
func (f *Madgwick) Sample() logic.Sample {
	q0, q1, q2, q3 := f.q.Real, f.q.Imag, f.q.Jmag, f.q.Kmag
	roll := math.Atan2(q0*q1+q2*q3, 0.5-q1*q1-q2*q2)
	pitch := math.Asin(clamp(-2*(q1*q3-q0*q2), -1, 1))
	yaw := math.Atan2(q1*q2+q0*q3, 0.5-q2*q2-q3*q3)
	return logic.Sample{
		Roll:  roll / degToRad,
		Pitch: pitch / degToRad,
		Yaw:   yaw/degToRad + 180,
	}
}

func pure(v r3.Vec) quat.Number {
	return quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
