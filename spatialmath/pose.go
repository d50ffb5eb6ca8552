// Package spatialmath defines the rigid-body math used by the odometry pipeline.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// If two unit quaternions are closer than this, slerp falls back to linear
// interpolation to avoid dividing by a vanishing sine.
const slerpEpsilon = 1e-8

// Pose is a rigid transform: a unit rotation quaternion plus a translation.
// The zero value is not a valid pose; use NewZeroPose for identity.
type Pose struct {
	R quat.Number
	T r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{R: quat.Number{Real: 1}}
}

// NewPose returns a pose from a rotation quaternion and a translation.
func NewPose(r quat.Number, t r3.Vector) Pose {
	return Pose{R: r, T: t}
}

// NewPoseFromAxisAngle returns a pure rotation about the given (unit) axis.
func NewPoseFromAxisAngle(axis r3.Vector, theta float64) Pose {
	s, c := math.Sincos(theta / 2)
	return Pose{R: quat.Number{Real: c, Imag: s * axis.X, Jmag: s * axis.Y, Kmag: s * axis.Z}}
}

// NewPoseFromTwist builds a pose from a small-motion increment: v is the
// translation and w an axis-angle rotation vector. This is the retraction
// applied by the scan matcher after each linear solve; for small w it agrees
// with the SE(3) exponential to first order.
func NewPoseFromTwist(v, w r3.Vector) Pose {
	theta := w.Norm()
	if theta < slerpEpsilon {
		return Pose{R: quat.Number{Real: 1, Imag: w.X / 2, Jmag: w.Y / 2, Kmag: w.Z / 2}, T: v}.Normalize()
	}
	return Pose{R: NewPoseFromAxisAngle(w.Mul(1/theta), theta).R, T: v}
}

// Compose returns the pose equivalent to applying b first and then a.
func Compose(a, b Pose) Pose {
	return Pose{
		R: quat.Mul(a.R, b.R),
		T: a.TransformPoint(b.T),
	}
}

// PoseBetween returns the transform c such that Compose(a, c) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(a.Invert(), b)
}

// Invert returns the inverse transform.
func (p Pose) Invert() Pose {
	rInv := quat.Conj(p.R)
	return Pose{R: rInv, T: rotate(rInv, p.T).Mul(-1)}
}

// TransformPoint applies the pose to a point.
func (p Pose) TransformPoint(pt r3.Vector) r3.Vector {
	return rotate(p.R, pt).Add(p.T)
}

// Theta returns the rotation angle in radians, in [0, pi].
func (p Pose) Theta() float64 {
	vecNorm := math.Sqrt(p.R.Imag*p.R.Imag + p.R.Jmag*p.R.Jmag + p.R.Kmag*p.R.Kmag)
	return 2 * math.Atan2(vecNorm, math.Abs(p.R.Real))
}

// Normalize rescales the rotation back to a unit quaternion. Registration
// applies many small increments per frame; without this the rotation drifts
// off the unit sphere.
func (p Pose) Normalize() Pose {
	n := quat.Abs(p.R)
	if n == 0 {
		return Pose{R: quat.Number{Real: 1}, T: p.T}
	}
	return Pose{R: quat.Scale(1/n, p.R), T: p.T}
}

// Matrix returns the pose as a 4x4 homogeneous transform.
func (p Pose) Matrix() *mat.Dense {
	w, x, y, z := p.R.Real, p.R.Imag, p.R.Jmag, p.R.Kmag
	return mat.NewDense(4, 4, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y), p.T.X,
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x), p.T.Y,
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y), p.T.Z,
		0, 0, 0, 1,
	})
}

// Interpolate returns the pose a fraction `by` of the way from a to b:
// spherical interpolation for the rotation, linear for the translation.
// Values of `by` outside [0, 1] extrapolate.
func Interpolate(a, b Pose, by float64) Pose {
	return Pose{
		R: slerp(a.R, b.R, by),
		T: a.T.Add(b.T.Sub(a.T).Mul(by)),
	}
}

// AlmostEqual reports whether two poses agree within epsilon in both the
// rotation angle between them and the translation distance.
func AlmostEqual(a, b Pose, epsilon float64) bool {
	return PoseBetween(a, b).Theta() <= epsilon && a.T.Sub(b.T).Norm() <= epsilon
}

// rotate applies a unit quaternion to a vector, q v q*.
func rotate(q quat.Number, v r3.Vector) r3.Vector {
	qv := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, qv), quat.Conj(q))
	return r3.Vector{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

func slerp(a, b quat.Number, by float64) quat.Number {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	// take the short way around
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 1-slerpEpsilon {
		q := quat.Add(a, quat.Scale(by, quat.Sub(b, a)))
		n := quat.Abs(q)
		if n == 0 {
			return quat.Number{Real: 1}
		}
		return quat.Scale(1/n, q)
	}
	omega := math.Acos(dot)
	sinOmega := math.Sin(omega)
	return quat.Add(
		quat.Scale(math.Sin((1-by)*omega)/sinOmega, a),
		quat.Scale(math.Sin(by*omega)/sinOmega, b),
	)
}
