package pose

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/Tutortoise/ar-wheel-placement/models"
)

// degenerateEpsilon bounds the length of a difference or cross product below
// which the axes are treated as coincident or collinear.
const degenerateEpsilon = 1e-6

// OrientationFromHits builds the orientation spanned by three hit points.
// ok is false and the identity is returned when the points do not span a
// plane; up is the surface normal estimate and is zero in that case.
func OrientationFromHits(p0, p1, p2 r3.Vector) (q models.Quaternion, up r3.Vector, ok bool) {
	toTop := p1.Sub(p0)
	toRight := p2.Sub(p0)
	if toTop.Norm() < degenerateEpsilon || toRight.Norm() < degenerateEpsilon {
		return models.IdentityQuaternion, r3.Vector{}, false
	}

	forward := toTop.Normalize()
	right := toRight.Normalize()
	normal := forward.Cross(right)
	if normal.Norm() < degenerateEpsilon {
		return models.IdentityQuaternion, r3.Vector{}, false
	}
	up = normal.Normalize()

	q, ok = LookRotation(forward, up)
	if !ok {
		return models.IdentityQuaternion, r3.Vector{}, false
	}
	return q, up, true
}

// LookRotation returns the rotation whose local +Z maps to forward and whose
// local +Y is as close to up as possible.
func LookRotation(forward, up r3.Vector) (models.Quaternion, bool) {
	if forward.Norm() < degenerateEpsilon {
		return models.IdentityQuaternion, false
	}
	z := forward.Normalize()
	x := up.Cross(z)
	if x.Norm() < degenerateEpsilon {
		return models.IdentityQuaternion, false
	}
	x = x.Normalize()
	y := z.Cross(x)

	q := QuaternionFromAxes(x, y, z)
	if !q.IsFinite() {
		return models.IdentityQuaternion, false
	}
	return q, true
}

// QuaternionFromAxes converts the rotation matrix with columns x, y, z.
// The axes must be orthonormal and right-handed.
func QuaternionFromAxes(x, y, z r3.Vector) models.Quaternion {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q models.Quaternion
	trace := m00 + m11 + m22
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = models.Quaternion{W: 0.25 * s, X: (m21 - m12) / s, Y: (m02 - m20) / s, Z: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = models.Quaternion{W: (m21 - m12) / s, X: 0.25 * s, Y: (m01 + m10) / s, Z: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = models.Quaternion{W: (m02 - m20) / s, X: (m01 + m10) / s, Y: 0.25 * s, Z: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = models.Quaternion{W: (m10 - m01) / s, X: (m02 + m20) / s, Y: (m12 + m21) / s, Z: 0.25 * s}
	}
	return q.Normalize()
}
