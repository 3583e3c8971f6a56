package transform

import "math"

// Vec3 is a 3-component float vector.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a rotation quaternion. Composition helpers assume it is unit
// length; normalize authored values with Normalize.
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity returns the identity rotation.
func QuatIdentity() Quat {
	return Quat{W: 1}
}

// QuatAxisAngle builds a quaternion rotating by angle radians around axis.
// The axis does not need to be normalized.
func QuatAxisAngle(axis Vec3, angle float32) Quat {
	length := float32(math.Sqrt(float64(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)))
	if length == 0 {
		return QuatIdentity()
	}
	sin, cos := math.Sincos(float64(angle) / 2)
	s := float32(sin) / length
	return Quat{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: float32(cos),
	}
}

// Normalize returns the unit quaternion with the same orientation.
func (q Quat) Normalize() Quat {
	length := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if length == 0 {
		return QuatIdentity()
	}
	inv := 1 / length
	return Quat{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}

// Mat4 is a 4x4 matrix in column-major order (M[col*4+row]), composed with
// column vectors: world = M · local.
type Mat4 struct {
	M [16]float32
}

// Mat4Identity returns the identity matrix.
func Mat4Identity() Mat4 {
	return Mat4{M: [16]float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// Mat4Translate returns a pure translation matrix.
func Mat4Translate(t Vec3) Mat4 {
	m := Mat4Identity()
	m.M[12] = t.X
	m.M[13] = t.Y
	m.M[14] = t.Z
	return m
}

// Mat4Scale returns a pure axis-aligned scale matrix.
func Mat4Scale(s Vec3) Mat4 {
	var m Mat4
	m.M[0] = s.X
	m.M[5] = s.Y
	m.M[10] = s.Z
	m.M[15] = 1
	return m
}

// Mat4Rotate returns the rotation matrix of a unit quaternion.
func Mat4Rotate(q Quat) Mat4 {
	var m Mat4
	fillRotation(&m, q)
	m.M[15] = 1
	return m
}

// fillRotation writes the 3x3 rotation block of a unit quaternion.
func fillRotation(m *Mat4, q Quat) {
	x2, y2, z2 := q.X+q.X, q.Y+q.Y, q.Z+q.Z
	xx, yy, zz := q.X*x2, q.Y*y2, q.Z*z2
	xy, xz, yz := q.X*y2, q.X*z2, q.Y*z2
	wx, wy, wz := q.W*x2, q.W*y2, q.W*z2

	m.M[0] = 1 - (yy + zz)
	m.M[1] = xy + wz
	m.M[2] = xz - wy

	m.M[4] = xy - wz
	m.M[5] = 1 - (xx + zz)
	m.M[6] = yz + wx

	m.M[8] = xz + wy
	m.M[9] = yz - wx
	m.M[10] = 1 - (xx + yy)
}

// Mul returns m · n.
func (m Mat4) Mul(n Mat4) Mat4 {
	var out Mat4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float32
			for k := 0; k < 4; k++ {
				sum += m.M[k*4+row] * n.M[col*4+k]
			}
			out.M[col*4+row] = sum
		}
	}
	return out
}

// Translation returns the translation column of the matrix.
func (m Mat4) Translation() Vec3 {
	return Vec3{X: m.M[12], Y: m.M[13], Z: m.M[14]}
}

// TransformPoint applies the matrix to a point (w = 1).
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		X: m.M[0]*p.X + m.M[4]*p.Y + m.M[8]*p.Z + m.M[12],
		Y: m.M[1]*p.X + m.M[5]*p.Y + m.M[9]*p.Z + m.M[13],
		Z: m.M[2]*p.X + m.M[6]*p.Y + m.M[10]*p.Z + m.M[14],
	}
}

// Compose builds the local matrix of whichever inputs are present:
// M = (R,T) · S, the rigid rotation/translation right-multiplied by a pure
// scale. Absent rotation is the identity, absent scale is unit, absent
// position is zero. Each present/absent combination has a closed-form fill
// so composing never pays for a generic matrix multiply.
func Compose(p *Position, r *Rotation, s *Scale) Mat4 {
	switch {
	case p == nil && r == nil && s == nil:
		return Mat4Identity()

	case p != nil && r == nil && s == nil:
		return Mat4Translate(p.Value)

	case p == nil && r != nil && s == nil:
		return Mat4Rotate(r.Value)

	case p == nil && r == nil && s != nil:
		return Mat4Scale(s.Value)

	case p != nil && r != nil && s == nil:
		m := Mat4Rotate(r.Value)
		m.M[12] = p.Value.X
		m.M[13] = p.Value.Y
		m.M[14] = p.Value.Z
		return m

	case p == nil && r != nil && s != nil:
		m := Mat4Rotate(r.Value)
		scaleColumns(&m, s.Value)
		return m

	case p != nil && r == nil && s != nil:
		m := Mat4Scale(s.Value)
		m.M[12] = p.Value.X
		m.M[13] = p.Value.Y
		m.M[14] = p.Value.Z
		return m

	default: // p != nil && r != nil && s != nil
		m := Mat4Rotate(r.Value)
		scaleColumns(&m, s.Value)
		m.M[12] = p.Value.X
		m.M[13] = p.Value.Y
		m.M[14] = p.Value.Z
		return m
	}
}

// scaleColumns right-multiplies the matrix by diag(s.X, s.Y, s.Z, 1) by
// scaling the three basis columns in place.
func scaleColumns(m *Mat4, s Vec3) {
	m.M[0] *= s.X
	m.M[1] *= s.X
	m.M[2] *= s.X

	m.M[4] *= s.Y
	m.M[5] *= s.Y
	m.M[6] *= s.Y

	m.M[8] *= s.Z
	m.M[9] *= s.Z
	m.M[10] *= s.Z
}
