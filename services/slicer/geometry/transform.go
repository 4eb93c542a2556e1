// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geometry

import (
	"fmt"
	"math"

	"cogentcore.org/core/math32"
)

// Axis selects one of the three coordinate axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// String returns the lowercase axis letter.
func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

// Epsilon is the tolerance used when comparing transform components.
const Epsilon = 1e-4

// Transformation is an affine placement built from offset, Euler rotation,
// non-uniform scale and per-axis mirror.
//
// Description:
//
//	The composed matrix is T(offset) * Rz * Ry * Rx * S(scale * mirror), so a
//	point is scaled and mirrored first, then rotated about X, Y and Z in that
//	order, then translated. Setters normalise their input: rotation angles
//	wrap into [0, 2π), scale is stored as absolute values and mirror as ±1.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Values are cheap to copy.
type Transformation struct {
	offset   math32.Vector3
	rotation math32.Vector3
	scale    math32.Vector3
	mirror   math32.Vector3
}

// NewTransformation returns the identity transformation.
func NewTransformation() Transformation {
	return Transformation{
		scale:  math32.Vec3(1, 1, 1),
		mirror: math32.Vec3(1, 1, 1),
	}
}

// Offset returns the translation.
func (t Transformation) Offset() math32.Vector3 { return t.offset }

// Rotation returns the Euler angles in radians.
func (t Transformation) Rotation() math32.Vector3 { return t.rotation }

// ScalingFactor returns the per-axis scale.
func (t Transformation) ScalingFactor() math32.Vector3 { return t.scale }

// Mirror returns the per-axis mirror signs.
func (t Transformation) Mirror() math32.Vector3 { return t.mirror }

// SetOffset replaces the translation.
func (t *Transformation) SetOffset(v math32.Vector3) { t.offset = v }

// SetOffsetAxis replaces one translation component.
func (t *Transformation) SetOffsetAxis(axis Axis, v float32) {
	setDim(&t.offset, axis, v)
}

// SetRotation replaces all three Euler angles.
func (t *Transformation) SetRotation(r math32.Vector3) {
	t.rotation = math32.Vec3(wrapAngle(r.X), wrapAngle(r.Y), wrapAngle(r.Z))
}

// SetRotationAxis replaces one Euler angle.
func (t *Transformation) SetRotationAxis(axis Axis, angle float32) {
	setDim(&t.rotation, axis, wrapAngle(angle))
}

// SetScalingFactor replaces the scale. Negative values are stored as their
// magnitude; use SetMirror for reflections.
func (t *Transformation) SetScalingFactor(s math32.Vector3) {
	t.scale = math32.Vec3(math32.Abs(s.X), math32.Abs(s.Y), math32.Abs(s.Z))
}

// SetScalingFactorAxis replaces one scale component.
func (t *Transformation) SetScalingFactorAxis(axis Axis, s float32) {
	setDim(&t.scale, axis, math32.Abs(s))
}

// SetMirror replaces the mirror signs. Zero components count as +1.
func (t *Transformation) SetMirror(m math32.Vector3) {
	t.mirror = math32.Vec3(mirrorSign(m.X), mirrorSign(m.Y), mirrorSign(m.Z))
}

// SetMirrorAxis replaces one mirror sign.
func (t *Transformation) SetMirrorAxis(axis Axis, m float32) {
	setDim(&t.mirror, axis, mirrorSign(m))
}

// IsLeftHanded reports whether the transformation flips orientation.
func (t Transformation) IsLeftHanded() bool {
	return t.mirror.X*t.mirror.Y*t.mirror.Z < 0
}

// Matrix composes the transformation, optionally dropping parts of it.
func (t Transformation) Matrix(dontTranslate, dontRotate, dontScale, dontMirror bool) math32.Matrix4 {
	rot := t.rotation
	if dontRotate {
		rot = math32.Vector3{}
	}
	r := rotationMatrix(rot)

	s := [3]float64{1, 1, 1}
	if !dontScale {
		s = [3]float64{float64(t.scale.X), float64(t.scale.Y), float64(t.scale.Z)}
	}
	if !dontMirror {
		s[0] *= float64(t.mirror.X)
		s[1] *= float64(t.mirror.Y)
		s[2] *= float64(t.mirror.Z)
	}

	var off math32.Vector3
	if !dontTranslate {
		off = t.offset
	}
	return affine(r, s, off)
}

// FullMatrix is Matrix with nothing dropped.
func (t Transformation) FullMatrix() math32.Matrix4 {
	return t.Matrix(false, false, false, false)
}

// Equal compares two transformations component-wise within Epsilon.
func (t Transformation) Equal(o Transformation) bool {
	return vecNear(t.offset, o.offset) && vecNear(t.rotation, o.rotation) &&
		vecNear(t.scale, o.scale) && vecNear(t.mirror, o.mirror)
}

// String renders the transformation for logs.
func (t Transformation) String() string {
	return fmt.Sprintf("offset=%v rot=%v scale=%v mirror=%v", t.offset, t.rotation, t.scale, t.mirror)
}

// TransformationFromMatrix decomposes an affine matrix.
//
// Description:
//
//	The translation is read from the last column, the per-axis scale from the
//	column lengths, and a reflection (negative determinant) is reported as a
//	mirror about X. The remaining orthonormal part is converted to Z-Y-X
//	Euler angles. Shear cannot be represented and is lost.
func TransformationFromMatrix(m math32.Matrix4) Transformation {
	var cols [3][3]float64
	var s [3]float64
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			cols[j][i] = float64(m[j*4+i])
		}
		s[j] = math.Sqrt(cols[j][0]*cols[j][0] + cols[j][1]*cols[j][1] + cols[j][2]*cols[j][2])
	}

	t := NewTransformation()
	t.offset = math32.Vec3(m[12], m[13], m[14])

	mirrorX := float64(1)
	if Determinant(m) < 0 {
		mirrorX = -1
		t.mirror.X = -1
	}

	var r [3][3]float64
	for j := 0; j < 3; j++ {
		d := s[j]
		if d == 0 {
			d = 1
		}
		if j == 0 {
			d *= mirrorX
		}
		for i := 0; i < 3; i++ {
			r[i][j] = cols[j][i] / d
		}
	}

	t.scale = math32.Vec3(float32(s[0]), float32(s[1]), float32(s[2]))
	t.SetRotation(EulerFromRotation(r))
	return t
}

// EulerFromRotation extracts Z-Y-X Euler angles from a row-major rotation.
func EulerFromRotation(r [3][3]float64) math32.Vector3 {
	cy := math.Sqrt(r[0][0]*r[0][0] + r[1][0]*r[1][0])
	var x, y, z float64
	if cy > 1e-6 {
		x = math.Atan2(r[2][1], r[2][2])
		y = math.Atan2(-r[2][0], cy)
		z = math.Atan2(r[1][0], r[0][0])
	} else {
		x = math.Atan2(-r[1][2], r[1][1])
		y = math.Atan2(-r[2][0], cy)
	}
	return math32.Vec3(float32(x), float32(y), float32(z))
}

// RotationMatrix returns Rz * Ry * Rx as a row-major 3x3 matrix.
func RotationMatrix(rot math32.Vector3) [3][3]float64 {
	return rotationMatrix(rot)
}

func rotationMatrix(rot math32.Vector3) [3][3]float64 {
	sx, cx := math.Sincos(float64(rot.X))
	sy, cy := math.Sincos(float64(rot.Y))
	sz, cz := math.Sincos(float64(rot.Z))
	return [3][3]float64{
		{cz * cy, cz*sy*sx - sz*cx, cz*sy*cx + sz*sx},
		{sz * cy, sz*sy*sx + cz*cx, sz*sy*cx - cz*sx},
		{-sy, cy * sx, cy * cx},
	}
}

// AxisRotation returns the row-major rotation by angle about axis.
func AxisRotation(axis Axis, angle float64) [3][3]float64 {
	s, c := math.Sincos(angle)
	switch axis {
	case AxisX:
		return [3][3]float64{{1, 0, 0}, {0, c, -s}, {0, s, c}}
	case AxisY:
		return [3][3]float64{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
	default:
		return [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
	}
}

// MulRotation returns a * b.
func MulRotation(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = a[i][0]*b[0][j] + a[i][1]*b[1][j] + a[i][2]*b[2][j]
		}
	}
	return out
}

// affine packs row-major r, per-column scale s and offset into a
// column-major matrix.
func affine(r [3][3]float64, s [3]float64, off math32.Vector3) math32.Matrix4 {
	var m math32.Matrix4
	for j := 0; j < 3; j++ {
		for i := 0; i < 3; i++ {
			m[j*4+i] = float32(r[i][j] * s[j])
		}
	}
	m[12], m[13], m[14], m[15] = off.X, off.Y, off.Z, 1
	return m
}

// Identity returns the identity matrix.
func Identity() math32.Matrix4 {
	return math32.Matrix4{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
}

// TranslationMatrix returns a pure translation.
func TranslationMatrix(v math32.Vector3) math32.Matrix4 {
	m := Identity()
	m[12], m[13], m[14] = v.X, v.Y, v.Z
	return m
}

// MulMatrix returns a * b for column-major affine matrices.
func MulMatrix(a, b math32.Matrix4) math32.Matrix4 {
	var out math32.Matrix4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += float64(a[k*4+row]) * float64(b[col*4+k])
			}
			out[col*4+row] = float32(sum)
		}
	}
	return out
}

// Determinant returns the determinant of the linear 3x3 part.
func Determinant(m math32.Matrix4) float64 {
	a := func(i, j int) float64 { return float64(m[j*4+i]) }
	return a(0, 0)*(a(1, 1)*a(2, 2)-a(1, 2)*a(2, 1)) -
		a(0, 1)*(a(1, 0)*a(2, 2)-a(1, 2)*a(2, 0)) +
		a(0, 2)*(a(1, 0)*a(2, 1)-a(1, 1)*a(2, 0))
}

// TransformPoint applies m to a point.
func TransformPoint(m *math32.Matrix4, p math32.Vector3) math32.Vector3 {
	r := math32.Vector4FromVector3(p, 1).MulMatrix4(m)
	return math32.Vec3(r.X, r.Y, r.Z)
}

// TransformVector applies the linear part of m to a direction.
func TransformVector(m *math32.Matrix4, v math32.Vector3) math32.Vector3 {
	r := math32.Vector4FromVector3(v, 0).MulMatrix4(m)
	return math32.Vec3(r.X, r.Y, r.Z)
}

// MatrixNear compares two matrices element-wise within Epsilon.
func MatrixNear(a, b math32.Matrix4) bool {
	for i := range a {
		if math32.Abs(a[i]-b[i]) > Epsilon {
			return false
		}
	}
	return true
}

func wrapAngle(a float32) float32 {
	const twoPi = 2 * math.Pi
	w := math.Mod(float64(a), twoPi)
	if w < 0 {
		w += twoPi
	}
	if w >= twoPi-1e-7 {
		w = 0
	}
	return float32(w)
}

func mirrorSign(v float32) float32 {
	if v < 0 {
		return -1
	}
	return 1
}

func setDim(v *math32.Vector3, axis Axis, val float32) {
	switch axis {
	case AxisX:
		v.X = val
	case AxisY:
		v.Y = val
	default:
		v.Z = val
	}
}

// Dim reads one component of v.
func Dim(v math32.Vector3, axis Axis) float32 {
	switch axis {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func vecNear(a, b math32.Vector3) bool {
	return math32.Abs(a.X-b.X) <= Epsilon && math32.Abs(a.Y-b.Y) <= Epsilon && math32.Abs(a.Z-b.Z) <= Epsilon
}
