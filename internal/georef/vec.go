package georef

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Vec3 is a 3D vector or point. It is stored as an array so components can be
// indexed and serialised as a JSON triple; arithmetic goes through r3.Vec.
type Vec3 [3]float64

// Mat3 is a 3x3 matrix stored row-major: m[row][col]. Products and the
// determinant are computed with r3.Mat.
type Mat3 [3][3]float64

// VecFromR3 converts an r3.Vec.
func VecFromR3(p r3.Vec) Vec3 {
	return Vec3{p.X, p.Y, p.Z}
}

// R3 returns v as an r3.Vec.
func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}
}

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return MatFromR3(r3.Eye())
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return VecFromR3(r3.Add(v.R3(), o.R3()))
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return VecFromR3(r3.Sub(v.R3(), o.R3()))
}

// Scale returns s*v.
func (v Vec3) Scale(s float64) Vec3 {
	return VecFromR3(r3.Scale(s, v.R3()))
}

// Dot returns the inner product of v and o.
func (v Vec3) Dot(o Vec3) float64 {
	return r3.Dot(v.R3(), o.R3())
}

// Norm returns the Euclidean length of v.
func (v Vec3) Norm() float64 {
	return r3.Norm(v.R3())
}

// IsFinite reports whether every component is neither NaN nor Inf.
func (v Vec3) IsFinite() bool {
	return isFinite(v[0]) && isFinite(v[1]) && isFinite(v[2])
}

// MatFromR3 copies an r3.Mat (or any 3x3 gonum matrix view of one).
func MatFromR3(a interface{ At(i, j int) float64 }) Mat3 {
	var m Mat3
	for i := range m {
		for j := range m[i] {
			m[i][j] = a.At(i, j)
		}
	}
	return m
}

// R3 returns a copy of m as an r3.Mat.
func (m Mat3) R3() *r3.Mat {
	return r3.NewMat([]float64{
		m[0][0], m[0][1], m[0][2],
		m[1][0], m[1][1], m[1][2],
		m[2][0], m[2][1], m[2][2],
	})
}

// MulVec returns m*v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return VecFromR3(m.R3().MulVec(v.R3()))
}

// Mul returns m*o.
func (m Mat3) Mul(o Mat3) Mat3 {
	var out r3.Mat
	out.Mul(m.R3(), o.R3())
	return MatFromR3(&out)
}

// Transpose returns the transpose of m.
func (m Mat3) Transpose() Mat3 {
	return MatFromR3(m.R3().T())
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m.R3().Det()
}

// Column returns column j of m.
func (m Mat3) Column(j int) Vec3 {
	return VecFromR3(m.R3().VecCol(j))
}

// ScaleBy returns s*m.
func (m Mat3) ScaleBy(s float64) Mat3 {
	var out r3.Mat
	out.Scale(s, m.R3())
	return MatFromR3(&out)
}

// IsFinite reports whether every entry of m is finite.
func (m Mat3) IsFinite() bool {
	for i := range m {
		if !(Vec3(m[i])).IsFinite() {
			return false
		}
	}
	return true
}

// OrthonormalityError returns the largest absolute entry of mᵀm - I.
func (m Mat3) OrthonormalityError() float64 {
	r := m.R3()
	var g r3.Mat
	g.Mul(r.T(), r)
	g.Sub(&g, r3.Eye())
	worst := 0.0
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			worst = math.Max(worst, math.Abs(g.At(i, j)))
		}
	}
	return worst
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
