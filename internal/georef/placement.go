package georef

import (
	"fmt"
	"math"
)

// Matrix4 is a 4x4 homogeneous matrix stored row-major: m[row][col].
type Matrix4 [4][4]float64

// PlacementMatrix is the 16-value column-major serialisation of a Matrix4, the
// layout 3D Tiles and glTF expect in a `transform` field. Elements 0-2 are the
// first basis column, 12-14 the translation, and 3, 7, 11, 15 the bottom row.
type PlacementMatrix [16]float64

// minPlacementScale is the smallest basis-column norm Rescale accepts.
const minPlacementScale = 1e-12

// ColumnMajor flattens m column by column.
func (m Matrix4) ColumnMajor() PlacementMatrix {
	var out PlacementMatrix
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			out[col*4+row] = m[row][col]
		}
	}
	return out
}

// Matrix4 unflattens the column-major values into a row-major matrix.
func (p PlacementMatrix) Matrix4() Matrix4 {
	var m Matrix4
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			m[row][col] = p[col*4+row]
		}
	}
	return m
}

// Slice returns the values as a slice, convenient for JSON documents.
func (p PlacementMatrix) Slice() []float64 {
	out := make([]float64, 16)
	copy(out, p[:])
	return out
}

// Validate checks that every value is finite and the bottom row is [0 0 0 1].
func (p PlacementMatrix) Validate() error {
	for i, v := range p {
		if !isFinite(v) {
			return fmt.Errorf("%w: placement matrix element %d is not finite", ErrValidation, i)
		}
	}
	m := p.Matrix4()
	if m[3][0] != 0 || m[3][1] != 0 || m[3][2] != 0 || m[3][3] != 1 {
		return fmt.Errorf("%w: placement matrix bottom row must be [0 0 0 1], got %v", ErrValidation, m[3])
	}
	return nil
}

// Translation returns the origin column.
func (p PlacementMatrix) Translation() Vec3 {
	return Vec3{p[12], p[13], p[14]}
}

// Scale returns the Euclidean norm of the first basis column. For a matrix of
// the form [[s*R, t], [0, 1]] with orthonormal R this is s.
func (p PlacementMatrix) Scale() float64 {
	return Vec3{p[0], p[1], p[2]}.Norm()
}

// Decompose splits the matrix into scale, rotation and translation, taking
// the scale from the first basis column.
func (p PlacementMatrix) Decompose() (SimilarityTransform, error) {
	if err := p.Validate(); err != nil {
		return SimilarityTransform{}, err
	}
	s := p.Scale()
	if s < minPlacementScale {
		return SimilarityTransform{}, fmt.Errorf("%w: placement matrix basis is degenerate (scale %v)", ErrValidation, s)
	}
	m := p.Matrix4()
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[i][j] = m[i][j] / s
		}
	}
	return SimilarityTransform{Scale: s, Rotation: r, Translation: p.Translation()}, nil
}

// ParsePlacement validates a flat column-major matrix, as found in a
// tileset's transform field.
func ParsePlacement(values []float64) (PlacementMatrix, error) {
	var p PlacementMatrix
	if len(values) != 16 {
		return p, fmt.Errorf("%w: placement matrix must have 16 values, got %d", ErrValidation, len(values))
	}
	copy(p[:], values)
	if err := p.Validate(); err != nil {
		return PlacementMatrix{}, err
	}
	return p, nil
}

// PlacementFromSimilarity serialises t as a placement matrix.
func PlacementFromSimilarity(t SimilarityTransform) (PlacementMatrix, error) {
	if err := t.Validate(); err != nil {
		return PlacementMatrix{}, err
	}
	return t.Matrix().ColumnMajor(), nil
}

// BuildPlacement returns the matrix placing a local ENU model, scaled by
// scale, at ref: [[scale*R_enu→ecef, ecef(ref)], [0, 1]] in column-major order.
func BuildPlacement(ref GeodeticPoint, scale float64) (PlacementMatrix, error) {
	if err := validateScale(scale); err != nil {
		return PlacementMatrix{}, err
	}
	if !isFinite(ref.LatDeg) || !isFinite(ref.LonDeg) || !isFinite(ref.HeightM) {
		return PlacementMatrix{}, fmt.Errorf("%w: reference point must be finite, got %+v", ErrValidation, ref)
	}
	t := SimilarityTransform{
		Scale:       scale,
		Rotation:    ENUToECEFRotation(ref.LatDeg, ref.LonDeg),
		Translation: GeodeticToECEF(ref).Vec(),
	}
	return t.Matrix().ColumnMajor(), nil
}

// Rescale changes the uniform scale of a placement matrix to newScale. The
// upper-left 3x3 block is multiplied by newScale/currentScale where
// currentScale is the norm of the first basis column; the translation column
// and bottom row are left untouched.
func Rescale(p PlacementMatrix, newScale float64) (PlacementMatrix, error) {
	if err := validateScale(newScale); err != nil {
		return PlacementMatrix{}, err
	}
	if err := p.Validate(); err != nil {
		return PlacementMatrix{}, err
	}
	current := p.Scale()
	if current < minPlacementScale || math.IsInf(newScale/current, 0) {
		return PlacementMatrix{}, fmt.Errorf("%w: cannot rescale degenerate placement matrix (current scale %v)", ErrValidation, current)
	}

	factor := newScale / current
	m := p.Matrix4()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] *= factor
		}
	}
	return m.ColumnMajor(), nil
}
