package georef

import (
	"fmt"
	"math"
)

// SimilarityTransform maps p to Scale*Rotation*p + Translation.
//
// Rotation is expected to be a proper rotation when the transform comes from
// EstimateSimilarity or an ENU frame. Transforms loaded with
// NewSimilarityTransform keep the caller's matrix verbatim.
type SimilarityTransform struct {
	Scale       float64
	Rotation    Mat3
	Translation Vec3
}

// IdentityTransform returns the transform that leaves every point unchanged.
func IdentityTransform() SimilarityTransform {
	return SimilarityTransform{Scale: 1, Rotation: Identity3()}
}

// NewSimilarityTransform validates an explicitly supplied transform. r must be
// exactly 3x3 and t exactly length 3; scale must be finite and positive. The
// rotation is not re-orthonormalized.
func NewSimilarityTransform(scale float64, r [][]float64, t []float64) (SimilarityTransform, error) {
	if err := validateScale(scale); err != nil {
		return SimilarityTransform{}, err
	}
	if len(r) != 3 {
		return SimilarityTransform{}, fmt.Errorf("%w: rotation must be a 3x3 matrix, got %d rows", ErrValidation, len(r))
	}
	var rot Mat3
	for i, row := range r {
		if len(row) != 3 {
			return SimilarityTransform{}, fmt.Errorf("%w: rotation must be a 3x3 matrix, row %d has %d columns", ErrValidation, i, len(row))
		}
		copy(rot[i][:], row)
	}
	if len(t) != 3 {
		return SimilarityTransform{}, fmt.Errorf("%w: translation must be length 3, got %d", ErrValidation, len(t))
	}
	tr := Vec3{t[0], t[1], t[2]}

	st := SimilarityTransform{Scale: scale, Rotation: rot, Translation: tr}
	if err := st.Validate(); err != nil {
		return SimilarityTransform{}, err
	}
	return st, nil
}

// Validate checks that the scale is finite and positive and that rotation and
// translation hold only finite values.
func (t SimilarityTransform) Validate() error {
	if err := validateScale(t.Scale); err != nil {
		return err
	}
	if !t.Rotation.IsFinite() {
		return fmt.Errorf("%w: rotation has non-finite entries", ErrValidation)
	}
	if !t.Translation.IsFinite() {
		return fmt.Errorf("%w: translation has non-finite entries", ErrValidation)
	}
	return nil
}

// Apply transforms a single point.
func (t SimilarityTransform) Apply(p Vec3) Vec3 {
	return t.Rotation.MulVec(p).Scale(t.Scale).Add(t.Translation)
}

// Invert returns the inverse transform (1/s, Rᵀ, -Rᵀt/s). It assumes Rotation
// is orthonormal.
func (t SimilarityTransform) Invert() SimilarityTransform {
	rt := t.Rotation.Transpose()
	inv := 1 / t.Scale
	return SimilarityTransform{
		Scale:       inv,
		Rotation:    rt,
		Translation: rt.MulVec(t.Translation).Scale(-inv),
	}
}

// Compose returns the transform equivalent to applying t first and then next.
func (t SimilarityTransform) Compose(next SimilarityTransform) SimilarityTransform {
	return SimilarityTransform{
		Scale:       next.Scale * t.Scale,
		Rotation:    next.Rotation.Mul(t.Rotation),
		Translation: next.Rotation.MulVec(t.Translation).Scale(next.Scale).Add(next.Translation),
	}
}

// IsProperRotation reports whether Rotation is orthonormal with determinant +1
// within tol.
func (t SimilarityTransform) IsProperRotation(tol float64) bool {
	return t.Rotation.OrthonormalityError() <= tol && math.Abs(t.Rotation.Det()-1) <= tol
}

// Matrix returns the row-major homogeneous matrix [[s*R, t], [0, 1]].
func (t SimilarityTransform) Matrix() Matrix4 {
	sr := t.Rotation.ScaleBy(t.Scale)
	var m Matrix4
	for i := 0; i < 3; i++ {
		m[i][0], m[i][1], m[i][2] = sr[i][0], sr[i][1], sr[i][2]
		m[i][3] = t.Translation[i]
	}
	m[3][3] = 1
	return m
}

// String formats the transform for log lines.
func (t SimilarityTransform) String() string {
	r := t.Rotation
	return fmt.Sprintf("scale=%.9g R=[[%.9g %.9g %.9g] [%.9g %.9g %.9g] [%.9g %.9g %.9g]] t=[%.6f %.6f %.6f]",
		t.Scale,
		r[0][0], r[0][1], r[0][2],
		r[1][0], r[1][1], r[1][2],
		r[2][0], r[2][1], r[2][2],
		t.Translation[0], t.Translation[1], t.Translation[2])
}

func validateScale(s float64) error {
	if !isFinite(s) {
		return fmt.Errorf("%w: scale must be finite, got %v", ErrValidation, s)
	}
	if s <= 0 {
		return fmt.Errorf("%w: scale must be positive, got %v", ErrValidation, s)
	}
	return nil
}
