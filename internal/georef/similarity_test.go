package georef

import (
	"errors"
	"math"
	"testing"
)

// axisAngle returns the rotation by angle radians about axis (Rodrigues).
func axisAngle(axis Vec3, angle float64) Mat3 {
	k := axis.Scale(1 / axis.Norm())
	c, s := math.Cos(angle), math.Sin(angle)
	v := 1 - c
	return Mat3{
		{c + k[0]*k[0]*v, k[0]*k[1]*v - k[2]*s, k[0]*k[2]*v + k[1]*s},
		{k[1]*k[0]*v + k[2]*s, c + k[1]*k[1]*v, k[1]*k[2]*v - k[0]*s},
		{k[2]*k[0]*v - k[1]*s, k[2]*k[1]*v + k[0]*s, c + k[2]*k[2]*v},
	}
}

func TestNewSimilarityTransform_Valid(t *testing.T) {
	st, err := NewSimilarityTransform(2.5,
		[][]float64{{0, -1, 0}, {1, 0, 0}, {0, 0, 1}},
		[]float64{10, 20, 30})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := st.Apply(Vec3{1, 0, 0})
	want := Vec3{10, 22.5, 30}
	if got.Sub(want).Norm() > 1e-12 {
		t.Errorf("Apply((1,0,0)) = %v, want %v", got, want)
	}
}

func TestNewSimilarityTransform_KeepsMatrixVerbatim(t *testing.T) {
	// Not orthonormal: accepted as supplied.
	r := [][]float64{{1, 0.1, 0}, {0, 1, 0}, {0, 0, 1}}
	st, err := NewSimilarityTransform(1, r, []float64{0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Rotation[0][1] != 0.1 {
		t.Errorf("Rotation[0][1] = %v, want 0.1", st.Rotation[0][1])
	}
}

func TestNewSimilarityTransform_Invalid(t *testing.T) {
	id := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	zero := []float64{0, 0, 0}

	tests := []struct {
		name  string
		scale float64
		r     [][]float64
		t     []float64
	}{
		{"zero scale", 0, id, zero},
		{"negative scale", -1, id, zero},
		{"NaN scale", math.NaN(), id, zero},
		{"infinite scale", math.Inf(1), id, zero},
		{"2x3 rotation", 1, [][]float64{{1, 0, 0}, {0, 1, 0}}, zero},
		{"3x2 rotation", 1, [][]float64{{1, 0}, {0, 1}, {0, 0}}, zero},
		{"4x4 rotation", 1, [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}, zero},
		{"short translation", 1, id, []float64{0, 0}},
		{"long translation", 1, id, []float64{0, 0, 0, 0}},
		{"NaN rotation", 1, [][]float64{{math.NaN(), 0, 0}, {0, 1, 0}, {0, 0, 1}}, zero},
		{"Inf translation", 1, id, []float64{0, math.Inf(-1), 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSimilarityTransform(tt.scale, tt.r, tt.t)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestSimilarityTransform_InvertRoundTrip(t *testing.T) {
	st := SimilarityTransform{
		Scale:       3.75,
		Rotation:    axisAngle(Vec3{1, 2, 3}, 0.8),
		Translation: Vec3{-2690000, -4300000, 3860000},
	}
	inv := st.Invert()

	for _, p := range []Vec3{{0, 0, 0}, {1, 2, 3}, {-40, 12.5, 7}, {1e3, -1e3, 5e2}} {
		back := inv.Apply(st.Apply(p))
		if d := back.Sub(p).Norm(); d > 1e-6*math.Max(1, p.Norm()) {
			t.Errorf("inverse round trip of %v = %v (off by %.3g)", p, back, d)
		}
	}
}

func TestSimilarityTransform_Compose(t *testing.T) {
	a := SimilarityTransform{Scale: 2, Rotation: axisAngle(Vec3{0, 0, 1}, math.Pi/2), Translation: Vec3{1, 0, 0}}
	b := SimilarityTransform{Scale: 0.5, Rotation: axisAngle(Vec3{1, 0, 0}, 0.3), Translation: Vec3{0, 5, -1}}
	ab := a.Compose(b)

	p := Vec3{3, -1, 2}
	want := b.Apply(a.Apply(p))
	if d := ab.Apply(p).Sub(want).Norm(); d > 1e-12 {
		t.Errorf("Compose apply = %v, want %v", ab.Apply(p), want)
	}

	if id := a.Compose(a.Invert()); id.Apply(p).Sub(p).Norm() > 1e-12 {
		t.Errorf("a then a⁻¹ is not identity: %v", id)
	}
}

func TestSimilarityTransform_MatrixLayout(t *testing.T) {
	st := SimilarityTransform{Scale: 2, Rotation: Identity3(), Translation: Vec3{7, 8, 9}}
	m := st.Matrix()

	want := Matrix4{
		{2, 0, 0, 7},
		{0, 2, 0, 8},
		{0, 0, 2, 9},
		{0, 0, 0, 1},
	}
	if m != want {
		t.Errorf("Matrix() = %v, want %v", m, want)
	}
}

func TestIdentityTransform_IsProper(t *testing.T) {
	if !IdentityTransform().IsProperRotation(1e-15) {
		t.Error("identity should be a proper rotation")
	}
	reflect := SimilarityTransform{Scale: 1, Rotation: Mat3{{-1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
	if reflect.IsProperRotation(1e-9) {
		t.Error("reflection reported as proper rotation")
	}
}
