package splat

import (
	"math"
	"testing"

	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/testutil"
)

var gaussianFields = []Field{
	{Name: "x", Type: TypeFloat},
	{Name: "y", Type: TypeFloat},
	{Name: "z", Type: TypeFloat},
	{Name: "scale_0", Type: TypeFloat},
	{Name: "scale_1", Type: TypeFloat},
	{Name: "scale_2", Type: TypeFloat},
	{Name: "radius", Type: TypeFloat},
	{Name: "opacity", Type: TypeFloat},
	{Name: "f_dc_0", Type: TypeFloat},
	{Name: "rot_0", Type: TypeFloat},
}

// newGaussianCloud fills every column with a distinct, deterministic pattern.
func newGaussianCloud(n int) *Cloud {
	c := NewCloud(gaussianFields, n)
	for fi := range c.Columns {
		for i := range c.Columns[fi] {
			c.Columns[fi][i] = float64(fi+1)*0.5 + float64(i)*0.25 - float64(i%3)
		}
	}
	return c
}

func rotationZ(deg float64) georef.Mat3 {
	r := deg * math.Pi / 180
	c, s := math.Cos(r), math.Sin(r)
	return georef.Mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

func TestClassifyField(t *testing.T) {
	tests := []struct {
		name string
		want FieldRole
	}{
		{"x", RolePosition},
		{"y", RolePosition},
		{"z", RolePosition},
		{"X", RoleOpaque},
		{"scale_0", RoleScaleLike},
		{"Scale_1", RoleScaleLike},
		{"SCALE", RoleScaleLike},
		{"radius", RoleScaleLike},
		{"Radius_mean", RoleScaleLike},
		{"opacity", RoleOpaque},
		{"f_dc_0", RoleOpaque},
		{"rot_0", RoleOpaque},
		{"nx", RoleOpaque},
		{"log_scale", RoleOpaque},
	}
	for _, tt := range tests {
		if got := ClassifyField(tt.name); got != tt.want {
			t.Errorf("ClassifyField(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestApplySimilarity_Identity(t *testing.T) {
	c := newGaussianCloud(7)
	out, err := ApplySimilarity(c, georef.IdentityTransform())
	testutil.AssertNoError(t, err)

	for fi, f := range c.Fields {
		testutil.AssertFloatsNear(t, f.Name, out.Columns[fi], c.Columns[fi], 0)
	}
}

func TestApplySimilarity_Selectivity(t *testing.T) {
	c := newGaussianCloud(5)
	st := georef.SimilarityTransform{Scale: 2, Rotation: georef.Identity3(), Translation: georef.Vec3{10, 20, 30}}

	out, err := ApplySimilarity(c, st)
	testutil.AssertNoError(t, err)

	if len(out.Fields) != len(c.Fields) || out.Len() != c.Len() {
		t.Fatalf("schema changed: %d fields x %d records, want %d x %d", len(out.Fields), out.Len(), len(c.Fields), c.Len())
	}
	for fi, f := range c.Fields {
		if out.Fields[fi] != f {
			t.Errorf("field %d = %+v, want %+v", fi, out.Fields[fi], f)
		}
		for i, v := range c.Columns[fi] {
			var want float64
			switch f.Name {
			case "x":
				want = 2*v + 10
			case "y":
				want = 2*v + 20
			case "z":
				want = 2*v + 30
			case "scale_0", "scale_1", "scale_2", "radius":
				want = 2 * v
			default:
				want = v
			}
			if got := out.Columns[fi][i]; math.Abs(got-want) > 1e-12 {
				t.Errorf("%s[%d] = %v, want %v", f.Name, i, got, want)
			}
		}
	}
}

func TestApplySimilarity_DoesNotMutateInput(t *testing.T) {
	c := newGaussianCloud(4)
	before := c.Clone()

	st := georef.SimilarityTransform{Scale: 3, Rotation: rotationZ(30), Translation: georef.Vec3{1, 1, 1}}
	if _, err := ApplySimilarity(c, st); err != nil {
		t.Fatalf("ApplySimilarity: %v", err)
	}
	for fi := range c.Columns {
		testutil.AssertFloatsNear(t, c.Fields[fi].Name, c.Columns[fi], before.Columns[fi], 0)
	}
}

func TestApplySimilarity_Invertible(t *testing.T) {
	c := newGaussianCloud(9)
	st := georef.SimilarityTransform{
		Scale:       12.5,
		Rotation:    georef.ENUToECEFRotation(37.7694, -122.4862),
		Translation: georef.Vec3{-2700000, -4260000, 3880000},
	}

	fwd, err := ApplySimilarity(c, st)
	testutil.AssertNoError(t, err)
	back, err := ApplySimilarity(fwd, st.Invert())
	testutil.AssertNoError(t, err)

	for fi, f := range c.Fields {
		tol := 1e-12
		if f.Role == RolePosition {
			tol = 1e-6
		}
		testutil.AssertFloatsNear(t, f.Name, back.Columns[fi], c.Columns[fi], tol)
	}
}

func TestApplySimilarity_PreservesExtraElements(t *testing.T) {
	c := newGaussianCloud(2)
	c.Comments = []string{"trained by splatfacto"}
	c.Extra = []Element{{
		Name:    "camera",
		Fields:  []Field{NewField("view_x", TypeFloat)},
		Columns: [][]float64{{4.5}},
	}}

	out, err := ApplySimilarity(c, georef.SimilarityTransform{Scale: 2, Rotation: georef.Identity3()})
	testutil.AssertNoError(t, err)

	if len(out.Extra) != 1 || out.Extra[0].Columns[0][0] != 4.5 {
		t.Errorf("extra element = %+v, want camera untouched", out.Extra)
	}
	if len(out.Comments) != 1 || out.Comments[0] != c.Comments[0] {
		t.Errorf("comments = %v, want %v", out.Comments, c.Comments)
	}
}

func TestApplySimilarity_Errors(t *testing.T) {
	t.Run("missing z", func(t *testing.T) {
		c := NewCloud([]Field{{Name: "x", Type: TypeFloat}, {Name: "y", Type: TypeFloat}, {Name: "scale_0", Type: TypeFloat}}, 3)
		_, err := ApplySimilarity(c, georef.IdentityTransform())
		testutil.AssertErrorIs(t, err, georef.ErrMissingField)
	})

	t.Run("invalid transform checked first", func(t *testing.T) {
		c := NewCloud([]Field{{Name: "opacity", Type: TypeFloat}}, 3)
		_, err := ApplySimilarity(c, georef.SimilarityTransform{Scale: 0, Rotation: georef.Identity3()})
		testutil.AssertErrorIs(t, err, georef.ErrValidation)
	})

	t.Run("ragged columns", func(t *testing.T) {
		c := newGaussianCloud(3)
		c.Columns[4] = c.Columns[4][:2]
		_, err := ApplySimilarity(c, georef.IdentityTransform())
		testutil.AssertErrorIs(t, err, georef.ErrValidation)
	})
}

func TestRescaleSplats(t *testing.T) {
	c := newGaussianCloud(6)
	out, err := RescaleSplats(c, 100)
	testutil.AssertNoError(t, err)

	for fi, f := range c.Fields {
		want := c.Columns[fi]
		if f.Role == RoleScaleLike {
			want = make([]float64, len(c.Columns[fi]))
			for i, v := range c.Columns[fi] {
				want[i] = 100 * v
			}
		}
		testutil.AssertFloatsNear(t, f.Name, out.Columns[fi], want, 1e-12)
	}

	for _, m := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := RescaleSplats(c, m); err == nil {
			t.Errorf("RescaleSplats(%v) returned no error", m)
		}
	}

	noScale := NewCloud([]Field{{Name: "x", Type: TypeFloat}, {Name: "y", Type: TypeFloat}, {Name: "z", Type: TypeFloat}}, 1)
	_, err = RescaleSplats(noScale, 2)
	testutil.AssertErrorIs(t, err, georef.ErrMissingField)
}
