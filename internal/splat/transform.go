package splat

import (
	"fmt"
	"math"

	"github.com/banshee-data/splatgeo/internal/georef"
)

// ApplySimilarity returns a new cloud with t applied: positions become
// s·R·p + t, scale-like fields are multiplied by s and every other field is
// copied. The field set, order and record count are unchanged. c is not
// modified.
//
// Orientation fields (rot_0..rot_3) are copied as-is; a rotated frame leaves
// the splat ellipsoids in their original orientation.
func ApplySimilarity(c *Cloud, t georef.SimilarityTransform) (*Cloud, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	pos, err := c.positionIndices()
	if err != nil {
		return nil, err
	}

	out := c.Clone()
	xs, ys, zs := out.Columns[pos[0]], out.Columns[pos[1]], out.Columns[pos[2]]
	for i := range xs {
		q := t.Apply(georef.Vec3{xs[i], ys[i], zs[i]})
		xs[i], ys[i], zs[i] = q[0], q[1], q[2]
	}
	for _, fi := range out.FieldsWithRole(RoleScaleLike) {
		scaleColumn(out.Columns[fi], t.Scale)
	}
	return out, nil
}

// RescaleSplats returns a copy of c with every scale-like field multiplied by
// multiplier. Positions and opaque fields are untouched.
func RescaleSplats(c *Cloud, multiplier float64) (*Cloud, error) {
	if math.IsNaN(multiplier) || math.IsInf(multiplier, 0) || multiplier <= 0 {
		return nil, fmt.Errorf("%w: scale multiplier must be finite and positive, got %v", georef.ErrValidation, multiplier)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	fields := c.FieldsWithRole(RoleScaleLike)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: point cloud has no scale or radius fields", georef.ErrMissingField)
	}

	out := c.Clone()
	for _, fi := range fields {
		scaleColumn(out.Columns[fi], multiplier)
	}
	return out, nil
}

func scaleColumn(col []float64, s float64) {
	for i := range col {
		col[i] *= s
	}
}
