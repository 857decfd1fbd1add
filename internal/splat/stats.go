package splat

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/splatgeo/internal/georef"
)

// Splats whose mean scale relative to the scene falls in this band render as
// visible ellipsoids; smaller ones collapse to points.
const (
	VisibleRelativeScaleMin = 0.001
	VisibleRelativeScaleMax = 0.1
)

// FieldStats summarises one scale-like field.
type FieldStats struct {
	Name   string  `json:"name"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
}

// Stats is the result of Inspect.
type Stats struct {
	Count       int          `json:"count"`
	ScaleFields []FieldStats `json:"scale_fields"`

	// Extent is max-min of x, y and z. HasPositions is false when the cloud
	// has no position fields, in which case Extent and the relative scale are
	// zero.
	HasPositions  bool        `json:"has_positions"`
	Extent        georef.Vec3 `json:"extent"`
	SceneSize     float64     `json:"scene_size"`
	MeanScale     float64     `json:"mean_scale"`
	RelativeScale float64     `json:"relative_scale"`
}

// TooSmall reports whether splats are likely to render as points.
func (s Stats) TooSmall() bool {
	return s.HasPositions && s.SceneSize > 0 && s.RelativeScale < VisibleRelativeScaleMin
}

// Inspect computes per-field statistics for every scale-like field and, when
// positions are present, the scene extent and the mean splat scale relative
// to it. Clouds without scale-like fields yield ErrMissingField.
func Inspect(c *Cloud) (Stats, error) {
	if err := c.Validate(); err != nil {
		return Stats{}, err
	}
	idx := c.FieldsWithRole(RoleScaleLike)
	if len(idx) == 0 {
		return Stats{}, fmt.Errorf("%w: point cloud has no scale or radius fields", georef.ErrMissingField)
	}

	st := Stats{Count: c.Len()}
	if st.Count == 0 {
		for _, i := range idx {
			st.ScaleFields = append(st.ScaleFields, FieldStats{Name: c.Fields[i].Name})
		}
		return st, nil
	}

	means := make([]float64, 0, len(idx))
	for _, i := range idx {
		fs := summarise(c.Fields[i].Name, c.Columns[i])
		st.ScaleFields = append(st.ScaleFields, fs)
		means = append(means, fs.Mean)
	}
	st.MeanScale = stat.Mean(means, nil)

	if pos, err := c.positionIndices(); err == nil {
		st.HasPositions = true
		for k := 0; k < 3; k++ {
			col := c.Columns[pos[k]]
			st.Extent[k] = floats.Max(col) - floats.Min(col)
		}
		st.SceneSize = floats.Max(st.Extent[:])
		if st.SceneSize > 0 {
			st.RelativeScale = st.MeanScale / st.SceneSize
		}
	}
	return st, nil
}

func summarise(name string, col []float64) FieldStats {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)
	mean, std := stat.PopMeanStdDev(col, nil)
	return FieldStats{
		Name:   name,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		Median: median(sorted),
		Std:    std,
	}
}

// median of an ascending slice, averaging the middle pair for even lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Bounds returns the per-axis minimum and maximum position.
func (c *Cloud) Bounds() (lo, hi georef.Vec3, err error) {
	pos, err := c.positionIndices()
	if err != nil {
		return lo, hi, err
	}
	if c.Len() == 0 {
		return lo, hi, fmt.Errorf("%w: point cloud is empty", georef.ErrValidation)
	}
	for k := 0; k < 3; k++ {
		col := c.Columns[pos[k]]
		lo[k], hi[k] = floats.Min(col), floats.Max(col)
	}
	return lo, hi, nil
}
