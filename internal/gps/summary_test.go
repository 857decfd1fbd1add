package gps

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/splatgeo/internal/georef"
)

func ptr(v float64) *float64 { return &v }

func TestSummarize_Equator(t *testing.T) {
	fixes := []Fix{
		{Filename: "a.jpg", Lat: 0, Lon: 0, Alt: ptr(10)},
		{Filename: "b.jpg", Lat: 0.001, Lon: 0, Alt: ptr(20)},
		{Filename: "c.jpg", Lat: 0, Lon: 0.001},
	}
	s, err := Summarize(fixes, []string{"d.jpg"})
	require.NoError(t, err)

	assert.InDelta(t, 0.001/3, *s.Centroid.Lat, 1e-12)
	assert.InDelta(t, 0.001/3, *s.Centroid.Lon, 1e-12)
	assert.InDelta(t, 15, s.Centroid.Alt, 1e-12, "mean over fixes with altitude")

	require.NotNil(t, s.Bounds)
	assert.Equal(t, 0.001, s.Bounds.MaxLat)
	assert.Equal(t, 0.0, s.Bounds.MinLon)
	require.NotNil(t, s.Bounds.MinAlt)
	assert.Equal(t, 10.0, *s.Bounds.MinAlt)
	assert.Equal(t, 20.0, *s.Bounds.MaxAlt)

	// One millidegree is about 110.57 m north and 111.32 m east at the equator.
	assert.InDelta(t, 110.57, s.SceneSize.LatRangeM, 0.1)
	assert.InDelta(t, 111.32, s.SceneSize.LonRangeM, 0.1)
	assert.InDelta(t, 10, s.SceneSize.AltRangeM, 1e-12)
	assert.Equal(t, s.SceneSize.LonRangeM, s.SceneSize.MaxExtentM)

	assert.Equal(t, georef.GPSStatistics{TotalImages: 4, ImagesWithGPS: 3, ImagesWithoutGPS: 1}, s.Statistics)
	assert.Len(t, s.Images, 3)
	assert.Equal(t, []string{"d.jpg"}, s.ImagesWithoutGPS)

	ref, err := s.Reference(0)
	require.NoError(t, err)
	assert.InDelta(t, 15, ref.HeightM, 1e-12)
}

func TestSummarize_VerticalSpanDominates(t *testing.T) {
	// A pole capture: a few meters across, 60 m tall.
	fixes := []Fix{
		{Filename: "base.jpg", Lat: 47.3769, Lon: 8.5417, Alt: ptr(400)},
		{Filename: "mid.jpg", Lat: 47.37691, Lon: 8.5417, Alt: ptr(430)},
		{Filename: "top.jpg", Lat: 47.3769, Lon: 8.54171, Alt: ptr(460)},
	}
	s, err := Summarize(fixes, nil)
	require.NoError(t, err)

	assert.Less(t, s.SceneSize.LatRangeM, 2.0)
	assert.Less(t, s.SceneSize.LonRangeM, 2.0)
	assert.InDelta(t, 60, s.SceneSize.AltRangeM, 1e-9)
	assert.Equal(t, s.SceneSize.AltRangeM, s.SceneSize.MaxExtentM)

	scale, err := EstimateScale(s.SceneSize.MaxExtentM, DefaultScaleParams())
	require.NoError(t, err)
	assert.InDelta(t, 30, scale, 1e-9)
}

func TestSummarize_NoAltitude(t *testing.T) {
	s, err := Summarize([]Fix{{Filename: "a", Lat: 45, Lon: 7}, {Filename: "b", Lat: 45, Lon: 7}}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Centroid.Alt)
	assert.Nil(t, s.Bounds.MinAlt)
	assert.Equal(t, 0.0, s.SceneSize.MaxExtentM)
}

func TestSummarize_Errors(t *testing.T) {
	_, err := Summarize(nil, []string{"a.jpg"})
	assert.ErrorIs(t, err, georef.ErrInsufficientData)

	for _, f := range []Fix{
		{Filename: "lat", Lat: 91},
		{Filename: "lon", Lon: -180.5},
		{Filename: "nan", Lat: math.NaN()},
		{Filename: "alt", Alt: ptr(math.Inf(1))},
	} {
		_, err := Summarize([]Fix{f}, nil)
		assert.ErrorIs(t, err, georef.ErrValidation, f.Filename)
	}
}

func TestEstimateScale(t *testing.T) {
	p := DefaultScaleParams()
	tests := []struct {
		extent float64
		want   float64
	}{
		{0, 10},
		{0.5, 10},
		{1, 0.5},
		{250, 125},
	}
	for _, tt := range tests {
		got, err := EstimateScale(tt.extent, p)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "extent %v", tt.extent)
	}

	_, err := EstimateScale(-1, p)
	assert.ErrorIs(t, err, georef.ErrValidation)
	_, err = EstimateScale(math.NaN(), p)
	assert.ErrorIs(t, err, georef.ErrValidation)
	_, err = EstimateScale(10, ScaleParams{SmallSceneScale: 1})
	assert.ErrorIs(t, err, georef.ErrValidation)
}
