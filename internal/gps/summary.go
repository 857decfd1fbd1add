// Package gps turns per-image GPS fixes into the summary used to anchor a
// reconstruction: centroid, bounds, scene size and counts. It also estimates
// the model scale from the scene size.
package gps

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/splatgeo/internal/georef"
)

// Fix is the GPS position of one image. Alt is nil when the image had no
// altitude tag.
type Fix struct {
	Filename string   `json:"filename"`
	Path     string   `json:"path,omitempty"`
	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Alt      *float64 `json:"alt,omitempty"`
}

func (f Fix) validate() error {
	if math.IsNaN(f.Lat) || f.Lat < -90 || f.Lat > 90 {
		return fmt.Errorf("%w: %s: latitude %v out of range", georef.ErrValidation, f.Filename, f.Lat)
	}
	if math.IsNaN(f.Lon) || f.Lon < -180 || f.Lon > 180 {
		return fmt.Errorf("%w: %s: longitude %v out of range", georef.ErrValidation, f.Filename, f.Lon)
	}
	if f.Alt != nil && (math.IsNaN(*f.Alt) || math.IsInf(*f.Alt, 0)) {
		return fmt.Errorf("%w: %s: altitude is not finite", georef.ErrValidation, f.Filename)
	}
	return nil
}

// Summarize builds the GPS summary for fixes. withoutGPS lists images that
// carried no position. The centroid is the arithmetic mean of the fixes;
// its altitude is the mean over fixes that have one, or 0.
//
// Scene extents are measured in the local ENU frame at the centroid: the
// north span is reported as lat_range_m, the east span as lon_range_m, the
// altitude span as alt_range_m, and max_extent_m is the largest of the three.
func Summarize(fixes []Fix, withoutGPS []string) (georef.GPSSummary, error) {
	if len(fixes) == 0 {
		return georef.GPSSummary{}, fmt.Errorf("%w: no images with GPS data", georef.ErrInsufficientData)
	}

	lats := make([]float64, len(fixes))
	lons := make([]float64, len(fixes))
	var alts []float64
	for i, f := range fixes {
		if err := f.validate(); err != nil {
			return georef.GPSSummary{}, err
		}
		lats[i], lons[i] = f.Lat, f.Lon
		if f.Alt != nil {
			alts = append(alts, *f.Alt)
		}
	}

	lat := floats.Sum(lats) / float64(len(lats))
	lon := floats.Sum(lons) / float64(len(lons))
	alt := 0.0
	if len(alts) > 0 {
		alt = floats.Sum(alts) / float64(len(alts))
	}

	bounds := &georef.GPSBounds{
		MinLat: floats.Min(lats),
		MaxLat: floats.Max(lats),
		MinLon: floats.Min(lons),
		MaxLon: floats.Max(lons),
	}
	if len(alts) > 0 {
		lo, hi := floats.Min(alts), floats.Max(alts)
		bounds.MinAlt, bounds.MaxAlt = &lo, &hi
	}

	frame := georef.NewENUFrame(georef.GeodeticPoint{LatDeg: lat, LonDeg: lon, HeightM: alt})
	var minE, maxE, minN, maxN float64
	for i, f := range fixes {
		h := alt
		if f.Alt != nil {
			h = *f.Alt
		}
		enu := frame.FromGeodetic(georef.GeodeticPoint{LatDeg: f.Lat, LonDeg: f.Lon, HeightM: h})
		if i == 0 {
			minE, maxE, minN, maxN = enu[0], enu[0], enu[1], enu[1]
			continue
		}
		minE, maxE = math.Min(minE, enu[0]), math.Max(maxE, enu[0])
		minN, maxN = math.Min(minN, enu[1]), math.Max(maxN, enu[1])
	}
	size := georef.SceneSize{
		LatRangeM: maxN - minN,
		LonRangeM: maxE - minE,
	}
	if bounds.MinAlt != nil {
		size.AltRangeM = *bounds.MaxAlt - *bounds.MinAlt
	}
	size.MaxExtentM = floats.Max([]float64{size.LatRangeM, size.LonRangeM, size.AltRangeM})

	images := make([]georef.GPSImage, len(fixes))
	for i, f := range fixes {
		images[i] = georef.GPSImage{Filename: f.Filename, Path: f.Path, Lat: f.Lat, Lon: f.Lon, Alt: f.Alt}
	}

	return georef.GPSSummary{
		Images:           images,
		ImagesWithoutGPS: withoutGPS,
		Centroid:         georef.GPSCentroid{Lat: &lat, Lon: &lon, Alt: alt},
		Bounds:           bounds,
		SceneSize:        size,
		Statistics: georef.GPSStatistics{
			TotalImages:      len(fixes) + len(withoutGPS),
			ImagesWithGPS:    len(fixes),
			ImagesWithoutGPS: len(withoutGPS),
		},
	}, nil
}

// ScaleParams controls EstimateScale.
type ScaleParams struct {
	// MinExtentM is the scene size below which GPS spread is treated as
	// noise and SmallSceneScale is used instead.
	MinExtentM      float64
	SmallSceneScale float64
	// Divisor maps the scene extent in meters to a scale for a
	// reconstruction normalised to roughly two units across.
	Divisor float64
}

// DefaultScaleParams returns the stock estimation parameters.
func DefaultScaleParams() ScaleParams {
	return ScaleParams{MinExtentM: 1, SmallSceneScale: 10, Divisor: 2}
}

// EstimateScale picks a model scale from the scene's maximum extent.
func EstimateScale(maxExtentM float64, p ScaleParams) (float64, error) {
	if math.IsNaN(maxExtentM) || math.IsInf(maxExtentM, 0) || maxExtentM < 0 {
		return 0, fmt.Errorf("%w: scene extent must be finite and non-negative, got %v", georef.ErrValidation, maxExtentM)
	}
	if p.Divisor <= 0 || p.SmallSceneScale <= 0 {
		return 0, fmt.Errorf("%w: invalid scale parameters %+v", georef.ErrValidation, p)
	}
	if maxExtentM < p.MinExtentM || maxExtentM == 0 {
		return p.SmallSceneScale, nil
	}
	return maxExtentM / p.Divisor, nil
}
