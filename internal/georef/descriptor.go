package georef

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate checks descriptor shapes before any numeric work happens.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ReferencePoint records the geodetic anchor a descriptor was produced for.
type ReferencePoint struct {
	Lat    float64   `json:"lat" validate:"gte=-90,lte=90"`
	Lon    float64   `json:"lon" validate:"gte=-180,lte=180"`
	Height float64   `json:"height"`
	ECEF   []float64 `json:"ecef,omitempty" validate:"omitempty,len=3"`
	Note   string    `json:"note,omitempty"`
}

// TransformDescriptor is the explicit-load input:
// {"scale": s, "R": [[...],[...],[...]], "t": [x, y, z]}.
type TransformDescriptor struct {
	Scale          *float64        `json:"scale" validate:"required"`
	R              [][]float64     `json:"R" validate:"required,len=3,dive,len=3"`
	T              []float64       `json:"t" validate:"required,len=3"`
	ReferencePoint *ReferencePoint `json:"reference_point,omitempty"`
}

// ParseTransformDescriptor decodes and shape-checks a transform descriptor.
func ParseTransformDescriptor(data []byte) (TransformDescriptor, error) {
	var d TransformDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return TransformDescriptor{}, fmt.Errorf("%w: decode transform descriptor: %v", ErrValidation, err)
	}
	if err := validateStruct("transform descriptor", d); err != nil {
		return TransformDescriptor{}, err
	}
	return d, nil
}

// Transform converts the descriptor into a validated SimilarityTransform. The
// rotation is used exactly as supplied.
func (d TransformDescriptor) Transform() (SimilarityTransform, error) {
	if err := validateStruct("transform descriptor", d); err != nil {
		return SimilarityTransform{}, err
	}
	return NewSimilarityTransform(*d.Scale, d.R, d.T)
}

// DescriptorFromTransform builds the descriptor for t.
func DescriptorFromTransform(t SimilarityTransform) TransformDescriptor {
	s := t.Scale
	r := make([][]float64, 3)
	for i := range r {
		r[i] = []float64{t.Rotation[i][0], t.Rotation[i][1], t.Rotation[i][2]}
	}
	return TransformDescriptor{
		Scale: &s,
		R:     r,
		T:     []float64{t.Translation[0], t.Translation[1], t.Translation[2]},
	}
}

// CorrespondenceDescriptor is the estimation input:
// {"nerf": [[x,y,z],...], "world": [[X,Y,Z],...]}. World points are in the
// target frame (ENU meters or ECEF).
type CorrespondenceDescriptor struct {
	Nerf           [][]float64     `json:"nerf" validate:"required,dive,len=3"`
	World          [][]float64     `json:"world" validate:"required,dive,len=3"`
	ReferencePoint *ReferencePoint `json:"reference_point,omitempty"`
}

// ParseCorrespondences decodes and shape-checks a correspondence descriptor.
func ParseCorrespondences(data []byte) (CorrespondenceDescriptor, error) {
	var d CorrespondenceDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return CorrespondenceDescriptor{}, fmt.Errorf("%w: decode correspondences: %v", ErrValidation, err)
	}
	if err := validateStruct("correspondences", d); err != nil {
		return CorrespondenceDescriptor{}, err
	}
	return d, nil
}

// Points returns the local and target point lists.
func (d CorrespondenceDescriptor) Points() (local, target []Vec3, err error) {
	if err := validateStruct("correspondences", d); err != nil {
		return nil, nil, err
	}
	if len(d.Nerf) != len(d.World) {
		return nil, nil, fmt.Errorf("%w: nerf has %d points but world has %d", ErrValidation, len(d.Nerf), len(d.World))
	}
	local = make([]Vec3, len(d.Nerf))
	target = make([]Vec3, len(d.World))
	for i := range d.Nerf {
		local[i] = Vec3{d.Nerf[i][0], d.Nerf[i][1], d.Nerf[i][2]}
		target[i] = Vec3{d.World[i][0], d.World[i][1], d.World[i][2]}
	}
	return local, target, nil
}

// Estimate fits the similarity transform mapping nerf points onto world points.
func (d CorrespondenceDescriptor) Estimate() (Fit, error) {
	local, target, err := d.Points()
	if err != nil {
		return Fit{}, err
	}
	return EstimateSimilarity(local, target)
}

// GPSCentroid is the mean GPS position of a capture.
type GPSCentroid struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Alt float64  `json:"alt"`
}

// GPSBounds is the lat/lon/alt bounding box of a capture.
type GPSBounds struct {
	MinLat float64  `json:"min_lat"`
	MaxLat float64  `json:"max_lat"`
	MinLon float64  `json:"min_lon"`
	MaxLon float64  `json:"max_lon"`
	MinAlt *float64 `json:"min_alt,omitempty"`
	MaxAlt *float64 `json:"max_alt,omitempty"`
}

// SceneSize holds the capture extents in meters.
type SceneSize struct {
	LatRangeM  float64 `json:"lat_range_m" validate:"gte=0"`
	LonRangeM  float64 `json:"lon_range_m" validate:"gte=0"`
	AltRangeM  float64 `json:"alt_range_m" validate:"gte=0"`
	MaxExtentM float64 `json:"max_extent_m" validate:"gte=0"`
}

// GPSStatistics counts images with and without GPS tags.
type GPSStatistics struct {
	TotalImages      int `json:"total_images" validate:"gte=0"`
	ImagesWithGPS    int `json:"images_with_gps" validate:"gte=0"`
	ImagesWithoutGPS int `json:"images_without_gps" validate:"gte=0"`
}

// GPSImage is one tagged image in a GPS summary.
type GPSImage struct {
	Filename string   `json:"filename"`
	Path     string   `json:"path,omitempty"`
	Lat      float64  `json:"lat" validate:"gte=-90,lte=90"`
	Lon      float64  `json:"lon" validate:"gte=-180,lte=180"`
	Alt      *float64 `json:"alt,omitempty"`
}

// GPSSummary is the reference-point input produced by GPS extraction.
type GPSSummary struct {
	Images           []GPSImage    `json:"images,omitempty" validate:"dive"`
	ImagesWithoutGPS []string      `json:"images_without_gps,omitempty"`
	Centroid         GPSCentroid   `json:"centroid"`
	Bounds           *GPSBounds    `json:"bounds,omitempty"`
	SceneSize        SceneSize     `json:"scene_size"`
	Statistics       GPSStatistics `json:"statistics"`
}

// ParseGPSSummary decodes and validates a GPS summary.
func ParseGPSSummary(data []byte) (GPSSummary, error) {
	var s GPSSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return GPSSummary{}, fmt.Errorf("%w: decode GPS summary: %v", ErrValidation, err)
	}
	if err := validateStruct("GPS summary", s); err != nil {
		return GPSSummary{}, err
	}
	return s, nil
}

// Reference returns the centroid as a geodetic point, raised by heightOffset
// meters.
func (s GPSSummary) Reference(heightOffset float64) (GeodeticPoint, error) {
	if err := validateStruct("GPS summary", s); err != nil {
		return GeodeticPoint{}, err
	}
	return GeodeticPoint{
		LatDeg:  *s.Centroid.Lat,
		LonDeg:  *s.Centroid.Lon,
		HeightM: s.Centroid.Alt + heightOffset,
	}, nil
}

func validateStruct(what string, v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: invalid %s: %v", ErrValidation, what, err)
	}
	return nil
}
