package georef

import (
	"encoding/json"
	"fmt"
)

// PlacementDescription is the description written next to a placement matrix.
const PlacementDescription = "Column-major 4x4 matrix: Local -> ECEF (scale + rotate + translate)"

// Document is the georeference file handed to tileset tooling: the placement
// matrix together with the origin it was built for.
type Document struct {
	Metadata  DocumentMetadata  `json:"metadata"`
	Transform DocumentTransform `json:"transform"`
	Origin    DocumentOrigin    `json:"origin"`
}

// DocumentMetadata records how a placement was derived.
type DocumentMetadata struct {
	Generator     string       `json:"generator,omitempty"`
	Source        string       `json:"source"`
	GPSDataFile   string       `json:"gps_data_file,omitempty"`
	ImagesWithGPS int          `json:"images_with_gps,omitempty"`
	Centroid      *GPSCentroid `json:"centroid,omitempty"`
	SceneSize     *SceneSize   `json:"scene_size_m,omitempty"`
	Scale         float64      `json:"scale"`
	HeightOffset  float64      `json:"height_offset"`
}

// DocumentTransform holds the column-major placement matrix.
type DocumentTransform struct {
	Matrix      []float64 `json:"matrix" validate:"len=16"`
	Description string    `json:"description"`
}

// DocumentOrigin is the placement origin in geodetic and ECEF form.
type DocumentOrigin struct {
	Geodetic GeodeticPoint `json:"geodetic"`
	ECEF     ECEFPoint     `json:"ecef"`
}

// NewDocument builds the placement for ref at scale and wraps it with meta.
// meta.Scale is overwritten with scale.
func NewDocument(ref GeodeticPoint, scale float64, meta DocumentMetadata) (Document, error) {
	m, err := BuildPlacement(ref, scale)
	if err != nil {
		return Document{}, err
	}
	meta.Scale = scale
	return Document{
		Metadata: meta,
		Transform: DocumentTransform{
			Matrix:      m.Slice(),
			Description: PlacementDescription,
		},
		Origin: DocumentOrigin{
			Geodetic: ref,
			ECEF:     GeodeticToECEF(ref),
		},
	}, nil
}

// ParseDocument decodes a georeference document and checks its matrix.
func ParseDocument(data []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(data, &d); err != nil {
		return Document{}, fmt.Errorf("%w: decode georeference document: %v", ErrValidation, err)
	}
	if _, err := d.Placement(); err != nil {
		return Document{}, err
	}
	return d, nil
}

// Placement returns the validated placement matrix of the document.
func (d Document) Placement() (PlacementMatrix, error) {
	if err := validateStruct("georeference document", d.Transform); err != nil {
		return PlacementMatrix{}, err
	}
	return ParsePlacement(d.Transform.Matrix)
}
