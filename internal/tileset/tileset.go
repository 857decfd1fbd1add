// Package tileset reads, creates and edits 3D Tiles tileset.json documents
// that carry a georeferenced splat model.
//
// Documents are held as generic JSON so that properties this package does not
// model survive a read-modify-write cycle unchanged.
package tileset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
	"github.com/banshee-data/splatgeo/internal/security"
)

const (
	// ExtContentGLTF is declared in extensionsUsed so viewers accept glTF
	// (and splat) tile content.
	ExtContentGLTF = "3DTILES_content_gltf"
	AssetVersion   = "1.1"
	// DefaultGeometricError applies when SplatOptions leaves it unset.
	DefaultGeometricError = 100.0
	// DefaultHalfExtent is the bounding box half-size, in model units, used
	// when no extent is known.
	DefaultHalfExtent = 50.0
	// MaxTilesetBytes bounds the tileset.json files Load accepts.
	MaxTilesetBytes = 64 << 20
)

// Tileset is an editable tileset.json document.
type Tileset struct {
	doc map[string]any
}

// Parse decodes a tileset. The document must be an object with a root tile.
func Parse(data []byte) (*Tileset, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode tileset: %v", georef.ErrValidation, err)
	}
	if _, ok := doc["root"].(map[string]any); !ok {
		return nil, fmt.Errorf("%w: tileset has no root tile", georef.ErrValidation)
	}
	return &Tileset{doc: doc}, nil
}

// Marshal encodes the document with two-space indentation.
func (t *Tileset) Marshal() ([]byte, error) {
	out, err := json.MarshalIndent(t.doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// Load reads and parses path.
func Load(fsys fsutil.FileSystem, path string) (*Tileset, error) {
	data, err := fsutil.ReadFileLimit(fsys, path, MaxTilesetBytes)
	if err != nil {
		return nil, err
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Save writes the document to path.
func (t *Tileset) Save(fsys fsutil.FileSystem, path string) error {
	data, err := t.Marshal()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, data, 0644); err != nil {
		return err
	}
	monitoring.Logf("tileset: wrote %s", path)
	return nil
}

func (t *Tileset) root() map[string]any {
	return t.doc["root"].(map[string]any)
}

// Get returns a top-level property.
func (t *Tileset) Get(key string) (any, bool) {
	v, ok := t.doc[key]
	return v, ok
}

// RootTransform returns the root tile's placement matrix. ok is false when
// the root has no transform.
func (t *Tileset) RootTransform() (m georef.PlacementMatrix, ok bool, err error) {
	raw, present := t.root()["transform"]
	if !present {
		return m, false, nil
	}
	values, err := floatSlice(raw)
	if err != nil {
		return m, true, fmt.Errorf("%w: root.transform: %v", georef.ErrValidation, err)
	}
	m, err = georef.ParsePlacement(values)
	return m, true, err
}

// SetRootTransform stores m as the root tile transform, declares
// ExtContentGLTF and makes sure the root has a boundingVolume.
func (t *Tileset) SetRootTransform(m georef.PlacementMatrix) error {
	if err := m.Validate(); err != nil {
		return err
	}
	root := t.root()
	root["transform"] = m.Slice()
	if _, ok := root["boundingVolume"]; !ok {
		root["boundingVolume"] = map[string]any{}
	}
	t.AddExtensionUsed(ExtContentGLTF)
	return nil
}

// RescaleRootTransform changes the uniform scale of the root transform to
// newScale and returns the previous and updated matrices.
func (t *Tileset) RescaleRootTransform(newScale float64) (before, after georef.PlacementMatrix, err error) {
	before, ok, err := t.RootTransform()
	if err != nil {
		return before, after, err
	}
	if !ok {
		return before, after, fmt.Errorf("%w: tileset root has no transform", georef.ErrMissingField)
	}
	after, err = georef.Rescale(before, newScale)
	if err != nil {
		return before, after, err
	}
	t.root()["transform"] = after.Slice()
	return before, after, nil
}

// ExtensionsUsed returns the declared extensions.
func (t *Tileset) ExtensionsUsed() []string {
	list, _ := t.doc["extensionsUsed"].([]any)
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// AddExtensionUsed appends name to extensionsUsed unless already present.
func (t *Tileset) AddExtensionUsed(name string) {
	list, _ := t.doc["extensionsUsed"].([]any)
	for _, v := range list {
		if v == name {
			return
		}
	}
	t.doc["extensionsUsed"] = append(list, name)
}

// SplatOptions configures NewSplatTileset.
type SplatOptions struct {
	// ContentURI is the tile content, relative to tileset.json.
	ContentURI     string
	Placement      georef.PlacementMatrix
	GeometricError float64
	// Box is the 3D Tiles oriented bounding box in model coordinates:
	// center followed by three half-axis vectors. A zero Box is replaced by
	// a cube of DefaultHalfExtent around the origin.
	Box [12]float64
	// Generator is recorded as asset.generator when set.
	Generator string
}

// BoxFromBounds returns the axis-aligned oriented box enclosing [lo, hi],
// with every half-axis at least minHalf long.
func BoxFromBounds(lo, hi georef.Vec3, minHalf float64) [12]float64 {
	var box [12]float64
	for k := 0; k < 3; k++ {
		box[k] = (lo[k] + hi[k]) / 2
		box[3+4*k] = math.Max((hi[k]-lo[k])/2, minHalf)
	}
	return box
}

// CubeBox returns a cube of half-size half centred on the origin.
func CubeBox(half float64) [12]float64 {
	return BoxFromBounds(georef.Vec3{}, georef.Vec3{}, half)
}

// NewSplatTileset builds a single-tile tileset referencing one splat content
// file and placed by opts.Placement.
func NewSplatTileset(opts SplatOptions) (*Tileset, error) {
	if err := security.ValidateContentURI(opts.ContentURI); err != nil {
		return nil, fmt.Errorf("%w: %v", georef.ErrValidation, err)
	}
	if err := opts.Placement.Validate(); err != nil {
		return nil, err
	}
	geomErr := opts.GeometricError
	if geomErr == 0 {
		geomErr = DefaultGeometricError
	}
	if geomErr < 0 || math.IsNaN(geomErr) || math.IsInf(geomErr, 0) {
		return nil, fmt.Errorf("%w: geometric error must be finite and non-negative, got %v", georef.ErrValidation, geomErr)
	}
	box := opts.Box
	if box == ([12]float64{}) {
		box = CubeBox(DefaultHalfExtent)
	}

	asset := map[string]any{
		"version":    AssetVersion,
		"gltfUpAxis": "Z",
	}
	if opts.Generator != "" {
		asset["generator"] = opts.Generator
	}
	t := &Tileset{doc: map[string]any{
		"asset":          asset,
		"extensionsUsed": []any{ExtContentGLTF},
		"geometricError": geomErr,
		"root": map[string]any{
			"boundingVolume": map[string]any{"box": box[:]},
			"geometricError": geomErr,
			"refine":         "ADD",
			"content":        map[string]any{"uri": opts.ContentURI},
			"transform":      opts.Placement.Slice(),
		},
	}}
	return t, nil
}

// floatSlice converts a decoded JSON array into float64 values.
func floatSlice(v any) ([]float64, error) {
	switch vals := v.(type) {
	case []float64:
		return vals, nil
	case []any:
		out := make([]float64, len(vals))
		for i, e := range vals {
			f, err := toFloat(e)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array, got %T", v)
	}
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}
