package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/splatgeo/internal/gps"
)

// DefaultConfigPath is the path to the canonical georeference defaults file.
const DefaultConfigPath = "config/georef.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// GeorefConfig holds the tunable parameters of the georeference commands.
// Unset fields fall back to the defaults returned by the Get* methods, so
// partial files are safe.
type GeorefConfig struct {
	// Scale used when neither the command line nor a GPS summary supplies one.
	DefaultScale *float64 `json:"default_scale,omitempty" yaml:"default_scale,omitempty"`

	// Scale estimation from GPS scene extent
	MinSceneExtentM    *float64 `json:"min_scene_extent_m,omitempty" yaml:"min_scene_extent_m,omitempty"`
	SmallSceneScale    *float64 `json:"small_scene_scale,omitempty" yaml:"small_scene_scale,omitempty"`
	SceneExtentDivisor *float64 `json:"scene_extent_divisor,omitempty" yaml:"scene_extent_divisor,omitempty"`

	// Added to the GPS centroid altitude before building a placement.
	HeightOffsetM *float64 `json:"height_offset_m,omitempty" yaml:"height_offset_m,omitempty"`

	// Tileset params
	GeometricError  *float64 `json:"geometric_error,omitempty" yaml:"geometric_error,omitempty"`
	TileHalfExtentM *float64 `json:"tile_half_extent_m,omitempty" yaml:"tile_half_extent_m,omitempty"`

	// Point cloud output
	OutputFormat  *string `json:"output_format,omitempty" yaml:"output_format,omitempty"`
	HistogramBins *int    `json:"histogram_bins,omitempty" yaml:"histogram_bins,omitempty"`
}

// EmptyGeorefConfig returns a config with every field unset.
func EmptyGeorefConfig() *GeorefConfig {
	return &GeorefConfig{}
}

// LoadGeorefConfig loads a config from a .json, .yaml or .yml file of at
// most 1MB and validates it.
func LoadGeorefConfig(path string) (*GeorefConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyGeorefConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root. Panics if the file
// cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *GeorefConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/splatgeo/
	}
	for _, path := range candidates {
		if cfg, err := LoadGeorefConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

func positive(name string, v *float64) error {
	if v == nil {
		return nil
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) || *v <= 0 {
		return fmt.Errorf("%s must be positive and finite, got %v", name, *v)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *GeorefConfig) Validate() error {
	for _, f := range []struct {
		name string
		v    *float64
	}{
		{"default_scale", c.DefaultScale},
		{"small_scene_scale", c.SmallSceneScale},
		{"scene_extent_divisor", c.SceneExtentDivisor},
		{"geometric_error", c.GeometricError},
		{"tile_half_extent_m", c.TileHalfExtentM},
	} {
		if err := positive(f.name, f.v); err != nil {
			return err
		}
	}

	if c.MinSceneExtentM != nil {
		if v := *c.MinSceneExtentM; math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("min_scene_extent_m must be non-negative, got %v", v)
		}
	}

	if c.HeightOffsetM != nil {
		if v := *c.HeightOffsetM; math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("height_offset_m must be finite, got %v", v)
		}
	}

	if c.OutputFormat != nil {
		switch *c.OutputFormat {
		case "ascii", "binary_little_endian", "binary_big_endian":
		default:
			return fmt.Errorf("invalid output_format %q", *c.OutputFormat)
		}
	}

	if c.HistogramBins != nil && *c.HistogramBins < 1 {
		return fmt.Errorf("histogram_bins must be at least 1, got %d", *c.HistogramBins)
	}

	return nil
}

// GetDefaultScale returns the default_scale value or the default.
func (c *GeorefConfig) GetDefaultScale() float64 {
	if c.DefaultScale == nil {
		return 1.0
	}
	return *c.DefaultScale
}

// GetMinSceneExtentM returns the min_scene_extent_m value or the default.
func (c *GeorefConfig) GetMinSceneExtentM() float64 {
	if c.MinSceneExtentM == nil {
		return 1.0
	}
	return *c.MinSceneExtentM
}

// GetSmallSceneScale returns the small_scene_scale value or the default.
func (c *GeorefConfig) GetSmallSceneScale() float64 {
	if c.SmallSceneScale == nil {
		return 10.0
	}
	return *c.SmallSceneScale
}

// GetSceneExtentDivisor returns the scene_extent_divisor value or the default.
func (c *GeorefConfig) GetSceneExtentDivisor() float64 {
	if c.SceneExtentDivisor == nil {
		return 2.0
	}
	return *c.SceneExtentDivisor
}

// GetHeightOffsetM returns the height_offset_m value or the default.
func (c *GeorefConfig) GetHeightOffsetM() float64 {
	if c.HeightOffsetM == nil {
		return 0
	}
	return *c.HeightOffsetM
}

// GetGeometricError returns the geometric_error value or the default.
func (c *GeorefConfig) GetGeometricError() float64 {
	if c.GeometricError == nil {
		return 100.0
	}
	return *c.GeometricError
}

// GetTileHalfExtentM returns the tile_half_extent_m value or the default.
func (c *GeorefConfig) GetTileHalfExtentM() float64 {
	if c.TileHalfExtentM == nil {
		return 50.0
	}
	return *c.TileHalfExtentM
}

// GetOutputFormat returns the output_format value or the default.
func (c *GeorefConfig) GetOutputFormat() string {
	if c.OutputFormat == nil {
		return "binary_little_endian"
	}
	return *c.OutputFormat
}

// GetHistogramBins returns the histogram_bins value or the default.
func (c *GeorefConfig) GetHistogramBins() int {
	if c.HistogramBins == nil {
		return 50
	}
	return *c.HistogramBins
}

// ScaleParams returns the GPS scale estimation parameters.
func (c *GeorefConfig) ScaleParams() gps.ScaleParams {
	return gps.ScaleParams{
		MinExtentM:      c.GetMinSceneExtentM(),
		SmallSceneScale: c.GetSmallSceneScale(),
		Divisor:         c.GetSceneExtentDivisor(),
	}
}
