package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/banshee-data/splatgeo/internal/config"
	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/georefdb"
	"github.com/banshee-data/splatgeo/internal/gps"
	"github.com/banshee-data/splatgeo/internal/monitoring"
	"github.com/banshee-data/splatgeo/internal/report"
	"github.com/banshee-data/splatgeo/internal/security"
	"github.com/banshee-data/splatgeo/internal/splat"
	"github.com/banshee-data/splatgeo/internal/tileset"
	"github.com/banshee-data/splatgeo/internal/version"
)

// maxDescriptorBytes bounds the JSON descriptors and documents read by the CLI.
const maxDescriptorBytes = 16 << 20

func loadConfig(path string) (*config.GeorefConfig, error) {
	if path == "" {
		return config.EmptyGeorefConfig(), nil
	}
	return config.LoadGeorefConfig(path)
}

func readJSONInput(e env, path string) ([]byte, error) {
	return fsutil.ReadFileLimit(e.fs, path, maxDescriptorBytes)
}

func writeJSON(e env, path string, v any) error {
	if err := security.ValidateOutputPath(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(e.fs, path, append(data, '\n'), 0644)
}

func printJSON(e env, v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// recordRun stores r when dbPath is set.
func recordRun(dbPath string, r georefdb.Run) error {
	if dbPath == "" {
		return nil
	}
	db, err := georefdb.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	id, err := db.RecordRun(context.Background(), r)
	if err != nil {
		return err
	}
	monitoring.Logf("recorded %s run %s", r.Kind, id)
	return nil
}

func handleApply(e env, args []string) error {
	fs := newFlagSet(e, "apply")
	input := fs.String("input", "", "Input PLY point cloud (required)")
	output := fs.String("output", "", "Output PLY path (required)")
	transformPath := fs.String("transform-json", "", "Transform descriptor {scale, R, t}")
	corrPath := fs.String("correspondences", "", "Correspondence descriptor {nerf, world} to fit a transform from")
	format := fs.String("format", "", "Output format: ascii, binary_little_endian or binary_big_endian (default: config, then input format)")
	reportPath := fs.String("residual-report", "", "Write an HTML residual report for fitted transforms")
	minQuality := fs.String("min-quality", "", "Refuse fitted transforms graded below this: excellent, good, fair or poor (default: apply any fit)")
	dbPath := fs.String("db", "", "Record the run in this sqlite database")
	configPath := fs.String("config", "", "Georeference config file (.json, .yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *input == "" || *output == "" {
		return fmt.Errorf("%w: apply: -input and -output are required", errUsage)
	}
	if (*transformPath == "") == (*corrPath == "") {
		return fmt.Errorf("%w: apply: give exactly one of -transform-json or -correspondences", errUsage)
	}
	var required georef.FitQuality
	if *minQuality != "" {
		q, err := georef.ParseFitQuality(*minQuality)
		if err != nil {
			return fmt.Errorf("%w: apply: %v", errUsage, err)
		}
		required = q
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := security.ValidateOutputPath(*output); err != nil {
		return err
	}
	defer monitoring.Stage("apply")()

	var (
		t      georef.SimilarityTransform
		fit    *georef.Fit
		source string
	)
	if *transformPath != "" {
		source = *transformPath
		data, err := readJSONInput(e, *transformPath)
		if err != nil {
			return err
		}
		d, err := georef.ParseTransformDescriptor(data)
		if err != nil {
			return fmt.Errorf("%s: %w", *transformPath, err)
		}
		if t, err = d.Transform(); err != nil {
			return fmt.Errorf("%s: %w", *transformPath, err)
		}
	} else {
		source = *corrPath
		data, err := readJSONInput(e, *corrPath)
		if err != nil {
			return err
		}
		d, err := georef.ParseCorrespondences(data)
		if err != nil {
			return fmt.Errorf("%s: %w", *corrPath, err)
		}
		f, err := d.Estimate()
		if err != nil {
			return fmt.Errorf("%s: %w", *corrPath, err)
		}
		fit, t = &f, f.Transform
		monitoring.Logf("apply: fitted %d correspondences, RMSE %.4f, quality %s", len(f.Residuals), f.RMSE, f.Quality)
		if f.Reflected {
			monitoring.Logf("apply: correspondence fit required reflection correction")
		}
		if *reportPath != "" {
			if err := security.ValidateOutputPath(*reportPath); err != nil {
				return err
			}
			if err := report.WriteResidualReportFile(e.fs, *reportPath, f, nil); err != nil {
				return err
			}
		}
		if required != "" && !f.Quality.AtLeast(required) {
			return fmt.Errorf("fit quality is %s, below the required %s", f.Quality, required)
		}
		if !f.Quality.Usable() {
			monitoring.Logf("apply: warning: fit quality is %s (max residual %.3f); check the control points", f.Quality, f.MaxResidual())
		}
	}
	if !t.IsProperRotation(1e-6) {
		monitoring.Logf("apply: warning: rotation is not a proper rotation (orthonormality error %.3g)", t.Rotation.OrthonormalityError())
	}

	cloud, err := splat.ReadPLYFile(e.fs, *input)
	if err != nil {
		return err
	}
	out, err := splat.ApplySimilarity(cloud, t)
	if err != nil {
		return err
	}

	outFormat := splat.Format(*format)
	if outFormat == "" && *configPath != "" {
		outFormat = splat.Format(cfg.GetOutputFormat())
	}
	if err := splat.WritePLYFile(e.fs, *output, out, outFormat); err != nil {
		return err
	}

	run := georefdb.NewRun(georefdb.KindApply, t, fit)
	run.SourcePath, run.OutputPath = source, *output
	if err := recordRun(*dbPath, run); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "transformed %d splats with %s\n", out.Len(), t)
	return nil
}

func handlePlacement(e env, args []string) error {
	fs := newFlagSet(e, "placement")
	gpsData := fs.String("gps-data", "", "GPS summary JSON (from gps-summary)")
	lat := fs.Float64("lat", 0, "Reference latitude in degrees")
	lon := fs.Float64("lon", 0, "Reference longitude in degrees")
	height := fs.Float64("height", 0, "Reference ellipsoidal height in meters")
	scale := fs.Float64("scale", 0, "Model scale (default: estimated from the GPS scene size, else config default_scale)")
	heightOffset := fs.Float64("height-offset", 0, "Meters added to the reference height (default: config height_offset_m)")
	output := fs.String("output", "", "Georeference document output path (required)")
	dbPath := fs.String("db", "", "Record the run in this sqlite database")
	configPath := fs.String("config", "", "Georeference config file (.json, .yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("%w: placement: -output is required", errUsage)
	}
	haveCoords := isSet(fs, "lat") || isSet(fs, "lon")
	if (*gpsData == "") == !haveCoords {
		return fmt.Errorf("%w: placement: give either -gps-data or -lat and -lon", errUsage)
	}
	if haveCoords && !(isSet(fs, "lat") && isSet(fs, "lon")) {
		return fmt.Errorf("%w: placement: -lat and -lon must be given together", errUsage)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	offset := cfg.GetHeightOffsetM()
	if isSet(fs, "height-offset") {
		offset = *heightOffset
	}

	meta := georef.DocumentMetadata{Generator: version.Generator(), HeightOffset: offset}
	var ref georef.GeodeticPoint
	s := *scale
	if *gpsData != "" {
		data, err := readJSONInput(e, *gpsData)
		if err != nil {
			return err
		}
		summary, err := georef.ParseGPSSummary(data)
		if err != nil {
			return fmt.Errorf("%s: %w", *gpsData, err)
		}
		if ref, err = summary.Reference(offset); err != nil {
			return err
		}
		if !isSet(fs, "scale") {
			if s, err = gps.EstimateScale(summary.SceneSize.MaxExtentM, cfg.ScaleParams()); err != nil {
				return err
			}
			monitoring.Logf("placement: estimated scale %.4g from scene extent %.1f m", s, summary.SceneSize.MaxExtentM)
		}
		meta.Source = "gps_summary"
		meta.GPSDataFile = *gpsData
		meta.ImagesWithGPS = summary.Statistics.ImagesWithGPS
		meta.Centroid = &summary.Centroid
		meta.SceneSize = &summary.SceneSize
	} else {
		ref = georef.GeodeticPoint{LatDeg: *lat, LonDeg: *lon, HeightM: *height + offset}
		if !isSet(fs, "scale") {
			s = cfg.GetDefaultScale()
		}
		meta.Source = "coordinates"
	}

	doc, err := georef.NewDocument(ref, s, meta)
	if err != nil {
		return err
	}
	if err := writeJSON(e, *output, doc); err != nil {
		return err
	}

	placement, err := doc.Placement()
	if err != nil {
		return err
	}
	t, err := placement.Decompose()
	if err != nil {
		return err
	}
	run := georefdb.NewRun(georefdb.KindPlacement, t, nil)
	run.SourcePath, run.OutputPath = *gpsData, *output
	if err := recordRun(*dbPath, run); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "placement at lat %.7f lon %.7f height %.2f m, scale %.4g\n", ref.LatDeg, ref.LonDeg, ref.HeightM, s)
	return nil
}

// loadPlacement reads the placement of a georeference document, or builds
// one for ref at scale when georefPath is empty.
func loadPlacement(e env, georefPath string, ref georef.GeodeticPoint, scale float64) (georef.PlacementMatrix, error) {
	if georefPath != "" {
		data, err := readJSONInput(e, georefPath)
		if err != nil {
			return georef.PlacementMatrix{}, err
		}
		doc, err := georef.ParseDocument(data)
		if err != nil {
			return georef.PlacementMatrix{}, fmt.Errorf("%s: %w", georefPath, err)
		}
		return doc.Placement()
	}
	return georef.BuildPlacement(ref, scale)
}

func handleTilesetFix(e env, args []string) error {
	fs := newFlagSet(e, "tileset-fix")
	path := fs.String("tileset", "", "tileset.json to update in place (required)")
	georefPath := fs.String("georef", "", "Georeference document to take the placement from")
	lat := fs.Float64("lat", 0, "Reference latitude in degrees")
	lon := fs.Float64("lon", 0, "Reference longitude in degrees")
	height := fs.Float64("height", 0, "Reference ellipsoidal height in meters")
	scale := fs.Float64("scale", 1, "Model scale")
	dbPath := fs.String("db", "", "Record the run in this sqlite database")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: tileset-fix: -tileset is required", errUsage)
	}
	haveCoords := isSet(fs, "lat") && isSet(fs, "lon")
	if (*georefPath == "") == !haveCoords {
		return fmt.Errorf("%w: tileset-fix: give either -georef or -lat and -lon", errUsage)
	}
	if err := security.ValidateOutputPath(*path); err != nil {
		return err
	}

	m, err := loadPlacement(e, *georefPath, georef.GeodeticPoint{LatDeg: *lat, LonDeg: *lon, HeightM: *height}, *scale)
	if err != nil {
		return err
	}
	ts, err := tileset.Load(e.fs, *path)
	if err != nil {
		return err
	}
	if old, ok, err := ts.RootTransform(); err == nil && ok {
		monitoring.Logf("tileset-fix: replacing root transform with scale %.4g", old.Scale())
	}
	if err := ts.SetRootTransform(m); err != nil {
		return err
	}
	if err := ts.Save(e.fs, *path); err != nil {
		return err
	}

	t, err := m.Decompose()
	if err != nil {
		return err
	}
	run := georefdb.NewRun(georefdb.KindTileset, t, nil)
	run.SourcePath, run.OutputPath = *georefPath, *path
	if err := recordRun(*dbPath, run); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "root transform set, translation %v\n", m.Translation())
	return nil
}

func handleTilesetScale(e env, args []string) error {
	fs := newFlagSet(e, "tileset-scale")
	path := fs.String("tileset", "", "tileset.json to update in place (required)")
	scale := fs.Float64("scale", 0, "New uniform scale (required)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *path == "" || !isSet(fs, "scale") {
		return fmt.Errorf("%w: tileset-scale: -tileset and -scale are required", errUsage)
	}
	if err := security.ValidateOutputPath(*path); err != nil {
		return err
	}

	ts, err := tileset.Load(e.fs, *path)
	if err != nil {
		return err
	}
	before, after, err := ts.RescaleRootTransform(*scale)
	if err != nil {
		return err
	}
	if err := ts.Save(e.fs, *path); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "scale %.6g -> %.6g\n", before.Scale(), after.Scale())
	return nil
}

func handleTilesetNew(e env, args []string) error {
	fs := newFlagSet(e, "tileset-new")
	content := fs.String("content", "", "Tile content URI relative to the tileset (default: <input name>.spz)")
	input := fs.String("input", "", "PLY cloud used to size the bounding box")
	georefPath := fs.String("georef", "", "Georeference document with the placement (required)")
	outDir := fs.String("output", "", "Output directory for tileset.json (required)")
	geomErr := fs.Float64("geometric-error", 0, "Geometric error (default: config geometric_error)")
	configPath := fs.String("config", "", "Georeference config file (.json, .yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *georefPath == "" || *outDir == "" {
		return fmt.Errorf("%w: tileset-new: -georef and -output are required", errUsage)
	}
	if *content == "" {
		if *input == "" {
			return fmt.Errorf("%w: tileset-new: give -content or an -input to name the content after", errUsage)
		}
		*content = contentNameFor(*input)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	outPath := filepath.Join(*outDir, "tileset.json")
	if err := security.ValidateOutputPath(outPath); err != nil {
		return err
	}

	m, err := loadPlacement(e, *georefPath, georef.GeodeticPoint{}, 0)
	if err != nil {
		return err
	}

	box := tileset.CubeBox(cfg.GetTileHalfExtentM())
	if *input != "" {
		cloud, err := splat.ReadPLYFile(e.fs, *input)
		if err != nil {
			return err
		}
		lo, hi, err := cloud.Bounds()
		if err != nil {
			return err
		}
		box = tileset.BoxFromBounds(lo, hi, minBoxHalfExtent)
	}

	opts := tileset.SplatOptions{
		ContentURI:     *content,
		Placement:      m,
		GeometricError: cfg.GetGeometricError(),
		Box:            box,
		Generator:      version.Generator(),
	}
	if isSet(fs, "geometric-error") {
		opts.GeometricError = *geomErr
	}
	ts, err := tileset.NewSplatTileset(opts)
	if err != nil {
		return err
	}
	if err := ts.Save(e.fs, outPath); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", outPath)
	return nil
}

// contentNameFor derives a tile content URI from a cloud path, e.g.
// "/runs/Bridge scan.ply" becomes "Bridge_scan.spz".
func contentNameFor(cloudPath string) string {
	base := filepath.Base(cloudPath)
	return security.SanitizeFilename(strings.TrimSuffix(base, filepath.Ext(base))) + ".spz"
}

// minBoxHalfExtent keeps flat or single-point clouds from producing a
// degenerate bounding box.
const minBoxHalfExtent = 0.01

func handleInspect(e env, args []string) error {
	fs := newFlagSet(e, "inspect")
	input := fs.String("input", "", "Input PLY point cloud (required)")
	output := fs.String("output", "", "Write a rescaled copy here (requires -scale-multiplier)")
	multiplier := fs.Float64("scale-multiplier", 0, "Multiply every scale-like field by this factor")
	histogram := fs.String("histogram", "", "Write a PNG histogram of scale values")
	bins := fs.Int("bins", 0, "Histogram bins (default: config histogram_bins)")
	configPath := fs.String("config", "", "Georeference config file (.json, .yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("%w: inspect: -input is required", errUsage)
	}
	if (*output == "") != !isSet(fs, "scale-multiplier") {
		return fmt.Errorf("%w: inspect: -output and -scale-multiplier go together", errUsage)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	cloud, err := splat.ReadPLYFile(e.fs, *input)
	if err != nil {
		return err
	}
	stats, err := splat.Inspect(cloud)
	if err != nil {
		return err
	}
	if err := printJSON(e, stats); err != nil {
		return err
	}
	if stats.TooSmall() {
		suggested := splat.VisibleRelativeScaleMin * 10 / stats.RelativeScale
		monitoring.Logf("inspect: splats are tiny relative to the scene (%.2g); try -scale-multiplier %.3g", stats.RelativeScale, suggested)
	}

	if *histogram != "" {
		if err := security.ValidateOutputPath(*histogram); err != nil {
			return err
		}
		n := cfg.GetHistogramBins()
		if *bins > 0 {
			n = *bins
		}
		if err := splat.WriteScaleHistogramFile(e.fs, *histogram, cloud, n); err != nil {
			return err
		}
	}

	if *output != "" {
		if err := security.ValidateOutputPath(*output); err != nil {
			return err
		}
		rescaled, err := splat.RescaleSplats(cloud, *multiplier)
		if err != nil {
			return err
		}
		if err := splat.WritePLYFile(e.fs, *output, rescaled, ""); err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "rescaled %d splats by %g\n", rescaled.Len(), *multiplier)
	}
	return nil
}

func handleGPSSummary(e env, args []string) error {
	fs := newFlagSet(e, "gps-summary")
	input := fs.String("input", "", "GPS fixes, CSV (filename,lat,lon[,alt]) or JSON (required)")
	output := fs.String("output", "", "GPS summary output path (required)")
	configPath := fs.String("config", "", "Georeference config file (.json, .yaml)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *input == "" || *output == "" {
		return fmt.Errorf("%w: gps-summary: -input and -output are required", errUsage)
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	fixes, without, err := gps.ReadFixesFile(e.fs, *input)
	if err != nil {
		return err
	}
	summary, err := gps.Summarize(fixes, without)
	if err != nil {
		return err
	}
	if err := writeJSON(e, *output, summary); err != nil {
		return err
	}

	scale, err := gps.EstimateScale(summary.SceneSize.MaxExtentM, cfg.ScaleParams())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "%d/%d images with GPS, centroid %.7f, %.7f, max extent %.1f m, suggested scale %.4g\n",
		summary.Statistics.ImagesWithGPS, summary.Statistics.TotalImages,
		*summary.Centroid.Lat, *summary.Centroid.Lon, summary.SceneSize.MaxExtentM, scale)
	return nil
}

func handleExample(e env, args []string) error {
	fs := newFlagSet(e, "example")
	lat := fs.Float64("lat", 37.7694, "Reference latitude in degrees")
	lon := fs.Float64("lon", -122.4862, "Reference longitude in degrees")
	height := fs.Float64("height", 10, "Reference height in meters")
	scale := fs.Float64("scale", 1, "Model scale for the ENU example")
	identity := fs.Bool("identity", false, "Write the identity transform")
	corr := fs.Bool("correspondences", false, "Write the example correspondence set instead of a transform")
	output := fs.String("output", "", "Output path (required)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *output == "" {
		return fmt.Errorf("%w: example: -output is required", errUsage)
	}
	if *identity && *corr {
		return fmt.Errorf("%w: example: -identity and -correspondences are exclusive", errUsage)
	}
	if math.IsNaN(*scale) || *scale <= 0 {
		return fmt.Errorf("%w: example: scale must be positive, got %v", georef.ErrValidation, *scale)
	}

	var v any
	switch {
	case *corr:
		v = georef.ExampleCorrespondences(*lat, *lon, *height)
	case *identity:
		v = georef.IdentityDescriptor()
	default:
		v = georef.ENUDescriptor(*lat, *lon, *height, *scale)
	}
	if err := writeJSON(e, *output, v); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", *output)
	return nil
}

// runView is the printed form of a recorded run.
type runView struct {
	RunID      string                     `json:"run_id"`
	Kind       string                     `json:"kind"`
	CreatedAt  float64                    `json:"created_at"`
	Transform  georef.TransformDescriptor `json:"transform"`
	RMSE       *float64                   `json:"rmse,omitempty"`
	Quality    string                     `json:"quality,omitempty"`
	SourcePath string                     `json:"source_path,omitempty"`
	OutputPath string                     `json:"output_path,omitempty"`
}

func handleRuns(e env, args []string) error {
	fs := newFlagSet(e, "runs")
	dbPath := fs.String("db", "", "sqlite run database (required)")
	limit := fs.Int("limit", 20, "Maximum runs to list, newest first (0 = all)")
	runID := fs.String("id", "", "Show a single run")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *dbPath == "" {
		return fmt.Errorf("%w: runs: -db is required", errUsage)
	}

	db, err := georefdb.NewDB(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	var runs []georefdb.Run
	if *runID != "" {
		r, err := db.GetRun(ctx, *runID)
		if err != nil {
			return err
		}
		runs = []georefdb.Run{r}
	} else if runs, err = db.ListRuns(ctx, *limit); err != nil {
		return err
	}

	views := make([]runView, len(runs))
	for i, r := range runs {
		views[i] = runView{
			RunID:      r.RunID,
			Kind:       r.Kind,
			CreatedAt:  r.CreatedAt,
			Transform:  georef.DescriptorFromTransform(r.Transform),
			RMSE:       r.RMSE,
			Quality:    r.Quality,
			SourcePath: r.SourcePath,
			OutputPath: r.OutputPath,
		}
	}
	return printJSON(e, views)
}
