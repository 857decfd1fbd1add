package gps

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/splatgeo/internal/fsutil"
	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
)

// ReadFixesCSV reads rows of filename,lat,lon[,alt]. A header row is
// recognised by a non-numeric latitude and skipped. Rows with empty lat or
// lon are images without GPS and are returned in withoutGPS.
func ReadFixesCSV(r io.Reader) (fixes []Fix, withoutGPS []string, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: csv line %d: %v", georef.ErrValidation, line, err)
		}
		if len(rec) < 3 {
			return nil, nil, fmt.Errorf("%w: csv line %d: want filename,lat,lon[,alt], got %d fields", georef.ErrValidation, line, len(rec))
		}
		name := strings.TrimSpace(rec[0])
		latStr, lonStr := strings.TrimSpace(rec[1]), strings.TrimSpace(rec[2])
		if latStr == "" || lonStr == "" {
			withoutGPS = append(withoutGPS, name)
			continue
		}
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lon, lonErr := strconv.ParseFloat(lonStr, 64)
		if line == 1 && (latErr != nil || lonErr != nil) {
			continue
		}
		if latErr != nil || lonErr != nil {
			return nil, nil, fmt.Errorf("%w: csv line %d: bad coordinates %q,%q", georef.ErrValidation, line, latStr, lonStr)
		}
		fix := Fix{Filename: filepath.Base(name), Path: name, Lat: lat, Lon: lon}
		if fix.Path == fix.Filename {
			fix.Path = ""
		}
		if len(rec) > 3 {
			if s := strings.TrimSpace(rec[3]); s != "" {
				alt, err := strconv.ParseFloat(s, 64)
				if err != nil {
					return nil, nil, fmt.Errorf("%w: csv line %d: bad altitude %q", georef.ErrValidation, line, s)
				}
				fix.Alt = &alt
			}
		}
		fixes = append(fixes, fix)
	}
	return fixes, withoutGPS, nil
}

// fixesDocument is the JSON form: either a bare array of fixes or an object
// with "images" and "images_without_gps" (the layout of a GPS summary).
type fixesDocument struct {
	Images           []Fix    `json:"images"`
	ImagesWithoutGPS []string `json:"images_without_gps"`
}

// ReadFixesJSON reads fixes from either JSON layout.
func ReadFixesJSON(data []byte) (fixes []Fix, withoutGPS []string, err error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &fixes); err != nil {
			return nil, nil, fmt.Errorf("%w: decode fixes: %v", georef.ErrValidation, err)
		}
		return fixes, nil, nil
	}
	var doc fixesDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("%w: decode fixes: %v", georef.ErrValidation, err)
	}
	return doc.Images, doc.ImagesWithoutGPS, nil
}

// maxFixesBytes bounds fix files read by ReadFixesFile.
const maxFixesBytes = 32 << 20

// ReadFixesFile picks the reader by extension: .csv, otherwise JSON.
func ReadFixesFile(fsys fsutil.FileSystem, path string) ([]Fix, []string, error) {
	data, err := fsutil.ReadFileLimit(fsys, path, maxFixesBytes)
	if err != nil {
		return nil, nil, err
	}
	var fixes []Fix
	var without []string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		fixes, without, err = ReadFixesCSV(strings.NewReader(string(data)))
	} else {
		fixes, without, err = ReadFixesJSON(data)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("gps: read %d fixes (%d images without GPS) from %s", len(fixes), len(without), path)
	return fixes, without, nil
}
