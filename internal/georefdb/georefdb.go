// Package georefdb keeps a sqlite ledger of georeference runs: which
// transform was produced, how well it fit, and which files it touched.
package georefdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/splatgeo/internal/georef"
	"github.com/banshee-data/splatgeo/internal/monitoring"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("georef run not found")

// Run kinds.
const (
	KindApply     = "apply"
	KindPlacement = "placement"
	KindTileset   = "tileset"
)

// DB is a handle on the run ledger. The embedded *sql.DB is exposed for
// callers that need ad hoc queries.
type DB struct {
	*sql.DB
}

// OpenDB opens the database at path without touching the schema.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// NewDB opens path and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrations, err := MigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrations); err != nil {
		db.Close()
		return nil, err
	}
	monitoring.Logf("georefdb: opened %s", path)
	return db, nil
}

// Run is one recorded transform.
type Run struct {
	RunID      string                     `json:"run_id"`
	Kind       string                     `json:"kind"`
	CreatedAt  float64                    `json:"created_at"`
	Transform  georef.SimilarityTransform `json:"transform"`
	RMSE       *float64                   `json:"rmse,omitempty"`
	Quality    string                     `json:"quality,omitempty"`
	SourcePath string                     `json:"source_path"`
	OutputPath string                     `json:"output_path"`
	Notes      string                     `json:"notes,omitempty"`
}

// NewRun returns a run of kind for t with a fresh ID. A non-nil fit fills
// in RMSE and quality.
func NewRun(kind string, t georef.SimilarityTransform, fit *georef.Fit) Run {
	r := Run{RunID: uuid.NewString(), Kind: kind, Transform: t}
	if fit != nil {
		rmse := fit.RMSE
		r.RMSE = &rmse
		r.Quality = string(fit.Quality)
	}
	return r
}

// RecordRun stores r. An empty RunID is assigned; the stored ID is returned.
func (db *DB) RecordRun(ctx context.Context, r Run) (string, error) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if _, err := uuid.Parse(r.RunID); err != nil {
		return "", fmt.Errorf("%w: run id %q: %v", georef.ErrValidation, r.RunID, err)
	}
	if r.Kind == "" {
		return "", fmt.Errorf("%w: run kind is required", georef.ErrValidation)
	}
	if err := r.Transform.Validate(); err != nil {
		return "", err
	}
	rot, err := json.Marshal(r.Transform.Rotation)
	if err != nil {
		return "", err
	}

	var quality sql.NullString
	if r.Quality != "" {
		quality = sql.NullString{String: r.Quality, Valid: true}
	}
	tr := r.Transform.Translation
	_, err = db.ExecContext(ctx, `
		INSERT INTO georef_runs (
			run_id, kind, scale, rotation_json,
			translation_x, translation_y, translation_z,
			rmse, quality, source_path, output_path, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Kind, r.Transform.Scale, string(rot),
		tr[0], tr[1], tr[2],
		r.RMSE, quality, r.SourcePath, r.OutputPath, r.Notes,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert georef run: %w", err)
	}
	return r.RunID, nil
}

const runColumns = `run_id, kind, created_at, scale, rotation_json,
	translation_x, translation_y, translation_z,
	rmse, quality, source_path, output_path, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r       Run
		rot     string
		rmse    sql.NullFloat64
		quality sql.NullString
	)
	err := row.Scan(&r.RunID, &r.Kind, &r.CreatedAt, &r.Transform.Scale, &rot,
		&r.Transform.Translation[0], &r.Transform.Translation[1], &r.Transform.Translation[2],
		&rmse, &quality, &r.SourcePath, &r.OutputPath, &r.Notes)
	if err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(rot), &r.Transform.Rotation); err != nil {
		return Run{}, fmt.Errorf("run %s: decode rotation: %w", r.RunID, err)
	}
	if rmse.Valid {
		v := rmse.Float64
		r.RMSE = &v
	}
	r.Quality = quality.String
	return r, nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(ctx context.Context, runID string) (Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM georef_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("failed to load georef run: %w", err)
	}
	return r, nil
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM georef_runs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query georef runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan georef run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
