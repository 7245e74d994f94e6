// Package persist is the optional sqlite-backed store for a run's
// configuration dump and per-frame `x,y,w,h` output history. It is not
// part of the tracking core — the tracker never imports it. Schema is
// managed by golang-migrate, driven by modernc.org/sqlite, migrations
// embedded via go:embed. The surface is small: one run's
// configuration and its per-frame output rectangles.
package persist

import (
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/lgt-tracker/config"
	"github.com/banshee-data/lgt-tracker/patchset"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is one sqlite-backed persistence handle: a table of runs (one row
// per tracker session, carrying its serialised configuration and seed)
// and a table of per-frame output rectangles.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// migrates it to the latest schema version.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("persist: sub-filesystem for migrations: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("persist: iofs source driver: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("persist: sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("persist: migrate instance: %w", err)
	}
	// Note: m.Close() is not called here — the sqlite driver's Close()
	// tears down the underlying *sql.DB, which Store.Close manages
	// separately.
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("persist: migrate up: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// SaveConfig persists runID's configuration and seed, so LoadConfig can
// later reconstruct a second tracker that replays the run identically.
func (s *Store) SaveConfig(runID string, cfg *config.TuningConfig, seed int64) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("persist: marshal config: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (id, created_at, config_json, seed) VALUES (?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339Nano), string(data), seed,
	)
	if err != nil {
		return fmt.Errorf("persist: save config for run %s: %w", runID, err)
	}
	return nil
}

// LoadConfig reconstructs the TuningConfig and seed previously saved for
// runID.
func (s *Store) LoadConfig(runID string) (*config.TuningConfig, int64, error) {
	var data string
	var seed int64
	row := s.db.QueryRow(`SELECT config_json, seed FROM runs WHERE id = ?`, runID)
	if err := row.Scan(&data, &seed); err != nil {
		return nil, 0, fmt.Errorf("persist: load config for run %s: %w", runID, err)
	}
	cfg := config.EmptyTuningConfig()
	if err := json.Unmarshal([]byte(data), cfg); err != nil {
		return nil, 0, fmt.Errorf("persist: unmarshal config for run %s: %w", runID, err)
	}
	return cfg, seed, nil
}

// RecordFrame appends one frame's reported rectangle to runID's output
// history, the persisted form of the per-frame `x,y,w,h` output line.
func (s *Store) RecordFrame(runID string, frame int, rect patchset.Rect, isTracking bool) error {
	tracking := 0
	if isTracking {
		tracking = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO frame_outputs (run_id, frame, x, y, width, height, is_tracking) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, frame, rect.X, rect.Y, rect.Width, rect.Height, tracking,
	)
	if err != nil {
		return fmt.Errorf("persist: record frame %d for run %s: %w", frame, runID, err)
	}
	return nil
}

// FrameOutput is one row of a run's persisted per-frame output.
type FrameOutput struct {
	Frame      int
	Rect       patchset.Rect
	IsTracking bool
}

// FrameOutputs returns runID's recorded per-frame rectangles, ordered by
// frame index.
func (s *Store) FrameOutputs(runID string) ([]FrameOutput, error) {
	rows, err := s.db.Query(
		`SELECT frame, x, y, width, height, is_tracking FROM frame_outputs WHERE run_id = ? ORDER BY frame ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("persist: query frame outputs for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []FrameOutput
	for rows.Next() {
		var fo FrameOutput
		var tracking int
		if err := rows.Scan(&fo.Frame, &fo.Rect.X, &fo.Rect.Y, &fo.Rect.Width, &fo.Rect.Height, &tracking); err != nil {
			return nil, fmt.Errorf("persist: scan frame output for run %s: %w", runID, err)
		}
		fo.IsTracking = tracking != 0
		out = append(out, fo)
	}
	return out, rows.Err()
}

// FormatLine renders one frame output as the `x,y,w,h` integer line.
// A not-tracking frame renders as the zero rectangle.
func FormatLine(rect patchset.Rect, isTracking bool) string {
	if !isTracking {
		return "0,0,0,0"
	}
	return fmt.Sprintf("%d,%d,%d,%d", int(rect.X), int(rect.Y), int(rect.Width), int(rect.Height))
}
