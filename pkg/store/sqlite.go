package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sightline/pkg/db"
	"sightline/pkg/model"
)

// Store defines the repository interface.
// It composes all sub-interfaces for full store access.
// Consumers should depend on specific sub-interfaces when possible.
type Store interface {
	StationStore
	FlightPathStore
	StateStore

	// Close closes the store connection.
	Close() error
}

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Stations ---

const stationColumns = `id, name, role, lon, lat, elevation, mount_offset, range_m`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*model.Station, error) {
	var st model.Station
	var name sql.NullString
	var role string
	err := row.Scan(&st.ID, &name, &role, &st.Base.Lon, &st.Base.Lat, &st.Base.Elevation, &st.Offset, &st.Range)
	if err != nil {
		return nil, err
	}
	st.Name = name.String
	st.Role = model.StationRole(role)
	return &st, nil
}

func (s *SQLiteStore) GetStation(ctx context.Context, id int64) (*model.Station, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = ?`, id)
	st, err := scanStation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return st, nil
}

func (s *SQLiteStore) ListStations(ctx context.Context) ([]model.Station, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// SaveStation inserts st, or updates it when st.ID is set. The assigned ID
// is written back.
func (s *SQLiteStore) SaveStation(ctx context.Context, st *model.Station) error {
	if !st.Role.Valid() {
		return fmt.Errorf("invalid station role %q", st.Role)
	}
	if st.ID > 0 {
		_, err := s.db.ExecContext(ctx,
			`UPDATE stations SET name = ?, role = ?, lon = ?, lat = ?, elevation = ?, mount_offset = ?, range_m = ? WHERE id = ?`,
			st.Name, string(st.Role), st.Base.Lon, st.Base.Lat, st.Base.Elevation, st.Offset, st.Range, st.ID)
		return err
	}
	return insertStation(ctx, s.db, st, "")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertStation(ctx context.Context, ex execer, st *model.Station, source string) error {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO stations (name, role, lon, lat, elevation, mount_offset, range_m, source, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.Name, string(st.Role), st.Base.Lon, st.Base.Lat, st.Base.Elevation, st.Offset, st.Range, source, time.Now())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	st.ID = id
	return nil
}

func (s *SQLiteStore) DeleteStation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM stations WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) ReplaceStations(ctx context.Context, source string, stations []model.Station) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM stations WHERE source = ?", source); err != nil {
		return err
	}
	for i := range stations {
		if !stations[i].Role.Valid() {
			return fmt.Errorf("station %d: invalid role %q", i, stations[i].Role)
		}
		if err := insertStation(ctx, tx, &stations[i], source); err != nil {
			return fmt.Errorf("station %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// --- Flight paths ---

func (s *SQLiteStore) GetFlightPath(ctx context.Context, id int64) (*model.FlightPath, error) {
	var fp model.FlightPath
	var name sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT id, name FROM flight_paths WHERE id = ?", id).Scan(&fp.ID, &name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	fp.Name = name.String

	wps, err := s.waypoints(ctx, id)
	if err != nil {
		return nil, err
	}
	fp.Waypoints = wps
	return &fp, nil
}

func (s *SQLiteStore) waypoints(ctx context.Context, pathID int64) ([]model.Point3D, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT lon, lat, elevation FROM waypoints WHERE path_id = ? ORDER BY seq", pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Point3D
	for rows.Next() {
		var p model.Point3D
		if err := rows.Scan(&p.Lon, &p.Lat, &p.Elevation); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListFlightPaths(ctx context.Context) ([]model.FlightPath, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM flight_paths ORDER BY id")
	if err != nil {
		return nil, err
	}
	var paths []model.FlightPath
	for rows.Next() {
		var fp model.FlightPath
		var name sql.NullString
		if err := rows.Scan(&fp.ID, &name); err != nil {
			rows.Close()
			return nil, err
		}
		fp.Name = name.String
		paths = append(paths, fp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Single connection: waypoints are loaded after the outer cursor closes
	for i := range paths {
		wps, err := s.waypoints(ctx, paths[i].ID)
		if err != nil {
			return nil, err
		}
		paths[i].Waypoints = wps
	}
	return paths, nil
}

// SaveFlightPath stores fp and its waypoints, replacing the waypoints of an
// existing path when fp.ID is set.
func (s *SQLiteStore) SaveFlightPath(ctx context.Context, fp *model.FlightPath) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if fp.ID > 0 {
		if _, err := tx.ExecContext(ctx, "UPDATE flight_paths SET name = ? WHERE id = ?", fp.Name, fp.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM waypoints WHERE path_id = ?", fp.ID); err != nil {
			return err
		}
	} else {
		res, err := tx.ExecContext(ctx, "INSERT INTO flight_paths (name, created_at) VALUES (?, ?)", fp.Name, time.Now())
		if err != nil {
			return err
		}
		if fp.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	for i, wp := range fp.Waypoints {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO waypoints (path_id, seq, lon, lat, elevation) VALUES (?, ?, ?, ?, ?)",
			fp.ID, i, wp.Lon, wp.Lat, wp.Elevation); err != nil {
			return fmt.Errorf("waypoint %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteFlightPath(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM waypoints WHERE path_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM flight_paths WHERE id = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
