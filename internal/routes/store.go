package routes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/database"
)

const routeColumns = "id, name, source_channel, source_layer, dest_channel, dest_group, enabled, created_at, updated_at"

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Route is a stored route definition.
type Route struct {
	ID            string
	Name          string
	SourceChannel int
	SourceLayer   int
	DestChannel   int
	DestGroup     string
	Enabled       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Source returns the routed engine position.
func (r Route) Source() amcp.Position {
	return amcp.At(r.SourceChannel, r.SourceLayer)
}

// Store reads and writes the routes table.
type Store struct {
	db *database.DB
}

func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Insert stores a new route.
func (s *Store) Insert(ctx context.Context, r Route) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO routes ("+routeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.ID, r.Name, r.SourceChannel, r.SourceLayer, r.DestChannel, r.DestGroup,
		boolToInt(r.Enabled), r.CreatedAt.UTC().Format(timeLayout), r.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert route %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the route with id, or nil when none exists.
func (s *Store) Get(ctx context.Context, id string) (*Route, error) {
	row := s.db.QueryRow(ctx, "SELECT "+routeColumns+" FROM routes WHERE id = ?", id)
	r, err := scanRoute(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get route %s: %w", id, err)
	}
	return r, nil
}

// List returns every route ordered by creation time.
func (s *Store) List(ctx context.Context) ([]*Route, error) {
	rows, err := s.db.Query(ctx, "SELECT "+routeColumns+" FROM routes ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list routes: %w", err)
	}
	defer rows.Close()

	var out []*Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("scan route: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetEnabled updates the enabled flag. It reports whether the route exists.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool, at time.Time) (bool, error) {
	res, err := s.db.Exec(ctx, "UPDATE routes SET enabled = ?, updated_at = ? WHERE id = ?",
		boolToInt(enabled), at.UTC().Format(timeLayout), id)
	if err != nil {
		return false, fmt.Errorf("update route %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update route %s: %w", id, err)
	}
	return n > 0, nil
}

// Delete removes a route. It reports whether the route existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM routes WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete route %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete route %s: %w", id, err)
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoute(row scanner) (*Route, error) {
	var (
		r                Route
		enabled          int
		created, updated string
	)
	if err := row.Scan(&r.ID, &r.Name, &r.SourceChannel, &r.SourceLayer, &r.DestChannel, &r.DestGroup,
		&enabled, &created, &updated); err != nil {
		return nil, err
	}
	r.Enabled = enabled != 0
	var err error
	if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if r.UpdatedAt, err = time.Parse(timeLayout, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &r, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
