package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cgmanager/internal/database"
)

const itemColumns = "id, type, size, modified, frames, frame_num, frame_den, scanned_at"

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store reads and writes the media table.
type Store struct {
	db *database.DB
}

// NewStore wraps an open database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Get returns the item with the given id, or nil when the engine does not
// list it.
func (s *Store) Get(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRow(ctx, "SELECT "+itemColumns+" FROM media WHERE id = ?", NormalizeID(id))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media %s: %w", id, err)
	}
	return item, nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Type   string
	Prefix string
}

// List returns the catalogue ordered by id.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Item, error) {
	query := "SELECT " + itemColumns + " FROM media"
	var (
		clauses []string
		args    []any
	)
	if t := strings.TrimSpace(filter.Type); t != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, strings.ToUpper(t))
	}
	if p := strings.TrimSpace(filter.Prefix); p != "" {
		clauses = append(clauses, "id LIKE ? ESCAPE '\\'")
		args = append(args, escapeLike(NormalizeID(p))+"%")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Count returns the number of catalogued items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(1) FROM media").Scan(&n); err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return n, nil
}

// Upsert inserts or replaces items. A zero ScannedAt is set to now.
func (s *Store) Upsert(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.Tx(ctx, func(tx *sql.Tx) error {
		return upsertTx(ctx, tx, items, time.Now().UTC())
	})
}

// Prune removes items last seen before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(ctx, "DELETE FROM media WHERE scanned_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune media: %w", err)
	}
	return res.RowsAffected()
}

// Replace makes items the complete catalogue in one transaction and returns
// how many stale entries were removed.
func (s *Store) Replace(ctx context.Context, items []Item, scannedAt time.Time) (int64, error) {
	scannedAt = scannedAt.UTC()
	stamped := make([]Item, len(items))
	for i, item := range items {
		item.ScannedAt = scannedAt
		stamped[i] = item
	}
	var removed int64
	err := s.db.Tx(ctx, func(tx *sql.Tx) error {
		if err := upsertTx(ctx, tx, stamped, scannedAt); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM media WHERE scanned_at <> ?", formatTime(scannedAt))
		if err != nil {
			return fmt.Errorf("remove stale media: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, items []Item, now time.Time) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO media (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			size = excluded.size,
			modified = excluded.modified,
			frames = excluded.frames,
			frame_num = excluded.frame_num,
			frame_den = excluded.frame_den,
			scanned_at = excluded.scanned_at`)
	if err != nil {
		return fmt.Errorf("prepare media upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		id := NormalizeID(item.ID)
		if id == "" {
			return fmt.Errorf("media item without id")
		}
		scanned := item.ScannedAt
		if scanned.IsZero() {
			scanned = now
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			strings.ToUpper(item.Type),
			item.Size,
			formatTime(item.Modified),
			item.Frames,
			item.FrameNum,
			item.FrameDen,
			formatTime(scanned),
		); err != nil {
			return fmt.Errorf("upsert media %s: %w", id, err)
		}
	}
	return nil
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item        Item
		modifiedRaw string
		scannedRaw  string
	)
	if err := scanner.Scan(
		&item.ID,
		&item.Type,
		&item.Size,
		&modifiedRaw,
		&item.Frames,
		&item.FrameNum,
		&item.FrameDen,
		&scannedRaw,
	); err != nil {
		return nil, err
	}
	item.Modified = parseTime(modifiedRaw)
	item.ScannedAt = parseTime(scannedRaw)
	return &item, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
