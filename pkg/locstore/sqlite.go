package locstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/pinmap/pkg/logger"
	_ "modernc.org/sqlite"
)

// Option tweaks a store at construction time.
type Option func(*storeOptions)

type storeOptions struct {
	now func() time.Time
}

// WithClock overrides the time source used for timestamps and recency buckets.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

func buildOptions(opts []Option) storeOptions {
	o := storeOptions{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// SQLiteStore persists locations in a single SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

var sortColumns = map[SortField]string{
	SortName:      "name COLLATE NOCASE",
	SortRate:      "rate",
	SortCreatedAt: "created_at",
	SortUpdatedAt: "updated_at",
}

// OpenSQLite opens (and creates if needed) the location database at path.
func OpenSQLite(path string, opts ...Option) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc sqlite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		rate INTEGER NOT NULL,
		lat REAL NOT NULL,
		lng REAL NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_locations_rate ON locations(rate)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_locations_updated_at ON locations(updated_at)`)
	logger.Debug("locstore: sqlite ready (path=%s)", path)

	o := buildOptions(opts)
	return &SQLiteStore{db: db, now: o.now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, loc Location) (Location, error) {
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	loc.ID = uuid.NewString()
	loc.CreatedAt = s.now().UnixMilli()
	loc.UpdatedAt = loc.CreatedAt
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locations(id, name, rate, lat, lng, address, created_at, updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		loc.ID, loc.Name, loc.Rate, loc.Geo.Lat, loc.Geo.Lng, loc.Geo.Address, loc.CreatedAt, loc.UpdatedAt)
	if err != nil {
		return Location{}, fmt.Errorf("insert location: %w", err)
	}
	return loc, nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (Location, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, rate, lat, lng, address, created_at, updated_at FROM locations WHERE id = ?`, id)
	loc, err := scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Location{}, fmt.Errorf("get location %s: %w", id, err)
	}
	return loc, nil
}

func (s *SQLiteStore) Update(ctx context.Context, loc Location) (Location, error) {
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	prev, err := s.GetByID(ctx, loc.ID)
	if err != nil {
		return Location{}, err
	}
	prev.Name = loc.Name
	prev.Rate = loc.Rate
	prev.UpdatedAt = editStamp(s.now(), prev.CreatedAt)
	res, err := s.db.ExecContext(ctx,
		`UPDATE locations SET name = ?, rate = ?, updated_at = ? WHERE id = ?`,
		prev.Name, prev.Rate, prev.UpdatedAt, prev.ID)
	if err != nil {
		return Location{}, fmt.Errorf("update location %s: %w", loc.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Location{}, fmt.Errorf("%w: %s", ErrNotFound, loc.ID)
	}
	return prev, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete location %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter, srt Sort) ([]Location, error) {
	query := `SELECT id, name, rate, lat, lng, address, created_at, updated_at FROM locations WHERE 1=1`
	args := []interface{}{}
	if f.MinRate > 0 {
		query += ` AND rate >= ?`
		args = append(args, f.MinRate)
	}
	query += ` ORDER BY ` + orderClause(srt)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()

	// SQLite's LOWER only folds ASCII, so text matching happens here
	// with the same predicate the other backends use.
	locs := []Location{}
	for rows.Next() {
		loc, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		if f.Match(loc) {
			locs = append(locs, loc)
		}
	}
	return locs, rows.Err()
}

func (s *SQLiteStore) CountByRating(ctx context.Context) (Tally, error) {
	var high, medium, low sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT
		SUM(CASE WHEN rate > 4 THEN 1 ELSE 0 END),
		SUM(CASE WHEN rate >= 3 AND rate <= 4 THEN 1 ELSE 0 END),
		SUM(CASE WHEN rate < 3 THEN 1 ELSE 0 END)
		FROM locations`).Scan(&high, &medium, &low)
	if err != nil {
		return Tally{}, fmt.Errorf("count by rating: %w", err)
	}
	t := NewTally(BucketHigh, BucketMedium, BucketLow)
	t.Add(BucketHigh, int(high.Int64))
	t.Add(BucketMedium, int(medium.Int64))
	t.Add(BucketLow, int(low.Int64))
	return t, nil
}

func (s *SQLiteStore) CountByRecency(ctx context.Context) (Tally, error) {
	locs, err := s.Query(ctx, Filter{}, Sort{})
	if err != nil {
		return Tally{}, fmt.Errorf("count by recency: %w", err)
	}
	return RecencyTally(locs, s.now()), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(r rowScanner) (Location, error) {
	var loc Location
	err := r.Scan(&loc.ID, &loc.Name, &loc.Rate, &loc.Geo.Lat, &loc.Geo.Lng, &loc.Geo.Address, &loc.CreatedAt, &loc.UpdatedAt)
	return loc, err
}

func orderClause(s Sort) string {
	col, ok := sortColumns[s.Field]
	if !ok {
		return "created_at ASC, rowid ASC"
	}
	dir := "ASC"
	if s.Descending() {
		dir = "DESC"
	}
	return col + " " + dir + ", rowid ASC"
}
