package archive

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"brentcast/pkg/model"
)

// Store keeps a local copy of downloaded price series and a log of
// forecast runs in a SQLite database.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// RunRecord is one persisted pipeline run
type RunRecord struct {
	RunID         string
	CreatedAt     time.Time
	Symbol        string
	Cutoff        time.Time
	HorizonDays   int
	IntervalWidth float64
	MAPE          float64
	RSquared      float64
	Coverage      float64
}

// Open opens (or creates) the SQLite database and runs migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets the API server read while the refresher writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS prices (
			symbol TEXT NOT NULL,
			date   TEXT NOT NULL,
			price  REAL NOT NULL,
			PRIMARY KEY (symbol, date)
		)`,

		`CREATE TABLE IF NOT EXISTS fetches (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol     TEXT NOT NULL,
			source     TEXT,
			fetched_at INTEGER NOT NULL,
			rows       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetches_symbol ON fetches(symbol, fetched_at)`,

		`CREATE TABLE IF NOT EXISTS runs (
			run_id         TEXT PRIMARY KEY,
			created_at     INTEGER NOT NULL,
			symbol         TEXT,
			cutoff         TEXT,
			horizon_days   INTEGER,
			interval_width REAL,
			mape           REAL,
			r_squared      REAL,
			coverage       REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Save upserts points for symbol and logs the fetch
func (s *Store) Save(ctx context.Context, symbol, source string, points []model.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO prices (symbol, date, price) VALUES (?,?,?)
		ON CONFLICT(symbol, date) DO UPDATE SET price = excluded.price`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range points {
		if _, err := stmt.ExecContext(ctx, symbol, p.Date.Format(model.DateLayout), p.Price); err != nil {
			return fmt.Errorf("insert %s: %w", p.Date.Format(model.DateLayout), err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO fetches (symbol, source, fetched_at, rows) VALUES (?,?,?,?)`,
		symbol, source, s.now().Unix(), len(points)); err != nil {
		return fmt.Errorf("log fetch: %w", err)
	}
	return tx.Commit()
}

// Load returns archived points for symbol on or after start, oldest first
func (s *Store) Load(ctx context.Context, symbol string, start time.Time) ([]model.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, price FROM prices WHERE symbol = ? AND date >= ? ORDER BY date`,
		symbol, start.Format(model.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var (
			date  string
			price float64
		)
		if err := rows.Scan(&date, &price); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		d, err := time.Parse(model.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("bad archived date %q: %w", date, err)
		}
		points = append(points, model.PricePoint{Date: d, Price: price})
	}
	return points, rows.Err()
}

// LastFetched returns when symbol was last saved, or the zero time if never
func (s *Store) LastFetched(ctx context.Context, symbol string) (time.Time, error) {
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(fetched_at) FROM fetches WHERE symbol = ?`, symbol).Scan(&ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("query fetches: %w", err)
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0), nil
}

// RecordRun stores the outcome of a forecast run
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs
		(run_id, created_at, symbol, cutoff, horizon_days, interval_width, mape, r_squared, coverage)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		r.RunID, created.Unix(), r.Symbol, r.Cutoff.Format(model.DateLayout),
		r.HorizonDays, r.IntervalWidth, r.MAPE, r.RSquared, r.Coverage,
	)
	return err
}

// RecentRuns returns up to limit runs, newest first
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, created_at, symbol, cutoff, horizon_days,
		interval_width, mape, r_squared, coverage FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var (
			r       RunRecord
			created int64
			cutoff  string
		)
		if err := rows.Scan(&r.RunID, &created, &r.Symbol, &cutoff, &r.HorizonDays,
			&r.IntervalWidth, &r.MAPE, &r.RSquared, &r.Coverage); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.Unix(created, 0)
		r.Cutoff, _ = time.Parse(model.DateLayout, cutoff)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
