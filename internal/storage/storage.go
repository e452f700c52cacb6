// Package storage is the SQLite-backed history of what has been seen, the
// point-in-time snapshots used for trend comparison, and the alerts already sent.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/polynotify/internal/models"
	_ "modernc.org/sqlite"
)

// Error wraps a database failure with the operation that hit it. Callers
// treat these as fatal: losing dedup state risks duplicate or missing alerts.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage: failed to %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsStorageError reports whether err came from the history store.
func IsStorageError(err error) bool {
	var se *Error
	return errors.As(err, &se)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Option configures a Storage.
type Option func(*Storage)

// WithClock overrides the time source used for every recorded timestamp and
// for lookback and retention cutoffs.
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// Storage wraps a SQLite database for all history operations.
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// Stats is a row count summary.
type Stats struct {
	SeenMarkets int64
	Snapshots   int64
	AlertsSent  int64
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/polynotify/data.db.
func New(dbPath string, opts ...Option) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "polynotify", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, wrap("create data directory", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, wrap("open database", err)
	}
	db.SetMaxOpenConns(1) // single writer; also keeps :memory: on one connection
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, wrap("set WAL mode", err)
	}
	s := &Storage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, wrap("create tables", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seen_markets (
			market_id     TEXT PRIMARY KEY,
			first_seen_at INTEGER NOT NULL,
			observed_open INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS market_snapshots (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			market_id      TEXT NOT NULL,
			outcome_prices TEXT,
			volume_24hr    REAL,
			recorded_at    INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_market_time
			ON market_snapshots(market_id, recorded_at)`,
		`CREATE TABLE IF NOT EXISTS alerts_sent (
			market_id  TEXT NOT NULL,
			alert_kind TEXT NOT NULL,
			sent_at    INTEGER NOT NULL,
			PRIMARY KEY (market_id, alert_kind)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// HasSeen reports whether the market was ever observed.
func (s *Storage) HasSeen(ctx context.Context, marketID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_markets WHERE market_id = ?`, marketID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("check seen market", err)
	}
	return true, nil
}

// MarkSeen records the first observation of a market. Repeat calls keep the
// original timestamp.
func (s *Storage) MarkSeen(ctx context.Context, marketID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_markets (market_id, first_seen_at) VALUES (?, ?)`,
		marketID, s.now().UnixNano())
	return wrap("mark market seen", err)
}

// MarkObservedOpen flags a seen market as having been observed while open.
// It is a no-op for markets that were never marked seen.
func (s *Storage) MarkObservedOpen(ctx context.Context, marketID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE seen_markets SET observed_open = 1 WHERE market_id = ? AND observed_open = 0`,
		marketID)
	return wrap("mark market observed open", err)
}

// ObservedOpen reports whether the market was ever observed while open.
func (s *Storage) ObservedOpen(ctx context.Context, marketID string) (bool, error) {
	var open int
	err := s.db.QueryRowContext(ctx,
		`SELECT observed_open FROM seen_markets WHERE market_id = ?`, marketID).Scan(&open)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("check observed open", err)
	}
	return open != 0, nil
}

// IsEmpty reports whether no market has ever been seen, i.e. this is a cold start.
func (s *Storage) IsEmpty(ctx context.Context) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM seen_markets LIMIT 1`).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, wrap("check empty history", err)
	}
	return false, nil
}

// SaveSnapshot appends a snapshot stamped with the current time. Nil prices
// or volume are stored as NULL.
func (s *Storage) SaveSnapshot(ctx context.Context, marketID string, prices []models.OutcomePrice, volume *float64) error {
	var pricesJSON sql.NullString
	if prices != nil {
		b, err := json.Marshal(prices)
		if err != nil {
			return wrap("marshal outcome prices", err)
		}
		pricesJSON = sql.NullString{String: string(b), Valid: true}
	}
	var vol sql.NullFloat64
	if volume != nil {
		vol = sql.NullFloat64{Float64: *volume, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO market_snapshots (market_id, outcome_prices, volume_24hr, recorded_at)
		VALUES (?, ?, ?, ?)`,
		marketID, pricesJSON, vol, s.now().UnixNano())
	return wrap("save snapshot", err)
}

// SnapshotAsOf returns the most recent snapshot recorded at or before
// now - lookback, or nil when history does not reach back that far.
func (s *Storage) SnapshotAsOf(ctx context.Context, marketID string, lookback time.Duration) (*models.Snapshot, error) {
	cutoff := s.now().Add(-lookback).UnixNano()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, market_id, outcome_prices, volume_24hr, recorded_at
		FROM market_snapshots
		WHERE market_id = ? AND recorded_at <= ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`, marketID, cutoff)

	var snap models.Snapshot
	var pricesJSON sql.NullString
	var vol sql.NullFloat64
	var recordedAtNano int64
	err := row.Scan(&snap.ID, &snap.MarketID, &pricesJSON, &vol, &recordedAtNano)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("load snapshot", err)
	}
	if pricesJSON.Valid {
		if err := json.Unmarshal([]byte(pricesJSON.String), &snap.Prices); err != nil {
			return nil, wrap("unmarshal outcome prices", err)
		}
	}
	if vol.Valid {
		v := vol.Float64
		snap.Volume = &v
	}
	snap.RecordedAt = time.Unix(0, recordedAtNano)
	return &snap, nil
}

// HasAlerted reports whether an alert of this kind was ever committed for the market.
func (s *Storage) HasAlerted(ctx context.Context, marketID string, kind models.AlertKind) (bool, error) {
	last, err := s.LastAlertTime(ctx, marketID, kind)
	if err != nil {
		return false, err
	}
	return last != nil, nil
}

// LastAlertTime returns when an alert of this kind was last committed, or nil.
func (s *Storage) LastAlertTime(ctx context.Context, marketID string, kind models.AlertKind) (*time.Time, error) {
	var sentAtNano int64
	err := s.db.QueryRowContext(ctx,
		`SELECT sent_at FROM alerts_sent WHERE market_id = ? AND alert_kind = ?`,
		marketID, string(kind)).Scan(&sentAtNano)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("load alert time", err)
	}
	t := time.Unix(0, sentAtNano)
	return &t, nil
}

// CommitAlert records that an alert was delivered. A repeat commit moves the
// timestamp forward instead of adding a row.
func (s *Storage) CommitAlert(ctx context.Context, marketID string, kind models.AlertKind) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO alerts_sent (market_id, alert_kind, sent_at) VALUES (?, ?, ?)`,
		marketID, string(kind), s.now().UnixNano())
	return wrap("commit alert", err)
}

// AlertRecords lists every committed alert, newest first.
func (s *Storage) AlertRecords(ctx context.Context) ([]models.AlertRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT market_id, alert_kind, sent_at FROM alerts_sent ORDER BY sent_at DESC`)
	if err != nil {
		return nil, wrap("query alerts", err)
	}
	defer rows.Close()

	var records []models.AlertRecord
	for rows.Next() {
		var r models.AlertRecord
		var kind string
		var sentAtNano int64
		if err := rows.Scan(&r.MarketID, &kind, &sentAtNano); err != nil {
			return nil, wrap("scan alert", err)
		}
		r.Kind = models.AlertKind(kind)
		r.SentAt = time.Unix(0, sentAtNano)
		records = append(records, r)
	}
	return records, wrap("iterate alerts", rows.Err())
}

// PruneSnapshots deletes snapshots older than maxAge and returns how many went.
func (s *Storage) PruneSnapshots(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM market_snapshots WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, wrap("prune snapshots", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("count pruned snapshots", err)
	}
	return n, nil
}

// Stats returns row counts for each table.
func (s *Storage) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM seen_markets),
			(SELECT COUNT(*) FROM market_snapshots),
			(SELECT COUNT(*) FROM alerts_sent)`).Scan(&st.SeenMarkets, &st.Snapshots, &st.AlertsSent)
	if err != nil {
		return Stats{}, wrap("count rows", err)
	}
	return st, nil
}
