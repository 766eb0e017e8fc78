package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cryptorate-desk/internal/auth"
	"cryptorate-desk/internal/market"
)

type Store struct {
	db *sql.DB
}

// RateSnapshot is one symbol's rate as seen by a successful poll.
type RateSnapshot struct {
	TS        int64   `json:"ts"`
	Symbol    string  `json:"symbol"`
	Rate      float64 `json:"rate"`
	CreatedAt string  `json:"created_at"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/desk.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=3000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			token TEXT NOT NULL,
			display_name TEXT,
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS favorites (
			symbol TEXT PRIMARY KEY,
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS rate_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			rate REAL,
			created_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS favorites_marker (
			id INTEGER PRIMARY KEY CHECK (id = 1)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rate_snapshots_ts ON rate_snapshots(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_rate_snapshots_symbol ON rate_snapshots(symbol);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) LoadSession() (*auth.Session, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var sess auth.Session
	var name sql.NullString
	err := s.db.QueryRow(`SELECT token, display_name FROM session WHERE id = 1`).Scan(&sess.Token, &name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	sess.DisplayName = name.String
	return &sess, nil
}

func (s *Store) SaveSession(sess auth.Session) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(
		`INSERT INTO session (id, token, display_name, created_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET token=excluded.token, display_name=excluded.display_name, created_at=excluded.created_at`,
		sess.Token, sess.DisplayName, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *Store) ClearSession() error {
	if s == nil || s.db == nil {
		return nil
	}
	if _, err := s.db.Exec(`DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SessionStore exposes the session table to the auth guard.
func (s *Store) SessionStore() auth.SessionStore { return sessionStore{s} }

type sessionStore struct{ s *Store }

func (a sessionStore) Load() (*auth.Session, error) { return a.s.LoadSession() }
func (a sessionStore) Save(sess auth.Session) error { return a.s.SaveSession(sess) }
func (a sessionStore) Clear() error                 { return a.s.ClearSession() }

// Favorites returns the stored favorite symbols in insertion order. ok is
// false when nothing has ever been stored, so the caller can apply defaults.
func (s *Store) Favorites() (symbols []string, ok bool, err error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(`SELECT symbol FROM favorites ORDER BY rowid`)
	if err != nil {
		return nil, false, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, false, fmt.Errorf("scan favorite: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("rows favorites: %w", err)
	}
	if len(symbols) > 0 {
		return symbols, true, nil
	}
	var marker int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM favorites_marker`).Scan(&marker); err != nil {
		return nil, false, fmt.Errorf("query favorites marker: %w", err)
	}
	return nil, marker > 0, nil
}

// ReplaceFavorites overwrites the favorite set.
func (s *Store) ReplaceFavorites(symbols []string) error {
	if s == nil || s.db == nil {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin favorites: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(`DELETE FROM favorites`); err != nil {
		return fmt.Errorf("clear favorites: %w", err)
	}
	now := time.Now().Format(time.RFC3339)
	for _, sym := range symbols {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO favorites (symbol, created_at) VALUES (?, ?)`, sym, now); err != nil {
			return fmt.Errorf("insert favorite: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT OR IGNORE INTO favorites_marker (id) VALUES (1)`); err != nil {
		return fmt.Errorf("mark favorites: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit favorites: %w", err)
	}
	return nil
}

func (s *Store) InsertRateSnapshots(snaps []RateSnapshot) error {
	if s == nil || s.db == nil || len(snaps) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin rate snapshots: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	now := time.Now().Format(time.RFC3339)
	for _, rs := range snaps {
		if rs.CreatedAt == "" {
			rs.CreatedAt = now
		}
		if _, err := tx.Exec(
			`INSERT INTO rate_snapshots (ts, symbol, rate, created_at) VALUES (?, ?, ?, ?)`,
			rs.TS, rs.Symbol, rs.Rate, rs.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert rate snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rate snapshots: %w", err)
	}
	return nil
}

// RecordRates stores one poll result; it satisfies the poller's Recorder.
func (s *Store) RecordRates(at time.Time, rates market.RateMap) error {
	snaps := make([]RateSnapshot, 0, len(rates))
	for sym, r := range rates {
		snaps = append(snaps, RateSnapshot{TS: at.Unix(), Symbol: sym, Rate: r})
	}
	return s.InsertRateSnapshots(snaps)
}

func (s *Store) QueryRateSnapshots(symbol string, limit int, offset int) ([]RateSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 1000 {
		limit = 1000
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(
		`SELECT ts, symbol, rate, created_at FROM rate_snapshots WHERE symbol = ?
		 ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		symbol, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query rate snapshots: %w", err)
	}
	defer rows.Close()
	var out []RateSnapshot
	for rows.Next() {
		var rs RateSnapshot
		if err := rows.Scan(&rs.TS, &rs.Symbol, &rs.Rate, &rs.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rate snapshot: %w", err)
		}
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows rate snapshot: %w", err)
	}
	return out, nil
}
