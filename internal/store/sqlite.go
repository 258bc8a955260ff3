package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

type RunRecord struct {
	ID        int64  `json:"id"`
	TS        int64  `json:"ts"`
	RunID     string `json:"run_id"`
	Trigger   string `json:"trigger"`
	Attempted int    `json:"attempted"`
	Delivered int    `json:"delivered"`
	Status    string `json:"status"`
	Error     string `json:"error"`
	CreatedAt string `json:"created_at"`
}

type SymbolRecord struct {
	RunID     string  `json:"run_id"`
	Symbol    string  `json:"symbol"`
	Status    string  `json:"status"`
	Price     float64 `json:"price"`
	Error     string  `json:"error"`
	CreatedAt string  `json:"created_at"`
}

func Open(path string) (*Store, error) {
	if path == "" {
		path = "data/app.db"
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
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			run_id TEXT,
			triggered_by TEXT,
			attempted INTEGER,
			delivered INTEGER,
			status TEXT,
			error TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(ts);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_run_id ON runs(run_id);`,
		`CREATE TABLE IF NOT EXISTS run_symbols (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			symbol TEXT,
			status TEXT,
			price REAL,
			error TEXT,
			created_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_symbols_run_id ON run_symbols(run_id);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) InsertRun(r RunRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (ts, run_id, triggered_by, attempted, delivered, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TS, r.RunID, r.Trigger, r.Attempted, r.Delivered, r.Status, r.Error, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) InsertSymbol(rec SymbolRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = time.Now().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`INSERT INTO run_symbols (run_id, symbol, status, price, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Symbol, rec.Status, rec.Price, rec.Error, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run symbol: %w", err)
	}
	return nil
}

func (s *Store) QueryRuns(limit, offset int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(
		`SELECT id, ts, run_id, triggered_by, attempted, delivered, status, error, created_at
		 FROM runs ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.TS, &r.RunID, &r.Trigger, &r.Attempted, &r.Delivered, &r.Status, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows run: %w", err)
	}
	return out, nil
}

func (s *Store) QuerySymbolsByRun(runID string) ([]SymbolRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(
		`SELECT run_id, symbol, status, price, error, created_at
		 FROM run_symbols WHERE run_id = ? ORDER BY id ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run symbols: %w", err)
	}
	defer rows.Close()

	var out []SymbolRecord
	for rows.Next() {
		var rec SymbolRecord
		if err := rows.Scan(&rec.RunID, &rec.Symbol, &rec.Status, &rec.Price, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run symbol: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows run symbol: %w", err)
	}
	return out, nil
}
