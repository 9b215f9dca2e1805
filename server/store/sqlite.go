package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteIndex is a local, file-backed outcome sink for runs without Postgres.
type SQLiteIndex struct {
	db   *sql.DB
	once sync.Once
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			batch TEXT NOT NULL DEFAULT '',
			game_index INTEGER NOT NULL DEFAULT 0,
			objective TEXT NOT NULL,
			p0_model TEXT,
			p1_model TEXT,
			counts TEXT NOT NULL,
			p0_values TEXT NOT NULL,
			p1_values TEXT NOT NULL,
			p0_allocation TEXT,
			p1_allocation TEXT,
			p0_score INTEGER NOT NULL,
			p1_score INTEGER NOT NULL,
			message_count INTEGER NOT NULL,
			token_count INTEGER NOT NULL,
			is_valid_deal INTEGER NOT NULL,
			abort INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			disconnect INTEGER NOT NULL DEFAULT 0,
			bonus REAL NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_games_batch ON games(source, batch, game_index);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() { err = s.db.Close() })
	return err
}

func (s *SQLiteIndex) SaveOutcome(ctx context.Context, r Record) error {
	args, err := recordArgs(r)
	if err != nil {
		return err
	}
	for i, a := range args {
		if raw, ok := a.(json.RawMessage); ok {
			args[i] = string(raw)
		}
	}
	vals := placeholders(len(args), func(int) string { return "?" })
	_, err = s.db.ExecContext(ctx, `INSERT INTO games(`+gameColumns+`) VALUES (`+vals+`)`, args...)
	return err
}

// RecentOutcomes returns up to limit games, newest first.
func (s *SQLiteIndex) RecentOutcomes(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, `+gameColumns+` FROM games ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
