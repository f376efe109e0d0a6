// Package store journals bridge traffic to SQLite for post-session review.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"warriorbot-go/internal/bridge"
)

// Journal is an append-only record of snapshots received and instructions sent.
type Journal struct {
	db *sql.DB
}

// Entry is a journaled instruction with the time it was written.
type Entry struct {
	ID          int64
	Instruction bridge.Instruction
	RecordedAt  time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session TEXT NOT NULL,
	seq INTEGER NOT NULL,
	symbol TEXT NOT NULL,
	bar_time INTEGER NOT NULL,
	payload BLOB NOT NULL,
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_symbol ON snapshots(symbol, bar_time);
CREATE TABLE IF NOT EXISTS instructions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	uuid TEXT NOT NULL UNIQUE,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	in_reply_to INTEGER NOT NULL,
	payload BLOB NOT NULL,
	recorded_at INTEGER NOT NULL
);
`

// Open creates or opens the journal at path with WAL enabled.
func Open(path string) (*Journal, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; ":memory:" is also per-connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// AppendSnapshot stores a snapshot received on the named session.
func (j *Journal) AppendSnapshot(ctx context.Context, session string, snap bridge.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT INTO snapshots (session, seq, symbol, bar_time, payload, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		session, int64(snap.Seq), snap.Symbol, snap.BarTime.UnixNano(), payload, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// AppendInstruction stores an instruction sent to the host.
func (j *Journal) AppendInstruction(ctx context.Context, inst bridge.Instruction) error {
	payload, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("marshal instruction: %w", err)
	}
	_, err = j.db.ExecContext(ctx,
		"INSERT INTO instructions (uuid, symbol, action, in_reply_to, payload, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		inst.ID.String(), inst.Symbol, string(inst.Action), int64(inst.InReplyTo), payload, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert instruction: %w", err)
	}
	return nil
}

// Instructions returns instructions recorded at or after since, oldest first.
// A zero since returns everything.
func (j *Journal) Instructions(ctx context.Context, since time.Time) ([]Entry, error) {
	var cutoff int64
	if !since.IsZero() {
		cutoff = since.UnixNano()
	}
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, payload, recorded_at FROM instructions WHERE recorded_at >= ? ORDER BY id ASC",
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query instructions: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			payload []byte
			at      int64
		)
		if err := rows.Scan(&e.ID, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan instruction: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Instruction); err != nil {
			return nil, fmt.Errorf("unmarshal instruction %d: %w", e.ID, err)
		}
		e.RecordedAt = time.Unix(0, at)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// Snapshots returns the snapshots recorded for symbol in bar order.
func (j *Journal) Snapshots(ctx context.Context, symbol string) ([]bridge.Snapshot, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT payload FROM snapshots WHERE symbol = ? ORDER BY bar_time ASC, id ASC",
		symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	var out []bridge.Snapshot
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snap bridge.Snapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
