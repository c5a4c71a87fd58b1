// Package store provides the local SQLite storage layer for the notelock core.
//
// The database runs embedded with WAL mode so syncer goroutines can read while
// the dispatch queue writes. Three tables:
//
//   - records:  one row per domain record, JSON body keyed by (type, id)
//   - outgoing: append-only queue of local changes awaiting push to the remote
//   - kv:       small key/value state (session, sync markers)
//
// Record contents are opaque to this layer; validation happens in the models
// package before anything reaches a write.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	_ "github.com/ncruces/go-sqlite3/vfs/memdb"

	"github.com/notelock/core/internal/models"
)

// DB wraps the embedded SQLite connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a database connection at path, creating parent directories as
// needed. The caller MUST call Close when done.
//
// Example:
//
//	db, err := store.Open(".notelock/core.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return openDSN("file:"+path, path)
}

// OpenMemory opens a throwaway in-memory database. Used by tests. The memdb
// VFS gives every pooled connection the same database, which a plain
// :memory: DSN would not.
func OpenMemory() (*DB, error) {
	name := uuid.NewString()
	return openDSN("file:/"+name+".db?vfs=memdb", ":memory:")
}

func openDSN(dsn, path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn, path: path}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.conn.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection. The search index shares it.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the tables and indexes. Idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,  -- JSON body
		updated_at TEXT NOT NULL,
		PRIMARY KEY (type, id)
	);

	CREATE TABLE IF NOT EXISTS outgoing (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,  -- create, update, delete
		type TEXT NOT NULL,
		record_id TEXT NOT NULL,
		data TEXT,             -- JSON body; NULL for deletes
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_type ON records(type);
	CREATE INDEX IF NOT EXISTS idx_outgoing_record ON outgoing(type, record_id);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveRecord inserts or updates a record body.
func (db *DB) SaveRecord(ctx context.Context, typ models.Type, id string, data []byte) error {
	query := `
	INSERT INTO records (type, id, data, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(type, id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		string(typ), id, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", typ, id, err)
	}
	return nil
}

// GetRecord returns the JSON body of a record. Returns sql.ErrNoRows when the
// record does not exist.
func (db *DB) GetRecord(ctx context.Context, typ models.Type, id string) ([]byte, error) {
	var data string
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM records WHERE type = ? AND id = ?`, string(typ), id).Scan(&data)
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

// DeleteRecord removes a record. Idempotent.
func (db *DB) DeleteRecord(ctx context.Context, typ models.Type, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM records WHERE type = ? AND id = ?`, string(typ), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", typ, id, err)
	}
	return nil
}

// ListRecords returns the JSON bodies of all records of the given type,
// oldest update first.
func (db *DB) ListRecords(ctx context.Context, typ models.Type) ([][]byte, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT data FROM records WHERE type = ? ORDER BY updated_at ASC, id ASC`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", typ, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, []byte(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// GetNotes loads the notes with the given ids. Missing ids are skipped, not
// errors; the result preserves the requested order.
func (db *DB) GetNotes(ctx context.Context, ids []string) ([]*models.Note, error) {
	notes := make([]*models.Note, 0, len(ids))
	for _, id := range ids {
		data, err := db.GetRecord(ctx, models.TypeNote, id)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load note %s: %w", id, err)
		}
		var note models.Note
		if err := json.Unmarshal(data, &note); err != nil {
			return nil, fmt.Errorf("failed to decode note %s: %w", id, err)
		}
		notes = append(notes, &note)
	}
	return notes, nil
}

// OutgoingItem is one queued local change awaiting push to the remote.
type OutgoingItem struct {
	Seq       int64           `json:"seq"`
	Action    string          `json:"action"`
	Type      models.Type     `json:"type"`
	RecordID  string          `json:"record_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// EnqueueOutgoing appends a change to the outgoing queue.
func (db *DB) EnqueueOutgoing(ctx context.Context, action string, typ models.Type, recordID string, data []byte) error {
	var body sql.NullString
	if data != nil {
		body = sql.NullString{String: string(data), Valid: true}
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO outgoing (action, type, record_id, data, created_at)
	VALUES (?, ?, ?, ?, ?)`,
		action, string(typ), recordID, body, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to enqueue outgoing %s %s %s: %w", action, typ, recordID, err)
	}
	return nil
}

// PendingOutgoing returns up to limit queued changes, oldest first.
// limit <= 0 means no limit.
func (db *DB) PendingOutgoing(ctx context.Context, limit int) ([]*OutgoingItem, error) {
	query := `
	SELECT seq, action, type, record_id, data, created_at
	FROM outgoing
	ORDER BY seq ASC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outgoing queue: %w", err)
	}
	defer rows.Close()

	var items []*OutgoingItem
	for rows.Next() {
		var (
			item      OutgoingItem
			typ       string
			data      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&item.Seq, &item.Action, &typ, &item.RecordID, &data, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan outgoing item: %w", err)
		}
		item.Type = models.Type(typ)
		if data.Valid {
			item.Data = json.RawMessage(data.String)
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			item.CreatedAt = t
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outgoing queue: %w", err)
	}
	return items, nil
}

// ClearOutgoing removes the queued changes with the given sequence numbers,
// typically after a successful push.
func (db *DB) ClearOutgoing(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, seq := range seqs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM outgoing WHERE seq = ?`, seq); err != nil {
			return fmt.Errorf("failed to clear outgoing seq %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// KVSet stores a key/value pair.
func (db *DB) KVSet(ctx context.Context, key, value string) error {
	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO kv (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set kv %s: %w", key, err)
	}
	return nil
}

// KVGet returns the value for key, or "" when absent.
func (db *DB) KVGet(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get kv %s: %w", key, err)
	}
	return value, nil
}

// KVDelete removes a key. Idempotent.
func (db *DB) KVDelete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete kv %s: %w", key, err)
	}
	return nil
}

// Wipe deletes every row from every table. Used by app:wipe-local-data; the
// schema stays in place so the core keeps running against an empty profile.
func (db *DB) Wipe(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "outgoing", "kv"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wipe: %w", err)
	}
	return nil
}

// RecordCount returns the number of stored records of the given type.
func (db *DB) RecordCount(ctx context.Context, typ models.Type) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE type = ?`, string(typ)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", typ, err)
	}
	return count, nil
}

// OutgoingCount returns the depth of the outgoing queue.
func (db *DB) OutgoingCount(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM outgoing`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count outgoing queue: %w", err)
	}
	return count, nil
}
