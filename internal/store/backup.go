package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/notelock/core/internal/models"
)

// ExportLine is one record in a JSONL backup stream.
type ExportLine struct {
	Type models.Type     `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// ExportResult reports what a backup run did.
type ExportResult struct {
	Records int
	Errors  []string
}

// ExportJSONL streams every stored record to w, one JSON object per line.
// Individual record failures are collected, not fatal.
func (db *DB) ExportJSONL(ctx context.Context, w io.Writer) (*ExportResult, error) {
	result := &ExportResult{}
	enc := json.NewEncoder(w)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT type, id, data FROM records ORDER BY type ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, id, data string
		if err := rows.Scan(&typ, &id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		line := ExportLine{Type: models.Type(typ), ID: id, Data: json.RawMessage(data)}
		if err := enc.Encode(&line); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", typ, id, err))
			continue
		}
		result.Records++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return result, nil
}

// ExportFile writes a JSONL backup to path.
func (db *DB) ExportFile(ctx context.Context, path string) (*ExportResult, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	return db.ExportJSONL(ctx, f)
}

// ImportJSONL reads a JSONL backup stream and upserts every line. Lines with
// an unknown type tag or invalid JSON are collected as errors and skipped.
func (db *DB) ImportJSONL(ctx context.Context, r io.Reader) (*ExportResult, error) {
	result := &ExportResult{}
	dec := json.NewDecoder(r)
	lineNum := 0

	for {
		var line ExportLine
		if err := dec.Decode(&line); err != nil {
			if err == io.EOF {
				break
			}
			return result, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		if !line.Type.Valid() {
			result.Errors = append(result.Errors,
				fmt.Sprintf("line %d: unknown record type %q", lineNum, line.Type))
			continue
		}
		if line.ID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: missing id", lineNum))
			continue
		}

		if err := db.SaveRecord(ctx, line.Type, line.ID, line.Data); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		result.Records++
	}

	return result, nil
}

// ImportFile reads a JSONL backup from path.
func (db *DB) ImportFile(ctx context.Context, path string) (*ExportResult, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	return db.ImportJSONL(ctx, f)
}
