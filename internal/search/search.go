// Package search provides the full-text note index.
//
// The index lives in the same SQLite database as the record store: an FTS5
// virtual table for text queries plus a plain note_tags table for tag
// filtering and frequency counts. It is built when a profile is loaded and
// dropped at logout, so the rest of the core treats the index handle as
// nil-able.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/notelock/core/internal/models"
)

// Query describes one find-notes request.
type Query struct {
	// Text is the free-text match, empty for filter-only queries.
	Text string `json:"text,omitempty"`
	// SpaceID scopes the query to one space. Required.
	SpaceID string `json:"space_id"`
	// Boards restricts matches to the given boards, empty for all.
	Boards []string `json:"boards,omitempty"`
	// Tags requires every listed tag to be present.
	Tags []string `json:"tags,omitempty"`
	// Limit caps the result count, 0 for no cap.
	Limit int `json:"limit,omitempty"`
}

// TagCount is one entry of a tag frequency listing.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Index is the note search index.
type Index struct {
	conn *sql.DB
}

// Open creates the index tables on conn if needed and returns the handle.
func Open(ctx context.Context, conn *sql.DB) (*Index, error) {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
		id UNINDEXED,
		space_id UNINDEXED,
		board_id UNINDEXED,
		title,
		body,
		url
	);

	CREATE TABLE IF NOT EXISTS note_tags (
		note_id TEXT NOT NULL,
		space_id TEXT NOT NULL,
		board_id TEXT,
		tag TEXT NOT NULL,
		PRIMARY KEY (note_id, tag)
	);

	CREATE INDEX IF NOT EXISTS idx_note_tags_space ON note_tags(space_id, tag);
	`

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize search schema: %w", err)
	}
	return &Index{conn: conn}, nil
}

// IndexNote adds or replaces a note in the index.
func (ix *Index) IndexNote(ctx context.Context, note *models.Note) error {
	tx, err := ix.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, note.ID); err != nil {
		return fmt.Errorf("failed to clear note %s from index: %w", note.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, note.ID); err != nil {
		return fmt.Errorf("failed to clear tags for note %s: %w", note.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `
	INSERT INTO notes_fts (id, space_id, board_id, title, body, url)
	VALUES (?, ?, ?, ?, ?, ?)`,
		note.ID, note.SpaceID, note.BoardID, note.Title, note.Body, note.URL); err != nil {
		return fmt.Errorf("failed to index note %s: %w", note.ID, err)
	}

	for _, tag := range note.Tags {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO note_tags (note_id, space_id, board_id, tag)
		VALUES (?, ?, ?, ?)`,
			note.ID, note.SpaceID, note.BoardID, tag); err != nil {
			return fmt.Errorf("failed to index tag %q for note %s: %w", tag, note.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index update: %w", err)
	}
	return nil
}

// RemoveNote drops a note from the index. Idempotent.
func (ix *Index) RemoveNote(ctx context.Context, noteID string) error {
	tx, err := ix.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes_fts WHERE id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to remove note %s from index: %w", noteID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_tags WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to remove tags for note %s: %w", noteID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index removal: %w", err)
	}
	return nil
}

// Reindex rebuilds the index from scratch with the given notes.
func (ix *Index) Reindex(ctx context.Context, notes []*models.Note) error {
	if _, err := ix.conn.ExecContext(ctx, `DELETE FROM notes_fts`); err != nil {
		return fmt.Errorf("failed to clear fts index: %w", err)
	}
	if _, err := ix.conn.ExecContext(ctx, `DELETE FROM note_tags`); err != nil {
		return fmt.Errorf("failed to clear tag index: %w", err)
	}

	for _, note := range notes {
		if err := ix.IndexNote(ctx, note); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the ids of notes matching the query, best text match first.
func (ix *Index) Find(ctx context.Context, q *Query) ([]string, error) {
	if q.SpaceID == "" {
		return nil, fmt.Errorf("query requires a space_id")
	}

	var (
		conditions []string
		args       []any
		query      string
	)

	conditions = append(conditions, "f.space_id = ?")
	args = append(args, q.SpaceID)

	if len(q.Boards) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Boards)), ",")
		conditions = append(conditions, "f.board_id IN ("+placeholders+")")
		for _, b := range q.Boards {
			args = append(args, b)
		}
	}

	for _, tag := range q.Tags {
		conditions = append(conditions,
			"f.id IN (SELECT note_id FROM note_tags WHERE tag = ?)")
		args = append(args, tag)
	}

	if q.Text != "" {
		conditions = append(conditions, "notes_fts MATCH ?")
		args = append(args, ftsQuote(q.Text))
		query = `SELECT f.id FROM notes_fts f WHERE ` +
			strings.Join(conditions, " AND ") + ` ORDER BY rank`
	} else {
		query = `SELECT f.id FROM notes_fts f WHERE ` +
			strings.Join(conditions, " AND ") + ` ORDER BY f.id`
	}

	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := ix.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run search query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}
	return ids, nil
}

// TagsByFrequency returns the most used tags in a space, optionally
// restricted to the given boards, most frequent first. Ties break
// alphabetically so the listing is stable.
func (ix *Index) TagsByFrequency(ctx context.Context, spaceID string, boards []string, limit int) ([]TagCount, error) {
	var (
		conditions []string
		args       []any
	)

	conditions = append(conditions, "space_id = ?")
	args = append(args, spaceID)

	if len(boards) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(boards)), ",")
		conditions = append(conditions, "board_id IN ("+placeholders+")")
		for _, b := range boards {
			args = append(args, b)
		}
	}

	query := `
	SELECT tag, COUNT(*) AS freq
	FROM note_tags
	WHERE ` + strings.Join(conditions, " AND ") + `
	GROUP BY tag
	ORDER BY freq DESC, tag ASC
	`

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ix.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag frequencies: %w", err)
	}
	defer rows.Close()

	var tags []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan tag count: %w", err)
		}
		tags = append(tags, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tag counts: %w", err)
	}
	return tags, nil
}

// ftsQuote wraps each whitespace-separated term in double quotes so user
// input cannot inject FTS5 query syntax.
func ftsQuote(text string) string {
	terms := strings.Fields(text)
	for i, term := range terms {
		terms[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
