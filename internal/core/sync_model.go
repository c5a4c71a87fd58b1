package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notelock/core/internal/models"
	"github.com/notelock/core/internal/search"
)

// SaveModel validates and persists a record, queues it for upload, and keeps
// the profile cache and search index in step. action is "create" or "update";
// the caller decided which. Returns the record with its id (and timestamps)
// filled in.
func (c *Core) SaveModel(ctx context.Context, action string, m models.Model) (models.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	id := m.ModelID()
	touch(m, time.Now().UTC())

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s %s: %w", m.ModelType(), id, err)
	}

	if err := c.db.SaveRecord(ctx, m.ModelType(), id, data); err != nil {
		return nil, err
	}
	if err := c.db.EnqueueOutgoing(ctx, action, m.ModelType(), id, data); err != nil {
		return nil, err
	}

	switch v := m.(type) {
	case *models.Space:
		c.profile.putSpace(v)
	case *models.Board:
		c.profile.putBoard(v)
	case *models.Note:
		if ix := c.Index(); ix != nil {
			if err := ix.IndexNote(ctx, v); err != nil {
				c.log.Warn("failed to index note", zap.String("id", id), zap.Error(err))
			}
		}
	}

	c.log.Debug("saved record",
		zap.String("action", action),
		zap.String("type", string(m.ModelType())),
		zap.String("id", id))
	return m, nil
}

// DeleteModel removes a record locally and queues the deletion for upload.
// Deleting a record that does not exist is not an error; the delete still
// propagates so the remote converges.
func (c *Core) DeleteModel(ctx context.Context, typ models.Type, id string) error {
	if err := c.db.DeleteRecord(ctx, typ, id); err != nil {
		return err
	}
	if err := c.db.EnqueueOutgoing(ctx, "delete", typ, id, nil); err != nil {
		return err
	}

	switch typ {
	case models.TypeSpace:
		c.profile.removeSpace(id)
	case models.TypeBoard:
		c.profile.removeBoard(id)
	case models.TypeNote:
		if ix := c.Index(); ix != nil {
			if err := ix.RemoveNote(ctx, id); err != nil {
				c.log.Warn("failed to deindex note", zap.String("id", id), zap.Error(err))
			}
		}
	}

	c.log.Debug("deleted record", zap.String("type", string(typ)), zap.String("id", id))
	return nil
}

// LoadNotes returns the notes with the given ids, skipping any that are
// missing locally.
func (c *Core) LoadNotes(ctx context.Context, ids []string) ([]*models.Note, error) {
	return c.db.GetNotes(ctx, ids)
}

// FindNotes runs a search query and loads the matching notes, best match
// first. Requires a loaded profile (the index is built at login).
func (c *Core) FindNotes(ctx context.Context, q *search.Query) ([]*models.Note, error) {
	ix := c.Index()
	if ix == nil {
		return nil, fmt.Errorf("search index not loaded")
	}

	ids, err := ix.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	return c.db.GetNotes(ctx, ids)
}

// NoteTags returns tag frequencies for a space, most used first.
func (c *Core) NoteTags(ctx context.Context, spaceID string, boards []string, limit int) ([]search.TagCount, error) {
	ix := c.Index()
	if ix == nil {
		return nil, fmt.Errorf("search index not loaded")
	}
	return ix.TagsByFrequency(ctx, spaceID, boards, limit)
}

// touch stamps the record's timestamps: updated always, created only when
// unset.
func touch(m models.Model, now time.Time) {
	switch v := m.(type) {
	case *models.User:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Space:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Board:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Note:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	case *models.Invite:
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.UpdatedAt = now
	}
}
