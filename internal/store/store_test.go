package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notelock/core/internal/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))
	return db
}

func TestRecordCRUD(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRecord(ctx, models.TypeNote, "n1", []byte(`{"id":"n1","title":"first"}`)))

	data, err := db.GetRecord(ctx, models.TypeNote, "n1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"n1","title":"first"}`, string(data))

	// Upsert replaces the body.
	require.NoError(t, db.SaveRecord(ctx, models.TypeNote, "n1", []byte(`{"id":"n1","title":"second"}`)))
	data, err = db.GetRecord(ctx, models.TypeNote, "n1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "second")

	count, err := db.RecordCount(ctx, models.TypeNote)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.DeleteRecord(ctx, models.TypeNote, "n1"))
	_, err = db.GetRecord(ctx, models.TypeNote, "n1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// Deleting again is fine.
	require.NoError(t, db.DeleteRecord(ctx, models.TypeNote, "n1"))
}

func TestRecordTypesAreNamespaced(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRecord(ctx, models.TypeNote, "same-id", []byte(`{"kind":"note"}`)))
	require.NoError(t, db.SaveRecord(ctx, models.TypeBoard, "same-id", []byte(`{"kind":"board"}`)))

	data, err := db.GetRecord(ctx, models.TypeBoard, "same-id")
	require.NoError(t, err)
	assert.Contains(t, string(data), "board")
}

func TestGetNotes(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		note := models.Note{ID: id, SpaceID: "s1", Title: "note " + id}
		data, err := json.Marshal(&note)
		require.NoError(t, err)
		require.NoError(t, db.SaveRecord(ctx, models.TypeNote, id, data))
	}

	// Requested order preserved, missing ids skipped.
	notes, err := db.GetNotes(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, "c", notes[0].ID)
	assert.Equal(t, "a", notes[1].ID)
}

func TestOutgoingQueue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.EnqueueOutgoing(ctx, "create", models.TypeNote, "n1", []byte(`{"id":"n1"}`)))
	require.NoError(t, db.EnqueueOutgoing(ctx, "update", models.TypeNote, "n1", []byte(`{"id":"n1","v":2}`)))
	require.NoError(t, db.EnqueueOutgoing(ctx, "delete", models.TypeBoard, "b1", nil))

	items, err := db.PendingOutgoing(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)

	// Oldest first; deletes carry no body.
	assert.Equal(t, "create", items[0].Action)
	assert.Equal(t, "update", items[1].Action)
	assert.Equal(t, "delete", items[2].Action)
	assert.Nil(t, items[2].Data)
	assert.Equal(t, models.TypeBoard, items[2].Type)

	// Limit applies.
	limited, err := db.PendingOutgoing(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Clearing removes only the named entries.
	require.NoError(t, db.ClearOutgoing(ctx, []int64{items[0].Seq, items[1].Seq}))
	remaining, err := db.PendingOutgoing(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "delete", remaining[0].Action)

	count, err := db.OutgoingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestKV(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	val, err := db.KVGet(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, val)

	require.NoError(t, db.KVSet(ctx, "k", "v1"))
	require.NoError(t, db.KVSet(ctx, "k", "v2"))

	val, err = db.KVGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)

	require.NoError(t, db.KVDelete(ctx, "k"))
	val, err = db.KVGet(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestWipe(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRecord(ctx, models.TypeNote, "n1", []byte(`{}`)))
	require.NoError(t, db.EnqueueOutgoing(ctx, "create", models.TypeNote, "n1", []byte(`{}`)))
	require.NoError(t, db.KVSet(ctx, "k", "v"))

	require.NoError(t, db.Wipe(ctx))

	count, err := db.RecordCount(ctx, models.TypeNote)
	require.NoError(t, err)
	assert.Zero(t, count)

	pending, err := db.OutgoingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	val, err := db.KVGet(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, val)

	// The schema survives: writes still work.
	require.NoError(t, db.SaveRecord(ctx, models.TypeNote, "n2", []byte(`{}`)))
}
