package store

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notelock/core/internal/models"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, src.SaveRecord(ctx, models.TypeSpace, "s1", []byte(`{"id":"s1","title":"Personal"}`)))
	require.NoError(t, src.SaveRecord(ctx, models.TypeNote, "n1", []byte(`{"id":"n1","space_id":"s1"}`)))
	require.NoError(t, src.SaveRecord(ctx, models.TypeNote, "n2", []byte(`{"id":"n2","space_id":"s1"}`)))

	var buf bytes.Buffer
	result, err := src.ExportJSONL(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Records)
	assert.Empty(t, result.Errors)

	dst := newTestDB(t)
	imported, err := dst.ImportJSONL(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, imported.Records)

	data, err := dst.GetRecord(ctx, models.TypeNote, "n2")
	require.NoError(t, err)
	assert.Contains(t, string(data), "n2")

	spaces, err := dst.RecordCount(ctx, models.TypeSpace)
	require.NoError(t, err)
	assert.Equal(t, 1, spaces)
}

func TestImportSkipsBadLines(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	input := strings.Join([]string{
		`{"type":"note","id":"good","data":{"id":"good"}}`,
		`{"type":"bogus","id":"x","data":{}}`,
		`{"type":"note","id":"","data":{}}`,
		`{"type":"board","id":"b1","data":{"id":"b1"}}`,
	}, "\n")

	result, err := db.ImportJSONL(ctx, strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Records)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "bogus")
	assert.Contains(t, result.Errors[1], "missing id")
}

func TestImportOverwritesExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveRecord(ctx, models.TypeNote, "n1", []byte(`{"id":"n1","title":"old"}`)))

	_, err := db.ImportJSONL(ctx, strings.NewReader(
		`{"type":"note","id":"n1","data":{"id":"n1","title":"new"}}`))
	require.NoError(t, err)

	data, err := db.GetRecord(ctx, models.TypeNote, "n1")
	require.NoError(t, err)
	assert.Contains(t, string(data), "new")
}
