package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(filepath.Join(dir, "recordings"))
	require.NoError(t, err)
	ctx := context.Background()

	p := "GET_books_{id}/200_application-json_0123456789ab.json"
	require.NoError(t, s.Write(ctx, p, sampleEntry("GET /books/{id}", 200)))

	_, err = os.Stat(filepath.Join(dir, "recordings", "GET_books_{id}", "200_application-json_0123456789ab.json"))
	require.NoError(t, err)

	got, err := s.Read(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "GET /books/{id}", got.Request.OperationKey)
	assert.JSONEq(t, `{"a":1}`, string(got.Response.Body))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, p, list[0].Path)

	require.NoError(t, s.Delete(ctx, p))
	_, err = s.Read(ctx, p)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, p), ErrNotFound)
}

func TestFileStorageSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStorage(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0644))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFileStorageRejectsEscape(t *testing.T) {
	s, err := NewFileStorage(t.TempDir())
	require.NoError(t, err)

	err = s.Write(context.Background(), "../outside.json", sampleEntry("k", 200))
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, filepath.Clean(s.BasePath()), filepath.Clean(s.basePath))
}
