package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fastsearch/fastsearch/internal/engine/index"
	"github.com/fastsearch/fastsearch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathConventions(t *testing.T) {
	path := PathFor("/var/data", "users")
	assert.Equal(t, filepath.Join("/var/data", "users.snapshot.json"), path)
	assert.Equal(t, "users", IndexNameFromPath(path))

	assert.Empty(t, IndexNameFromPath("/var/data/users.json"))
	assert.Empty(t, IndexNameFromPath("/var/data/"+FileSuffix))
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	path := PathFor(dir, "users")
	snap := &Snapshot{
		FormatVersion: FormatVersion,
		Index:         "users",
		Mapping:       map[string]string{"name": "text", "age": "integer"},
		CreatedAt:     time.Now().UTC(),
		Documents: []index.DocumentSnapshot{
			{ID: "user_1", Fields: map[string]any{"name": "Alice", "age": int64(30)}},
		},
	}

	require.NoError(t, Write(path, snap))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp file may remain after a successful write")
	assert.Equal(t, "users.snapshot.json", entries[0].Name())

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, "users", got.Index)
	assert.Equal(t, snap.Mapping, got.Mapping)
	require.Len(t, got.Documents, 1)
	assert.Equal(t, "user_1", got.Documents[0].ID)
	assert.Equal(t, "Alice", got.Documents[0].Fields["name"])
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "indices")
	snap := &Snapshot{
		FormatVersion: FormatVersion,
		Index:         "users",
		Mapping:       map[string]string{"name": "text"},
	}
	require.NoError(t, Write(PathFor(dir, "users"), snap))
	_, err := os.Stat(PathFor(dir, "users"))
	assert.NoError(t, err)
}

func TestReadErrors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is not found", func(t *testing.T) {
		_, err := Read(PathFor(dir, "absent"))
		assert.ErrorIs(t, err, errors.ErrNotFound)
	})

	t.Run("malformed JSON is a schema error", func(t *testing.T) {
		path := filepath.Join(dir, "bad.snapshot.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		_, err := Read(path)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("unsupported format version is a schema error", func(t *testing.T) {
		path := filepath.Join(dir, "future.snapshot.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"format_version":99,"index":"x","mapping":{"name":"text"}}`), 0644))
		_, err := Read(path)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})

	t.Run("empty mapping is a schema error", func(t *testing.T) {
		path := filepath.Join(dir, "empty.snapshot.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"format_version":1,"index":"x","mapping":{}}`), 0644))
		_, err := Read(path)
		assert.ErrorIs(t, err, errors.ErrSchema)
	})
}
