package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Huddle/internal/core"
)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "huddle.db")
	db, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, path
}

func TestReadMissing(t *testing.T) {
	db, _ := openTemp(t)
	v, ok, err := db.Read(context.Background(), core.DisplayNameKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, v)
}

func TestWriteOverwrites(t *testing.T) {
	db, _ := openTemp(t)
	ctx := context.Background()

	require.NoError(t, db.Write(ctx, core.DisplayNameKey, "Ada"))
	require.NoError(t, db.Write(ctx, core.DisplayNameKey, "Grace"))

	v, ok, err := db.Read(ctx, core.DisplayNameKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Grace", v)
}

func TestValuesSurviveReopen(t *testing.T) {
	db, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, db.Write(ctx, core.DisplayNameKey, "Linus"))
	require.NoError(t, db.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()

	v, ok, err := again.Read(ctx, core.DisplayNameKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Linus", v)
}
