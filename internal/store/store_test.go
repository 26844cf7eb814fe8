package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "octa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutCreatesThenUpdates(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	id, created, err := s.Put(ctx, "octapulse/a", []byte("first"), Image{Width: 1, Height: 1, Format: "jpeg"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, id)

	again, created, err := s.Put(ctx, "octapulse/a", []byte("second"), Image{Width: 2, Height: 2, Format: "jpeg"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	var data []byte
	require.NoError(t, s.DB().QueryRow(`SELECT data FROM images WHERE id = ?`, id).Scan(&data))
	assert.Equal(t, "second", string(data))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DistinctKeys(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_, created, err := s.Put(ctx, k, []byte(k), Image{})
		require.NoError(t, err)
		assert.True(t, created)
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
