package registry

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*SQLiteStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func TestSQLiteAddIsIdempotent(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	result, err := store.Add(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, Added, result)

	result, err = store.Add(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, result)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteAddNormalizesAddresses(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "  Alice@Example.COM ")
	require.NoError(t, err)

	result, err := store.Add(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, result)

	ok, err := store.Contains(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSQLiteRemove(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.Add(ctx, "alice@example.com")
	require.NoError(t, err)

	result, err := store.Remove(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, Removed, result)

	result, err = store.Remove(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, NotPresent, result)

	ok, err := store.Contains(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteListKeepsInsertionOrder(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	addresses := []string{"carol@example.com", "alice@example.com", "bob@example.com"}
	for _, a := range addresses {
		_, err := store.Add(ctx, a)
		require.NoError(t, err)
	}

	subscribers, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, addresses, subscribers)
}

func TestSQLiteEmptyList(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	subscribers, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, subscribers)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = store.Add(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	ok, err := reopened.Contains(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "   ")
	assert.Error(t, err)
}
