package sqlite

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dyluth/xray/pkg/projectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "xray.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_GetSet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, projectstore.SeenKey("ABC-123"))
	assert.True(t, projectstore.IsNotFound(err))

	require.NoError(t, store.Set(ctx, projectstore.SeenKey("ABC-123"), "ABC-123"))
	require.NoError(t, store.Set(ctx, projectstore.SeenKey("ABC-123"), "ABC-123"), "Set must be an upsert")

	value, err := store.Get(ctx, projectstore.SeenKey("ABC-123"))
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", value)
}

func TestStore_SaveProjectRecordMerges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveProjectRecord(ctx, "ABC-123", map[string]json.RawMessage{
		"project": json.RawMessage(`{"v":1}`),
	}))
	require.NoError(t, store.SaveProjectRecord(ctx, "ABC-123", map[string]json.RawMessage{
		"projectStatusHistory": json.RawMessage(`[]`),
	}))
	require.NoError(t, store.SaveProjectRecord(ctx, "ABC-123", map[string]json.RawMessage{
		"project": json.RawMessage(`{"v":2}`),
	}))

	record, err := store.GetProjectRecord(ctx, "ABC-123")
	require.NoError(t, err)
	assert.Equal(t, []string{"project", "projectStatusHistory"}, record.FieldNames())
	assert.JSONEq(t, `{"v":2}`, string(record.Fields["project"]))
	assert.LessOrEqual(t, record.CreatedAtMs, record.UpdatedAtMs)
}

func TestStore_SaveProjectRecordRejectsInvalidJSON(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.SaveProjectRecord(ctx, "BAD-1", map[string]json.RawMessage{
		"project": json.RawMessage(`{`),
	})
	require.Error(t, err)

	// The transaction must have rolled back the project row as well
	_, err = store.GetProjectRecord(ctx, "BAD-1")
	assert.True(t, projectstore.IsNotFound(err))
}

func TestStore_ListProjectRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	records, err := store.ListProjectRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	for _, key := range []string{"AAA-1", "BBB-2"} {
		require.NoError(t, store.SaveProjectRecord(ctx, key, map[string]json.RawMessage{
			"project": json.RawMessage(`{}`),
		}))
	}

	records, err = store.ListProjectRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, record := range records {
		assert.Contains(t, record.Fields, "project")
	}
}

func TestStore_SeenMarkers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, projectstore.SeenKey("ZED-9"), "ZED-9"))
	require.NoError(t, store.Set(ctx, projectstore.SeenKey("ABC-1"), "ABC-1"))
	require.NoError(t, store.Set(ctx, "other", "x"))

	seen, err := store.ListSeen(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC-1", "ZED-9"}, seen)

	removed, err := store.ForgetSeen(ctx, "ZED-9")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.ForgetSeen(ctx, "ZED-9")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStore_ConcurrentSaves(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.SaveProjectRecord(ctx, "CON-1", map[string]json.RawMessage{
				"project": json.RawMessage(`{}`),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	record, err := store.GetProjectRecord(ctx, "CON-1")
	require.NoError(t, err)
	assert.Equal(t, "CON-1", record.ProjectKey)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "xray.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, projectstore.SeenKey("ABC-123"), "ABC-123"))
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, projectstore.SeenKey("ABC-123"))
	require.NoError(t, err)
	assert.Equal(t, "ABC-123", value)
}
