package status

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

func newTracker(t *testing.T) *Tracker {
	t.Helper()
	db, err := kvstore.OpenSQLite(filepath.Join(t.TempDir(), "status.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	tr := NewTracker(db.Table("status", Schema), nil)
	tr.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return tr
}

func TestTracker_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	require.NoError(t, tr.Set(ctx, Update{UserID: "u1", DocKey: "u1/a.txt", FileName: "a.txt", Status: models.StatusError, Error: "boom"}))
	require.NoError(t, tr.Set(ctx, Update{UserID: "u1", DocKey: "u1/a.txt", FileName: "a.txt", Status: models.StatusProcessing}))
	require.NoError(t, tr.Set(ctx, Update{UserID: "u1", DocKey: "u1/a.txt", FileName: "a.txt", Status: models.StatusIndexed, ChunkCount: Count(3)}))

	st, err := tr.Get(ctx, "u1", "u1/a.txt")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, models.StatusIndexed, st.Status)
	assert.Equal(t, 3, st.ChunkCount)
	assert.Empty(t, st.Error)
	assert.Equal(t, "a.txt", st.FileName)
	assert.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), st.LastUpdated)
}

func TestTracker_GetMissingAndDelete(t *testing.T) {
	ctx := context.Background()
	tr := newTracker(t)

	st, err := tr.Get(ctx, "u1", "u1/none.txt")
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, tr.Set(ctx, Update{UserID: "u1", DocKey: "u1/a.txt", Status: models.StatusIndexed}))
	require.NoError(t, tr.Delete(ctx, "u1", "u1/a.txt"))
	st, err = tr.Get(ctx, "u1", "u1/a.txt")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestTracker_DisabledIsNoop(t *testing.T) {
	ctx := context.Background()
	tr := NewTracker(nil, nil)

	assert.False(t, tr.Enabled())
	assert.NoError(t, tr.Set(ctx, Update{UserID: "u1", DocKey: "k", Status: models.StatusIndexed}))
	st, err := tr.Get(ctx, "u1", "k")
	assert.NoError(t, err)
	assert.Nil(t, st)
	assert.NoError(t, tr.Delete(ctx, "u1", "k"))
}

type failingTable struct{ kvstore.Table }

func (failingTable) Put(context.Context, kvstore.Item) error { return errors.New("unavailable") }

func TestTracker_SetReturnsStoreError(t *testing.T) {
	tr := NewTracker(failingTable{}, nil)
	assert.Error(t, tr.Set(context.Background(), Update{UserID: "u1", DocKey: "k", Status: models.StatusError}))
}
