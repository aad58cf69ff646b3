package kvstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSchema = Schema{PartitionKey: "user_id", SortKey: "chunk_id"}

func openTestDB(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLite_PutGetOverwrite(t *testing.T) {
	ctx := context.Background()
	tbl := openTestDB(t).Table("chunks", testSchema)

	require.NoError(t, tbl.Put(ctx, Item{"user_id": "u1", "chunk_id": "a#00000", "chunk_text": "hello", "n": 3}))

	got, err := tbl.Get(ctx, Key{PK: "u1", SK: "a#00000"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.GetString("chunk_text"))
	assert.Equal(t, 3, got.GetInt("n"))

	require.NoError(t, tbl.Put(ctx, Item{"user_id": "u1", "chunk_id": "a#00000", "chunk_text": "bye"}))
	got, err = tbl.Get(ctx, Key{PK: "u1", SK: "a#00000"})
	require.NoError(t, err)
	assert.Equal(t, "bye", got.GetString("chunk_text"))
	assert.False(t, got.Has("n"))

	missing, err := tbl.Get(ctx, Key{PK: "u1", SK: "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_PutRequiresKeys(t *testing.T) {
	tbl := openTestDB(t).Table("chunks", testSchema)
	assert.Error(t, tbl.Put(context.Background(), Item{"user_id": "u1"}))
}

func TestSQLite_TablesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	a := db.Table("a", testSchema)
	b := db.Table("b", testSchema)

	require.NoError(t, a.Put(ctx, Item{"user_id": "u1", "chunk_id": "x"}))
	got, err := b.Get(ctx, Key{PK: "u1", SK: "x"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_QueryPrefixAcrossPages(t *testing.T) {
	ctx := context.Background()
	tbl := openTestDB(t).Table("chunks", testSchema).(*sqliteTable)
	tbl.pageSize = 3

	for i := 0; i < 8; i++ {
		require.NoError(t, tbl.Put(ctx, Item{"user_id": "u1", "chunk_id": fmt.Sprintf("u1/a.txt#%05d", i)}))
	}
	require.NoError(t, tbl.Put(ctx, Item{"user_id": "u1", "chunk_id": "u1/a.txt.bak#00000"}))
	require.NoError(t, tbl.Put(ctx, Item{"user_id": "u2", "chunk_id": "u1/a.txt#00000"}))

	var sks []string
	err := tbl.Query(ctx, "u1", "u1/a.txt#", func(it Item) error {
		sks = append(sks, it.GetString("chunk_id"))
		return nil
	})
	require.NoError(t, err)
	require.Len(t, sks, 8)
	assert.Equal(t, "u1/a.txt#00000", sks[0])
	assert.Equal(t, "u1/a.txt#00007", sks[7])

	var all int
	require.NoError(t, tbl.Query(ctx, "u1", "", func(Item) error { all++; return nil }))
	assert.Equal(t, 9, all)
}

func TestSQLite_QueryCallbackMayWrite(t *testing.T) {
	ctx := context.Background()
	tbl := openTestDB(t).Table("chunks", testSchema)
	for i := 0; i < 4; i++ {
		require.NoError(t, tbl.Put(ctx, Item{"user_id": "u1", "chunk_id": fmt.Sprintf("d#%05d", i)}))
	}

	err := tbl.Query(ctx, "u1", "d#", func(it Item) error {
		key, err := KeyOf(testSchema, it)
		if err != nil {
			return err
		}
		return tbl.Delete(ctx, key)
	})
	require.NoError(t, err)

	var left int
	require.NoError(t, tbl.Query(ctx, "u1", "", func(Item) error { left++; return nil }))
	assert.Zero(t, left)
}

func TestSQLite_BatchDelete(t *testing.T) {
	ctx := context.Background()
	tbl := openTestDB(t).Table("chunks", testSchema)

	var keys []Key
	for i := 0; i < 60; i++ {
		k := Key{PK: "u1", SK: fmt.Sprintf("d#%05d", i)}
		keys = append(keys, k)
		require.NoError(t, tbl.Put(ctx, Item{"user_id": k.PK, "chunk_id": k.SK}))
	}
	require.NoError(t, tbl.Put(ctx, Item{"user_id": "u1", "chunk_id": "other#00000"}))

	require.NoError(t, tbl.BatchDelete(ctx, keys))
	require.NoError(t, tbl.BatchDelete(ctx, nil))

	var left []string
	require.NoError(t, tbl.Query(ctx, "u1", "", func(it Item) error {
		left = append(left, it.GetString("chunk_id"))
		return nil
	}))
	assert.Equal(t, []string{"other#00000"}, left)
}

func TestSQLite_IncrementIfBelow(t *testing.T) {
	ctx := context.Background()
	schema := Schema{PartitionKey: "user_id", SortKey: "usage_date"}
	tbl := openTestDB(t).Table("usage", schema)
	key := Key{PK: "u1", SK: "2025-01-02"}

	for want := 1; want <= 3; want++ {
		n, ok, err := tbl.IncrementIfBelow(ctx, key, "request_count", 3)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, n)
	}

	n, ok, err := tbl.IncrementIfBelow(ctx, key, "request_count", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, n)

	item, err := tbl.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, item.GetInt("request_count"))
	assert.Equal(t, "u1", item.GetString("user_id"))
	assert.Equal(t, "2025-01-02", item.GetString("usage_date"))

	_, ok, err = tbl.IncrementIfBelow(ctx, Key{PK: "u2", SK: "2025-01-02"}, "request_count", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_IncrementIfBelowConcurrent(t *testing.T) {
	ctx := context.Background()
	tbl := openTestDB(t).Table("usage", Schema{PartitionKey: "user_id", SortKey: "usage_date"})
	key := Key{PK: "u1", SK: "2025-01-02"}

	const limit = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := tbl.IncrementIfBelow(ctx, key, "request_count", limit)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
	item, err := tbl.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, limit, item.GetInt("request_count"))
}
