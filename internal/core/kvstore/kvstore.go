// Package kvstore is the (partition key, sort key) table used for chunks, document status and
// usage counters. DynamoDB backs it in production, SQLite locally and in tests.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Schema names the key attributes of a table.
type Schema struct {
	PartitionKey string
	SortKey      string
}

// Key addresses one item.
type Key struct {
	PK string
	SK string
}

// Item is a flat attribute map. Values are strings, integers or floats; numbers read back
// from a backend may surface as float64 or json.Number, so use the typed accessors.
type Item map[string]any

// Table is the narrow key-value contract the core depends on.
type Table interface {
	Schema() Schema
	Put(ctx context.Context, item Item) error
	// Get returns nil, nil when the item does not exist.
	Get(ctx context.Context, key Key) (Item, error)
	// Query calls fn for every item in the partition whose sort key starts with skPrefix,
	// in sort-key order, transparently following pagination.
	Query(ctx context.Context, pk, skPrefix string, fn func(Item) error) error
	Delete(ctx context.Context, key Key) error
	BatchDelete(ctx context.Context, keys []Key) error
	// IncrementIfBelow atomically adds 1 to attr when its current value (0 if absent) is
	// strictly below limit. ok is false, and nothing changes, when the limit is reached.
	IncrementIfBelow(ctx context.Context, key Key, attr string, limit int) (count int, ok bool, err error)
}

// KeyOf extracts the key of item according to schema.
func KeyOf(schema Schema, item Item) (Key, error) {
	pk := item.GetString(schema.PartitionKey)
	sk := item.GetString(schema.SortKey)
	if pk == "" || sk == "" {
		return Key{}, fmt.Errorf("item missing key attributes %q/%q", schema.PartitionKey, schema.SortKey)
	}
	return Key{PK: pk, SK: sk}, nil
}

func (it Item) GetString(k string) string {
	switch v := it[k].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func (it Item) GetInt(k string) int {
	switch v := it[k].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(math.Round(v))
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	default:
		return 0
	}
}

func (it Item) Has(k string) bool {
	_, ok := it[k]
	return ok
}
