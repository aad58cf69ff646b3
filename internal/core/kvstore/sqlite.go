package kvstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv_items (
	tbl   TEXT NOT NULL,
	pk    TEXT NOT NULL,
	sk    TEXT NOT NULL,
	attrs TEXT NOT NULL,
	PRIMARY KEY (tbl, pk, sk)
)`

// SQLiteDB holds every logical table in one SQLite file.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection serialises writers, so each statement below is atomic on its own.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating kv_items table: %w", err)
	}
	return &SQLiteDB{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// Table returns a logical table backed by this database.
func (s *SQLiteDB) Table(name string, schema Schema) Table {
	return &sqliteTable{db: s.db, name: name, schema: schema, pageSize: 500}
}

type sqliteTable struct {
	db       *sql.DB
	name     string
	schema   Schema
	pageSize int
}

var _ Table = (*sqliteTable)(nil)

func (t *sqliteTable) Schema() Schema { return t.schema }

func (t *sqliteTable) Put(ctx context.Context, item Item) error {
	key, err := KeyOf(t.schema, item)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	const q = `
		INSERT INTO kv_items (tbl, pk, sk, attrs) VALUES (?, ?, ?, ?)
		ON CONFLICT (tbl, pk, sk) DO UPDATE SET attrs = excluded.attrs`
	if _, err := t.db.ExecContext(ctx, q, t.name, key.PK, key.SK, string(raw)); err != nil {
		return fmt.Errorf("sqlite put %s: %w", t.name, err)
	}
	return nil
}

func (t *sqliteTable) Get(ctx context.Context, key Key) (Item, error) {
	const q = `SELECT attrs FROM kv_items WHERE tbl = ? AND pk = ? AND sk = ?`
	var raw string
	err := t.db.QueryRowContext(ctx, q, t.name, key.PK, key.SK).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", t.name, err)
	}
	return decodeItem(raw)
}

func (t *sqliteTable) Query(ctx context.Context, pk, skPrefix string, fn func(Item) error) error {
	const first = `
		SELECT sk, attrs FROM kv_items
		WHERE tbl = ? AND pk = ? AND substr(sk, 1, ?) = ?
		ORDER BY sk LIMIT ?`
	const next = `
		SELECT sk, attrs FROM kv_items
		WHERE tbl = ? AND pk = ? AND substr(sk, 1, ?) = ? AND sk > ?
		ORDER BY sk LIMIT ?`

	prefixLen := utf8.RuneCountInString(skPrefix)
	lastSK := ""
	started := false
	for {
		var (
			rows *sql.Rows
			err  error
		)
		if !started {
			rows, err = t.db.QueryContext(ctx, first, t.name, pk, prefixLen, skPrefix, t.pageSize)
		} else {
			rows, err = t.db.QueryContext(ctx, next, t.name, pk, prefixLen, skPrefix, lastSK, t.pageSize)
		}
		if err != nil {
			return fmt.Errorf("sqlite query %s: %w", t.name, err)
		}
		started = true

		// Materialise the page before invoking fn so callbacks may write to the table.
		var page []Item
		for rows.Next() {
			var sk, raw string
			if err := rows.Scan(&sk, &raw); err != nil {
				rows.Close()
				return err
			}
			item, err := decodeItem(raw)
			if err != nil {
				rows.Close()
				return err
			}
			page = append(page, item)
			lastSK = sk
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, item := range page {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(page) < t.pageSize {
			return nil
		}
	}
}

func (t *sqliteTable) Delete(ctx context.Context, key Key) error {
	const q = `DELETE FROM kv_items WHERE tbl = ? AND pk = ? AND sk = ?`
	if _, err := t.db.ExecContext(ctx, q, t.name, key.PK, key.SK); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", t.name, err)
	}
	return nil
}

func (t *sqliteTable) BatchDelete(ctx context.Context, keys []Key) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM kv_items WHERE tbl = ? AND pk = ? AND sk = ?`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, t.name, k.PK, k.SK); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sqlite batch delete %s: %w", t.name, err)
		}
	}
	return tx.Commit()
}

func (t *sqliteTable) IncrementIfBelow(ctx context.Context, key Key, attr string, limit int) (int, bool, error) {
	if limit <= 0 {
		return 0, false, nil
	}
	path := "$." + attr
	// One upsert statement: the DO UPDATE guard makes the increment conditional and
	// RETURNING yields no row when the guard rejects it.
	const q = `
		INSERT INTO kv_items (tbl, pk, sk, attrs)
		VALUES (?, ?, ?, json_object(?, ?, ?, ?, ?, 1))
		ON CONFLICT (tbl, pk, sk) DO UPDATE
			SET attrs = json_set(kv_items.attrs, ?, COALESCE(json_extract(kv_items.attrs, ?), 0) + 1)
			WHERE COALESCE(json_extract(kv_items.attrs, ?), 0) < ?
		RETURNING json_extract(attrs, ?)`

	var count int64
	err := t.db.QueryRowContext(ctx, q,
		t.name, key.PK, key.SK,
		t.schema.PartitionKey, key.PK, t.schema.SortKey, key.SK, attr,
		path, path,
		path, limit,
		path,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return limit, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("sqlite increment %s: %w", t.name, err)
	}
	return int(count), true, nil
}

func decodeItem(raw string) (Item, error) {
	var item Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	return item, nil
}
