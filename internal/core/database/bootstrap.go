package db

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"
)

//go:embed scripts/initdb.sql
var initSQL string

// schemaVersion must match the version row inserted by initdb.sql.
const schemaVersion = 1

// EnsureBootstrapped applies initdb.sql unless knowledgevault_meta already records schemaVersion.
// The script is idempotent, so a concurrent bootstrap from another process is harmless.
func EnsureBootstrapped(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	applied, err := schemaApplied(ctx, db)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	return applySchema(ctx, db)
}

func schemaApplied(ctx context.Context, db *sql.DB) (bool, error) {
	var table sql.NullString
	if err := db.QueryRowContext(ctx, `SELECT to_regclass('knowledgevault_meta')::text`).Scan(&table); err != nil {
		return false, fmt.Errorf("look up meta table: %w", err)
	}
	if !table.Valid {
		return false, nil
	}

	var n int
	err := db.QueryRowContext(ctx, `SELECT count(*) FROM knowledgevault_meta WHERE version = $1`, schemaVersion).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read schema version: %w", err)
	}
	return n > 0, nil
}

func applySchema(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, initSQL); err != nil {
		return fmt.Errorf("apply initdb.sql: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit bootstrap: %w", err)
	}
	return nil
}
