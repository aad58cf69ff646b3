package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// ChunkStore keeps chunks in Postgres with native pgvector embeddings. Replacing a
// document's chunks is a single transaction here.
type ChunkStore struct {
	db       *sql.DB
	pageSize int
}

var _ core.ChunkStore = (*ChunkStore)(nil)

func NewChunkStore(ctx context.Context, cfg *config.Config) (*ChunkStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &ChunkStore{db: db, pageSize: 500}, nil
}

func (c *ChunkStore) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// ReplaceChunks deletes and re-inserts the document's chunks in one transaction.
func (c *ChunkStore) ReplaceChunks(ctx context.Context, userID, docKey string, chunks []models.Chunk) error {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE user_id = $1 AND doc_key = $2`, userID, docKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear old chunks: %w", err)
	}

	const q = `
		INSERT INTO document_chunks
			(user_id, chunk_id, doc_key, chunk_index, chunk_text, filename, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		var vec any
		if ch.Embedding != nil {
			vec = pgvector.NewVector(ch.Embedding)
		}
		chunkID := fmt.Sprintf("%s#%05d", docKey, ch.Index)
		if _, err := stmt.ExecContext(ctx,
			userID, chunkID, docKey, ch.Index, ch.Text, ch.FileName, vec,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert chunk %d: %w", ch.Index, err)
		}
	}
	return tx.Commit()
}

func (c *ChunkStore) DeleteDocument(ctx context.Context, userID, docKey string) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE user_id = $1 AND doc_key = $2`, userID, docKey)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// AllChunks pages through the user's chunks by chunk_id in byte order.
func (c *ChunkStore) AllChunks(ctx context.Context, userID string) ([]models.Chunk, error) {
	const q = `
		SELECT chunk_id, doc_key, chunk_index, chunk_text, filename, embedding, created_at
		FROM document_chunks
		WHERE user_id = $1 AND chunk_id COLLATE "C" > $2
		ORDER BY chunk_id COLLATE "C" ASC
		LIMIT $3
	`
	var (
		out  []models.Chunk
		last string
	)
	for {
		n, err := c.page(ctx, q, userID, &last, &out)
		if err != nil {
			return nil, err
		}
		if n < c.pageSize {
			return out, nil
		}
	}
}

func (c *ChunkStore) page(ctx context.Context, q, userID string, last *string, out *[]models.Chunk) (int, error) {
	rows, err := c.db.QueryContext(ctx, q, userID, *last, c.pageSize)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			chunkID string
			ch      models.Chunk
			emb     *pgvector.Vector
		)
		if err := rows.Scan(&chunkID, &ch.DocKey, &ch.Index, &ch.Text, &ch.FileName, &emb, &ch.CreatedAt); err != nil {
			return 0, err
		}
		ch.UserID = userID
		if emb != nil {
			ch.Embedding = emb.Slice()
		}
		*out = append(*out, ch)
		*last = chunkID
		n++
	}
	return n, rows.Err()
}
