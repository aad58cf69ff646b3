// Package chunkstore persists document chunks in a (user_id, chunk_id) table.
package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/markdave123-py/knowledgevault/internal/core"
	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// Attribute names of the chunks table.
const (
	AttrUserID    = "user_id"
	AttrChunkID   = "chunk_id"
	AttrDocKey    = "doc_key"
	AttrIndex     = "chunk_index"
	AttrText      = "chunk_text"
	AttrEmbedding = "embedding"
	AttrFileName  = "filename"
	AttrCreatedAt = "created_at"
)

// Schema is the key layout of the chunks table.
var Schema = kvstore.Schema{PartitionKey: AttrUserID, SortKey: AttrChunkID}

// ChunkID is the sort key of a chunk: "<docKey>#<index zero-padded to 5>".
func ChunkID(docKey string, index int) string {
	return fmt.Sprintf("%s#%05d", docKey, index)
}

// docPrefix narrows the query to docKey's chunks. File names may themselves contain
// "#", so rows under the prefix still go through belongsTo.
func docPrefix(docKey string) string {
	return docKey + "#"
}

// belongsTo reports whether a row under docPrefix(docKey) is a chunk of docKey itself
// rather than of a sibling such as "<docKey>#2.md".
func belongsTo(it kvstore.Item, docKey string) bool {
	if dk := it.GetString(AttrDocKey); dk != "" {
		return dk == docKey
	}
	suffix := strings.TrimPrefix(it.GetString(AttrChunkID), docPrefix(docKey))
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Store is a core.ChunkStore on top of a kvstore.Table.
type Store struct {
	table kvstore.Table
	log   *logger.Logger
	now   func() time.Time
}

var _ core.ChunkStore = (*Store)(nil)

func New(table kvstore.Table, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{table: table, log: log, now: time.Now}
}

// ReplaceChunks deletes every existing chunk of docKey, then writes chunks.
// A crash in between leaves the document partially indexed until the next replace.
func (s *Store) ReplaceChunks(ctx context.Context, userID, docKey string, chunks []models.Chunk) error {
	if _, err := s.DeleteDocument(ctx, userID, docKey); err != nil {
		return fmt.Errorf("clear old chunks: %w", err)
	}

	createdAt := s.now().UTC().Format(time.RFC3339)
	for _, c := range chunks {
		item := kvstore.Item{
			AttrUserID:    userID,
			AttrChunkID:   ChunkID(docKey, c.Index),
			AttrDocKey:    docKey,
			AttrIndex:     c.Index,
			AttrText:      c.Text,
			AttrFileName:  c.FileName,
			AttrCreatedAt: createdAt,
		}
		if c.Embedding != nil {
			raw, err := json.Marshal(c.Embedding)
			if err != nil {
				return fmt.Errorf("encode embedding: %w", err)
			}
			item[AttrEmbedding] = string(raw)
		}
		if err := s.table.Put(ctx, item); err != nil {
			return fmt.Errorf("store chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

// DeleteDocument removes every chunk of docKey and returns how many were removed.
func (s *Store) DeleteDocument(ctx context.Context, userID, docKey string) (int, error) {
	var keys []kvstore.Key
	err := s.table.Query(ctx, userID, docPrefix(docKey), func(it kvstore.Item) error {
		if belongsTo(it, docKey) {
			keys = append(keys, kvstore.Key{PK: userID, SK: it.GetString(AttrChunkID)})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := s.table.BatchDelete(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// AllChunks returns every chunk of the user, across all documents. A chunk whose stored
// embedding cannot be decoded is returned without one.
func (s *Store) AllChunks(ctx context.Context, userID string) ([]models.Chunk, error) {
	var out []models.Chunk
	err := s.table.Query(ctx, userID, "", func(it kvstore.Item) error {
		c, err := decode(it)
		if err != nil {
			s.log.Warn("unreadable chunk embedding", "user_id", userID, "chunk_id", it.GetString(AttrChunkID), "error", err)
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decode always returns the chunk; a bad embedding leaves Embedding nil and is reported as err.
func decode(it kvstore.Item) (models.Chunk, error) {
	c := models.Chunk{
		UserID:   it.GetString(AttrUserID),
		DocKey:   it.GetString(AttrDocKey),
		Index:    it.GetInt(AttrIndex),
		Text:     it.GetString(AttrText),
		FileName: it.GetString(AttrFileName),
	}
	if c.DocKey == "" {
		// Rows written before doc_key existed only carry the sort key.
		id := it.GetString(AttrChunkID)
		if i := strings.LastIndex(id, "#"); i > 0 {
			c.DocKey = id[:i]
		}
	}
	if ts := it.GetString(AttrCreatedAt); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			c.CreatedAt = t
		}
	}
	if raw := it.GetString(AttrEmbedding); raw != "" {
		var vec []float32
		if err := json.Unmarshal([]byte(raw), &vec); err != nil {
			return c, fmt.Errorf("decode embedding: %w", err)
		}
		c.Embedding = vec
	}
	return c, nil
}
