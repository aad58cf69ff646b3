// Package status records the last known ingestion state of each document.
package status

import (
	"context"
	"time"

	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

const (
	AttrUserID      = "user_id"
	AttrDocKey      = "doc_key"
	AttrFileName    = "filename"
	AttrStatus      = "status"
	AttrChunkCount  = "chunk_count"
	AttrLastUpdated = "last_updated"
	AttrError       = "error_message"
)

var Schema = kvstore.Schema{PartitionKey: AttrUserID, SortKey: AttrDocKey}

// Update is one status write. ChunkCount and Error are only stored when set.
type Update struct {
	UserID     string
	DocKey     string
	FileName   string
	Status     string
	ChunkCount *int
	Error      string
}

// Tracker writes document status. A Tracker with no table is a no-op, so ingestion
// keeps working when the status table is not configured.
type Tracker struct {
	table kvstore.Table
	log   *logger.Logger
	now   func() time.Time
}

func NewTracker(table kvstore.Table, log *logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tracker{table: table, log: log, now: time.Now}
}

func (t *Tracker) Enabled() bool { return t != nil && t.table != nil }

// Set overwrites the status row (last write wins). Failures are logged and returned;
// the pipeline never aborts on them.
func (t *Tracker) Set(ctx context.Context, u Update) error {
	if !t.Enabled() {
		return nil
	}
	item := kvstore.Item{
		AttrUserID:      u.UserID,
		AttrDocKey:      u.DocKey,
		AttrFileName:    u.FileName,
		AttrStatus:      u.Status,
		AttrLastUpdated: t.now().UTC().Format(time.RFC3339),
	}
	if u.ChunkCount != nil {
		item[AttrChunkCount] = *u.ChunkCount
	}
	if u.Error != "" {
		item[AttrError] = u.Error
	}
	if err := t.table.Put(ctx, item); err != nil {
		t.log.Warn("status update failed", "doc_key", u.DocKey, "status", u.Status, "error", err)
		return err
	}
	return nil
}

// Get returns the stored status, or nil when none is recorded.
func (t *Tracker) Get(ctx context.Context, userID, docKey string) (*models.DocumentStatus, error) {
	if !t.Enabled() {
		return nil, nil
	}
	it, err := t.table.Get(ctx, kvstore.Key{PK: userID, SK: docKey})
	if err != nil || it == nil {
		return nil, err
	}
	st := &models.DocumentStatus{
		UserID:     userID,
		DocKey:     docKey,
		FileName:   it.GetString(AttrFileName),
		Status:     it.GetString(AttrStatus),
		ChunkCount: it.GetInt(AttrChunkCount),
		Error:      it.GetString(AttrError),
	}
	if ts, err := time.Parse(time.RFC3339, it.GetString(AttrLastUpdated)); err == nil {
		st.LastUpdated = ts
	}
	return st, nil
}

func (t *Tracker) Delete(ctx context.Context, userID, docKey string) error {
	if !t.Enabled() {
		return nil
	}
	return t.table.Delete(ctx, kvstore.Key{PK: userID, SK: docKey})
}

// Count is a convenience for building an Update with a chunk count.
func Count(n int) *int { return &n }
