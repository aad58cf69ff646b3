// Package quota enforces the per-user daily message limit.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/markdave123-py/knowledgevault/internal/core/kvstore"
	"github.com/markdave123-py/knowledgevault/internal/logger"
	"github.com/markdave123-py/knowledgevault/internal/models"
)

// DayLayout is the UTC calendar-day key of a usage counter.
const DayLayout = "2006-01-02"

// Counter is an atomic per-(user, day) counter.
type Counter interface {
	// IncrementIfBelow adds one to the counter when it is strictly below limit.
	IncrementIfBelow(ctx context.Context, userID, day string, limit int) (count int, ok bool, err error)
	Current(ctx context.Context, userID, day string) (int, error)
}

// Enforcer gates chat messages. A nil counter allows everything.
type Enforcer struct {
	counter    Counter
	limit      int
	adminGroup string
	log        *logger.Logger
	now        func() time.Time
}

func NewEnforcer(counter Counter, limit int, adminGroup string, log *logger.Logger) *Enforcer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Enforcer{counter: counter, limit: limit, adminGroup: adminGroup, log: log, now: time.Now}
}

func (e *Enforcer) day() string {
	return e.now().UTC().Format(DayLayout)
}

// CheckAndConsume reports whether the caller may send one more message today, consuming
// one unit of quota when it may. Errors from the counter are returned to the caller.
func (e *Enforcer) CheckAndConsume(ctx context.Context, id models.Identity) (bool, error) {
	if id.InGroup(e.adminGroup) {
		return true, nil
	}
	if e.counter == nil {
		return true, nil
	}
	count, ok, err := e.counter.IncrementIfBelow(ctx, id.Subject, e.day(), e.limit)
	if err != nil {
		return false, fmt.Errorf("quota check: %w", err)
	}
	if !ok {
		e.log.Info("daily limit reached", "user_id", id.Subject, "limit", e.limit)
		return false, nil
	}
	e.log.Debug("quota consumed", "user_id", id.Subject, "count", count)
	return true, nil
}

// Usage returns today's counter without consuming it.
func (e *Enforcer) Usage(ctx context.Context, userID string) (models.Usage, error) {
	u := models.Usage{Limit: e.limit, Day: e.day()}
	if e.counter == nil {
		return u, nil
	}
	n, err := e.counter.Current(ctx, userID, u.Day)
	if err != nil {
		return u, err
	}
	u.Used = n
	return u, nil
}

const (
	AttrUserID       = "user_id"
	AttrUsageDate    = "usage_date"
	AttrRequestCount = "request_count"
)

var Schema = kvstore.Schema{PartitionKey: AttrUserID, SortKey: AttrUsageDate}

// KVCounter keeps counters in a (user_id, usage_date) table.
type KVCounter struct {
	table kvstore.Table
}

var _ Counter = (*KVCounter)(nil)

func NewKVCounter(table kvstore.Table) *KVCounter {
	return &KVCounter{table: table}
}

func (c *KVCounter) IncrementIfBelow(ctx context.Context, userID, day string, limit int) (int, bool, error) {
	return c.table.IncrementIfBelow(ctx, kvstore.Key{PK: userID, SK: day}, AttrRequestCount, limit)
}

func (c *KVCounter) Current(ctx context.Context, userID, day string) (int, error) {
	it, err := c.table.Get(ctx, kvstore.Key{PK: userID, SK: day})
	if err != nil || it == nil {
		return 0, err
	}
	return it.GetInt(AttrRequestCount), nil
}
