package inbox

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/queue"
	"go.uber.org/zap"
)

const (
	// MetaBatchSize is the most conversations unboxed per call.
	MetaBatchSize = 10
	// MetaBatchDelay spaces consecutive unboxing calls.
	MetaBatchDelay = 100 * time.Millisecond
)

// MetaQueue coalesces requests for trusted metadata. The most recently
// referenced ids are unboxed first, since those are the ones on screen.
type MetaQueue struct {
	cache   *cache.Cache
	unboxer *Unboxer
	logger  *zap.Logger
	q       *queue.Throttled[chat.ConversationID]
}

// NewMetaQueue creates a queue draining into u.
func NewMetaQueue(c *cache.Cache, u *Unboxer, logger *zap.Logger) *MetaQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MetaQueue{cache: c, unboxer: u, logger: logger.Named("metaqueue")}
	m.q = queue.NewThrottled(queue.Options{
		Batch:  MetaBatchSize,
		Delay:  MetaBatchDelay,
		Unique: true,
	}, m.process)
	return m
}

// Enqueue adds the ids that are still untrusted and reports whether any
// were added.
func (m *MetaQueue) Enqueue(ids []chat.ConversationID) bool {
	ids = m.cache.FilterTrust(ids, chat.Untrusted)
	if len(ids) == 0 {
		return false
	}
	m.q.Add(ids...)
	return true
}

// Drain starts draining in the background unless a drain is running.
func (m *MetaQueue) Drain(ctx context.Context) {
	m.q.Kick(ctx)
}

// Wait blocks until the running drain finishes.
func (m *MetaQueue) Wait() {
	m.q.Wait()
}

// Pending returns the queued ids, front first.
func (m *MetaQueue) Pending() []chat.ConversationID {
	return m.q.Items()
}

func (m *MetaQueue) process(ctx context.Context, batch []chat.ConversationID) bool {
	ids := m.cache.FilterTrust(batch, chat.Untrusted)
	if len(ids) == 0 {
		return false
	}
	if err := m.unboxer.RequestTrusted(ctx, ids, false); err != nil {
		m.logger.Warn("unbox batch failed", zap.Int("size", len(ids)), zap.Error(err))
	}
	return true
}
