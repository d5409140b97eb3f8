// Package attachment moves attachment files between the backend and the
// local cache: throttled preview and full downloads, saves to the download
// folder, and uploads with a locally generated preview.
package attachment

import (
	"context"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/queue"
	"go.uber.org/zap"
)

// QueueDelay spaces consecutive queued downloads.
const QueueDelay = 100 * time.Millisecond

// Item is one queued download.
type Item struct {
	Conversation chat.ConversationID
	Ordinal      chat.Ordinal
	Preview      bool
}

// Queue downloads one attachment at a time, most recently requested first.
type Queue struct {
	loader *Loader
	logger *zap.Logger
	q      *queue.Throttled[Item]
}

// NewQueue creates a queue draining into l.
func NewQueue(l *Loader, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	aq := &Queue{loader: l, logger: logger.Named("attachment_queue")}
	aq.q = queue.NewThrottled(queue.Options{Batch: 1, Delay: QueueDelay}, aq.process)
	return aq
}

// Push adds an item to the back of the queue.
func (aq *Queue) Push(it Item) {
	aq.q.Add(it)
}

// Drain starts draining in the background unless a drain is running.
func (aq *Queue) Drain(ctx context.Context) {
	aq.q.Kick(ctx)
}

// Wait blocks until the running drain finishes.
func (aq *Queue) Wait() {
	aq.q.Wait()
}

// Pending returns the queued items, front first.
func (aq *Queue) Pending() []Item {
	return aq.q.Items()
}

func (aq *Queue) process(ctx context.Context, batch []Item) bool {
	issued := false
	for _, it := range batch {
		fetched, err := aq.loader.Load(ctx, it.Conversation, it.Ordinal, it.Preview)
		if err != nil {
			aq.logger.Warn("queued download failed",
				zap.String("conversation", string(it.Conversation)),
				zap.Stringer("ordinal", it.Ordinal),
				zap.Bool("preview", it.Preview),
				zap.Error(err))
		}
		issued = issued || fetched
	}
	return issued
}
