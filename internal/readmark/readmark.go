// Package readmark sends read receipts for the conversation being viewed,
// at most once per message id.
package readmark

import (
	"context"
	"fmt"
	"sync"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Marker keeps the last message id sent as read per conversation. The
// watermark only moves forward.
type Marker struct {
	gw     rpc.Gateway
	cache  *cache.Cache
	db     *store.DB
	logger *zap.Logger

	mu   sync.Mutex
	last map[chat.ConversationID]chat.MessageID
}

// New creates a marker. db may be nil.
func New(gw rpc.Gateway, c *cache.Cache, db *store.DB, logger *zap.Logger) *Marker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Marker{
		gw:     gw,
		cache:  c,
		db:     db,
		logger: logger.Named("readmark"),
		last:   make(map[chat.ConversationID]chat.MessageID),
	}
}

// Hydrate loads the persisted watermarks.
func (m *Marker) Hydrate() error {
	if m.db == nil {
		return nil
	}
	stored, err := m.db.ReadMarkers()
	if err != nil {
		return fmt.Errorf("load read markers: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for conv, id := range stored {
		m.last[chat.ConversationID(conv)] = max(m.last[chat.ConversationID(conv)], chat.MessageID(id))
	}
	return nil
}

// LastSent returns the watermark of id.
func (m *Marker) LastSent(id chat.ConversationID) chat.MessageID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last[id]
}

// Candidate is the newest committed message of id. Pending messages are
// never marked read.
func (m *Marker) Candidate(id chat.ConversationID) chat.MessageID {
	return m.cache.LastMessageID(id)
}

// MarkRead marks candidate read when id is actively viewed, has metadata
// and candidate is above the watermark. It reports whether a call was made.
func (m *Marker) MarkRead(ctx context.Context, id chat.ConversationID, candidate chat.MessageID) (bool, error) {
	if !m.cache.ActivelyViewing(id) {
		return false, nil
	}
	if _, ok := m.cache.Meta(id); !ok {
		return false, nil
	}
	m.mu.Lock()
	if candidate <= m.last[id] {
		m.mu.Unlock()
		return false, nil
	}
	m.last[id] = candidate
	m.mu.Unlock()

	if _, err := m.gw.Call(ctx, rpc.MethodMarkAsRead, rpc.Params{
		"conversationID": string(id),
		"msgID":          uint64(candidate),
	}); err != nil {
		m.logger.Warn("mark as read failed",
			zap.String("conversation", string(id)),
			zap.Uint64("msg_id", uint64(candidate)),
			zap.Error(err))
		return true, fmt.Errorf("mark as read: %w", err)
	}
	if m.db != nil {
		if err := m.db.MarkRead(string(id), uint64(candidate)); err != nil {
			m.logger.Error("failed to persist read marker", zap.Error(err))
		}
	}
	m.logger.Debug("marked read",
		zap.String("conversation", string(id)),
		zap.Uint64("msg_id", uint64(candidate)))
	return true, nil
}
