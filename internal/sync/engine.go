package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Engine persists cache changes into the store.
// It subscribes to "meta.", "message." and "inbox." events on the bus.
type Engine struct {
	db         *store.DB
	bus        *bus.Bus
	reconciler *Reconciler
	logger     *zap.Logger
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewEngine creates a new persistence engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:         db,
		bus:        b,
		reconciler: NewReconciler(db, logger),
		logger:     logger.Named("persist"),
	}
}

// Start subscribes to cache events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	metas, unsubMeta := e.bus.Subscribe("meta.", 1024)
	msgs, unsubMsg := e.bus.Subscribe("message.", 1024)
	inbox, unsubInbox := e.bus.Subscribe("inbox.", 16)
	e.done = make(chan struct{})

	go func() {
		defer close(e.done)
		defer unsubMeta()
		defer unsubMsg()
		defer unsubInbox()
		for {
			select {
			case evt := <-metas:
				e.handleEvent(evt)
			case evt := <-msgs:
				e.handleEvent(evt)
			case evt := <-inbox:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine and waits for the event loop to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.MetaReceived:
		change, ok := evt.Payload.(cache.MetaChange)
		if !ok {
			return
		}
		if err := e.IngestMeta(change.Meta); err != nil {
			e.logger.Error("failed to persist conversation", zap.Error(err), zap.String("conversation", string(change.Meta.ID)))
		}
	case bus.MetaRemoved:
		change, ok := evt.Payload.(cache.MetaChange)
		if !ok {
			return
		}
		if err := e.db.DeleteConversation(string(change.Meta.ID)); err != nil {
			e.logger.Error("failed to forget conversation", zap.Error(err), zap.String("conversation", string(change.Meta.ID)))
		}
	case bus.MessageAdded, bus.MessageUpdated:
		change, ok := evt.Payload.(cache.MessageChange)
		if !ok {
			return
		}
		if err := e.IngestMessage(change.Message); err != nil {
			e.logger.Error("failed to persist message", zap.Error(err),
				zap.String("conversation", string(change.Message.Conversation)),
				zap.Uint64("msg_id", uint64(change.Message.ID)))
		}
	case bus.InboxSynced:
		res, ok := evt.Payload.(command.SyncResult)
		if !ok {
			return
		}
		if err := e.reconciler.RecordSync(res.Type, evt.Timestamp); err != nil {
			e.logger.Error("failed to checkpoint inbox sync", zap.Error(err))
		}
	}
}

// IngestMeta persists a conversation summary (idempotent).
func (e *Engine) IngestMeta(m chat.Meta) error {
	if err := e.db.UpsertConversation(&store.Conversation{
		ID:           string(m.ID),
		TLFName:      m.TLFName,
		TeamType:     string(m.TeamType),
		ChannelName:  m.ChannelName,
		Participants: m.Participants,
		TrustState:   string(m.TrustState),
		Muted:        m.IsMuted,
		Timestamp:    m.Timestamp,
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

// IngestMessage persists a committed message. Pending messages are skipped;
// deleted messages are removed; a committed message that carries an outbox
// id acknowledges that outbox entry.
func (e *Engine) IngestMessage(m chat.Message) error {
	if m.ID == 0 {
		return nil
	}
	conv := string(m.Conversation)
	if m.SendState == chat.SendDeleted {
		if err := e.db.DeleteMessages(conv, []uint64{uint64(m.ID)}); err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		return nil
	}

	body := m.Text
	if m.Attachment != nil {
		body = m.Attachment.FileName
		if m.Attachment.Title != "" {
			body = m.Attachment.Title
		}
	}
	if err := e.db.UpsertMessage(&store.Message{
		ConversationID: conv,
		MsgID:          uint64(m.ID),
		Sender:         m.Author,
		Body:           body,
		MessageType:    string(m.Type),
		OutboxID:       string(m.OutboxID),
		Timestamp:      m.Timestamp,
	}); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	if m.OutboxID != "" {
		if err := e.db.MarkOutboxAcked(string(m.OutboxID), uint64(m.ID)); err != nil {
			return fmt.Errorf("ack outbox: %w", err)
		}
	}
	return nil
}

// CachedMetas returns the persisted conversations as untrusted metadata,
// newest first, for hydrating the cache at startup.
func (e *Engine) CachedMetas(limit int) ([]chat.Meta, error) {
	convs, err := e.db.ListConversations(limit, 0)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	metas := make([]chat.Meta, 0, len(convs))
	for _, c := range convs {
		m := chat.Meta{
			ID:           chat.ConversationID(c.ID),
			TrustState:   chat.Untrusted,
			TeamType:     chat.ParseTeamType(c.TeamType),
			ChannelName:  c.ChannelName,
			Participants: c.Participants,
			TLFName:      c.TLFName,
			Timestamp:    c.Timestamp,
			IsMuted:      c.Muted,
		}
		if m.TeamType != chat.TeamAdhoc {
			m.TeamName = m.TLFName
		}
		metas = append(metas, m)
	}
	return metas, nil
}

// LastSync returns the last recorded inbox sync checkpoint, if any.
func (e *Engine) LastSync() (string, time.Time, bool) {
	kind, at, ok := e.reconciler.LastSync()
	return string(kind), at, ok
}

