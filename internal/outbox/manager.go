// Package outbox posts, edits and deletes messages with optimistic local
// state, and tracks every pending post by its outbox id until the server
// acknowledges or rejects it.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrInvalidMessage marks an action on a message that cannot take it,
	// such as a delete of a message with neither server id nor outbox id.
	ErrInvalidMessage = errors.New("invalid message for action")
	// ErrNoConversation means there is nothing to post to.
	ErrNoConversation = errors.New("no conversation")
	// ErrNoTLFName means the conversation has no folder name.
	ErrNoTLFName = errors.New("conversation has no folder name")
	// ErrAlreadyInFlight rejects a retry of an entry that has not failed.
	ErrAlreadyInFlight = errors.New("outbox entry already in flight")
	// ErrUnknownOutbox means no entry is tracked under the outbox id.
	ErrUnknownOutbox = errors.New("unknown outbox id")
)

// reasonInterrupted is the failure recorded for posts cut off by a restart.
const reasonInterrupted = "interrupted"

// Manager owns outbound message actions.
type Manager struct {
	gw     rpc.Gateway
	cache  *cache.Cache
	db     *store.DB
	logger *zap.Logger
	newID  func() chat.OutboxID
	now    func() time.Time

	// mu serializes status checks against status changes so that one
	// outbox id never has two posts outstanding.
	mu sync.Mutex
}

// NewManager creates a manager. db may be nil, in which case nothing is
// persisted.
func NewManager(gw rpc.Gateway, c *cache.Cache, db *store.DB, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		gw:     gw,
		cache:  c,
		db:     db,
		logger: logger.Named("outbox"),
		newID:  func() chat.OutboxID { return chat.OutboxID(uuid.NewString()) },
		now:    time.Now,
	}
}

// Send posts text to id. An empty id targets the pending conversation,
// which is created first. The message appears in the cache before the post
// is issued and returns the outbox id it is tracked under.
func (m *Manager) Send(ctx context.Context, id chat.ConversationID, text string) (chat.OutboxID, error) {
	if id == "" {
		created, err := m.createPending(ctx)
		if err != nil {
			return "", err
		}
		id = created
	}
	meta, ok := m.cache.Meta(id)
	if !ok {
		m.logger.Warn("send to unknown conversation", zap.String("conversation", string(id)))
		return "", fmt.Errorf("send to %s: %w", id, ErrNoConversation)
	}

	username, device := m.cache.Me()
	outboxID := m.newID()
	stored := m.cache.AddMessages(id, []chat.Message{{
		OutboxID:  outboxID,
		Type:      chat.MessageText,
		SendState: chat.SendPending,
		Author:    username,
		Device:    device,
		Timestamp: m.now().UnixMilli(),
		Text:      text,
	}})
	if len(stored) == 0 {
		return "", fmt.Errorf("send to %s: %w", id, ErrInvalidMessage)
	}
	entry := chat.OutboxEntry{
		OutboxID:     outboxID,
		Conversation: id,
		Ordinal:      stored[0].Ordinal,
		Kind:         chat.OutboxSend,
		Body:         text,
		Status:       chat.OutboxQueued,
	}
	m.cache.TrackOutbox(entry)
	m.persist("queue", func(db *store.DB) error {
		return db.QueueOutbox(&store.OutboxRecord{
			OutboxID:       string(outboxID),
			ConversationID: string(id),
			Ordinal:        entry.Ordinal.String(),
			Kind:           string(entry.Kind),
			Body:           text,
		})
	})
	m.logger.Info("message queued", zap.String("conversation", string(id)), zap.String("outbox_id", string(outboxID)))

	m.markInFlight(entry.OutboxID)
	params := rpc.Params{
		"conversationID":   string(id),
		"tlfName":          meta.TLFName,
		"tlfPublic":        false,
		"outboxID":         string(outboxID),
		"body":             text,
		"clientPrev":       uint64(m.cache.LastMessageID(id)),
		"identifyBehavior": m.cache.IdentifyBehavior(id),
	}
	if _, err := m.gw.Call(ctx, rpc.MethodPostText, params); err != nil {
		m.Failed(id, outboxID, err.Error())
		return outboxID, fmt.Errorf("post text: %w", err)
	}
	return outboxID, nil
}

// createPending creates the conversation for the pending participant set,
// records an untrusted meta for it and selects it.
func (m *Manager) createPending(ctx context.Context) (chat.ConversationID, error) {
	users := m.cache.PendingUsers()
	if len(users) == 0 {
		m.logger.Warn("send without conversation or pending participants")
		return "", fmt.Errorf("create conversation: %w", ErrNoConversation)
	}
	username, _ := m.cache.Me()
	all := append([]string{username}, users...)
	tlfName := chat.TLFNameFor(all)

	behavior := chat.IdentifyStrict
	for _, u := range all {
		if m.cache.IsBroken(u) {
			behavior = chat.IdentifyLenient
			break
		}
	}
	res, err := m.gw.Call(ctx, rpc.MethodNewConversation, rpc.Params{
		"tlfName":          tlfName,
		"topicType":        "chat",
		"tlfVisibility":    "private",
		"membersType":      "impteamnative",
		"identifyBehavior": behavior,
	})
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	id := chat.ConversationID(res.Get("conv.info.id").String())
	if id == "" {
		return "", fmt.Errorf("create conversation: no id in result: %w", ErrNoConversation)
	}
	m.cache.UpsertMetas([]chat.Meta{{
		ID:           id,
		TrustState:   chat.Untrusted,
		TeamType:     chat.TeamAdhoc,
		TLFName:      tlfName,
		Participants: chat.SortedUsers(all),
		Timestamp:    m.now().UnixMilli(),
	}})
	m.cache.Select(id)
	m.logger.Info("conversation created", zap.String("conversation", string(id)), zap.String("tlf", tlfName))
	return id, nil
}

// Edit replaces the text of the message at o. Identical text only clears
// the editing marker. A pending message is cancelled and sent again with
// the new text.
func (m *Manager) Edit(ctx context.Context, id chat.ConversationID, o chat.Ordinal, text string) error {
	msg, ok := m.cache.Message(id, o)
	if !ok {
		return fmt.Errorf("edit %s/%s: %w", id, o, ErrInvalidMessage)
	}
	m.cache.SetEditing(id, chat.Ordinal{})
	if msg.Text == text {
		return nil
	}

	switch {
	case msg.ID != 0:
		meta, _ := m.cache.Meta(id)
		outboxID := m.newID()
		_, err := m.gw.Call(ctx, rpc.MethodPostEdit, rpc.Params{
			"conversationID":   string(id),
			"tlfName":          meta.TLFName,
			"tlfPublic":        false,
			"outboxID":         string(outboxID),
			"body":             text,
			"supersedes":       uint64(msg.ID),
			"clientPrev":       uint64(m.cache.LastMessageID(id)),
			"identifyBehavior": m.cache.IdentifyBehavior(id),
		})
		if err != nil {
			return fmt.Errorf("post edit: %w", err)
		}
		m.logger.Info("message edited", zap.String("conversation", string(id)), zap.Uint64("msg_id", uint64(msg.ID)))
		return nil
	case msg.OutboxID != "":
		if err := m.cancel(ctx, id, msg); err != nil {
			return err
		}
		_, err := m.Send(ctx, id, text)
		return err
	}
	m.logger.Warn("edit of message without ids", zap.String("conversation", string(id)), zap.Stringer("ordinal", o))
	return fmt.Errorf("edit %s/%s: %w", id, o, ErrInvalidMessage)
}

// Delete removes the message at o. A pending post is cancelled and dropped
// locally; a committed message gets a superseding delete.
func (m *Manager) Delete(ctx context.Context, id chat.ConversationID, o chat.Ordinal) error {
	msg, ok := m.cache.Message(id, o)
	if !ok {
		return fmt.Errorf("delete %s/%s: %w", id, o, ErrInvalidMessage)
	}
	switch {
	case msg.ID == 0 && msg.OutboxID != "":
		return m.cancel(ctx, id, msg)
	case msg.ID == 0:
		m.logger.Warn("delete of message without ids", zap.String("conversation", string(id)), zap.Stringer("ordinal", o))
		return fmt.Errorf("delete %s/%s: %w", id, o, ErrInvalidMessage)
	case msg.Type != chat.MessageText && msg.Type != chat.MessageAttachment:
		return fmt.Errorf("delete %s message: %w", msg.Type, ErrInvalidMessage)
	}

	meta, _ := m.cache.Meta(id)
	_, err := m.gw.Call(ctx, rpc.MethodPostDelete, rpc.Params{
		"conversationID":   string(id),
		"tlfName":          meta.TLFName,
		"tlfPublic":        false,
		"supersedes":       uint64(msg.ID),
		"clientPrev":       0,
		"identifyBehavior": m.cache.IdentifyBehavior(id),
	})
	if err != nil {
		return fmt.Errorf("post delete: %w", err)
	}
	m.logger.Info("message deleted", zap.String("conversation", string(id)), zap.Uint64("msg_id", uint64(msg.ID)))
	return nil
}

// cancel asks the backend to drop a pending post and removes it locally.
func (m *Manager) cancel(ctx context.Context, id chat.ConversationID, msg chat.Message) error {
	if _, err := m.gw.Call(ctx, rpc.MethodCancelPost, rpc.Params{"outboxID": string(msg.OutboxID)}); err != nil {
		return fmt.Errorf("cancel post: %w", err)
	}
	m.cache.RemoveMessages(id, []chat.Ordinal{msg.Ordinal})
	m.cache.UntrackOutbox(msg.OutboxID)
	m.persist("forget", func(db *store.DB) error { return db.DeleteOutbox(string(msg.OutboxID)) })
	m.logger.Info("post cancelled", zap.String("conversation", string(id)), zap.String("outbox_id", string(msg.OutboxID)))
	return nil
}

// Retry re-posts a failed outbox entry under the same outbox id.
func (m *Manager) Retry(ctx context.Context, outboxID chat.OutboxID) error {
	m.mu.Lock()
	entry, ok := m.cache.OutboxEntry(outboxID)
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("retry %s: %w", outboxID, ErrUnknownOutbox)
	}
	if entry.Status != chat.OutboxFailed {
		m.mu.Unlock()
		return fmt.Errorf("retry %s: %w", outboxID, ErrAlreadyInFlight)
	}
	entry.Status, entry.Error = chat.OutboxQueued, ""
	m.cache.TrackOutbox(entry)
	m.mu.Unlock()

	m.cache.UpdateMessage(entry.Conversation, entry.Ordinal, func(msg *chat.Message) {
		msg.SendState = chat.SendPending
		msg.ErrorReason = ""
	})
	m.persist("requeue", func(db *store.DB) error {
		return db.QueueOutbox(&store.OutboxRecord{
			OutboxID:       string(outboxID),
			ConversationID: string(entry.Conversation),
			Ordinal:        entry.Ordinal.String(),
			Kind:           string(entry.Kind),
			Body:           entry.Body,
		})
	})

	m.markInFlight(entry.OutboxID)
	if _, err := m.gw.Call(ctx, rpc.MethodRetryPost, rpc.Params{"outboxID": string(outboxID)}); err != nil {
		m.Failed(entry.Conversation, outboxID, err.Error())
		return fmt.Errorf("retry post: %w", err)
	}
	m.logger.Info("post retried", zap.String("outbox_id", string(outboxID)))
	return nil
}

// DeleteHistoryUpTo purges history up to and including the message at o,
// which must be on the server.
func (m *Manager) DeleteHistoryUpTo(ctx context.Context, id chat.ConversationID, o chat.Ordinal) error {
	meta, ok := m.cache.Meta(id)
	if !ok || meta.TLFName == "" {
		m.logger.Warn("delete history without folder name", zap.String("conversation", string(id)))
		return fmt.Errorf("delete history of %s: %w", id, ErrNoTLFName)
	}
	msg, ok := m.cache.Message(id, o)
	if !ok || msg.ID == 0 {
		return fmt.Errorf("delete history of %s up to %s: %w", id, o, ErrInvalidMessage)
	}
	_, err := m.gw.Call(ctx, rpc.MethodPostDeleteHistoryUpto, rpc.Params{
		"conversationID":   string(id),
		"tlfName":          meta.TLFName,
		"tlfPublic":        false,
		"identifyBehavior": m.cache.IdentifyBehavior(id),
		// exclusive bound
		"upto": uint64(msg.ID) + 1,
	})
	if err != nil {
		return fmt.Errorf("post delete history: %w", err)
	}
	m.logger.Info("history deleted", zap.String("conversation", string(id)), zap.Stringer("upto", o))
	return nil
}

// Failed marks the pending message of outboxID as failed. Unknown outbox
// ids are ignored.
func (m *Manager) Failed(id chat.ConversationID, outboxID chat.OutboxID, reason string) {
	m.mu.Lock()
	entry, ok := m.cache.OutboxEntry(outboxID)
	if ok {
		entry.Status, entry.Error = chat.OutboxFailed, reason
		m.cache.TrackOutbox(entry)
	}
	m.mu.Unlock()

	if msg, found := m.cache.MessageByOutboxID(id, outboxID); found {
		m.cache.UpdateMessage(id, msg.Ordinal, func(msg *chat.Message) {
			msg.SendState = chat.SendFailed
			msg.ErrorReason = reason
		})
	}
	m.persist("fail", func(db *store.DB) error { return db.MarkOutboxFailed(string(outboxID), reason) })
	m.logger.Warn("post failed", zap.String("conversation", string(id)), zap.String("outbox_id", string(outboxID)), zap.String("reason", reason))
}

// Recover restores the posts a previous run left unacknowledged. Entries
// still queued or in flight were interrupted and are marked failed. Every
// recovered post comes back into its thread as a failed pending message and
// is tracked again, so it can be retried. It returns the number of
// interrupted posts.
func (m *Manager) Recover() (int, error) {
	if m.db == nil {
		return 0, nil
	}
	records, err := m.db.UnackedOutbox()
	if err != nil {
		return 0, fmt.Errorf("read outbox: %w", err)
	}
	username, device := m.cache.Me()
	interrupted := 0
	for _, r := range records {
		reason := r.ErrorMessage
		if r.Status != string(chat.OutboxFailed) {
			reason = reasonInterrupted
			if err := m.db.MarkOutboxFailed(r.OutboxID, reason); err != nil {
				return 0, fmt.Errorf("mark outbox failed: %w", err)
			}
			interrupted++
		}
		if chat.OutboxKind(r.Kind) != chat.OutboxSend {
			continue
		}
		o, err := chat.ParseOrdinal(r.Ordinal)
		if err != nil {
			m.logger.Warn("recovered post without ordinal", zap.String("outbox_id", r.OutboxID), zap.Error(err))
		}
		id := chat.ConversationID(r.ConversationID)
		restored, _ := m.cache.RestorePending(id, chat.Message{
			Ordinal:     o,
			OutboxID:    chat.OutboxID(r.OutboxID),
			Type:        chat.MessageText,
			SendState:   chat.SendFailed,
			Author:      username,
			Device:      device,
			Timestamp:   r.CreatedAt,
			Text:        r.Body,
			ErrorReason: reason,
		})
		m.mu.Lock()
		m.cache.TrackOutbox(chat.OutboxEntry{
			OutboxID:     chat.OutboxID(r.OutboxID),
			Conversation: id,
			Ordinal:      restored.Ordinal,
			Kind:         chat.OutboxSend,
			Body:         r.Body,
			Status:       chat.OutboxFailed,
			Error:        reason,
		})
		m.mu.Unlock()
	}
	if len(records) > 0 {
		m.logger.Info("recovered unsent posts", zap.Int("count", len(records)), zap.Int("interrupted", interrupted))
	}
	return interrupted, nil
}

func (m *Manager) markInFlight(outboxID chat.OutboxID) {
	m.mu.Lock()
	if cur, ok := m.cache.OutboxEntry(outboxID); ok {
		cur.Status, cur.Error = chat.OutboxInFlight, ""
		m.cache.TrackOutbox(cur)
	}
	m.mu.Unlock()
	m.persist("mark in flight", func(db *store.DB) error { return db.MarkOutboxInFlight(string(outboxID)) })
}

func (m *Manager) persist(op string, fn func(*store.DB) error) {
	if m.db == nil {
		return
	}
	if err := fn(m.db); err != nil {
		m.logger.Error("failed to persist outbox", zap.String("op", op), zap.Error(err))
	}
}
