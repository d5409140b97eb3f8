package cache

import (
	"slices"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
)

// thread is the message cache of one conversation. ordinals is kept sorted
// and every ordinal maps to exactly one message.
type thread struct {
	loaded   bool
	ordinals []chat.Ordinal
	messages map[chat.Ordinal]chat.Message
	byID     map[chat.MessageID]chat.Ordinal
	byOutbox map[chat.OutboxID]chat.Ordinal
}

func newThread() *thread {
	return &thread{
		messages: make(map[chat.Ordinal]chat.Message),
		byID:     make(map[chat.MessageID]chat.Ordinal),
		byOutbox: make(map[chat.OutboxID]chat.Ordinal),
	}
}

func (t *thread) last() (chat.Ordinal, bool) {
	if len(t.ordinals) == 0 {
		return chat.Ordinal{}, false
	}
	return t.ordinals[len(t.ordinals)-1], true
}

func (t *thread) insert(m chat.Message) {
	i, found := slices.BinarySearchFunc(t.ordinals, m.Ordinal, chat.Ordinal.Compare)
	if !found {
		t.ordinals = slices.Insert(t.ordinals, i, m.Ordinal)
	}
	t.messages[m.Ordinal] = m
	if m.ID != 0 {
		t.byID[m.ID] = m.Ordinal
	}
	if m.OutboxID != "" {
		t.byOutbox[m.OutboxID] = m.Ordinal
	}
}

func (t *thread) remove(o chat.Ordinal) (chat.Message, bool) {
	m, ok := t.messages[o]
	if !ok {
		return chat.Message{}, false
	}
	delete(t.messages, o)
	if i, found := slices.BinarySearchFunc(t.ordinals, o, chat.Ordinal.Compare); found {
		t.ordinals = slices.Delete(t.ordinals, i, i+1)
	}
	if m.ID != 0 && t.byID[m.ID] == o {
		delete(t.byID, m.ID)
	}
	if m.OutboxID != "" && t.byOutbox[m.OutboxID] == o {
		delete(t.byOutbox, m.OutboxID)
	}
	return m, true
}

func (c *Cache) thread(id chat.ConversationID) *thread {
	t, ok := c.threads[id]
	if !ok {
		t = newThread()
		c.threads[id] = t
	}
	return t
}

// HasLoadedThread reports whether an explicit thread load completed for id.
func (c *Cache) HasLoadedThread(id chat.ConversationID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[id]
	return ok && t.loaded
}

// SetLoadedThread records that a thread load completed for id.
func (c *Cache) SetLoadedThread(id chat.ConversationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.thread(id).loaded = true
}

// Ordinals returns the sorted ordinals known for id.
func (c *Cache) Ordinals(id chat.ConversationID) []chat.Ordinal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[id]
	if !ok {
		return nil
	}
	return slices.Clone(t.ordinals)
}

// ClearOrdinals drops every cached message of id and resets its loaded flag.
func (c *Cache) ClearOrdinals(id chat.ConversationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[id]
	if !ok {
		return
	}
	for _, o := range t.ordinals {
		c.bus.Emit(bus.MessageRemoved, MessageChange{Message: t.messages[o]})
	}
	c.threads[id] = newThread()
}

// Message returns the message at ordinal o.
func (c *Cache) Message(id chat.ConversationID, o chat.Ordinal) (chat.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[id]
	if !ok {
		return chat.Message{}, false
	}
	m, ok := t.messages[o]
	return m.Clone(), ok
}

// MessageByOutboxID returns the message carrying outboxID.
func (c *Cache) MessageByOutboxID(id chat.ConversationID, outboxID chat.OutboxID) (chat.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[id]
	if !ok {
		return chat.Message{}, false
	}
	o, ok := t.byOutbox[outboxID]
	if !ok {
		return chat.Message{}, false
	}
	return t.messages[o].Clone(), true
}

// Messages returns the thread of id in ordinal order.
func (c *Cache) Messages(id chat.ConversationID) []chat.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[id]
	if !ok {
		return nil
	}
	out := make([]chat.Message, 0, len(t.ordinals))
	for _, o := range t.ordinals {
		out = append(out, t.messages[o].Clone())
	}
	return out
}

// LastMessageID returns the id of the highest-ordinal message that has a
// server id, or 0. Pending messages are skipped.
func (c *Cache) LastMessageID(id chat.ConversationID) chat.MessageID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.threads[id]
	if !ok {
		return 0
	}
	for i := len(t.ordinals) - 1; i >= 0; i-- {
		if m := t.messages[t.ordinals[i]]; m.ID != 0 {
			return m.ID
		}
	}
	return 0
}

// AddMessages merges msgs into the thread of id and returns them as stored,
// with their final ordinals, in input order.
//
// A server message whose outbox id matches a pending message replaces it and
// moves to the ordinal of its server id. A message without a server id is
// placed at a fresh pending ordinal after the current last ordinal, unless
// its outbox id is already known, in which case it updates in place.
func (c *Cache) AddMessages(id chat.ConversationID, msgs []chat.Message) []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(id)
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		m.Conversation = id
		kind := bus.MessageAdded
		switch {
		case m.ID != 0:
			m.Ordinal = chat.CommittedOrdinal(m.ID)
			if o, ok := t.byID[m.ID]; ok {
				m.Ordinal = o
			}
			if m.OutboxID != "" {
				if o, ok := t.byOutbox[m.OutboxID]; ok && o != m.Ordinal {
					pending, _ := t.remove(o)
					keepLocal(&m, pending)
					c.bus.Emit(bus.MessageRemoved, MessageChange{Message: pending})
					delete(c.outbox, m.OutboxID)
				}
			}
			if old, ok := t.messages[m.Ordinal]; ok {
				keepLocal(&m, old)
				kind = bus.MessageUpdated
			}
		case m.OutboxID != "":
			if o, ok := t.byOutbox[m.OutboxID]; ok {
				keepLocal(&m, t.messages[o])
				m.Ordinal = o
				kind = bus.MessageUpdated
				break
			}
			m.Ordinal = nextPending(t)
		default:
			c.logger.Warn("dropping message with no id and no outbox id", zap.String("conversation", string(id)))
			continue
		}
		t.insert(m)
		out = append(out, m.Clone())
		c.bus.Emit(kind, MessageChange{Message: m.Clone()})
	}
	return out
}

// RestorePending puts a pending message recovered from storage back at its
// recorded ordinal. When that slot is taken or not a pending ordinal, the
// message goes after the last ordinal instead. A message whose outbox id is
// already cached is left alone.
func (c *Cache) RestorePending(id chat.ConversationID, m chat.Message) (chat.Message, bool) {
	if m.OutboxID == "" || m.ID != 0 {
		return chat.Message{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.thread(id)
	if o, ok := t.byOutbox[m.OutboxID]; ok {
		return t.messages[o].Clone(), false
	}
	m.Conversation = id
	if _, taken := t.messages[m.Ordinal]; taken || !m.Ordinal.IsPending() {
		m.Ordinal = nextPending(t)
	}
	t.insert(m)
	c.bus.Emit(bus.MessageAdded, MessageChange{Message: m.Clone()})
	return m.Clone(), true
}

func nextPending(t *thread) chat.Ordinal {
	last, ok := t.last()
	if !ok {
		return chat.Ordinal{}.NextPending()
	}
	return last.NextPending()
}

// keepLocal carries device-local attachment paths from old into m.
func keepLocal(m *chat.Message, old chat.Message) {
	if m.Attachment == nil || old.Attachment == nil {
		return
	}
	a := *m.Attachment
	if a.PreviewPath == "" {
		a.PreviewPath = old.Attachment.PreviewPath
	}
	if a.FilePath == "" {
		a.FilePath = old.Attachment.FilePath
	}
	if a.DownloadPath == "" {
		a.DownloadPath = old.Attachment.DownloadPath
	}
	m.Attachment = &a
}

// UpdateMessage applies fn to the message at ordinal o. fn must not change
// the ordinal, server id or outbox id.
func (c *Cache) UpdateMessage(id chat.ConversationID, o chat.Ordinal, fn func(*chat.Message)) (chat.Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[id]
	if !ok {
		return chat.Message{}, false
	}
	m, ok := t.messages[o]
	if !ok {
		return chat.Message{}, false
	}
	m = m.Clone()
	fn(&m)
	m.Ordinal, m.ID, m.OutboxID = o, t.messages[o].ID, t.messages[o].OutboxID
	t.messages[o] = m
	c.bus.Emit(bus.MessageUpdated, MessageChange{Message: m.Clone()})
	return m.Clone(), true
}

// EditMessage replaces the text of the committed message msgID.
func (c *Cache) EditMessage(id chat.ConversationID, msgID chat.MessageID, text string) bool {
	c.mu.RLock()
	t, ok := c.threads[id]
	var o chat.Ordinal
	if ok {
		o, ok = t.byID[msgID]
	}
	c.mu.RUnlock()
	if !ok {
		return false
	}
	_, ok = c.UpdateMessage(id, o, func(m *chat.Message) { m.Text = text })
	return ok
}

// MarkDeleted turns committed messages into deleted tombstones.
func (c *Cache) MarkDeleted(id chat.ConversationID, msgIDs []chat.MessageID) {
	for _, msgID := range msgIDs {
		c.mu.RLock()
		t, ok := c.threads[id]
		var o chat.Ordinal
		if ok {
			o, ok = t.byID[msgID]
		}
		c.mu.RUnlock()
		if !ok {
			continue
		}
		c.UpdateMessage(id, o, func(m *chat.Message) {
			m.SendState = chat.SendDeleted
			m.Text = ""
			m.Attachment = nil
		})
	}
}

// RemoveMessages drops the messages at ordinals.
func (c *Cache) RemoveMessages(id chat.ConversationID, ordinals []chat.Ordinal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[id]
	if !ok {
		return
	}
	for _, o := range ordinals {
		if m, ok := t.remove(o); ok {
			c.bus.Emit(bus.MessageRemoved, MessageChange{Message: m})
		}
	}
}

// ReplacePlaceholder swaps the upload placeholder committed as placeholderID
// for the final attachment message, keeping the placeholder's ordinal and
// local paths. Without a placeholder the message is simply added.
func (c *Cache) ReplacePlaceholder(id chat.ConversationID, placeholderID chat.MessageID, m chat.Message) chat.Message {
	c.mu.Lock()
	t := c.thread(id)
	o, ok := t.byID[placeholderID]
	if !ok {
		c.mu.Unlock()
		added := c.AddMessages(id, []chat.Message{m})
		if len(added) == 0 {
			return m
		}
		return added[0]
	}
	old := t.messages[o]
	m.Conversation = id
	m.Ordinal = o
	keepLocal(&m, old)
	t.remove(o)
	t.insert(m)
	// the final message keeps the placeholder's slot
	t.byID[placeholderID] = o
	c.mu.Unlock()
	c.bus.Emit(bus.MessageUpdated, MessageChange{Message: m.Clone()})
	return m.Clone()
}
