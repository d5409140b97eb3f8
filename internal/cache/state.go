package cache

import (
	"maps"
	"slices"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
)

// Loading flag keys.
const (
	LoadingInboxRefresh = "inboxRefresh"
	LoadingInboxSync    = "inboxSyncStarted"
)

// LoadingThreadKey is the loading flag of a thread load.
func LoadingThreadKey(id chat.ConversationID) string {
	return "loadingThread:" + string(id)
}

// UnboxingKey is the loading flag of an unboxing batch led by id.
func UnboxingKey(id chat.ConversationID) string {
	return "unboxing:" + string(id)
}

// SetLoading sets a loading flag and publishes the change.
func (c *Cache) SetLoading(key string, loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loading[key] == loading {
		return
	}
	if loading {
		c.loading[key] = true
	} else {
		delete(c.loading, key)
	}
	c.bus.Emit(bus.LoadingChanged, LoadingChange{Key: key, Loading: loading})
}

// Loading reports a loading flag.
func (c *Cache) Loading(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading[key]
}

// LoadingKeys returns the keys of every set loading flag, sorted.
func (c *Cache) LoadingKeys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Sorted(maps.Keys(c.loading))
}

// UpdateBroken records identity breaks and fixes.
func (c *Cache) UpdateBroken(newlyBroken, newlyFixed []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range newlyBroken {
		c.broken[u] = true
	}
	for _, u := range newlyFixed {
		delete(c.broken, u)
	}
	c.bus.Emit(bus.IdentityBrokenChanged, BrokenChange{NewlyBroken: newlyBroken, NewlyFixed: newlyFixed})
}

// IsBroken reports whether user's identity is currently broken.
func (c *Cache) IsBroken(user string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.broken[user]
}

// IdentifyBehavior picks the identify mode for posting into id: strict
// while no participant is known to be broken, lenient otherwise.
func (c *Cache) IdentifyBehavior(id chat.ConversationID) chat.IdentifyBehavior {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.metas[id].Participants {
		if c.broken[p] {
			return chat.IdentifyLenient
		}
	}
	return chat.IdentifyStrict
}

// Select changes the selected conversation. It also leaves compose mode.
func (c *Cache) Select(id chat.ConversationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = id
	if id != "" {
		c.pendingUsers = nil
	}
}

// Selected returns the selected conversation, if any.
func (c *Cache) Selected() chat.ConversationID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selected
}

// SetFocus records whether the app has focus.
func (c *Cache) SetFocus(focused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focused = focused
}

// ActivelyViewing reports whether id is selected while the app has focus.
func (c *Cache) ActivelyViewing(id chat.ConversationID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return id != "" && c.focused && c.selected == id
}

// SetPendingUsers enters compose mode for users. An empty list leaves it.
func (c *Cache) SetPendingUsers(users []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pendingUsers = slices.Clone(users)
	if len(users) > 0 {
		c.selected = ""
	}
}

// PendingUsers returns the users of the conversation being composed.
func (c *Cache) PendingUsers() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.pendingUsers)
}

// SetTypers replaces the typing users of each listed conversation.
func (c *Cache) SetTypers(typers map[chat.ConversationID][]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, users := range typers {
		if len(users) == 0 {
			delete(c.typers, id)
		} else {
			c.typers[id] = slices.Clone(users)
		}
		c.bus.Emit(bus.TypingUpdated, TypingChange{Conversation: id, Users: slices.Clone(users)})
	}
}

// Typers returns who is typing in id.
func (c *Cache) Typers(id chat.ConversationID) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.typers[id])
}

// SetEditing marks the message being edited in id. The zero ordinal clears
// the marker.
func (c *Cache) SetEditing(id chat.ConversationID, o chat.Ordinal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.IsZero() {
		delete(c.editing, id)
		return
	}
	c.editing[id] = o
}

// Editing returns the ordinal being edited in id.
func (c *Cache) Editing(id chat.ConversationID) (chat.Ordinal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	o, ok := c.editing[id]
	return o, ok
}

type transferKey struct {
	conv    chat.ConversationID
	ordinal chat.Ordinal
	kind    chat.TransferKind
}

// Transfer returns the transfer record for one attachment file.
func (c *Cache) Transfer(id chat.ConversationID, o chat.Ordinal, kind chat.TransferKind) (chat.TransferState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.transfers[transferKey{id, o, kind}]
	return s, ok
}

// SetTransfer records transfer progress and, once terminal, reflects the
// local path on the attachment message.
func (c *Cache) SetTransfer(s chat.TransferState) {
	c.mu.Lock()
	c.transfers[transferKey{s.Conversation, s.Ordinal, s.Kind}] = s
	c.mu.Unlock()
	c.bus.Emit(bus.AttachmentTransfer, s)
	if s.Path == "" {
		return
	}
	c.UpdateMessage(s.Conversation, s.Ordinal, func(m *chat.Message) {
		if m.Attachment == nil {
			m.Attachment = &chat.Attachment{}
		}
		if s.Kind == chat.TransferPreview {
			m.Attachment.PreviewPath = s.Path
		} else if s.Direction == chat.Download {
			m.Attachment.FilePath = s.Path
		}
	})
}

// TrackOutbox records an outbox entry.
func (c *Cache) TrackOutbox(e chat.OutboxEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outbox[e.OutboxID] = e
}

// OutboxEntry returns the tracked entry for outboxID.
func (c *Cache) OutboxEntry(outboxID chat.OutboxID) (chat.OutboxEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.outbox[outboxID]
	return e, ok
}

// UntrackOutbox forgets an outbox entry.
func (c *Cache) UntrackOutbox(outboxID chat.OutboxID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.outbox, outboxID)
}

// Notify publishes a desktop notification request.
func (c *Cache) Notify(n DesktopNotice) {
	c.bus.Emit(bus.NotifyDesktop, n)
}
