// Package cache owns the client state of the sync core: conversation
// metadata, per-conversation message threads, loading flags, identity
// state, selection and transfer progress. Every mutation is atomic and
// publishes the matching bus event.
package cache

import (
	"slices"
	"sort"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/chat"
	"go.uber.org/zap"
)

// Cache is safe for concurrent use.
type Cache struct {
	mu     sync.RWMutex
	bus    *bus.Bus
	logger *zap.Logger

	username string
	device   string

	metas   map[chat.ConversationID]chat.Meta
	threads map[chat.ConversationID]*thread
	loading map[string]bool
	broken  map[string]bool

	selected     chat.ConversationID
	focused      bool
	pendingUsers []string
	typers       map[chat.ConversationID][]string
	editing      map[chat.ConversationID]chat.Ordinal

	transfers map[transferKey]chat.TransferState
	outbox    map[chat.OutboxID]chat.OutboxEntry
}

// New creates an empty cache for the given local user and device.
func New(username, device string, b *bus.Bus, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		bus:       b,
		logger:    logger.Named("cache"),
		username:  username,
		device:    device,
		metas:     make(map[chat.ConversationID]chat.Meta),
		threads:   make(map[chat.ConversationID]*thread),
		loading:   make(map[string]bool),
		broken:    make(map[string]bool),
		typers:    make(map[chat.ConversationID][]string),
		editing:   make(map[chat.ConversationID]chat.Ordinal),
		transfers: make(map[transferKey]chat.TransferState),
		outbox:    make(map[chat.OutboxID]chat.OutboxEntry),
	}
}

// Me returns the local username and device name.
func (c *Cache) Me() (username, device string) {
	return c.username, c.device
}

// Meta returns the metadata of id.
func (c *Cache) Meta(id chat.ConversationID) (chat.Meta, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.metas[id]
	return m, ok
}

// Metas returns all metadata, most recent first.
func (c *Cache) Metas() []chat.Meta {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chat.Meta, 0, len(c.metas))
	for _, m := range c.metas {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FilterTrust returns the ids whose metadata is in state s. Unknown ids are
// treated as untrusted.
func (c *Cache) FilterTrust(ids []chat.ConversationID, s chat.TrustState) []chat.ConversationID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []chat.ConversationID
	for _, id := range ids {
		st := chat.Untrusted
		if m, ok := c.metas[id]; ok {
			st = m.TrustState
		}
		if st == s {
			out = append(out, id)
		}
	}
	return out
}

// UpsertMetas merges metas into the cache and returns the ones that changed.
//
// Trust never regresses: an untrusted listing for a conversation that is
// already requesting, trusted or errored only refreshes its timestamp and
// mute flag. A trusted item is applied only when the trust transition is
// allowed.
func (c *Cache) UpsertMetas(metas []chat.Meta) []chat.Meta {
	c.mu.Lock()
	defer c.mu.Unlock()
	var changed []chat.Meta
	for _, m := range metas {
		old, ok := c.metas[m.ID]
		next := m
		if ok {
			switch {
			case m.TrustState == chat.Untrusted && old.TrustState != chat.Untrusted:
				next = old
				if m.Timestamp > old.Timestamp {
					next.Timestamp = m.Timestamp
					next.IsMuted = m.IsMuted
				}
			case !old.TrustState.CanTransition(m.TrustState):
				c.logger.Debug("ignoring meta",
					zap.String("conversation", string(m.ID)),
					zap.String("from", string(old.TrustState)),
					zap.String("to", string(m.TrustState)))
				continue
			}
		}
		c.metas[m.ID] = next
		changed = append(changed, next)
		c.bus.Emit(bus.MetaReceived, MetaChange{Meta: next})
	}
	return changed
}

// MarkRequesting moves ids into the requesting state and returns the ones
// that moved. Ids without metadata get an untrusted placeholder first.
func (c *Cache) MarkRequesting(ids []chat.ConversationID) []chat.ConversationID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var moved []chat.ConversationID
	for _, id := range ids {
		m, ok := c.metas[id]
		if !ok {
			m = chat.Meta{ID: id, TrustState: chat.Untrusted}
		}
		if m.TrustState == chat.Requesting || !m.TrustState.CanTransition(chat.Requesting) {
			continue
		}
		m.TrustState = chat.Requesting
		c.metas[id] = m
		moved = append(moved, id)
		c.bus.Emit(bus.MetaReceived, MetaChange{Meta: m})
	}
	return moved
}

// MarkErrored moves a requesting conversation into the errored state.
func (c *Cache) MarkErrored(id chat.ConversationID, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metas[id]
	if !ok || m.TrustState == chat.Errored || !m.TrustState.CanTransition(chat.Errored) {
		return false
	}
	m.TrustState = chat.Errored
	m.Error = reason
	c.metas[id] = m
	c.bus.Emit(bus.MetaReceived, MetaChange{Meta: m})
	return true
}

// UpdateMeta applies fn to the metadata of id. It reports false when id is
// unknown. fn must not change the trust state.
func (c *Cache) UpdateMeta(id chat.ConversationID, fn func(*chat.Meta)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metas[id]
	if !ok {
		return false
	}
	trust := m.TrustState
	fn(&m)
	m.TrustState = trust
	c.metas[id] = m
	c.bus.Emit(bus.MetaReceived, MetaChange{Meta: m})
	return true
}

// RemoveMeta forgets a conversation and its thread.
func (c *Cache) RemoveMeta(id chat.ConversationID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.metas[id]
	if !ok {
		return
	}
	delete(c.metas, id)
	delete(c.threads, id)
	delete(c.typers, id)
	delete(c.editing, id)
	if c.selected == id {
		c.selected = ""
	}
	c.bus.Emit(bus.MetaRemoved, MetaChange{Meta: m})
}

// FindByParticipants returns the adhoc conversation whose participants are
// exactly users.
func (c *Cache) FindByParticipants(users []string) (chat.ConversationID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]chat.ConversationID, 0, len(c.metas))
	for id := range c.metas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		m := c.metas[id]
		if m.TeamType == chat.TeamAdhoc && m.HasParticipants(users) {
			return id, true
		}
	}
	return "", false
}
