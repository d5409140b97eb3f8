package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
)

const (
	conversationLimit = 100
	messageLimit      = 200
	searchLimit       = 50
)

// Backend is the subset of the daemon API the TUI uses.
type Backend interface {
	Dispatch(ctx context.Context, typ string, f api.Fields) error
	ListConversations(ctx context.Context, limit int) (api.ConversationList, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]api.Message, error)
	SearchMessages(ctx context.Context, query, conversationID string, limit int) ([]api.SearchHit, error)
	Status(ctx context.Context) (api.Status, error)
}

// Refresh says which parts of the screen an event invalidates.
type Refresh uint8

const (
	RefreshConversations Refresh = 1 << iota
	RefreshMessages
	RefreshStatus
)

// ViewModel caches daemon state for the views.
type ViewModel struct {
	mu sync.RWMutex

	backend       Backend
	Status        api.Status
	Conversations []api.Conversation
	Messages      []api.Message
	Active        string
	Flash         Flash
}

// NewViewModel creates a new view model backed by the daemon API.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{backend: b}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.backend.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = st
	vm.mu.Unlock()
	return nil
}

// LoadConversations fetches the conversation list.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	list, err := vm.backend.ListConversations(ctx, conversationLimit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Conversations = list.Conversations
	vm.mu.Unlock()
	return nil
}

// LoadMessages fetches the thread of the active conversation.
func (vm *ViewModel) LoadMessages(ctx context.Context) error {
	id := vm.ActiveID()
	if id == "" {
		return nil
	}
	msgs, err := vm.backend.ListMessages(ctx, id, messageLimit)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.Active == id {
		vm.Messages = msgs
	}
	vm.mu.Unlock()
	return nil
}

// Open selects a conversation in the daemon and loads what it has cached.
// The thread fills in as message events arrive.
func (vm *ViewModel) Open(ctx context.Context, id string) error {
	if err := vm.backend.Dispatch(ctx, "SelectConversation", api.Fields{"conversation_id": id}); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Active = id
	vm.Messages = nil
	vm.mu.Unlock()
	return vm.LoadMessages(ctx)
}

// Close leaves the active conversation.
func (vm *ViewModel) Close() {
	vm.mu.Lock()
	vm.Active = ""
	vm.Messages = nil
	vm.mu.Unlock()
}

// SetFocus reports terminal focus so the daemon only marks threads read
// while they are visible.
func (vm *ViewModel) SetFocus(ctx context.Context, focused bool) error {
	return vm.backend.Dispatch(ctx, "SetAppFocus", api.Fields{"focused": focused})
}

// Send posts text to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, text string) error {
	return vm.activeDispatch(ctx, "MessageSend", api.Fields{"text": text})
}

// Typing reports whether the user is composing in the active conversation.
func (vm *ViewModel) Typing(ctx context.Context, typing bool) error {
	return vm.activeDispatch(ctx, "SendTyping", api.Fields{"typing": typing})
}

// LoadOlder asks for older history of the active conversation.
func (vm *ViewModel) LoadOlder(ctx context.Context) error {
	return vm.activeDispatch(ctx, "LoadMoreMessages", nil)
}

// Upload sends the file at path to the active conversation.
func (vm *ViewModel) Upload(ctx context.Context, path, title string) error {
	if path == "" {
		return fmt.Errorf("upload: missing path")
	}
	return vm.activeDispatch(ctx, "AttachmentUpload", api.Fields{"path": path, "title": title})
}

// Download saves the attachment at ordinal of the active conversation.
func (vm *ViewModel) Download(ctx context.Context, ordinal string) error {
	return vm.activeDispatch(ctx, "AttachmentDownload", api.Fields{"ordinal": ordinal})
}

// Retry re-posts a failed message of the active conversation.
func (vm *ViewModel) Retry(ctx context.Context, outboxID string) error {
	return vm.activeDispatch(ctx, "MessageRetry", api.Fields{"outbox_id": outboxID})
}

// Mute mutes or unmutes the active conversation.
func (vm *ViewModel) Mute(ctx context.Context, muted bool) error {
	return vm.activeDispatch(ctx, "MuteConversation", api.Fields{"muted": muted})
}

// Leave leaves the active conversation.
func (vm *ViewModel) Leave(ctx context.Context) error {
	if err := vm.activeDispatch(ctx, "LeaveConversation", nil); err != nil {
		return err
	}
	vm.Close()
	return nil
}

// Start opens the conversation with the comma separated users, creating it
// on the first message when none exists.
func (vm *ViewModel) Start(ctx context.Context, users string) error {
	var participants []string
	for _, u := range strings.Split(users, ",") {
		if u = strings.TrimSpace(u); u != "" {
			participants = append(participants, u)
		}
	}
	if len(participants) == 0 {
		return fmt.Errorf("start: no users")
	}
	return vm.backend.Dispatch(ctx, "StartConversation", api.Fields{"participants": participants})
}

// RequestTrust asks the daemon to unbox the untrusted conversations among
// ids, given top of the screen first.
func (vm *ViewModel) RequestTrust(ctx context.Context, ids []string) error {
	vm.mu.RLock()
	trust := make(map[string]string, len(vm.Conversations))
	for _, c := range vm.Conversations {
		trust[c.ID] = c.TrustState
	}
	vm.mu.RUnlock()

	var untrusted []string
	for _, id := range ids {
		if trust[id] == "untrusted" {
			untrusted = append(untrusted, id)
		}
	}
	if len(untrusted) == 0 {
		return nil
	}
	// the daemon's queue takes from the back
	slices.Reverse(untrusted)
	return vm.backend.Dispatch(ctx, "MetaNeedsUpdating", api.Fields{"conversation_ids": untrusted})
}

// Refresh asks the daemon to reload the inbox.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	return vm.backend.Dispatch(ctx, "InboxRefresh", nil)
}

// Search searches persisted messages.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]api.SearchHit, error) {
	return vm.backend.SearchMessages(ctx, query, "", searchLimit)
}

func (vm *ViewModel) activeDispatch(ctx context.Context, typ string, f api.Fields) error {
	id := vm.ActiveID()
	if id == "" {
		return fmt.Errorf("no conversation open")
	}
	if f == nil {
		f = api.Fields{}
	}
	f["conversation_id"] = id
	return vm.backend.Dispatch(ctx, typ, f)
}

// Classify decides what an event invalidates. Desktop notifications are
// shown as a flash message.
func (vm *ViewModel) Classify(evt api.Event) Refresh {
	switch {
	case strings.HasPrefix(evt.Kind, "meta."):
		return RefreshConversations
	case strings.HasPrefix(evt.Kind, "message."):
		var m struct {
			ConversationID string `json:"conversation_id"`
		}
		if json.Unmarshal(evt.Payload, &m) == nil && m.ConversationID == vm.ActiveID() {
			return RefreshMessages
		}
		return 0
	case evt.Kind == bus.AttachmentTransfer:
		return RefreshMessages
	case evt.Kind == bus.NotifyDesktop:
		var n struct {
			Author string
			Body   string
		}
		if json.Unmarshal(evt.Payload, &n) == nil {
			vm.Flash.Set(n.Author+": "+n.Body, 5*time.Second)
		}
		return RefreshStatus
	case evt.Kind == bus.SessionStatusChanged, evt.Kind == bus.LoadingChanged, evt.Kind == bus.InboxSynced:
		return RefreshStatus | RefreshConversations
	}
	return 0
}

// ActiveID returns the open conversation, if any.
func (vm *ViewModel) ActiveID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Active
}

// GetConversations returns a snapshot of the conversation list.
func (vm *ViewModel) GetConversations() []api.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Conversations
}

// GetConversation returns the listed conversation with id.
func (vm *ViewModel) GetConversation(id string) (api.Conversation, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return api.Conversation{}, false
}

// GetMessages returns a snapshot of the active thread.
func (vm *ViewModel) GetMessages() []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Messages
}

// GetStatus returns a snapshot of the daemon status.
func (vm *ViewModel) GetStatus() api.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}
