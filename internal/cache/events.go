package cache

import "github.com/matheus3301/chatsync/internal/chat"

// Payloads published on the bus.
type (
	// MetaChange accompanies meta.received and meta.removed.
	MetaChange struct {
		Meta chat.Meta
	}
	// MessageChange accompanies message.added, message.updated and
	// message.removed.
	MessageChange struct {
		Message chat.Message
	}
	// LoadingChange accompanies loading.changed.
	LoadingChange struct {
		Key     string
		Loading bool
	}
	// BrokenChange accompanies identity.broken_changed.
	BrokenChange struct {
		NewlyBroken []string
		NewlyFixed  []string
	}
	// TypingChange accompanies typing.updated.
	TypingChange struct {
		Conversation chat.ConversationID
		Users        []string
	}
	// DesktopNotice accompanies notify.desktop.
	DesktopNotice struct {
		Conversation chat.ConversationID
		Author       string
		Body         string
	}
)
