package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Event kinds. Subscribers filter by prefix, so "message." receives every
// message event.
const (
	MetaReceived          = "meta.received"
	MetaRemoved           = "meta.removed"
	MessageAdded          = "message.added"
	MessageUpdated        = "message.updated"
	MessageRemoved        = "message.removed"
	LoadingChanged        = "loading.changed"
	AttachmentTransfer    = "attachment.transfer"
	IdentityBrokenChanged = "identity.broken_changed"
	TypingUpdated         = "typing.updated"
	NotifyDesktop         = "notify.desktop"
	InboxSynced           = "inbox.synced"
	SessionStatusChanged  = "session.status_changed"
)
