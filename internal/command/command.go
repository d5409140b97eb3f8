// Package command defines every command the sync core processes. Commands
// come from the UI, from push notifications (via the activity router) and
// as follow-ups emitted by other handlers.
package command

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
)

// Command is a closed union; the coordinator switches on the concrete type.
type Command interface {
	isCommand()
}

// RefreshReason says why the inbox is being reloaded.
type RefreshReason string

const (
	RefreshBootstrap          RefreshReason = "bootstrap"
	RefreshInboxStale         RefreshReason = "inboxStale"
	RefreshInboxSyncedClear   RefreshReason = "inboxSyncedClear"
	RefreshInboxSyncedUnknown RefreshReason = "inboxSyncedUnknown"
	RefreshJoinedConversation RefreshReason = "joinedAConversation"
	RefreshLeftConversation   RefreshReason = "leftAConversation"
	RefreshTeamTypeChanged    RefreshReason = "teamTypeChanged"
	RefreshUser               RefreshReason = "user"
)

// Inbox and metadata.
type (
	// InboxRefresh reloads the untrusted inbox listing.
	InboxRefresh struct{ Reason RefreshReason }
	// InboxSyncStarted is the push signal that the backend began syncing.
	InboxSyncStarted struct{}
	// InboxSynced carries the outcome of a backend inbox sync.
	InboxSynced struct{ Sync SyncResult }
	// MetasReceived merges metadata into the cache.
	MetasReceived struct{ Metas []chat.Meta }
	// MetaNeedsUpdating enqueues ids for trusted unboxing.
	MetaNeedsUpdating struct{ IDs []chat.ConversationID }
	// MetaHandleQueue drains the metadata request queue.
	MetaHandleQueue struct{}
	// MetaRequestTrusted unboxes ids now. Force skips the untrusted filter.
	MetaRequestTrusted struct {
		IDs   []chat.ConversationID
		Force bool
	}
	// MarkConversationsStale reloads the selected thread when it is listed.
	MarkConversationsStale struct{ IDs []chat.ConversationID }
)

// SyncType is the outcome kind of a backend inbox sync.
type SyncType string

const (
	SyncClear       SyncType = "clear"
	SyncCurrent     SyncType = "current"
	SyncIncremental SyncType = "incremental"
)

// SyncResult is the payload of an inbox synced notification. IDs lists every
// conversation an incremental sync touched; Items holds the ones whose
// summaries converted.
type SyncResult struct {
	Type  SyncType
	IDs   []chat.ConversationID
	Items []chat.Meta
}

// Selection and thread loading.
type (
	// SelectConversation changes the selected conversation.
	SelectConversation struct {
		ID       chat.ConversationID
		FromUser bool
	}
	// LoadNewContent loads newer messages into the selected conversation.
	LoadNewContent struct{ ID chat.ConversationID }
	// LoadMoreMessages paginates older history.
	LoadMoreMessages struct{ ID chat.ConversationID }
	// SetAppFocus records whether the app window is focused.
	SetAppFocus struct{ Focused bool }
	// SetPendingConversationUsers enters compose mode for a set of users.
	SetPendingConversationUsers struct {
		Users    []string
		FromUser bool
	}
	// StartConversation opens the conversation with participants, or
	// enters compose mode when none exists.
	StartConversation struct{ Participants []string }
)

// Messages arriving from the backend.
type (
	// MessagesAdd merges server or pending messages.
	MessagesAdd struct {
		ID       chat.ConversationID
		Context  AddContext
		Messages []chat.Message
	}
	// MessageWasEdited replaces the text of a committed message.
	MessageWasEdited struct {
		ID   chat.ConversationID
		Msg  chat.MessageID
		Text string
	}
	// MessagesWereDeleted removes messages by server id or by ordinal.
	MessagesWereDeleted struct {
		ID       chat.ConversationID
		Msgs     []chat.MessageID
		Ordinals []chat.Ordinal
	}
	// MessageAttachmentUploaded replaces the pending placeholder of an
	// upload with the committed attachment message.
	MessageAttachmentUploaded struct {
		ID            chat.ConversationID
		PlaceholderID chat.MessageID
		Message       chat.Message
	}
	// MessageErrored marks the pending message of an outbox id as failed.
	MessageErrored struct {
		ID       chat.ConversationID
		OutboxID chat.OutboxID
		Reason   string
	}
	// UpdateBrokenState records identity breaks and fixes.
	UpdateBrokenState struct {
		NewlyBroken []string
		NewlyFixed  []string
	}
	// UpdateTypers replaces the typing users per conversation.
	UpdateTypers struct{ Typers map[chat.ConversationID][]string }
	// NotificationSettingsUpdated applies new notification settings.
	NotificationSettingsUpdated struct {
		ID       chat.ConversationID
		Settings chat.NotificationSettings
	}
	// DesktopNotification asks for a desktop popup.
	DesktopNotification struct {
		ID     chat.ConversationID
		Author string
		Body   string
	}
)

// AddContext says where added messages came from.
type AddContext string

const (
	AddIncoming   AddContext = "incoming"
	AddSent       AddContext = "sent"
	AddThreadLoad AddContext = "threadLoad"
)

// Outbox.
type (
	// MessageSend posts text. An empty ID targets the pending conversation.
	MessageSend struct {
		ID   chat.ConversationID
		Text string
	}
	// MessageEdit replaces the text of the message at Ordinal.
	MessageEdit struct {
		ID      chat.ConversationID
		Ordinal chat.Ordinal
		Text    string
	}
	// MessageDelete deletes or cancels the message at Ordinal.
	MessageDelete struct {
		ID      chat.ConversationID
		Ordinal chat.Ordinal
	}
	// MessageRetry re-posts a failed outbox entry.
	MessageRetry struct {
		ID       chat.ConversationID
		OutboxID chat.OutboxID
	}
	// MessageDeleteHistory purges history up to and including Ordinal.
	MessageDeleteHistory struct {
		ID      chat.ConversationID
		Ordinal chat.Ordinal
	}
	// MessageSetEditing marks or clears the message being edited.
	MessageSetEditing struct {
		ID      chat.ConversationID
		Ordinal chat.Ordinal
	}
)

// Attachments.
type (
	// AttachmentNeedsUpdating enqueues an attachment download.
	AttachmentNeedsUpdating struct {
		ID        chat.ConversationID
		Ordinal   chat.Ordinal
		IsPreview bool
	}
	// AttachmentHandleQueue drains the attachment queue.
	AttachmentHandleQueue struct{}
	// AttachmentLoad downloads into the local cache now.
	AttachmentLoad struct {
		ID        chat.ConversationID
		Ordinal   chat.Ordinal
		IsPreview bool
	}
	// AttachmentDownload saves a full attachment to the download folder.
	AttachmentDownload struct {
		ID      chat.ConversationID
		Ordinal chat.Ordinal
	}
	// AttachmentUpload sends the file at Path. An empty ID targets the
	// selected conversation.
	AttachmentUpload struct {
		ID    chat.ConversationID
		Path  string
		Title string
	}
)

// Conversation management.
type (
	// MarkThreadRead sends a read receipt for the selected conversation.
	MarkThreadRead struct{ ID chat.ConversationID }
	// SendTyping reports the local user's typing state.
	SendTyping struct {
		ID     chat.ConversationID
		Typing bool
	}
	// MuteConversation mutes or unmutes.
	MuteConversation struct {
		ID    chat.ConversationID
		Muted bool
	}
	// UpdateNotificationSettings changes notification flags.
	UpdateNotificationSettings struct {
		ID       chat.ConversationID
		Settings chat.NotificationSettings
	}
	// JoinConversation joins a channel.
	JoinConversation struct{ ID chat.ConversationID }
	// LeaveConversation leaves a conversation and forgets it locally.
	LeaveConversation struct{ ID chat.ConversationID }
)

func (InboxRefresh) isCommand()                {}
func (InboxSyncStarted) isCommand()            {}
func (InboxSynced) isCommand()                 {}
func (MetasReceived) isCommand()               {}
func (MetaNeedsUpdating) isCommand()           {}
func (MetaHandleQueue) isCommand()             {}
func (MetaRequestTrusted) isCommand()          {}
func (MarkConversationsStale) isCommand()      {}
func (SelectConversation) isCommand()          {}
func (LoadNewContent) isCommand()              {}
func (LoadMoreMessages) isCommand()            {}
func (SetAppFocus) isCommand()                 {}
func (SetPendingConversationUsers) isCommand() {}
func (StartConversation) isCommand()           {}
func (MessagesAdd) isCommand()                 {}
func (MessageWasEdited) isCommand()            {}
func (MessagesWereDeleted) isCommand()         {}
func (MessageAttachmentUploaded) isCommand()   {}
func (MessageErrored) isCommand()              {}
func (UpdateBrokenState) isCommand()           {}
func (UpdateTypers) isCommand()                {}
func (NotificationSettingsUpdated) isCommand() {}
func (DesktopNotification) isCommand()         {}
func (MessageSend) isCommand()                 {}
func (MessageEdit) isCommand()                 {}
func (MessageDelete) isCommand()               {}
func (MessageRetry) isCommand()                {}
func (MessageDeleteHistory) isCommand()        {}
func (MessageSetEditing) isCommand()           {}
func (AttachmentNeedsUpdating) isCommand()     {}
func (AttachmentHandleQueue) isCommand()       {}
func (AttachmentLoad) isCommand()              {}
func (AttachmentDownload) isCommand()          {}
func (AttachmentUpload) isCommand()            {}
func (MarkThreadRead) isCommand()              {}
func (SendTyping) isCommand()                  {}
func (MuteConversation) isCommand()            {}
func (UpdateNotificationSettings) isCommand()  {}
func (JoinConversation) isCommand()            {}
func (LeaveConversation) isCommand()           {}

// Dispatcher accepts commands for ordered processing.
type Dispatcher interface {
	Dispatch(cmds ...Command)
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(cmds ...Command)

// Dispatch calls f.
func (f DispatchFunc) Dispatch(cmds ...Command) { f(cmds...) }

// Name returns a short label for logs.
func Name(c Command) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", c), "command.")
}
