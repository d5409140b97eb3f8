// Package rpc describes the capabilities the sync core consumes from the chat
// backend: unary calls, streamed calls with typed callback events, and the
// push notification stream.
package rpc

import (
	"context"

	"github.com/tidwall/gjson"
)

// Params are the named arguments of one backend call. Values must be
// JSON-compatible.
type Params map[string]any

// Gateway issues calls against the chat backend.
type Gateway interface {
	// Call issues a unary call and returns its result.
	Call(ctx context.Context, method string, params Params) (gjson.Result, error)
	// Stream issues a streamed call. handle runs for every callback event in
	// delivery order before the terminal result is returned; an error from
	// handle aborts the call.
	Stream(ctx context.Context, method string, params Params, handle func(Event) error) (gjson.Result, error)
}

// Notification is one inbound push event.
type Notification struct {
	Name    string
	Payload gjson.Result
}

// PushSource delivers push notifications until ctx is done or the stream
// ends with or without an error. Callers resubscribe after it returns.
type PushSource interface {
	Subscribe(ctx context.Context, deliver func(Notification)) error
}

// Unary method names.
const (
	MethodCancelPost                 = "chat.1.local.cancelPost"
	MethodJoinConversation           = "chat.1.local.joinConversationByIDLocal"
	MethodLeaveConversation          = "chat.1.local.leaveConversationLocal"
	MethodMarkAsRead                 = "chat.1.local.markAsReadLocal"
	MethodNewConversation            = "chat.1.local.newConversationLocal"
	MethodPostDeleteHistoryUpto      = "chat.1.local.postDeleteHistoryUpto"
	MethodPostDelete                 = "chat.1.local.postDeleteNonblock"
	MethodPostEdit                   = "chat.1.local.postEditNonblock"
	MethodPostText                   = "chat.1.local.postTextNonblock"
	MethodRetryPost                  = "chat.1.local.retryPost"
	MethodSetConversationStatus      = "chat.1.local.setConversationStatusLocal"
	MethodSetAppNotificationSettings = "chat.1.local.setAppNotificationSettingsLocal"
	MethodUpdateTyping               = "chat.1.local.updateTyping"
)

// Streamed method names.
const (
	MethodGetInbox     = "chat.1.local.getInboxNonblockLocal"
	MethodGetThread    = "chat.1.local.getThreadNonblock"
	MethodDownloadFile = "chat.1.local.downloadFileAttachmentLocal"
	MethodPostFile     = "chat.1.local.postFileAttachmentLocal"
)

// Push notification names.
const (
	NotifyNewChatActivity    = "chat.1.NotifyChat.NewChatActivity"
	NotifyInboxSynced        = "chat.1.NotifyChat.ChatInboxSynced"
	NotifyInboxSyncStarted   = "chat.1.NotifyChat.ChatInboxSyncStarted"
	NotifyInboxStale         = "chat.1.NotifyChat.ChatInboxStale"
	NotifyTypingUpdate       = "chat.1.NotifyChat.ChatTypingUpdate"
	NotifyThreadsStale       = "chat.1.NotifyChat.ChatThreadsStale"
	NotifyTLFFinalize        = "chat.1.NotifyChat.ChatTLFFinalize"
	NotifyIdentifyUpdate     = "chat.1.NotifyChat.ChatIdentifyUpdate"
	NotifyJoinedConversation = "chat.1.NotifyChat.ChatJoinedConversation"
	NotifyLeftConversation   = "chat.1.NotifyChat.ChatLeftConversation"
)
