package rpc

import (
	"github.com/tidwall/gjson"
)

// Event is one callback delivered by a streamed call. The set of variants is
// closed; handlers switch on the concrete type.
type Event interface {
	isEvent()
}

// InboxUnverified carries a batch of untrusted inbox items.
type InboxUnverified struct {
	Items []gjson.Result
}

// InboxConversation carries one trusted inbox item produced by unboxing.
type InboxConversation struct {
	Item gjson.Result
}

// InboxFailed reports that unboxing one conversation failed on the server.
type InboxFailed struct {
	ConvID  string
	Message string
}

// ThreadPage carries a page of UI messages. Cached pages come from the local
// backend cache and may be followed by a full page for the same request.
type ThreadPage struct {
	Cached   bool
	Messages []gjson.Result
}

// TransferStart marks the beginning of an attachment transfer.
type TransferStart struct {
	Preview bool
}

// TransferProgress reports bytes moved so far.
type TransferProgress struct {
	Preview       bool
	BytesComplete int64
	BytesTotal    int64
}

// Ratio returns BytesComplete / BytesTotal, or 0 when the total is unknown.
func (p TransferProgress) Ratio() float64 {
	if p.BytesTotal <= 0 {
		return 0
	}
	return float64(p.BytesComplete) / float64(p.BytesTotal)
}

// TransferDone marks the end of an attachment transfer.
type TransferDone struct {
	Preview bool
}

// UploadOutboxID reports the outbox id the backend assigned to an upload.
type UploadOutboxID struct {
	OutboxID string
}

// Unknown is any callback the decoder does not recognise.
type Unknown struct {
	Name    string
	Payload gjson.Result
}

func (InboxUnverified) isEvent()   {}
func (InboxConversation) isEvent() {}
func (InboxFailed) isEvent()       {}
func (ThreadPage) isEvent()        {}
func (TransferStart) isEvent()     {}
func (TransferProgress) isEvent()  {}
func (TransferDone) isEvent()      {}
func (UploadOutboxID) isEvent()    {}
func (Unknown) isEvent()           {}

// Callback names as they appear on the wire.
const (
	CallbackInboxUnverified    = "chat.1.chatUi.chatInboxUnverified"
	CallbackInboxConversation  = "chat.1.chatUi.chatInboxConversation"
	CallbackInboxFailed        = "chat.1.chatUi.chatInboxFailed"
	CallbackThreadCached       = "chat.1.chatUi.chatThreadCached"
	CallbackThreadFull         = "chat.1.chatUi.chatThreadFull"
	CallbackDownloadStart      = "chat.1.chatUi.chatAttachmentDownloadStart"
	CallbackDownloadProgress   = "chat.1.chatUi.chatAttachmentDownloadProgress"
	CallbackDownloadDone       = "chat.1.chatUi.chatAttachmentDownloadDone"
	CallbackUploadStart        = "chat.1.chatUi.chatAttachmentUploadStart"
	CallbackUploadProgress     = "chat.1.chatUi.chatAttachmentUploadProgress"
	CallbackUploadDone         = "chat.1.chatUi.chatAttachmentUploadDone"
	CallbackUploadOutboxID     = "chat.1.chatUi.chatAttachmentUploadOutboxID"
	CallbackPreviewUploadStart = "chat.1.chatUi.chatAttachmentPreviewUploadStart"
	CallbackPreviewUploadDone  = "chat.1.chatUi.chatAttachmentPreviewUploadDone"
)

// Decode turns a named callback and its JSON payload into a typed Event.
// Items nested as JSON strings (inbox items, threads) are unwrapped.
func Decode(name string, payload gjson.Result) Event {
	switch name {
	case CallbackInboxUnverified:
		inbox := nested(payload.Get("inbox"))
		return InboxUnverified{Items: inbox.Get("items").Array()}
	case CallbackInboxConversation:
		return InboxConversation{Item: nested(payload.Get("conv"))}
	case CallbackInboxFailed:
		return InboxFailed{
			ConvID:  payload.Get("convID").String(),
			Message: payload.Get("error.message").String(),
		}
	case CallbackThreadCached, CallbackThreadFull:
		thread := nested(payload.Get("thread"))
		return ThreadPage{Cached: name == CallbackThreadCached, Messages: thread.Get("messages").Array()}
	case CallbackDownloadStart, CallbackUploadStart:
		return TransferStart{}
	case CallbackPreviewUploadStart:
		return TransferStart{Preview: true}
	case CallbackDownloadProgress, CallbackUploadProgress:
		return TransferProgress{
			BytesComplete: payload.Get("bytesComplete").Int(),
			BytesTotal:    payload.Get("bytesTotal").Int(),
		}
	case CallbackDownloadDone, CallbackUploadDone:
		return TransferDone{}
	case CallbackPreviewUploadDone:
		return TransferDone{Preview: true}
	case CallbackUploadOutboxID:
		return UploadOutboxID{OutboxID: payload.Get("outboxID").String()}
	}
	return Unknown{Name: name, Payload: payload}
}

// nested parses r when the backend delivered an object encoded as a string.
func nested(r gjson.Result) gjson.Result {
	if r.Type == gjson.String {
		return gjson.Parse(r.String())
	}
	return r
}
