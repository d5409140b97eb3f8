package chat

// OutboxID is the client-generated key of one pending action.
type OutboxID string

// MessageType is the visible kind of a message.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageAttachment MessageType = "attachment"
	MessageSystem     MessageType = "system"
	MessageError      MessageType = "error"
)

// SendState is the delivery state of a message.
type SendState string

const (
	SendPending SendState = "pending"
	SendSent    SendState = "sent"
	SendFailed  SendState = "failed"
	SendDeleted SendState = "deleted"
)

// Attachment holds the file side of an attachment message.
type Attachment struct {
	FileName     string
	FileSize     int64
	Title        string
	MimeType     string
	PreviewPath  string // local cached preview, empty until loaded
	FilePath     string // local cached full file, empty until loaded
	DownloadPath string // copy saved by the user
}

// Message is one entry of a conversation thread.
type Message struct {
	Conversation ConversationID
	Ordinal      Ordinal
	ID           MessageID
	OutboxID     OutboxID
	Type         MessageType
	SendState    SendState
	Author       string
	Device       string
	Timestamp    int64
	Text         string
	Attachment   *Attachment
	ErrorReason  string
}

// Clone returns a copy that shares no pointers with m.
func (m Message) Clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

// OutboxKind is the action an outbox entry stands for.
type OutboxKind string

const (
	OutboxSend   OutboxKind = "send"
	OutboxEdit   OutboxKind = "edit"
	OutboxDelete OutboxKind = "delete"
)

// OutboxStatus follows queued -> in-flight -> {acked, failed}; failed goes
// back to queued on retry.
type OutboxStatus string

const (
	OutboxQueued   OutboxStatus = "queued"
	OutboxInFlight OutboxStatus = "in_flight"
	OutboxAcked    OutboxStatus = "acked"
	OutboxFailed   OutboxStatus = "failed"
)

// OutboxEntry maps an OutboxID to the ordinal it renders at.
type OutboxEntry struct {
	OutboxID     OutboxID
	Conversation ConversationID
	Ordinal      Ordinal
	Kind         OutboxKind
	Body         string
	Status       OutboxStatus
	Error        string
}

// TransferKind selects the preview or the full attachment file.
type TransferKind string

const (
	TransferPreview TransferKind = "preview"
	TransferFull    TransferKind = "full"
)

// TransferDirection distinguishes uploads from downloads.
type TransferDirection string

const (
	Upload   TransferDirection = "upload"
	Download TransferDirection = "download"
)

// TransferState is the progress of one attachment transfer.
type TransferState struct {
	Conversation ConversationID
	Ordinal      Ordinal
	Kind         TransferKind
	Direction    TransferDirection
	Ratio        float64
	Path         string // set once the transfer completed
	Err          string // set once the transfer failed
}

// Active reports whether the transfer has not reached a terminal state.
func (t TransferState) Active() bool {
	return t.Path == "" && t.Err == ""
}

// IdentifyBehavior tells the backend how aggressively to pre-verify
// participant identities before posting.
type IdentifyBehavior string

const (
	IdentifyLenient IdentifyBehavior = "chatGui"
	IdentifyStrict  IdentifyBehavior = "chatGuiStrict"
)
