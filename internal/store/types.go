package store

// Conversation is the persisted summary of a conversation.
type Conversation struct {
	ID           string
	TLFName      string
	TeamType     string
	ChannelName  string
	Participants []string
	TrustState   string
	Muted        bool
	Timestamp    int64
}

// Message is a persisted committed message.
type Message struct {
	ConversationID string
	MsgID          uint64
	Sender         string
	Body           string
	MessageType    string
	OutboxID       string
	Timestamp      int64
}

// OutboxRecord is one persisted outbox action.
type OutboxRecord struct {
	OutboxID       string
	ConversationID string
	Ordinal        string
	Kind           string
	Body           string
	Status         string // queued, in_flight, acked, failed
	ErrorMessage   string
	MsgID          uint64
	CreatedAt      int64
	UpdatedAt      int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
