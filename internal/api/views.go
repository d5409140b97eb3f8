package api

import (
	"encoding/json"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/store"
)

// Conversation is the API view of one conversation's metadata.
type Conversation struct {
	ID           string   `json:"id"`
	TrustState   string   `json:"trust_state"`
	TeamType     string   `json:"team_type"`
	TeamName     string   `json:"team_name,omitempty"`
	ChannelName  string   `json:"channel_name,omitempty"`
	TLFName      string   `json:"tlf_name"`
	Participants []string `json:"participants"`
	Timestamp    int64    `json:"timestamp"`
	Muted        bool     `json:"muted"`
	Snippet      string   `json:"snippet,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Attachment is the API view of an attachment.
type Attachment struct {
	FileName     string `json:"file_name"`
	FileSize     int64  `json:"file_size"`
	Title        string `json:"title,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	PreviewPath  string `json:"preview_path,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
	DownloadPath string `json:"download_path,omitempty"`
}

// Message is the API view of one thread entry.
type Message struct {
	ConversationID string       `json:"conversation_id"`
	Ordinal        chat.Ordinal `json:"ordinal"`
	ID             uint64       `json:"id"`
	OutboxID       string       `json:"outbox_id,omitempty"`
	Type           string       `json:"type"`
	SendState      string       `json:"send_state"`
	Author         string       `json:"author"`
	Timestamp      int64        `json:"timestamp"`
	Text           string       `json:"text,omitempty"`
	ErrorReason    string       `json:"error_reason,omitempty"`
	Attachment     *Attachment  `json:"attachment,omitempty"`
}

// SearchHit is one persisted message matching a search.
type SearchHit struct {
	ConversationID string `json:"conversation_id"`
	ID             uint64 `json:"id"`
	Sender         string `json:"sender"`
	Body           string `json:"body"`
	Timestamp      int64  `json:"timestamp"`
	Snippet        string `json:"snippet"`
}

// Status summarizes the daemon.
type Status struct {
	Session       string   `json:"session"`
	Status        string   `json:"status"`
	UptimeMs      int64    `json:"uptime_ms"`
	Loading       []string `json:"loading"`
	Conversations int      `json:"conversations"`
	Selected      string   `json:"selected,omitempty"`
	DroppedEvents uint64   `json:"dropped_events"`
	Subscribers   int      `json:"bus_subscribers"`
}

// Event is one bus event as streamed by WatchEvents.
type Event struct {
	ID           string          `json:"event_id"`
	Session      string          `json:"session"`
	Kind         string          `json:"kind"`
	OccurredAtMs int64           `json:"occurred_at_ms"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

func conversationView(m chat.Meta) Conversation {
	return Conversation{
		ID:           string(m.ID),
		TrustState:   string(m.TrustState),
		TeamType:     string(m.TeamType),
		TeamName:     m.TeamName,
		ChannelName:  m.ChannelName,
		TLFName:      m.TLFName,
		Participants: m.Participants,
		Timestamp:    m.Timestamp,
		Muted:        m.IsMuted,
		Snippet:      m.Snippet,
		Error:        m.Error,
	}
}

func messageView(m chat.Message) Message {
	v := Message{
		ConversationID: string(m.Conversation),
		Ordinal:        m.Ordinal,
		ID:             uint64(m.ID),
		OutboxID:       string(m.OutboxID),
		Type:           string(m.Type),
		SendState:      string(m.SendState),
		Author:         m.Author,
		Timestamp:      m.Timestamp,
		Text:           m.Text,
		ErrorReason:    m.ErrorReason,
	}
	if a := m.Attachment; a != nil {
		v.Attachment = &Attachment{
			FileName:     a.FileName,
			FileSize:     a.FileSize,
			Title:        a.Title,
			MimeType:     a.MimeType,
			PreviewPath:  a.PreviewPath,
			FilePath:     a.FilePath,
			DownloadPath: a.DownloadPath,
		}
	}
	return v
}

func searchHit(r store.SearchResult) SearchHit {
	return SearchHit{
		ConversationID: r.Message.ConversationID,
		ID:             r.Message.MsgID,
		Sender:         r.Message.Sender,
		Body:           r.Message.Body,
		Timestamp:      r.Message.Timestamp,
		Snippet:        r.Snippet,
	}
}

// eventPayload renders cache changes with the API views; other payloads are
// sent as they are.
func eventPayload(p any) any {
	switch p := p.(type) {
	case cache.MetaChange:
		return conversationView(p.Meta)
	case cache.MessageChange:
		return messageView(p.Message)
	}
	return p
}
