package api

import (
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/tidwall/gjson"
)

var (
	// ErrUnknownCommand is returned for a type the API does not accept.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingField is returned when a required frame field is empty.
	ErrMissingField = errors.New("missing field")
)

type decoder func(f gjson.Result) (command.Command, error)

// decoders lists the commands a client may dispatch, keyed by type name.
// Commands that only the backend produces are not accepted.
var decoders = map[string]decoder{
	"InboxRefresh": func(gjson.Result) (command.Command, error) {
		return command.InboxRefresh{Reason: command.RefreshUser}, nil
	},
	"MetaNeedsUpdating": func(f gjson.Result) (command.Command, error) {
		var ids []chat.ConversationID
		for _, id := range names(f.Get("conversation_ids")) {
			ids = append(ids, chat.ConversationID(id))
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("conversation_ids: %w", ErrMissingField)
		}
		return command.MetaNeedsUpdating{IDs: ids}, nil
	},
	"SelectConversation": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.SelectConversation{ID: id, FromUser: fromUser(f)}, err
	},
	"LoadNewContent": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.LoadNewContent{ID: id}, err
	},
	"LoadMoreMessages": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.LoadMoreMessages{ID: id}, err
	},
	"SetAppFocus": func(f gjson.Result) (command.Command, error) {
		return command.SetAppFocus{Focused: f.Get("focused").Bool()}, nil
	},
	"SetPendingConversationUsers": func(f gjson.Result) (command.Command, error) {
		return command.SetPendingConversationUsers{Users: names(f.Get("users")), FromUser: fromUser(f)}, nil
	},
	"StartConversation": func(f gjson.Result) (command.Command, error) {
		users := names(f.Get("participants"))
		if len(users) == 0 {
			return nil, fmt.Errorf("participants: %w", ErrMissingField)
		}
		return command.StartConversation{Participants: users}, nil
	},
	"MessageSend": func(f gjson.Result) (command.Command, error) {
		return command.MessageSend{ID: chat.ConversationID(f.Get("conversation_id").String()), Text: f.Get("text").String()}, nil
	},
	"MessageEdit": func(f gjson.Result) (command.Command, error) {
		id, o, err := target(f)
		return command.MessageEdit{ID: id, Ordinal: o, Text: f.Get("text").String()}, err
	},
	"MessageDelete": func(f gjson.Result) (command.Command, error) {
		id, o, err := target(f)
		return command.MessageDelete{ID: id, Ordinal: o}, err
	},
	"MessageDeleteHistory": func(f gjson.Result) (command.Command, error) {
		id, o, err := target(f)
		return command.MessageDeleteHistory{ID: id, Ordinal: o}, err
	},
	"MessageSetEditing": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		if err != nil {
			return nil, err
		}
		var o chat.Ordinal
		if s := f.Get("ordinal").String(); s != "" {
			if o, err = chat.ParseOrdinal(s); err != nil {
				return nil, err
			}
		}
		return command.MessageSetEditing{ID: id, Ordinal: o}, nil
	},
	"MessageRetry": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		if err != nil {
			return nil, err
		}
		outboxID := f.Get("outbox_id").String()
		if outboxID == "" {
			return nil, fmt.Errorf("outbox_id: %w", ErrMissingField)
		}
		return command.MessageRetry{ID: id, OutboxID: chat.OutboxID(outboxID)}, nil
	},
	"AttachmentLoad": func(f gjson.Result) (command.Command, error) {
		id, o, err := target(f)
		return command.AttachmentLoad{ID: id, Ordinal: o, IsPreview: f.Get("preview").Bool()}, err
	},
	"AttachmentDownload": func(f gjson.Result) (command.Command, error) {
		id, o, err := target(f)
		return command.AttachmentDownload{ID: id, Ordinal: o}, err
	},
	"AttachmentUpload": func(f gjson.Result) (command.Command, error) {
		path := f.Get("path").String()
		if path == "" {
			return nil, fmt.Errorf("path: %w", ErrMissingField)
		}
		return command.AttachmentUpload{
			ID:    chat.ConversationID(f.Get("conversation_id").String()),
			Path:  path,
			Title: f.Get("title").String(),
		}, nil
	},
	"MarkThreadRead": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.MarkThreadRead{ID: id}, err
	},
	"SendTyping": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.SendTyping{ID: id, Typing: f.Get("typing").Bool()}, err
	},
	"MuteConversation": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.MuteConversation{ID: id, Muted: f.Get("muted").Bool()}, err
	},
	"UpdateNotificationSettings": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		s := f.Get("settings")
		return command.UpdateNotificationSettings{ID: id, Settings: chat.NotificationSettings{
			DesktopAtMention: s.Get("desktop_at_mention").Bool(),
			DesktopAny:       s.Get("desktop_any").Bool(),
			MobileAtMention:  s.Get("mobile_at_mention").Bool(),
			MobileAny:        s.Get("mobile_any").Bool(),
			IgnoreMentions:   s.Get("ignore_mentions").Bool(),
		}}, err
	},
	"JoinConversation": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.JoinConversation{ID: id}, err
	},
	"LeaveConversation": func(f gjson.Result) (command.Command, error) {
		id, err := conversation(f)
		return command.LeaveConversation{ID: id}, err
	},
}

// DecodeCommand builds a command from a {type, ...} frame.
func DecodeCommand(f gjson.Result) (command.Command, error) {
	typ := f.Get("type").String()
	dec, ok := decoders[typ]
	if !ok {
		return nil, fmt.Errorf("%q: %w", typ, ErrUnknownCommand)
	}
	cmd, err := dec(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", typ, err)
	}
	return cmd, nil
}

func conversation(f gjson.Result) (chat.ConversationID, error) {
	id := f.Get("conversation_id").String()
	if id == "" {
		return "", fmt.Errorf("conversation_id: %w", ErrMissingField)
	}
	return chat.ConversationID(id), nil
}

func target(f gjson.Result) (chat.ConversationID, chat.Ordinal, error) {
	id, err := conversation(f)
	if err != nil {
		return "", chat.Ordinal{}, err
	}
	s := f.Get("ordinal").String()
	if s == "" {
		return "", chat.Ordinal{}, fmt.Errorf("ordinal: %w", ErrMissingField)
	}
	o, err := chat.ParseOrdinal(s)
	if err != nil {
		return "", chat.Ordinal{}, err
	}
	return id, o, nil
}

// fromUser defaults to true: API callers act for the user.
func fromUser(f gjson.Result) bool {
	v := f.Get("from_user")
	return !v.Exists() || v.Bool()
}

func names(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
