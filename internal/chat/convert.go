package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformed marks a raw backend item that cannot be converted.
	ErrMalformed = errors.New("malformed item")
	// ErrNotVisible marks a well-formed message that has no thread rendering
	// (edits, deletes, placeholders).
	ErrNotVisible = errors.New("message not visible")
)

// UnverifiedItemToMeta converts one untrusted inbox listing item.
func UnverifiedItemToMeta(item gjson.Result, username string) (Meta, error) {
	if !item.IsObject() {
		return Meta{}, fmt.Errorf("inbox item: %w", ErrMalformed)
	}
	id := item.Get("convID").String()
	if id == "" {
		return Meta{}, fmt.Errorf("inbox item without convID: %w", ErrMalformed)
	}
	m := baseMeta(item)
	m.TrustState = Untrusted
	if len(m.Participants) == 0 && m.TLFName != "" && m.TeamType == TeamAdhoc {
		m.Participants = participantsFromTLF(m.TLFName, username)
	}
	return m, nil
}

// InboxItemToMeta converts one verified inbox item.
func InboxItemToMeta(item gjson.Result) (Meta, error) {
	if !item.IsObject() {
		return Meta{}, fmt.Errorf("inbox item: %w", ErrMalformed)
	}
	if item.Get("convID").String() == "" {
		return Meta{}, fmt.Errorf("inbox item without convID: %w", ErrMalformed)
	}
	if item.Get("isEmpty").Bool() {
		return Meta{}, fmt.Errorf("empty conversation: %w", ErrNotVisible)
	}
	m := baseMeta(item)
	m.TrustState = Trusted
	m.Snippet = item.Get("snippet").String()
	if names := item.Get("fullNames"); names.IsObject() {
		m.FullNames = make(map[string]string)
		names.ForEach(func(k, v gjson.Result) bool {
			m.FullNames[k.String()] = v.String()
			return true
		})
	}
	if perms := item.Get("canPerform"); perms.IsObject() {
		m.CanPerform = make(map[string]bool)
		perms.ForEach(func(k, v gjson.Result) bool {
			m.CanPerform[k.String()] = v.Bool()
			return true
		})
	}
	m.Notifications = ParseNotificationSettings(item.Get("notifications"))
	return m, nil
}

// ParseNotificationSettings reads the nested desktop/mobile notification
// flags of an inbox item or a settings push.
func ParseNotificationSettings(n gjson.Result) NotificationSettings {
	return NotificationSettings{
		DesktopAtMention: n.Get("desktop.atmention").Bool(),
		DesktopAny:       n.Get("desktop.generic").Bool(),
		MobileAtMention:  n.Get("mobile.atmention").Bool(),
		MobileAny:        n.Get("mobile.generic").Bool(),
		IgnoreMentions:   n.Get("channelWide").Bool(),
	}
}

func baseMeta(item gjson.Result) Meta {
	m := Meta{
		ID:          ConversationID(item.Get("convID").String()),
		TeamType:    ParseTeamType(item.Get("teamType").String()),
		ChannelName: item.Get("channel").String(),
		TLFName:     item.Get("name").String(),
		Timestamp:   item.Get("time").Int(),
		IsMuted:     item.Get("status").String() == "muted",
	}
	if m.TeamType != TeamAdhoc {
		m.TeamName = m.TLFName
	}
	for _, p := range item.Get("participants").Array() {
		if s := p.String(); s != "" {
			m.Participants = append(m.Participants, s)
		}
	}
	return m
}

func participantsFromTLF(tlf, username string) []string {
	var out []string
	for _, name := range strings.Split(tlf, ",") {
		if name != "" {
			out = append(out, name)
		}
	}
	if len(out) == 0 && username != "" {
		out = []string{username}
	}
	return out
}

// UIMessageToMessage converts one raw thread or push message. The returned
// message has no ordinal when it is still pending; the cache assigns one.
func UIMessageToMessage(conv ConversationID, raw gjson.Result, username, device string) (Message, error) {
	switch raw.Get("state").String() {
	case "valid":
		return validMessage(conv, raw.Get("valid"))
	case "outbox":
		return outboxMessage(conv, raw.Get("outbox"), username, device)
	case "error":
		e := raw.Get("error")
		id := MessageID(e.Get("messageID").Uint())
		if id == 0 {
			return Message{}, fmt.Errorf("error message without id: %w", ErrMalformed)
		}
		return Message{
			Conversation: conv,
			Ordinal:      CommittedOrdinal(id),
			ID:           id,
			Type:         MessageError,
			SendState:    SendSent,
			Timestamp:    e.Get("ctime").Int(),
			ErrorReason:  e.Get("errMsg").String(),
		}, nil
	case "placeholder":
		return Message{}, ErrNotVisible
	}
	return Message{}, fmt.Errorf("unknown message state %q: %w", raw.Get("state").String(), ErrMalformed)
}

func validMessage(conv ConversationID, v gjson.Result) (Message, error) {
	id := MessageID(v.Get("messageID").Uint())
	if id == 0 {
		return Message{}, fmt.Errorf("valid message without id: %w", ErrMalformed)
	}
	m := Message{
		Conversation: conv,
		Ordinal:      CommittedOrdinal(id),
		ID:           id,
		OutboxID:     OutboxID(v.Get("outboxID").String()),
		SendState:    SendSent,
		Author:       v.Get("sender").String(),
		Device:       v.Get("senderDevice").String(),
		Timestamp:    v.Get("ctime").Int(),
	}
	body := v.Get("body")
	switch t := v.Get("messageType").String(); t {
	case "text":
		m.Type = MessageText
		m.Text = body.Get("text").String()
	case "attachment":
		m.Type = MessageAttachment
		a := body.Get("attachment")
		m.Attachment = &Attachment{
			FileName: a.Get("filename").String(),
			FileSize: a.Get("size").Int(),
			Title:    a.Get("title").String(),
			MimeType: a.Get("mimeType").String(),
		}
	case "join", "leave", "system", "metadata", "headline":
		m.Type = MessageSystem
		m.Text = body.Get("text").String()
	case "edit", "delete", "attachmentuploaded", "tlfname", "deletehistory":
		return Message{}, ErrNotVisible
	default:
		return Message{}, fmt.Errorf("unknown message type %q: %w", t, ErrMalformed)
	}
	return m, nil
}

func outboxMessage(conv ConversationID, o gjson.Result, username, device string) (Message, error) {
	outboxID := OutboxID(o.Get("outboxID").String())
	if outboxID == "" {
		return Message{}, fmt.Errorf("outbox message without outboxID: %w", ErrMalformed)
	}
	m := Message{
		Conversation: conv,
		OutboxID:     outboxID,
		Type:         MessageText,
		SendState:    SendPending,
		Author:       username,
		Device:       device,
		Timestamp:    o.Get("ctime").Int(),
		Text:         o.Get("body").String(),
	}
	if o.Get("state").String() == "error" {
		m.SendState = SendFailed
		m.ErrorReason = o.Get("error").String()
	}
	return m, nil
}

// EditTarget reads the edited message id and its new text from a valid edit
// message.
func EditTarget(raw gjson.Result) (MessageID, string, bool) {
	v := raw.Get("valid")
	if raw.Get("state").String() != "valid" || v.Get("messageType").String() != "edit" {
		return 0, "", false
	}
	e := v.Get("body.edit")
	id := MessageID(e.Get("messageID").Uint())
	return id, e.Get("body").String(), id != 0
}

// DeleteTargets reads the deleted message ids from a valid delete message.
func DeleteTargets(raw gjson.Result) ([]MessageID, bool) {
	v := raw.Get("valid")
	if raw.Get("state").String() != "valid" || v.Get("messageType").String() != "delete" {
		return nil, false
	}
	var ids []MessageID
	for _, r := range v.Get("body.delete.messageIDs").Array() {
		if id := MessageID(r.Uint()); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids, len(ids) > 0
}

// UploadedAttachment converts a valid attachmentuploaded message into the
// committed attachment message and the id of the placeholder it completes.
func UploadedAttachment(conv ConversationID, raw gjson.Result) (MessageID, Message, error) {
	v := raw.Get("valid")
	if raw.Get("state").String() != "valid" || v.Get("messageType").String() != "attachmentuploaded" {
		return 0, Message{}, fmt.Errorf("not an uploaded attachment: %w", ErrMalformed)
	}
	id := MessageID(v.Get("messageID").Uint())
	u := v.Get("body.attachmentuploaded")
	placeholder := MessageID(u.Get("messageID").Uint())
	if id == 0 || placeholder == 0 {
		return 0, Message{}, fmt.Errorf("uploaded attachment without ids: %w", ErrMalformed)
	}
	obj := u.Get("object")
	return placeholder, Message{
		Conversation: conv,
		Ordinal:      CommittedOrdinal(id),
		ID:           id,
		OutboxID:     OutboxID(v.Get("outboxID").String()),
		Type:         MessageAttachment,
		SendState:    SendSent,
		Author:       v.Get("sender").String(),
		Device:       v.Get("senderDevice").String(),
		Timestamp:    v.Get("ctime").Int(),
		Attachment: &Attachment{
			FileName: obj.Get("filename").String(),
			FileSize: obj.Get("size").Int(),
			Title:    obj.Get("title").String(),
			MimeType: obj.Get("mimeType").String(),
		},
	}, nil
}
