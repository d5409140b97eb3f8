// Package activity turns backend push notifications into commands.
package activity

import (
	"errors"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Identity names the local user and device.
type Identity interface {
	Me() (username, device string)
}

type handler func(payload gjson.Result) []command.Command

// Router maps each notification name to a handler. Unknown names produce
// no commands.
type Router struct {
	me          Identity
	constrained bool
	logger      *zap.Logger

	handlers   map[string]handler
	activities map[string]handler
}

// NewRouter creates a router. A constrained UI never raises desktop
// notifications.
func NewRouter(me Identity, constrained bool, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{me: me, constrained: constrained, logger: logger.Named("activity")}
	r.handlers = map[string]handler{
		rpc.NotifyNewChatActivity:    r.chatActivity,
		rpc.NotifyTLFFinalize:        r.tlfFinalize,
		rpc.NotifyInboxSynced:        r.inboxSynced,
		rpc.NotifyInboxSyncStarted:   constant(command.InboxSyncStarted{}),
		rpc.NotifyInboxStale:         constant(command.InboxRefresh{Reason: command.RefreshInboxStale}),
		rpc.NotifyIdentifyUpdate:     r.identifyUpdate,
		rpc.NotifyTypingUpdate:       r.typingUpdate,
		rpc.NotifyThreadsStale:       r.threadsStale,
		rpc.NotifyJoinedConversation: constant(command.InboxRefresh{Reason: command.RefreshJoinedConversation}),
		rpc.NotifyLeftConversation:   constant(command.InboxRefresh{Reason: command.RefreshLeftConversation}),
	}
	r.activities = map[string]handler{
		"incomingMessage":            r.incomingMessage,
		"setStatus":                  r.convMetas,
		"readMessage":                r.convMetas,
		"newConversation":            r.convMetas,
		"failedMessage":              r.failedMessage,
		"membersUpdate":              r.membersUpdate,
		"setAppNotificationSettings": r.notificationSettings,
		"teamtype":                   constant(command.InboxRefresh{Reason: command.RefreshTeamTypeChanged}),
	}
	return r
}

// Route returns the commands for one notification.
func (r *Router) Route(n rpc.Notification) []command.Command {
	h, ok := r.handlers[n.Name]
	if !ok {
		r.logger.Debug("ignoring notification", zap.String("name", n.Name))
		return nil
	}
	return h(n.Payload)
}

func constant(cmd command.Command) handler {
	return func(gjson.Result) []command.Command { return []command.Command{cmd} }
}

func (r *Router) chatActivity(p gjson.Result) []command.Command {
	a := p.Get("activity")
	kind := a.Get("activityType").String()
	h, ok := r.activities[kind]
	if !ok {
		r.logger.Debug("ignoring chat activity", zap.String("type", kind))
		return nil
	}
	body := a.Get(kind)
	if !body.Exists() && kind != "teamtype" {
		return nil
	}
	return h(body)
}

func (r *Router) incomingMessage(p gjson.Result) []command.Command {
	var cmds []command.Command
	conv := chat.ConversationID(p.Get("convID").String())
	raw := nested(p.Get("message"))
	if conv != "" && raw.Exists() {
		cmds = r.message(conv, raw, p)
	}
	return append(cmds, r.convMetas(p)...)
}

func (r *Router) message(conv chat.ConversationID, raw, p gjson.Result) []command.Command {
	if raw.Get("valid.messageType").String() == "attachmentuploaded" {
		placeholder, msg, err := chat.UploadedAttachment(conv, raw)
		if err != nil {
			r.logger.Warn("bad uploaded attachment", zap.String("conversation", string(conv)), zap.Error(err))
			return nil
		}
		return []command.Command{command.MessageAttachmentUploaded{ID: conv, PlaceholderID: placeholder, Message: msg}}
	}

	username, device := r.me.Me()
	msg, err := chat.UIMessageToMessage(conv, raw, username, device)
	switch {
	case err == nil:
		cmds := []command.Command{command.MessagesAdd{ID: conv, Context: command.AddIncoming, Messages: []chat.Message{msg}}}
		snippet := nested(p.Get("conv")).Get("snippet").String()
		if !r.constrained && p.Get("displayDesktopNotification").Bool() && snippet != "" {
			cmds = append(cmds, command.DesktopNotification{ID: conv, Author: msg.Author, Body: snippet})
		}
		return cmds
	case errors.Is(err, chat.ErrNotVisible):
		if id, text, ok := chat.EditTarget(raw); ok {
			return []command.Command{command.MessageWasEdited{ID: conv, Msg: id, Text: text}}
		}
		if ids, ok := chat.DeleteTargets(raw); ok {
			return []command.Command{command.MessagesWereDeleted{ID: conv, Msgs: ids}}
		}
		return nil
	default:
		r.logger.Warn("dropping incoming message", zap.String("conversation", string(conv)), zap.Error(err))
		return nil
	}
}

// convMetas converts the verified conversation embedded in an activity.
func (r *Router) convMetas(p gjson.Result) []command.Command {
	item := nested(p.Get("conv"))
	if !item.Exists() {
		return nil
	}
	meta, err := chat.InboxItemToMeta(item)
	if err != nil {
		if !errors.Is(err, chat.ErrNotVisible) {
			r.logger.Warn("dropping activity conversation", zap.Error(err))
		}
		return nil
	}
	return []command.Command{command.MetasReceived{Metas: []chat.Meta{meta}}}
}

func (r *Router) failedMessage(p gjson.Result) []command.Command {
	var cmds []command.Command
	for _, rec := range p.Get("outboxRecords").Array() {
		state := rec.Get("state")
		if state.Get("state").String() != "error" {
			continue
		}
		e := state.Get("error")
		if e.Get("typ").String() == "" {
			continue
		}
		reason := e.Get("message").String()
		cmds = append(cmds, command.MessageErrored{
			ID:       chat.ConversationID(rec.Get("convID").String()),
			OutboxID: chat.OutboxID(rec.Get("outboxID").String()),
			Reason:   reason,
		})
		if e.Get("typ").String() == "identify" {
			if user := inbox.BrokenUser(reason, ""); user != "" {
				cmds = append(cmds, command.UpdateBrokenState{NewlyBroken: []string{user}})
			}
		}
	}
	return cmds
}

func (r *Router) membersUpdate(p gjson.Result) []command.Command {
	id := p.Get("convID").String()
	if id == "" {
		return nil
	}
	return []command.Command{command.MetaRequestTrusted{IDs: []chat.ConversationID{chat.ConversationID(id)}, Force: true}}
}

func (r *Router) notificationSettings(p gjson.Result) []command.Command {
	id := p.Get("convID").String()
	if id == "" {
		return nil
	}
	return []command.Command{command.NotificationSettingsUpdated{
		ID:       chat.ConversationID(id),
		Settings: chat.ParseNotificationSettings(p.Get("settings")),
	}}
}

func (r *Router) tlfFinalize(p gjson.Result) []command.Command {
	id := p.Get("convID").String()
	if id == "" {
		return nil
	}
	return []command.Command{command.MetaRequestTrusted{IDs: []chat.ConversationID{chat.ConversationID(id)}}}
}

func (r *Router) inboxSynced(p gjson.Result) []command.Command {
	res := p.Get("syncRes")
	sync := command.SyncResult{Type: command.SyncType(res.Get("syncType").String())}
	if sync.Type == command.SyncIncremental {
		username, _ := r.me.Me()
		for _, item := range res.Get("incremental.items").Array() {
			id := item.Get("convID").String()
			if id == "" {
				continue
			}
			sync.IDs = append(sync.IDs, chat.ConversationID(id))
			meta, err := chat.UnverifiedItemToMeta(item, username)
			if err != nil {
				r.logger.Warn("dropping synced item", zap.String("conversation", id), zap.Error(err))
				continue
			}
			sync.Items = append(sync.Items, meta)
		}
	}
	return []command.Command{command.InboxSynced{Sync: sync}}
}

func (r *Router) identifyUpdate(p gjson.Result) []command.Command {
	u := p.Get("update")
	broken := make(map[string]bool)
	for _, b := range u.Get("breaks.breaks").Array() {
		broken[b.Get("user.username").String()] = true
	}
	var cmd command.UpdateBrokenState
	for _, name := range strings.Split(u.Get("CanonicalName").String(), ",") {
		switch {
		case name == "":
		case broken[name]:
			cmd.NewlyBroken = append(cmd.NewlyBroken, name)
		default:
			cmd.NewlyFixed = append(cmd.NewlyFixed, name)
		}
	}
	return []command.Command{cmd}
}

func (r *Router) typingUpdate(p gjson.Result) []command.Command {
	updates := p.Get("typingUpdates")
	if !updates.IsArray() {
		return nil
	}
	typers := make(map[chat.ConversationID][]string)
	for _, u := range updates.Array() {
		users := []string{}
		for _, t := range u.Get("typers").Array() {
			users = append(users, t.Get("username").String())
		}
		typers[chat.ConversationID(u.Get("convID").String())] = users
	}
	return []command.Command{command.UpdateTypers{Typers: typers}}
}

func (r *Router) threadsStale(p gjson.Result) []command.Command {
	var ids []chat.ConversationID
	for _, u := range p.Get("updates").Array() {
		if u.Get("updateType").String() == "clear" {
			ids = append(ids, chat.ConversationID(u.Get("convID").String()))
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return []command.Command{command.MarkConversationsStale{IDs: ids}}
}

// nested parses r when an object arrived encoded as a JSON string.
func nested(r gjson.Result) gjson.Result {
	if r.Type == gjson.String {
		return gjson.Parse(r.String())
	}
	return r
}
