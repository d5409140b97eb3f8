package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/matheus3301/chatsync/internal/attachment"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/thread"
	"go.uber.org/zap"
)

func (c *Coordinator) handle(cmd command.Command) {
	switch cmd := cmd.(type) {
	// Inbox and metadata.
	case command.InboxRefresh:
		c.spawn("inbox refresh", func(ctx context.Context) error {
			return c.inbox.Refresh(ctx, cmd.Reason)
		})
	case command.InboxSyncStarted:
		c.inbox.SyncStarted()
	case command.InboxSynced:
		c.Dispatch(c.inbox.Synced(cmd.Sync)...)
	case command.MetasReceived:
		c.Dispatch(c.inbox.Receive(cmd.Metas)...)
	case command.MetaNeedsUpdating:
		if c.metas.Enqueue(cmd.IDs) {
			c.Dispatch(command.MetaHandleQueue{})
		}
	case command.MetaHandleQueue:
		c.metas.Drain(c.ctx)
	case command.MetaRequestTrusted:
		c.spawn("unbox", func(ctx context.Context) error {
			return c.unboxer.RequestTrusted(ctx, cmd.IDs, cmd.Force)
		})
	case command.MarkConversationsStale:
		if sel := c.cache.Selected(); sel != "" && slices.Contains(cmd.IDs, sel) {
			c.loadThread(sel, thread.TriggerStale, true)
		}

	// Selection and thread loading.
	case command.SelectConversation:
		c.selectConversation(cmd)
	case command.LoadNewContent:
		c.loadThread(cmd.ID, thread.TriggerSelect, true)
	case command.LoadMoreMessages:
		c.loadThread(cmd.ID, thread.TriggerLoadMore, false)
	case command.SetAppFocus:
		c.cache.SetFocus(cmd.Focused)
		if sel := c.cache.Selected(); cmd.Focused && sel != "" {
			c.Dispatch(command.MarkThreadRead{ID: sel})
		}
	case command.SetPendingConversationUsers:
		c.setPendingUsers(cmd.Users, cmd.FromUser)
	case command.StartConversation:
		c.setPendingUsers(cmd.Participants, true)

	// Messages from the backend.
	case command.MessagesAdd:
		c.messagesAdd(cmd)
	case command.MessageWasEdited:
		c.cache.EditMessage(cmd.ID, cmd.Msg, cmd.Text)
	case command.MessagesWereDeleted:
		c.cache.MarkDeleted(cmd.ID, cmd.Msgs)
		c.cache.RemoveMessages(cmd.ID, cmd.Ordinals)
	case command.MessageAttachmentUploaded:
		c.cache.ReplacePlaceholder(cmd.ID, cmd.PlaceholderID, cmd.Message)
	case command.MessageErrored:
		c.outbox.Failed(cmd.ID, cmd.OutboxID, cmd.Reason)
	case command.UpdateBrokenState:
		c.cache.UpdateBroken(cmd.NewlyBroken, cmd.NewlyFixed)
	case command.UpdateTypers:
		c.cache.SetTypers(cmd.Typers)
	case command.NotificationSettingsUpdated:
		c.cache.UpdateMeta(cmd.ID, func(m *chat.Meta) { m.Notifications = cmd.Settings })
	case command.DesktopNotification:
		c.desktopNotification(cmd)

	// Outbox.
	case command.MessageSend:
		c.serial(laneOutbox, "send", func(ctx context.Context) error {
			_, err := c.outbox.Send(ctx, cmd.ID, cmd.Text)
			return err
		})
	case command.MessageEdit:
		c.serial(laneOutbox, "edit", func(ctx context.Context) error {
			return c.outbox.Edit(ctx, cmd.ID, cmd.Ordinal, cmd.Text)
		})
	case command.MessageDelete:
		c.serial(laneOutbox, "delete", func(ctx context.Context) error {
			return c.outbox.Delete(ctx, cmd.ID, cmd.Ordinal)
		})
	case command.MessageRetry:
		c.serial(laneOutbox, "retry", func(ctx context.Context) error {
			return c.outbox.Retry(ctx, cmd.OutboxID)
		})
	case command.MessageDeleteHistory:
		c.serial(laneOutbox, "delete history", func(ctx context.Context) error {
			return c.outbox.DeleteHistoryUpTo(ctx, cmd.ID, cmd.Ordinal)
		})
	case command.MessageSetEditing:
		c.cache.SetEditing(cmd.ID, cmd.Ordinal)

	// Attachments.
	case command.AttachmentNeedsUpdating:
		c.downloads.Push(attachment.Item{Conversation: cmd.ID, Ordinal: cmd.Ordinal, Preview: cmd.IsPreview})
		c.Dispatch(command.AttachmentHandleQueue{})
	case command.AttachmentHandleQueue:
		c.downloads.Drain(c.ctx)
	case command.AttachmentLoad:
		c.spawn("attachment load", func(ctx context.Context) error {
			_, err := c.loader.Load(ctx, cmd.ID, cmd.Ordinal, cmd.IsPreview)
			return err
		})
	case command.AttachmentDownload:
		c.spawn("attachment save", func(ctx context.Context) error {
			_, err := c.loader.Save(ctx, cmd.ID, cmd.Ordinal)
			return err
		})
	case command.AttachmentUpload:
		c.upload(cmd)

	// Conversation management.
	case command.MarkThreadRead:
		c.markRead(cmd.ID)
	case command.SendTyping:
		c.call("typing", rpc.MethodUpdateTyping, rpc.Params{
			"conversationID": string(cmd.ID),
			"typing":         cmd.Typing,
		}, nil)
	case command.MuteConversation:
		st := "unfiled"
		if cmd.Muted {
			st = "muted"
		}
		c.call("mute", rpc.MethodSetConversationStatus, rpc.Params{
			"conversationID":   string(cmd.ID),
			"identifyBehavior": chat.IdentifyLenient,
			"status":           st,
		}, func() {
			c.cache.UpdateMeta(cmd.ID, func(m *chat.Meta) { m.IsMuted = cmd.Muted })
		})
	case command.UpdateNotificationSettings:
		c.call("notification settings", rpc.MethodSetAppNotificationSettings, notificationParams(cmd), func() {
			c.cache.UpdateMeta(cmd.ID, func(m *chat.Meta) { m.Notifications = cmd.Settings })
		})
	case command.JoinConversation:
		c.call("join", rpc.MethodJoinConversation, rpc.Params{"convID": string(cmd.ID)}, nil)
	case command.LeaveConversation:
		c.call("leave", rpc.MethodLeaveConversation, rpc.Params{"convID": string(cmd.ID)}, func() {
			c.cache.RemoveMeta(cmd.ID)
			c.Dispatch(command.InboxRefresh{Reason: command.RefreshLeftConversation})
		})

	default:
		c.logger.Warn("unhandled command", zap.String("command", command.Name(cmd)))
	}
}

// call issues a unary call as a task and runs done after it succeeds.
func (c *Coordinator) call(name, method string, params rpc.Params, done func()) {
	c.spawn(name, func(ctx context.Context) error {
		if _, err := c.gw.Call(ctx, method, params); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if done != nil {
			done()
		}
		return nil
	})
}

func (c *Coordinator) selectConversation(cmd command.SelectConversation) {
	c.cache.Select(cmd.ID)
	if cmd.ID == "" {
		return
	}
	if m, ok := c.cache.Meta(cmd.ID); ok && m.TrustState == chat.Untrusted {
		c.spawn("unbox selected", func(ctx context.Context) error {
			return c.unboxer.RequestTrusted(ctx, []chat.ConversationID{cmd.ID}, false)
		})
	}
	c.loadThread(cmd.ID, thread.TriggerSelect, cmd.FromUser)
}

// loadThread loads a page, then optionally marks the thread read and
// queues previews for attachments the page brought in.
func (c *Coordinator) loadThread(id chat.ConversationID, trigger thread.Trigger, markRead bool) {
	if id == "" {
		return
	}
	c.spawn("load thread", func(ctx context.Context) error {
		if err := c.threads.Load(ctx, id, trigger); err != nil {
			return err
		}
		c.Dispatch(c.previewsNeeded(id, c.cache.Messages(id))...)
		if markRead {
			c.Dispatch(command.MarkThreadRead{ID: id})
		}
		return nil
	})
}

// previewsNeeded lists preview downloads for committed attachments that
// have no preview and no transfer yet.
func (c *Coordinator) previewsNeeded(id chat.ConversationID, msgs []chat.Message) []command.Command {
	var cmds []command.Command
	for _, m := range msgs {
		if m.ID == 0 || m.Attachment == nil || m.Attachment.PreviewPath != "" {
			continue
		}
		if _, ok := c.cache.Transfer(id, m.Ordinal, chat.TransferPreview); ok {
			continue
		}
		cmds = append(cmds, command.AttachmentNeedsUpdating{ID: id, Ordinal: m.Ordinal, IsPreview: true})
	}
	return cmds
}

func (c *Coordinator) markRead(id chat.ConversationID) {
	if id == "" {
		id = c.cache.Selected()
	}
	if id == "" {
		return
	}
	c.spawn("mark read", func(ctx context.Context) error {
		_, err := c.reads.MarkRead(ctx, id, c.reads.Candidate(id))
		return err
	})
}

// setPendingUsers opens the existing conversation with exactly users and
// the local user, or enters compose mode for them.
func (c *Coordinator) setPendingUsers(users []string, fromUser bool) {
	me, _ := c.cache.Me()
	if len(users) == 0 {
		c.cache.SetPendingUsers(nil)
		return
	}
	all := chat.SortedUsers(append(slices.Clone(users), me))
	if id, ok := c.cache.FindByParticipants(all); ok {
		c.Dispatch(command.SelectConversation{ID: id, FromUser: fromUser})
		return
	}
	c.cache.SetPendingUsers(users)
}

func (c *Coordinator) messagesAdd(cmd command.MessagesAdd) {
	added := c.cache.AddMessages(cmd.ID, cmd.Messages)
	if cmd.ID != c.cache.Selected() {
		return
	}
	c.Dispatch(c.previewsNeeded(cmd.ID, added)...)
	if cmd.Context == command.AddIncoming {
		c.Dispatch(command.MarkThreadRead{ID: cmd.ID})
	}
}

func (c *Coordinator) desktopNotification(cmd command.DesktopNotification) {
	if c.constrained || c.cache.ActivelyViewing(cmd.ID) {
		return
	}
	if m, ok := c.cache.Meta(cmd.ID); ok && m.IsMuted {
		return
	}
	c.cache.Notify(cache.DesktopNotice{Conversation: cmd.ID, Author: cmd.Author, Body: cmd.Body})
}

func (c *Coordinator) upload(cmd command.AttachmentUpload) {
	id := cmd.ID
	if id == "" {
		id = c.cache.Selected()
	}
	if id == "" {
		c.logger.Warn("upload without a conversation", zap.String("path", cmd.Path))
		return
	}
	c.serial(laneUpload, "upload", func(ctx context.Context) error {
		_, err := c.uploads.Upload(ctx, id, cmd.Path, cmd.Title)
		return err
	})
}

func notificationParams(cmd command.UpdateNotificationSettings) rpc.Params {
	s := cmd.Settings
	setting := func(device, kind string, enabled bool) map[string]any {
		return map[string]any{"deviceType": device, "kind": kind, "enabled": enabled}
	}
	return rpc.Params{
		"convID":      string(cmd.ID),
		"channelWide": s.IgnoreMentions,
		"settings": []map[string]any{
			setting("desktop", "atmention", s.DesktopAtMention),
			setting("desktop", "generic", s.DesktopAny),
			setting("mobile", "atmention", s.MobileAtMention),
			setting("mobile", "generic", s.MobileAny),
		},
	}
}
