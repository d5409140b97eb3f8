package activity

import (
	"testing"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type me struct{}

func (me) Me() (string, string) { return "me", "laptop" }

func route(r *Router, name, payload string) []command.Command {
	return r.Route(rpc.Notification{Name: name, Payload: gjson.Parse(payload)})
}

const convItem = `{"convID":"c1","name":"bob,me","teamType":"adhoc","participants":["bob","me"],"time":5,"snippet":"bob: hey"}`

func TestIncomingMessageAddsAndNotifies(t *testing.T) {
	r := NewRouter(me{}, false, nil)
	cmds := route(r, rpc.NotifyNewChatActivity, `{"activity":{"activityType":"incomingMessage","incomingMessage":{
		"convID":"c1","displayDesktopNotification":true,"conv":`+convItem+`,
		"message":{"state":"valid","valid":{"messageID":7,"messageType":"text","sender":"bob","body":{"text":"hey"}}}}}}`)

	require.Len(t, cmds, 3)
	add, ok := cmds[0].(command.MessagesAdd)
	require.True(t, ok)
	assert.Equal(t, command.AddIncoming, add.Context)
	require.Len(t, add.Messages, 1)
	assert.Equal(t, "hey", add.Messages[0].Text)
	assert.Equal(t, command.DesktopNotification{ID: "c1", Author: "bob", Body: "bob: hey"}, cmds[1])
	metas, ok := cmds[2].(command.MetasReceived)
	require.True(t, ok)
	assert.Equal(t, chat.Trusted, metas.Metas[0].TrustState)
}

func TestIncomingMessageConstrainedSkipsNotification(t *testing.T) {
	r := NewRouter(me{}, true, nil)
	cmds := route(r, rpc.NotifyNewChatActivity, `{"activity":{"activityType":"incomingMessage","incomingMessage":{
		"convID":"c1","displayDesktopNotification":true,"conv":`+convItem+`,
		"message":{"state":"valid","valid":{"messageID":7,"messageType":"text","sender":"bob","body":{"text":"hey"}}}}}}`)
	for _, c := range cmds {
		assert.NotEqual(t, "DesktopNotification", command.Name(c))
	}
	assert.Len(t, cmds, 2)
}

func TestIncomingMutations(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    command.Command
	}{
		{
			"edit",
			`{"state":"valid","valid":{"messageID":9,"messageType":"edit","body":{"edit":{"messageID":7,"body":"fixed"}}}}`,
			command.MessageWasEdited{ID: "c1", Msg: 7, Text: "fixed"},
		},
		{
			"delete",
			`{"state":"valid","valid":{"messageID":9,"messageType":"delete","body":{"delete":{"messageIDs":[7,8]}}}}`,
			command.MessagesWereDeleted{ID: "c1", Msgs: []chat.MessageID{7, 8}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(me{}, false, nil)
			cmds := route(r, rpc.NotifyNewChatActivity, `{"activity":{"activityType":"incomingMessage",
				"incomingMessage":{"convID":"c1","message":`+tt.message+`}}}`)
			assert.Equal(t, []command.Command{tt.want}, cmds)
		})
	}
}

func TestIncomingUploadedAttachment(t *testing.T) {
	r := NewRouter(me{}, false, nil)
	cmds := route(r, rpc.NotifyNewChatActivity, `{"activity":{"activityType":"incomingMessage","incomingMessage":{
		"convID":"c1","message":{"state":"valid","valid":{"messageID":12,"messageType":"attachmentuploaded","sender":"me",
		"body":{"attachmentuploaded":{"messageID":11,"object":{"filename":"cat.png","size":4}}}}}}}}`)

	require.Len(t, cmds, 1)
	up, ok := cmds[0].(command.MessageAttachmentUploaded)
	require.True(t, ok)
	assert.Equal(t, chat.MessageID(11), up.PlaceholderID)
	assert.Equal(t, chat.MessageID(12), up.Message.ID)
	assert.Equal(t, "cat.png", up.Message.Attachment.FileName)
}

func TestFailedMessageFlagsIdentity(t *testing.T) {
	r := NewRouter(me{}, false, nil)
	cmds := route(r, rpc.NotifyNewChatActivity, `{"activity":{"activityType":"failedMessage","failedMessage":{"outboxRecords":[
		{"convID":"c1","outboxID":"ob1","state":{"state":"error","error":{"typ":"identify","message":"cannot verify \"mallory\""}}},
		{"convID":"c1","outboxID":"ob2","state":{"state":"sending"}},
		{"convID":"c2","outboxID":"ob3","state":{"state":"error","error":{"typ":"misc","message":"boom"}}}]}}}`)

	assert.Equal(t, []command.Command{
		command.MessageErrored{ID: "c1", OutboxID: "ob1", Reason: `cannot verify "mallory"`},
		command.UpdateBrokenState{NewlyBroken: []string{"mallory"}},
		command.MessageErrored{ID: "c2", OutboxID: "ob3", Reason: "boom"},
	}, cmds)
}

func TestActivityTable(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []command.Command
	}{
		{"members update", `{"activityType":"membersUpdate","membersUpdate":{"convID":"c1"}}`,
			[]command.Command{command.MetaRequestTrusted{IDs: []chat.ConversationID{"c1"}, Force: true}}},
		{"team type", `{"activityType":"teamtype"}`,
			[]command.Command{command.InboxRefresh{Reason: command.RefreshTeamTypeChanged}}},
		{"settings", `{"activityType":"setAppNotificationSettings","setAppNotificationSettings":{"convID":"c1","settings":{"desktop":{"generic":true},"channelWide":true}}}`,
			[]command.Command{command.NotificationSettingsUpdated{ID: "c1", Settings: chat.NotificationSettings{DesktopAny: true, IgnoreMentions: true}}}},
		{"set status without conv", `{"activityType":"setStatus","setStatus":{}}`, nil},
		{"unknown", `{"activityType":"reactionUpdate","reactionUpdate":{}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(me{}, false, nil)
			assert.Equal(t, tt.want, route(r, rpc.NotifyNewChatActivity, `{"activity":`+tt.payload+`}`))
		})
	}
}

func TestSetStatusMetas(t *testing.T) {
	r := NewRouter(me{}, false, nil)
	cmds := route(r, rpc.NotifyNewChatActivity, `{"activity":{"activityType":"setStatus","setStatus":{"conv":`+convItem+`}}}`)
	require.Len(t, cmds, 1)
	metas := cmds[0].(command.MetasReceived).Metas
	assert.Equal(t, chat.ConversationID("c1"), metas[0].ID)
	assert.Equal(t, "bob: hey", metas[0].Snippet)
}

func TestNotificationTable(t *testing.T) {
	tests := []struct {
		name    string
		notify  string
		payload string
		want    []command.Command
	}{
		{"tlf finalize", rpc.NotifyTLFFinalize, `{"convID":"c1"}`,
			[]command.Command{command.MetaRequestTrusted{IDs: []chat.ConversationID{"c1"}}}},
		{"sync started", rpc.NotifyInboxSyncStarted, `{}`,
			[]command.Command{command.InboxSyncStarted{}}},
		{"stale", rpc.NotifyInboxStale, `{}`,
			[]command.Command{command.InboxRefresh{Reason: command.RefreshInboxStale}}},
		{"joined", rpc.NotifyJoinedConversation, `{}`,
			[]command.Command{command.InboxRefresh{Reason: command.RefreshJoinedConversation}}},
		{"left", rpc.NotifyLeftConversation, `{}`,
			[]command.Command{command.InboxRefresh{Reason: command.RefreshLeftConversation}}},
		{"identify", rpc.NotifyIdentifyUpdate, `{"update":{"CanonicalName":"alice,bob","breaks":{"breaks":[{"user":{"username":"bob"}}]}}}`,
			[]command.Command{command.UpdateBrokenState{NewlyBroken: []string{"bob"}, NewlyFixed: []string{"alice"}}}},
		{"typing", rpc.NotifyTypingUpdate, `{"typingUpdates":[{"convID":"c1","typers":[{"username":"bob"}]},{"convID":"c2"}]}`,
			[]command.Command{command.UpdateTypers{Typers: map[chat.ConversationID][]string{"c1": {"bob"}, "c2": {}}}}},
		{"typing without updates", rpc.NotifyTypingUpdate, `{}`, nil},
		{"threads stale", rpc.NotifyThreadsStale, `{"updates":[{"convID":"c1","updateType":"clear"},{"convID":"c2","updateType":"newactivity"}]}`,
			[]command.Command{command.MarkConversationsStale{IDs: []chat.ConversationID{"c1"}}}},
		{"threads stale nothing cleared", rpc.NotifyThreadsStale, `{"updates":[{"convID":"c2","updateType":"newactivity"}]}`, nil},
		{"unknown", "chat.1.NotifyChat.Whatever", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(me{}, false, nil)
			assert.Equal(t, tt.want, route(r, tt.notify, tt.payload))
		})
	}
}

func TestInboxSyncedIncremental(t *testing.T) {
	r := NewRouter(me{}, false, nil)
	cmds := route(r, rpc.NotifyInboxSynced, `{"syncRes":{"syncType":"incremental","incremental":{"items":[
		{"convID":"c1","name":"bob,me","time":3},{"convID":"c2","name":"x","teamType":"big"}]}}}`)

	require.Len(t, cmds, 1)
	sync := cmds[0].(command.InboxSynced).Sync
	assert.Equal(t, command.SyncIncremental, sync.Type)
	assert.Equal(t, []chat.ConversationID{"c1", "c2"}, sync.IDs)
	require.Len(t, sync.Items, 2)
	assert.Equal(t, chat.Untrusted, sync.Items[0].TrustState)
	assert.Equal(t, []string{"bob", "me"}, sync.Items[0].Participants)

	cmds = route(r, rpc.NotifyInboxSynced, `{"syncRes":{"syncType":"clear"}}`)
	assert.Equal(t, []command.Command{command.InboxSynced{Sync: command.SyncResult{Type: command.SyncClear}}}, cmds)
}
