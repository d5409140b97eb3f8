package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestUnverifiedItemToMeta(t *testing.T) {
	item := gjson.Parse(`{"convID":"c1","name":"alice,bob","teamType":"adhoc","time":1700,"status":"muted"}`)
	m, err := UnverifiedItemToMeta(item, "alice")
	require.NoError(t, err)
	assert.Equal(t, ConversationID("c1"), m.ID)
	assert.Equal(t, Untrusted, m.TrustState)
	assert.Equal(t, []string{"alice", "bob"}, m.Participants)
	assert.True(t, m.IsMuted)
	assert.Equal(t, int64(1700), m.Timestamp)
	assert.Empty(t, m.TeamName)
}

func TestUnverifiedItemToMetaTeam(t *testing.T) {
	item := gjson.Parse(`{"convID":"c2","name":"acme","teamType":"big","channel":"general"}`)
	m, err := UnverifiedItemToMeta(item, "alice")
	require.NoError(t, err)
	assert.Equal(t, TeamBig, m.TeamType)
	assert.Equal(t, "acme", m.TeamName)
	assert.Equal(t, "general", m.ChannelName)
	assert.Empty(t, m.Participants)
}

func TestUnverifiedItemToMetaMalformed(t *testing.T) {
	for _, raw := range []string{`[]`, `{"name":"x"}`, `"str"`} {
		_, err := UnverifiedItemToMeta(gjson.Parse(raw), "alice")
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestInboxItemToMeta(t *testing.T) {
	item := gjson.Parse(`{
		"convID":"c1","name":"alice,bob","teamType":"adhoc",
		"participants":["alice","bob"],"snippet":"hi",
		"fullNames":{"bob":"Bob B"},
		"canPerform":{"deleteHistory":true},
		"notifications":{"desktop":{"atmention":true,"generic":false},"mobile":{"atmention":true,"generic":true},"channelWide":true}
	}`)
	m, err := InboxItemToMeta(item)
	require.NoError(t, err)
	assert.Equal(t, Trusted, m.TrustState)
	assert.Equal(t, "hi", m.Snippet)
	assert.Equal(t, "Bob B", m.FullNames["bob"])
	assert.True(t, m.CanPerform["deleteHistory"])
	assert.Equal(t, NotificationSettings{
		DesktopAtMention: true,
		MobileAtMention:  true,
		MobileAny:        true,
		IgnoreMentions:   true,
	}, m.Notifications)
}

func TestInboxItemToMetaEmpty(t *testing.T) {
	_, err := InboxItemToMeta(gjson.Parse(`{"convID":"c1","isEmpty":true}`))
	assert.ErrorIs(t, err, ErrNotVisible)
}

func TestUIMessageToMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Message
		wantErr error
	}{
		{
			name: "text",
			raw:  `{"state":"valid","valid":{"messageID":12,"messageType":"text","sender":"bob","senderDevice":"phone","ctime":5,"outboxID":"ob1","body":{"text":"hello"}}}`,
			want: Message{Conversation: "c1", Ordinal: CommittedOrdinal(12), ID: 12, OutboxID: "ob1", Type: MessageText, SendState: SendSent, Author: "bob", Device: "phone", Timestamp: 5, Text: "hello"},
		},
		{
			name: "attachment",
			raw:  `{"state":"valid","valid":{"messageID":13,"messageType":"attachment","sender":"bob","body":{"attachment":{"filename":"a.png","size":42,"title":"pic","mimeType":"image/png"}}}}`,
			want: Message{Conversation: "c1", Ordinal: CommittedOrdinal(13), ID: 13, Type: MessageAttachment, SendState: SendSent, Author: "bob",
				Attachment: &Attachment{FileName: "a.png", FileSize: 42, Title: "pic", MimeType: "image/png"}},
		},
		{
			name: "outbox pending",
			raw:  `{"state":"outbox","outbox":{"outboxID":"ob2","body":"draft","ctime":9}}`,
			want: Message{Conversation: "c1", OutboxID: "ob2", Type: MessageText, SendState: SendPending, Author: "me", Device: "laptop", Timestamp: 9, Text: "draft"},
		},
		{
			name: "outbox failed",
			raw:  `{"state":"outbox","outbox":{"outboxID":"ob3","body":"x","state":"error","error":"boom"}}`,
			want: Message{Conversation: "c1", OutboxID: "ob3", Type: MessageText, SendState: SendFailed, Author: "me", Device: "laptop", Text: "x", ErrorReason: "boom"},
		},
		{
			name: "error",
			raw:  `{"state":"error","error":{"messageID":14,"errMsg":"cannot decrypt"}}`,
			want: Message{Conversation: "c1", Ordinal: CommittedOrdinal(14), ID: 14, Type: MessageError, SendState: SendSent, ErrorReason: "cannot decrypt"},
		},
		{name: "edit hidden", raw: `{"state":"valid","valid":{"messageID":15,"messageType":"edit"}}`, wantErr: ErrNotVisible},
		{name: "placeholder", raw: `{"state":"placeholder"}`, wantErr: ErrNotVisible},
		{name: "no id", raw: `{"state":"valid","valid":{"messageType":"text"}}`, wantErr: ErrMalformed},
		{name: "unknown type", raw: `{"state":"valid","valid":{"messageID":1,"messageType":"sticker"}}`, wantErr: ErrMalformed},
		{name: "unknown state", raw: `{"state":"weird"}`, wantErr: ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UIMessageToMessage("c1", gjson.Parse(tt.raw), "me", "laptop")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEditAndDeleteTargets(t *testing.T) {
	id, body, ok := EditTarget(gjson.Parse(`{"state":"valid","valid":{"messageID":20,"messageType":"edit","body":{"edit":{"messageID":12,"body":"fixed"}}}}`))
	require.True(t, ok)
	assert.Equal(t, MessageID(12), id)
	assert.Equal(t, "fixed", body)

	_, _, ok = EditTarget(gjson.Parse(`{"state":"valid","valid":{"messageID":20,"messageType":"text"}}`))
	assert.False(t, ok)

	ids, ok := DeleteTargets(gjson.Parse(`{"state":"valid","valid":{"messageID":21,"messageType":"delete","body":{"delete":{"messageIDs":[12,13]}}}}`))
	require.True(t, ok)
	assert.Equal(t, []MessageID{12, 13}, ids)
}

func TestUploadedAttachment(t *testing.T) {
	raw := `{"state":"valid","valid":{"messageID":31,"messageType":"attachmentuploaded","sender":"me","outboxID":"ob9",
		"body":{"attachmentuploaded":{"messageID":30,"object":{"filename":"cat.png","size":7,"mimeType":"image/png"}}}}}`
	placeholder, m, err := UploadedAttachment("c1", gjson.Parse(raw))
	require.NoError(t, err)
	assert.Equal(t, MessageID(30), placeholder)
	assert.Equal(t, CommittedOrdinal(31), m.Ordinal)
	assert.Equal(t, OutboxID("ob9"), m.OutboxID)
	assert.Equal(t, "cat.png", m.Attachment.FileName)

	_, _, err = UploadedAttachment("c1", gjson.Parse(`{"state":"valid","valid":{"messageID":31,"messageType":"text"}}`))
	assert.ErrorIs(t, err, ErrMalformed)
}
