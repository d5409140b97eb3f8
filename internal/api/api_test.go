package api

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/core"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/rpc/rpctest"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type recorder struct {
	mu   sync.Mutex
	cmds []command.Command
	// forward, when set, also receives every command.
	forward command.Dispatcher
}

func (r *recorder) Dispatch(cmds ...command.Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmds...)
	if r.forward != nil {
		r.forward.Dispatch(cmds...)
	}
}

func (r *recorder) all() []command.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]command.Command(nil), r.cmds...)
}

type fixture struct {
	bus     *bus.Bus
	cache   *cache.Cache
	db      *store.DB
	machine *status.Machine
	rec     *recorder
	client  *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{bus: bus.New(), rec: &recorder{}}
	f.cache = cache.New("me", "laptop", f.bus, nil)
	f.machine = status.NewMachine(f.bus)

	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	f.db = db

	svc := NewCommandService("test", f.rec, f.cache, db, f.machine, f.bus, nil)
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	f.client = NewClient(conn)
	return f
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDispatchDecodesCommand(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	require.NoError(t, f.client.Dispatch(ctx, "MessageEdit", Fields{
		"conversation_id": "c1",
		"ordinal":         "9.1",
		"text":            "fixed",
	}))
	assert.Equal(t, []command.Command{
		command.MessageEdit{ID: "c1", Ordinal: chat.Ordinal{Base: 9, Seq: 1}, Text: "fixed"},
	}, f.rec.all())
}

func TestMetaNeedsUpdatingUnboxesInOneBatch(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	f.cache.UpsertMetas([]chat.Meta{
		{ID: "c1", TrustState: chat.Untrusted},
		{ID: "c2", TrustState: chat.Trusted},
		{ID: "c3", TrustState: chat.Untrusted},
	})
	gw := rpctest.New()
	co := core.New(core.Options{Gateway: gw, Cache: f.cache, Bus: f.bus, DB: f.db})
	f.rec.mu.Lock()
	f.rec.forward = co
	f.rec.mu.Unlock()

	require.NoError(t, f.client.Dispatch(ctx, "MetaNeedsUpdating", Fields{
		"conversation_ids": []string{"c1", "c2", "c3"},
	}))
	co.Flush()

	calls := gw.Calls(rpc.MethodGetInbox)
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, []string{"c1", "c3"}, calls[0].Params["query"].(map[string]any)["convIDs"])
}

func TestDispatchRejectsBadCommands(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)

	err := f.client.Dispatch(ctx, "MessagesAdd", nil)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	err = f.client.Dispatch(ctx, "MessageDelete", Fields{"conversation_id": "c1"})
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, grpcstatus.Code(err))

	assert.Empty(t, f.rec.all())
}

func TestListConversationsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	f.cache.UpsertMetas([]chat.Meta{
		{ID: "old", TrustState: chat.Trusted, TLFName: "bob,me", Participants: []string{"bob", "me"}, Timestamp: 10},
		{ID: "new", TrustState: chat.Untrusted, TLFName: "carol,me", Participants: []string{"carol", "me"}, Timestamp: 20, IsMuted: true},
	})
	f.cache.Select("old")

	list, err := f.client.ListConversations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list.Conversations, 2)
	assert.Equal(t, "new", list.Conversations[0].ID)
	assert.True(t, list.Conversations[0].Muted)
	assert.Equal(t, "old", list.Conversations[1].ID)
	assert.Equal(t, "trusted", list.Conversations[1].TrustState)
	assert.Equal(t, "old", list.Selected)

	list, err = f.client.ListConversations(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list.Conversations, 1)
}

func TestListMessagesKeepsPendingOrdinals(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	f.cache.AddMessages("c1", []chat.Message{
		{ID: 9, Type: chat.MessageText, SendState: chat.SendSent, Author: "bob", Text: "hi"},
		{OutboxID: "o1", Type: chat.MessageText, SendState: chat.SendPending, Author: "me", Text: "hey"},
	})

	msgs, err := f.client.ListMessages(ctx, "c1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.CommittedOrdinal(9), msgs[0].Ordinal)
	assert.Equal(t, uint64(9), msgs[0].ID)
	assert.Equal(t, chat.Ordinal{Base: 9, Seq: 1}, msgs[1].Ordinal)
	assert.Equal(t, "pending", msgs[1].SendState)
	assert.Equal(t, "o1", msgs[1].OutboxID)

	msgs, err = f.client.ListMessages(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hey", msgs[0].Text)
}

func TestSearchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	require.NoError(t, f.db.UpsertMessage(&store.Message{
		ConversationID: "c1", MsgID: 4, Sender: "bob", Body: "lunch tomorrow?", MessageType: "text", Timestamp: 100,
	}))

	hits, err := f.client.SearchMessages(ctx, "lunch", "", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ConversationID)
	assert.Equal(t, uint64(4), hits[0].ID)
	assert.Contains(t, hits[0].Snippet, "lunch")
}

func TestStatusReportsMachineState(t *testing.T) {
	f := newFixture(t)
	ctx := testContext(t)
	require.True(t, f.machine.Advance(status.Connecting, status.Syncing))
	f.cache.SetLoading(cache.LoadingThreadKey("c1"), true)

	st, err := f.client.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", st.Session)
	assert.Equal(t, "SYNCING", st.Status)
	assert.Equal(t, []string{cache.LoadingThreadKey("c1")}, st.Loading)
	assert.Zero(t, st.DroppedEvents)
}

func TestWatchEventsStreamsBus(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan Event, 1)
	done := make(chan error, 1)
	go func() {
		done <- f.client.WatchEvents(ctx, "meta.", func(evt Event) error {
			select {
			case got <- evt:
			default:
			}
			return nil
		})
	}()

	// The subscription is registered asynchronously; keep emitting until the
	// first event arrives.
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	var evt Event
wait:
	for {
		select {
		case evt = <-got:
			break wait
		case <-ticker.C:
			f.bus.Emit(bus.MetaReceived, cache.MetaChange{Meta: chat.Meta{ID: "c1", TrustState: chat.Trusted}})
			f.bus.Emit(bus.MessageAdded, cache.MessageChange{})
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}

	assert.Equal(t, bus.MetaReceived, evt.Kind)
	assert.Equal(t, "test", evt.Session)
	assert.NotEmpty(t, evt.ID)
	var conv Conversation
	require.NoError(t, json.Unmarshal(evt.Payload, &conv))
	assert.Equal(t, "c1", conv.ID)

	cancel()
	assert.NoError(t, <-done)
}

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  command.Command
	}{
		{"refresh", `{"type":"InboxRefresh"}`, command.InboxRefresh{Reason: command.RefreshUser}},
		{"select defaults to user", `{"type":"SelectConversation","conversation_id":"c1"}`, command.SelectConversation{ID: "c1", FromUser: true}},
		{"select programmatic", `{"type":"SelectConversation","conversation_id":"c1","from_user":false}`, command.SelectConversation{ID: "c1"}},
		{"send pending", `{"type":"MessageSend","text":"hi"}`, command.MessageSend{Text: "hi"}},
		{"start", `{"type":"StartConversation","participants":["bob",""]}`, command.StartConversation{Participants: []string{"bob"}}},
		{"upload", `{"type":"AttachmentUpload","path":"/tmp/a.png"}`, command.AttachmentUpload{Path: "/tmp/a.png"}},
		{"preview", `{"type":"AttachmentLoad","conversation_id":"c1","ordinal":"7","preview":true}`, command.AttachmentLoad{ID: "c1", Ordinal: chat.CommittedOrdinal(7), IsPreview: true}},
		{"visible untrusted", `{"type":"MetaNeedsUpdating","conversation_ids":["c2","","c3"]}`,
			command.MetaNeedsUpdating{IDs: []chat.ConversationID{"c2", "c3"}}},
		{"clear editing", `{"type":"MessageSetEditing","conversation_id":"c1"}`, command.MessageSetEditing{ID: "c1"}},
		{"settings", `{"type":"UpdateNotificationSettings","conversation_id":"c1","settings":{"desktop_any":true,"ignore_mentions":true}}`,
			command.UpdateNotificationSettings{ID: "c1", Settings: chat.NotificationSettings{DesktopAny: true, IgnoreMentions: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand(gjson.Parse(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCommandErrors(t *testing.T) {
	_, err := DecodeCommand(gjson.Parse(`{"type":"MetaHandleQueue"}`))
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = DecodeCommand(gjson.Parse(`{"type":"MuteConversation"}`))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = DecodeCommand(gjson.Parse(`{"type":"MetaNeedsUpdating","conversation_ids":[]}`))
	assert.ErrorIs(t, err, ErrMissingField)

	_, err = DecodeCommand(gjson.Parse(`{"type":"MessageDelete","conversation_id":"c1","ordinal":"1.0"}`))
	assert.Error(t, err)
}
