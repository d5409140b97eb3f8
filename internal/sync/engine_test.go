package sync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEngineIngestMessage(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	msg := chat.Message{
		Conversation: "c1", ID: 10, Ordinal: chat.CommittedOrdinal(10),
		Type: chat.MessageText, SendState: chat.SendSent, Author: "bob", Text: "hello", Timestamp: 1000,
	}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Text = "v2"
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent)", len(msgs))
	}
	if msgs[0].Body != "v2" || msgs[0].Sender != "bob" {
		t.Errorf("got %+v, want body v2 from bob", msgs[0])
	}
}

func TestEngineSkipsPendingMessages(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	if err := e.IngestMessage(chat.Message{Conversation: "c1", OutboxID: "ob1", SendState: chat.SendPending, Text: "draft"}); err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListMessages("c1", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0 (pending is not persisted)", len(msgs))
	}
}

func TestEngineAcksOutbox(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	if err := db.QueueOutbox(&store.OutboxRecord{OutboxID: "ob1", ConversationID: "c1", Kind: "send", Body: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := e.IngestMessage(chat.Message{Conversation: "c1", ID: 11, OutboxID: "ob1", Type: chat.MessageText, SendState: chat.SendSent, Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	rec, err := db.GetOutbox("ob1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "acked" || rec.MsgID != 11 {
		t.Errorf("got %+v, want acked with msg 11", rec)
	}
}

func TestEngineDeletesTombstones(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	msg := chat.Message{Conversation: "c1", ID: 5, Type: chat.MessageText, SendState: chat.SendSent, Text: "oops"}
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.SendState = chat.SendDeleted
	if err := e.IngestMessage(msg); err != nil {
		t.Fatal(err)
	}
	msgs, _ := db.ListMessages("c1", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0 after delete", len(msgs))
	}
}

func TestEngineCachedMetasAreUntrusted(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)

	if err := e.IngestMeta(chat.Meta{ID: "t1", TrustState: chat.Trusted, TeamType: chat.TeamBig, TLFName: "acme", ChannelName: "general", Timestamp: 50}); err != nil {
		t.Fatal(err)
	}
	metas, err := e.CachedMetas(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 1 {
		t.Fatalf("got %d metas, want 1", len(metas))
	}
	m := metas[0]
	if m.TrustState != chat.Untrusted || m.TeamName != "acme" || m.ChannelName != "general" {
		t.Errorf("got %+v", m)
	}
}

// TestEngineBusSubscription verifies the engine persists what the cache
// publishes on the bus.
func TestEngineBusSubscription(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	e := NewEngine(db, b, logger)

	e.Start(context.Background())
	defer e.Stop()

	c := cache.New("me", "laptop", b, nil)
	c.UpsertMetas([]chat.Meta{{ID: "c1", TrustState: chat.Untrusted, TLFName: "me,bob", Timestamp: 10}})
	c.AddMessages("c1", []chat.Message{
		{ID: 1, Ordinal: chat.CommittedOrdinal(1), Type: chat.MessageText, SendState: chat.SendSent, Text: "from bus"},
	})
	b.Emit(bus.InboxSynced, command.SyncResult{Type: command.SyncCurrent})

	// Give the engine time to process.
	time.Sleep(100 * time.Millisecond)

	conv, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if conv == nil || conv.TLFName != "me,bob" {
		t.Fatalf("got %v, want persisted c1", conv)
	}
	msgs, err := db.ListMessages("c1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Body != "from bus" {
		t.Fatalf("got %+v, want 1 message from bus", msgs)
	}
	kind, at, ok := e.LastSync()
	if !ok || kind != "current" || at.IsZero() {
		t.Errorf("last sync = %q %v %v", kind, at, ok)
	}

	c.RemoveMeta("c1")
	time.Sleep(100 * time.Millisecond)
	conv, _ = db.GetConversation("c1")
	if conv != nil {
		t.Error("conversation should be forgotten after removal")
	}
}
