package readmark

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/rpc/rpctest"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newViewing(t *testing.T) (*rpctest.Gateway, *cache.Cache) {
	t.Helper()
	c := cache.New("me", "laptop", bus.New(), nil)
	c.UpsertMetas([]chat.Meta{{ID: "c1", TrustState: chat.Trusted}})
	c.Select("c1")
	c.SetFocus(true)
	return rpctest.New(), c
}

func TestMarkReadOnlyMovesForward(t *testing.T) {
	gw, c := newViewing(t)
	db := testDB(t)
	m := New(gw, c, db, nil)
	ctx := context.Background()

	sent, err := m.MarkRead(ctx, "c1", 10)
	require.NoError(t, err)
	assert.True(t, sent)

	for _, id := range []chat.MessageID{10, 9} {
		sent, err = m.MarkRead(ctx, "c1", id)
		require.NoError(t, err)
		assert.False(t, sent, "id %d", id)
	}

	sent, err = m.MarkRead(ctx, "c1", 12)
	require.NoError(t, err)
	assert.True(t, sent)

	calls := gw.Calls(rpc.MethodMarkAsRead)
	require.Len(t, calls, 2)
	assert.Equal(t, "c1", calls[0].Params["conversationID"])
	assert.Equal(t, uint64(12), calls[1].Params["msgID"])

	stored, err := db.ReadMarker("c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(12), stored)
}

func TestMarkReadGates(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*cache.Cache)
		conv  chat.ConversationID
	}{
		{"not selected", func(c *cache.Cache) { c.Select("c2") }, "c1"},
		{"unfocused", func(c *cache.Cache) { c.SetFocus(false) }, "c1"},
		{"no metadata", func(c *cache.Cache) { c.Select("ghost") }, "ghost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw, c := newViewing(t)
			tt.setup(c)
			m := New(gw, c, nil, nil)

			sent, err := m.MarkRead(context.Background(), tt.conv, 5)
			require.NoError(t, err)
			assert.False(t, sent)
			assert.Empty(t, gw.Calls())
			assert.Zero(t, m.LastSent(tt.conv))
		})
	}
}

func TestCandidateSkipsPendingMessages(t *testing.T) {
	gw, c := newViewing(t)
	c.AddMessages("c1", []chat.Message{
		{ID: 4, Type: chat.MessageText},
		{OutboxID: "ob1", Type: chat.MessageText, SendState: chat.SendPending},
	})
	m := New(gw, c, nil, nil)
	assert.Equal(t, chat.MessageID(4), m.Candidate("c1"))
	assert.Zero(t, m.Candidate("c2"))
}

func TestHydrateRestoresWatermarks(t *testing.T) {
	gw, c := newViewing(t)
	db := testDB(t)
	require.NoError(t, db.MarkRead("c1", 20))

	m := New(gw, c, db, nil)
	require.NoError(t, m.Hydrate())
	assert.Equal(t, chat.MessageID(20), m.LastSent("c1"))

	sent, err := m.MarkRead(context.Background(), "c1", 20)
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestMarkReadFailureKeepsWatermark(t *testing.T) {
	gw, c := newViewing(t)
	gw.Reply(rpc.MethodMarkAsRead, rpctest.Reply{Err: errors.New("offline")})
	m := New(gw, c, nil, nil)

	sent, err := m.MarkRead(context.Background(), "c1", 3)
	require.Error(t, err)
	assert.True(t, sent)
	assert.Equal(t, chat.MessageID(3), m.LastSent("c1"))
}
