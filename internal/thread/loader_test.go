package thread

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/rpc/rpctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func page(raw string) rpc.ThreadPage {
	return rpc.ThreadPage{Messages: gjson.Parse(raw).Array()}
}

func messageIDControl(t *testing.T, call rpctest.Call) map[string]any {
	t.Helper()
	query, ok := call.Params["query"].(map[string]any)
	require.True(t, ok)
	ctl, ok := query["messageIDControl"].(map[string]any)
	require.True(t, ok)
	return ctl
}

func TestLoadColdStart(t *testing.T) {
	gw := rpctest.New()
	c := cache.New("me", "laptop", bus.New(), nil)
	gw.Reply(rpc.MethodGetThread, rpctest.Reply{Events: []rpc.Event{
		page(`[
			{"state":"valid","valid":{"messageID":10,"messageType":"text","sender":"bob","body":{"text":"hi"}}},
			{"state":"valid","valid":{"messageID":11,"messageType":"sticker"}},
			{"state":"placeholder"},
			{"state":"valid","valid":{"messageID":12,"messageType":"text","sender":"me"}}
		]`),
	}})

	l := NewLoader(gw, c, true, nil)
	require.NoError(t, l.Load(context.Background(), "c1", TriggerSelect))

	calls := gw.Calls(rpc.MethodGetThread)
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].Params["conversationID"])
	ctl := messageIDControl(t, calls[0])
	assert.Nil(t, ctl["pivot"])
	assert.Equal(t, false, ctl["recent"])
	assert.Equal(t, 20, ctl["num"])

	assert.Equal(t, []chat.Ordinal{{Base: 10}, {Base: 12}}, c.Ordinals("c1"))
	assert.True(t, c.HasLoadedThread("c1"))
	assert.False(t, c.Loading(cache.LoadingThreadKey("c1")))
}

func TestLoadSmallGapSendsFlooredPivot(t *testing.T) {
	gw := rpctest.New()
	c := cache.New("me", "laptop", bus.New(), nil)
	c.AddMessages("c1", []chat.Message{
		{ID: 100, Ordinal: chat.CommittedOrdinal(100), Type: chat.MessageText},
		{ID: 105, Ordinal: chat.CommittedOrdinal(105), Type: chat.MessageText},
	})
	c.SetLoadedThread("c1")

	l := NewLoader(gw, c, false, nil)
	require.NoError(t, l.Load(context.Background(), "c1", TriggerSelect))

	ctl := messageIDControl(t, gw.Calls(rpc.MethodGetThread)[0])
	assert.Equal(t, uint64(100), ctl["pivot"])
	assert.Equal(t, true, ctl["recent"])
	assert.Equal(t, 50, ctl["num"])
}

func TestLoadBigGapClearsOrdinals(t *testing.T) {
	gw := rpctest.New()
	c := cache.New("me", "laptop", bus.New(), nil)
	c.AddMessages("c1", []chat.Message{
		{ID: 100, Ordinal: chat.CommittedOrdinal(100), Type: chat.MessageText},
		{ID: 200, Ordinal: chat.CommittedOrdinal(200), Type: chat.MessageText},
	})
	c.SetLoadedThread("c1")
	gw.Reply(rpc.MethodGetThread, rpctest.Reply{Events: []rpc.Event{
		page(`[{"state":"valid","valid":{"messageID":199,"messageType":"text"}},{"state":"valid","valid":{"messageID":200,"messageType":"text"}}]`),
	}})

	l := NewLoader(gw, c, false, nil)
	require.NoError(t, l.Load(context.Background(), "c1", TriggerSelect))

	ctl := messageIDControl(t, gw.Calls(rpc.MethodGetThread)[0])
	assert.Nil(t, ctl["pivot"])
	assert.Equal(t, false, ctl["recent"])
	assert.Equal(t, []chat.Ordinal{{Base: 199}, {Base: 200}}, c.Ordinals("c1"))
}

func TestLoadMoreAtBeginningIsNoop(t *testing.T) {
	gw := rpctest.New()
	c := cache.New("me", "laptop", bus.New(), nil)
	c.AddMessages("c1", []chat.Message{{ID: 2, Ordinal: chat.CommittedOrdinal(2), Type: chat.MessageText}})
	c.SetLoadedThread("c1")

	l := NewLoader(gw, c, false, nil)
	require.NoError(t, l.Load(context.Background(), "c1", TriggerLoadMore))
	assert.Empty(t, gw.Calls())
}

func TestLoadFailureClearsFlag(t *testing.T) {
	gw := rpctest.New()
	c := cache.New("me", "laptop", bus.New(), nil)
	gw.Reply(rpc.MethodGetThread, rpctest.Reply{Err: errors.New("offline")})

	l := NewLoader(gw, c, false, nil)
	err := l.Load(context.Background(), "c1", TriggerSelect)
	require.Error(t, err)
	assert.False(t, c.Loading(cache.LoadingThreadKey("c1")))
	assert.False(t, c.HasLoadedThread("c1"))
}

func TestLoadEmptyConversationMarksLoaded(t *testing.T) {
	gw := rpctest.New()
	c := cache.New("me", "laptop", bus.New(), nil)

	l := NewLoader(gw, c, false, nil)
	require.NoError(t, l.Load(context.Background(), "c1", TriggerSelect))
	assert.Len(t, gw.Calls(rpc.MethodGetThread), 1)
	assert.Empty(t, c.Ordinals("c1"))
	assert.True(t, c.HasLoadedThread("c1"))

	require.NoError(t, l.Load(context.Background(), "c1", TriggerSelect))
	calls := gw.Calls(rpc.MethodGetThread)
	require.Len(t, calls, 2)
	ctl := messageIDControl(t, calls[1])
	assert.Nil(t, ctl["pivot"])
	assert.Equal(t, true, ctl["recent"])
	assert.Equal(t, 100, ctl["num"])
}
