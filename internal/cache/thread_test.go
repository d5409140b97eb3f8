package cache

import (
	"testing"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(id chat.MessageID, body string) chat.Message {
	return chat.Message{ID: id, Type: chat.MessageText, SendState: chat.SendSent, Text: body}
}

func pending(outboxID chat.OutboxID, body string) chat.Message {
	return chat.Message{OutboxID: outboxID, Type: chat.MessageText, SendState: chat.SendPending, Text: body}
}

func TestAddMessagesOrdersByOrdinal(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(10, "b"), text(3, "a"), text(12, "c")})
	assert.Equal(t, []chat.Ordinal{
		chat.CommittedOrdinal(3), chat.CommittedOrdinal(10), chat.CommittedOrdinal(12),
	}, c.Ordinals("c1"))
}

func TestPendingOrdinalsSortAfterLast(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(100, "x")})
	added := c.AddMessages("c1", []chat.Message{pending("ob1", "p1"), pending("ob2", "p2")})
	require.Len(t, added, 2)
	assert.Equal(t, chat.Ordinal{Base: 100, Seq: 1}, added[0].Ordinal)
	assert.Equal(t, chat.Ordinal{Base: 100, Seq: 2}, added[1].Ordinal)

	// a later server message sorts after both pending ones
	c.AddMessages("c1", []chat.Message{text(101, "y")})
	ords := c.Ordinals("c1")
	assert.Equal(t, chat.CommittedOrdinal(101), ords[len(ords)-1])
}

func TestPendingOnEmptyThread(t *testing.T) {
	c, _ := newCache(t)
	added := c.AddMessages("c1", []chat.Message{pending("ob1", "hi")})
	require.Len(t, added, 1)
	assert.True(t, added[0].Ordinal.IsPending())
	assert.Equal(t, chat.MessageID(0), added[0].Ordinal.Floor())
}

func TestServerAckReplacesPending(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(100, "x")})
	added := c.AddMessages("c1", []chat.Message{pending("ob1", "hello")})
	pendingOrd := added[0].Ordinal
	c.TrackOutbox(chat.OutboxEntry{OutboxID: "ob1", Conversation: "c1", Ordinal: pendingOrd})

	ack := text(101, "hello")
	ack.OutboxID = "ob1"
	c.AddMessages("c1", []chat.Message{ack})

	_, ok := c.Message("c1", pendingOrd)
	assert.False(t, ok)
	m, ok := c.MessageByOutboxID("c1", "ob1")
	require.True(t, ok)
	assert.Equal(t, chat.CommittedOrdinal(101), m.Ordinal)
	assert.Equal(t, chat.SendSent, m.SendState)
	assert.Len(t, c.Ordinals("c1"), 2)
	_, tracked := c.OutboxEntry("ob1")
	assert.False(t, tracked)
}

func TestOutboxStateUpdatesInPlace(t *testing.T) {
	c, _ := newCache(t)
	added := c.AddMessages("c1", []chat.Message{pending("ob1", "hello")})
	failed := pending("ob1", "hello")
	failed.SendState = chat.SendFailed
	again := c.AddMessages("c1", []chat.Message{failed})
	require.Len(t, again, 1)
	assert.Equal(t, added[0].Ordinal, again[0].Ordinal)
	assert.Equal(t, chat.SendFailed, again[0].SendState)
	assert.Len(t, c.Ordinals("c1"), 1)
}

func TestDuplicateDeliveryKeepsOneMessage(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(7, "a")})
	c.AddMessages("c1", []chat.Message{text(7, "a")})
	assert.Len(t, c.Messages("c1"), 1)
}

func TestMessageWithoutKeysIsDropped(t *testing.T) {
	c, _ := newCache(t)
	added := c.AddMessages("c1", []chat.Message{{Type: chat.MessageText}})
	assert.Empty(t, added)
	assert.Empty(t, c.Ordinals("c1"))
}

func TestLastMessageIDSkipsPending(t *testing.T) {
	c, _ := newCache(t)
	assert.Equal(t, chat.MessageID(0), c.LastMessageID("c1"))
	c.AddMessages("c1", []chat.Message{text(4, "a"), text(9, "b"), pending("ob", "c")})
	assert.Equal(t, chat.MessageID(9), c.LastMessageID("c1"))
}

func TestEditAndDelete(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(4, "a"), text(5, "b")})
	require.True(t, c.EditMessage("c1", 4, "edited"))
	m, _ := c.Message("c1", chat.CommittedOrdinal(4))
	assert.Equal(t, "edited", m.Text)

	c.MarkDeleted("c1", []chat.MessageID{5})
	m, _ = c.Message("c1", chat.CommittedOrdinal(5))
	assert.Equal(t, chat.SendDeleted, m.SendState)
	assert.Empty(t, m.Text)

	c.RemoveMessages("c1", []chat.Ordinal{chat.CommittedOrdinal(4)})
	assert.Equal(t, []chat.Ordinal{chat.CommittedOrdinal(5)}, c.Ordinals("c1"))
}

func TestClearOrdinals(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(4, "a")})
	c.SetLoadedThread("c1")
	c.ClearOrdinals("c1")
	assert.Empty(t, c.Ordinals("c1"))
	assert.False(t, c.HasLoadedThread("c1"))
}

func TestReplacePlaceholderKeepsSlotAndPaths(t *testing.T) {
	c, _ := newCache(t)
	placeholder := chat.Message{ID: 20, Type: chat.MessageAttachment, Attachment: &chat.Attachment{PreviewPath: "/tmp/p"}}
	c.AddMessages("c1", []chat.Message{placeholder})

	final := chat.Message{ID: 21, Type: chat.MessageAttachment, Attachment: &chat.Attachment{FileName: "a.png"}}
	got := c.ReplacePlaceholder("c1", 20, final)
	assert.Equal(t, chat.CommittedOrdinal(20), got.Ordinal)
	assert.Equal(t, "/tmp/p", got.Attachment.PreviewPath)
	assert.Equal(t, "a.png", got.Attachment.FileName)
	assert.Len(t, c.Ordinals("c1"), 1)

	// a reload of the final message lands in the same slot
	c.AddMessages("c1", []chat.Message{final})
	assert.Len(t, c.Ordinals("c1"), 1)
}

func TestSetTransferReflectsPath(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{{ID: 3, Type: chat.MessageAttachment, Attachment: &chat.Attachment{FileName: "f"}}})
	o := chat.CommittedOrdinal(3)
	c.SetTransfer(chat.TransferState{Conversation: "c1", Ordinal: o, Kind: chat.TransferPreview, Direction: chat.Download, Ratio: 1, Path: "/cache/p"})
	c.SetTransfer(chat.TransferState{Conversation: "c1", Ordinal: o, Kind: chat.TransferFull, Direction: chat.Download, Ratio: 1, Path: "/cache/f"})

	m, _ := c.Message("c1", o)
	assert.Equal(t, "/cache/p", m.Attachment.PreviewPath)
	assert.Equal(t, "/cache/f", m.Attachment.FilePath)
	s, ok := c.Transfer("c1", o, chat.TransferFull)
	require.True(t, ok)
	assert.False(t, s.Active())
}

func TestRestorePendingKeepsRecordedOrdinal(t *testing.T) {
	c, _ := newCache(t)
	c.AddMessages("c1", []chat.Message{text(10, "x")})

	m := pending("ob1", "hi")
	m.Ordinal = chat.Ordinal{Base: 7, Seq: 1}
	got, ok := c.RestorePending("c1", m)
	require.True(t, ok)
	assert.Equal(t, chat.Ordinal{Base: 7, Seq: 1}, got.Ordinal)

	again, ok := c.RestorePending("c1", m)
	assert.False(t, ok, "a cached outbox id is not restored twice")
	assert.Equal(t, got.Ordinal, again.Ordinal)

	clash := pending("ob2", "yo")
	clash.Ordinal = chat.Ordinal{Base: 7, Seq: 1}
	got, ok = c.RestorePending("c1", clash)
	require.True(t, ok)
	assert.Equal(t, chat.Ordinal{Base: 10, Seq: 1}, got.Ordinal, "a taken slot moves after the last ordinal")

	_, ok = c.RestorePending("c1", text(11, "committed"))
	assert.False(t, ok)
}
