package inbox

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"go.uber.org/zap"
)

// DefaultUnboxTimeout bounds one trusted unboxing batch.
const DefaultUnboxTimeout = 30 * time.Second

// Unboxer promotes untrusted metadata to trusted.
type Unboxer struct {
	gw      rpc.Gateway
	cache   *cache.Cache
	logger  *zap.Logger
	timeout time.Duration
}

// NewUnboxer creates an unboxer with the default timeout.
func NewUnboxer(gw rpc.Gateway, c *cache.Cache, logger *zap.Logger) *Unboxer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Unboxer{gw: gw, cache: c, logger: logger.Named("unbox"), timeout: DefaultUnboxTimeout}
}

// SetTimeout overrides the batch timeout.
func (u *Unboxer) SetTimeout(d time.Duration) {
	u.timeout = d
}

// RequestTrusted unboxes ids in one streamed call. Without force only ids
// still untrusted are requested.
//
// Each delivered conversation becomes trusted metadata. A conversation the
// backend returns but cannot render is removed locally. A server failure
// marks the conversation errored and flags the user named in the error (or
// the local user) as having a broken identity. Ids still requesting when the
// call ends, including by timeout, are marked errored.
func (u *Unboxer) RequestTrusted(ctx context.Context, ids []chat.ConversationID, force bool) error {
	if !force {
		ids = u.cache.FilterTrust(ids, chat.Untrusted)
	}
	if len(ids) == 0 {
		return nil
	}
	u.cache.MarkRequesting(ids)
	key := cache.UnboxingKey(ids[0])
	u.cache.SetLoading(key, true)
	defer u.cache.SetLoading(key, false)

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	username, _ := u.cache.Me()
	convIDs := make([]string, len(ids))
	for i, id := range ids {
		convIDs[i] = string(id)
	}
	query := inboxQuery()
	query["convIDs"] = convIDs
	params := rpc.Params{
		"identifyBehavior": chat.IdentifyLenient,
		"query":            query,
		"skipUnverified":   false,
	}

	_, err := u.gw.Stream(ctx, rpc.MethodGetInbox, params, func(evt rpc.Event) error {
		switch e := evt.(type) {
		case rpc.InboxConversation:
			u.onConversation(e)
		case rpc.InboxFailed:
			u.onFailed(e, username)
		}
		return nil
	})

	reason := "no result for conversation"
	if err != nil {
		reason = err.Error()
	}
	for _, id := range u.cache.FilterTrust(ids, chat.Requesting) {
		u.cache.MarkErrored(id, reason)
	}
	if err != nil {
		return fmt.Errorf("unbox conversations: %w", err)
	}
	return nil
}

func (u *Unboxer) onConversation(e rpc.InboxConversation) {
	meta, err := chat.InboxItemToMeta(e.Item)
	if err != nil {
		id := chat.ConversationID(e.Item.Get("convID").String())
		u.logger.Info("removing conversation", zap.String("conversation", string(id)), zap.Error(err))
		if id != "" {
			u.cache.RemoveMeta(id)
		}
		return
	}
	u.cache.UpsertMetas([]chat.Meta{meta})
}

func (u *Unboxer) onFailed(e rpc.InboxFailed, username string) {
	id := chat.ConversationID(e.ConvID)
	u.logger.Warn("unbox failed", zap.String("conversation", e.ConvID), zap.String("error", e.Message))
	u.cache.MarkErrored(id, e.Message)
	if user := BrokenUser(e.Message, username); user != "" {
		u.cache.UpdateBroken([]string{user}, nil)
	}
}

var quotedName = regexp.MustCompile(`"([^"]+)"`)

// BrokenUser extracts the user an identity error is about. The first quoted
// name in the message wins; otherwise the acting user is returned.
func BrokenUser(message, actor string) string {
	if m := quotedName.FindStringSubmatch(message); m != nil {
		return m[1]
	}
	return actor
}
