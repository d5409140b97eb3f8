package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/rpc"
	"go.uber.org/zap"
)

// visibleTypes are the message types a thread page asks for. Edits,
// deletes, headlines and upload notices only ever arrive by push.
var visibleTypes = []string{"text", "attachment", "metadata", "join", "leave", "system"}

// Loader fetches thread pages into the cache.
type Loader struct {
	gw          rpc.Gateway
	cache       *cache.Cache
	constrained bool
	logger      *zap.Logger
}

// NewLoader creates a loader. constrained selects the smaller page sizes.
func NewLoader(gw rpc.Gateway, c *cache.Cache, constrained bool, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{gw: gw, cache: c, constrained: constrained, logger: logger.Named("thread")}
}

// Load classifies the conversation and fetches the chosen page. Messages
// that fail to convert are dropped; the rest of the page is kept.
func (l *Loader) Load(ctx context.Context, id chat.ConversationID, trigger Trigger) error {
	if id == "" {
		return nil
	}
	plan := Classify(l.cache.HasLoadedThread(id), l.cache.Ordinals(id), trigger, l.constrained)
	if plan.Skip() {
		l.logger.Debug("thread already complete", zap.String("conversation", string(id)))
		return nil
	}
	if plan.ClearOrdinals {
		l.cache.ClearOrdinals(id)
	}

	var pivot any
	pivotField := zap.Skip()
	if plan.Pivot != nil {
		pivot = uint64(*plan.Pivot)
		pivotField = zap.Uint64("pivot", uint64(*plan.Pivot))
	}
	l.logger.Info("load thread",
		zap.String("conversation", string(id)),
		zap.String("case", string(plan.Case)),
		pivotField,
		zap.Bool("recent", plan.Recent),
		zap.Int("num", plan.Num),
	)

	key := cache.LoadingThreadKey(id)
	l.cache.SetLoading(key, true)
	defer l.cache.SetLoading(key, false)

	params := rpc.Params{
		"cbMode":           "incremental",
		"conversationID":   string(id),
		"identifyBehavior": l.cache.IdentifyBehavior(id),
		"reason":           string(trigger),
		"query": map[string]any{
			"disableResolveSupersedes": false,
			"markAsRead":               false,
			"messageTypes":             visibleTypes,
			"messageIDControl": map[string]any{
				"num":    plan.Num,
				"pivot":  pivot,
				"recent": plan.Recent,
			},
		},
	}

	username, device := l.cache.Me()
	_, err := l.gw.Stream(ctx, rpc.MethodGetThread, params, func(evt rpc.Event) error {
		page, ok := evt.(rpc.ThreadPage)
		if !ok {
			return nil
		}
		msgs := make([]chat.Message, 0, len(page.Messages))
		dropped := 0
		for _, raw := range page.Messages {
			m, err := chat.UIMessageToMessage(id, raw, username, device)
			if err != nil {
				if !errors.Is(err, chat.ErrNotVisible) {
					dropped++
				}
				continue
			}
			msgs = append(msgs, m)
		}
		if dropped > 0 {
			l.logger.Warn("dropped malformed messages", zap.String("conversation", string(id)), zap.Int("count", dropped))
		}
		l.cache.AddMessages(id, msgs)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load thread %s: %w", id, err)
	}
	// an empty conversation answers with no page at all
	l.cache.SetLoadedThread(id)
	return nil
}
