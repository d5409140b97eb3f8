// Package inbox keeps conversation metadata in sync with the backend: full
// untrusted refreshes, push-driven incremental syncs, and the throttled
// promotion of untrusted metadata to trusted.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/status"
	"go.uber.org/zap"
)

// Coordinator owns inbox refreshes and incremental sync bookkeeping.
type Coordinator struct {
	gw       rpc.Gateway
	cache    *cache.Cache
	dispatch command.Dispatcher
	machine  *status.Machine
	bus      *bus.Bus
	logger   *zap.Logger

	mu          sync.Mutex
	syncStarted int
}

// NewCoordinator creates a coordinator. machine and b may be nil.
func NewCoordinator(gw rpc.Gateway, c *cache.Cache, d command.Dispatcher, machine *status.Machine, b *bus.Bus, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		gw:       gw,
		cache:    c,
		dispatch: d,
		machine:  machine,
		bus:      b,
		logger:   logger.Named("inbox"),
	}
}

// inboxQuery is the listing filter shared by refreshes and unboxing.
func inboxQuery() map[string]any {
	return map[string]any{
		"computeActiveList": true,
		"readOnly":          false,
		"status":            []string{"unfiled", "favorite", "muted", "blocked"},
		"tlfVisibility":     "private",
		"topicType":         "chat",
		"unreadOnly":        false,
	}
}

// Refresh reloads the untrusted inbox listing. Every delivered batch is
// merged as soon as it arrives; items that fail to convert are skipped.
// Concurrent refreshes may race; the last write wins in the cache.
func (c *Coordinator) Refresh(ctx context.Context, reason command.RefreshReason) error {
	c.logger.Info("inbox refresh", zap.String("reason", string(reason)))
	c.cache.SetLoading(cache.LoadingInboxRefresh, true)
	defer c.cache.SetLoading(cache.LoadingInboxRefresh, false)
	if c.machine != nil {
		c.machine.Advance(status.Connecting, status.Syncing)
	}

	username, _ := c.cache.Me()
	params := rpc.Params{
		"identifyBehavior": chat.IdentifyLenient,
		"maxUnbox":         0,
		"query":            inboxQuery(),
		"skipUnverified":   false,
	}
	received, skipped := 0, 0
	_, err := c.gw.Stream(ctx, rpc.MethodGetInbox, params, func(evt rpc.Event) error {
		batch, ok := evt.(rpc.InboxUnverified)
		if !ok {
			return nil
		}
		metas := make([]chat.Meta, 0, len(batch.Items))
		for _, item := range batch.Items {
			m, err := chat.UnverifiedItemToMeta(item, username)
			if err != nil {
				skipped++
				continue
			}
			metas = append(metas, m)
		}
		received += len(metas)
		c.dispatchAll(c.Receive(metas))
		return nil
	})
	if skipped > 0 {
		c.logger.Warn("skipped malformed inbox items", zap.Int("count", skipped))
	}
	if err != nil {
		if c.machine != nil && !errors.Is(err, context.Canceled) {
			c.machine.Advance(status.Degraded)
		}
		return fmt.Errorf("refresh inbox: %w", err)
	}
	if c.machine != nil {
		c.machine.Advance(status.Ready)
	}
	c.logger.Info("inbox refreshed", zap.Int("conversations", received))
	return nil
}

// Receive merges metas into the cache and returns the follow-ups. Big team
// conversations that arrive untrusted without a channel name are unboxed
// right away, since the listing alone cannot name them. Other untrusted
// conversations go through the throttled meta queue, newest first.
func (c *Coordinator) Receive(metas []chat.Meta) []command.Command {
	if len(metas) == 0 {
		return nil
	}
	c.cache.UpsertMetas(metas)
	var now, queued []chat.ConversationID
	for _, m := range metas {
		if m.TrustState != chat.Untrusted {
			continue
		}
		if m.TeamType == chat.TeamBig && m.ChannelName == "" {
			now = append(now, m.ID)
		} else {
			queued = append(queued, m.ID)
		}
	}
	var cmds []command.Command
	if len(now) > 0 {
		cmds = append(cmds, command.MetaRequestTrusted{IDs: now})
	}
	if len(queued) > 0 {
		// The queue takes from the back; listings come newest first.
		slices.Reverse(queued)
		cmds = append(cmds, command.MetaNeedsUpdating{IDs: queued})
	}
	return cmds
}

// SyncStarted records a backend sync start.
func (c *Coordinator) SyncStarted() {
	c.mu.Lock()
	c.syncStarted++
	c.mu.Unlock()
	c.cache.SetLoading(cache.LoadingInboxSync, true)
}

// Synced applies the outcome of a backend sync and returns the follow-ups.
// The sync loading flag clears only when the last outstanding start is
// matched; a completion with no outstanding start leaves the counter at
// zero.
func (c *Coordinator) Synced(res command.SyncResult) []command.Command {
	c.mu.Lock()
	done := false
	if c.syncStarted > 0 {
		c.syncStarted--
		done = c.syncStarted == 0
	}
	c.mu.Unlock()
	if done {
		c.cache.SetLoading(cache.LoadingInboxSync, false)
	}
	c.bus.Emit(bus.InboxSynced, res)

	switch res.Type {
	case command.SyncClear:
		return []command.Command{command.InboxRefresh{Reason: command.RefreshInboxSyncedClear}}
	case command.SyncCurrent:
		return nil
	case command.SyncIncremental:
		var cmds []command.Command
		selected := c.cache.Selected()
		for _, m := range res.Items {
			if selected != "" && m.ID == selected {
				cmds = append(cmds, command.LoadNewContent{ID: selected})
				break
			}
		}
		if len(res.Items) > 0 {
			cmds = append(cmds, command.MetasReceived{Metas: res.Items})
		}
		if len(res.IDs) > 0 {
			cmds = append(cmds, command.MetaRequestTrusted{IDs: res.IDs, Force: true})
		}
		return cmds
	}
	return []command.Command{command.InboxRefresh{Reason: command.RefreshInboxSyncedUnknown}}
}

// PendingSyncs returns the number of unmatched sync starts.
func (c *Coordinator) PendingSyncs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncStarted
}

func (c *Coordinator) dispatchAll(cmds []command.Command) {
	if len(cmds) > 0 && c.dispatch != nil {
		c.dispatch.Dispatch(cmds...)
	}
}
