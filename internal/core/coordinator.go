// Package core runs the sync core: one ordered command queue whose handlers
// mutate the cache and start network work as tracked background tasks.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/activity"
	"github.com/matheus3301/chatsync/internal/attachment"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/files"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/readmark"
	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/thread"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default push resubscription delays.
const (
	DefaultPushRetry = 500 * time.Millisecond
	maxPushRetry     = 30 * time.Second
)

// Options wires a Coordinator. Push, Machine, DB and Logger may be nil.
type Options struct {
	Gateway     rpc.Gateway
	Push        rpc.PushSource
	Cache       *cache.Cache
	Bus         *bus.Bus
	Machine     *status.Machine
	DB          *store.DB
	Files       *files.FS
	Constrained bool
	Logger      *zap.Logger
	// PushRetry is the first delay before resubscribing to push; it
	// doubles up to 30s. Zero means DefaultPushRetry.
	PushRetry time.Duration
}

// Coordinator processes commands one at a time in dispatch order. A handler
// never blocks on the network: calls run as tasks, and outbound posts run
// on a serial lane so they reach the backend in the order they were issued.
type Coordinator struct {
	gw          rpc.Gateway
	push        rpc.PushSource
	cache       *cache.Cache
	constrained bool
	pushRetry   time.Duration
	logger      *zap.Logger

	inbox     *inbox.Coordinator
	unboxer   *inbox.Unboxer
	metas     *inbox.MetaQueue
	threads   *thread.Loader
	outbox    *outbox.Manager
	loader    *attachment.Loader
	downloads *attachment.Queue
	uploads   *attachment.Uploader
	reads     *readmark.Marker
	router    *activity.Router

	mu      sync.Mutex
	pending []command.Command
	wake    chan struct{}

	handling sync.Mutex
	tasks    sync.WaitGroup
	lanes    map[string]*lane

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds every component around the shared cache.
func New(o Options) *Coordinator {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pushRetry := o.PushRetry
	if pushRetry <= 0 {
		pushRetry = DefaultPushRetry
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		gw:          o.Gateway,
		push:        o.Push,
		cache:       o.Cache,
		constrained: o.Constrained,
		pushRetry:   pushRetry,
		logger:      logger.Named("core"),
		wake:        make(chan struct{}, 1),
		lanes:       map[string]*lane{laneOutbox: {}, laneUpload: {}},
		ctx:         ctx,
		cancel:      cancel,
	}
	c.inbox = inbox.NewCoordinator(o.Gateway, o.Cache, c, o.Machine, o.Bus, logger)
	c.unboxer = inbox.NewUnboxer(o.Gateway, o.Cache, logger)
	c.metas = inbox.NewMetaQueue(o.Cache, c.unboxer, logger)
	c.threads = thread.NewLoader(o.Gateway, o.Cache, o.Constrained, logger)
	c.outbox = outbox.NewManager(o.Gateway, o.Cache, o.DB, logger)
	c.loader = attachment.NewLoader(o.Gateway, o.Cache, o.Files, logger)
	c.downloads = attachment.NewQueue(c.loader, logger)
	c.uploads = attachment.NewUploader(o.Gateway, o.Cache, o.Files, logger)
	c.reads = readmark.New(o.Gateway, o.Cache, o.DB, logger)
	c.router = activity.NewRouter(o.Cache, o.Constrained, logger)
	return c
}

// Outbox exposes the outbox manager for startup recovery.
func (c *Coordinator) Outbox() *outbox.Manager { return c.outbox }

// Reads exposes the read marker for startup hydration.
func (c *Coordinator) Reads() *readmark.Marker { return c.reads }

// Dispatch queues cmds behind everything already queued.
func (c *Coordinator) Dispatch(cmds ...command.Command) {
	if len(cmds) == 0 {
		return
	}
	c.mu.Lock()
	c.pending = append(c.pending, cmds...)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Queued returns the number of commands waiting to be handled.
func (c *Coordinator) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Route hands one push notification to the activity router.
func (c *Coordinator) Route(n rpc.Notification) {
	c.Dispatch(c.router.Route(n)...)
}

// Run handles commands and routes push notifications until ctx is done,
// then cancels and awaits every outstanding task. A failing push stream is
// resubscribed and never stops command handling.
func (c *Coordinator) Run(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		for {
			c.drain()
			select {
			case <-ctx.Done():
				return nil
			case <-c.wake:
			}
		}
	})
	if c.push != nil {
		g.Go(func() error {
			c.subscribe(ctx)
			return nil
		})
	}
	err := g.Wait()
	c.cancel()
	c.wait()
	return err
}

// subscribe keeps a push subscription open until ctx is done. Pushes may be
// lost while the stream is down, so every resubscription refreshes the inbox.
func (c *Coordinator) subscribe(ctx context.Context) {
	delay := c.pushRetry
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.Dispatch(command.InboxRefresh{Reason: command.RefreshInboxStale})
		}
		started := time.Now()
		err := c.push.Subscribe(ctx, c.Route)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxPushRetry {
			delay = c.pushRetry
		}
		if err != nil {
			c.logger.Warn("push stream failed", zap.Error(err), zap.Duration("retry_in", delay))
		} else {
			c.logger.Info("push stream closed", zap.Duration("retry_in", delay))
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		delay = min(delay*2, maxPushRetry)
	}
}

// Flush handles queued commands and waits for the tasks they start, until
// no command is left. It must not be called while Run is active.
func (c *Coordinator) Flush() {
	for {
		c.drain()
		c.wait()
		if c.Queued() == 0 {
			return
		}
	}
}

func (c *Coordinator) wait() {
	c.tasks.Wait()
	c.metas.Wait()
	c.downloads.Wait()
}

func (c *Coordinator) drain() {
	c.handling.Lock()
	defer c.handling.Unlock()
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		cmd := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()

		c.logger.Debug("handle", zap.String("command", command.Name(cmd)))
		c.handle(cmd)
	}
}

// spawn runs fn as a tracked task.
func (c *Coordinator) spawn(name string, fn func(ctx context.Context) error) {
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		c.report(name, fn(c.ctx))
	}()
}

func (c *Coordinator) report(name string, err error) {
	if err == nil || errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Warn("task failed", zap.String("task", name), zap.Error(err))
}

const (
	laneOutbox = "outbox"
	laneUpload = "upload"
)

// lane runs its functions one after another in submission order.
type lane struct {
	mu      sync.Mutex
	fns     []laneFunc
	running bool
}

type laneFunc struct {
	name string
	fn   func(ctx context.Context) error
}

func (c *Coordinator) serial(laneName, name string, fn func(ctx context.Context) error) {
	l := c.lanes[laneName]
	l.mu.Lock()
	l.fns = append(l.fns, laneFunc{name: name, fn: fn})
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	c.tasks.Add(1)
	l.mu.Unlock()

	go func() {
		defer c.tasks.Done()
		for {
			l.mu.Lock()
			if len(l.fns) == 0 {
				l.running = false
				l.mu.Unlock()
				return
			}
			next := l.fns[0]
			l.fns = l.fns[1:]
			l.mu.Unlock()
			c.report(next.name, next.fn(c.ctx))
		}
	}()
}
