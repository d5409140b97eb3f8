package daemon

import (
	"context"
	"errors"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/core"
	"github.com/matheus3301/chatsync/internal/files"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/rpc/grpcgw"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// hydrateLimit bounds how many persisted conversations seed the cache.
	hydrateLimit = 500
	// serverDrainTimeout bounds how long open event streams delay shutdown.
	serverDrainTimeout = 2 * time.Second
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load ~/.chatsync/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideGateway,
			provideCache,
			provideFiles,
			provideCore,
			provideSyncEngine,
			provideCommandService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(lc fx.Lifecycle, p Params, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.New(logging.Options{
		Path:    session.LogPath(p.SessionName),
		Session: p.SessionName,
		Level:   cfg.LogLevel,
		Stderr:  true,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error {
		_ = logger.Sync()
		return nil
	}})
	return logger, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName), cfg.Gateway())
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired", zap.String("path", l.Path()))
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	db, result, err := store.OpenMigrated(session.AppDBPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("store initialized",
		zap.String("path", db.Path()),
		zap.Uint("schema_version", result.Version),
		zap.Bool("migrated", result.Changed))
	return db, nil
}

func provideGateway(cfg *config.Config, logger *zap.Logger) (*grpcgw.Client, error) {
	return grpcgw.Dial(cfg.Gateway(), logger)
}

func provideCache(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *cache.Cache {
	return cache.New(cfg.Username, cfg.DeviceName, b, logger)
}

func provideFiles(p Params, cfg *config.Config) *files.FS {
	return files.New(session.CacheDir(p.SessionName), session.DownloadDir(cfg.DownloadDir))
}

func provideCore(cfg *config.Config, gw *grpcgw.Client, c *cache.Cache, b *bus.Bus, m *status.Machine, db *store.DB, fs *files.FS, logger *zap.Logger) *core.Coordinator {
	return core.New(core.Options{
		Gateway:     gw,
		Push:        gw,
		Cache:       c,
		Bus:         b,
		Machine:     m,
		DB:          db,
		Files:       fs,
		Constrained: cfg.ConstrainedUI,
		Logger:      logger,
	})
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideCommandService(p Params, co *core.Coordinator, c *cache.Cache, db *store.DB, m *status.Machine, b *bus.Bus, logger *zap.Logger) *api.CommandService {
	return api.NewCommandService(p.SessionName, co, c, db, m, b, logger)
}

// hydrate seeds the cache from the store: persisted conversations come back
// untrusted and are queued for trusted unboxing, and read watermarks are
// restored. Posts interrupted by the last shutdown come back failed.
func hydrate(co *core.Coordinator, engine *intsync.Engine, c *cache.Cache, logger *zap.Logger) error {
	metas, err := engine.CachedMetas(hydrateLimit)
	if err != nil {
		return err
	}
	c.UpsertMetas(metas)
	if len(metas) > 0 {
		// Newest last: the meta queue takes from the back.
		ids := make([]chat.ConversationID, 0, len(metas))
		for i := len(metas) - 1; i >= 0; i-- {
			ids = append(ids, metas[i].ID)
		}
		co.Dispatch(command.MetaNeedsUpdating{IDs: ids})
	}
	if err := co.Reads().Hydrate(); err != nil {
		return err
	}
	failed, err := co.Outbox().Recover()
	if err != nil {
		return err
	}
	logger.Info("cache hydrated", zap.Int("conversations", len(metas)), zap.Int("interrupted_posts", failed))
	if kind, at, ok := engine.LastSync(); ok {
		logger.Info("last inbox sync", zap.String("type", kind), zap.Time("at", at))
	}
	return nil
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, gw *grpcgw.Client, co *core.Coordinator, engine *intsync.Engine, c *cache.Cache, db *store.DB, machine *status.Machine, logger *zap.Logger) {
	runCtx, stopRun := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Hydrate before the engine subscribes so restored metas are
			// not written back.
			if err := hydrate(co, engine, c, logger); err != nil {
				return err
			}
			engine.Start(runCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			go func() {
				defer close(done)
				if err := co.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("sync core stopped", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()

			co.Dispatch(command.InboxRefresh{Reason: command.RefreshBootstrap})
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopRun()
			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("sync core did not stop in time")
			}
			srvCtx, cancel := context.WithTimeout(ctx, serverDrainTimeout)
			defer cancel()
			srv.Stop(srvCtx)
			engine.Stop()
			if err := gw.Close(); err != nil {
				logger.Warn("error closing gateway", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
