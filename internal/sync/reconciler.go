package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/chatsync/internal/command"
	"github.com/matheus3301/chatsync/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys in sync_state.
const (
	CheckpointSyncType = "inbox_sync_type"
	CheckpointSyncedAt = "inbox_synced_at"
)

// Reconciler records the outcome of backend inbox syncs so a restarted
// daemon knows how stale its persisted inbox is.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{db: db, logger: logger}
}

// RecordSync stores the kind and time of a completed inbox sync.
func (r *Reconciler) RecordSync(kind command.SyncType, at time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin checkpoint: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for key, value := range map[string]string{
		CheckpointSyncType: string(kind),
		CheckpointSyncedAt: strconv.FormatInt(at.UnixMilli(), 10),
	} {
		if _, err := tx.Exec(`
			INSERT INTO sync_state (key, value, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now); err != nil {
			return fmt.Errorf("write checkpoint %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	r.logger.Debug("inbox sync checkpoint", zap.String("type", string(kind)), zap.Time("at", at))
	return nil
}

// LastSync returns the last recorded inbox sync. ok is false when none was
// recorded.
func (r *Reconciler) LastSync() (kind command.SyncType, at time.Time, ok bool) {
	t, err := r.checkpoint(CheckpointSyncType)
	if err != nil {
		return "", time.Time{}, false
	}
	v, err := r.checkpoint(CheckpointSyncedAt)
	if err != nil {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.logger.Warn("bad sync checkpoint", zap.String("value", v))
		return "", time.Time{}, false
	}
	return command.SyncType(t), time.UnixMilli(ms), true
}

func (r *Reconciler) checkpoint(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	if err != nil {
		r.logger.Warn("read sync checkpoint", zap.String("key", key), zap.Error(err))
		return "", err
	}
	return value, nil
}
