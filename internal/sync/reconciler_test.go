package sync

import (
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/command"
)

func TestReconcilerRecordSync(t *testing.T) {
	r := NewReconciler(testDB(t), nil)

	if _, _, ok := r.LastSync(); ok {
		t.Fatal("fresh store should have no sync record")
	}

	first := time.UnixMilli(1_700_000_000_000)
	if err := r.RecordSync(command.SyncCurrent, first); err != nil {
		t.Fatal(err)
	}
	second := first.Add(time.Minute)
	if err := r.RecordSync(command.SyncIncremental, second); err != nil {
		t.Fatal(err)
	}

	kind, at, ok := r.LastSync()
	if !ok {
		t.Fatal("expected a sync record")
	}
	if kind != command.SyncIncremental {
		t.Errorf("kind = %q, want incremental", kind)
	}
	if !at.Equal(second) {
		t.Errorf("at = %v, want %v", at, second)
	}
}

func TestReconcilerIgnoresCorruptTimestamp(t *testing.T) {
	db := testDB(t)
	r := NewReconciler(db, nil)
	if _, err := db.Exec(`INSERT INTO sync_state (key, value) VALUES (?, ?), (?, ?)`,
		CheckpointSyncType, "current", CheckpointSyncedAt, "yesterday"); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := r.LastSync(); ok {
		t.Error("corrupt timestamp should not yield a sync record")
	}
}
