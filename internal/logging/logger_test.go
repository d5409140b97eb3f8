package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chatsyncd.log")

	logger, err := New(Options{Path: path, Session: "work"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("inbox refreshed")
	_ = logger.Sync()

	line := readLog(t, path)
	for _, want := range []string{`"msg":"inbox refreshed"`, `"session":"work"`, `"ts":`, `"caller":`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestNewHonoursLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsyncd.log")

	logger, err := New(Options{Path: path, Session: "work", Level: "warn"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("quiet")
	logger.Warn("loud")
	_ = logger.Sync()

	out := readLog(t, path)
	if strings.Contains(out, "quiet") {
		t.Errorf("info entry written at warn level: %s", out)
	}
	if !strings.Contains(out, "loud") {
		t.Errorf("warn entry missing: %s", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatsyncd.log")
	if _, err := New(Options{Path: path, Level: "chatty"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("log file should not be created on a bad level, stat err = %v", err)
	}
}

func TestLevelName(t *testing.T) {
	tests := map[string]string{"": "info", "debug": "debug", "ERROR": "error", "chatty": "info"}
	for in, want := range tests {
		if got := LevelName(in); got != want {
			t.Errorf("LevelName(%q) = %q, want %q", in, got, want)
		}
	}
}
