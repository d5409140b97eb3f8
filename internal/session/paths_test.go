package session

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	t.Setenv(EnvHome, "")
	home, _ := os.UserHomeDir()
	got := Dir("main")
	want := filepath.Join(home, ".chatsync", "sessions", "main")
	if got != want {
		t.Errorf("Dir(main) = %q, want %q", got, want)
	}
}

func TestBaseDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvHome, dir)

	if got := BaseDir(); got != dir {
		t.Errorf("BaseDir() = %q, want %q", got, dir)
	}
	if got, want := ConfigPath(), filepath.Join(dir, "config.toml"); got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
	if got, want := Dir("work"), filepath.Join(dir, "sessions", "work"); got != want {
		t.Errorf("Dir(work) = %q, want %q", got, want)
	}
}

func TestSessionFiles(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"socket", SocketPath("test"), filepath.Join("sessions", "test", "daemon.sock")},
		{"lock", LockPath("test"), filepath.Join("sessions", "test", "LOCK")},
		{"db", AppDBPath("test"), filepath.Join("sessions", "test", "chatsync.db")},
		{"cache", CacheDir("test"), filepath.Join("sessions", "test", "attachments")},
		{"log", LogPath("test"), filepath.Join("sessions", "test", "logs", "chatsyncd.log")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasSuffix(tt.got, tt.want) {
				t.Errorf("path = %q, want suffix %q", tt.got, tt.want)
			}
		})
	}
}

func TestDownloadDir(t *testing.T) {
	if got := DownloadDir("/srv/files"); got != "/srv/files" {
		t.Errorf("DownloadDir(configured) = %q", got)
	}
	if got := DownloadDir(""); filepath.Base(got) != "Downloads" {
		t.Errorf("DownloadDir(\"\") = %q, want a Downloads dir", got)
	}
}

func TestEnsureDir(t *testing.T) {
	t.Setenv(EnvHome, t.TempDir())

	if err := EnsureDir("test"); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	for _, dir := range []string{Dir("test"), LogDir("test"), CacheDir("test")} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("%s not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
}
