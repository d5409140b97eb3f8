package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTempPathIsDeterministic(t *testing.T) {
	f := New("/cache", "/dl")
	assert.Equal(t, "/cache/chat-c1-12.preview", f.TempPath("c1", chat.CommittedOrdinal(12), true))
	assert.Equal(t, "/cache/chat-c1-12.1.download", f.TempPath("c1", chat.Ordinal{Base: 12, Seq: 1}, false))
	assert.Equal(t, "/cache/chat-x-1.download", f.TempPath("../x", chat.CommittedOrdinal(1), false))
}

func TestDownloadPathSearchesFreeName(t *testing.T) {
	dir := t.TempDir()
	f := New(t.TempDir(), dir)

	p, err := f.DownloadPath("cat.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cat.png"), p)

	require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	p, err = f.DownloadPath("cat.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cat (1).png"), p)
	assert.Equal(t, filepath.Join(dir, "cat.png"), f.DownloadPathNoSearch("cat.png"))
}

func TestStatAndCopy(t *testing.T) {
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))
	f := New(t.TempDir(), t.TempDir())

	size, ok := f.Stat(src)
	require.True(t, ok)
	assert.Equal(t, int64(5), size)
	_, ok = f.Stat(filepath.Join(t.TempDir(), "missing"))
	assert.False(t, ok)

	dst := filepath.Join(f.DownloadDir, "nested", "dst")
	require.NoError(t, f.Copy(src, dst))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	assert.Error(t, f.Copy(src, dst), "existing destination is not overwritten")
}
