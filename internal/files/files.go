// Package files resolves attachment cache and download paths and performs
// the few filesystem operations the sync core needs.
package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/matheus3301/chatsync/internal/chat"
)

// maxSearch bounds the numbered suffixes tried by DownloadPath.
const maxSearch = 1000

// FS is rooted at an attachment cache directory and a download directory.
type FS struct {
	CacheDir    string
	DownloadDir string
}

// New creates an FS. The directories are created on first write.
func New(cacheDir, downloadDir string) *FS {
	return &FS{CacheDir: cacheDir, DownloadDir: downloadDir}
}

// Stat returns the size of the regular file at path.
func (f *FS) Stat(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return 0, false
	}
	return info.Size(), true
}

// TempPath is the deterministic cache file of one attachment.
func (f *FS) TempPath(conv chat.ConversationID, o chat.Ordinal, preview bool) string {
	suffix := "download"
	if preview {
		suffix = "preview"
	}
	return filepath.Join(f.CacheDir, fmt.Sprintf("chat-%s-%s.%s", safeName(string(conv)), o, suffix))
}

// DownloadPathNoSearch is where a file named name is saved when no file of
// that name exists yet.
func (f *FS) DownloadPathNoSearch(name string) string {
	return filepath.Join(f.DownloadDir, safeName(name))
}

// DownloadPath returns a free path for saving name, adding " (n)" before
// the extension until nothing exists there.
func (f *FS) DownloadPath(name string) (string, error) {
	base := f.DownloadPathNoSearch(name)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 0; i < maxSearch; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		_, err := os.Lstat(candidate)
		if errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("no free download path for %q", name)
}

// Copy copies src to dst, creating dst's directory.
func (f *FS) Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	return out.Close()
}

// EnsureCacheDir creates the cache directory.
func (f *FS) EnsureCacheDir() error {
	if err := os.MkdirAll(f.CacheDir, 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	return nil
}

// safeName keeps a backend supplied name inside its directory.
func safeName(name string) string {
	name = filepath.Base(filepath.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "file"
	}
	return name
}
