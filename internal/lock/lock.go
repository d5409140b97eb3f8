// Package lock guarantees a single daemon per session with an flock'd file
// that also names its holder.
package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Info describes the process holding a lock.
type Info struct {
	PID     int
	Gateway string
	Since   time.Time
}

// HeldError is returned when another process holds the session lock.
type HeldError struct {
	Info
	Path string
}

func (e *HeldError) Error() string {
	if e.Gateway != "" {
		return fmt.Sprintf("session lock held by PID %d syncing %s (%s)", e.PID, e.Gateway, e.Path)
	}
	return fmt.Sprintf("session lock held by PID %d (%s)", e.PID, e.Path)
}

// Lock is an acquired lock file.
type Lock struct {
	file *os.File
	path string
	info Info
}

// Acquire takes an exclusive, non-blocking flock on path and records the
// caller's PID and gateway in it. The parent directory is created as needed.
func Acquire(path, gateway string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if !errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("flock %s: %w", path, err)
		}
		info, _ := Read(path)
		return nil, &HeldError{Info: info, Path: path}
	}

	info := Info{PID: os.Getpid(), Gateway: gateway, Since: time.Now().UTC().Truncate(time.Second)}
	if err := write(f, info); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	return &Lock{file: f, path: path, info: info}, nil
}

// Read parses the holder recorded in the lock file at path. It does not
// check whether the lock is still held.
func Read(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, err
	}
	var info Info
	for _, line := range strings.Split(string(data), "\n") {
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "pid":
			info.PID, _ = strconv.Atoi(v)
		case "gateway":
			info.Gateway = v
		case "time":
			info.Since, _ = time.Parse(time.RFC3339, v)
		}
	}
	return info, nil
}

func write(f *os.File, info Info) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\ngateway=%s\ntime=%s\n", info.PID, info.Gateway, info.Since.Format(time.RFC3339))
	return err
}

// Info returns what the lock file records about this holder.
func (l *Lock) Info() Info {
	return l.info
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file and drops the lock. Safe to call on a nil
// receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}
