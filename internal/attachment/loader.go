package attachment

import (
	"context"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/files"
	"github.com/matheus3301/chatsync/internal/rpc"
	"go.uber.org/zap"
)

// ErrNotAttachment means the message at the ordinal has no attachment.
var ErrNotAttachment = errors.New("not an attachment message")

// Loader fetches attachment files into the local cache.
type Loader struct {
	gw     rpc.Gateway
	cache  *cache.Cache
	files  *files.FS
	logger *zap.Logger
}

// NewLoader creates a loader.
func NewLoader(gw rpc.Gateway, c *cache.Cache, fs *files.FS, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{gw: gw, cache: c, files: fs, logger: logger.Named("attachment")}
}

// Load makes the preview or full file of the attachment at o available
// locally and reports whether it issued a download call. An already loaded
// or loading file is left alone, and a cached file of the expected size is
// reused without a call.
func (l *Loader) Load(ctx context.Context, conv chat.ConversationID, o chat.Ordinal, preview bool) (bool, error) {
	msg, ok := l.cache.Message(conv, o)
	if !ok || msg.Attachment == nil {
		return false, fmt.Errorf("load %s/%s: %w", conv, o, ErrNotAttachment)
	}
	a := msg.Attachment
	kind := chat.TransferFull
	if preview {
		kind = chat.TransferPreview
	}
	if (preview && a.PreviewPath != "") || (!preview && a.FilePath != "") {
		return false, nil
	}
	if s, ok := l.cache.Transfer(conv, o, kind); ok && s.Active() {
		return false, nil
	}
	if msg.ID == 0 {
		return false, fmt.Errorf("load %s/%s: not yet on the server: %w", conv, o, ErrNotAttachment)
	}

	path := l.files.TempPath(conv, o, preview)
	p := startProgress(l.cache, chat.TransferState{
		Conversation: conv,
		Ordinal:      o,
		Kind:         kind,
		Direction:    chat.Download,
	})

	if size, ok := l.files.Stat(path); ok && ((preview && size > 0) || (!preview && size == a.FileSize)) {
		l.logger.Debug("attachment cached", zap.String("path", path))
		p.done(path)
		return false, nil
	}
	if preview && a.DownloadPath == "" && a.FileName != "" {
		saved := l.files.DownloadPathNoSearch(a.FileName)
		if size, ok := l.files.Stat(saved); ok && size == a.FileSize {
			l.cache.UpdateMessage(conv, o, func(m *chat.Message) {
				if m.Attachment != nil {
					m.Attachment.DownloadPath = saved
				}
			})
		}
	}
	if err := l.files.EnsureCacheDir(); err != nil {
		p.fail(err)
		return false, err
	}

	_, err := l.gw.Stream(ctx, rpc.MethodDownloadFile, rpc.Params{
		"conversationID":   string(conv),
		"messageID":        uint64(msg.ID),
		"filename":         path,
		"preview":          preview,
		"identifyBehavior": l.cache.IdentifyBehavior(conv),
	}, func(evt rpc.Event) error {
		if e, ok := evt.(rpc.TransferProgress); ok {
			p.update(e.Ratio())
		}
		return nil
	})
	if err != nil {
		p.fail(err)
		return true, fmt.Errorf("download attachment: %w", err)
	}
	p.done(path)
	l.logger.Info("attachment downloaded",
		zap.String("conversation", string(conv)),
		zap.Stringer("ordinal", o),
		zap.Bool("preview", preview))
	return true, nil
}

// Save copies the full attachment at o into the download folder, loading
// it first when needed, and returns the saved path.
func (l *Loader) Save(ctx context.Context, conv chat.ConversationID, o chat.Ordinal) (string, error) {
	msg, ok := l.cache.Message(conv, o)
	if !ok || msg.Attachment == nil {
		return "", fmt.Errorf("save %s/%s: %w", conv, o, ErrNotAttachment)
	}
	if msg.Attachment.FilePath == "" {
		if _, err := l.Load(ctx, conv, o, false); err != nil {
			return "", err
		}
		msg, _ = l.cache.Message(conv, o)
		if msg.Attachment == nil || msg.Attachment.FilePath == "" {
			return "", fmt.Errorf("save %s/%s: file not loaded", conv, o)
		}
	}

	dst, err := l.files.DownloadPath(msg.Attachment.FileName)
	if err != nil {
		return "", err
	}
	if err := l.files.Copy(msg.Attachment.FilePath, dst); err != nil {
		return "", fmt.Errorf("save attachment: %w", err)
	}
	l.cache.UpdateMessage(conv, o, func(m *chat.Message) {
		if m.Attachment != nil {
			m.Attachment.DownloadPath = dst
		}
	})
	l.logger.Info("attachment saved", zap.String("path", dst))
	return dst, nil
}
