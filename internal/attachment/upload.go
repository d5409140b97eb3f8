package attachment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/chatsync/internal/cache"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/files"
	"github.com/matheus3301/chatsync/internal/rpc"
	"go.uber.org/zap"
)

var (
	// ErrUnknownConversation means the upload target has no metadata.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrNotFile means the upload source is missing or not a regular file.
	ErrNotFile = errors.New("not a regular file")
)

// Uploader posts local files as attachment messages.
type Uploader struct {
	gw     rpc.Gateway
	cache  *cache.Cache
	files  *files.FS
	logger *zap.Logger
	newID  func() string
	now    func() time.Time
}

// NewUploader creates an uploader.
func NewUploader(gw rpc.Gateway, c *cache.Cache, fs *files.FS, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{
		gw:     gw,
		cache:  c,
		files:  fs,
		logger: logger.Named("upload"),
		newID:  uuid.NewString,
		now:    time.Now,
	}
}

// Upload renders a pending attachment message for path and streams the file
// to the backend. A failed upload leaves the message failed; it is never
// retried automatically.
func (u *Uploader) Upload(ctx context.Context, conv chat.ConversationID, path, title string) (chat.OutboxID, error) {
	meta, ok := u.cache.Meta(conv)
	if !ok {
		return "", fmt.Errorf("upload to %s: %w", conv, ErrUnknownConversation)
	}
	size, ok := u.files.Stat(path)
	if !ok {
		return "", fmt.Errorf("upload %s: %w", path, ErrNotFile)
	}

	outboxID := chat.OutboxID(u.newID())
	preview, err := MakePreview(path, filepath.Join(u.files.CacheDir, "upload-"+string(outboxID)+".png"))
	if err != nil {
		u.logger.Warn("preview failed", zap.String("path", path), zap.Error(err))
	}

	name := filepath.Base(path)
	if title == "" {
		title = name
	}
	username, device := u.cache.Me()
	clientPrev := u.cache.LastMessageID(conv)
	added := u.cache.AddMessages(conv, []chat.Message{{
		OutboxID:  outboxID,
		Type:      chat.MessageAttachment,
		SendState: chat.SendPending,
		Author:    username,
		Device:    device,
		Timestamp: u.now().UnixMilli(),
		Attachment: &chat.Attachment{
			FileName:    name,
			FileSize:    size,
			Title:       title,
			MimeType:    preview.MimeType,
			PreviewPath: preview.Path,
			FilePath:    path,
		},
	}})
	if len(added) == 0 {
		return "", fmt.Errorf("upload %s: pending message rejected", path)
	}
	o := added[0].Ordinal
	u.cache.TrackOutbox(chat.OutboxEntry{
		OutboxID:     outboxID,
		Conversation: conv,
		Ordinal:      o,
		Kind:         chat.OutboxSend,
		Body:         title,
		Status:       chat.OutboxInFlight,
	})

	p := startProgress(u.cache, chat.TransferState{
		Conversation: conv,
		Ordinal:      o,
		Kind:         chat.TransferFull,
		Direction:    chat.Upload,
	})
	params := rpc.Params{
		"conversationID":   string(conv),
		"tlfName":          meta.TLFName,
		"visibility":       "private",
		"attachment":       map[string]any{"filename": path},
		"title":            title,
		"identifyBehavior": u.cache.IdentifyBehavior(conv),
		"outboxID":         string(outboxID),
		"clientPrev":       uint64(clientPrev),
	}
	if preview.Path != "" {
		params["preview"] = map[string]any{"filename": preview.Path}
	}

	u.logger.Info("upload attachment",
		zap.String("conversation", string(conv)),
		zap.String("outbox_id", string(outboxID)),
		zap.Int64("size", size))
	_, err = u.gw.Stream(ctx, rpc.MethodPostFile, params, func(evt rpc.Event) error {
		if e, ok := evt.(rpc.TransferProgress); ok && !e.Preview {
			p.update(e.Ratio())
		}
		return nil
	})
	if err != nil {
		reason := err.Error()
		u.cache.UpdateMessage(conv, o, func(m *chat.Message) {
			m.SendState = chat.SendFailed
			m.ErrorReason = reason
		})
		if e, ok := u.cache.OutboxEntry(outboxID); ok {
			e.Status, e.Error = chat.OutboxFailed, reason
			u.cache.TrackOutbox(e)
		}
		p.fail(err)
		return outboxID, fmt.Errorf("upload attachment: %w", err)
	}
	p.done(path)
	return outboxID, nil
}
