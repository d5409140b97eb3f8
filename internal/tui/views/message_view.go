package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/rivo/tview"
)

// MessageView displays the thread of one conversation.
type MessageView struct {
	*tview.TextView
	chatName string
	me       string
}

// NewMessageView creates a new message view.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetChatName updates the title with the conversation name.
func (mv *MessageView) SetChatName(name string) {
	mv.chatName = name
	mv.SetTitle(fmt.Sprintf(" %s ", name))
}

// SetMe sets the local username so own messages render as "You".
func (mv *MessageView) SetMe(username string) {
	mv.me = username
}

// Update refreshes the view. Messages arrive in ordinal order.
func (mv *MessageView) Update(msgs []api.Message) {
	mv.Clear()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mv, RenderMessage(m, mv.me))
	}
	mv.ScrollToEnd()
}

// RenderMessage formats one message with its send state and attachment.
func RenderMessage(m api.Message, me string) string {
	sender := m.Author
	if sender == "" || sender == me {
		sender = "You"
	}
	var state string
	switch m.SendState {
	case "pending":
		state = " [yellow]sending[-]"
	case "failed":
		state = fmt.Sprintf(" [red]failed: %s (:retry %s)[-]", tview.Escape(m.ErrorReason), m.OutboxID)
	case "deleted":
		return fmt.Sprintf("[::d]%s deleted a message[-:-:-]\n\n", sender)
	}

	var body strings.Builder
	switch m.Type {
	case "attachment":
		a := m.Attachment
		if a == nil {
			break
		}
		title := a.Title
		if title == "" {
			title = a.FileName
		}
		fmt.Fprintf(&body, "[blue]%s[-] [::d](%s, :download %s)[-:-:-]", tview.Escape(sanitizeForTerminal(title)), humanSize(a.FileSize), m.Ordinal)
		if a.DownloadPath != "" {
			fmt.Fprintf(&body, "\n[::d]saved to %s[-:-:-]", tview.Escape(a.DownloadPath))
		}
	case "system", "error":
		fmt.Fprintf(&body, "[::d]%s[-:-:-]", tview.Escape(sanitizeForTerminal(m.Text)))
	default:
		body.WriteString(tview.Escape(sanitizeForTerminal(m.Text)))
	}

	ts := formatTimestamp(m.Timestamp)
	return fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n", tview.Escape(sender), ts, state, body.String())
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
