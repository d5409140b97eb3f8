package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders conversation details.
func (ci *ConversationInfo) Update(c api.Conversation) {
	ci.Clear()

	fg := colorName(ci.theme.FgColor)
	ct := colorName(ci.theme.CounterColor)

	lastActive := formatTimestamp(c.Timestamp)
	if lastActive == "" {
		lastActive = "-"
	}
	muted := "no"
	if c.Muted {
		muted = "yes"
	}

	rows := [][2]string{
		{"Name", DisplayName(c)},
		{"ID", c.ID},
		{"Type", c.TeamType},
		{"Trust", c.TrustState},
		{"Members", strings.Join(c.Participants, ", ")},
		{"Muted", muted},
		{"Last Active", lastActive},
		{"Last Message", c.Snippet},
	}
	if c.Error != "" {
		rows = append(rows, [2]string{"Error", c.Error})
	}

	var b strings.Builder
	b.WriteString("\n")
	for _, r := range rows {
		fmt.Fprintf(&b, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r[0]+":", ct, tview.Escape(sanitizeForTerminal(r[1])))
	}

	_, _ = fmt.Fprint(ci, b.String())
	ci.SetTitle(fmt.Sprintf(" %s Details ", DisplayName(c)))
}

func colorName(c interface{ Hex() int32 }) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
