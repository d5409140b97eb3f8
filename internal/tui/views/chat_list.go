package views

import (
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/rivo/tview"
)

// ChatList is the main conversation list view (K9s-inspired table).
type ChatList struct {
	*tview.Table
	convs      []api.Conversation
	selectedFn func() (int, int)
}

// NewChatList creates a new conversation list table.
func NewChatList() *ChatList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")

	cl := &ChatList{Table: table}
	cl.selectedFn = table.GetSelection
	return cl
}

// Update refreshes the list with new data, keeping the selected row.
func (cl *ChatList) Update(convs []api.Conversation) {
	row, _ := cl.selectedFn()
	cl.convs = convs
	cl.Clear()

	cl.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 1, tview.NewTableCell(" Last Message").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	cl.SetCell(0, 2, tview.NewTableCell(" Time").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, c := range convs {
		r := i + 1
		name := DisplayName(c)
		if c.Muted {
			name += " (muted)"
		}
		snippet := c.Snippet
		if c.TrustState != "trusted" {
			snippet = "[::d]" + c.TrustState + "[-:-:-]"
		}
		cl.SetCell(r, 0, tview.NewTableCell(" "+sanitizeForTerminal(name)).SetMaxWidth(30).SetExpansion(1))
		cl.SetCell(r, 1, tview.NewTableCell(" "+sanitizeForTerminal(snippet)).SetMaxWidth(40).SetExpansion(2))
		cl.SetCell(r, 2, tview.NewTableCell(" "+formatTimestamp(c.Timestamp)).SetMaxWidth(12))
	}
	if row > len(convs) {
		row = len(convs)
	}
	if row > 0 {
		cl.Select(row, 0)
	}
}

// SelectedConversation returns the id of the selected conversation.
func (cl *ChatList) SelectedConversation() string {
	row, _ := cl.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(cl.convs) {
		return cl.convs[idx].ID
	}
	return ""
}

// Visible returns the ids of the conversations on screen, top first.
func (cl *ChatList) Visible() []string {
	_, _, _, height := cl.GetInnerRect()
	from, _ := cl.GetOffset()
	// row 0 is the header
	lo, hi := max(from-1, 0), len(cl.convs)
	if height > 0 {
		hi = min(hi, from+height-1)
	}
	var ids []string
	for i := lo; i < hi; i++ {
		ids = append(ids, cl.convs[i].ID)
	}
	return ids
}

// DisplayName names a conversation by its channel or its participants.
func DisplayName(c api.Conversation) string {
	switch {
	case c.ChannelName != "":
		return c.TeamName + "#" + c.ChannelName
	case len(c.Participants) > 0:
		return strings.Join(c.Participants, ", ")
	case c.TLFName != "":
		return c.TLFName
	}
	return c.ID
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
