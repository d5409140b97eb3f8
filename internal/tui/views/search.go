package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/rivo/tview"
)

// SearchView runs full-text queries over persisted messages.
type SearchView struct {
	*tview.Flex
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	hits    []api.SearchHit
}

// NewSearchView creates a new search view.
func NewSearchView() *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true).SetTitle(" Results ")

	return &SearchView{
		Flex: tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(input, 1, 0, true).
			AddItem(results, 0, 1, false),
		input:   input,
		results: results,
	}
}

// SetOnQuery sets the callback run when a non-empty query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
	sv.input.SetDoneFunc(func(key tcell.Key) {
		q := strings.TrimSpace(sv.input.GetText())
		if key == tcell.KeyEnter && q != "" && sv.onQuery != nil {
			sv.onQuery(q)
		}
	})
}

// Update shows hits for query. name resolves a conversation id to a label.
func (sv *SearchView) Update(query string, hits []api.SearchHit, name func(id string) string) {
	sv.hits = hits
	sv.results.Clear()
	sv.results.SetTitle(fmt.Sprintf(" Results for %q (%d) ", tview.Escape(query), len(hits)))

	for col, h := range []string{" Chat", " From", " Message", " Time"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	}
	if len(hits) == 0 {
		sv.results.SetCell(1, 0, tview.NewTableCell(" [::d]no matches[-:-:-]").SetSelectable(false))
		return
	}
	for i, h := range hits {
		row := i + 1
		chat := h.ConversationID
		if name != nil {
			chat = name(h.ConversationID)
		}
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(chat))).SetMaxWidth(20))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(h.Sender))).SetMaxWidth(20))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+RenderSnippet(h.Snippet)).SetExpansion(1))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(h.Timestamp)).SetMaxWidth(12))
	}
	sv.results.Select(1, 0)
}

// RenderSnippet turns the << >> match markers of a search snippet into
// highlight tags. Everything else is escaped.
func RenderSnippet(s string) string {
	s = tview.Escape(sanitizeForTerminal(s))
	s = strings.ReplaceAll(s, "<<", "[yellow::b]")
	return strings.ReplaceAll(s, ">>", "[-:-:-]")
}

// SelectedHit returns the hit under the cursor.
func (sv *SearchView) SelectedHit() (api.SearchHit, bool) {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.hits) {
		return sv.hits[idx], true
	}
	return api.SearchHit{}, false
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
