package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"
)

// StatusBar displays persistent session/sync status.
type StatusBar struct {
	*tview.TextView
	session string
	status  string
	loading []string
	hints   []string
	flash   string
	failed  bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the status display.
func (sb *StatusBar) SetStatus(status string) {
	sb.status = status
	sb.render()
}

// SetLoading updates the list of in-flight loads.
func (sb *StatusBar) SetLoading(keys []string) {
	sb.loading = keys
	sb.render()
}

// SetHints sets the key hints of the current view.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message. Errors render in red.
func (sb *StatusBar) SetFlash(msg string, isError bool) {
	sb.flash = msg
	sb.failed = isError
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	syncIcon := " "
	if len(sb.loading) > 0 {
		syncIcon = "[green]~[-] " + tview.Escape(strings.Join(sb.loading, ","))
	}

	clock := time.Now().Format("15:04")

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s %s | %s", sb.session, sb.status, syncIcon, clock)
	if len(sb.hints) > 0 {
		line += " | [::d]" + tview.Escape(strings.Join(sb.hints, " ")) + "[-:-:-]"
	}
	if sb.flash != "" {
		color := "yellow"
		if sb.failed {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(sb.flash))
	}

	_, _ = fmt.Fprint(sb, line)
}
