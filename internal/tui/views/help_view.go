package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// helpKey marks the key column of a help line.
const helpKey = "$K"

var helpText = `
  [::b]Global Keys[-:-:-]

  $K:[-:-:-]        Command mode        $KEsc[-:-:-]    Cancel / Go back
  $K?[-:-:-]        Help                $Kq[-:-:-]      Quit
  $Ks[-:-:-]        Search              $KCtrl-C[-:-:-] Quit immediately

  [::b]Conversation List[-:-:-]

  $KEnter[-:-:-]    Open conversation   $Kj/k[-:-:-]    Move down / up

  [::b]Message Thread[-:-:-]

  $Ki[-:-:-]        Focus composer      $Kd[-:-:-]      Show details
  $Ko[-:-:-]        Load older messages $KEnter[-:-:-]  Send (in composer)

  [::b]Commands (: mode)[-:-:-]

  $K:upload <path> <title>[-:-:-]  Send a file
  $K:download <ordinal>[-:-:-]     Save an attachment
  $K:retry <outbox id>[-:-:-]      Re-send a failed message
  $K:mute[-:-:-] / $K:unmute[-:-:-]          Mute the conversation
  $K:leave[-:-:-]                  Leave the conversation
  $K:start <user,user>[-:-:-]      Open a conversation with users
  $K:search <query>[-:-:-]         Search messages
  $K:refresh[-:-:-]                Reload the inbox
  $K:help[-:-:-] / $K:q[-:-:-]              Help / Quit
`

func (hv *HelpView) render() {
	kc := fmt.Sprintf("[#%06x]", hv.theme.MenuKeyColor.Hex())
	_, _ = fmt.Fprint(hv, strings.ReplaceAll(helpText, helpKey, kc))
}
