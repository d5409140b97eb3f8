package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor      tcell.Color
	FgColor      tcell.Color
	BorderColor  tcell.Color
	MenuKeyColor tcell.Color
	TitleColor   tcell.Color
	CounterColor tcell.Color
}

// DefaultTheme returns a k9s-inspired dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:      tcell.ColorBlack,
		FgColor:      tcell.ColorCadetBlue,
		BorderColor:  tcell.ColorDodgerBlue,
		MenuKeyColor: tcell.ColorDodgerBlue,
		TitleColor:   tcell.ColorFuchsia,
		CounterColor: tcell.ColorPapayaWhip,
	}
}
