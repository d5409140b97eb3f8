package views

import "strings"

// sanitizeForTerminal drops codepoints tcell renders badly: skin tone
// modifiers, the zero width joiner and variation selectors. A modified emoji
// such as a thumbs-up with skin tone then renders as the plain 2-cell emoji.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if isProblematicRune(r) {
			return -1
		}
		return r
	}, s)
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	}
	return false
}
