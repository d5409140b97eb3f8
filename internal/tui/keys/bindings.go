// Package keys maps terminal key events to TUI actions per page.
package keys

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gdamore/tcell/v2"
)

// Global is the scope consulted after the page scope.
const Global = ""

// ErrConflict is returned when a key is bound twice in one scope.
var ErrConflict = errors.New("key already bound")

var keyLabels = map[tcell.Key]string{
	tcell.KeyEscape: "Esc",
	tcell.KeyEnter:  "Enter",
	tcell.KeyTab:    "Tab",
	tcell.KeyCtrlC:  "Ctrl-C",
	tcell.KeyCtrlR:  "Ctrl-R",
}

// Binding ties one key to a handler.
type Binding struct {
	Name    string
	Key     tcell.Key
	Rune    rune // used when Key is tcell.KeyRune
	Help    string
	Hidden  bool
	Handler func()
}

// Matches reports whether ev triggers b.
func (b *Binding) Matches(ev *tcell.EventKey) bool {
	if b.Key != tcell.KeyRune {
		return ev.Key() == b.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == b.Rune
}

// Label is the short key name shown in hints.
func (b *Binding) Label() string {
	if b.Key == tcell.KeyRune {
		return string(b.Rune)
	}
	if name, ok := keyLabels[b.Key]; ok {
		return name
	}
	return fmt.Sprintf("key%d", b.Key)
}

func (b *Binding) sameKey(o *Binding) bool {
	if b.Key != o.Key {
		return false
	}
	return b.Key != tcell.KeyRune || b.Rune == o.Rune
}

// Registry holds bindings by scope. Page scopes take precedence over Global,
// so a page may shadow a global key.
type Registry struct {
	scopes map[string][]*Binding
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{scopes: make(map[string][]*Binding)}
}

// Bind adds b to scope. Binding a key already used in the same scope fails.
func (r *Registry) Bind(scope string, b Binding) error {
	if b.Handler == nil {
		return fmt.Errorf("bind %q: nil handler", b.Name)
	}
	for _, existing := range r.scopes[scope] {
		if existing.sameKey(&b) {
			return fmt.Errorf("bind %q to %s: %w by %q", b.Name, b.Label(), ErrConflict, existing.Name)
		}
	}
	r.scopes[scope] = append(r.scopes[scope], &b)
	return nil
}

// MustBind is Bind for static setup.
func (r *Registry) MustBind(scope string, b Binding) {
	if err := r.Bind(scope, b); err != nil {
		panic(err)
	}
}

// Lookup finds the binding ev triggers on page, checking the page scope
// before Global.
func (r *Registry) Lookup(page string, ev *tcell.EventKey) (*Binding, bool) {
	for _, scope := range []string{page, Global} {
		for _, b := range r.scopes[scope] {
			if b.Matches(ev) {
				return b, true
			}
		}
		if page == Global {
			break
		}
	}
	return nil, false
}

// HandleEvent runs the binding ev triggers on page and reports whether one
// did.
func (r *Registry) HandleEvent(page string, ev *tcell.EventKey) bool {
	b, ok := r.Lookup(page, ev)
	if !ok {
		return false
	}
	b.Handler()
	return true
}

// Hints returns "label help" strings for the visible bindings of page,
// sorted. Global bindings shadowed by the page are left out.
func (r *Registry) Hints(page string) []string {
	var hints []string
	pageBindings := r.scopes[page]
	for _, b := range pageBindings {
		if !b.Hidden {
			hints = append(hints, b.Label()+" "+b.Help)
		}
	}
	if page != Global {
	global:
		for _, b := range r.scopes[Global] {
			if b.Hidden {
				continue
			}
			for _, p := range pageBindings {
				if p.sameKey(b) {
					continue global
				}
			}
			hints = append(hints, b.Label()+" "+b.Help)
		}
	}
	sort.Strings(hints)
	return hints
}
