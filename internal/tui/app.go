package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/tui/keys"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/matheus3301/chatsync/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	flashDuration  = 5 * time.Second
	watchRetry     = 2 * time.Second
	requestTimeout = 10 * time.Second
)

// Watcher streams daemon events.
type Watcher interface {
	WatchEvents(ctx context.Context, namespace string, fn func(api.Event) error) error
}

// Daemon is the API surface the TUI talks to.
type Daemon interface {
	model.Backend
	Watcher
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	root      *tview.Flex
	pages     *tview.Pages
	vm        *model.ViewModel
	daemon    Daemon
	registry  *keys.Registry
	statusBar *views.StatusBar
	chatList  *views.ChatList
	msgView   *views.MessageView
	composer  *views.Composer
	searchV   *views.SearchView
	info      *views.ConversationInfo
	help      *views.HelpView
	cmdInput  *tview.InputField
	prevFocus tview.Primitive
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application. username marks own messages.
func NewApp(d Daemon, sessionName, username string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(d),
		daemon:    d,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		chatList:  views.NewChatList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		searchV:   views.NewSearchView(),
		info:      views.NewConversationInfo(theme),
		help:      views.NewHelpView(theme),
		cmdInput:  tview.NewInputField().SetLabel(" :").SetFieldWidth(0),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.msgView.SetMe(username)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	r := a.registry
	r.MustBind(keys.Global, keys.Binding{Name: "quit", Key: tcell.KeyRune, Rune: 'q', Help: "quit", Handler: a.Stop})
	r.MustBind(keys.Global, keys.Binding{Name: "search", Key: tcell.KeyRune, Rune: 's', Help: "search", Handler: a.showSearch})
	r.MustBind(keys.Global, keys.Binding{Name: "help", Key: tcell.KeyRune, Rune: '?', Help: "help", Handler: func() { a.pages.SwitchToPage("help") }})
	r.MustBind(keys.Global, keys.Binding{Name: "command", Key: tcell.KeyRune, Rune: ':', Help: "command", Handler: a.showCommand})
	r.MustBind("chat", keys.Binding{Name: "compose", Key: tcell.KeyRune, Rune: 'i', Help: "write", Handler: func() { a.app.SetFocus(a.composer.InputField) }})
	r.MustBind("chat", keys.Binding{Name: "details", Key: tcell.KeyRune, Rune: 'd', Help: "details", Handler: a.showDetails})
	r.MustBind("chat", keys.Binding{Name: "older", Key: tcell.KeyRune, Rune: 'o', Help: "older", Handler: func() { a.do("Load", a.vm.LoadOlder) }})
}

func (a *App) setupCallbacks() {
	a.chatList.SetSelectedFunc(func(row, col int) {
		if id := a.chatList.SelectedConversation(); id != "" {
			a.openConversation(id)
		}
	})

	a.chatList.SetSelectionChangedFunc(func(row, col int) {
		a.requestTrust()
	})

	a.composer.SetOnSend(func(text string) {
		a.do("Send", func(ctx context.Context) error { return a.vm.Send(ctx, text) })
	})
	a.composer.SetOnTyping(func(typing bool) {
		if a.vm.ActiveID() == "" {
			return
		}
		a.do("Typing", func(ctx context.Context) error { return a.vm.Typing(ctx, typing) })
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
			defer cancel()
			hits, err := a.vm.Search(ctx, query)
			if err != nil {
				a.flash("Search failed: " + err.Error())
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(query, hits, a.conversationName)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})
	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		if hit, ok := a.searchV.SelectedHit(); ok {
			a.openConversation(hit.ConversationID)
		}
	})

	a.cmdInput.SetDoneFunc(func(key tcell.Key) {
		input := a.cmdInput.GetText()
		a.hideCommand()
		if key == tcell.KeyEnter && strings.TrimSpace(input) != "" {
			a.runCommand(ParseCommand(input))
		}
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("chats", a.chatList, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)
	a.pages.AddPage("search", a.searchV, true, false)
	a.pages.AddPage("details", a.info, true, false)
	a.pages.AddPage("help", a.help, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.cmdInput, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()
		focused := a.app.GetFocus()

		if event.Key() == tcell.KeyEscape {
			if focused == a.cmdInput {
				return event
			}
			switch currentPage {
			case "chat":
				a.vm.Close()
				a.pages.SwitchToPage("chats")
				a.app.SetFocus(a.chatList)
				return nil
			case "details", "help":
				if a.vm.ActiveID() != "" {
					a.pages.SwitchToPage("chat")
					a.app.SetFocus(a.msgView)
				} else {
					a.pages.SwitchToPage("chats")
					a.app.SetFocus(a.chatList)
				}
				return nil
			case "search":
				a.pages.SwitchToPage("chats")
				a.app.SetFocus(a.chatList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.pages.SwitchToPage("help")
	case "search":
		a.showSearch()
		if cmd.Args != "" {
			a.searchV.Input().SetText(cmd.Args)
		}
	case "refresh":
		a.do("Refresh", a.vm.Refresh)
	case "more":
		a.do("Load", a.vm.LoadOlder)
	case "upload":
		path, title, _ := strings.Cut(cmd.Args, " ")
		a.do("Upload", func(ctx context.Context) error { return a.vm.Upload(ctx, path, strings.TrimSpace(title)) })
	case "download":
		a.do("Download", func(ctx context.Context) error { return a.vm.Download(ctx, cmd.Args) })
	case "retry":
		a.do("Retry", func(ctx context.Context) error { return a.vm.Retry(ctx, cmd.Args) })
	case "mute", "unmute":
		muted := cmd.Name == "mute"
		a.do("Mute", func(ctx context.Context) error { return a.vm.Mute(ctx, muted) })
	case "leave":
		a.do("Leave", a.vm.Leave)
		a.pages.SwitchToPage("chats")
		a.app.SetFocus(a.chatList)
	case "start":
		a.do("Start", func(ctx context.Context) error { return a.vm.Start(ctx, cmd.Args) })
	default:
		a.vm.Flash.SetError(fmt.Sprintf("Unknown command %q", cmd.Name), flashDuration)
		a.showFlash()
	}
}

// do runs fn off the UI goroutine and flashes its error.
func (a *App) do(what string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.flash(what + " failed: " + err.Error())
		}
	}()
}

// requestTrust asks for the untrusted conversations on screen to be
// unboxed. It runs on the UI goroutine.
func (a *App) requestTrust() {
	ids := a.chatList.Visible()
	a.do("Unbox", func(ctx context.Context) error { return a.vm.RequestTrust(ctx, ids) })
}

// flash reports a failure from a background goroutine.
func (a *App) flash(msg string) {
	a.vm.Flash.SetError(msg, flashDuration)
	a.app.QueueUpdateDraw(a.showFlash)
}

func (a *App) showFlash() {
	msg, level := a.vm.Flash.Current()
	a.statusBar.SetFlash(msg, level == model.FlashError)
}

func (a *App) openConversation(id string) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		if err := a.vm.Open(ctx, id); err != nil {
			a.flash("Open failed: " + err.Error())
			return
		}
		name := id
		if c, ok := a.vm.GetConversation(id); ok {
			name = views.DisplayName(c)
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetChatName(name)
			a.msgView.Update(a.vm.GetMessages())
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.msgView)
		})
	}()
}

func (a *App) conversationName(id string) string {
	if c, ok := a.vm.GetConversation(id); ok {
		return views.DisplayName(c)
	}
	return id
}

func (a *App) showSearch() {
	a.pages.SwitchToPage("search")
	a.app.SetFocus(a.searchV.Input())
}

func (a *App) showDetails() {
	c, ok := a.vm.GetConversation(a.vm.ActiveID())
	if !ok {
		return
	}
	a.info.Update(c)
	a.pages.SwitchToPage("details")
}

func (a *App) showCommand() {
	a.prevFocus = a.app.GetFocus()
	a.cmdInput.SetText("")
	a.root.ResizeItem(a.cmdInput, 1, 0)
	a.app.SetFocus(a.cmdInput)
}

func (a *App) hideCommand() {
	a.root.ResizeItem(a.cmdInput, 0, 0)
	if a.prevFocus != nil {
		a.app.SetFocus(a.prevFocus)
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.refresh(model.RefreshStatus | model.RefreshConversations)
		ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
		defer cancel()
		if err := a.vm.SetFocus(ctx, true); err != nil {
			a.flash("Focus failed: " + err.Error())
		}
	}()
	go a.watchEvents()

	return a.app.Run()
}

// watchEvents follows the daemon's event stream and reconnects until the
// app stops.
func (a *App) watchEvents() {
	for {
		err := a.daemon.WatchEvents(a.ctx, "", func(evt api.Event) error {
			if r := a.vm.Classify(evt); r != 0 {
				a.refresh(r)
			}
			return nil
		})
		if err != nil {
			a.flash("Event stream: " + err.Error())
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(watchRetry):
		}
	}
}

// refresh reloads the invalidated parts and redraws them.
func (a *App) refresh(r model.Refresh) {
	ctx, cancel := context.WithTimeout(a.ctx, requestTimeout)
	defer cancel()
	if r&model.RefreshStatus != 0 {
		_ = a.vm.LoadStatus(ctx)
	}
	if r&model.RefreshConversations != 0 {
		_ = a.vm.LoadConversations(ctx)
	}
	if r&model.RefreshMessages != 0 {
		_ = a.vm.LoadMessages(ctx)
	}
	a.app.QueueUpdateDraw(func() {
		if r&model.RefreshStatus != 0 {
			st := a.vm.GetStatus()
			a.statusBar.SetStatus(st.Status)
			a.statusBar.SetLoading(st.Loading)
		}
		if r&model.RefreshConversations != 0 {
			a.chatList.Update(a.vm.GetConversations())
			a.requestTrust()
		}
		if r&model.RefreshMessages != 0 {
			a.msgView.Update(a.vm.GetMessages())
		}
		page, _ := a.pages.GetFrontPage()
		a.statusBar.SetHints(a.registry.Hints(page))
		a.showFlash()
	})
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = a.vm.SetFocus(ctx, false)
	cancel()
	a.cancel()
	a.app.Stop()
}
