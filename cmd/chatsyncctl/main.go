package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/hako/durafmt"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/tui/client"
	"github.com/urfave/cli/v2"
)

const requestTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "chatsyncctl",
		Usage: "control a running chatsync daemon",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "session", Usage: "session name (overrides config default)"},
			&cli.BoolFlag{Name: "json", Usage: "output in JSON format"},
		},
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "Show daemon status",
				Action: cmdStatus,
			},
			{
				Name:    "conversations",
				Aliases: []string{"ls"},
				Usage:   "List conversations, newest first",
				Flags:   []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action:  cmdConversations,
			},
			{
				Name:      "messages",
				Usage:     "Show the cached thread of a conversation",
				ArgsUsage: "<conversation-id>",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "limit", Value: 50}},
				Action:    cmdMessages,
			},
			{
				Name:      "send",
				Usage:     "Send a text message",
				ArgsUsage: "<conversation-id> <text...>",
				Action:    cmdSend,
			},
			{
				Name:      "search",
				Usage:     "Search persisted messages",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "conversation", Usage: "restrict to one conversation"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: cmdSearch,
			},
			{
				Name:      "dispatch",
				Usage:     "Dispatch a raw command",
				ArgsUsage: "<type> [json-fields]",
				Action:    cmdDispatch,
			},
			{
				Name:      "watch",
				Usage:     "Stream daemon events until interrupted",
				ArgsUsage: "[namespace]",
				Action:    cmdWatch,
			},
			{
				Name:  "sessions",
				Usage: "List known sessions",
				Action: cmdSessions,
			},
			{
				Name:  "config",
				Usage: "Show or change the configuration",
				Subcommands: []*cli.Command{
					{Name: "show", Usage: "Print the configuration", Action: cmdConfigShow},
					{Name: "set", Usage: "Set a configuration key", ArgsUsage: "<key> <value>", Action: cmdConfigSet},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// withClient resolves the session and connects to its daemon.
func withClient(c *cli.Context, fn func(ctx context.Context, cl *client.Client) error) error {
	name := session.Resolve(c.String("session"))
	if err := session.ValidateName(name); err != nil {
		return err
	}
	cl, err := client.ForSession(name)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	defer func() { _ = cl.Close() }()

	ctx, cancel := context.WithTimeout(c.Context, requestTimeout)
	defer cancel()
	return fn(ctx, cl)
}

func cmdStatus(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		st, err := cl.Status(ctx)
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return outputJSON(st)
		}
		fmt.Printf("Session:       %s\n", st.Session)
		fmt.Printf("Status:        %s\n", st.Status)
		fmt.Printf("Uptime:        %s\n", durafmt.Parse(time.Duration(st.UptimeMs)*time.Millisecond).LimitFirstN(2))
		fmt.Printf("Conversations: %d\n", st.Conversations)
		if st.Selected != "" {
			fmt.Printf("Selected:      %s\n", st.Selected)
		}
		if len(st.Loading) > 0 {
			fmt.Printf("Loading:       %s\n", strings.Join(st.Loading, ", "))
		}
		if st.DroppedEvents > 0 {
			fmt.Printf("Dropped:       %d events\n", st.DroppedEvents)
		}
		return nil
	})
}

func cmdConversations(c *cli.Context) error {
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		list, err := cl.ListConversations(ctx, c.Int("limit"))
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return outputJSON(list)
		}
		if len(list.Conversations) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, conv := range list.Conversations {
			marker := " "
			if conv.ID == list.Selected {
				marker = "*"
			}
			fmt.Printf("%s %-24s %-10s %-30s %s\n", marker, conv.ID, conv.TrustState, conversationName(conv), age(conv.Timestamp))
		}
		return nil
	})
}

func cmdMessages(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("usage: chatsyncctl messages <conversation-id>", 1)
	}
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		msgs, err := cl.ListMessages(ctx, c.Args().First(), c.Int("limit"))
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return outputJSON(msgs)
		}
		for _, m := range msgs {
			body := m.Text
			if m.Attachment != nil {
				body = "[file] " + m.Attachment.FileName
			}
			state := ""
			if m.SendState != "sent" {
				state = " (" + m.SendState + ")"
			}
			fmt.Printf("%-8s %-16s %s%s\n", m.Ordinal, m.Author, body, state)
		}
		return nil
	})
}

func cmdSend(c *cli.Context) error {
	if c.Args().Len() < 2 {
		return cli.Exit("usage: chatsyncctl send <conversation-id> <text...>", 1)
	}
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		return cl.Dispatch(ctx, "MessageSend", api.Fields{
			"conversation_id": c.Args().First(),
			"text":            strings.Join(c.Args().Tail(), " "),
		})
	})
}

func cmdSearch(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("usage: chatsyncctl search <query>", 1)
	}
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		hits, err := cl.SearchMessages(ctx, strings.Join(c.Args().Slice(), " "), c.String("conversation"), c.Int("limit"))
		if err != nil {
			return err
		}
		if c.Bool("json") {
			return outputJSON(hits)
		}
		for _, h := range hits {
			fmt.Printf("%-24s %-16s %s\n", h.ConversationID, h.Sender, h.Snippet)
		}
		return nil
	})
}

func cmdDispatch(c *cli.Context) error {
	if c.Args().Len() < 1 {
		return cli.Exit("usage: chatsyncctl dispatch <type> [json-fields]", 1)
	}
	fields := api.Fields{}
	if raw := c.Args().Get(1); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return fmt.Errorf("parse fields: %w", err)
		}
	}
	return withClient(c, func(ctx context.Context, cl *client.Client) error {
		return cl.Dispatch(ctx, c.Args().First(), fields)
	})
}

func cmdWatch(c *cli.Context) error {
	name := session.Resolve(c.String("session"))
	if err := session.ValidateName(name); err != nil {
		return err
	}
	cl, err := client.ForSession(name)
	if err != nil {
		return err
	}
	defer func() { _ = cl.Close() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	return cl.WatchEvents(ctx, c.Args().First(), func(evt api.Event) error {
		if c.Bool("json") {
			return enc.Encode(evt)
		}
		fmt.Printf("%s %-24s %s\n", time.UnixMilli(evt.OccurredAtMs).Format("15:04:05.000"), evt.Kind, evt.Payload)
		return nil
	})
}

type sessionInfo struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Running bool   `json:"daemon_running"`
	PID     int    `json:"pid,omitempty"`
	Gateway string `json:"gateway,omitempty"`
}

func cmdSessions(c *cli.Context) error {
	names, err := session.List()
	if err != nil {
		return err
	}
	out := make([]sessionInfo, 0, len(names))
	for _, name := range names {
		info := sessionInfo{
			Name:    name,
			Path:    session.Dir(name),
			Running: alive(c.Context, name),
		}
		if info.Running {
			if holder, err := lock.Read(session.LockPath(name)); err == nil {
				info.PID, info.Gateway = holder.PID, holder.Gateway
			}
		}
		out = append(out, info)
	}
	if c.Bool("json") {
		return outputJSON(out)
	}
	if len(out) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	for _, s := range out {
		running := "stopped"
		if s.Running {
			running = fmt.Sprintf("running, pid %d", s.PID)
		}
		fmt.Printf("%-20s %s (%s)\n", s.Name, s.Path, running)
	}
	return nil
}

func alive(ctx context.Context, name string) bool {
	return client.Alive(ctx, session.SocketPath(name))
}

func cmdConfigShow(c *cli.Context) error {
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return outputJSON(cfg)
	}
	fmt.Printf("Path:            %s\n", session.ConfigPath())
	fmt.Printf("default_session: %s\n", cfg.DefaultSession)
	fmt.Printf("username:        %s\n", cfg.Username)
	fmt.Printf("device_name:     %s\n", cfg.DeviceName)
	fmt.Printf("gateway_addr:    %s\n", cfg.Gateway())
	fmt.Printf("constrained_ui:  %v\n", cfg.ConstrainedUI)
	fmt.Printf("download_dir:    %s\n", session.DownloadDir(cfg.DownloadDir))
	fmt.Printf("log_level:       %s\n", logging.LevelName(cfg.LogLevel))
	return nil
}

func cmdConfigSet(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return cli.Exit("usage: chatsyncctl config set <key> <value>", 1)
	}
	cfg, err := config.LoadOrDefault(session.ConfigPath())
	if err != nil {
		return err
	}
	key, value := c.Args().Get(0), c.Args().Get(1)
	switch key {
	case "default_session":
		if err := session.ValidateName(value); err != nil {
			return err
		}
		cfg.DefaultSession = value
	case "username":
		cfg.Username = value
	case "device_name":
		cfg.DeviceName = value
	case "gateway_addr":
		cfg.GatewayAddr = value
	case "download_dir":
		cfg.DownloadDir = value
	case "constrained_ui":
		cfg.ConstrainedUI = value == "true" || value == "1"
	case "log_level":
		if _, err := logging.ParseLevel(value); err != nil {
			return err
		}
		cfg.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return config.Save(session.ConfigPath(), cfg)
}

func conversationName(c api.Conversation) string {
	switch {
	case c.ChannelName != "":
		return c.TeamName + "#" + c.ChannelName
	case len(c.Participants) > 0:
		return strings.Join(c.Participants, ",")
	}
	return c.TLFName
}

func age(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return durafmt.Parse(time.Since(time.UnixMilli(ms))).LimitFirstN(1).String() + " ago"
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
