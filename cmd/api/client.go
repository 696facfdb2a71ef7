package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"messenger-be/internal/client"
	"messenger-be/internal/events"
	"messenger-be/internal/models"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// clientConfig is read by the client commands, not by the server.
type clientConfig struct {
	URL      string `envconfig:"MESSENGER_URL" default:"http://localhost:8084"`
	Email    string `envconfig:"MESSENGER_EMAIL" required:"true"`
	Password string `envconfig:"MESSENGER_PASSWORD" required:"true"`
	Colours  bool   `envconfig:"MESSENGER_COLOURS" default:"true"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`
}

func loadClientConfig() (clientConfig, error) {
	var cfg clientConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return clientConfig{}, fmt.Errorf("client config error: %w", err)
	}
	return cfg, nil
}

func login(ctx context.Context, cfg clientConfig) (*client.API, client.Session, error) {
	api := client.NewAPI(cfg.URL, nil)
	sess, err := api.Login(ctx, cfg.Email, cfg.Password)
	if err != nil {
		return nil, client.Session{}, fmt.Errorf("login: %w", err)
	}
	return api.WithToken(sess.AccessToken), sess, nil
}

func socketURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://") + "/ws"
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://") + "/ws"
	default:
		return base + "/ws"
	}
}

func newConversationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "conversations",
		Short: "List the signed-in user's conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadClientConfig()
			if err != nil {
				return err
			}
			api, sess, err := login(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			convs, err := api.ListConversations(cmd.Context())
			if err != nil {
				return err
			}
			renderConversations(cmd.OutOrStdout(), convs, sess.User)
			return nil
		},
	}
}

func newWatchCommand() *cobra.Command {
	var open string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow realtime events for the signed-in user",
		Long: `Follow the user channel, the presence channel and optionally one open
conversation, printing every event as it is reconciled. The open conversation
is marked seen as new messages arrive.

Example:
  MESSENGER_EMAIL=alice@example.com MESSENGER_PASSWORD=secret123 messenger watch
  messenger watch --open 0b6c...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd.Context(), cmd.OutOrStdout(), open)
		},
	}
	cmd.Flags().StringVar(&open, "open", "", "conversation id to keep open")
	return cmd
}

func runWatch(parent context.Context, out io.Writer, open string) error {
	cfg, err := loadClientConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, sess, err := login(ctx, cfg)
	if err != nil {
		return err
	}
	sock, err := client.Dial(ctx, socketURL(cfg.URL), sess.AccessToken, log)
	if err != nil {
		return err
	}
	defer sock.Close()

	printer := eventPrinter{out: out, colours: cfg.Colours}
	navigated := make(chan string, 1)
	list, err := client.OpenConversationList(ctx, api, sock, sess.User, client.ViewOptions{
		Log:     log,
		OnEvent: printer.print,
		OnNavigate: func(id string) {
			select {
			case navigated <- id:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer list.Close()

	active, err := client.OpenActiveList(ctx, sock)
	if err != nil {
		return err
	}
	defer active.Close()

	var view *client.ConversationView
	if open != "" {
		view, err = client.OpenConversation(ctx, api, sock, open, client.ViewOptions{Log: log, OnEvent: printer.print})
		if err != nil {
			return err
		}
		list.SetOpen(open)
	}
	defer func() {
		if view != nil {
			_ = view.Close()
		}
	}()

	renderConversations(out, list.Conversations(), sess.User)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sock.Done():
			return fmt.Errorf("connection lost")
		case id := <-navigated:
			fmt.Fprintln(out, printer.paint(color.FgRed, "conversation "+id+" was deleted, closing it"))
			if view != nil {
				_ = view.Close()
				view = nil
			}
		case <-ticker.C:
			fmt.Fprintf(out, "%d user(s) online\n", len(active.Members()))
		}
	}
}

type eventPrinter struct {
	out     io.Writer
	colours bool
}

func (p eventPrinter) paint(c color.Color, s string) string {
	if !p.colours {
		return s
	}
	return color.New(c, color.OpBold).Render(s)
}

func (p eventPrinter) print(e events.Event) {
	var line string
	switch ev := e.(type) {
	case events.MessageCreated:
		line = p.paint(color.FgGreen, string(e.Name())) + " " + describeMessage(ev.Message)
	case events.MessageChanged:
		line = p.paint(color.FgCyan, string(e.Name())) + fmt.Sprintf(" %s seen by %d", ev.Message.ID, len(ev.Message.Seen))
	case events.ConversationCreated:
		line = p.paint(color.FgYellow, string(e.Name())) + " " + conversationTitle(ev.Conversation)
	case events.ConversationChanged:
		line = p.paint(color.FgCyan, string(e.Name())) + fmt.Sprintf(" %s +%d message(s)", ev.Patch.ConversationID, len(ev.Patch.Messages))
	case events.ConversationRemoved:
		line = p.paint(color.FgRed, string(e.Name())) + " " + conversationTitle(ev.Conversation)
	default:
		line = string(e.Name())
	}
	fmt.Fprintln(p.out, line)
}

func describeMessage(m models.Message) string {
	body := lo.FromPtr(m.Body)
	if body == "" && m.Image != nil {
		body = "[image]"
	}
	return fmt.Sprintf("%s <%s> %s", m.ConversationID, m.Sender.Name, body)
}

func conversationTitle(c models.Conversation) string {
	if c.Name != nil {
		return fmt.Sprintf("%s %q", c.ID, *c.Name)
	}
	names := lo.Map(c.Users, func(u models.User, _ int) string { return u.Name })
	return fmt.Sprintf("%s (%s)", c.ID, strings.Join(names, ", "))
}

func renderConversations(w io.Writer, convs []models.Conversation, me models.User) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Title", "Members", "Last message", "At", "Seen"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, c := range convs {
		title := lo.FromPtr(c.Name)
		if !c.IsGroup {
			other, _ := lo.Find(c.Users, func(u models.User) bool { return u.ID != me.ID })
			title = other.Name
		}
		last, seen := "", ""
		if m, ok := c.LastMessage(); ok {
			last = lo.FromPtr(m.Body)
			if last == "" && m.Image != nil {
				last = "[image]"
			}
			seen = lo.Ternary(m.SeenBy(me.ID), "yes", "no")
		}
		table.Append([]string{
			c.ID,
			title,
			fmt.Sprintf("%d", len(c.Users)),
			last,
			c.LastMessageAt.Local().Format(time.DateTime),
			seen,
		})
	}
	table.Render()
}
