// Command ridechat is a terminal client for ride chats. It talks to the
// server's WebSocket hub, prints the chat as it changes and sends every line
// typed on stdin.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"campusride/pkg/chatsync"
	"campusride/pkg/envelope"
	"campusride/pkg/handlers"
	"campusride/pkg/hub"
	"campusride/pkg/logger"
	"campusride/pkg/models"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type options struct {
	url      string
	token    string
	logLevel string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "ridechat",
		Short:        "Chat about a ride from the terminal",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", envOr("RIDECHAT_URL", "ws://localhost:8082/ws"), "hub WebSocket URL")
	root.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("RIDECHAT_TOKEN"), "access token (or RIDECHAT_TOKEN)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "client log level")

	root.AddCommand(chatCmd(opts), rosterCmd(opts))
	return root
}

func chatCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <ride-id>",
		Short: "Open a ride chat and send each stdin line as a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rideID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid ride id: %w", err)
			}
			if opts.token == "" {
				return fmt.Errorf("a token is required")
			}
			return runChat(opts, rideID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func rosterCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "List your ride conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				return fmt.Errorf("a token is required")
			}
			return runRoster(opts, timeout, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the server")
	return cmd
}

func runChat(opts *options, rideID uuid.UUID, in io.Reader, out io.Writer) error {
	client := hub.NewClient(opts.url, opts.token, clientLogger(opts))
	view := newChatView(out)

	client.OnConnect(func() {
		if _, err := client.Request(handlers.ActionChatOpen, "chat", map[string]uuid.UUID{"ride_id": rideID}); err != nil {
			view.notice("open failed: %v", err)
		}
	})
	client.OnEnvelope(func(env envelope.Envelope) {
		view.handle(env)
	})
	go client.Connect()
	defer client.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-sig:
			client.Request(handlers.ActionChatClose, "chat", map[string]uuid.UUID{"ride_id": rideID})
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if line == "/quit" {
				client.Request(handlers.ActionChatClose, "chat", map[string]uuid.UUID{"ride_id": rideID})
				return nil
			}
			_, err := client.Request(handlers.ActionChatSend, "chat", map[string]interface{}{
				"ride_id": rideID,
				"content": line,
			})
			if err != nil {
				view.notice("not sent (%v), kept: %s", err, line)
			}
		}
	}
}

func runRoster(opts *options, timeout time.Duration, out io.Writer) error {
	client := hub.NewClient(opts.url, opts.token, clientLogger(opts))
	result := make(chan envelope.Envelope, 1)

	client.OnConnect(func() {
		client.Request(handlers.ActionChatRoster, "chat", nil)
	})
	client.OnEnvelope(func(env envelope.Envelope) {
		if env.RequestAction() == handlers.ActionChatRoster {
			select {
			case result <- env:
			default:
			}
		}
	})
	go client.Connect()
	defer client.Close()

	select {
	case env := <-result:
		if env.Failed() {
			return fmt.Errorf("server: %s", env.Error.Message)
		}
		rides, err := envelope.ParseData[[]models.ChatRide](env)
		if err != nil {
			return err
		}
		printRoster(out, rides)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("no answer from %s within %s", opts.url, timeout)
	}
}

func printRoster(out io.Writer, rides []models.ChatRide) {
	if len(rides) == 0 {
		fmt.Fprintln(out, "no conversations yet")
		return
	}
	for _, r := range rides {
		last := "(no messages)"
		if r.LastMessage != nil {
			last = r.LastMessage.Content
		}
		fmt.Fprintf(out, "%s  %s -> %s  with %s\n    %s\n",
			r.Ride.ID, r.Ride.Origin, r.Ride.Destination, r.PartnerName(), last)
	}
}

// chatView prints each message once, in the order the server delivers them.
type chatView struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[uuid.UUID]struct{}
}

func newChatView(out io.Writer) *chatView {
	return &chatView{out: out, seen: make(map[uuid.UUID]struct{})}
}

func (v *chatView) handle(env envelope.Envelope) {
	if env.Failed() {
		v.notice("%s: %s", env.RequestAction(), env.Error.Message)
		return
	}

	switch env.Action {
	case envelope.ResultOf(handlers.ActionChatOpen), handlers.EventChatSnapshot, handlers.EventChatMessage:
		u, err := envelope.ParseData[chatsync.Update](env)
		if err != nil {
			return
		}
		for _, m := range u.Messages {
			v.print(m)
		}
	case envelope.ResultOf(handlers.ActionChatSend):
		m, err := envelope.ParseData[models.Message](env)
		if err == nil {
			v.print(m)
		}
	case handlers.EventChatRemoved:
		u, err := envelope.ParseData[chatsync.Update](env)
		if err != nil {
			return
		}
		for _, m := range u.Messages {
			v.notice("message %s was deleted", m.ID)
		}
	}
}

func (v *chatView) print(m models.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[m.ID]; ok {
		return
	}
	v.seen[m.ID] = struct{}{}

	name := models.UnknownUserName
	if m.Sender != nil {
		name = m.Sender.FullName
	}
	line := fmt.Sprintf("[%s] %s: %s", m.CreatedAt.Local().Format("15:04"), name, m.Content)
	if m.Kind() == models.KindSystem {
		line = fmt.Sprintf("[%s] * %s", m.CreatedAt.Local().Format("15:04"), m.Content)
	}
	if phone, ok := m.DisclosedPhone(); ok {
		line += " (phone: " + phone + ")"
	}
	fmt.Fprintln(v.out, line)
}

func (v *chatView) notice(format string, args ...interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	fmt.Fprintf(v.out, "-- "+format+"\n", args...)
}

func clientLogger(opts *options) *logger.Logger {
	return logger.New(logger.Config{Level: opts.logLevel, Output: os.Stderr})
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
