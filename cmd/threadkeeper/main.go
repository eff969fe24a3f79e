package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/threadkeeper/threadkeeper/internal/config"
	"github.com/threadkeeper/threadkeeper/internal/discord"
	"github.com/threadkeeper/threadkeeper/internal/event"
	"github.com/threadkeeper/threadkeeper/internal/handler"
	"github.com/threadkeeper/threadkeeper/internal/linkage"
	"github.com/threadkeeper/threadkeeper/internal/server"
	"github.com/threadkeeper/threadkeeper/internal/ticket"
)

var version = "dev"

const defaultAddr = "127.0.0.1:8410"

func usage() {
	fmt.Fprintf(os.Stderr, `threadkeeper — mirrors pull request lifecycles into Discord

Usage:
  threadkeeper handle [flags]   Process one event (workflow-runner mode)
  threadkeeper serve  [flags]   Run the webhook server (default %s)

handle flags:
  --event     Event name (default: $GITHUB_EVENT_NAME)
  --payload   Path to the JSON payload (default: $GITHUB_EVENT_PATH)

serve flags:
  --addr      Address to listen on (default: %s)

shared flags:
  --config    Path to the YAML config file (channel, user mapping)
`, defaultAddr, defaultAddr)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	// Local development convenience; absent files are fine.
	_ = godotenv.Load()

	subcmd := os.Args[1]
	rest := os.Args[2:]

	var err error
	switch subcmd {
	case "handle":
		err = runHandle(rest)
	case "serve":
		err = runServe(rest)
	case "--version", "version":
		fmt.Println("threadkeeper " + version)
		return
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", subcmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "threadkeeper %s: %v\n", subcmd, err)
		os.Exit(1)
	}
}

func runHandle(args []string) error {
	eventName := os.Getenv("GITHUB_EVENT_NAME")
	payloadPath := os.Getenv("GITHUB_EVENT_PATH")
	configPath := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--event":
			if i+1 < len(args) {
				eventName = args[i+1]
				i++
			}
		case "--payload":
			if i+1 < len(args) {
				payloadPath = args[i+1]
				i++
			}
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		}
	}
	if eventName == "" || payloadPath == "" {
		return fmt.Errorf("event name and payload path are required (flags or GITHUB_EVENT_NAME / GITHUB_EVENT_PATH)")
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("reading payload %s: %w", payloadPath, err)
	}

	ev, err := event.Parse(eventName, payload)
	if errors.Is(err, event.ErrUnsupported) {
		logger.Info("ignoring event", "event", eventName)
		return nil
	}
	if err != nil {
		return err
	}

	h, err := buildHandler(configPath)
	if err != nil {
		return err
	}

	delivery := os.Getenv("GITHUB_DELIVERY")
	if delivery == "" {
		delivery = uuid.NewString()
	}
	logger.Info("handling event", "delivery", delivery, "event", eventName, "kind", ev.Kind(), "pr", ev.Pull().Number)
	return h.Dispatch(ctx, ev)
}

func runServe(args []string) error {
	addr := defaultAddr
	configPath := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			if i+1 < len(args) {
				addr = args[i+1]
				i++
			}
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		}
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	h, err := newHandler(cfg)
	if err != nil {
		return err
	}

	srv, err := server.New(addr, server.Config{
		Dispatcher:    h,
		WebhookSecret: cfg.WebhookSecret,
	})
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		srv.Close()
	}()

	logger.Info("listening", "addr", srv.Addr())
	if err := srv.Serve(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildHandler(configPath string) (*handler.Handler, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return newHandler(cfg)
}

func newHandler(cfg *config.Config) (*handler.Handler, error) {
	notifier, err := discord.New(cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("creating Discord client: %w", err)
	}

	var opts []ticket.Option
	if cfg.GitHub.BaseURL != "" {
		opts = append(opts, ticket.WithBaseURL(cfg.GitHub.BaseURL+"/"))
	}
	if cfg.GitHub.AppClientID != "" {
		opts = append(opts, ticket.WithAppAuth(ticket.AppCredentials{
			ClientID:       cfg.GitHub.AppClientID,
			InstallationID: cfg.GitHub.InstallationID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
		}))
	}
	tickets, err := ticket.New(cfg.GitHub.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating GitHub client: %w", err)
	}

	return handler.New(handler.Config{
		Notifier:  notifier,
		Tickets:   tickets,
		Links:     linkage.NewStore(tickets),
		ChannelID: cfg.ChannelID,
		UserIDs:   cfg.UserIDs,
	}), nil
}
