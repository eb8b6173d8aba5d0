package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"chatcore/internal/app"
	"chatcore/internal/client"
	"chatcore/internal/config"
	"chatcore/internal/identity"
	"chatcore/internal/session"
	"chatcore/internal/store"
	"chatcore/internal/types"
)

const usageText = `chatcore is a terminal client for a streaming support agent.

Usage:
  chatcore <command> [flags]

Commands:
  chat     open the interactive chat UI
  send     send one message and print the reply
  history  show an archived conversation transcript
  reset    discard the current conversation
  whoami   print the resolved user and session ids
  help     show help

Flags:
  -h, --help   show help

Send flags:
  --email   verified email for a stable identity

Examples:
  chatcore chat
  chatcore send "Where is my order?"
  chatcore history --session <id>
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	case "chat":
		exitOnErr("chat", runChat(args[1:]))
	case "send":
		exitOnErr("send", runSend(args[1:]))
	case "history":
		exitOnErr("history", runHistory(args[1:]))
	case "reset":
		exitOnErr("reset", runReset(args[1:]))
	case "whoami":
		exitOnErr("whoami", runWhoami(args[1:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func loadConfig() (config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
	return cfg, log, nil
}

type engineHandles struct {
	engine  *session.Orchestrator
	archive *store.BoltTranscriptStore
}

func (h *engineHandles) Close() {
	h.engine.Close()
	_ = h.archive.Close()
}

func buildEngine(cfg config.Config, log zerolog.Logger, email string) (*engineHandles, error) {
	identityPath, err := config.IdentityPath()
	if err != nil {
		return nil, err
	}
	archivePath, err := config.ArchivePath()
	if err != nil {
		return nil, err
	}
	archive, err := store.OpenBoltTranscriptStore(archivePath)
	if err != nil {
		return nil, err
	}

	if email == "" {
		email = cfg.Email()
	}
	resolver := identity.NewResolver(store.NewFileIdentityStore(identityPath), log)
	backend := client.New(cfg.BaseURL(), cfg.AppName(), log)

	engine := session.New(session.Options{
		Backend:        backend,
		Identity:       resolver,
		Archive:        archive,
		Logger:         log,
		WelcomeMessage: cfg.WelcomeMessage(),
		Email:          email,
	})
	return &engineHandles{engine: engine, archive: archive}, nil
}

func runChat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	email := fs.String("email", "", "verified email for a stable identity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	handles, err := buildEngine(cfg, log, *email)
	if err != nil {
		return err
	}
	defer handles.Close()

	return app.Run(handles.engine)
}

func runSend(args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	email := fs.String("email", "", "verified email for a stable identity")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("send requires a message")
	}
	text := fs.Arg(0)

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	handles, err := buildEngine(cfg, log, *email)
	if err != nil {
		return err
	}
	defer handles.Close()
	engine := handles.engine

	ctx := context.Background()
	engine.Start(ctx)
	// Non-interactive sends always continue the stored conversation.
	if engine.Snapshot().HasPendingRecovery {
		engine.ConfirmRecovery(ctx)
	}
	before := len(engine.Snapshot().Messages)
	if err := engine.SendMessage(ctx, text); err != nil {
		return err
	}

	state := engine.Snapshot()
	for _, msg := range state.Messages[before:] {
		if msg.Role == types.RoleUser {
			continue
		}
		fmt.Fprintln(os.Stdout, msg.Text)
		for _, p := range msg.Products {
			fmt.Fprintf(os.Stdout, "  - %s %s %s\n", p.Name, productPrice(p), p.URL)
		}
	}
	if state.Status == types.StatusHumanMode {
		fmt.Fprintln(os.Stdout, "(a human agent is handling this conversation)")
	}
	return nil
}

func productPrice(p types.Product) string {
	if p.PriceLabel != "" {
		return p.PriceLabel
	}
	if p.Price != "" {
		return "$" + p.Price
	}
	return ""
}

func runHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	sessionID := fs.String("session", "", "session id (defaults to the stored session)")
	list := fs.Bool("list", false, "list archived session ids")
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, log, err := loadConfig()
	if err != nil {
		return err
	}
	archivePath, err := config.ArchivePath()
	if err != nil {
		return err
	}
	archive, err := store.OpenBoltTranscriptStore(archivePath)
	if err != nil {
		return err
	}
	defer archive.Close()

	ctx := context.Background()
	if *list {
		ids, err := archive.Sessions(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(os.Stdout, id)
		}
		return nil
	}

	id := *sessionID
	if id == "" {
		identityPath, err := config.IdentityPath()
		if err != nil {
			return err
		}
		stored, err := store.NewFileIdentityStore(identityPath).Load(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("identity load failed")
		}
		id = stored.SessionID
	}
	if id == "" {
		return errors.New("no session to show; pass --session or --list")
	}

	messages, err := archive.List(ctx, id)
	if err != nil {
		return err
	}
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	for _, msg := range messages {
		ts := ""
		if !msg.Timestamp.IsZero() {
			ts = msg.Timestamp.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", ts, msg.Role, msg.Text)
	}
	return writer.Flush()
}

func runReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, log, err := loadConfig()
	if err != nil {
		return err
	}
	identityPath, err := config.IdentityPath()
	if err != nil {
		return err
	}
	archivePath, err := config.ArchivePath()
	if err != nil {
		return err
	}

	ctx := context.Background()
	idStore := store.NewFileIdentityStore(identityPath)
	stored, err := idStore.Load(ctx)
	if err != nil {
		return err
	}
	if err := identity.NewResolver(idStore, log).ClearSession(ctx); err != nil {
		return err
	}
	if stored.SessionID != "" {
		archive, err := store.OpenBoltTranscriptStore(archivePath)
		if err != nil {
			return err
		}
		defer archive.Close()
		if err := archive.Clear(ctx, stored.SessionID); err != nil {
			return err
		}
	}
	fmt.Fprintln(os.Stdout, "ok")
	return nil
}

func runWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	email := fs.String("email", "", "verified email for a stable identity")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	identityPath, err := config.IdentityPath()
	if err != nil {
		return err
	}
	resolved := *email
	if resolved == "" {
		resolved = cfg.Email()
	}

	id := identity.NewResolver(store.NewFileIdentityStore(identityPath), log).Resolve(context.Background(), resolved)
	fmt.Fprintf(os.Stdout, "user:    %s\n", id.UserID)
	if id.SessionID != "" {
		fmt.Fprintf(os.Stdout, "session: %s\n", id.SessionID)
	}
	return nil
}

func exitOnErr(label string, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s error: %v\n", label, err)
	os.Exit(1)
}
