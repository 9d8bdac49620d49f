// photochat - terminal client for the photo sharing app's chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/photochat/internal/api"
	"github.com/jeranaias/photochat/internal/chat"
	"github.com/jeranaias/photochat/internal/cli"
	"github.com/jeranaias/photochat/internal/config"
	"github.com/jeranaias/photochat/internal/identity"
	"github.com/jeranaias/photochat/internal/model"
	"github.com/jeranaias/photochat/internal/pushchannel"
	"github.com/jeranaias/photochat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg, args.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case cli.CmdChat:
		err = runChat(ctx, cfg, logger, args)
	case cli.CmdLogin:
		err = withStore(cfg, logger, func(store storage.Store) error {
			return cli.HandleLogin(ctx, store, args)
		})
	case cli.CmdLogout:
		err = withStore(cfg, logger, func(store storage.Store) error {
			return cli.HandleLogout(ctx, store)
		})
	case cli.CmdWhoami:
		err = withStore(cfg, logger, func(store storage.Store) error {
			return cli.HandleWhoami(ctx, store, logger)
		})
	case cli.CmdConfig:
		err = cli.HandleConfig(args)
	case cli.CmdVersion:
		fmt.Printf("photochat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
	case cli.CmdHelp:
		cli.PrintUsage()
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// WIRING
// =============================================================================

func newLogger(cfg *config.Config, verbose bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// openStore opens the on-disk cache, falling back to memory when it cannot
// be opened so the client still runs.
func openStore(cfg *config.Config, logger zerolog.Logger) storage.Store {
	if cfg.Cache.InMemory {
		return storage.NewMemoryStore()
	}

	path := cfg.Cache.Path
	if path == "" {
		defaultPath, err := config.DefaultCachePath()
		if err != nil {
			logger.Warn().Err(err).Msg("no home directory, using in-memory cache")
			return storage.NewMemoryStore()
		}
		path = defaultPath
	}

	store, err := storage.OpenSQLiteStore(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("cache unavailable, using in-memory store")
		return storage.NewMemoryStore()
	}
	return store
}

func withStore(cfg *config.Config, logger zerolog.Logger, fn func(storage.Store) error) error {
	store := openStore(cfg, logger)
	defer store.Close()
	return fn(store)
}

func newResolver(store storage.Store, logger zerolog.Logger) *identity.Resolver {
	return identity.NewResolver(logger,
		&identity.ProfileSource{Store: store},
		&identity.LegacyKeySource{Store: store},
		&identity.TokenSource{Store: store},
	)
}

func tokenProvider(store storage.Store) api.TokenProvider {
	return func(ctx context.Context) string {
		raw, err := store.Get(ctx, storage.KeyAccessToken)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(raw))
	}
}

// =============================================================================
// CHAT LOOP
// =============================================================================

func runChat(ctx context.Context, cfg *config.Config, logger zerolog.Logger, args cli.Args) error {
	if args.Email == "" && args.UserID == "" && args.ChatID == "" {
		return fmt.Errorf("chat needs --email <addr>, --user <id>, or --chat <id>")
	}

	store := openStore(cfg, logger)
	defer store.Close()

	resolver := newResolver(store, logger)
	token := tokenProvider(store)
	client := api.NewClient(cfg.Backend.BaseURL, token, logger)

	header := http.Header{}
	if t := token(ctx); t != "" {
		header.Set("Authorization", "Bearer "+t)
	}
	transport := &pushchannel.WebSocketTransport{
		Header:           header,
		HandshakeTimeout: time.Duration(cfg.Push.HandshakeTimeoutSecs) * time.Second,
	}
	push := pushchannel.NewManager(transport, cfg.Push.URL, logger)
	defer push.Close()

	// Hot-reload the log level while a chat is open.
	if tomlPath, err := config.ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			watcher, werr := config.NewWatcher(tomlPath, func(next *config.Config) {
				if level, perr := zerolog.ParseLevel(next.Log.Level); perr == nil {
					zerolog.SetGlobalLevel(level)
					logger.Info().Str("level", next.Log.Level).Msg("log level updated")
				}
			})
			if werr == nil && watcher.Watch() == nil {
				defer watcher.Close()
			}
		}
	}

	printer := newPrinter()
	var session *chat.Session
	session = chat.NewSession(resolver, client, push, chat.Callbacks{
		OnMessagesChanged: func() { printer.flush(session) },
		OnTypingChanged: func(typing bool) {
			if typing {
				fmt.Println("* peer is typing...")
			} else {
				fmt.Println("* peer stopped typing")
			}
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("session error")
		},
	}, logger).WithPageSize(cfg.Backend.PageSize)

	target := chat.Target{
		ChatID:   args.ChatID,
		Identity: model.Identity(args.UserID),
		Email:    args.Email,
	}
	if err := session.Start(ctx, target); err != nil {
		return err
	}
	defer session.Close()

	fmt.Printf("Connected to chat %s. /older for history, /quit to leave.\n", session.ChatID())

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			switch strings.TrimSpace(line) {
			case "/quit", "/q":
				return nil
			case "/older":
				if !session.HasMoreHistory() {
					fmt.Println("* no older history")
					continue
				}
				if err := session.LoadOlder(ctx); err != nil {
					logger.Warn().Err(err).Msg("history load failed")
				}
			case "":
				continue
			default:
				// Stdin is line buffered, so the typing signal fires once
				// per submitted line rather than per keystroke.
				session.KeyPressed()
				if err := session.Send(line); err != nil {
					logger.Warn().Err(err).Msg("send failed")
				}
			}
		}
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

// printer renders messages appended to the log since the last flush.
type printer struct {
	mu      sync.Mutex
	printed map[string]struct{}
}

func newPrinter() *printer {
	return &printer{printed: make(map[string]struct{})}
}

func (p *printer) flush(session *chat.Session) {
	if session == nil {
		return
	}
	msgs := session.Messages()

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range msgs {
		if _, done := p.printed[msgs[i].ID]; done {
			continue
		}
		p.printed[msgs[i].ID] = struct{}{}
		p.print(session, &msgs[i])
	}
}

func (p *printer) print(session *chat.Session, msg *model.Message) {
	who := "them"
	if session.Mine(msg) {
		who = "you"
	}
	stamp := ""
	if !msg.CreatedAt.IsZero() {
		stamp = msg.CreatedAt.Local().Format("15:04") + " "
	}
	fmt.Printf("%s[%s] %s\n", stamp, who, msg.Text)
}
