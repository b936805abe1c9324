package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options holds the global flags and groups the sub-commands. Struct tags
// are interpreted by github.com/jessevdk/go-flags.
type Options struct {
	DataDir  string `long:"data-dir" description:"directory holding characters.json and system_prompts.json"`
	EnvFile  string `long:"env-file" default:".env" description:"dotenv file loaded before reading configuration"`
	LogLevel string `long:"log-level" description:"zerolog level (debug, info, warn, error)"`

	Serve  ServeCmd  `command:"serve" description:"Start the HTTP API and web chat"`
	Bot    BotCmd    `command:"bot" description:"Run the Discord bot"`
	Models ModelsCmd `command:"models" description:"List the model table by provider"`
}

func newParser(opts *Options) *flags.Parser {
	opts.Serve.root = opts
	opts.Bot.root = opts
	opts.Models.root = opts
	return flags.NewParser(opts, flags.Default)
}

// load reads the env file and configuration, applying flag overrides.
func (o *Options) load() *config.Config {
	config.LoadEnvFile(o.EnvFile)
	cfg := config.Load()
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return cfg
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// ServeCmd starts the HTTP server.
// Usage: relay serve --port 5001
type ServeCmd struct {
	Port int `short:"p" long:"port" description:"listen port (overrides RELAY_PORT)"`

	root *Options
}

func (s *ServeCmd) Execute(_ []string) error {
	cfg := s.root.load()
	if s.Port > 0 {
		cfg.Port = s.Port
	}
	log.Info().Str("version", cfg.Version).Msg("🎭 Persona relay starting...")

	ctx, stop := signalContext()
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize server")
		return err
	}
	defer srv.Close(context.Background())
	return srv.ListenAndServe(ctx)
}

// BotCmd runs the Discord bot until interrupted.
type BotCmd struct {
	root *Options
}

func (b *BotCmd) Execute(_ []string) error {
	cfg := b.root.load()
	log.Info().Str("version", cfg.Version).Msg("🎭 Persona bot starting...")

	ctx, stop := signalContext()
	defer stop()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize bot")
		return err
	}
	defer srv.Close(context.Background())
	if err := srv.Bot().Run(ctx); err != nil {
		log.Error().Err(err).Msg("Bot stopped")
		return err
	}
	return nil
}

// ModelsCmd prints the model table.
type ModelsCmd struct {
	root *Options
}

func (m *ModelsCmd) Execute(_ []string) error {
	m.root.load()
	cat := catalog.Default()
	groups := cat.ListByProvider()
	for _, p := range cat.Providers() {
		fmt.Fprintf(os.Stdout, "%s:\n", p.DisplayName())
		for _, name := range groups[p] {
			entry, _ := cat.Resolve(name)
			fmt.Fprintf(os.Stdout, "  %-28s %s\n", name, entry.WireModelID)
		}
	}
	return nil
}
