// Package server wires the relay's components into a ready-to-run process.
//
// Both the HTTP server and the Discord bot are built from the same Server:
//
//	srv, err := server.New(ctx, config.Load())
//	defer srv.Close(ctx)
//	err = srv.ListenAndServe(ctx)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/api"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/api/handlers"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/chat"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/commands"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/discord"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/retention"
	modelrouter "github.com/liammagee/six-authors-in-search-of-a-character/internal/router"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/sessions"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/store"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/telemetry"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/usage"

	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 15 * time.Second

// Server holds the initialized relay.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	Config     *config.Config
	Router     *modelrouter.ModelRouter
	Chat       *chat.Service
	Dispatcher *commands.Dispatcher
	Ledger     *usage.Ledger

	shutdown telemetry.Shutdown
}

// New initializes every component from cfg. On error, anything already
// started is shut down again.
func New(ctx context.Context, cfg *config.Config) (srv *Server, err error) {
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if err != nil {
			if serr := shutdown(context.Background()); serr != nil {
				log.Warn().Err(serr).Msg("Telemetry shutdown failed")
			}
		}
	}()

	cat := catalog.Default()
	mr := modelrouter.NewModelRouter(cat, modelrouter.OptionsFromConfig(cfg.Providers))
	log.Info().Int("models", len(cat.Names())).Msg("✅ Model Router initialized")

	js, err := store.NewJSONStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}
	log.Info().Str("dir", js.Dir()).Msg("✅ JSON store initialized")

	convs := sessions.NewStore()
	reg, err := personas.NewRegistry(cat, js, convs)
	if err != nil {
		return nil, err
	}
	prompts, err := personas.NewPromptBook(js)
	if err != nil {
		return nil, err
	}

	var (
		sink   usage.Sink
		sqlite *usage.SQLiteSink
	)
	if cfg.Usage.DBPath != "" {
		sqlite, err = usage.OpenSQLite(cfg.Usage.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open usage db: %w", err)
		}
		sink = sqlite
		log.Info().Str("path", cfg.Usage.DBPath).Msg("✅ Usage ledger on SQLite")
	}
	ledger, err := usage.NewLedger(ctx, sink)
	if err != nil {
		if sink != nil {
			sink.Close()
		}
		return nil, err
	}
	if sqlite != nil {
		startJanitor(ctx, cfg.Usage, sqlite)
	}

	svc := chat.NewService(chat.Deps{
		Completer: mr,
		Sessions:  convs,
		Personas:  reg,
		Prompts:   prompts,
		Ledger:    ledger,
	}, cfg.Chat, cfg.Web)
	dispatcher := commands.NewDispatcher(svc, cat, cfg.Discord.CommandPrefix, cfg.Discord.ChannelName)

	h := handlers.New(svc, mr)
	return &Server{
		Handler:    api.NewRouter(cfg, h),
		Config:     cfg,
		Router:     mr,
		Chat:       svc,
		Dispatcher: dispatcher,
		Ledger:     ledger,
		shutdown:   shutdown,
	}, nil
}

// startJanitor ages out old usage rows in the background until ctx is done.
func startJanitor(ctx context.Context, cfg config.UsageConfig, src retention.Source) {
	if cfg.Retention <= 0 {
		return
	}
	var archiver retention.Archiver
	if cfg.ArchiveDir != "" {
		archiver = retention.NewLocalFileArchiver(cfg.ArchiveDir, cfg.ArchiveCompress)
	}
	j := retention.NewJanitor(src, cfg.Retention, cfg.RetentionInterval, archiver, retention.Mode(cfg.ArchiveMode))
	go j.Start(ctx)
}

// ListenAndServe serves HTTP on cfg.Port until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Config.Port),
		Handler:      s.Handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.Config.Providers.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.Config.Port).Msg("🔥 Relay is listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("🛑 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// Bot returns a Discord bot driven by this server's command layer.
func (s *Server) Bot() *discord.Bot {
	return discord.New(s.Config.Discord, s.Dispatcher)
}

// Close releases the usage ledger and flushes telemetry.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.Ledger != nil {
		errs = append(errs, s.Ledger.Close())
	}
	if s.shutdown != nil {
		errs = append(errs, s.shutdown(ctx))
	}
	return errors.Join(errs...)
}
