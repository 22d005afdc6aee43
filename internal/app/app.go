package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/wirechat-gateway/internal/backend/memory"
	"github.com/vovakirdan/wirechat-gateway/internal/config"
	"github.com/vovakirdan/wirechat-gateway/internal/core"
	"github.com/vovakirdan/wirechat-gateway/internal/store"
	"github.com/vovakirdan/wirechat-gateway/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirechat-gateway/internal/transport/http"
)

// App wires together the backend, the gateway core and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	backend         *memory.Backend
	cache           *core.ClientCache
	registry        *core.Registry
	journal         store.SessionJournal
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b, err := newBackend(cfg.Backend, logger)
	if err != nil {
		return nil, err
	}

	var journal store.SessionJournal
	if cfg.JournalPath != "" {
		j, err := sqlite.New(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		journal = j
		logger.Info().Str("journal_path", cfg.JournalPath).Msg("session journal initialized")
	} else {
		logger.Info().Msg("session journal disabled")
	}

	cache := core.NewClientCache(b, logger)
	registry := core.NewRegistry(cache, cfg.SessionOptions(), journal, logger)
	server := transporthttp.NewServer(registry, journal, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		backend:         b,
		cache:           cache,
		registry:        registry,
		journal:         journal,
		log:             logger,
	}, nil
}

func newBackend(cfg config.Backend, logger *zerolog.Logger) (*memory.Backend, error) {
	if cfg.Fixture == "" {
		logger.Warn().Msg("no backend fixture configured; starting with an empty memory backend")
		return memory.New(), nil
	}
	b, err := memory.LoadFixture(cfg.Fixture)
	if err != nil {
		return nil, fmt.Errorf("load backend fixture: %w", err)
	}
	logger.Info().Str("fixture", cfg.Fixture).Msg("memory backend loaded")
	return b, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Registry returns the session registry.
func (a *App) Registry() *core.Registry {
	return a.registry
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("gateway listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		return multierr.Append(err, a.Shutdown(context.Background()))
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		err := a.Shutdown(shutdownCtx)
		return multierr.Append(err, <-serverErr)
	}
}

// Shutdown stops accepting connections, closes every session and releases
// the backend clients and the journal.
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Info().Msg("shutting down http server")
	err := a.server.Shutdown(ctx)

	// Upgraded websocket connections are not tracked by the HTTP server;
	// closing their sessions ends them.
	err = multierr.Append(err, a.registry.Shutdown(ctx))
	return multierr.Append(err, a.cleanup())
}

// cleanup closes the client cache and the journal.
func (a *App) cleanup() error {
	var errs error
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close backend clients")
		errs = multierr.Append(errs, err)
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close journal")
			errs = multierr.Append(errs, err)
		} else {
			a.log.Info().Msg("journal closed")
		}
	}
	return errs
}
