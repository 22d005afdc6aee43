package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-gateway/internal/config"
	"github.com/vovakirdan/wirechat-gateway/internal/core"
	"github.com/vovakirdan/wirechat-gateway/internal/store"
)

const (
	healthPath = "/health"
	wsPath     = "/ws"
)

// NewServer builds the gateway HTTP server: health probe, session admin API
// and the legacy websocket endpoint. journal may be nil.
func NewServer(registry *core.Registry, journal store.SessionJournal, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(registry, journal, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewHandler routes /ws straight to the websocket handler and everything else
// to the gin engine. The upgrade must not pass through gin: its response
// writer refuses to hijack once the 101 has been flushed.
func NewHandler(registry *core.Registry, journal store.SessionJournal, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle(wsPath, NewWSHandler(registry, cfg.Gateway, logger))
	mux.Handle("/", NewRouter(registry, journal, logger))
	return mux
}

// NewRouter builds the gin engine for the health probe and the admin API.
func NewRouter(registry *core.Registry, journal store.SessionJournal, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(RecoveryMiddleware(logger), LoggerMiddleware(logger))

	router.GET(healthPath, healthHandler)

	sessions := NewSessionHandlers(registry, journal, logger)
	api := router.Group("/api")
	{
		api.GET("/sessions", sessions.ListLive)
		api.GET("/sessions/history", sessions.ListHistory)
		api.GET("/sessions/history/:id", sessions.GetHistory)
	}
	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
