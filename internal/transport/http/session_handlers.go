package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-gateway/internal/core"
	"github.com/vovakirdan/wirechat-gateway/internal/store"
)

const maxHistoryLimit = 1000

// SessionHandlers serves the admin view of live and journaled sessions.
type SessionHandlers struct {
	registry *core.Registry
	journal  store.SessionJournal
	log      *zerolog.Logger
}

// NewSessionHandlers creates session handlers. journal may be nil, in which
// case the history endpoints answer 404.
func NewSessionHandlers(registry *core.Registry, journal store.SessionJournal, logger *zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{
		registry: registry,
		journal:  journal,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// LiveSessionsResponse lists the sessions the registry currently holds.
type LiveSessionsResponse struct {
	Count    int                `json:"count"`
	Sessions []core.SessionInfo `json:"sessions"`
}

// HistoryResponse lists journaled sessions, newest first.
type HistoryResponse struct {
	Sessions []*store.SessionRecord `json:"sessions"`
}

// ListLive returns a snapshot of open sessions.
// GET /api/sessions
func (h *SessionHandlers) ListLive(c *gin.Context) {
	sessions := h.registry.Sessions()
	c.JSON(http.StatusOK, LiveSessionsResponse{Count: len(sessions), Sessions: sessions})
}

// ListHistory returns journaled sessions.
// GET /api/sessions/history?limit=N
func (h *SessionHandlers) ListHistory(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session journal is disabled"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	records, err := h.journal.ListSessions(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list journaled sessions")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if records == nil {
		records = []*store.SessionRecord{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Sessions: records})
}

// GetHistory returns one journaled session.
// GET /api/sessions/history/:id
func (h *SessionHandlers) GetHistory(c *gin.Context) {
	if h.journal == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session journal is disabled"})
		return
	}

	id := c.Param("id")
	rec, err := h.journal.GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
			return
		}
		h.log.Error().Err(err).Str("session_id", id).Msg("failed to get journaled session")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
