package http

import (
	"context"
	"encoding/json"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/config"
	"github.com/vovakirdan/wirechat-gateway/internal/core"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
	"github.com/vovakirdan/wirechat-gateway/internal/store"
)

func getJSON(t *testing.T, url string, wantStatus int, out any) {
	t.Helper()
	resp, err := stdhttp.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
}

func TestHealth(t *testing.T) {
	gw := newTestGateway(t, nil)

	resp, err := stdhttp.Get(gw.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, stdhttp.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestListLiveSessions(t *testing.T) {
	gw := newTestGateway(t, nil)

	var empty LiveSessionsResponse
	getJSON(t, gw.server.URL+"/api/sessions", stdhttp.StatusOK, &empty)
	assert.Equal(t, 0, empty.Count)
	assert.Empty(t, empty.Sessions)

	conn := gw.dial(t)
	identify(t, conn, "Alice")
	waitRunning(t, gw.registry)

	var live LiveSessionsResponse
	getJSON(t, gw.server.URL+"/api/sessions", stdhttp.StatusOK, &live)
	require.Equal(t, 1, live.Count)
	assert.Equal(t, "Alice", live.Sessions[0].Character)
	assert.Equal(t, "running", live.Sessions[0].State)
}

func TestSessionHistory(t *testing.T) {
	gw := newTestGateway(t, nil)
	ctx := context.Background()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, gw.journal.RecordSessionStart(ctx, store.SessionRecord{
		ID: "s-1", Account: "acct", Character: "Alice", StartedAt: started,
	}))
	require.NoError(t, gw.journal.RecordSessionStart(ctx, store.SessionRecord{
		ID: "s-2", Account: "acct", Character: "Alice", StartedAt: started.Add(time.Hour),
	}))

	var history HistoryResponse
	getJSON(t, gw.server.URL+"/api/sessions/history?limit=1", stdhttp.StatusOK, &history)
	require.Len(t, history.Sessions, 1)
	assert.Equal(t, "s-2", history.Sessions[0].ID)

	var rec store.SessionRecord
	getJSON(t, gw.server.URL+"/api/sessions/history/s-1", stdhttp.StatusOK, &rec)
	assert.Equal(t, "Alice", rec.Character)
	assert.True(t, started.Equal(rec.StartedAt))

	var errResp ErrorResponse
	getJSON(t, gw.server.URL+"/api/sessions/history/missing", stdhttp.StatusNotFound, &errResp)
	assert.Equal(t, "session not found", errResp.Error)

	getJSON(t, gw.server.URL+"/api/sessions/history?limit=zero", stdhttp.StatusBadRequest, &errResp)
}

func TestSessionHistoryWithoutJournal(t *testing.T) {
	cfg := config.Default()
	disabledLogger := zerolog.New(nil)
	registry := core.NewRegistry(core.NewClientCache(nil, &disabledLogger), cfg.SessionOptions(), nil, &disabledLogger)
	router := NewRouter(registry, nil, &disabledLogger)

	for _, path := range []string{"/api/sessions/history", "/api/sessions/history/s-1"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, path, nil))
		assert.Equal(t, stdhttp.StatusNotFound, w.Code, path)
	}
}

func TestWebsocketUpgradeBypassesRouter(t *testing.T) {
	gw := newTestGateway(t, nil)

	// The gin engine alone has no websocket route.
	cfg := config.Default()
	disabledLogger := zerolog.New(nil)
	w := httptest.NewRecorder()
	NewRouter(gw.registry, nil, &disabledLogger).ServeHTTP(w, httptest.NewRequest(stdhttp.MethodGet, "/ws", nil))
	assert.Equal(t, stdhttp.StatusNotFound, w.Code)

	handler := NewHandler(gw.registry, gw.journal, &cfg, &disabledLogger)
	ts := httptest.NewServer(handler)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	identify(t, conn, "Alice")
	var ident proto.Identity
	require.NoError(t, json.Unmarshal(readUntil(t, conn, proto.CodeIdentify), &ident))
	assert.Equal(t, "Alice", ident.Character)

	var live LiveSessionsResponse
	getJSON(t, ts.URL+"/api/sessions", stdhttp.StatusOK, &live)
	assert.Equal(t, 1, live.Count)
}
