package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/backend/memory"
	"github.com/vovakirdan/wirechat-gateway/internal/config"
	"github.com/vovakirdan/wirechat-gateway/internal/core"
	"github.com/vovakirdan/wirechat-gateway/internal/proto"
	"github.com/vovakirdan/wirechat-gateway/internal/store/sqlite"
)

type testGateway struct {
	backend  *memory.Backend
	registry *core.Registry
	journal  *sqlite.SQLiteJournal
	server   *httptest.Server
}

func testFixture() memory.Fixture {
	return memory.Fixture{
		Accounts: []memory.FixtureAccount{{Name: "acct", Credential: "ticket"}},
		Characters: []memory.FixtureCharacter{
			{ID: "c-alice", Name: "Alice", Account: "acct", ChatEnabled: true, Status: "online"},
			{ID: "c-bob", Name: "Bob", Status: "online"},
		},
		Channels: []memory.FixtureChannel{
			{ID: "ch-general", Name: "General", Title: "General chat", Official: true, Owner: "c-bob", Members: []string{"c-bob"}},
		},
	}
}

// newTestGateway serves the full router over httptest, backed by the memory
// backend and an in-memory journal.
func newTestGateway(t *testing.T, mutate func(*config.Config)) *testGateway {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	disabledLogger := zerolog.New(nil)

	b, err := memory.FromFixture(testFixture())
	require.NoError(t, err)
	journal, err := sqlite.New(":memory:")
	require.NoError(t, err)

	cache := core.NewClientCache(b, &disabledLogger)
	registry := core.NewRegistry(cache, cfg.SessionOptions(), journal, &disabledLogger)
	ts := httptest.NewServer(NewServer(registry, journal, &cfg, &disabledLogger).Handler)

	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
		_ = cache.Close()
		_ = journal.Close()
	})
	return &testGateway{backend: b, registry: registry, journal: journal, server: ts}
}

func (g *testGateway) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	wsURL := strings.Replace(g.server.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func writeLine(t *testing.T, conn *websocket.Conn, line string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(line)))
}

// readUntil reads frames until one carries code and returns its JSON body.
func readUntil(t *testing.T, conn *websocket.Conn, code string) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	for {
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", code)
		require.Equal(t, websocket.MessageText, typ)

		got, body, err := proto.SplitLine(string(data))
		require.NoError(t, err)
		if got == code {
			return body
		}
	}
}

func identify(t *testing.T, conn *websocket.Conn, character string) {
	t.Helper()
	writeLine(t, conn, `IDN {"method":"ticket","account":"acct","ticket":"ticket","character":"`+character+`"}`)
}
