package app

import (
	"context"
	"io"
	stdhttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/wirechat-gateway/internal/config"
)

const demoFixture = "../../infra/fixtures/demo.yaml"

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 2 * time.Second
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")
	cfg.Backend.Fixture = demoFixture
	return cfg
}

func TestNewServesHealth(t *testing.T) {
	cfg := testConfig(t)
	logger := zerolog.New(nil)

	a, err := New(&cfg, &logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Shutdown(ctx)
	})

	ts := httptest.NewServer(a.Handler())
	defer ts.Close()

	resp, err := stdhttp.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 0, a.Registry().Len())
}

func TestNewRejectsBadConfig(t *testing.T) {
	logger := zerolog.New(nil)

	cfg := testConfig(t)
	cfg.Backend.Kind = "rest"
	_, err := New(&cfg, &logger)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.Backend.Fixture = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(&cfg, &logger)
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.JournalPath = ""
	cfg.Backend.Fixture = ""
	logger := zerolog.New(nil)

	a, err := New(&cfg, &logger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
