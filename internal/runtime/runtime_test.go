package runtime

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/voicechat/internal/backend"
	"github.com/loqalabs/voicechat/internal/bus"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/conversation"
	"github.com/loqalabs/voicechat/internal/docstore"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Bus.Host = "127.0.0.1"
	cfg.Bus.Port = -1
	cfg.Bus.StoreDir = filepath.Join(dir, "nats")
	cfg.Store.Path = filepath.Join(dir, "voicechat.db")
	cfg.STT.Enabled = true
	return cfg
}

func startTestRuntime(t *testing.T) (*Runtime, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := New(testConfig(t), logger)

	shutdown, handler, err := setupTelemetry(r.cfg, logger)
	if err != nil {
		t.Fatalf("setupTelemetry: %v", err)
	}
	r.telemetryClose = shutdown
	r.metricsHandler = handler
	if err := r.build(context.Background()); err != nil {
		r.teardown()
		t.Fatalf("build: %v", err)
	}
	r.ready.Store(true)

	srv := httptest.NewServer(r.routes())
	t.Cleanup(func() {
		srv.Close()
		r.teardown()
		r.closeTelemetry()
	})
	return r, srv
}

func TestRuntimeServesProbesAndMetrics(t *testing.T) {
	_, srv := startTestRuntime(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, resp.StatusCode)
		}
	}

	client := backend.New(srv.URL, srv.Client())
	if _, err := client.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "voicechat_relay_exchanges") {
		t.Fatalf("metrics missing relay counter:\n%s", body)
	}
}

func TestRuntimeNotReadyBeforeStart(t *testing.T) {
	r := New(config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	r.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRuntimeDocumentStoreOverBus(t *testing.T) {
	r, _ := startTestRuntime(t)

	busCfg := r.cfg.Bus
	busCfg.Servers = []string{r.embedded.ClientURL()}
	conn, err := bus.Connect(context.Background(), busCfg, "runtime-test", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("bus.Connect: %v", err)
	}
	defer conn.Close()

	client := docstore.NewClient(conn, 2*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c := conversation.NewDefault(1, time.Now().UTC())
	if err := client.Upsert(context.Background(), "user-1", c); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := client.List(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].ID != c.ID {
		t.Fatalf("unexpected list %+v", got)
	}
}
