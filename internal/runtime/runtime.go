package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/voicechat/internal/api"
	"github.com/loqalabs/voicechat/internal/bus"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/docstore"
	"github.com/loqalabs/voicechat/internal/identity"
	"github.com/loqalabs/voicechat/internal/natsserver"
	"github.com/loqalabs/voicechat/internal/relay"
	"github.com/loqalabs/voicechat/internal/stt"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer     *http.Server
	metricsServer  *http.Server
	telemetryClose func(context.Context) error
	metricsHandler http.Handler

	embedded *natsserver.EmbeddedServer
	bus      *bus.Client
	store    *docstore.Store
	docs     *docstore.Service
	api      *api.Server

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry
	r.metricsHandler = metricsHandler

	if err := r.build(ctx); err != nil {
		r.teardown()
		r.closeTelemetry()
		return err
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.serve(r.httpServer, "http")

	if metricsHandler != nil && r.cfg.Telemetry.PrometheusBind != addr {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.serve(r.metricsServer, "metrics")
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsServer} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	r.teardown()
	r.closeTelemetry()
	return nil
}

// build starts everything behind the HTTP surface: the embedded broker, the
// bus connection, the document store and its bus service, the account table
// and the relay.
func (r *Runtime) build(ctx context.Context) error {
	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded nats: %w", err)
	}
	r.embedded = embedded
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}

	busClient, err := bus.Connect(ctx, busCfg, r.cfg.RuntimeName, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.bus = busClient

	store, err := docstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open document store: %w", err)
	}
	r.store = store

	docs := docstore.NewService(ctx, store, busClient, r.logger)
	if err := docs.Start(); err != nil {
		return fmt.Errorf("failed to start document service: %w", err)
	}
	r.docs = docs

	users, err := identity.NewUsers(ctx, store.DB())
	if err != nil {
		return fmt.Errorf("failed to init accounts: %w", err)
	}

	rel, err := relay.New(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to init relay: %w", err)
	}

	var recognizer stt.Recognizer
	if r.cfg.STT.Enabled {
		if recognizer, err = stt.New(r.cfg.STT); err != nil {
			return fmt.Errorf("failed to init stt: %w", err)
		}
	}

	r.api = api.New(api.Options{
		Relay:      rel,
		Recognizer: recognizer,
		Accounts:   users,
		Config:     r.cfg.Relay,
		Logger:     r.logger,
	})
	return nil
}

func (r *Runtime) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if r.metricsHandler != nil {
		mux.Handle("/metrics", r.metricsHandler)
	}
	r.api.Register(mux)
	return mux
}

func (r *Runtime) serve(srv *http.Server, name string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error(name+" server failed", slog.String("error", err.Error()))
		}
	}()
}

func (r *Runtime) teardown() {
	if r.docs != nil {
		r.docs.Close()
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("document store close error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) closeTelemetry() {
	if r.telemetryClose == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.telemetryClose(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
	}
}

func (r *Runtime) healthy() bool {
	return r.bus != nil && r.bus.Healthy() && r.docs != nil && r.docs.Healthy()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
