package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/voicechat/internal/audio"
	"github.com/loqalabs/voicechat/internal/backend"
	"github.com/loqalabs/voicechat/internal/bus"
	"github.com/loqalabs/voicechat/internal/chat"
	"github.com/loqalabs/voicechat/internal/cloudstore"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/docstore"
	"github.com/loqalabs/voicechat/internal/identity"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "Path to client configuration file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadClient(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicechat: %v\n", err)
		os.Exit(1)
	}
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdin, os.Stdout, logger); err != nil {
		logger.Error("client exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ClientConfig, in io.Reader, out io.Writer, logger *slog.Logger) error {
	decoder, err := audio.NewDecoder(cfg.AudioDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := decoder.Release(); err != nil {
			logger.Warn("failed to remove audio clips", slog.String("error", err.Error()))
		}
	}()

	httpClient := &http.Client{Timeout: time.Duration(cfg.RequestTimeoutMS) * time.Millisecond}
	be := backend.New(cfg.BackendURL, httpClient)
	provider := identity.NewHTTPProvider(cfg.BackendURL, httpClient)

	remote, closeRemote := openRemote(ctx, cfg.Remote, logger)
	defer closeRemote()

	console := newConsole(out)
	store := chat.NewStore(logger)
	session := chat.NewController(ctx, store, remote, logger,
		chat.WithWriteTimeout(time.Duration(cfg.Remote.RequestTimeout)*time.Millisecond),
		chat.WithStateListener(console.syncState),
	)
	app, err := chat.NewApp(chat.AppOptions{
		Store:     store,
		Pipeline:  chat.NewPipeline(store, be, decoder, console.notify, logger),
		Session:   session,
		Dictation: chat.NewDictation(be, console.notify, logger),
		PrefsPath: cfg.PrefsPath,
	})
	if err != nil {
		logger.Warn("using default preferences", slog.String("error", err.Error()))
	}
	session.Attach(provider)
	defer session.Close()

	r := &repl{app: app, provider: provider, console: console}
	return r.run(ctx, in)
}

// openRemote picks the replica signed-in sessions sync to. A replica that
// cannot be reached leaves the client usable in local-only mode.
func openRemote(ctx context.Context, cfg config.RemoteConfig, logger *slog.Logger) (chat.Remote, func()) {
	noop := func() {}
	timeout := time.Duration(cfg.RequestTimeout) * time.Millisecond
	switch cfg.Mode {
	case "docstore":
		conn, err := bus.Connect(ctx, cfg.Bus, "voicechat-client", logger)
		if err != nil {
			logger.Warn("document store unreachable; conversations stay local", slog.String("error", err.Error()))
			return nil, noop
		}
		return docstore.NewClient(conn, timeout, logger), conn.Close
	case "firestore":
		store, err := cloudstore.Open(ctx, cfg.ProjectID, cfg.CredentialsFile, logger)
		if err != nil {
			logger.Warn("firestore unavailable; conversations stay local", slog.String("error", err.Error()))
			return nil, noop
		}
		return store, func() { _ = store.Close() }
	default:
		return nil, noop
	}
}
