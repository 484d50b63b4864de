package main

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loqalabs/voicechat/internal/api"
	"github.com/loqalabs/voicechat/internal/config"
	"github.com/loqalabs/voicechat/internal/extract"
	"github.com/loqalabs/voicechat/internal/identity"
	"github.com/loqalabs/voicechat/internal/llm"
	"github.com/loqalabs/voicechat/internal/relay"
	"github.com/loqalabs/voicechat/internal/tts"

	_ "modernc.org/sqlite"
)

func startRelay(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	rel, err := relay.NewWithBackends(cfg, llm.NewMockGenerator(), tts.NewMockSynth(cfg.TTS.SampleRate, cfg.TTS.Channels), extract.Plain{}, logger)
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "users.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	users, err := identity.NewUsers(context.Background(), db)
	if err != nil {
		t.Fatalf("users: %v", err)
	}
	cfg.Relay.RateLimit = 0
	mux := http.NewServeMux()
	api.New(api.Options{Relay: rel, Accounts: users, Config: cfg.Relay, Logger: logger}).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runScript(t *testing.T, script string) string {
	t.Helper()
	srv := startRelay(t)
	dir := t.TempDir()
	cfg := config.DefaultClient()
	cfg.BackendURL = srv.URL
	cfg.AudioDir = filepath.Join(dir, "audio")
	cfg.PrefsPath = filepath.Join(dir, "prefs.yaml")
	cfg.Remote.Mode = "none"

	var out bytes.Buffer
	err := run(context.Background(), cfg, strings.NewReader(script), &out, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return out.String()
}

func TestREPLConversationFlow(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"hello",
		"/new",
		"/rename   ",
		"/rename Groceries",
		"/list",
		"/use 1",
		"/play",
		"/quit",
	}, "\n")+"\n")

	for _, want := range []string{
		"== New Chat 1 ==",
		"[mock reply to hello]",
		"started New Chat 2",
		"! title must not be blank",
		"* 2. Groceries (0 messages)",
		"file://",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestREPLEmptyFileQuestionUsesMarker(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(doc, []byte("launch on friday"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := runScript(t, "/file "+doc+"\n/quit\n")

	if !strings.Contains(out, "[mock reply to The user attached a document") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "📎 notes.txt") {
		t.Fatalf("missing file marker:\n%s", out)
	}
}

func TestREPLAccountsAndTheme(t *testing.T) {
	out := runScript(t, strings.Join([]string{
		"/whoami",
		"/register ada@example.com s3cret! Ada Lovelace",
		"/whoami",
		"/google",
		"/logout",
		"/theme",
		"/bogus",
	}, "\n")+"\n")

	for _, want := range []string{
		"not signed in",
		"welcome, Ada Lovelace",
		"Ada Lovelace <ada@example.com>",
		"! " + identity.ErrPopupUnavailable.Error(),
		"signed out",
		"theme: dark",
		"unknown command /bogus",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestREPLListenWithoutSpeechIsReportedOnce(t *testing.T) {
	out := runScript(t, "/listen a.wav\n/listen a.wav\n/quit\n")
	if n := strings.Count(out, "dictation is disabled"); n != 1 {
		t.Fatalf("expected one notice, got %d:\n%s", n, out)
	}
}
