package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlainReadsText(t *testing.T) {
	text, err := Plain{}.Extract(context.Background(), Document{Name: "notes.md", Data: []byte("  # Title\nbody\n")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "# Title\nbody" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestPlainRejectsBinary(t *testing.T) {
	_, err := Plain{}.Extract(context.Background(), Document{Name: "paper.pdf", Data: []byte("%PDF-1.7\x00\x01\x02")})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestPlainRejectsEmpty(t *testing.T) {
	_, err := Plain{}.Extract(context.Background(), Document{Name: "blank.txt", Data: []byte("  \n")})
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestNewSelectsExtractor(t *testing.T) {
	ex, err := New("")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ex.(Plain); !ok {
		t.Fatalf("expected Plain, got %T", ex)
	}
	ex, err = New("pdftotext - -")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ex.(*Command); !ok {
		t.Fatalf("expected *Command, got %T", ex)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("héllo", 2); got != "hé" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("abc", 0); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
}

func converterScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "convert.sh")
	if err := os.WriteFile(path, []byte(body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return "sh " + path
}

func TestCommandConvertsBinaryDocuments(t *testing.T) {
	ex, err := NewCommand(converterScript(t, "cat >/dev/null\necho '  Quarterly results  '"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := ex.Extract(context.Background(), Document{Name: "q3.pdf", Data: []byte("%PDF-1.7\x00\x01")})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if text != "Quarterly results" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestCommandReadsTextDirectly(t *testing.T) {
	ex, err := NewCommand(converterScript(t, "exit 1"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := ex.Extract(context.Background(), Document{Name: "notes.txt", Data: []byte("plain")})
	if err != nil || text != "plain" {
		t.Fatalf("expected direct read, got %q, %v", text, err)
	}
}

func TestCommandReportsConverterFailure(t *testing.T) {
	ex, err := NewCommand(converterScript(t, "cat >/dev/null\necho 'encrypted pdf' >&2\nexit 1"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = ex.Extract(context.Background(), Document{Name: "locked.pdf", Data: []byte("%PDF-1.7\x00")})
	if err == nil || !strings.Contains(err.Error(), "encrypted pdf") {
		t.Fatalf("expected converter stderr, got %v", err)
	}
}
