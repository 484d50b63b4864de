package llm

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// helperScript writes body to a shell script and returns the command line
// that runs it. The script's directory is returned for side files.
func helperScript(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "llm.sh")
	if err := os.WriteFile(path, []byte(body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return "sh " + path, dir
}

func TestExecGeneratorSendsRequestAndReadsJSON(t *testing.T) {
	command, dir := helperScript(t, `cat > "$(dirname "$0")/request.json"
echo '{"content":" hello from exec ","prompt_tokens":3,"completion_tokens":4}'`)
	gen, err := NewExecGenerator(command)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	out, err := Collect(context.Background(), gen, Request{Prompt: "hi", Model: "tiny", Kind: "file", TraceID: "t-1"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out.Text != "hello from exec" || out.PromptTokens != 3 || out.CompletionTokens != 4 {
		t.Fatalf("unexpected completion %+v", out)
	}

	data, err := os.ReadFile(filepath.Join(dir, "request.json"))
	if err != nil {
		t.Fatal(err)
	}
	var sent execRequest
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("helper received invalid json %q: %v", data, err)
	}
	if sent.Prompt != "hi" || sent.Model != "tiny" || sent.Kind != "file" || sent.TraceID != "t-1" {
		t.Fatalf("unexpected request %+v", sent)
	}
}

func TestExecGeneratorAcceptsPlainText(t *testing.T) {
	command, _ := helperScript(t, "cat >/dev/null\necho '  just words  '")
	gen, err := NewExecGenerator(command)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Collect(context.Background(), gen, Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if out.Text != "just words" {
		t.Fatalf("unexpected text %q", out.Text)
	}
}

func TestExecGeneratorRejectsJSONWithoutContent(t *testing.T) {
	command, _ := helperScript(t, `cat >/dev/null
echo '{"prompt_tokens":1}'`)
	gen, err := NewExecGenerator(command)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Collect(context.Background(), gen, Request{Prompt: "hi"}); err == nil {
		t.Fatal("expected error for missing content")
	}
}

func TestExecGeneratorReportsStderr(t *testing.T) {
	command, _ := helperScript(t, "cat >/dev/null\necho 'model file missing' >&2\nexit 2")
	gen, err := NewExecGenerator(command)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Collect(context.Background(), gen, Request{Prompt: "hi"})
	if err == nil || !strings.Contains(err.Error(), "model file missing") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestExecGeneratorHonoursContext(t *testing.T) {
	command, _ := helperScript(t, "exec sleep 5")
	gen, err := NewExecGenerator(command)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = Collect(ctx, gen, Request{Prompt: "hi"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatal("generator outlived its context")
	}
}

func TestMockTruncatesOnRuneBoundary(t *testing.T) {
	prompt := strings.Repeat("é", 100)
	out, err := Collect(context.Background(), NewMockGenerator(), Request{Prompt: prompt})
	if err != nil {
		t.Fatal(err)
	}
	want := "[mock reply to " + strings.Repeat("é", 80) + "...]"
	if out.Text != want {
		t.Fatalf("unexpected text %q", out.Text)
	}
}
