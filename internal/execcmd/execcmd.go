// Package execcmd runs the external helper programs behind the exec modes of
// the llm, tts, stt and extract backends. Commands are configured as a single
// shell-like string and run once per request.
package execcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// stderr beyond this is cut from error messages
const maxStderr = 512

// Error is a helper that exited unsuccessfully.
type Error struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s command failed: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("%s command failed: %v: %s", e.Name, e.Err, e.Stderr)
}

func (e *Error) Unwrap() error { return e.Err }

// Command is a parsed helper invocation.
type Command struct {
	name string
	argv []string
	// WaitDelay bounds how long output pipes are drained after the process
	// is killed on cancellation.
	WaitDelay time.Duration
}

// Parse splits command with shell quoting rules. name labels errors.
func Parse(name, command string) (*Command, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse %s command: %w", name, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%s command empty", name)
	}
	return &Command{name: name, argv: args, WaitDelay: time.Second}, nil
}

// Args returns a copy of the parsed argument vector.
func (c *Command) Args() []string {
	return append([]string(nil), c.argv...)
}

// Expand returns the argument vector with every {key} replaced by vars[key].
// It reports whether any placeholder was present.
func (c *Command) Expand(vars map[string]string) ([]string, bool) {
	out := c.Args()
	found := false
	for i, arg := range out {
		for key, value := range vars {
			token := "{" + key + "}"
			if strings.Contains(arg, token) {
				arg = strings.ReplaceAll(arg, token, value)
				found = true
			}
		}
		out[i] = arg
	}
	return out, found
}

// Run executes the command with stdin and returns its stdout.
func (c *Command) Run(ctx context.Context, stdin []byte) ([]byte, error) {
	return c.RunArgs(ctx, c.argv, stdin)
}

// RunArgs executes argv, which is usually derived from Args or Expand.
func (c *Command) RunArgs(ctx context.Context, argv []string, stdin []byte) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s command empty", c.name)
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = c.WaitDelay
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s command: %w", c.name, ctxErr)
		}
		failure := &Error{Name: c.name, ExitCode: -1, Stderr: tail(stderr.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			failure.ExitCode = exitErr.ExitCode()
		}
		return nil, failure
	}
	return stdout.Bytes(), nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxStderr {
		return s
	}
	s = s[len(s)-maxStderr:]
	// skip a partial leading rune
	for i := 0; i < len(s) && i < 4; i++ {
		if s[i]&0xC0 != 0x80 {
			return "…" + s[i:]
		}
	}
	return "…" + s
}
