package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/loqalabs/voicechat/internal/backend"
	"github.com/loqalabs/voicechat/internal/chat"
	"github.com/loqalabs/voicechat/internal/conversation"
	"github.com/loqalabs/voicechat/internal/identity"
	"github.com/loqalabs/voicechat/internal/prefs"
	"github.com/mattn/go-shellwords"
)

const helpText = `Type a message and press enter to send it. Commands:
  /new                          start a new chat
  /list                         list chats (* marks the active one)
  /use <n>                      switch to chat n
  /menu <n>                     show actions for chat n
  /rename <title>               rename the active chat
  /clear                        remove every message from the active chat
  /delete [n]                   delete chat n (default: the active chat)
  /file <path> [question]       ask about a document
  /listen <wav>                 transcribe a recording and send it
  /play                         show the audio of the last reply
  /login <email> <password>     sign in
  /register <email> <password> [name]
  /google                       sign in with Google
  /logout                       sign out
  /whoami                       show the signed-in user
  /theme                        toggle light and dark output
  /quit                         exit`

// console serializes output from the prompt loop and from background
// notifications.
type console struct {
	mu    sync.Mutex
	out   io.Writer
	theme prefs.Theme
}

func newConsole(out io.Writer) *console {
	return &console{out: out, theme: prefs.ThemeLight}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) notify(msg string) {
	c.printf("! %s\n", msg)
}

func (c *console) syncState(state chat.SyncState) {
	switch state {
	case chat.StateLoading:
		c.printf("… loading your chats\n")
	case chat.StateFailed:
		c.printf("! could not load your chats; working with what is on screen\n")
	}
}

func (c *console) setTheme(t prefs.Theme) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.theme = t
}

// speaker styles the role label. Dark mode uses bright ANSI colors.
func (c *console) speaker(role conversation.Role) string {
	c.mu.Lock()
	dark := c.theme == prefs.ThemeDark
	c.mu.Unlock()
	label := "you"
	color := "\x1b[34m"
	if role == conversation.RoleAI {
		label = "ai"
		color = "\x1b[32m"
	}
	if dark {
		color = strings.Replace(color, "[3", "[9", 1)
	}
	return color + label + "\x1b[0m"
}

type repl struct {
	app      *chat.App
	provider identity.Provider
	console  *console
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	r.console.setTheme(r.app.Theme())
	r.console.printf("voicechat %s. /help lists commands.\n", version)
	r.printActive()

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		r.console.printf("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			r.send(ctx, chat.Input{Text: line})
			continue
		}
		quit, err := r.command(ctx, line)
		if err != nil {
			r.console.notify(err.Error())
		}
		if quit {
			return nil
		}
	}
}

func (r *repl) command(ctx context.Context, line string) (bool, error) {
	args, err := shellwords.Parse(line)
	if err != nil {
		return false, fmt.Errorf("could not parse command: %w", err)
	}
	if len(args) == 0 {
		return false, nil
	}
	name, args := args[0], args[1:]
	if name != "/menu" {
		r.app.CloseMenu()
	}
	store := r.app.Store

	switch name {
	case "/help":
		r.console.printf("%s\n", helpText)
	case "/quit", "/exit":
		return true, nil
	case "/new":
		c := store.New()
		r.console.printf("started %s\n", c.Title)
	case "/list":
		r.printList()
	case "/use":
		c, err := r.pick(args)
		if err != nil {
			return false, err
		}
		r.app.Select(c.ID)
		r.printActive()
	case "/menu":
		c, err := r.pick(args)
		if err != nil {
			return false, err
		}
		r.app.OpenMenu(c.ID)
		r.console.printf("%s: /use, /rename <title>, /delete\n", c.Title)
	case "/rename":
		title := strings.Join(args, " ")
		if !store.Rename(store.ActiveID(), title) {
			return false, errors.New("title must not be blank")
		}
	case "/clear":
		store.Clear(store.ActiveID())
	case "/delete":
		target, ok := store.Active()
		if len(args) > 0 {
			c, err := r.pick(args)
			if err != nil {
				return false, err
			}
			target, ok = c, true
		}
		if ok {
			store.Delete(target.ID)
			r.console.printf("deleted %s\n", target.Title)
		}
		r.printActive()
	case "/file":
		if len(args) == 0 {
			return false, errors.New("usage: /file <path> [question]")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return false, err
		}
		r.send(ctx, chat.Input{
			Text: strings.Join(args[1:], " "),
			File: &backend.File{Name: filepath.Base(args[0]), Data: data},
		})
	case "/listen":
		if len(args) != 1 {
			return false, errors.New("usage: /listen <recording.wav>")
		}
		if !r.app.Dictation.Available(ctx) {
			return false, nil
		}
		wav, err := os.ReadFile(args[0])
		if err != nil {
			return false, err
		}
		text, err := r.app.Dictation.Transcribe(ctx, wav)
		if err != nil {
			return false, nil
		}
		r.console.printf("heard: %s\n", text)
		r.send(ctx, chat.Input{Text: text})
	case "/play":
		c, _ := store.Active()
		for i := len(c.Messages) - 1; i >= 0; i-- {
			if c.Messages[i].AudioURL != "" {
				r.console.printf("%s\n", c.Messages[i].AudioURL)
				return false, nil
			}
		}
		return false, errors.New("no audio in this chat")
	case "/login":
		if len(args) != 2 {
			return false, errors.New("usage: /login <email> <password>")
		}
		u, err := r.provider.SignInWithPassword(ctx, args[0], args[1])
		if err != nil {
			return false, err
		}
		r.console.printf("signed in as %s\n", u.DisplayName)
		r.printActive()
	case "/register":
		if len(args) < 2 {
			return false, errors.New("usage: /register <email> <password> [name]")
		}
		u, err := r.provider.Register(ctx, args[0], args[1], strings.Join(args[2:], " "))
		if err != nil {
			return false, err
		}
		r.console.printf("welcome, %s\n", u.DisplayName)
	case "/google":
		if _, err := r.provider.SignInWithPopup(ctx, "google.com"); err != nil {
			return false, err
		}
	case "/logout":
		if err := r.provider.SignOut(ctx); err != nil {
			return false, err
		}
		r.console.printf("signed out\n")
		r.printActive()
	case "/whoami":
		if u := r.app.Session.User(); u != nil {
			r.console.printf("%s <%s> (%s)\n", u.DisplayName, u.Email, r.app.Session.SyncState())
		} else {
			r.console.printf("not signed in; chats are not saved\n")
		}
	case "/theme":
		theme, err := r.app.ToggleTheme()
		r.console.setTheme(theme)
		r.console.printf("theme: %s\n", theme)
		if err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown command %s; try /help", name)
	}
	return false, nil
}

// pick resolves a 1-based list position or a conversation id.
func (r *repl) pick(args []string) (conversation.Conversation, error) {
	if len(args) == 0 {
		return conversation.Conversation{}, errors.New("which chat? pass its number from /list")
	}
	all := r.app.Store.List()
	if n, err := strconv.Atoi(args[0]); err == nil {
		if n < 1 || n > len(all) {
			return conversation.Conversation{}, fmt.Errorf("no chat number %d", n)
		}
		return all[n-1], nil
	}
	if c, ok := r.app.Store.Get(args[0]); ok {
		return c, nil
	}
	return conversation.Conversation{}, fmt.Errorf("no chat %q", args[0])
}

// send prints the messages the exchange added. Failures were already
// reported through the notifier.
func (r *repl) send(ctx context.Context, in chat.Input) {
	before, _ := r.app.Store.Active()
	if err := r.app.Pipeline.Send(ctx, in); err != nil {
		return
	}
	after, ok := r.app.Store.Get(before.ID)
	if !ok || len(after.Messages) < len(before.Messages) {
		return
	}
	for _, m := range after.Messages[len(before.Messages):] {
		r.printMessage(m)
	}
}

func (r *repl) printList() {
	active := r.app.Store.ActiveID()
	for i, c := range r.app.Store.List() {
		marker := " "
		if c.ID == active {
			marker = "*"
		}
		r.console.printf("%s %d. %s (%d messages)\n", marker, i+1, c.Title, len(c.Messages))
	}
}

func (r *repl) printActive() {
	c, ok := r.app.Store.Active()
	if !ok {
		return
	}
	r.console.printf("== %s ==\n", c.Title)
	for _, m := range c.Messages {
		r.printMessage(m)
	}
}

func (r *repl) printMessage(m conversation.Message) {
	r.console.printf("%s: %s\n", r.console.speaker(m.Role), m.Text)
	if m.AudioURL != "" {
		r.console.printf("   ♪ %s\n", m.AudioURL)
	}
}
