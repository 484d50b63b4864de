package chat

import (
	"fmt"
	"sync"

	"github.com/loqalabs/voicechat/internal/prefs"
)

// App is the client's top-level state. View code reads it through the
// accessors and changes it only through the named methods.
type App struct {
	Store     *Store
	Pipeline  *Pipeline
	Session   *Controller
	Dictation *Dictation

	prefsPath string

	mu       sync.Mutex
	theme    prefs.Theme
	menuOpen string
}

type AppOptions struct {
	Store     *Store
	Pipeline  *Pipeline
	Session   *Controller
	Dictation *Dictation
	PrefsPath string
}

// NewApp loads persisted preferences. An unreadable prefs file falls back to
// the defaults and is reported alongside the usable App.
func NewApp(opts AppOptions) (*App, error) {
	p, err := prefs.Load(opts.PrefsPath)
	app := &App{
		Store:     opts.Store,
		Pipeline:  opts.Pipeline,
		Session:   opts.Session,
		Dictation: opts.Dictation,
		prefsPath: opts.PrefsPath,
		theme:     p.Theme,
	}
	if err != nil {
		return app, fmt.Errorf("load preferences: %w", err)
	}
	return app, nil
}

func (a *App) Theme() prefs.Theme {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.theme
}

// ToggleTheme flips and persists the theme. The in-memory theme changes even
// when saving fails.
func (a *App) ToggleTheme() (prefs.Theme, error) {
	a.mu.Lock()
	a.theme = a.theme.Toggle()
	theme := a.theme
	a.mu.Unlock()

	if err := prefs.Save(a.prefsPath, prefs.Prefs{Theme: theme}); err != nil {
		return theme, err
	}
	return theme, nil
}

// OpenMenu marks the conversation whose action menu is showing. Only one
// menu is open at a time.
func (a *App) OpenMenu(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.menuOpen = conversationID
}

func (a *App) CloseMenu() {
	a.OpenMenu("")
}

func (a *App) MenuOpen() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.menuOpen
}

// Select activates a conversation and closes any open menu.
func (a *App) Select(conversationID string) bool {
	a.CloseMenu()
	return a.Store.SetActive(conversationID)
}
