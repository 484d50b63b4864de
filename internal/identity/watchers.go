package identity

import "sync"

// watchers holds the current user and fans changes out to subscribers.
type watchers struct {
	mu      sync.Mutex
	current *User
	nextID  int
	subs    map[int]func(*User)
}

func (w *watchers) subscribe(fn func(*User)) func() {
	w.mu.Lock()
	if w.subs == nil {
		w.subs = make(map[int]func(*User))
	}
	id := w.nextID
	w.nextID++
	w.subs[id] = fn
	current := copyUser(w.current)
	w.mu.Unlock()

	fn(current)
	return func() {
		w.mu.Lock()
		delete(w.subs, id)
		w.mu.Unlock()
	}
}

func (w *watchers) set(u *User) {
	w.mu.Lock()
	w.current = copyUser(u)
	fns := make([]func(*User), 0, len(w.subs))
	for _, fn := range w.subs {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(copyUser(u))
	}
}

func (w *watchers) get() *User {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyUser(w.current)
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
