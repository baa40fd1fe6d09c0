package screen

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/selfie-check/internal/notify"
)

// Manager owns the screens mounted through the screen server.
type Manager struct {
	ctx         context.Context
	opts        Options
	rendererFor func(id string) notify.Renderer
	now         func() time.Time

	mu       sync.Mutex
	screens  map[string]*Screen
	lastSeen map[string]time.Time
}

// NewManager creates a manager. rendererFor picks where each screen's toasts and navigation go.
func NewManager(ctx context.Context, opts Options, rendererFor func(id string) notify.Renderer) *Manager {
	return &Manager{
		ctx:         ctx,
		opts:        opts,
		rendererFor: rendererFor,
		now:         time.Now,
		screens:     make(map[string]*Screen),
		lastSeen:    make(map[string]time.Time),
	}
}

// Mount creates and mounts a new screen.
func (m *Manager) Mount() *Screen {
	id := uuid.NewString()
	s := New(m.ctx, id, m.opts, m.rendererFor(id))

	m.mu.Lock()
	m.screens[id] = s
	m.lastSeen[id] = m.now()
	m.mu.Unlock()

	s.Mount()
	return s
}

// Get looks up a mounted screen and marks it active.
func (m *Manager) Get(id string) (*Screen, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.screens[id]
	if ok {
		m.lastSeen[id] = m.now()
	}
	return s, ok
}

// Unmount tears down one screen. It reports whether the screen existed.
func (m *Manager) Unmount(id string) bool {
	m.mu.Lock()
	s, ok := m.screens[id]
	delete(m.screens, id)
	delete(m.lastSeen, id)
	m.mu.Unlock()

	if ok {
		s.Unmount()
	}
	return ok
}

// Sweep unmounts screens not looked up for longer than maxIdle. Screens for which keep returns
// true are left alone and marked active. It returns the ids it unmounted.
func (m *Manager) Sweep(maxIdle time.Duration, keep func(id string) bool) []string {
	now := m.now()
	var idle []*Screen
	var ids []string

	m.mu.Lock()
	for id, seen := range m.lastSeen {
		if keep != nil && keep(id) {
			m.lastSeen[id] = now
			continue
		}
		if now.Sub(seen) <= maxIdle {
			continue
		}
		idle = append(idle, m.screens[id])
		ids = append(ids, id)
		delete(m.screens, id)
		delete(m.lastSeen, id)
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Unmount()
	}
	return ids
}

// Len reports how many screens are mounted.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.screens)
}

// Close unmounts every screen and waits for their uploads to settle.
func (m *Manager) Close() {
	m.mu.Lock()
	screens := m.screens
	m.screens = make(map[string]*Screen)
	m.lastSeen = make(map[string]time.Time)
	m.mu.Unlock()

	for _, s := range screens {
		s.Unmount()
	}
	for _, s := range screens {
		s.Wait()
	}
}
