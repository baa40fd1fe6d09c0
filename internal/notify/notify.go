// Package notify renders screen outcomes as toasts and navigation.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Notification is a transient toast.
type Notification struct {
	Level     Level         `json:"level"`
	Message   string        `json:"message"`
	Position  string        `json:"position,omitempty"`
	AutoClose time.Duration `json:"auto_close,omitempty"`
}

// Navigation moves the user to another route of the flow.
type Navigation struct {
	Route string `json:"route"`
}

// Event kinds, also used as SSE event names.
const (
	KindNotification = "notification"
	KindNavigation   = "navigation"
)

// Event is either a Notification or a Navigation.
type Event struct {
	Kind         string        `json:"event"`
	Notification *Notification `json:"notification,omitempty"`
	Navigation   *Navigation   `json:"navigation,omitempty"`
}

// Renderer receives the side effects the screen decided on.
type Renderer interface {
	Notify(n Notification)
	Navigate(nav Navigation)
}

// Multi fans out to several renderers in order.
type Multi []Renderer

func (m Multi) Notify(n Notification) {
	for _, r := range m {
		r.Notify(n)
	}
}

func (m Multi) Navigate(nav Navigation) {
	for _, r := range m {
		r.Navigate(nav)
	}
}

// Recorder keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: KindNotification, Notification: &n})
}

func (r *Recorder) Navigate(nav Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Kind: KindNavigation, Navigation: &nav})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Notifications returns the recorded toasts in order.
func (r *Recorder) Notifications() []Notification {
	var out []Notification
	for _, ev := range r.Events() {
		if ev.Notification != nil {
			out = append(out, *ev.Notification)
		}
	}
	return out
}

// Navigations returns the recorded routes in order.
func (r *Recorder) Navigations() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Navigation != nil {
			out = append(out, ev.Navigation.Route)
		}
	}
	return out
}

// Count returns how many toasts with level and message were recorded. An empty message matches any.
func (r *Recorder) Count(level Level, message string) int {
	n := 0
	for _, note := range r.Notifications() {
		if note.Level == level && (message == "" || note.Message == message) {
			n++
		}
	}
	return n
}

// Writer prints events as single lines, for terminal use.
type Writer struct {
	mu  sync.Mutex
	Out io.Writer
}

func (w *Writer) Notify(n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.Out, "[%s] %s\n", n.Level, n.Message)
}

func (w *Writer) Navigate(nav Navigation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.Out, "-> %s\n", nav.Route)
}
