// Package notify is the one-shot notification channel of a surface.
// Every mutating action reports success or failure through it.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliverySync/models"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindFailure Kind = "failure"
	// KindNoAgents tells the administrator to wait for a courier, not to retry.
	KindNoAgents Kind = "no_agents"
	// KindBlocked is an action refused locally before any request was sent.
	KindBlocked Kind = "blocked"
)

// Notification is one transient message.
type Notification struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(Notification)
}

// Success builds a success notification.
func Success(title, message string) Notification {
	return Notification{Kind: KindSuccess, Title: title, Message: message}
}

// Failure builds a notification for err, picking the kind from the domain error.
func Failure(title string, err error) Notification {
	n := Notification{Kind: KindFailure, Title: title}
	if err != nil {
		n.Message = err.Error()
	}
	switch {
	case errors.Is(err, models.ErrNoAgentsAvailable):
		n.Kind = KindNoAgents
		n.Message = "No agents available. Wait for an agent to come online."
	case errors.Is(err, models.ErrOrderNotReady):
		n.Kind = KindBlocked
		n.Title = "Order Not Ready"
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrAgentNotActive),
		errors.Is(err, models.ErrAgentBusy):
		n.Kind = KindBlocked
	}
	return n
}

// Feed keeps the most recent notifications and logs each one.
type Feed struct {
	mu    sync.Mutex
	items []Notification
	max   int
	log   *slog.Logger
	now   func() time.Time
	sinks []Notifier
}

// NewFeed returns a feed holding up to max notifications.
func NewFeed(max int, log *slog.Logger, sinks ...Notifier) *Feed {
	if max <= 0 {
		max = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Feed{max: max, log: log, now: time.Now, sinks: sinks}
}

// Notify stamps, records and forwards n.
func (f *Feed) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.At.IsZero() {
		n.At = f.now()
	}
	level := slog.LevelInfo
	if n.Kind != KindSuccess {
		level = slog.LevelWarn
	}
	f.log.Log(context.Background(), level, n.Title, "kind", string(n.Kind), "message", n.Message, "id", n.ID)

	f.mu.Lock()
	f.items = append(f.items, n)
	if len(f.items) > f.max {
		f.items = append([]Notification(nil), f.items[len(f.items)-f.max:]...)
	}
	sinks := f.sinks
	f.mu.Unlock()
	for _, s := range sinks {
		s.Notify(n)
	}
}

// Since returns notifications stamped after t, oldest first. Pass the
// session's cleared marker to hide dismissed ones.
func (f *Feed) Since(t time.Time) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, 0, len(f.items))
	for _, n := range f.items {
		if n.At.After(t) {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the newest notification.
func (f *Feed) Last() (Notification, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.items) == 0 {
		return Notification{}, false
	}
	return f.items[len(f.items)-1], true
}
