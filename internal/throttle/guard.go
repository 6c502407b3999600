// Package throttle bounds how often a resource may be fetched.
package throttle

import (
	"sync"
	"time"
)

// DefaultWindow is the minimum spacing between two unforced fetches of one key.
const DefaultWindow = 5 * time.Second

// Guard remembers when each resource key was last allowed to fetch.
// It is safe for concurrent use.
type Guard struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithClock overrides the clock used by ForceFetch.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// New returns a Guard with the given window. A non-positive window uses DefaultWindow.
func New(window time.Duration, opts ...Option) *Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	g := &Guard{window: window, last: make(map[string]time.Time), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Window returns the configured window.
func (g *Guard) Window() time.Duration { return g.window }

// ShouldFetch reports whether a fetch of key may proceed at now.
// The timestamp is only recorded when the answer is true.
func (g *Guard) ShouldFetch(key string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.last[key]; ok && now.Sub(last) < g.window {
		return false
	}
	g.last[key] = now
	return true
}

// ForceFetch always allows the fetch and restarts the window for key.
func (g *Guard) ForceFetch(key string) bool {
	g.mu.Lock()
	g.last[key] = g.now()
	g.mu.Unlock()
	return true
}

// Reset forgets key so the next ShouldFetch succeeds.
func (g *Guard) Reset(key string) {
	g.mu.Lock()
	delete(g.last, key)
	g.mu.Unlock()
}
