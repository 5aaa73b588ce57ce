// Package admission implements a keyed fixed-window rate gate. It is the
// single local-quota guard for the service and is shared by scan admission
// and login throttling; callers pick the policy by passing a named profile.
//
// The guard is intentionally per-process: it bounds traffic through this
// instance. Plan-wide quotas are enforced by the account collaborator before
// admission is consulted.
package admission

import (
	"sync"
	"time"
)

// Profile is a named admission policy: how many checks a key may pass within
// one window.
type Profile struct {
	// Limit is the maximum admitted checks per window. Must be > 0.
	Limit int

	// Window is the fixed window duration.
	Window time.Duration
}

// Decision is the outcome of one admission check.
type Decision struct {
	// Allowed reports whether the check was admitted.
	Allowed bool

	// Remaining is the number of further checks the key may pass within the
	// current window. Zero when denied.
	Remaining int

	// ResetAt is when the current window ends and the count resets.
	ResetAt time.Time
}

// Key builds the admission key for a (action, subject) pair, e.g.
// Key("scan", accountID) or Key("login", clientIP).
func Key(action, subject string) string { return action + ":" + subject }

// pruneThreshold is the window-map size past which stale entries are dropped
// inline during a check.
const pruneThreshold = 4096

type window struct {
	count int
	start time.Time
}

// Controller tracks one fixed window per admission key. The read-check-
// increment on a key is atomic with respect to concurrent callers: a single
// lock covers the map, which is cheap at the key cardinalities seen here
// (accounts plus client IPs).
type Controller struct {
	mu      sync.Mutex
	windows map[string]*window

	// now is injectable for tests.
	now func() time.Time
}

// NewController creates an empty admission controller.
func NewController() *Controller {
	return &Controller{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Check evaluates one admission request for key under the given profile.
// A stale window (now - start >= window duration) resets to zero before
// evaluation, so the count invariant `count <= limit` holds at all times.
func (c *Controller) Check(key string, profile Profile) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	w, ok := c.windows[key]
	if !ok {
		if len(c.windows) >= pruneThreshold {
			c.pruneLocked(now)
		}
		w = &window{start: now}
		c.windows[key] = w
	}

	if now.Sub(w.start) >= profile.Window {
		w.count = 0
		w.start = now
	}

	resetAt := w.start.Add(profile.Window)

	if w.count >= profile.Limit {
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}
	}

	w.count++
	return Decision{Allowed: true, Remaining: profile.Limit - w.count, ResetAt: resetAt}
}

// pruneLocked drops windows that have been idle for longer than any sane
// profile window. Callers must hold c.mu.
func (c *Controller) pruneLocked(now time.Time) {
	const idle = 24 * time.Hour
	for key, w := range c.windows {
		if now.Sub(w.start) >= idle {
			delete(c.windows, key)
		}
	}
}
