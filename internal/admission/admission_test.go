package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (fc *fakeClock) Now() time.Time {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.now
}

func (fc *fakeClock) Advance(d time.Duration) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = fc.now.Add(d)
}

func newTestController(fc *fakeClock) *Controller {
	c := NewController()
	c.now = fc.Now
	return c
}

func TestController_DeniesAboveLimit(t *testing.T) {
	t.Parallel()

	fc := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestController(fc)
	profile := Profile{Limit: 5, Window: time.Minute}
	key := Key("scan", "account-1")

	for i := 0; i < 5; i++ {
		d := c.Check(key, profile)
		require.True(t, d.Allowed, "check %d", i+1)
		assert.Equal(t, 4-i, d.Remaining)
	}

	// Sixth check within the same window is denied.
	d := c.Check(key, profile)
	assert.False(t, d.Allowed)
	assert.Zero(t, d.Remaining)
	assert.Equal(t, fc.Now().Add(time.Minute), d.ResetAt)
}

func TestController_WindowReset(t *testing.T) {
	t.Parallel()

	fc := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestController(fc)
	profile := Profile{Limit: 2, Window: time.Minute}
	key := Key("login", "10.0.0.1")

	require.True(t, c.Check(key, profile).Allowed)
	require.True(t, c.Check(key, profile).Allowed)
	require.False(t, c.Check(key, profile).Allowed)

	fc.Advance(time.Minute)

	d := c.Check(key, profile)
	assert.True(t, d.Allowed, "window elapsed, count must reset")
	assert.Equal(t, 1, d.Remaining)
}

func TestController_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	fc := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestController(fc)
	profile := Profile{Limit: 1, Window: time.Minute}

	require.True(t, c.Check(Key("scan", "a"), profile).Allowed)
	require.False(t, c.Check(Key("scan", "a"), profile).Allowed)

	// A different subject has its own window.
	assert.True(t, c.Check(Key("scan", "b"), profile).Allowed)
	// Same subject, different action is a different key.
	assert.True(t, c.Check(Key("login", "a"), profile).Allowed)
}

func TestController_ConcurrentChecksNeverExceedLimit(t *testing.T) {
	t.Parallel()

	c := NewController()
	profile := Profile{Limit: 50, Window: time.Minute}
	key := Key("scan", "burst")

	const callers = 200
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Check(key, profile).Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, profile.Limit, allowed,
		"concurrent callers must not admit more than the limit")
}

func TestController_PruneDropsIdleWindows(t *testing.T) {
	t.Parallel()

	fc := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	c := newTestController(fc)
	profile := Profile{Limit: 1, Window: time.Minute}

	c.Check("scan:idle", profile)
	fc.Advance(25 * time.Hour)

	c.mu.Lock()
	c.pruneLocked(fc.Now())
	c.mu.Unlock()

	c.mu.Lock()
	_, ok := c.windows["scan:idle"]
	c.mu.Unlock()
	assert.False(t, ok)
}
