package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newTestCache(ttl time.Duration, opts ...Option) (*Cache, *fakeClock) {
	clk := newFakeClock()
	return New(ttl, append([]Option{WithClock(clk.Now)}, opts...)...), clk
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	_, ok := c.Get("alice")
	assert.False(t, ok)
}

func TestSetGet(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Set("alice", "alice", []string{"eng", "ops"})

	got, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice", got.CanonicalName)
	assert.Equal(t, []string{"eng", "ops"}, got.Groups)
	assert.Equal(t, clk.Now().Add(time.Minute), got.ExpiresAt)
}

func TestGet_ValidAtExactExpiry(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Set("alice", "alice", nil)

	clk.Advance(time.Minute)
	_, ok := c.Get("alice")
	assert.True(t, ok, "entry is valid while now <= expiresAt")
}

func TestGet_ExpiredEntryIsRemoved(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Set("alice", "alice", nil)

	clk.Advance(time.Minute + time.Millisecond)
	_, ok := c.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestGet_SlidesExpiry(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Set("alice", "alice", nil)

	// Touch every 50s: each hit pushes expiry another minute out.
	for i := 0; i < 5; i++ {
		clk.Advance(50 * time.Second)
		got, ok := c.Get("alice")
		require.True(t, ok, "hit %d", i)
		assert.Equal(t, clk.Now().Add(time.Minute), got.ExpiresAt)
	}

	clk.Advance(61 * time.Second)
	_, ok := c.Get("alice")
	assert.False(t, ok)
}

func TestSet_ReplacesEntry(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("alice", "alice", []string{"eng"})
	c.Set("alice", "Alice A.", []string{"ops"})

	got, ok := c.Get("alice")
	require.True(t, ok)
	assert.Equal(t, "Alice A.", got.CanonicalName)
	assert.Equal(t, []string{"ops"}, got.Groups)
	assert.Equal(t, 1, c.Len())
}

func TestSet_CopiesGroups(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	groups := []string{"eng"}
	c.Set("alice", "alice", groups)
	groups[0] = "mutated"

	got, _ := c.Get("alice")
	assert.Equal(t, []string{"eng"}, got.Groups)

	got.Groups[0] = "mutated again"
	again, _ := c.Get("alice")
	assert.Equal(t, []string{"eng"}, again.Groups)
}

func TestRemove(t *testing.T) {
	c, _ := newTestCache(time.Minute)
	c.Set("alice", "alice", nil)
	c.Remove("alice")
	c.Remove("nobody")

	_, ok := c.Get("alice")
	assert.False(t, ok)
}

func TestNew_DefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTTL, New(0).TTL())
	assert.Equal(t, 180*time.Second, DefaultTTL)
}

func TestSweep(t *testing.T) {
	c, clk := newTestCache(time.Minute)
	c.Set("old", "old", nil)
	clk.Advance(30 * time.Second)
	c.Set("new", "new", nil)
	clk.Advance(45 * time.Second)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("new")
	assert.True(t, ok)
}

func TestMaxEntries_PurgesExpiredFirst(t *testing.T) {
	c, clk := newTestCache(time.Minute, WithMaxEntries(2))
	c.Set("a", "a", nil)
	clk.Advance(2 * time.Minute)
	c.Set("b", "b", nil)

	c.Set("c", "c", nil)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.True(t, ok, "unexpired entry must survive when an expired one can go")
}

func TestMaxEntries_EvictsLeastRecentlyTouched(t *testing.T) {
	c, clk := newTestCache(time.Hour, WithMaxEntries(2))
	c.Set("a", "a", nil)
	clk.Advance(time.Second)
	c.Set("b", "b", nil)
	clk.Advance(time.Second)
	_, _ = c.Get("a") // a is now more recent than b

	clk.Advance(time.Second)
	c.Set("c", "c", nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestMaxEntries_ReplaceDoesNotEvict(t *testing.T) {
	c, _ := newTestCache(time.Hour, WithMaxEntries(2))
	c.Set("a", "a", nil)
	c.Set("b", "b", nil)
	c.Set("a", "a2", nil)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.True(t, ok)
}

func TestRun_StopsOnCancel(t *testing.T) {
	c := New(time.Millisecond)
	c.Set("alice", "alice", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := New(time.Minute, WithMaxEntries(50))
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				user := fmt.Sprintf("user-%d", (g*7+i)%100)
				switch i % 3 {
				case 0:
					c.Set(user, user, []string{"g"})
				case 1:
					_, _ = c.Get(user)
				default:
					c.Remove(user)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
