package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestStore() (*MemoryStore, *clock) {
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryStore()
	m.now = c.now
	return m, c
}

func TestGetSetRoundTrip(t *testing.T) {
	m, _ := newTestStore()
	Use(m)
	ctx := context.Background()

	type product struct {
		ID   uint
		Name string
	}
	require.NoError(t, Set(ctx, "product:1", product{ID: 1, Name: "Guji"}, time.Minute))

	var got product
	assert.True(t, Get(ctx, "product:1", &got))
	assert.Equal(t, "Guji", got.Name)
	assert.Equal(t, "memory", Driver())

	require.NoError(t, Del(ctx, "product:1"))
	assert.False(t, Get(ctx, "product:1", &got))
}

func TestTTLExpiry(t *testing.T) {
	m, c := newTestStore()
	ctx := context.Background()

	require.NoError(t, m.SetRaw(ctx, "k", []byte(`"v"`), time.Second))
	_, err := m.GetRaw(ctx, "k")
	require.NoError(t, err)

	c.advance(2 * time.Second)
	_, err = m.GetRaw(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestIncrStartsWindowOnce(t *testing.T) {
	m, c := newTestStore()
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := m.Incr(ctx, "rl:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	c.advance(61 * time.Second)
	n, err := m.Incr(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "counter restarts after the window")
}

func TestSets(t *testing.T) {
	m, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, m.SAdd(ctx, "user:1:sessions", "a", time.Hour))
	require.NoError(t, m.SAdd(ctx, "user:1:sessions", "b", time.Hour))
	members, err := m.SMembers(ctx, "user:1:sessions")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	require.NoError(t, m.SRem(ctx, "user:1:sessions", "a"))
	members, _ = m.SMembers(ctx, "user:1:sessions")
	assert.Equal(t, []string{"b"}, members)
}

func TestConcurrentIncr(t *testing.T) {
	m, _ := newTestStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Incr(ctx, "hits", 0)
		}()
	}
	wg.Wait()

	n, err := m.Incr(ctx, "hits", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
}

func TestReplaceOnlyOverwritesLiveKeys(t *testing.T) {
	ctx := context.Background()
	Use(NewMemoryStore())

	ok, err := Replace(ctx, "gone", "v", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	var s string
	assert.False(t, Get(ctx, "gone", &s))

	require.NoError(t, Set(ctx, "live", "old", time.Minute))
	ok, err = Replace(ctx, "live", "new", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	require.True(t, Get(ctx, "live", &s))
	assert.Equal(t, "new", s)
}
