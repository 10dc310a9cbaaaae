package identity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

type fakeProvider struct {
	calls int32
	delay time.Duration
	users map[string]domain.CallerIdentity
	err   error
}

func (f *fakeProvider) Lookup(ctx context.Context, token string) (domain.CallerIdentity, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return domain.CallerIdentity{}, f.err
	}
	id, ok := f.users[token]
	if !ok {
		return domain.CallerIdentity{}, ErrNotFound
	}
	return id, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newProvider() *fakeProvider {
	return &fakeProvider{users: map[string]domain.CallerIdentity{
		"tok-alice": {ID: "alice", Role: domain.RoleUser},
		"tok-root":  {ID: "root", Role: domain.RoleAdmin},
	}}
}

func TestResolveEmptyTokenIsAnonymous(t *testing.T) {
	p := newProvider()
	r := NewResolver(p, time.Minute)

	id, err := r.Resolve(context.Background(), "  ")
	require.NoError(t, err)
	assert.True(t, id.Anonymous)
	assert.Equal(t, domain.RoleUser, id.Role)
	assert.Equal(t, int32(0), atomic.LoadInt32(&p.calls))
}

func TestResolveCachesWithinTTL(t *testing.T) {
	p := newProvider()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var hits, misses int
	r := NewResolver(p, time.Minute, WithClock(clock.Now), WithCacheObserver(func(res CacheResult) {
		if res == CacheHit {
			hits++
		} else {
			misses++
		}
	}))

	for i := 0; i < 3; i++ {
		id, err := r.Resolve(context.Background(), "tok-alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", id.ID)
		assert.False(t, id.Anonymous)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
	assert.Equal(t, 2, hits)
	assert.Equal(t, 1, misses)

	clock.Advance(61 * time.Second)
	_, err := r.Resolve(context.Background(), "tok-alice")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
}

func TestResolveUnknownTokenIsUnauthenticated(t *testing.T) {
	p := newProvider()
	r := NewResolver(p, time.Minute)

	_, err := r.Resolve(context.Background(), "tok-nobody")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// Failures are not cached.
	_, err = r.Resolve(context.Background(), "tok-nobody")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, int32(2), atomic.LoadInt32(&p.calls))
}

func TestResolveProviderFailure(t *testing.T) {
	p := newProvider()
	p.err = errors.New("connection refused")
	r := NewResolver(p, time.Minute)

	_, err := r.Resolve(context.Background(), "tok-alice")
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveCollapsesConcurrentLookups(t *testing.T) {
	p := newProvider()
	p.delay = 50 * time.Millisecond
	r := NewResolver(p, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := r.Resolve(context.Background(), "tok-root")
			assert.NoError(t, err)
			assert.Equal(t, domain.RoleAdmin, id.Role)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}

func TestResolveCancelledCallerDoesNotPoisonCache(t *testing.T) {
	p := newProvider()
	p.delay = 30 * time.Millisecond
	r := NewResolver(p, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Resolve(ctx, "tok-alice")
	assert.ErrorIs(t, err, context.Canceled)

	id, err := r.Resolve(context.Background(), "tok-alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.ID)
}

func TestSweepRemovesExpired(t *testing.T) {
	p := newProvider()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	r := NewResolver(p, time.Second, WithClock(clock.Now))

	_, err := r.Resolve(context.Background(), "tok-alice")
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "tok-root")
	require.NoError(t, err)

	assert.Equal(t, 0, r.Sweep())
	clock.Advance(2 * time.Second)
	assert.Equal(t, 2, r.Sweep())
}

func TestHashTokenIsStable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
