package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/xiaot623/gogo/consult/internal/domain"
)

// CacheResult labels a cache lookup for observers.
type CacheResult string

const (
	CacheHit  CacheResult = "hit"
	CacheMiss CacheResult = "miss"
)

type cacheEntry struct {
	identity  domain.CallerIdentity
	expiresAt time.Time
}

// Resolver maps tokens to identities, caching successful lookups for a TTL.
// The cache is best-effort: a miss only costs a provider round trip.
type Resolver struct {
	provider Provider
	ttl      time.Duration
	now      func() time.Time
	observe  func(CacheResult)

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithCacheObserver registers a callback invoked on every cache lookup.
func WithCacheObserver(fn func(CacheResult)) Option {
	return func(r *Resolver) { r.observe = fn }
}

// NewResolver creates a resolver backed by provider. A ttl <= 0 disables caching.
func NewResolver(provider Provider, ttl time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		provider: provider,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the identity for token. An empty token resolves to the
// anonymous caller without contacting the provider.
func (r *Resolver) Resolve(ctx context.Context, token string) (domain.CallerIdentity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.AnonymousCaller(), nil
	}

	key := HashToken(token)
	if id, ok := r.cached(key); ok {
		r.record(CacheHit)
		return id, nil
	}
	r.record(CacheMiss)

	// Lookups are shared between concurrent callers, so one caller going
	// away must not fail the lookup for the others.
	ch := r.group.DoChan(key, func() (interface{}, error) {
		return r.provider.Lookup(context.WithoutCancel(ctx), token)
	})

	select {
	case <-ctx.Done():
		return domain.CallerIdentity{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrNotFound) {
				return domain.CallerIdentity{}, ErrUnauthenticated
			}
			return domain.CallerIdentity{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, res.Err)
		}
		id := res.Val.(domain.CallerIdentity)
		if id.ID == "" || !id.Role.Valid() {
			return domain.CallerIdentity{}, ErrUnauthenticated
		}
		id.Anonymous = false
		r.store(key, id)
		return id, nil
	}
}

// Sweep drops expired cache entries and returns how many were removed.
func (r *Resolver) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, e := range r.cache {
		if !now.Before(e.expiresAt) {
			delete(r.cache, k)
			removed++
		}
	}
	return removed
}

func (r *Resolver) cached(key string) (domain.CallerIdentity, bool) {
	if r.ttl <= 0 {
		return domain.CallerIdentity{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.cache[key]
	if !ok {
		return domain.CallerIdentity{}, false
	}
	if !r.now().Before(e.expiresAt) {
		delete(r.cache, key)
		return domain.CallerIdentity{}, false
	}
	return e.identity, true
}

func (r *Resolver) store(key string, id domain.CallerIdentity) {
	if r.ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.cache[key] = cacheEntry{identity: id, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) record(result CacheResult) {
	if r.observe != nil {
		r.observe(result)
	}
}
