// Package jwks caches JSON Web Key Sets used to verify caller tokens.
//
// Entries live for a fixed TTL counted from the fetch. Concurrent misses for
// the same slot share a single fetch, and a fetch keeps running even when
// the caller that started it gives up, so the next caller can use its
// result.
package jwks

import (
	"context"
	"errors"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-logr/logr"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/metrics"
)

// DefaultSlot is the slot used by Keys.
const DefaultSlot = "default"

const (
	defaultTTL          = time.Hour
	defaultCapacity     = 1
	defaultFetchTimeout = 10 * time.Second
)

// Set is a fetched key set.
type Set struct {
	Keys      []jose.JSONWebKey
	FetchedAt time.Time
}

// Fetcher retrieves the key set for a slot.
type Fetcher interface {
	Fetch(ctx context.Context, slot string) (*Set, error)
}

// FetcherFunc adapts an ordinary function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, slot string) (*Set, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, slot string) (*Set, error) {
	return f(ctx, slot)
}

// Cache is a bounded TTL cache of key sets.
type Cache struct {
	fetcher      Fetcher
	ttl          time.Duration
	capacity     int
	fetchTimeout time.Duration
	log          logr.Logger
	metrics      *metrics.Metrics

	entries *expirable.LRU[string, *Set]
	group   singleflight.Group
}

// Option configures the Cache.
type Option func(*Cache)

// WithTTL sets how long a fetched set is served.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity bounds the number of cached slots.
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithFetchTimeout bounds a single fetch, independent of the callers
// waiting on it.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.fetchTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(c *Cache) {
		c.log = l
	}
}

// WithMetrics records lookups on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// New creates a Cache filled by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:      fetcher,
		ttl:          defaultTTL,
		capacity:     defaultCapacity,
		fetchTimeout: defaultFetchTimeout,
		log:          logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.entries = expirable.NewLRU[string, *Set](c.capacity, nil, c.ttl)
	return c
}

// Keys returns the keys of the default slot.
func (c *Cache) Keys(ctx context.Context) ([]jose.JSONWebKey, error) {
	set, err := c.Get(ctx, DefaultSlot)
	if err != nil {
		return nil, err
	}
	return set.Keys, nil
}

// Get returns the live set for slot, fetching it on a miss. Failures are
// reported as ErrCategoryKeySource.
func (c *Cache) Get(ctx context.Context, slot string) (*Set, error) {
	if set, ok := c.entries.Get(slot); ok {
		c.metrics.KeySetLookup(metrics.OutcomeHit)
		return set, nil
	}

	ch := c.group.DoChan(slot, func() (interface{}, error) {
		// A fetch that finished while this call was being scheduled has
		// already filled the slot.
		if set, ok := c.entries.Get(slot); ok {
			return set, nil
		}

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()

		start := time.Now()
		set, err := c.fetcher.Fetch(fctx, slot)
		if err == nil && set == nil {
			err = errors.New("fetcher returned no key set")
		}
		if err != nil {
			c.metrics.KeySetLookup(metrics.OutcomeError)
			c.log.Error(err, "key set fetch failed", "slot", slot)
			return nil, err
		}
		if set.FetchedAt.IsZero() {
			set.FetchedAt = time.Now()
		}
		c.entries.Add(slot, set)
		c.metrics.KeySetLookup(metrics.OutcomeSuccess)
		c.log.V(1).Info("key set fetched", "slot", slot, "keys", len(set.Keys), "elapsed", time.Since(start))
		return set, nil
	})

	select {
	case <-ctx.Done():
		return nil, cloudauth.ErrKeySource("gave up waiting for key set").
			WithCause(ctx.Err()).
			WithDetail("slot", slot)
	case res := <-ch:
		if res.Err != nil {
			return nil, cloudauth.ErrKeySource("key set unavailable").
				WithCause(res.Err).
				WithDetail("slot", slot)
		}
		return res.Val.(*Set), nil
	}
}

// Len returns the number of live slots.
func (c *Cache) Len() int {
	return c.entries.Len()
}
