package feed

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/storefront/catalog/internal/ports"
)

// Sources reported by Cache.Get
const (
	SourceCache    = "cache"
	SourceUpstream = "upstream"
	SourceStale    = "stale"
	SourceError    = "error"
)

// FetchFunc loads fresh posts
type FetchFunc func(ctx context.Context) ([]ports.MediaPost, error)

// Cache keeps the last successful fetch for ttl. Concurrent refreshes share
// one upstream call.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	posts     []ports.MediaPost
	fetchedAt time.Time
	lastErr   error

	group singleflight.Group
}

// NewCache creates an empty cache
func NewCache(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, now: time.Now}
}

// SetClock overrides the time source
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

type fetchResult struct {
	posts  []ports.MediaPost
	source string
}

// Get returns cached posts while they are fresh, otherwise refreshes them.
// When the refresh fails and earlier posts exist, those are returned with
// SourceStale.
func (c *Cache) Get(ctx context.Context, fetch FetchFunc) ([]ports.MediaPost, string, error) {
	if posts, ok := c.fresh(); ok {
		return posts, SourceCache, nil
	}

	ch := c.group.DoChan("posts", func() (interface{}, error) {
		// The shared refresh must not die with whichever caller started it
		posts, err := fetch(context.WithoutCancel(ctx))
		return c.store(posts, err)
	})

	select {
	case <-ctx.Done():
		return nil, SourceError, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, SourceError, res.Err
		}
		r := res.Val.(fetchResult)
		return r.posts, r.source, nil
	}
}

func (c *Cache) fresh() ([]ports.MediaPost, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.posts) == 0 || c.lastErr != nil {
		return nil, false
	}
	if c.now().Sub(c.fetchedAt) >= c.ttl {
		return nil, false
	}
	return c.posts, true
}

func (c *Cache) store(posts []ports.MediaPost, err error) (fetchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.lastErr = err
		if len(c.posts) > 0 {
			return fetchResult{posts: c.posts, source: SourceStale}, nil
		}
		return fetchResult{}, err
	}

	c.posts = posts
	c.fetchedAt = c.now()
	c.lastErr = nil
	return fetchResult{posts: posts, source: SourceUpstream}, nil
}
