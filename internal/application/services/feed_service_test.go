package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/catalog/internal/adapters/feed"
	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
	"github.com/storefront/catalog/internal/ports"
)

type stubFeedClient struct {
	configured bool
	posts      []ports.MediaPost
	err        error
	calls      int
}

func (c *stubFeedClient) Configured() bool { return c.configured }

func (c *stubFeedClient) Fetch(ctx context.Context) ([]ports.MediaPost, error) {
	c.calls++
	return c.posts, c.err
}

func TestFeedService_NotConfigured(t *testing.T) {
	svc := NewFeedService(&stubFeedClient{}, feed.NewCache(time.Minute), logger.NewNop(), nil)

	_, err := svc.Posts(context.Background())
	assert.ErrorIs(t, err, entities.ErrFeedNotConfigured)
}

func TestFeedService_CachesAndFallsBack(t *testing.T) {
	client := &stubFeedClient{configured: true, posts: []ports.MediaPost{{ID: "1"}}}
	cache := feed.NewCache(time.Minute)
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })
	m := metrics.New()
	svc := NewFeedService(client, cache, logger.NewNop(), m)
	ctx := context.Background()

	posts, err := svc.Posts(ctx)
	require.NoError(t, err)
	assert.Len(t, posts, 1)

	_, err = svc.Posts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)

	now = now.Add(2 * time.Minute)
	client.posts, client.err = nil, errors.New("rate limited")
	posts, err = svc.Posts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", posts[0].ID)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeedRequests.WithLabelValues(feed.SourceUpstream)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeedRequests.WithLabelValues(feed.SourceCache)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FeedRequests.WithLabelValues(feed.SourceStale)))
}

func TestFeedService_ErrorWithoutCache(t *testing.T) {
	boom := errors.New("upstream down")
	client := &stubFeedClient{configured: true, err: boom}
	svc := NewFeedService(client, feed.NewCache(time.Minute), logger.NewNop(), nil)

	_, err := svc.Posts(context.Background())
	assert.ErrorIs(t, err, boom)
}
