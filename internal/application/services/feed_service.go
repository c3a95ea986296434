package services

import (
	"context"
	"fmt"

	"github.com/storefront/catalog/internal/adapters/feed"
	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
	"github.com/storefront/catalog/internal/ports"
)

// FeedService serves recent media posts through a TTL cache
type FeedService struct {
	client  ports.FeedClient
	cache   *feed.Cache
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewFeedService creates a new feed service
func NewFeedService(client ports.FeedClient, cache *feed.Cache, logger *logger.Logger, m *metrics.Metrics) *FeedService {
	return &FeedService{
		client:  client,
		cache:   cache,
		logger:  logger.WithComponent("feed"),
		metrics: m,
	}
}

// Posts returns the cached posts, refreshing them when stale
func (s *FeedService) Posts(ctx context.Context) ([]ports.MediaPost, error) {
	if s.client == nil || !s.client.Configured() {
		return nil, entities.ErrFeedNotConfigured
	}

	posts, source, err := s.cache.Get(ctx, s.client.Fetch)
	s.metrics.ObserveFeed(source)

	switch {
	case err != nil:
		s.logger.Errorw("Failed to fetch media posts", "error", err)
		return nil, fmt.Errorf("failed to fetch media posts: %w", err)
	case source == feed.SourceStale:
		s.logger.Warnw("Serving stale media posts after fetch error", "count", len(posts))
	case source == feed.SourceUpstream:
		s.logger.Infow("Fetched media posts", "count", len(posts))
	}

	return posts, nil
}
