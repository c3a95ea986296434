package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/storefront/catalog/internal/adapters/feed"
	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/ports"
)

// FeedHandler serves the media feed proxy
type FeedHandler struct {
	feedService ports.FeedService
	logger      *logger.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(feedService ports.FeedService, logger *logger.Logger) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
		logger:      logger,
	}
}

// GetPosts returns recent media posts
func (h *FeedHandler) GetPosts(c echo.Context) error {
	posts, err := h.feedService.Posts(c.Request().Context())
	if err != nil {
		if errors.Is(err, entities.ErrFeedNotConfigured) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "Instagram feed not configured",
				Message: "Please set INSTAGRAM_ACCESS_TOKEN environment variable",
			})
		}

		message := err.Error()
		var upstream *feed.UpstreamError
		if errors.As(err, &upstream) && upstream.Message != "" {
			message = upstream.Message
		}
		return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to fetch Instagram posts",
			Message: message,
		}).SetInternal(err)
	}

	return c.JSON(http.StatusOK, posts)
}
