package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/storefront/catalog/internal/ports"
)

var mediaFields = strings.Join([]string{
	"id",
	"caption",
	"media_url",
	"thumbnail_url",
	"permalink",
	"media_type",
	"timestamp",
	"like_count",
	"comments_count",
}, ",")

var _ ports.FeedClient = (*Client)(nil)

// UpstreamError is returned when the media API answers with a non-2xx status
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("media API returned %d", e.StatusCode)
	}
	return fmt.Sprintf("media API returned %d: %s", e.StatusCode, e.Message)
}

// Client fetches recent media from the Instagram Graph API
type Client struct {
	endpoint    string
	accessToken string
	limit       int
	httpClient  *http.Client
}

// NewClient creates a media API client
func NewClient(endpoint, accessToken string, limit int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		endpoint:    endpoint,
		accessToken: accessToken,
		limit:       limit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Configured reports whether an access token is set
func (c *Client) Configured() bool {
	return c.accessToken != ""
}

type mediaItem struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaURL      string `json:"media_url"`
	ThumbnailURL  string `json:"thumbnail_url"`
	Permalink     string `json:"permalink"`
	MediaType     string `json:"media_type"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}

type mediaResponse struct {
	Data []mediaItem `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Fetch requests the most recent posts
func (c *Client) Fetch(ctx context.Context) ([]ports.MediaPost, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse media endpoint: %w", err)
	}
	q := u.Query()
	q.Set("fields", mediaFields)
	q.Set("access_token", c.accessToken)
	q.Set("limit", strconv.Itoa(c.limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read media response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		upstream := &UpstreamError{StatusCode: resp.StatusCode}
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil {
			upstream.Message = apiErr.Error.Message
		}
		return nil, upstream
	}

	var decoded mediaResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode media response: %w", err)
	}

	posts := make([]ports.MediaPost, 0, len(decoded.Data))
	for _, item := range decoded.Data {
		mediaURL := item.MediaURL
		if item.MediaType == "VIDEO" && item.ThumbnailURL != "" {
			mediaURL = item.ThumbnailURL
		}
		posts = append(posts, ports.MediaPost{
			ID:            item.ID,
			Caption:       item.Caption,
			MediaURL:      mediaURL,
			Permalink:     item.Permalink,
			MediaType:     item.MediaType,
			Timestamp:     item.Timestamp,
			LikeCount:     item.LikeCount,
			CommentsCount: item.CommentsCount,
		})
	}
	return posts, nil
}
