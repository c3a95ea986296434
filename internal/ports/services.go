package ports

import (
	"context"
	"encoding/json"

	"github.com/storefront/catalog/internal/domain/entities"
)

// CatalogService interface for shelf and product management
type CatalogService interface {
	GetDocument(ctx context.Context) (*entities.Document, error)
	ListShelves(ctx context.Context) ([]entities.Shelf, error)
	CreateShelf(ctx context.Context, req CreateShelfRequest) (*entities.Shelf, error)
	UpdateShelf(ctx context.Context, shelfID string, req UpdateShelfRequest) (*entities.Shelf, error)
	DeleteShelf(ctx context.Context, shelfID string) error
	GetProduct(ctx context.Context, shelfID, productID string) (*entities.Product, error)
	CreateProduct(ctx context.Context, shelfID string, product entities.Product) (*entities.Product, error)
	UpdateProduct(ctx context.Context, shelfID, productID string, product entities.Product) (*entities.Product, error)
	DeleteProduct(ctx context.Context, shelfID, productID string) error
	Rewrite(ctx context.Context) (*entities.Document, error)
	Health(ctx context.Context) (*StoreStats, error)
}

// ImportService interface for bulk catalog import
type ImportService interface {
	Import(ctx context.Context) (*ImportSummary, error)
}

// FeedService interface for the social media feed proxy
type FeedService interface {
	Posts(ctx context.Context) ([]MediaPost, error)
}

// FeedClient fetches recent posts from the media provider
type FeedClient interface {
	Configured() bool
	Fetch(ctx context.Context) ([]MediaPost, error)
}

// Request/response types

// CreateShelfRequest is the payload for creating a shelf
type CreateShelfRequest struct {
	ID             string             `json:"id" validate:"required,slug"`
	Title          string             `json:"title" validate:"required"`
	SecondaryTitle *string            `json:"secondaryTitle,omitempty"`
	Items          []entities.Product `json:"items,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the payload as a shelf so unknown keys are kept
func (r *CreateShelfRequest) UnmarshalJSON(data []byte) error {
	var shelf entities.Shelf
	if err := json.Unmarshal(data, &shelf); err != nil {
		return err
	}
	*r = CreateShelfRequest{
		ID:             shelf.ID,
		Title:          shelf.Title,
		SecondaryTitle: shelf.SecondaryTitle,
		Items:          shelf.Items,
		Extra:          shelf.Extra,
	}
	return nil
}

// UpdateShelfRequest is the payload for updating a shelf. Absent fields are
// kept from the stored shelf; an id in the payload is ignored.
type UpdateShelfRequest struct {
	Title          string             `json:"title"`
	SecondaryTitle *string            `json:"secondaryTitle,omitempty"`
	Items          []entities.Product `json:"items,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the payload as a shelf so unknown keys are kept
func (r *UpdateShelfRequest) UnmarshalJSON(data []byte) error {
	var shelf entities.Shelf
	if err := json.Unmarshal(data, &shelf); err != nil {
		return err
	}
	*r = UpdateShelfRequest{
		Title:          shelf.Title,
		SecondaryTitle: shelf.SecondaryTitle,
		Items:          shelf.Items,
		Extra:          shelf.Extra,
	}
	return nil
}

// ImportSummary reports the result of a bulk import
type ImportSummary struct {
	Shelves  int `json:"shelves"`
	Products int `json:"products"`
}

// MediaPost is a single post returned by the feed proxy
type MediaPost struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	MediaURL      string `json:"media_url"`
	Permalink     string `json:"permalink"`
	MediaType     string `json:"media_type"`
	Timestamp     string `json:"timestamp"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}
