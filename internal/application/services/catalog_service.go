package services

import (
	"context"
	"fmt"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/ports"
)

// CatalogService handles shelf and product operations. Every mutation runs
// inside DocumentRepository.Update, so it either lands on disk or returns an
// error and leaves the stored document unchanged.
type CatalogService struct {
	repo   ports.DocumentRepository
	logger *logger.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo ports.DocumentRepository, logger *logger.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger.WithComponent("catalog"),
	}
}

// GetDocument returns the whole catalog
func (s *CatalogService) GetDocument(ctx context.Context) (*entities.Document, error) {
	doc, err := s.repo.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return doc, nil
}

// ListShelves returns every shelf in order
func (s *CatalogService) ListShelves(ctx context.Context) ([]entities.Shelf, error) {
	doc, err := s.GetDocument(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Shelves, nil
}

// CreateShelf appends a new shelf
func (s *CatalogService) CreateShelf(ctx context.Context, req ports.CreateShelfRequest) (*entities.Shelf, error) {
	if req.ID == "" || req.Title == "" {
		return nil, fmt.Errorf("%w: shelf ID and title are required", entities.ErrValidation)
	}
	if !entities.ValidShelfID(req.ID) {
		return nil, fmt.Errorf("%w: shelf ID %q must contain only lowercase letters, digits and dashes", entities.ErrValidation, req.ID)
	}

	shelf := entities.Shelf{
		ID:             req.ID,
		Title:          req.Title,
		SecondaryTitle: req.SecondaryTitle,
		Items:          entities.NormalizeItems(req.Items),
		Extra:          req.Extra,
	}
	if err := shelf.ValidateItems(); err != nil {
		return nil, err
	}

	_, err := s.repo.Update(ctx, func(doc *entities.Document) error {
		if doc.FindShelf(shelf.ID) >= 0 {
			return fmt.Errorf("%w: %s", entities.ErrDuplicateShelf, shelf.ID)
		}
		doc.Shelves = append(doc.Shelves, shelf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogCatalogChange("shelf_created", shelf.ID, "")
	return &shelf, nil
}

// UpdateShelf merges req over the stored shelf. The shelf id is never changed.
func (s *CatalogService) UpdateShelf(ctx context.Context, shelfID string, req ports.UpdateShelfRequest) (*entities.Shelf, error) {
	payload := entities.Shelf{
		Title:          req.Title,
		SecondaryTitle: req.SecondaryTitle,
		Extra:          req.Extra,
	}
	if req.Items != nil {
		payload.Items = entities.NormalizeItems(req.Items)
	}

	var updated entities.Shelf
	_, err := s.repo.Update(ctx, func(doc *entities.Document) error {
		idx := doc.FindShelf(shelfID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrShelfNotFound, shelfID)
		}

		merged := entities.MergeShelf(payload, doc.Shelves[idx])
		merged.ID = shelfID
		if err := merged.ValidateItems(); err != nil {
			return err
		}

		doc.Shelves[idx] = merged
		updated = merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogCatalogChange("shelf_updated", shelfID, "")
	return &updated, nil
}

// DeleteShelf removes a shelf together with all of its products
func (s *CatalogService) DeleteShelf(ctx context.Context, shelfID string) error {
	_, err := s.repo.Update(ctx, func(doc *entities.Document) error {
		idx := doc.FindShelf(shelfID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrShelfNotFound, shelfID)
		}
		doc.Shelves = append(doc.Shelves[:idx], doc.Shelves[idx+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.LogCatalogChange("shelf_deleted", shelfID, "")
	return nil
}

// GetProduct returns a single product of a shelf
func (s *CatalogService) GetProduct(ctx context.Context, shelfID, productID string) (*entities.Product, error) {
	doc, err := s.GetDocument(ctx)
	if err != nil {
		return nil, err
	}

	idx := doc.FindShelf(shelfID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", entities.ErrShelfNotFound, shelfID)
	}
	shelf := &doc.Shelves[idx]

	pidx := shelf.FindProduct(productID)
	if pidx < 0 {
		return nil, fmt.Errorf("%w: %s", entities.ErrProductNotFound, productID)
	}

	product := shelf.Items[pidx]
	return &product, nil
}

// CreateProduct normalizes the payload and appends it to the shelf
func (s *CatalogService) CreateProduct(ctx context.Context, shelfID string, payload entities.Product) (*entities.Product, error) {
	if payload.ID == "" || payload.Title == "" {
		return nil, fmt.Errorf("%w: product ID and title are required", entities.ErrValidation)
	}

	product := entities.NormalizeProduct(payload, entities.Product{})
	if !product.Type.IsValid() {
		return nil, fmt.Errorf("%w: unknown product type %q", entities.ErrValidation, product.Type)
	}

	_, err := s.repo.Update(ctx, func(doc *entities.Document) error {
		idx := doc.FindShelf(shelfID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrShelfNotFound, shelfID)
		}
		shelf := &doc.Shelves[idx]
		if shelf.FindProduct(product.ID) >= 0 {
			return fmt.Errorf("%w: %s", entities.ErrDuplicateProduct, product.ID)
		}
		shelf.Items = append(shelf.Items, product)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogCatalogChange("product_created", shelfID, product.ID)
	return &product, nil
}

// UpdateProduct merges payload over the stored product. The product id in
// the path wins over any id in the payload.
func (s *CatalogService) UpdateProduct(ctx context.Context, shelfID, productID string, payload entities.Product) (*entities.Product, error) {
	var updated entities.Product
	_, err := s.repo.Update(ctx, func(doc *entities.Document) error {
		idx := doc.FindShelf(shelfID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrShelfNotFound, shelfID)
		}
		shelf := &doc.Shelves[idx]

		pidx := shelf.FindProduct(productID)
		if pidx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrProductNotFound, productID)
		}

		merged := entities.NormalizeProduct(payload, shelf.Items[pidx])
		merged.ID = productID
		if !merged.Type.IsValid() {
			return fmt.Errorf("%w: unknown product type %q", entities.ErrValidation, merged.Type)
		}

		shelf.Items[pidx] = merged
		updated = merged
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.LogCatalogChange("product_updated", shelfID, productID)
	return &updated, nil
}

// DeleteProduct removes a product from a shelf
func (s *CatalogService) DeleteProduct(ctx context.Context, shelfID, productID string) error {
	_, err := s.repo.Update(ctx, func(doc *entities.Document) error {
		idx := doc.FindShelf(shelfID)
		if idx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrShelfNotFound, shelfID)
		}
		shelf := &doc.Shelves[idx]

		pidx := shelf.FindProduct(productID)
		if pidx < 0 {
			return fmt.Errorf("%w: %s", entities.ErrProductNotFound, productID)
		}
		shelf.Items = append(shelf.Items[:pidx], shelf.Items[pidx+1:]...)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.LogCatalogChange("product_deleted", shelfID, productID)
	return nil
}

// Rewrite persists the current document unchanged, exercising the full write
// path.
func (s *CatalogService) Rewrite(ctx context.Context) (*entities.Document, error) {
	doc, err := s.repo.Update(ctx, func(*entities.Document) error { return nil })
	if err != nil {
		return nil, err
	}
	s.logger.Infow("Test write completed", "shelves", len(doc.Shelves), "products", doc.ProductCount())
	return doc, nil
}

// Health reports on the data file
func (s *CatalogService) Health(ctx context.Context) (*ports.StoreStats, error) {
	stats, err := s.repo.Stat(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}
	return stats, nil
}
