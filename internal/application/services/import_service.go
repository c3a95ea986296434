package services

import (
	"context"
	"fmt"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/ports"
)

// ImportService replaces the catalog with the seed catalog
type ImportService struct {
	repo   ports.DocumentRepository
	seed   ports.SeedSource
	logger *logger.Logger
}

// NewImportService creates a new import service
func NewImportService(repo ports.DocumentRepository, seed ports.SeedSource, logger *logger.Logger) *ImportService {
	return &ImportService{
		repo:   repo,
		seed:   seed,
		logger: logger.WithComponent("import"),
	}
}

// Import loads the seed, normalizes every item and writes the result as the
// new document in a single write.
func (s *ImportService) Import(ctx context.Context) (*ports.ImportSummary, error) {
	shelves, err := s.seed.Load(ctx)
	if err != nil {
		return nil, err
	}

	doc := &entities.Document{Shelves: make([]entities.Shelf, 0, len(shelves))}
	for _, shelf := range shelves {
		doc.Shelves = append(doc.Shelves, entities.Shelf{
			ID:             shelf.ID,
			Title:          shelf.Title,
			SecondaryTitle: shelf.SecondaryTitle,
			Items:          entities.NormalizeItems(shelf.Items),
		})
	}

	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrSeedInvalid, err)
	}

	if err := s.repo.Replace(ctx, doc); err != nil {
		return nil, err
	}

	summary := &ports.ImportSummary{
		Shelves:  len(doc.Shelves),
		Products: doc.ProductCount(),
	}
	s.logger.Infow("Catalog imported", "shelves", summary.Shelves, "products", summary.Products)
	return summary, nil
}
