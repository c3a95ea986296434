package services

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/catalog/internal/adapters/repository"
	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/ports"
)

const dataFile = "/srv/data/products.json"

func newTestRepo(t *testing.T) (*repository.FileRepository, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	log := logger.NewNop()
	backups := repository.NewBackupManager(fs, dataFile, "/srv/data/backups", 10, log)
	return repository.NewFileRepository(fs, dataFile, backups, log), fs
}

func strPtr(s string) *string { return &s }

func newCatalog(t *testing.T) (*CatalogService, *repository.FileRepository, afero.Fs) {
	t.Helper()
	repo, fs := newTestRepo(t)
	return NewCatalogService(repo, logger.NewNop()), repo, fs
}

func TestCatalogService_CreateShelfAndProduct(t *testing.T) {
	svc, repo, _ := newCatalog(t)
	ctx := context.Background()

	shelf, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "shelf-iphone", Title: "iPhone"})
	require.NoError(t, err)
	assert.Equal(t, "shelf-iphone", shelf.ID)
	assert.NotNil(t, shelf.Items)
	assert.Empty(t, shelf.Items)

	product, err := svc.CreateProduct(ctx, "shelf-iphone", entities.Product{ID: "iphone-17", Title: "iPhone 17"})
	require.NoError(t, err)
	assert.Equal(t, entities.CardTypeHCard, product.Type)
	assert.Equal(t, entities.CardSize("40"), product.CardSize)

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Shelves, 1)
	require.Len(t, doc.Shelves[0].Items, 1)
	assert.Equal(t, *product, doc.Shelves[0].Items[0])
}

func TestCatalogService_CreateShelfValidation(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ports.CreateShelfRequest
		want error
	}{
		{"missing id", ports.CreateShelfRequest{Title: "iPhone"}, entities.ErrValidation},
		{"missing title", ports.CreateShelfRequest{ID: "shelf-iphone"}, entities.ErrValidation},
		{"bad slug", ports.CreateShelfRequest{ID: "Shelf iPhone", Title: "iPhone"}, entities.ErrValidation},
		{"duplicate items", ports.CreateShelfRequest{ID: "shelf-x", Title: "X", Items: []entities.Product{
			{ID: "a", Title: "A"}, {ID: "a", Title: "A again"},
		}}, entities.ErrDuplicateProduct},
		{"invalid item type", ports.CreateShelfRequest{ID: "shelf-y", Title: "Y", Items: []entities.Product{
			{ID: "a", Title: "A", Type: "banner"},
		}}, entities.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateShelf(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCatalogService_UniquenessLeavesDocumentUntouched(t *testing.T) {
	svc, _, fs := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "shelf-iphone", Title: "iPhone"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, "shelf-iphone", entities.Product{ID: "iphone-17", Title: "iPhone 17"})
	require.NoError(t, err)

	before, err := afero.ReadFile(fs, dataFile)
	require.NoError(t, err)

	_, err = svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "shelf-iphone", Title: "Again"})
	assert.ErrorIs(t, err, entities.ErrDuplicateShelf)

	_, err = svc.CreateProduct(ctx, "shelf-iphone", entities.Product{ID: "iphone-17", Title: "Again"})
	assert.ErrorIs(t, err, entities.ErrDuplicateProduct)

	after, err := afero.ReadFile(fs, dataFile)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestCatalogService_CreateProductErrors(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, "missing", entities.Product{Title: "No id"})
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = svc.CreateProduct(ctx, "missing", entities.Product{ID: "p", Title: "P"})
	assert.ErrorIs(t, err, entities.ErrShelfNotFound)

	_, err = svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "s", Title: "S"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, "s", entities.Product{ID: "p", Title: "P", Type: "banner"})
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestCatalogService_PartialProductUpdate(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "shelf-iphone", Title: "iPhone"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, "shelf-iphone", entities.Product{
		ID:         "iphone-17",
		Title:      "iPhone 17",
		Type:       entities.CardTypeCCard,
		CardSize:   "60",
		Image:      strPtr("/img/iphone-17.png"),
		PartNumber: strPtr("MX17"),
	})
	require.NoError(t, err)

	updated, err := svc.UpdateProduct(ctx, "shelf-iphone", "iphone-17", entities.Product{ID: "ignored", Title: "New"})
	require.NoError(t, err)
	assert.Equal(t, "iphone-17", updated.ID)
	assert.Equal(t, "New", updated.Title)

	stored, err := svc.GetProduct(ctx, "shelf-iphone", "iphone-17")
	require.NoError(t, err)
	assert.Equal(t, "New", stored.Title)
	assert.Equal(t, entities.CardTypeCCard, stored.Type)
	assert.Equal(t, entities.CardSize("60"), stored.CardSize)
	require.NotNil(t, stored.Image)
	assert.Equal(t, "/img/iphone-17.png", *stored.Image)
	require.NotNil(t, stored.PartNumber)
	assert.Equal(t, "MX17", *stored.PartNumber)
}

func TestCatalogService_UpdateAndDeleteNotFound(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.UpdateShelf(ctx, "nope", ports.UpdateShelfRequest{Title: "X"})
	assert.ErrorIs(t, err, entities.ErrShelfNotFound)
	assert.ErrorIs(t, svc.DeleteShelf(ctx, "nope"), entities.ErrShelfNotFound)

	_, err = svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "s", Title: "S"})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, "s", "nope", entities.Product{Title: "X"})
	assert.ErrorIs(t, err, entities.ErrProductNotFound)
	assert.ErrorIs(t, svc.DeleteProduct(ctx, "s", "nope"), entities.ErrProductNotFound)
	_, err = svc.GetProduct(ctx, "s", "nope")
	assert.ErrorIs(t, err, entities.ErrProductNotFound)
	_, err = svc.GetProduct(ctx, "nope", "nope")
	assert.ErrorIs(t, err, entities.ErrShelfNotFound)
}

func TestCatalogService_UpdateShelfKeepsItems(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{
		ID:             "shelf-mac",
		Title:          "Mac",
		SecondaryTitle: strPtr("Laptops"),
		Items:          []entities.Product{{ID: "mbp", Title: "MacBook Pro"}},
	})
	require.NoError(t, err)

	updated, err := svc.UpdateShelf(ctx, "shelf-mac", ports.UpdateShelfRequest{Title: "Mac & Desktops"})
	require.NoError(t, err)
	assert.Equal(t, "shelf-mac", updated.ID)
	assert.Equal(t, "Mac & Desktops", updated.Title)
	require.NotNil(t, updated.SecondaryTitle)
	assert.Equal(t, "Laptops", *updated.SecondaryTitle)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, entities.CardTypeHCard, updated.Items[0].Type)

	updated, err = svc.UpdateShelf(ctx, "shelf-mac", ports.UpdateShelfRequest{
		Items: []entities.Product{{ID: "imac", Title: "iMac", CardSize: "50"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Mac & Desktops", updated.Title)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "imac", updated.Items[0].ID)
	assert.Equal(t, entities.CardSize("50"), updated.Items[0].CardSize)
}

func TestCatalogService_CascadeDelete(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "shelf-watch", Title: "Watch"})
	require.NoError(t, err)
	for _, id := range []string{"s11", "ultra-3", "se"} {
		_, err := svc.CreateProduct(ctx, "shelf-watch", entities.Product{ID: id, Title: id})
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteShelf(ctx, "shelf-watch"))

	for _, id := range []string{"s11", "ultra-3", "se"} {
		_, err := svc.GetProduct(ctx, "shelf-watch", id)
		assert.ErrorIs(t, err, entities.ErrShelfNotFound)
	}
	shelves, err := svc.ListShelves(ctx)
	require.NoError(t, err)
	assert.Empty(t, shelves)
}

func TestCatalogService_DeleteProductKeepsOrder(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "s", Title: "S"})
	require.NoError(t, err)
	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.CreateProduct(ctx, "s", entities.Product{ID: id, Title: id})
		require.NoError(t, err)
	}

	require.NoError(t, svc.DeleteProduct(ctx, "s", "b"))

	shelves, err := svc.ListShelves(ctx)
	require.NoError(t, err)
	require.Len(t, shelves[0].Items, 2)
	assert.Equal(t, "a", shelves[0].Items[0].ID)
	assert.Equal(t, "c", shelves[0].Items[1].ID)
}

func TestCatalogService_CorruptFileRefusesMutation(t *testing.T) {
	svc, _, fs := newCatalog(t)
	ctx := context.Background()

	require.NoError(t, fs.MkdirAll("/srv/data", 0o755))
	require.NoError(t, afero.WriteFile(fs, dataFile, []byte(`{not json`), 0o644))

	shelves, err := svc.ListShelves(ctx)
	require.NoError(t, err)
	assert.Empty(t, shelves)

	_, err = svc.CreateShelf(ctx, ports.CreateShelfRequest{ID: "s", Title: "S"})
	assert.ErrorIs(t, err, entities.ErrDocumentCorrupt)

	data, err := afero.ReadFile(fs, dataFile)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(data))
}

func TestCatalogService_RewriteAndHealth(t *testing.T) {
	svc, _, _ := newCatalog(t)
	ctx := context.Background()

	_, err := svc.CreateShelf(ctx, ports.CreateShelfRequest{
		ID: "s", Title: "S", Items: []entities.Product{{ID: "a", Title: "A"}},
	})
	require.NoError(t, err)

	doc, err := svc.Rewrite(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, 1)

	stats, err := svc.Health(ctx)
	require.NoError(t, err)
	assert.True(t, stats.FileExists)
	assert.Equal(t, 1, stats.ShelvesCount)
	assert.Equal(t, 1, stats.TotalProducts)
	assert.Equal(t, dataFile, stats.DataFile)
	assert.Greater(t, stats.BackupsCount, 0)
}
