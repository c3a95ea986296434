package http

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/ports"
)

// CatalogHandler handles shelf and product requests
type CatalogHandler struct {
	catalogService ports.CatalogService
	logger         *logger.Logger
}

// NewCatalogHandler creates a new catalog handler
func NewCatalogHandler(catalogService ports.CatalogService, logger *logger.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalogService: catalogService,
		logger:         logger,
	}
}

// GetProducts returns the whole document
func (h *CatalogHandler) GetProducts(c echo.Context) error {
	doc, err := h.catalogService.GetDocument(c.Request().Context())
	if err != nil {
		h.logger.Errorw("Get products failed", "error", err)
		return errorFor(err, "Failed to read products")
	}

	return c.JSON(http.StatusOK, doc)
}

// GetProduct returns a single product
func (h *CatalogHandler) GetProduct(c echo.Context) error {
	shelfID, productID := c.Param("shelfId"), c.Param("productId")

	product, err := h.catalogService.GetProduct(c.Request().Context(), shelfID, productID)
	if err != nil {
		return errorFor(err, "Failed to read product")
	}

	return c.JSON(http.StatusOK, product)
}

// CreateProduct adds a product to a shelf
func (h *CatalogHandler) CreateProduct(c echo.Context) error {
	shelfID := c.Param("shelfId")

	var payload entities.Product
	if err := c.Bind(&payload); err != nil {
		return badRequest("Invalid request format", err)
	}

	if err := c.Validate(&payload); err != nil {
		return badRequest("Product ID and title are required", err)
	}

	product, err := h.catalogService.CreateProduct(c.Request().Context(), shelfID, payload)
	if err != nil {
		h.logger.Errorw("Create product failed", "error", err, "shelf_id", shelfID, "product_id", payload.ID)
		return errorFor(err, "Failed to create product")
	}

	return c.JSON(http.StatusOK, ProductResponse{
		Product: *product,
		Ack:     saved("Product created and saved successfully"),
	})
}

// UpdateProduct merges the payload over the stored product
func (h *CatalogHandler) UpdateProduct(c echo.Context) error {
	shelfID, productID := c.Param("shelfId"), c.Param("productId")

	var payload entities.Product
	if err := c.Bind(&payload); err != nil {
		return badRequest("Invalid request format", err)
	}

	product, err := h.catalogService.UpdateProduct(c.Request().Context(), shelfID, productID, payload)
	if err != nil {
		h.logger.Errorw("Update product failed", "error", err, "shelf_id", shelfID, "product_id", productID)
		return errorFor(err, "Failed to update product")
	}

	return c.JSON(http.StatusOK, ProductResponse{
		Product: *product,
		Ack:     saved("Product updated and saved successfully"),
	})
}

// DeleteProduct removes a product from a shelf
func (h *CatalogHandler) DeleteProduct(c echo.Context) error {
	shelfID, productID := c.Param("shelfId"), c.Param("productId")

	if err := h.catalogService.DeleteProduct(c.Request().Context(), shelfID, productID); err != nil {
		h.logger.Errorw("Delete product failed", "error", err, "shelf_id", shelfID, "product_id", productID)
		return errorFor(err, "Failed to delete product")
	}

	return c.JSON(http.StatusOK, DeleteResponse{
		Success: true,
		Ack:     saved("Product deleted and saved successfully"),
	})
}

// ListShelves returns every shelf
func (h *CatalogHandler) ListShelves(c echo.Context) error {
	shelves, err := h.catalogService.ListShelves(c.Request().Context())
	if err != nil {
		h.logger.Errorw("List shelves failed", "error", err)
		return errorFor(err, "Failed to read shelves")
	}

	return c.JSON(http.StatusOK, shelves)
}

// CreateShelf appends a new shelf
func (h *CatalogHandler) CreateShelf(c echo.Context) error {
	var req ports.CreateShelfRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request format", err)
	}

	if err := c.Validate(&req); err != nil {
		return badRequest(shelfValidationTitle(err), err)
	}

	shelf, err := h.catalogService.CreateShelf(c.Request().Context(), req)
	if err != nil {
		h.logger.Errorw("Create shelf failed", "error", err, "shelf_id", req.ID)
		return errorFor(err, "Failed to create shelf")
	}

	return c.JSON(http.StatusOK, ShelfResponse{
		Shelf: *shelf,
		Ack:   saved("Shelf created and saved successfully"),
	})
}

// UpdateShelf applies a partial update to a shelf
func (h *CatalogHandler) UpdateShelf(c echo.Context) error {
	shelfID := c.Param("shelfId")

	var req ports.UpdateShelfRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("Invalid request format", err)
	}

	shelf, err := h.catalogService.UpdateShelf(c.Request().Context(), shelfID, req)
	if err != nil {
		h.logger.Errorw("Update shelf failed", "error", err, "shelf_id", shelfID)
		return errorFor(err, "Failed to update shelf")
	}

	return c.JSON(http.StatusOK, ShelfResponse{
		Shelf: *shelf,
		Ack:   saved("Shelf updated and saved successfully"),
	})
}

// DeleteShelf removes a shelf and its products
func (h *CatalogHandler) DeleteShelf(c echo.Context) error {
	shelfID := c.Param("shelfId")

	if err := h.catalogService.DeleteShelf(c.Request().Context(), shelfID); err != nil {
		h.logger.Errorw("Delete shelf failed", "error", err, "shelf_id", shelfID)
		return errorFor(err, "Failed to delete shelf")
	}

	return c.JSON(http.StatusOK, DeleteResponse{
		Success: true,
		Ack:     saved("Shelf deleted and saved successfully"),
	})
}

func shelfValidationTitle(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == "slug" {
				return "Shelf ID must contain only lowercase letters, digits and dashes"
			}
		}
	}
	return "Shelf ID and title are required"
}
