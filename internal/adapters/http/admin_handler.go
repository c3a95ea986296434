package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/ports"
)

// timestampLayout matches the millisecond ISO-8601 form browsers produce
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// AdminHandler handles import, health and write diagnostics
type AdminHandler struct {
	catalogService ports.CatalogService
	importService  ports.ImportService
	logger         *logger.Logger
	now            func() time.Time
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(catalogService ports.CatalogService, importService ports.ImportService, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		catalogService: catalogService,
		importService:  importService,
		logger:         logger,
		now:            time.Now,
	}
}

// Import replaces the catalog with the seed catalog
func (h *AdminHandler) Import(c echo.Context) error {
	summary, err := h.importService.Import(c.Request().Context())
	if err != nil {
		h.logger.Errorw("Import failed", "error", err)
		return errorFor(err, "Import failed")
	}

	return c.JSON(http.StatusOK, ImportResponse{
		Success:  true,
		Saved:    true,
		Message:  fmt.Sprintf("Imported %d shelves and saved successfully", summary.Shelves),
		Shelves:  summary.Shelves,
		Products: summary.Products,
	})
}

// TestWrite re-persists the current document through the full write path
func (h *AdminHandler) TestWrite(c echo.Context) error {
	if _, err := h.catalogService.Rewrite(c.Request().Context()); err != nil {
		h.logger.Errorw("Test write failed", "error", err)
		return errorFor(err, "Test write failed")
	}

	return c.JSON(http.StatusOK, TestWriteResponse{
		Success:   true,
		Message:   "Test write completed - check server logs for details",
		Timestamp: h.timestamp(),
	})
}

// Health reports on the data file
func (h *AdminHandler) Health(c echo.Context) error {
	stats, err := h.catalogService.Health(c.Request().Context())
	if err != nil {
		h.logger.Errorw("Health check failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
	}

	return c.JSON(http.StatusOK, healthFromStats(stats, h.timestamp()))
}

func (h *AdminHandler) timestamp() string {
	return h.now().UTC().Format(timestampLayout)
}

func formatKB(size int64) string {
	return fmt.Sprintf("%.2f KB", float64(size)/1024)
}
