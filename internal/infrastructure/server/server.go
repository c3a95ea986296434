package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	httpHandlers "github.com/storefront/catalog/internal/adapters/http"
	"github.com/storefront/catalog/internal/adapters/feed"
	"github.com/storefront/catalog/internal/application/services"
	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/config"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
	"github.com/storefront/catalog/internal/ports"
)

// Dependencies are the adapters the server wires its services on
type Dependencies struct {
	Repository ports.DocumentRepository
	Seed       ports.SeedSource
	FeedClient ports.FeedClient
	Metrics    *metrics.Metrics
}

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	logger  *logger.Logger
	repo    ports.DocumentRepository
	metrics *metrics.Metrics
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a validator with the catalog's custom tags registered
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return entities.ValidShelfID(fl.Field().String())
	})
	return &CustomValidator{validator: v}
}

// Validate validates structs
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// New creates a new server instance
func New(cfg *config.Config, deps Dependencies, appLogger *logger.Logger) (*Server, error) {
	if deps.Repository == nil {
		return nil, errors.New("server: repository is required")
	}
	if deps.Seed == nil {
		return nil, errors.New("server: seed source is required")
	}

	e := echo.New()

	// Set custom validator
	e.Validator = NewValidator()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	// Initialize services
	catalogService := services.NewCatalogService(deps.Repository, appLogger)
	importService := services.NewImportService(deps.Repository, deps.Seed, appLogger)
	feedService := services.NewFeedService(deps.FeedClient, feed.NewCache(cfg.Feed.CacheTTL), appLogger, deps.Metrics)

	// Initialize handlers
	catalogHandler := httpHandlers.NewCatalogHandler(catalogService, appLogger)
	adminHandler := httpHandlers.NewAdminHandler(catalogService, importService, appLogger)
	feedHandler := httpHandlers.NewFeedHandler(feedService, appLogger)

	server := &Server{
		echo:    e,
		config:  cfg,
		logger:  appLogger,
		repo:    deps.Repository,
		metrics: deps.Metrics,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup metrics
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		server.setupMetrics()
	}

	// Setup routes
	server.setupRoutes(catalogHandler, adminHandler, feedHandler)

	return server, nil
}

// Handler exposes the echo instance for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.echo
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(catalogHandler *httpHandlers.CatalogHandler, adminHandler *httpHandlers.AdminHandler, feedHandler *httpHandlers.FeedHandler) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/ready", s.readinessCheck)

	api := s.echo.Group("/api")

	// Product routes
	api.GET("/products", catalogHandler.GetProducts)
	api.GET("/products/:shelfId/:productId", catalogHandler.GetProduct)
	api.POST("/products/:shelfId", catalogHandler.CreateProduct)
	api.PUT("/products/:shelfId/:productId", catalogHandler.UpdateProduct)
	api.DELETE("/products/:shelfId/:productId", catalogHandler.DeleteProduct)

	// Shelf routes
	api.GET("/shelves", catalogHandler.ListShelves)
	api.POST("/shelves", catalogHandler.CreateShelf)
	api.PUT("/shelves/:shelfId", catalogHandler.UpdateShelf)
	api.DELETE("/shelves/:shelfId", catalogHandler.DeleteShelf)

	// Admin routes
	api.POST("/import", adminHandler.Import)
	api.GET("/health", adminHandler.Health)
	api.POST("/test-write", adminHandler.TestWrite)

	// Media feed
	api.GET("/instagram", feedHandler.GetPosts)

	// Storefront build, when configured
	if s.config.Server.StaticDir != "" {
		s.setupStatic(s.config.Server.StaticDir)
	}
}

// Health check handlers
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) readinessCheck(c echo.Context) error {
	stats, err := s.repo.Stat(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "store_unavailable",
		})
	}
	if stats.Corrupt {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": "data_file_corrupt",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	address := s.config.Server.GetAddr()
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout
	s.echo.Server.IdleTimeout = s.config.Server.IdleTimeout

	s.logger.Infow("Starting server",
		"address", address,
		"data_file", s.config.Store.DataFile,
		"backup_dir", s.config.Store.BackupDir,
		"feed_configured", s.config.Feed.FeedConfigured(),
	)

	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler renders every error as {"error": ..., "message": ...}
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		var (
			code = http.StatusInternalServerError
			body = httpHandlers.ErrorResponse{Error: "Internal server error"}
		)

		var he *echo.HTTPError
		var verrs validator.ValidationErrors
		switch {
		case errors.As(err, &he):
			code = he.Code
			switch msg := he.Message.(type) {
			case httpHandlers.ErrorResponse:
				body = msg
			case string:
				body = httpHandlers.ErrorResponse{Error: msg}
			default:
				body = httpHandlers.ErrorResponse{Error: http.StatusText(code)}
			}
			if code == http.StatusNotFound && he.Internal == nil && body.Error == http.StatusText(http.StatusNotFound) {
				body = httpHandlers.ErrorResponse{Error: "Endpoint not found"}
			}
			if he.Internal != nil {
				err = he.Internal
			}
		case errors.As(err, &verrs):
			code = http.StatusBadRequest
			body = httpHandlers.ErrorResponse{Error: "Validation failed", Message: verrs.Error()}
		default:
			body.Message = err.Error()
		}

		if code >= http.StatusInternalServerError {
			logger.Errorw("Server error", "error", err, "path", c.Request().URL.Path, "status", code)
		}

		// Send response
		if !c.Response().Committed {
			if c.Request().Method == http.MethodHead {
				err = c.NoContent(code)
			} else {
				err = c.JSON(code, body)
			}
			if err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
		}
	}
}
