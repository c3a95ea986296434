package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/ports"
)

// Ack marks a response to a mutation that was written and verified on disk
type Ack struct {
	Saved   bool   `json:"_saved"`
	Message string `json:"_message"`
}

func saved(message string) Ack {
	return Ack{Saved: true, Message: message}
}

// appendTo adds the ack fields to an encoded object
func (a Ack) appendTo(data []byte) ([]byte, error) {
	savedJSON, err := json.Marshal(a.Saved)
	if err != nil {
		return nil, err
	}
	messageJSON, err := json.Marshal(a.Message)
	if err != nil {
		return nil, err
	}
	return entities.AppendFields(data, map[string]json.RawMessage{
		"_saved":   savedJSON,
		"_message": messageJSON,
	}, nil)
}

// withoutAck drops ack keys a client echoed back inside a payload
func withoutAck(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if _, ok := extra["_saved"]; !ok {
		if _, ok := extra["_message"]; !ok {
			return extra
		}
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		if k != "_saved" && k != "_message" {
			out[k] = v
		}
	}
	return out
}

// ProductResponse is a product followed by the ack fields
type ProductResponse struct {
	entities.Product
	Ack
}

// MarshalJSON keeps the ack fields next to the product's own encoding
func (r ProductResponse) MarshalJSON() ([]byte, error) {
	product := r.Product
	product.Extra = withoutAck(product.Extra)
	data, err := json.Marshal(product)
	if err != nil {
		return nil, err
	}
	return r.Ack.appendTo(data)
}

// ShelfResponse is a shelf followed by the ack fields
type ShelfResponse struct {
	entities.Shelf
	Ack
}

// MarshalJSON keeps the ack fields next to the shelf's own encoding
func (r ShelfResponse) MarshalJSON() ([]byte, error) {
	shelf := r.Shelf
	shelf.Extra = withoutAck(shelf.Extra)
	data, err := json.Marshal(shelf)
	if err != nil {
		return nil, err
	}
	return r.Ack.appendTo(data)
}

// DeleteResponse acknowledges a deletion
type DeleteResponse struct {
	Success bool `json:"success"`
	Ack
}

// ImportResponse reports a bulk import
type ImportResponse struct {
	Success  bool   `json:"success"`
	Saved    bool   `json:"_saved"`
	Message  string `json:"message"`
	Shelves  int    `json:"shelves"`
	Products int    `json:"products"`
}

// TestWriteResponse reports a forced rewrite of the document
type TestWriteResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// HealthResponse describes the data file
type HealthResponse struct {
	Status        string `json:"status"`
	Timestamp     string `json:"timestamp"`
	DataFile      string `json:"dataFile"`
	FileExists    bool   `json:"fileExists"`
	FileSize      string `json:"fileSize"`
	LastModified  string `json:"lastModified"`
	ShelvesCount  int    `json:"shelvesCount"`
	TotalProducts int    `json:"totalProducts"`
	BackupsCount  int    `json:"backupsCount"`
	Corrupt       bool   `json:"corrupt,omitempty"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type errorMapping struct {
	target error
	status int
	title  string
}

// Checked in order; the first match wins.
var errorMappings = []errorMapping{
	{entities.ErrShelfNotFound, http.StatusNotFound, "Shelf not found"},
	{entities.ErrProductNotFound, http.StatusNotFound, "Product not found"},
	{entities.ErrBackupNotFound, http.StatusNotFound, "Backup not found"},
	{entities.ErrDuplicateShelf, http.StatusBadRequest, "Shelf with this ID already exists"},
	{entities.ErrDuplicateProduct, http.StatusBadRequest, "Product with this ID already exists"},
	{entities.ErrSeedInvalid, http.StatusBadRequest, "Could not parse seed catalog"},
	{entities.ErrValidation, http.StatusBadRequest, "Validation failed"},
	{entities.ErrFeedNotConfigured, http.StatusServiceUnavailable, "Instagram feed not configured"},
	{entities.ErrDocumentCorrupt, http.StatusInternalServerError, "Stored catalog is unreadable"},
	{entities.ErrPersistence, http.StatusInternalServerError, "Failed to save catalog"},
}

// errorFor converts a service error into an HTTP error carrying an
// ErrorResponse body
func errorFor(err error, fallback string) *echo.HTTPError {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return echo.NewHTTPError(m.status, ErrorResponse{Error: m.title, Message: err.Error()}).SetInternal(err)
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, ErrorResponse{Error: fallback, Message: err.Error()}).SetInternal(err)
}

func badRequest(title string, err error) *echo.HTTPError {
	body := ErrorResponse{Error: title}
	if err != nil {
		body.Message = err.Error()
	}
	return echo.NewHTTPError(http.StatusBadRequest, body)
}

func healthFromStats(stats *ports.StoreStats, now string) HealthResponse {
	resp := HealthResponse{
		Status:        "ok",
		Timestamp:     now,
		DataFile:      stats.DataFile,
		FileExists:    stats.FileExists,
		FileSize:      "N/A",
		LastModified:  "N/A",
		ShelvesCount:  stats.ShelvesCount,
		TotalProducts: stats.TotalProducts,
		BackupsCount:  stats.BackupsCount,
		Corrupt:       stats.Corrupt,
	}
	if stats.FileExists {
		resp.FileSize = formatKB(stats.SizeBytes)
	}
	if stats.LastModified != nil {
		resp.LastModified = stats.LastModified.UTC().Format(timestampLayout)
	}
	return resp
}
