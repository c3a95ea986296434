package ports

import (
	"context"
	"time"

	"github.com/storefront/catalog/internal/domain/entities"
)

// DocumentRepository owns the persisted catalog document
type DocumentRepository interface {
	// Read loads the current document. A missing file is created empty and a
	// corrupt file degrades to an empty document.
	Read(ctx context.Context) (*entities.Document, error)

	// Update runs fn against the current document and persists the result.
	// Mutations are serialized; nothing is written when fn returns an error.
	Update(ctx context.Context, fn func(doc *entities.Document) error) (*entities.Document, error)

	// Replace overwrites the whole document.
	Replace(ctx context.Context, doc *entities.Document) error

	// Stat reports on the canonical file and its contents.
	Stat(ctx context.Context) (*StoreStats, error)
}

// BackupManager keeps timestamped copies of the canonical file
type BackupManager interface {
	Backup(ctx context.Context)
	RestoreLatest(ctx context.Context) error
	Restore(ctx context.Context, name string) error
	List(ctx context.Context) ([]BackupInfo, error)
}

// SeedSource loads the static catalog used by bulk import
type SeedSource interface {
	Load(ctx context.Context) ([]entities.Shelf, error)
}

// StoreStats describes the canonical data file
type StoreStats struct {
	DataFile      string     `json:"dataFile"`
	FileExists    bool       `json:"fileExists"`
	SizeBytes     int64      `json:"sizeBytes"`
	LastModified  *time.Time `json:"lastModified,omitempty"`
	ShelvesCount  int        `json:"shelvesCount"`
	TotalProducts int        `json:"totalProducts"`
	BackupsCount  int        `json:"backupsCount"`
	Corrupt       bool       `json:"corrupt"`
}

// BackupInfo describes a single backup file
type BackupInfo struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"sizeBytes"`
	ModTime   time.Time `json:"modTime"`
}
