package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
	"github.com/storefront/catalog/internal/ports"
)

const lockRetryInterval = 50 * time.Millisecond

var _ ports.DocumentRepository = (*FileRepository)(nil)

// FileRepository implements the DocumentRepository interface with a single
// JSON file. Writes go through a staging file and a rename so the canonical
// file is always either the previous or the new complete document.
type FileRepository struct {
	fs          afero.Fs
	path        string
	tmpPath     string
	backups     ports.BackupManager
	fileLock    *flock.Flock
	lockTimeout time.Duration
	logger      *logger.Logger
	metrics     *metrics.Metrics

	mu sync.Mutex
}

// Option configures a FileRepository
type Option func(*FileRepository)

// WithFileLock serializes writers across processes with an advisory lock on
// <data file>.lock. Only meaningful on the OS filesystem.
func WithFileLock(timeout time.Duration) Option {
	return func(r *FileRepository) {
		r.fileLock = flock.New(r.path + ".lock")
		r.lockTimeout = timeout
	}
}

// WithMetrics records writes and restorations
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *FileRepository) {
		r.metrics = m
	}
}

// NewFileRepository creates a repository for the document at path
func NewFileRepository(fs afero.Fs, path string, backups ports.BackupManager, log *logger.Logger, opts ...Option) *FileRepository {
	r := &FileRepository{
		fs:          fs,
		path:        path,
		tmpPath:     path + ".tmp",
		backups:     backups,
		lockTimeout: 3 * time.Second,
		logger:      log.WithComponent("store"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read loads the current document. A missing file is initialized with an
// empty shelf list; an unreadable or corrupt file is logged and degrades to
// an empty document.
func (r *FileRepository) Read(ctx context.Context) (*entities.Document, error) {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, loadErr := r.load(ctx)
	if loadErr != nil {
		r.logger.Errorw("Error reading products, serving empty catalog", "error", loadErr, "file", r.path)
		return emptyDocument(), nil
	}
	return doc, nil
}

// Update applies fn to the current document and persists the result. It
// fails with ErrDocumentCorrupt when the canonical file cannot be decoded;
// the file is left as it is.
func (r *FileRepository) Update(ctx context.Context, fn func(doc *entities.Document) error) (*entities.Document, error) {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc, err := r.load(ctx)
	if err != nil {
		r.logger.Errorw("Refusing to update unreadable document", "error", err, "file", r.path)
		return nil, err
	}

	if err := fn(doc); err != nil {
		return nil, err
	}

	if err := r.write(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Replace overwrites the whole document, even when the current file is corrupt
func (r *FileRepository) Replace(ctx context.Context, doc *entities.Document) error {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if doc == nil {
		doc = emptyDocument()
	}
	return r.write(ctx, doc)
}

// Stat reports on the canonical file
func (r *FileRepository) Stat(ctx context.Context) (*ports.StoreStats, error) {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stats := &ports.StoreStats{DataFile: r.path}

	doc, loadErr := r.load(ctx)
	if loadErr != nil {
		stats.Corrupt = true
	} else {
		stats.ShelvesCount = len(doc.Shelves)
		stats.TotalProducts = doc.ProductCount()
	}

	info, err := r.fs.Stat(r.path)
	switch {
	case err == nil:
		stats.FileExists = true
		stats.SizeBytes = info.Size()
		modTime := info.ModTime()
		stats.LastModified = &modTime
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("stat data file: %w", err)
	}

	backups, err := r.backups.List(ctx)
	if err != nil {
		r.logger.Warnw("Failed to list backups", "error", err)
	}
	stats.BackupsCount = len(backups)

	return stats, nil
}

// RestoreBackup copies the named backup over the canonical file, or the
// newest one when name is empty. It holds the same locks as writers and
// returns the name that was restored.
func (r *FileRepository) RestoreBackup(ctx context.Context, name string) (string, error) {
	unlock, err := r.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()

	if name == "" {
		backups, err := r.backups.List(ctx)
		if err != nil {
			return "", err
		}
		if len(backups) == 0 {
			return "", fmt.Errorf("%w: no backups retained", entities.ErrBackupNotFound)
		}
		name = backups[len(backups)-1].Name
	}

	if err := r.backups.Restore(ctx, name); err != nil {
		return "", err
	}
	r.metrics.ObserveRestore()
	return name, nil
}

// acquire takes the in-process mutex and, when configured, the cross-process
// file lock.
func (r *FileRepository) acquire(ctx context.Context) (func(), error) {
	r.mu.Lock()
	if r.fileLock == nil {
		return r.mu.Unlock, nil
	}

	if err := r.ensureDir(); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	locked, err := r.fileLock.TryLockContext(lockCtx, lockRetryInterval)
	if err != nil || !locked {
		r.mu.Unlock()
		if err == nil {
			err = errors.New("could not acquire file lock")
		}
		return nil, fmt.Errorf("%w: acquire lock: %w", entities.ErrPersistence, err)
	}

	return func() {
		if err := r.fileLock.Unlock(); err != nil {
			r.logger.Warnw("Failed to release file lock", "error", err)
		}
		r.mu.Unlock()
	}, nil
}

func (r *FileRepository) ensureDir() error {
	if err := r.fs.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("%w: create data dir: %w", entities.ErrPersistence, err)
	}
	return nil
}

// load reads and decodes the canonical file, creating it when absent.
// Callers must hold the lock.
func (r *FileRepository) load(ctx context.Context) (*entities.Document, error) {
	if err := r.ensureDir(); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: read %s: %w", entities.ErrDocumentCorrupt, r.path, err)
		}
		doc := emptyDocument()
		if err := r.write(ctx, doc); err != nil {
			r.logger.Errorw("Failed to initialize data file", "error", err)
		} else {
			r.logger.Infow("Created empty data file", "file", r.path)
		}
		return doc, nil
	}

	return decodeDocument(data)
}

// write runs the backup, staging write, rename and read-back verification.
// A failure before the rename leaves the canonical file untouched; from the
// rename on, the latest backup is restored before the error is returned.
func (r *FileRepository) write(ctx context.Context, doc *entities.Document) error {
	start := time.Now()

	doc.EnsureSequences()
	wantShelves, wantProducts := len(doc.Shelves), doc.ProductCount()

	var (
		size    int64
		touched bool
	)
	err := func() error {
		if err := r.ensureDir(); err != nil {
			return err
		}

		r.backups.Backup(ctx)

		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal document: %w", err)
		}
		size = int64(len(data))

		if err := r.writeStaging(data); err != nil {
			return err
		}

		touched = true
		if err := r.fs.Rename(r.tmpPath, r.path); err != nil {
			_ = r.fs.Remove(r.tmpPath)
			return fmt.Errorf("replace data file: %w", err)
		}

		return r.verify(wantShelves, wantProducts)
	}()

	duration := float64(time.Since(start).Microseconds()) / 1000
	r.metrics.ObserveStoreWrite(err)
	r.logger.LogStoreWrite(r.path, wantShelves, wantProducts, size, duration, err)

	if err != nil {
		if touched {
			r.restore(ctx)
		}
		if errors.Is(err, entities.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %w", entities.ErrPersistence, err)
	}
	return nil
}

func (r *FileRepository) writeStaging(data []byte) error {
	if err := writeSynced(r.fs, r.tmpPath, data); err != nil {
		return fmt.Errorf("staging file: %w", err)
	}
	return nil
}

// verify re-reads the canonical file and checks that it holds what was written
func (r *FileRepository) verify(wantShelves, wantProducts int) error {
	data, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		return fmt.Errorf("verify: read back: %w", err)
	}

	got, err := decodeDocument(data)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if len(got.Shelves) != wantShelves || got.ProductCount() != wantProducts {
		return fmt.Errorf("verify: wrote %d shelves/%d products, read back %d/%d",
			wantShelves, wantProducts, len(got.Shelves), got.ProductCount())
	}
	return nil
}

func (r *FileRepository) restore(ctx context.Context) {
	// Recovery runs even when the request context is already cancelled
	ctx = context.WithoutCancel(ctx)

	r.logger.Warn("Attempting to restore from backup")
	if err := r.backups.RestoreLatest(ctx); err != nil {
		r.logger.Errorw("Failed to restore from backup", "error", err)
		return
	}
	r.metrics.ObserveRestore()
}

// decodeDocument parses the persisted form. A top level that is not an
// object is corrupt; a missing or non-array "shelves" is coerced to empty.
func decodeDocument(data []byte) (*entities.Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrDocumentCorrupt, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: top level is null", entities.ErrDocumentCorrupt)
	}

	doc := &entities.Document{}
	if raw, ok := top["shelves"]; ok {
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			if err := json.Unmarshal(raw, &doc.Shelves); err != nil {
				return nil, fmt.Errorf("%w: shelves: %w", entities.ErrDocumentCorrupt, err)
			}
		}
	}

	doc.EnsureSequences()
	return doc, nil
}

func emptyDocument() *entities.Document {
	return &entities.Document{Shelves: []entities.Shelf{}}
}
