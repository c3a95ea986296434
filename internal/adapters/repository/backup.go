package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
	"github.com/storefront/catalog/internal/ports"
)

// DefaultBackupRetention is the number of backups kept when none is configured
const DefaultBackupRetention = 10

// backupTimeLayout is fixed width so names sort lexicographically in
// chronological order
const backupTimeLayout = "2006-01-02T15:04:05.000000000Z"

var fileSafe = strings.NewReplacer(":", "-", ".", "-")

var _ ports.BackupManager = (*BackupManagerImpl)(nil)

// BackupManagerImpl implements the BackupManager interface on top of afero
type BackupManagerImpl struct {
	fs        afero.Fs
	dataFile  string
	dir       string
	prefix    string
	retention int
	now       func() time.Time
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu   sync.Mutex
	last time.Time
}

// BackupOption configures a BackupManagerImpl
type BackupOption func(*BackupManagerImpl)

// WithClock overrides the time source used for backup names
func WithClock(now func() time.Time) BackupOption {
	return func(b *BackupManagerImpl) {
		b.now = now
	}
}

// WithBackupMetrics records backup attempts
func WithBackupMetrics(m *metrics.Metrics) BackupOption {
	return func(b *BackupManagerImpl) {
		b.metrics = m
	}
}

// NewBackupManager creates a backup manager for dataFile storing copies in dir
func NewBackupManager(fs afero.Fs, dataFile, dir string, retention int, log *logger.Logger, opts ...BackupOption) *BackupManagerImpl {
	if retention < 1 {
		retention = DefaultBackupRetention
	}
	base := strings.TrimSuffix(filepath.Base(dataFile), filepath.Ext(dataFile))

	b := &BackupManagerImpl{
		fs:        fs,
		dataFile:  dataFile,
		dir:       dir,
		prefix:    base + "-backup-",
		retention: retention,
		now:       time.Now,
		logger:    log.WithComponent("backup"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Backup copies the canonical file into the backup directory and prunes old
// copies. Failures are logged and never returned.
func (b *BackupManagerImpl) Backup(ctx context.Context) {
	err := b.backup(ctx)
	if err != nil {
		b.logger.Warnw("Backup failed (non-critical)", "error", err)
	}
	b.metrics.ObserveBackup(err)
}

func (b *BackupManagerImpl) backup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	exists, err := afero.Exists(b.fs, b.dataFile)
	if err != nil {
		return fmt.Errorf("stat data file: %w", err)
	}
	if !exists {
		return nil
	}

	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	data, err := afero.ReadFile(b.fs, b.dataFile)
	if err != nil {
		return fmt.Errorf("read data file: %w", err)
	}

	name := b.nextName()
	if err := writeAtomic(b.fs, filepath.Join(b.dir, name), data); err != nil {
		return fmt.Errorf("write backup %s: %w", name, err)
	}
	b.logger.Debugw("Backup created", "backup", name, "size_bytes", len(data))

	return b.prune()
}

// nextName returns a timestamped name that is strictly greater than every
// name handed out before by this manager.
func (b *BackupManagerImpl) nextName() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.now().UTC()
	if !ts.After(b.last) {
		ts = b.last.Add(time.Nanosecond)
	}
	b.last = ts

	return b.prefix + fileSafe.Replace(ts.Format(backupTimeLayout)) + ".json"
}

func (b *BackupManagerImpl) prune() error {
	names, err := b.names()
	if err != nil {
		return err
	}
	if len(names) <= b.retention {
		return nil
	}

	for _, name := range names[:len(names)-b.retention] {
		if err := b.fs.Remove(filepath.Join(b.dir, name)); err != nil {
			return fmt.Errorf("remove old backup %s: %w", name, err)
		}
		b.logger.Debugw("Backup pruned", "backup", name)
	}
	return nil
}

// names returns backup file names sorted oldest first
func (b *BackupManagerImpl) names() ([]string, error) {
	infos, err := afero.ReadDir(b.fs, b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list backups: %w", err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() || !b.isBackupName(info.Name()) {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (b *BackupManagerImpl) isBackupName(name string) bool {
	return strings.HasPrefix(name, b.prefix) && strings.HasSuffix(name, ".json")
}

// List returns the retained backups, oldest first
func (b *BackupManagerImpl) List(ctx context.Context) ([]ports.BackupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := b.names()
	if err != nil {
		return nil, err
	}

	backups := make([]ports.BackupInfo, 0, len(names))
	for _, name := range names {
		info, err := b.fs.Stat(filepath.Join(b.dir, name))
		if err != nil {
			return nil, fmt.Errorf("stat backup %s: %w", name, err)
		}
		backups = append(backups, ports.BackupInfo{
			Name:      name,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}
	return backups, nil
}

// RestoreLatest copies the most recent backup over the canonical file. It is
// a no-op when no backup exists. Backups that do not decode are skipped.
func (b *BackupManagerImpl) RestoreLatest(ctx context.Context) error {
	names, err := b.names()
	if err != nil {
		return err
	}
	for i := len(names) - 1; i >= 0; i-- {
		err := b.Restore(ctx, names[i])
		if err == nil || !errors.Is(err, entities.ErrDocumentCorrupt) {
			return err
		}
		b.logger.Warnw("Skipping unreadable backup", "backup", names[i], "error", err)
	}
	b.logger.Warn("No backup available to restore")
	return nil
}

// Restore copies the named backup over the canonical file. A backup that
// does not decode is refused with ErrDocumentCorrupt.
func (b *BackupManagerImpl) Restore(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name != filepath.Base(name) || !b.isBackupName(name) {
		return fmt.Errorf("%w: %s", entities.ErrBackupNotFound, name)
	}

	data, err := afero.ReadFile(b.fs, filepath.Join(b.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", entities.ErrBackupNotFound, name)
		}
		return fmt.Errorf("read backup %s: %w", name, err)
	}

	if _, err := decodeDocument(data); err != nil {
		return fmt.Errorf("restore backup %s: %w", name, err)
	}

	if err := writeAtomic(b.fs, b.dataFile, data); err != nil {
		return fmt.Errorf("restore backup %s: %w", name, err)
	}

	b.logger.Warnw("Restored data file from backup", "backup", name, "file", b.dataFile)
	return nil
}

// writeAtomic writes data to a sibling temp file and renames it over path.
// The temp file is removed on failure, so path is either untouched or
// complete.
func writeAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := writeSynced(fs, tmp, data); err != nil {
		return err
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	return nil
}

func writeSynced(fs afero.Fs, path string, data []byte) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fs.Remove(path)
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(path)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}
