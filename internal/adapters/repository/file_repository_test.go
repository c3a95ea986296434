package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
)

const (
	testDataFile  = "/srv/data/products.json"
	testBackupDir = "/srv/data/backups"
)

// faultyFs injects one failure into the write path of the data file
type faultyFs struct {
	afero.Fs
	failStaging      bool
	failRename       bool
	truncateOnRename bool
}

func (f *faultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.failStaging && name == testDataFile+".tmp" {
		f.failStaging = false
		return nil, errors.New("injected staging failure")
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func (f *faultyFs) Rename(oldname, newname string) error {
	if f.failRename && newname == testDataFile {
		f.failRename = false
		return errors.New("injected rename failure")
	}
	if err := f.Fs.Rename(oldname, newname); err != nil {
		return err
	}
	if f.truncateOnRename && newname == testDataFile {
		f.truncateOnRename = false
		return afero.WriteFile(f.Fs, newname, []byte(`{"shelves":[{"id":"a"`), 0o644)
	}
	return nil
}

// fullFs fails every write once the disk is marked full
type fullFs struct {
	afero.Fs
	full bool
}

func (f *fullFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	file, err := f.Fs.OpenFile(name, flag, perm)
	if err != nil || !f.full {
		return file, err
	}
	return &fullFile{File: file}, nil
}

type fullFile struct {
	afero.File
}

func (f *fullFile) Write(p []byte) (int, error) {
	return 0, syscall.ENOSPC
}

// stepClock advances one second on every call
type stepClock struct {
	mu   sync.Mutex
	base time.Time
	n    int
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.base.Add(time.Duration(c.n) * time.Second)
}

func newTestRepo(t *testing.T, fs afero.Fs, opts ...Option) (*FileRepository, *BackupManagerImpl) {
	t.Helper()
	clock := &stepClock{base: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	backups := NewBackupManager(fs, testDataFile, testBackupDir, DefaultBackupRetention, logger.NewNop(), WithClock(clock.Now))
	return NewFileRepository(fs, testDataFile, backups, logger.NewNop(), opts...), backups
}

func sampleDocument() *entities.Document {
	subtitle := "The latest"
	image := "/img/iphone.png"
	return &entities.Document{Shelves: []entities.Shelf{
		{
			ID:             "shelf-iphone",
			Title:          "iPhone",
			SecondaryTitle: &subtitle,
			Items: []entities.Product{
				{ID: "iphone-17", Title: "iPhone 17", Type: entities.CardTypeHCard, CardSize: "40", Image: &image},
				{ID: "iphone-air", Title: "iPhone Air", Type: entities.CardTypeCCard, CardSize: "60", Colors: []string{"sky", "gold"}},
			},
		},
		{ID: "shelf-mac", Title: "Mac", Items: []entities.Product{}},
	}}
}

func TestFileRepository_ReadCreatesEmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, _ := newTestRepo(t, fs)

	doc, err := repo.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Shelves)
	assert.NotNil(t, doc.Shelves)

	data, err := afero.ReadFile(fs, testDataFile)
	require.NoError(t, err)
	assert.JSONEq(t, `{"shelves":[]}`, string(data))
}

func TestFileRepository_RoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, _ := newTestRepo(t, fs)
	ctx := context.Background()

	want := sampleDocument()
	require.NoError(t, repo.Replace(ctx, want))

	got, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	exists, err := afero.Exists(fs, testDataFile+".tmp")
	require.NoError(t, err)
	assert.False(t, exists, "staging file must not survive a successful write")
}

func TestFileRepository_ReadDegradesOnCorruption(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid json", `{"shelves": [`},
		{"top level array", `[1, 2, 3]`},
		{"top level null", `null`},
		{"wrong element types", `{"shelves": [42]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, testDataFile, []byte(tt.content), 0o644))
			repo, _ := newTestRepo(t, fs)

			doc, err := repo.Read(context.Background())
			require.NoError(t, err)
			assert.Empty(t, doc.Shelves)

			data, err := afero.ReadFile(fs, testDataFile)
			require.NoError(t, err)
			assert.Equal(t, tt.content, string(data), "corrupt file must be left untouched")
		})
	}
}

func TestFileRepository_ReadCoercesMissingShelves(t *testing.T) {
	for _, content := range []string{`{}`, `{"shelves": null}`, `{"shelves": "oops"}`} {
		fs := afero.NewMemMapFs()
		require.NoError(t, afero.WriteFile(fs, testDataFile, []byte(content), 0o644))
		repo, _ := newTestRepo(t, fs)

		doc, err := repo.Read(context.Background())
		require.NoError(t, err, content)
		assert.NotNil(t, doc.Shelves, content)
		assert.Empty(t, doc.Shelves, content)
	}
}

func TestFileRepository_ReadFillsMissingItems(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testDataFile, []byte(`{"shelves":[{"id":"a","title":"A"}]}`), 0o644))
	repo, _ := newTestRepo(t, fs)

	doc, err := repo.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, doc.Shelves, 1)
	assert.NotNil(t, doc.Shelves[0].Items)
}

func TestFileRepository_UpdateRefusesCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	corrupt := `{"shelves": [`
	require.NoError(t, afero.WriteFile(fs, testDataFile, []byte(corrupt), 0o644))
	repo, _ := newTestRepo(t, fs)

	called := false
	_, err := repo.Update(context.Background(), func(doc *entities.Document) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, entities.ErrDocumentCorrupt)
	assert.False(t, called)
	data, _ := afero.ReadFile(fs, testDataFile)
	assert.Equal(t, corrupt, string(data))
}

func TestFileRepository_ReplaceOverwritesCorruptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testDataFile, []byte(`garbage`), 0o644))
	repo, _ := newTestRepo(t, fs)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, sampleDocument()))

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, 2)
}

func TestFileRepository_UpdateCallbackErrorSkipsWrite(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, backups := newTestRepo(t, fs)
	ctx := context.Background()
	require.NoError(t, repo.Replace(ctx, sampleDocument()))
	before, _ := backups.List(ctx)

	_, err := repo.Update(ctx, func(doc *entities.Document) error {
		doc.Shelves = nil
		return entities.ErrShelfNotFound
	})

	assert.ErrorIs(t, err, entities.ErrShelfNotFound)
	after, _ := backups.List(ctx)
	assert.Equal(t, len(before), len(after), "no backup is taken when nothing is written")

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, 2)
}

func TestFileRepository_UpdateAppliesMutation(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, _ := newTestRepo(t, fs)
	ctx := context.Background()

	updated, err := repo.Update(ctx, func(doc *entities.Document) error {
		doc.Shelves = append(doc.Shelves, entities.Shelf{ID: "shelf-ipad", Title: "iPad"})
		return nil
	})
	require.NoError(t, err)
	require.Len(t, updated.Shelves, 1)
	assert.NotNil(t, updated.Shelves[0].Items)

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "shelf-ipad", doc.Shelves[0].ID)
}

func TestFileRepository_WriteFailureRestoresBackup(t *testing.T) {
	tests := []struct {
		name  string
		fault func(f *faultyFs)
	}{
		{"staging write fails", func(f *faultyFs) { f.failStaging = true }},
		{"rename fails", func(f *faultyFs) { f.failRename = true }},
		{"verification fails", func(f *faultyFs) { f.truncateOnRename = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &faultyFs{Fs: afero.NewMemMapFs()}
			m := metrics.New()
			repo, _ := newTestRepo(t, fs, WithMetrics(m))
			ctx := context.Background()

			require.NoError(t, repo.Replace(ctx, sampleDocument()))
			before, err := afero.ReadFile(fs, testDataFile)
			require.NoError(t, err)

			tt.fault(fs)
			_, err = repo.Update(ctx, func(doc *entities.Document) error {
				doc.Shelves = doc.Shelves[:1]
				return nil
			})

			require.Error(t, err)
			assert.ErrorIs(t, err, entities.ErrPersistence)

			after, err := afero.ReadFile(fs.Fs, testDataFile)
			require.NoError(t, err)
			assert.Equal(t, string(before), string(after), "canonical file must hold the pre-write content")

			exists, _ := afero.Exists(fs.Fs, testDataFile+".tmp")
			assert.False(t, exists)
		})
	}
}

func TestFileRepository_DiskFullKeepsCanonicalFile(t *testing.T) {
	fs := &fullFs{Fs: afero.NewMemMapFs()}
	repo, backups := newTestRepo(t, fs)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, sampleDocument()))
	require.NoError(t, repo.Replace(ctx, sampleDocument()))
	before, err := afero.ReadFile(fs, testDataFile)
	require.NoError(t, err)
	listBefore, err := backups.List(ctx)
	require.NoError(t, err)

	fs.full = true
	_, err = repo.Update(ctx, func(doc *entities.Document) error {
		doc.Shelves = doc.Shelves[:1]
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, entities.ErrPersistence)

	after, err := afero.ReadFile(fs.Fs, testDataFile)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	listAfter, err := backups.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, listBefore, listAfter)
	for _, b := range listAfter {
		assert.NotZero(t, b.SizeBytes, b.Name)
	}

	leftovers, err := afero.Glob(fs.Fs, filepath.Join(testBackupDir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	exists, _ := afero.Exists(fs.Fs, testDataFile+".tmp")
	assert.False(t, exists)

	fs.full = false
	doc, err := repo.Update(ctx, func(doc *entities.Document) error {
		doc.Shelves = doc.Shelves[:1]
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, 1)
}

func TestFileRepository_RestoreBackup(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := metrics.New()
	repo, backups := newTestRepo(t, fs, WithMetrics(m))
	ctx := context.Background()

	_, err := repo.RestoreBackup(ctx, "")
	assert.ErrorIs(t, err, entities.ErrBackupNotFound)

	require.NoError(t, repo.Replace(ctx, sampleDocument()))
	_, err = repo.Update(ctx, func(doc *entities.Document) error {
		doc.Shelves = doc.Shelves[:1]
		return nil
	})
	require.NoError(t, err)

	list, err := backups.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	name, err := repo.RestoreBackup(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, list[0].Name, name)

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, 2)

	_, err = repo.RestoreBackup(ctx, "products-backup-missing.json")
	assert.ErrorIs(t, err, entities.ErrBackupNotFound)
}

func TestFileRepository_RestoreBackupWaitsForWriters(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, _ := newTestRepo(t, fs)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, sampleDocument()))

	inUpdate := make(chan struct{})
	release := make(chan struct{})
	updateDone := make(chan error, 1)
	go func() {
		_, err := repo.Update(ctx, func(doc *entities.Document) error {
			close(inUpdate)
			<-release
			doc.Shelves = doc.Shelves[:1]
			return nil
		})
		updateDone <- err
	}()
	<-inUpdate

	restoreDone := make(chan error, 1)
	go func() {
		_, err := repo.RestoreBackup(ctx, "")
		restoreDone <- err
	}()

	select {
	case <-restoreDone:
		t.Fatal("restore ran while an update held the store")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-updateDone)
	require.NoError(t, <-restoreDone)

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, 2)
}

func TestFileRepository_BackupRetention(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, backups := newTestRepo(t, fs)
	ctx := context.Background()

	_, err := repo.Read(ctx)
	require.NoError(t, err)

	var names []string
	for i := 0; i < 15; i++ {
		doc := sampleDocument()
		doc.Shelves[1].Title = fmt.Sprintf("Mac %d", i)
		require.NoError(t, repo.Replace(ctx, doc))

		list, err := backups.List(ctx)
		require.NoError(t, err)
		names = append(names, list[len(list)-1].Name)
	}

	retained, err := backups.List(ctx)
	require.NoError(t, err)
	require.Len(t, retained, 10)
	for i, b := range retained {
		assert.Equal(t, names[5+i], b.Name)
	}
}

func TestFileRepository_Stat(t *testing.T) {
	fs := afero.NewMemMapFs()
	repo, _ := newTestRepo(t, fs)
	ctx := context.Background()

	require.NoError(t, repo.Replace(ctx, sampleDocument()))
	require.NoError(t, repo.Replace(ctx, sampleDocument()))

	stats, err := repo.Stat(ctx)
	require.NoError(t, err)
	assert.True(t, stats.FileExists)
	assert.Equal(t, 2, stats.ShelvesCount)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 1, stats.BackupsCount)
	assert.Positive(t, stats.SizeBytes)
	assert.NotNil(t, stats.LastModified)
	assert.False(t, stats.Corrupt)
}

func TestFileRepository_StatCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testDataFile, []byte(`{`), 0o644))
	repo, _ := newTestRepo(t, fs)

	stats, err := repo.Stat(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Corrupt)
	assert.True(t, stats.FileExists)
}

func TestFileRepository_ConcurrentUpdatesWithFileLock(t *testing.T) {
	dir := t.TempDir()
	fs := afero.NewOsFs()
	dataFile := filepath.Join(dir, "products.json")
	backups := NewBackupManager(fs, dataFile, filepath.Join(dir, "backups"), 3, logger.NewNop())
	repo := NewFileRepository(fs, dataFile, backups, logger.NewNop(), WithFileLock(5*time.Second))
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Update(ctx, func(doc *entities.Document) error {
				doc.Shelves = append(doc.Shelves, entities.Shelf{ID: fmt.Sprintf("shelf-%d", i), Title: "Shelf"})
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.Shelves, writers, "no update may be lost")

	list, err := backups.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
