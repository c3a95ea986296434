package commands

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/storefront/catalog/internal/adapters/feed"
	"github.com/storefront/catalog/internal/adapters/repository"
	"github.com/storefront/catalog/internal/adapters/seed"
	"github.com/storefront/catalog/internal/application/services"
	"github.com/storefront/catalog/internal/domain/entities"
	"github.com/storefront/catalog/internal/infrastructure/config"
	"github.com/storefront/catalog/internal/infrastructure/logger"
	"github.com/storefront/catalog/internal/infrastructure/metrics"
	"github.com/storefront/catalog/internal/infrastructure/server"
)

// Set with -ldflags at build time
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "development"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the catalog API server",
		Long:  "Start the catalog API server with all configured routes and middleware",
		Run: func(cmd *cobra.Command, args []string) {
			runServer()
		},
	}
}

// NewImportCommand creates the import command
func NewImportCommand() *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Replace the catalog with the seed catalog",
		Long:  "Load the seed catalog (JSON or YAML), normalize every product and replace the stored document in one write",
		Run: func(cmd *cobra.Command, args []string) {
			seedPath, _ := cmd.Flags().GetString("seed")
			runImport(cmd.Context(), seedPath)
		},
	}

	importCmd.Flags().String("seed", "", "Seed catalog path (defaults to SEED_PATH)")
	return importCmd
}

// NewBackupCommand creates the backup command with subcommands
func NewBackupCommand() *cobra.Command {
	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Backup management commands",
		Long:  "List retained backups of the data file and restore one of them",
	}

	backupCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List retained backups, oldest first",
		Run: func(cmd *cobra.Command, args []string) {
			listBackups(cmd.Context())
		},
	})

	backupCmd.AddCommand(&cobra.Command{
		Use:   "restore [name]",
		Short: "Restore a backup over the data file (latest when no name is given)",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			restoreBackup(cmd.Context(), name)
		},
	})

	return backupCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print catalog version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Storefront Catalog %s\n", Version)
			fmt.Printf("Build Date: %s\n", BuildDate)
			fmt.Printf("Git Commit: %s\n", GitCommit)
		},
	}
}

type store struct {
	repo    *repository.FileRepository
	backups *repository.BackupManagerImpl
}

func openStore(cfg *config.Config, appLogger *logger.Logger, m *metrics.Metrics) *store {
	fs := afero.NewOsFs()

	backups := repository.NewBackupManager(fs, cfg.Store.DataFile, cfg.Store.BackupDir, cfg.Store.BackupRetention, appLogger,
		repository.WithBackupMetrics(m))

	opts := []repository.Option{repository.WithMetrics(m)}
	if cfg.Store.FileLock {
		opts = append(opts, repository.WithFileLock(cfg.Store.LockTimeout))
	}

	return &store{
		repo:    repository.NewFileRepository(fs, cfg.Store.DataFile, backups, appLogger, opts...),
		backups: backups,
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func runServer() {
	cfg := loadConfig()

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	st := openStore(cfg, appLogger, m)

	srv, err := server.New(cfg, server.Dependencies{
		Repository: st.repo,
		Seed:       seed.NewLoader(afero.NewOsFs(), cfg.Seed.Path),
		FeedClient: feed.NewClient(cfg.Feed.Endpoint, cfg.Feed.AccessToken, cfg.Feed.PostLimit, cfg.Feed.Timeout),
		Metrics:    m,
	}, appLogger)
	if err != nil {
		appLogger.Fatalw("Failed to initialize server", "error", err)
	}

	appLogger.Infow("Starting catalog API server",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"version", Version,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			appLogger.Fatalw("Server failed to start", "error", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Errorw("Graceful shutdown failed", "error", err)
		}
	}
}

func runImport(ctx context.Context, seedPath string) {
	cfg := loadConfig()
	if seedPath == "" {
		seedPath = cfg.Seed.Path
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	st := openStore(cfg, appLogger, nil)
	importService := services.NewImportService(st.repo, seed.NewLoader(afero.NewOsFs(), seedPath), appLogger)

	summary, err := importService.Import(ctx)
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}

	fmt.Printf("Imported %d shelves (%d products) from %s into %s\n",
		summary.Shelves, summary.Products, seedPath, cfg.Store.DataFile)
}

func listBackups(ctx context.Context) {
	cfg := loadConfig()
	st := openStore(cfg, logger.NewNop(), nil)

	backups, err := st.backups.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}
	if len(backups) == 0 {
		fmt.Printf("No backups in %s\n", cfg.Store.BackupDir)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, b := range backups {
		fmt.Fprintf(w, "%s\t%.2f KB\t%s\n", b.Name, float64(b.SizeBytes)/1024, b.ModTime.Format(time.RFC3339))
	}
	w.Flush()
}

func restoreBackup(ctx context.Context, name string) {
	cfg := loadConfig()

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Close()

	st := openStore(cfg, appLogger, nil)

	restored, err := st.repo.RestoreBackup(ctx, name)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Fatal("Restore cancelled")
		case errors.Is(err, entities.ErrBackupNotFound):
			log.Fatalf("No such backup in %s: %v", cfg.Store.BackupDir, err)
		}
		log.Fatalf("Restore failed: %v", err)
	}

	fmt.Printf("Restored %s over %s\n", restored, cfg.Store.DataFile)
}
