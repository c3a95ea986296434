package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	Host           string        `mapstructure:"host"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BodyLimit      string        `mapstructure:"body_limit"`
	StaticDir      string        `mapstructure:"static_dir"`
}

// StoreConfig holds the JSON document store configuration
type StoreConfig struct {
	DataFile        string        `mapstructure:"data_file"`
	BackupDir       string        `mapstructure:"backup_dir"`
	BackupRetention int           `mapstructure:"backup_retention"`
	FileLock        bool          `mapstructure:"file_lock"`
	LockTimeout     time.Duration `mapstructure:"lock_timeout"`
}

// SeedConfig holds the bulk import source configuration
type SeedConfig struct {
	Path string `mapstructure:"path"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	Filename string `mapstructure:"filename"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// FeedConfig holds the social media feed proxy configuration
type FeedConfig struct {
	AccessToken string        `mapstructure:"access_token"`
	Endpoint    string        `mapstructure:"endpoint"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	PostLimit   int           `mapstructure:"post_limit"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// INSTAGRAM_CACHE_SECONDS is a plain number of seconds
	if secs := v.GetInt("feed.cache_seconds"); secs > 0 {
		cfg.Feed.CacheTTL = time.Duration(secs) * time.Second
	}

	if cfg.Store.BackupDir == "" {
		cfg.Store.BackupDir = filepath.Join(filepath.Dir(cfg.Store.DataFile), "backups")
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "Storefront Catalog")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	// Server defaults
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.body_limit", "10M")
	v.SetDefault("server.static_dir", "")

	// Store defaults
	v.SetDefault("store.data_file", filepath.Join("data", "products.json"))
	v.SetDefault("store.backup_dir", "")
	v.SetDefault("store.backup_retention", 10)
	v.SetDefault("store.file_lock", true)
	v.SetDefault("store.lock_timeout", "3s")

	// Seed defaults
	v.SetDefault("seed.path", filepath.Join("data", "seed.yaml"))

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")

	// Security defaults
	v.SetDefault("security.cors_allowed_origins", "*")
	v.SetDefault("security.rate_limit_requests", 100)
	v.SetDefault("security.rate_limit_window", "1m")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)

	// Feed defaults
	v.SetDefault("feed.access_token", "")
	v.SetDefault("feed.endpoint", "https://graph.instagram.com/me/media")
	v.SetDefault("feed.cache_ttl", "15m")
	v.SetDefault("feed.post_limit", 8)
	v.SetDefault("feed.timeout", "10s")
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "APP_NAME")
	v.BindEnv("app.version", "APP_VERSION")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("app.debug", "APP_DEBUG")

	// Server
	v.BindEnv("server.port", "PORT", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")
	v.BindEnv("server.request_timeout", "SERVER_REQUEST_TIMEOUT")
	v.BindEnv("server.body_limit", "SERVER_BODY_LIMIT")
	v.BindEnv("server.static_dir", "STATIC_DIR")

	// Store
	v.BindEnv("store.data_file", "DATA_FILE")
	v.BindEnv("store.backup_dir", "BACKUP_DIR")
	v.BindEnv("store.backup_retention", "BACKUP_RETENTION")
	v.BindEnv("store.file_lock", "STORE_FILE_LOCK")
	v.BindEnv("store.lock_timeout", "STORE_LOCK_TIMEOUT")

	// Seed
	v.BindEnv("seed.path", "SEED_PATH")

	// Logger
	v.BindEnv("logger.level", "LOG_LEVEL")
	v.BindEnv("logger.format", "LOG_FORMAT")
	v.BindEnv("logger.output", "LOG_OUTPUT")
	v.BindEnv("logger.filename", "LOG_FILENAME")

	// Security
	v.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	v.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	v.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")

	// Metrics
	v.BindEnv("metrics.enabled", "ENABLE_METRICS")

	// Feed
	v.BindEnv("feed.access_token", "INSTAGRAM_ACCESS_TOKEN")
	v.BindEnv("feed.endpoint", "INSTAGRAM_ENDPOINT")
	v.BindEnv("feed.cache_ttl", "INSTAGRAM_CACHE_TTL")
	v.BindEnv("feed.cache_seconds", "INSTAGRAM_CACHE_SECONDS")
	v.BindEnv("feed.post_limit", "INSTAGRAM_POST_LIMIT")
	v.BindEnv("feed.timeout", "INSTAGRAM_TIMEOUT")
}

func validateConfig(cfg *Config) error {
	if cfg.Store.DataFile == "" {
		return fmt.Errorf("store data file is required")
	}

	if cfg.Store.BackupRetention < 1 {
		return fmt.Errorf("backup retention must be at least 1")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if cfg.Feed.PostLimit < 1 {
		return fmt.Errorf("feed post limit must be positive")
	}

	return nil
}

// GetAddr returns the listen address
func (cfg *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// FeedConfigured reports whether the media feed proxy has credentials
func (cfg *FeedConfig) FeedConfigured() bool {
	return cfg.AccessToken != ""
}
