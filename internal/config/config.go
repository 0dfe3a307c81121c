package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
	DriverMemory   = "memory"
)

// Config holds every setting of the application.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	CatalogURL     string        `yaml:"catalog_url"`
	CatalogAPIKey  string        `yaml:"catalog_api_key"`
	CatalogProxy   string        `yaml:"catalog_proxy"`
	CatalogTimeout time.Duration `yaml:"catalog_timeout"`
	SearchLimit    int           `yaml:"search_limit"`

	StoreDriver string `yaml:"store_driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`
	StorageDir  string `yaml:"storage_dir"`

	TelegramToken string `yaml:"telegram_token"`
	MiniAppURL    string `yaml:"miniapp_url"`
	RequireAuth   bool   `yaml:"require_auth"`

	LogLevel string `yaml:"log_level"`
}

// Load reads .env (if present), then the optional YAML file named by
// BOOKSHELF_CONFIG, then the process environment. Later sources win.
func Load() (*Config, error) {
	// A missing .env is normal when env is passed in directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if path := strings.TrimSpace(os.Getenv("BOOKSHELF_CONFIG")); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.CatalogURL, "CATALOG_URL")
	setString(&cfg.CatalogAPIKey, "CATALOG_API_KEY")
	setString(&cfg.CatalogProxy, "CATALOG_PROXY")
	setString(&cfg.StoreDriver, "STORE_DRIVER")
	setString(&cfg.SQLitePath, "SQLITE_PATH")
	setString(&cfg.PostgresDSN, "POSTGRES_DSN")
	setString(&cfg.StorageDir, "STORAGE_DIR")
	setString(&cfg.TelegramToken, "TELEGRAM_TOKEN")
	setString(&cfg.MiniAppURL, "MINIAPP_URL")
	setString(&cfg.LogLevel, "LOG_LEVEL")

	if v := strings.TrimSpace(os.Getenv("CATALOG_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CATALOG_TIMEOUT: %w", err)
		}
		cfg.CatalogTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("SEARCH_LIMIT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SEARCH_LIMIT: %w", err)
		}
		cfg.SearchLimit = n
	}
	if v := strings.TrimSpace(os.Getenv("REQUIRE_AUTH")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REQUIRE_AUTH: %w", err)
		}
		cfg.RequireAuth = b
	}
	return nil
}

func applyDefaults(cfg *Config) {
	cfg.HTTPAddr = withDefault(cfg.HTTPAddr, ":8080")
	cfg.CatalogURL = withDefault(cfg.CatalogURL, "https://www.googleapis.com/books/v1")
	cfg.StoreDriver = strings.ToLower(withDefault(cfg.StoreDriver, DriverSQLite))
	cfg.SQLitePath = resolvePath(withDefault(cfg.SQLitePath, "data/bookshelf.db"))
	cfg.StorageDir = resolvePath(withDefault(cfg.StorageDir, "data/favorites"))
	cfg.LogLevel = strings.ToLower(withDefault(cfg.LogLevel, "info"))
	if cfg.CatalogTimeout <= 0 {
		cfg.CatalogTimeout = 15 * time.Second
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 20
	}
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverFile, DriverMemory:
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres store driver")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.SearchLimit > 40 {
		return fmt.Errorf("SEARCH_LIMIT must be at most 40, got %d", c.SearchLimit)
	}
	if c.RequireAuth && c.TelegramToken == "" {
		return fmt.Errorf("REQUIRE_AUTH needs TELEGRAM_TOKEN to validate users")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func withDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func resolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return p
	}
	if filepath.IsAbs(p) {
		return p
	}

	if cwd, err := os.Getwd(); err == nil {
		return filepath.Clean(filepath.Join(cwd, p))
	}

	return p
}
