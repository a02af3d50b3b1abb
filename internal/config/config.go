// Package config loads and validates quotes-crawler configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// AppName names the data directory under the XDG data home.
const AppName = "quotes-crawler"

// Database drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Archive backends.
const (
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
	ArchiveMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Records  RecordsConfig  `mapstructure:"records"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Loader   LoaderConfig   `mapstructure:"loader"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                 int `mapstructure:"port"`
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs catalog discovery, batching and throttling.
type CrawlerConfig struct {
	CatalogURLs   []string `mapstructure:"catalog_urls"`
	UserAgent     string   `mapstructure:"user_agent"`
	RespectRobots bool     `mapstructure:"respect_robots"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
	Burst         int      `mapstructure:"burst"`
	JitterMs      int      `mapstructure:"jitter_ms"`
	BatchSize     int      `mapstructure:"batch_size"`
	StartIndex    int      `mapstructure:"start_index"`
	MaxTotal      int      `mapstructure:"max_total"`
	StateFile     string   `mapstructure:"state_file"`
	RunIDPrefix   string   `mapstructure:"run_id_prefix"`
}

// HTTPConfig configures the page fetch client.
type HTTPConfig struct {
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	Headers        map[string]string `mapstructure:"headers"`
}

// HeadlessConfig configures the chromedp fetcher.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	SettleMs      int  `mapstructure:"settle_ms"`
	// Promote probes with the static fetcher and renders only shell pages.
	Promote          bool `mapstructure:"promote"`
	PromoteThreshold int  `mapstructure:"promote_threshold"`
}

// RecordsConfig locates the raw record log.
type RecordsConfig struct {
	Dir     string `mapstructure:"dir"`
	LogFile string `mapstructure:"log_file"`
}

// StorageConfig selects where finished batches are archived.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	Schema             string `mapstructure:"schema"`
	SQLitePath         string `mapstructure:"sqlite_path"`
	MaxConns           int32  `mapstructure:"max_conns"`
	ConnMaxLifetimeMin int    `mapstructure:"conn_max_lifetime_minutes"`
	// AutoMigrate creates missing tables at startup. It never drops anything.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for crawl notifications.
type PubSubConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ProjectID   string `mapstructure:"project_id"`
	RecordTopic string `mapstructure:"record_topic"`
	BatchTopic  string `mapstructure:"batch_topic"`
}

// LoaderConfig controls how records are merged into the database.
type LoaderConfig struct {
	ChildPolicy string `mapstructure:"child_policy"`
	Backfill    bool   `mapstructure:"backfill"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment. Environment variables use the
// QUOTES_ prefix with dots replaced by underscores, e.g. QUOTES_DB_DRIVER.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DataDir is the default root for state, records and the SQLite database.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_grace_seconds", 10)
	v.SetDefault("crawler.catalog_urls", []string{"https://www.quotes.net/allmovies/Z"})
	v.SetDefault("crawler.user_agent", "Mozilla/5.0 (compatible; quotes-crawler/1.0)")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.rate_per_second", 0.5)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.jitter_ms", 1000)
	v.SetDefault("crawler.batch_size", 20)
	v.SetDefault("crawler.start_index", 0)
	v.SetDefault("crawler.max_total", 0)
	v.SetDefault("crawler.state_file", "")
	v.SetDefault("crawler.run_id_prefix", "")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.settle_ms", 500)
	v.SetDefault("headless.promote", true)
	v.SetDefault("headless.promote_threshold", 2048)
	v.SetDefault("records.dir", "")
	v.SetDefault("records.log_file", "movies.jsonl")
	v.SetDefault("storage.backend", ArchiveNone)
	v.SetDefault("storage.local_dir", "")
	v.SetDefault("storage.prefix", "batches")
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.schema", "quotes")
	v.SetDefault("db.sqlite_path", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.conn_max_lifetime_minutes", 30)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.record_topic", "quotes-records")
	v.SetDefault("pubsub.batch_topic", "quotes-batches")
	v.SetDefault("loader.child_policy", "append")
	v.SetDefault("loader.backfill", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// fillPaths resolves empty file locations under the XDG data directory.
func (c *Config) fillPaths() {
	base := DataDir()
	if c.Crawler.StateFile == "" {
		c.Crawler.StateFile = filepath.Join(base, "state.json")
	}
	if c.Records.Dir == "" {
		c.Records.Dir = filepath.Join(base, "records")
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = filepath.Join(base, "archive")
	}
	if c.DB.SQLitePath == "" {
		c.DB.SQLitePath = filepath.Join(base, "quotes.db")
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Crawler.CatalogURLs) == 0 {
		return fmt.Errorf("crawler.catalog_urls must not be empty")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.StartIndex < 0 {
		return fmt.Errorf("crawler.start_index must be >= 0")
	}
	if c.Crawler.MaxTotal < 0 {
		return fmt.Errorf("crawler.max_total must be >= 0")
	}
	if c.Crawler.RatePerSecond < 0 {
		return fmt.Errorf("crawler.rate_per_second must be >= 0")
	}
	if c.Crawler.JitterMs < 0 {
		return fmt.Errorf("crawler.jitter_ms must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if strings.TrimSpace(c.Records.LogFile) == "" {
		return fmt.Errorf("records.log_file must be set")
	}
	switch c.Storage.Backend {
	case ArchiveNone, ArchiveLocal, ArchiveMemory:
	case ArchiveGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be one of none, local, gcs, memory")
	}
	switch c.DB.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.driver is postgres")
		}
	default:
		return fmt.Errorf("db.driver must be one of memory, sqlite, postgres")
	}
	switch strings.ToLower(c.Loader.ChildPolicy) {
	case "append", "dedupe":
	default:
		return fmt.Errorf("loader.child_policy must be append or dedupe")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// LogPath is the full path of the raw record log.
func (c Config) LogPath() string {
	return filepath.Join(c.Records.Dir, c.Records.LogFile)
}

// FetchTimeout converts the HTTP timeout to a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Jitter converts the jitter setting to a duration.
func (c Config) Jitter() time.Duration {
	return time.Duration(c.Crawler.JitterMs) * time.Millisecond
}
