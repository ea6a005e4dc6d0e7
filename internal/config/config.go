// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lettercrawl/lettercrawl/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Listing    ListingConfig    `mapstructure:"listing"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls the operational HTTP endpoint.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the crawl pipeline behavior.
type CrawlerConfig struct {
	BaseURL               string `mapstructure:"base_url"`
	OutputDir             string `mapstructure:"output_dir"`
	MaxConcurrentArticles int    `mapstructure:"max_concurrent_articles"`
	MaxConcurrentImages   int    `mapstructure:"max_concurrent_images"`
	MaxRetries            int    `mapstructure:"max_retries"`
	RetryDelayMs          int    `mapstructure:"retry_delay_ms"`
	RequestTimeoutSec     int    `mapstructure:"request_timeout_seconds"`
	APIDelayMs            int    `mapstructure:"api_delay_ms"`
	ArticleDelayMs        int    `mapstructure:"article_delay_ms"`
	BrowserTimeoutSec     int    `mapstructure:"browser_timeout_seconds"`
	EnableResume          bool   `mapstructure:"enable_resume"`
	BatchSize             int    `mapstructure:"batch_size"`
}

// BrowserConfig configures the headless rendering subsystem.
type BrowserConfig struct {
	Handles     int    `mapstructure:"handles"`
	UserAgent   string `mapstructure:"user_agent"`
	Evasive     bool   `mapstructure:"evasive"`
	Fingerprint bool   `mapstructure:"fingerprint"`
}

// ListingConfig configures the metadata listing requests.
type ListingConfig struct {
	PageSize int    `mapstructure:"page_size"`
	Sort     string `mapstructure:"sort"`
}

// CheckpointConfig selects where progress snapshots live.
type CheckpointConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LETTERCRAWL")
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

	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = filepath.Join(cfg.Crawler.OutputDir, "progress.json")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.output_dir", "./output")
	v.SetDefault("crawler.max_concurrent_articles", 3)
	v.SetDefault("crawler.max_concurrent_images", 8)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.retry_delay_ms", 2000)
	v.SetDefault("crawler.request_timeout_seconds", 30)
	v.SetDefault("crawler.api_delay_ms", 500)
	v.SetDefault("crawler.article_delay_ms", 1500)
	v.SetDefault("crawler.browser_timeout_seconds", 45)
	v.SetDefault("crawler.enable_resume", true)
	v.SetDefault("crawler.batch_size", 10)
	v.SetDefault("browser.handles", 3)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.evasive", false)
	v.SetDefault("browser.fingerprint", true)
	v.SetDefault("listing.page_size", 12)
	v.SetDefault("listing.sort", "new")
	v.SetDefault("checkpoint.backend", "file")
	v.SetDefault("checkpoint.table", "crawl_checkpoints")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if strings.TrimSpace(c.Crawler.BaseURL) == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if c.Crawler.MaxConcurrentArticles <= 0 {
		return fmt.Errorf("crawler.max_concurrent_articles must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Browser.Handles <= 0 {
		return fmt.Errorf("browser.handles must be > 0")
	}
	switch c.Checkpoint.Backend {
	case "file":
	case "postgres":
		if c.Checkpoint.DSN == "" {
			return fmt.Errorf("checkpoint.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown checkpoint.backend %q", c.Checkpoint.Backend)
	}
	return nil
}

// Engine converts the loaded knobs into the injected engine configuration.
func (c Config) Engine() crawler.Config {
	return crawler.Config{
		BaseURL:               c.Crawler.BaseURL,
		OutputDir:             c.Crawler.OutputDir,
		MaxConcurrentArticles: c.Crawler.MaxConcurrentArticles,
		MaxConcurrentImages:   c.Crawler.MaxConcurrentImages,
		MaxRetries:            c.Crawler.MaxRetries,
		RetryDelay:            time.Duration(c.Crawler.RetryDelayMs) * time.Millisecond,
		RequestTimeout:        time.Duration(c.Crawler.RequestTimeoutSec) * time.Second,
		APIDelay:              time.Duration(c.Crawler.APIDelayMs) * time.Millisecond,
		ArticleDelay:          time.Duration(c.Crawler.ArticleDelayMs) * time.Millisecond,
		BrowserTimeout:        time.Duration(c.Crawler.BrowserTimeoutSec) * time.Second,
		EnableResume:          c.Crawler.EnableResume,
		BatchSize:             c.Crawler.BatchSize,
	}
}
