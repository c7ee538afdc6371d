// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	DB        DBConfig        `mapstructure:"db"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig configures the content API gateway.
type APIConfig struct {
	Key            string `mapstructure:"key"`
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CrawlConfig governs scheduler pagination and fan-out behavior.
type CrawlConfig struct {
	CommentPageLimit int    `mapstructure:"comment_page_limit"`
	BatchSize        int    `mapstructure:"batch_size"`
	CompletionTopic  string `mapstructure:"completion_topic"`
}

// DBConfig controls access to the corpus database.
type DBConfig struct {
	DSN              string `mapstructure:"dsn"`
	MaxConns         int32  `mapstructure:"max_conns"`
	MinConns         int32  `mapstructure:"min_conns"`
	ConnLifetimeMins int    `mapstructure:"conn_lifetime_minutes"`
}

// ArtifactsConfig selects and configures the graph artifact backend.
type ArtifactsConfig struct {
	// Backend is one of "gcs", "fs" or "memory".
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// PubSubConfig holds metadata for completion-event publishing.
type PubSubConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ProjectID    string `mapstructure:"project_id"`
	RankingTopic string `mapstructure:"ranking_topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INFLUENCER")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("crawl.comment_page_limit", 3)
	v.SetDefault("crawl.batch_size", 50)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("artifacts.backend", "fs")
	v.SetDefault("artifacts.base_dir", ".networks")
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Crawl.CommentPageLimit <= 0 {
		return fmt.Errorf("crawl.comment_page_limit must be > 0")
	}
	if c.Crawl.BatchSize <= 0 || c.Crawl.BatchSize > 50 {
		return fmt.Errorf("crawl.batch_size must be in 1..50")
	}
	switch c.Artifacts.Backend {
	case "gcs":
		if c.Artifacts.GCSBucket == "" {
			return fmt.Errorf("artifacts.gcs_bucket must be set for the gcs backend")
		}
	case "fs":
		if c.Artifacts.BaseDir == "" {
			return fmt.Errorf("artifacts.base_dir must be set for the fs backend")
		}
	case "memory":
	default:
		return fmt.Errorf("artifacts.backend must be one of gcs, fs, memory")
	}
	if c.PubSub.Enabled && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub is enabled")
	}
	return nil
}

// APITimeout converts the API timeout config into a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// ConnLifetime converts the pool lifetime config into a duration.
func (c Config) ConnLifetime() time.Duration {
	return time.Duration(c.DB.ConnLifetimeMins) * time.Minute
}
