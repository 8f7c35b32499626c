package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Crawl     CrawlConfig     `yaml:"crawl" mapstructure:"crawl"`
	Normalize NormalizeConfig `yaml:"normalize" mapstructure:"normalize"`
	Delta     DeltaConfig     `yaml:"delta" mapstructure:"delta"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Snapshot  SnapshotConfig  `yaml:"snapshot" mapstructure:"snapshot"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the SQLite database backend.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DirectoryConfig points at the external venue directory file.
type DirectoryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
}

// GeocodeConfig holds Google Geocoding API settings used by venue import.
type GeocodeConfig struct {
	Key string  `yaml:"key" mapstructure:"key"`
	QPS float64 `yaml:"qps" mapstructure:"qps"`
}

// CrawlConfig configures the crawl stage.
type CrawlConfig struct {
	MaxSubpages     int      `yaml:"max_subpages" mapstructure:"max_subpages"`
	Concurrency     int      `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryAttempts   int      `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RequestDelayMS  int      `yaml:"request_delay_ms" mapstructure:"request_delay_ms"`
	Keywords        []string `yaml:"keywords" mapstructure:"keywords"`
	SkipPaths       []string `yaml:"skip_paths" mapstructure:"skip_paths"`
	UserAgent       string   `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyKB       int      `yaml:"max_body_kb" mapstructure:"max_body_kb"`
	FollowRedirects bool     `yaml:"follow_redirects" mapstructure:"follow_redirects"`
}

// NormalizeConfig configures text normalization.
type NormalizeConfig struct {
	MaxTextLen int `yaml:"max_text_len" mapstructure:"max_text_len"`
}

// DeltaConfig configures change detection.
type DeltaConfig struct {
	MaxWorkSet int `yaml:"max_work_set" mapstructure:"max_work_set"`
}

// ExtractConfig configures the extraction adapter.
type ExtractConfig struct {
	Concurrency        int `yaml:"concurrency" mapstructure:"concurrency"`
	RetryAttempts      int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	MaxBackoffSecs     int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	LowConfidenceFloor int `yaml:"low_confidence_floor" mapstructure:"low_confidence_floor"`
}

// SnapshotConfig configures generation rotation and archival.
type SnapshotConfig struct {
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	LockPath string `yaml:"lock_path" mapstructure:"lock_path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VENUEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.path", "venuewatch.db")
	v.SetDefault("directory.path", "venues.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("anthropic.enabled", true)
	v.SetDefault("geocode.qps", 5)
	v.SetDefault("crawl.max_subpages", 10)
	v.SetDefault("crawl.concurrency", 15)
	v.SetDefault("crawl.timeout_secs", 20)
	v.SetDefault("crawl.retry_attempts", 3)
	v.SetDefault("crawl.request_delay_ms", 750)
	v.SetDefault("crawl.keywords", []string{
		"menu", "specials", "special", "happy-hour", "happyhour", "happy_hour",
		"events", "deals", "drink", "food", "offers", "promotions", "hours",
	})
	v.SetDefault("crawl.skip_paths", []string{
		"/privacy*", "/careers*", "/blog/*", "/terms*", "/login*", "/cart*",
		"/*.pdf", "/*.jpg", "/*.jpeg", "/*.png", "/*.gif", "/*.zip", "/*.mp4",
	})
	v.SetDefault("crawl.user_agent", "Mozilla/5.0 (compatible; VenueWatchBot/1.0)")
	v.SetDefault("crawl.max_body_kb", 1024)
	v.SetDefault("crawl.follow_redirects", true)
	v.SetDefault("normalize.max_text_len", 50000)
	v.SetDefault("delta.max_work_set", 15)
	v.SetDefault("extract.concurrency", 4)
	v.SetDefault("extract.retry_attempts", 3)
	v.SetDefault("extract.max_backoff_secs", 60)
	v.SetDefault("extract.low_confidence_floor", 40)
	v.SetDefault("snapshot.retention_days", 14)
	v.SetDefault("pipeline.lock_path", "venuewatch.lock")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
