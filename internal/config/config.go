// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig             `mapstructure:"server"`
	DB        DBConfig                 `mapstructure:"db"`
	Storage   StorageConfig            `mapstructure:"storage"`
	PubSub    PubSubConfig             `mapstructure:"pubsub"`
	Vision    VisionConfig             `mapstructure:"vision"`
	Labelers  map[string]LabelerConfig `mapstructure:"labelers"`
	Pipeline  PipelineConfig           `mapstructure:"pipeline"`
	Refresh   RefreshConfig            `mapstructure:"refresh"`
	Discovery DiscoveryConfig          `mapstructure:"discovery"`
	Schedule  ScheduleConfig           `mapstructure:"schedule"`
	Directory DirectoryConfig          `mapstructure:"directory"`
	Logging   LoggingConfig            `mapstructure:"logging"`
}

// ServerConfig controls the HTTP read surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig sets the blob backend and image placement.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// VisionConfig points at the external vision-model endpoint.
type VisionConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LabelerConfig enables one labeler variant.
type LabelerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Version string `mapstructure:"version"`
	Model   string `mapstructure:"model"`
}

// PipelineConfig governs batch collection behavior.
type PipelineConfig struct {
	Concurrency         int `mapstructure:"concurrency"`
	FetchTimeoutSeconds int `mapstructure:"fetch_timeout_seconds"`
}

// RefreshConfig governs the on-demand staleness decision.
type RefreshConfig struct {
	StalenessMinutes    int    `mapstructure:"staleness_minutes"`
	LookbackHours       int    `mapstructure:"lookback_hours"`
	PreferredLabeler    string `mapstructure:"preferred_labeler"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
}

// DiscoveryConfig controls dynamic URL discovery.
type DiscoveryConfig struct {
	PlayerURLTemplate   string `mapstructure:"player_url_template"`
	ProbeTimeoutSeconds int    `mapstructure:"probe_timeout_seconds"`
	RenderEnabled       bool   `mapstructure:"render_enabled"`
	RenderMaxParallel   int    `mapstructure:"render_max_parallel"`
	RenderTimeoutSec    int    `mapstructure:"render_timeout_seconds"`
}

// ScheduleConfig drives the batch cadence. Quiet hours gate whole runs;
// they are an external policy input, not derived by the pipeline.
type ScheduleConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes"`
	QuietStartHour  int `mapstructure:"quiet_start_hour"`
	QuietEndHour    int `mapstructure:"quiet_end_hour"`
}

// DirectoryConfig selects the webcam directory source.
type DirectoryConfig struct {
	FallbackFile string `mapstructure:"fallback_file"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FOGWATCH")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "webcam_images")
	v.SetDefault("storage.content_type", "image/jpeg")
	v.SetDefault("pubsub.provider", "memory")
	v.SetDefault("vision.base_url", "https://api.openai.com/v1")
	v.SetDefault("vision.model", "gpt-4o-mini")
	v.SetDefault("vision.timeout_seconds", 60)
	v.SetDefault("pipeline.concurrency", 10)
	v.SetDefault("pipeline.fetch_timeout_seconds", 10)
	v.SetDefault("refresh.staleness_minutes", 30)
	v.SetDefault("refresh.lookback_hours", 24)
	v.SetDefault("refresh.fetch_timeout_seconds", 10)
	v.SetDefault("discovery.player_url_template", "https://webcams.windy.com/webcams/public/embed/player/%s/day")
	v.SetDefault("discovery.probe_timeout_seconds", 5)
	v.SetDefault("discovery.render_enabled", false)
	v.SetDefault("discovery.render_max_parallel", 1)
	v.SetDefault("discovery.render_timeout_seconds", 25)
	v.SetDefault("schedule.interval_minutes", 10)
	v.SetDefault("schedule.quiet_start_hour", -1)
	v.SetDefault("schedule.quiet_end_hour", -1)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Pipeline.Concurrency <= 0 {
		return fmt.Errorf("pipeline.concurrency must be > 0")
	}
	if c.Pipeline.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("pipeline.fetch_timeout_seconds must be > 0")
	}
	if c.Refresh.StalenessMinutes <= 0 {
		return fmt.Errorf("refresh.staleness_minutes must be > 0")
	}
	if c.Refresh.LookbackHours <= 0 {
		return fmt.Errorf("refresh.lookback_hours must be > 0")
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
	}
	if c.PubSub.Provider == "pubsub" && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub.provider is pubsub")
	}
	if c.Discovery.RenderEnabled && c.Discovery.RenderMaxParallel <= 0 {
		return fmt.Errorf("discovery.render_max_parallel must be > 0 when rendering is enabled")
	}
	return nil
}

// StalenessThreshold converts the refresh staleness knob into a duration.
func (c Config) StalenessThreshold() time.Duration {
	return time.Duration(c.Refresh.StalenessMinutes) * time.Minute
}

// LookbackWindow converts the refresh lookback knob into a duration.
func (c Config) LookbackWindow() time.Duration {
	return time.Duration(c.Refresh.LookbackHours) * time.Hour
}
