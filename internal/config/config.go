// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Headless  HeadlessConfig  `mapstructure:"headless"`
	Canonical CanonicalConfig `mapstructure:"canonical"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Bookmark  BookmarkConfig  `mapstructure:"bookmark"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
	StaticDir             string `mapstructure:"static_dir"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// FetchConfig governs how pages are retrieved.
type FetchConfig struct {
	Mode           archive.FetchMode `mapstructure:"mode"`
	UserAgent      string            `mapstructure:"user_agent"`
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int               `mapstructure:"max_body_bytes"`
	RespectRobots  bool              `mapstructure:"respect_robots"`
	RateLimitRPS   float64           `mapstructure:"rate_limit_rps"`
	RateLimitBurst int               `mapstructure:"rate_limit_burst"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	MaxParallel     int    `mapstructure:"max_parallel"`
	NavTimeoutSec   int    `mapstructure:"nav_timeout_seconds"`
	SettleDelayMs   int    `mapstructure:"settle_delay_ms"`
	ExecPath        string `mapstructure:"exec_path"`
	NoSandbox       bool   `mapstructure:"no_sandbox"`
	PromotionThresh int    `mapstructure:"promotion_threshold"`
}

// HostAlias rewrites one mobile host to its desktop counterpart.
type HostAlias struct {
	From string `mapstructure:"from"`
	To   string `mapstructure:"to"`
}

// CanonicalConfig controls URL canonicalization. Aliases are listed as
// pairs because Viper splits map keys on dots.
type CanonicalConfig struct {
	UseDefaultHosts bool        `mapstructure:"use_default_hosts"`
	HostAliases     []HostAlias `mapstructure:"host_aliases"`
}

// StorageConfig selects the object store and how links to it are minted.
type StorageConfig struct {
	Backend     string             `mapstructure:"backend"`
	Prefix      string             `mapstructure:"prefix"`
	ContentType string             `mapstructure:"content_type"`
	LinkPolicy  archive.LinkPolicy `mapstructure:"link_policy"`
	GCS         GCSConfig          `mapstructure:"gcs"`
	Local       LocalConfig        `mapstructure:"local"`
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket            string `mapstructure:"bucket"`
	PublicBaseURL     string `mapstructure:"public_base_url"`
	CacheControl      string `mapstructure:"cache_control"`
	SignedURLTTLHours int    `mapstructure:"signed_url_ttl_hours"`
	GoogleAccessID    string `mapstructure:"google_access_id"`
	PrivateKeyFile    string `mapstructure:"private_key_file"`
}

// LocalConfig holds filesystem storage settings.
type LocalConfig struct {
	BaseDir       string `mapstructure:"base_dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// BookmarkConfig configures the Raindrop client.
type BookmarkConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	Token           string `mapstructure:"token"`
	TimeoutSeconds  int    `mapstructure:"timeout_seconds"`
	IncludeChildren bool   `mapstructure:"include_children"`
}

// PubSubConfig holds metadata for archived-page notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Storage backends.
const (
	BackendGCS    = "gcs"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := v.BindEnv("bookmark.token", "ARCHIVER_BOOKMARK_TOKEN", "RAINDROP_ACCESS_TOKEN"); err != nil {
		return Config{}, fmt.Errorf("bind env: %w", err)
	}

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
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("server.static_dir", "")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("fetch.mode", string(archive.FetchDirect))
	v.SetDefault("fetch.user_agent", "archive-saver/0.1")
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.max_body_bytes", 20<<20)
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.rate_limit_rps", 1.0)
	v.SetDefault("fetch.rate_limit_burst", 2)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.settle_delay_ms", 500)
	v.SetDefault("headless.exec_path", "")
	v.SetDefault("headless.no_sandbox", false)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("canonical.use_default_hosts", true)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.prefix", "web-archives")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("storage.link_policy", string(archive.LinkPermanent))
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.public_base_url", "https://storage.googleapis.com")
	v.SetDefault("storage.gcs.cache_control", "")
	v.SetDefault("storage.gcs.signed_url_ttl_hours", 168)
	v.SetDefault("storage.gcs.google_access_id", "")
	v.SetDefault("storage.gcs.private_key_file", "")
	v.SetDefault("storage.local.base_dir", "archives")
	v.SetDefault("storage.local.public_base_url", "http://localhost:8080/archives")
	v.SetDefault("bookmark.base_url", "https://api.raindrop.io/rest/v1")
	v.SetDefault("bookmark.timeout_seconds", 15)
	v.SetDefault("bookmark.include_children", false)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "archived-pages")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return errors.New("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return errors.New("auth.api_key must be set when auth is enabled")
	}
	switch c.Fetch.Mode {
	case archive.FetchDirect, archive.FetchHeadless, archive.FetchAuto:
	default:
		return fmt.Errorf("fetch.mode %q must be one of direct, headless, auto", c.Fetch.Mode)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.Mode != archive.FetchDirect && c.Headless.MaxParallel <= 0 {
		return errors.New("headless.max_parallel must be > 0 when headless fetching is enabled")
	}
	for i, alias := range c.Canonical.HostAliases {
		if strings.TrimSpace(alias.From) == "" || strings.TrimSpace(alias.To) == "" {
			return fmt.Errorf("canonical.host_aliases[%d] needs both from and to", i)
		}
	}
	switch c.Storage.LinkPolicy {
	case archive.LinkPermanent, archive.LinkTemporary:
	default:
		return fmt.Errorf("storage.link_policy %q must be permanent or temporary", c.Storage.LinkPolicy)
	}
	switch c.Storage.Backend {
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return errors.New("storage.gcs.bucket must be set for the gcs backend")
		}
		if (c.Storage.GCS.GoogleAccessID == "") != (c.Storage.GCS.PrivateKeyFile == "") {
			return errors.New("storage.gcs.google_access_id and storage.gcs.private_key_file must be set together")
		}
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" || c.Storage.Local.PublicBaseURL == "" {
			return errors.New("storage.local.base_dir and storage.local.public_base_url must be set for the local backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend %q must be one of gcs, local, memory", c.Storage.Backend)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return errors.New("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// HostMap merges the configured aliases over the supplied defaults.
func (c CanonicalConfig) HostMap(defaults map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(c.HostAliases))
	if c.UseDefaultHosts {
		for from, to := range defaults {
			out[from] = to
		}
	}
	for _, alias := range c.HostAliases {
		out[strings.TrimSpace(alias.From)] = strings.TrimSpace(alias.To)
	}
	return out
}

// FetchTimeout returns the per-page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// RequestTimeout returns the HTTP handler budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// SignerKey reads the GCS signing key, if configured.
func (c GCSConfig) SignerKey() ([]byte, error) {
	if c.PrivateKeyFile == "" {
		return nil, nil
	}
	key, err := os.ReadFile(c.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read signer key: %w", err)
	}
	return key, nil
}
