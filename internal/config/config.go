// Package config loads the relay configuration from YAML with .env and
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the conversion relay.
type Config struct {
	Ads     AdsConfig     `yaml:"ads"`
	Upload  UploadConfig  `yaml:"upload"`
	Retry   RetryConfig   `yaml:"retry"`
	Dedup   DedupConfig   `yaml:"dedup"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
}

// AdsConfig holds credentials and routing for the conversion-upload API.
type AdsConfig struct {
	BaseURL        string      `yaml:"base_url"`
	DeveloperToken string      `yaml:"developer_token"`
	AccountID      string      `yaml:"account_id"`
	// LoginAccountID is the account-scoped routing header value, usually
	// the manager account when uploading into a managed sub-account.
	LoginAccountID    string      `yaml:"login_account_id"`
	ManagedAccountID  string      `yaml:"managed_account_id"`
	UseManagedAccount bool        `yaml:"use_managed_account"`
	TimeoutSeconds    int         `yaml:"timeout_seconds"`
	OAuth             OAuthConfig `yaml:"oauth"`
}

// Timeout returns the HTTP client timeout.
func (c AdsConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OAuthConfig feeds the token source behind the API client.
type OAuthConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	TokenURL     string `yaml:"token_url"`
}

// UploadConfig controls batching and failure handling.
//
// Mode distinguishes two superficially similar behaviors:
// "continue-on-error" handles whole-batch failures on our side (the
// batch's items are marked failed, later batches still run), while
// "partial-failure" additionally asks the platform to keep valid entries
// within a batch and reports per-entry rejections.
type UploadConfig struct {
	BatchingEnabled bool   `yaml:"batching_enabled"`
	BatchSize       int    `yaml:"batch_size"`
	Mode            string `yaml:"mode"` // fail-fast | continue-on-error | partial-failure
	ValidateOnly    bool   `yaml:"validate_only"`
	ContinueOnFail  bool   `yaml:"continue_on_fail"`
}

// RetryConfig controls the attempt loop around every upload call.
type RetryConfig struct {
	MaxRetries  int `yaml:"max_retries"`
	BaseDelayMS int `yaml:"base_delay_ms"`
	MaxDelayMS  int `yaml:"max_delay_ms"`
}

// BaseDelay returns the configured base backoff delay.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the configured backoff cap.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// DedupConfig controls the optional redis order-id cache.
type DedupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLHours      int    `yaml:"ttl_hours"`
}

// TTL returns the cache entry lifetime.
func (d DedupConfig) TTL() time.Duration {
	if d.TTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(d.TTLHours) * time.Hour
}

// StorageConfig controls the optional postgres audit store.
type StorageConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

// LoggingConfig controls log verbosity and PII redaction.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"` // nil = on
}

// RedactionEnabled defaults to true when unset.
func (l LoggingConfig) RedactionEnabled() bool {
	return l.RedactPII == nil || *l.RedactPII
}

// Load reads and validates the YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Upload.BatchSize == 0 {
		cfg.Upload.BatchSize = 100
	}
	if cfg.Upload.Mode == "" {
		cfg.Upload.Mode = "partial-failure"
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 1000
	}
	if cfg.Retry.MaxDelayMS == 0 {
		cfg.Retry.MaxDelayMS = 30000
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first so secrets can live in .env
// locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ADS_BASE_URL"); v != "" {
		cfg.Ads.BaseURL = v
	}
	if v := os.Getenv("ADS_DEVELOPER_TOKEN"); v != "" {
		cfg.Ads.DeveloperToken = v
	}
	if v := os.Getenv("ADS_ACCOUNT_ID"); v != "" {
		cfg.Ads.AccountID = v
	}
	if v := os.Getenv("ADS_LOGIN_ACCOUNT_ID"); v != "" {
		cfg.Ads.LoginAccountID = v
	}
	if v := os.Getenv("ADS_MANAGED_ACCOUNT_ID"); v != "" {
		cfg.Ads.ManagedAccountID = v
		cfg.Ads.UseManagedAccount = true
	}
	if v := os.Getenv("ADS_CLIENT_ID"); v != "" {
		cfg.Ads.OAuth.ClientID = v
	}
	if v := os.Getenv("ADS_CLIENT_SECRET"); v != "" {
		cfg.Ads.OAuth.ClientSecret = v
	}
	if v := os.Getenv("ADS_REFRESH_TOKEN"); v != "" {
		cfg.Ads.OAuth.RefreshToken = v
	}
	if v := os.Getenv("ADS_TOKEN_URL"); v != "" {
		cfg.Ads.OAuth.TokenURL = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Dedup.RedisAddr = v
		cfg.Dedup.Enabled = true
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		cfg.Storage.Enabled = true
	}

	return cfg, nil
}
