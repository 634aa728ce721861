package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures the bot account, credentials, ingestion cadence, and storage.
type Config struct {
	Account     AccountConfig     `yaml:"account"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Replies     RepliesConfig     `yaml:"replies"`
	Storage     StorageConfig     `yaml:"storage"`
	MetricsAddr string            `yaml:"metricsAddr"`
}

type AccountConfig struct {
	// Username of the bot account, without the @.
	Username string `yaml:"username"`
	// Hashtag that marks a good-vibes declaration, without the #.
	Hashtag string `yaml:"hashtag"`
}

type CredentialsConfig struct {
	// Hex-encoded 32-byte key for encrypting stored tokens.
	// If empty, read from env TOKEN_ENCRYPTION_KEY.
	EncryptionKey string `yaml:"encryptionKey"`
	// OAuth 2.0 client credentials for the token refresh exchange.
	// Optional: their absence disables automatic refresh, nothing else.
	ClientID     string `yaml:"clientID"`
	ClientSecret string `yaml:"clientSecret"`
}

type IngestionConfig struct {
	// Interval between scheduler ticks.
	TickInterval time.Duration `yaml:"tickInterval"`
	// Interval between degree view refreshes; rounded to whole ticks.
	ViewRefreshInterval time.Duration `yaml:"viewRefreshInterval"`
	// How far back a search window reaches when no cursor exists.
	SearchWindow time.Duration `yaml:"searchWindow"`
}

type RepliesConfig struct {
	// Max outbound replies per hour and per day; 0 disables the cap.
	MaxPerHour int `yaml:"maxPerHour"`
	MaxPerDay  int `yaml:"maxPerDay"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Account: AccountConfig{Username: "reputest_bot", Hashtag: "gmgv"},
		Ingestion: IngestionConfig{
			TickInterval:        5 * time.Minute,
			ViewRefreshInterval: time.Hour,
			SearchWindow:        6 * time.Hour,
		},
		Replies: RepliesConfig{MaxPerHour: 30, MaxPerDay: 200},
		Storage: StorageConfig{DBPath: "./vibegraph.db"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.EncryptionKey == "" {
		c.Credentials.EncryptionKey = os.Getenv("TOKEN_ENCRYPTION_KEY")
	}
	if c.Credentials.ClientID == "" {
		c.Credentials.ClientID = os.Getenv("XAPI_CLIENT_ID")
	}
	if c.Credentials.ClientSecret == "" {
		c.Credentials.ClientSecret = os.Getenv("XAPI_CLIENT_SECRET")
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = os.Getenv("VIBEGRAPH_DB_PATH")
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = os.Getenv("METRICS_ADDR")
	}
}

// Validate checks the parts of the config the process cannot run without.
// A failure here is fatal at startup, never a runtime condition.
func (c *Config) Validate() error {
	if c.Storage.DBPath == "" {
		return errors.New("storage.dbPath is required")
	}
	if c.Account.Username == "" {
		return errors.New("account.username is required")
	}
	if _, err := c.EncryptionKey(); err != nil {
		return err
	}
	if c.Ingestion.TickInterval <= 0 {
		return errors.New("ingestion.tickInterval must be positive")
	}
	return nil
}

// EncryptionKey decodes and validates the token encryption key.
// The key must be exactly 32 bytes encoded as 64 hex characters.
func (c *Config) EncryptionKey() ([]byte, error) {
	if c.Credentials.EncryptionKey == "" {
		return nil, errors.New("credentials.encryptionKey is not set; generate one with: openssl rand -hex 32")
	}
	key, err := hex.DecodeString(c.Credentials.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credentials.encryptionKey is not valid hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credentials.encryptionKey must be exactly 32 bytes (64 hex chars), got %d bytes", len(key))
	}
	return key, nil
}

// CanRefreshToken reports whether client credentials for the OAuth 2.0
// refresh exchange are configured.
func (c *Config) CanRefreshToken() bool {
	return c.Credentials.ClientID != "" && c.Credentials.ClientSecret != ""
}

// Load reads YAML config from path and resolves env fallbacks.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
