// Package config loads and validates the engine configuration from a
// YAML file, with environment overrides for secrets so credentials stay
// out of config files.
package config

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-audit/pkg/encryption"
	"github.com/dd0wney/cluso-audit/pkg/retention"
	"github.com/dd0wney/cluso-audit/pkg/storage"
	"github.com/dd0wney/cluso-audit/pkg/trail"
	"github.com/dd0wney/cluso-audit/pkg/validation"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendS3       = "s3"
)

// Config is the full engine configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Trail      trail.Config     `yaml:"trail"`
	Retention  retention.Config `yaml:"retention"`
	Storage    StorageConfig    `yaml:"storage"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Auth       AuthConfig       `yaml:"auth"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// LoggingConfig sets the log level; LOG_LEVEL wins over the file.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// StorageConfig selects the entry store.
type StorageConfig struct {
	// Backend is "memory", "file" or "postgres".
	Backend string `yaml:"backend"`
	// DataDir holds the JSONL buckets for the file backend.
	DataDir string `yaml:"data_dir"`
	// DatabaseURL is the pgx connection string for the postgres
	// backend. Overridden by AUDIT_DATABASE_URL.
	DatabaseURL string `yaml:"database_url"`
}

// ArchiveConfig selects the archive blob store.
type ArchiveConfig struct {
	// Backend is "memory", "file" or "s3".
	Backend string           `yaml:"backend"`
	DataDir string           `yaml:"data_dir"`
	S3      storage.S3Config `yaml:"s3"`
}

// EncryptionConfig derives the archive encryption key. The passphrase
// comes from AUDIT_ARCHIVE_PASSPHRASE when set; the salt is hex in the
// file, generated once per deployment.
type EncryptionConfig struct {
	Passphrase string `yaml:"passphrase"`
	SaltHex    string `yaml:"salt"`
}

// AuthConfig configures the token provider. AUDIT_JWT_SECRET overrides
// the file secret.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// MetricsConfig enables the Prometheus registry.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a runnable in-memory configuration.
func Default() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info"},
		Trail:     trail.DefaultConfig(),
		Retention: retention.Config{},
		Storage:   StorageConfig{Backend: BackendMemory},
		Archive:   ArchiveConfig{Backend: BackendMemory},
		Auth:      AuthConfig{TokenTTL: time.Hour},
		Metrics:   MetricsConfig{Enabled: true},
	}
}

// Load reads a YAML config file, applies environment overrides and
// validates the result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes. Defaults are applied before the
// document, so absent sections keep their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUDIT_DATABASE_URL"); v != "" {
		c.Storage.DatabaseURL = v
	}
	if v := os.Getenv("AUDIT_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("AUDIT_ARCHIVE_PASSPHRASE"); v != "" {
		c.Encryption.Passphrase = v
	}
	if v := os.Getenv("AUDIT_S3_ACCESS_KEY"); v != "" {
		c.Archive.S3.AccessKey = v
	}
	if v := os.Getenv("AUDIT_S3_SECRET_KEY"); v != "" {
		c.Archive.S3.SecretKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) normalize() {
	c.Logging.Level = validation.DefaultOr(c.Logging.Level, "info")
	c.Storage.Backend = validation.DefaultOr(c.Storage.Backend, BackendMemory)
	c.Archive.Backend = validation.DefaultOr(c.Archive.Backend, BackendMemory)
	c.Auth.TokenTTL = validation.DefaultOrDuration(c.Auth.TokenTTL, time.Hour)
}

// Validate checks the whole configuration, collecting semantic errors
// across sections.
func (c *Config) Validate() error {
	if err := c.Trail.Validate(); err != nil {
		return err
	}
	if err := c.Retention.Validate(); err != nil {
		return err
	}
	return validation.NewConfigValidator("config").
		OneOf("logging.level", c.Logging.Level, []string{"debug", "info", "warn", "error"}).
		OneOf("storage.backend", c.Storage.Backend, []string{BackendMemory, BackendFile, BackendPostgres}).
		OneOf("archive.backend", c.Archive.Backend, []string{BackendMemory, BackendFile, BackendS3}).
		When(c.Storage.Backend == BackendFile, func(v *validation.ConfigValidator) {
			v.Required("storage.data_dir", c.Storage.DataDir)
		}).
		When(c.Storage.Backend == BackendPostgres, func(v *validation.ConfigValidator) {
			v.Required("storage.database_url", c.Storage.DatabaseURL)
		}).
		When(c.Archive.Backend == BackendFile, func(v *validation.ConfigValidator) {
			v.Required("archive.data_dir", c.Archive.DataDir)
		}).
		When(c.Archive.Backend == BackendS3, func(v *validation.ConfigValidator) {
			v.Required("archive.s3.bucket", c.Archive.S3.Bucket)
		}).
		When(c.Retention.EncryptArchives, func(v *validation.ConfigValidator) {
			v.Required("encryption.passphrase", c.Encryption.Passphrase)
			v.Custom("encryption.salt", c.checkSalt)
		}).
		When(c.Auth.JWTSecret != "", func(v *validation.ConfigValidator) {
			v.MinInt("auth.jwt_secret", len(c.Auth.JWTSecret), 32)
			v.MinDuration("auth.token_ttl", c.Auth.TokenTTL, time.Minute)
		}).
		Validate()
}

func (c *Config) checkSalt() error {
	salt, err := hex.DecodeString(c.Encryption.SaltHex)
	if err != nil {
		return fmt.Errorf("salt is not valid hex: %w", err)
	}
	if len(salt) != encryption.SaltSize {
		return fmt.Errorf("salt must be %d bytes, got %d", encryption.SaltSize, len(salt))
	}
	return nil
}

// OpenStore builds the configured entry store.
func (c *Config) OpenStore(ctx context.Context) (storage.Store, error) {
	switch c.Storage.Backend {
	case BackendFile:
		return storage.NewFileStore(c.Storage.DataDir)
	case BackendPostgres:
		return storage.NewPGStore(ctx, c.Storage.DatabaseURL)
	default:
		return storage.NewMemoryStore(), nil
	}
}

// OpenArchiveStore builds the configured archive blob store.
func (c *Config) OpenArchiveStore(ctx context.Context) (storage.ArchiveStore, error) {
	switch c.Archive.Backend {
	case BackendFile:
		return storage.NewFSArchiveStore(c.Archive.DataDir)
	case BackendS3:
		return storage.NewS3ArchiveStore(ctx, c.Archive.S3)
	default:
		return storage.NewMemoryArchiveStore(), nil
	}
}

// EncryptionEngine derives the archive encryption engine, or nil when
// archive encryption is off.
func (c *Config) EncryptionEngine() (*encryption.Engine, error) {
	if !c.Retention.EncryptArchives {
		return nil, nil
	}
	salt, err := hex.DecodeString(c.Encryption.SaltHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encryption salt: %w", err)
	}
	return encryption.NewEngineFromPassphrase(c.Encryption.Passphrase, salt)
}
