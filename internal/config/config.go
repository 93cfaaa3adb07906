package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the main configuration for favs.
type Config struct {
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	Local        LocalConfig        `toml:"local"`
	Encryption   EncryptionConfig   `toml:"encryption"`
	Remote       RemoteConfig       `toml:"remote"`
	Lookup       LookupConfig       `toml:"lookup"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
}

// LocalConfig configures the device-local tier.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LocalConfig struct {
	Type string `toml:"type"`           // "file" (default) or "memory"
	Path string `toml:"path,omitempty"` // only used for type=file
}

// EncryptionConfig controls sealing of the local tier at rest with an age key.
type EncryptionConfig struct {
	Enabled bool   `toml:"enabled"`
	KeyPath string `toml:"key_path"` // X25519 identity, created by `favs config init`
}

// RemoteConfig configures the per-account tier.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "memory", "sqlite", or "s3"

	// SQLite-specific fields (only used when Type == "sqlite")
	DataDir string `toml:"data_dir,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible services

	// Static S3 credentials, read from the environment only.
	S3AccessKeyID     string `toml:"-"`
	S3SecretAccessKey string `toml:"-"`

	// Retries of transport failures; 0 or 1 disables retrying.
	RetryAttempts     int    `toml:"retry_attempts"`
	RetryBaseInterval string `toml:"retry_base_interval,omitempty"` // e.g. "200ms"
}

// RetryInterval parses RetryBaseInterval, defaulting to 200ms.
func (c RemoteConfig) RetryInterval() (time.Duration, error) {
	return parseDuration(c.RetryBaseInterval, 200*time.Millisecond)
}

// LookupConfig configures the item-lookup collaborator used for display data.
type LookupConfig struct {
	BaseURL string `toml:"base_url"` // empty disables lookups
	Timeout string `toml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout, defaulting to 10s.
func (c LookupConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration(c.Timeout, 10*time.Second)
}

// ConnectivityConfig configures the connectivity signal.
type ConnectivityConfig struct {
	// StatusFile holds "online" or "offline" and is rewritten by an external
	// hook (e.g. a network manager dispatcher script). Empty means always online.
	StatusFile string `toml:"status_file,omitempty"`
}

// NewConfig creates a new Config with defaults rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Local: LocalConfig{
			Type: "file",
			Path: filepath.Join(baseDir, "local"),
		},
		Encryption: EncryptionConfig{
			KeyPath: filepath.Join(baseDir, "keys", "local.key"),
		},
		Remote: RemoteConfig{
			Type:              "sqlite",
			DataDir:           filepath.Join(baseDir, "remote"),
			RetryAttempts:     3,
			RetryBaseInterval: "200ms",
		},
		Lookup: LookupConfig{
			BaseURL: "https://www.themealdb.com/api/json/v1/1",
			Timeout: "10s",
		},
	}
}

// envOverrides lists settings that can be overridden from the environment
// with the FAVS_ prefix, e.g. FAVS_REMOTE_TYPE=memory.
type envOverrides struct {
	BaseDir          string `envconfig:"BASE_DIR"`
	LogDir           string `envconfig:"LOG_DIR"`
	LocalType        string `envconfig:"LOCAL_TYPE"`
	LocalPath        string `envconfig:"LOCAL_PATH"`
	Encrypt          *bool  `envconfig:"ENCRYPT"`
	RemoteType       string `envconfig:"REMOTE_TYPE"`
	RemoteDataDir    string `envconfig:"REMOTE_DATA_DIR"`
	S3Bucket         string `envconfig:"S3_BUCKET"`
	S3Prefix         string `envconfig:"S3_PREFIX"`
	S3Region         string `envconfig:"S3_REGION"`
	S3Endpoint       string `envconfig:"S3_ENDPOINT"`
	S3AccessKeyID    string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey      string `envconfig:"S3_SECRET_ACCESS_KEY"`
	LookupBaseURL    string `envconfig:"LOOKUP_BASE_URL"`
	StatusFile       string `envconfig:"STATUS_FILE"`
	RemoteRetryCount *int   `envconfig:"REMOTE_RETRY_ATTEMPTS"`
}

// ApplyEnv overrides cfg fields from FAVS_* environment variables.
func ApplyEnv(cfg *Config) error {
	var o envOverrides
	if err := envconfig.Process("FAVS", &o); err != nil {
		return fmt.Errorf("reading environment overrides: %w", err)
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.BaseDir, o.BaseDir)
	set(&cfg.LogDir, o.LogDir)
	set(&cfg.Local.Type, o.LocalType)
	set(&cfg.Local.Path, o.LocalPath)
	set(&cfg.Remote.Type, o.RemoteType)
	set(&cfg.Remote.DataDir, o.RemoteDataDir)
	set(&cfg.Remote.S3Bucket, o.S3Bucket)
	set(&cfg.Remote.S3Prefix, o.S3Prefix)
	set(&cfg.Remote.S3Region, o.S3Region)
	set(&cfg.Remote.S3Endpoint, o.S3Endpoint)
	set(&cfg.Remote.S3AccessKeyID, o.S3AccessKeyID)
	set(&cfg.Remote.S3SecretAccessKey, o.S3SecretKey)
	set(&cfg.Lookup.BaseURL, o.LookupBaseURL)
	set(&cfg.Connectivity.StatusFile, o.StatusFile)
	if o.Encrypt != nil {
		cfg.Encryption.Enabled = *o.Encrypt
	}
	if o.RemoteRetryCount != nil {
		cfg.Remote.RetryAttempts = *o.RemoteRetryCount
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path and applies
// environment overrides.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
