package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// Config represents the main configuration for trail.
type Config struct {
	SessionID  string           `toml:"session_id" validate:"required"`
	BaseDir    string           `toml:"base_dir" validate:"required"`
	LogDir     string           `toml:"log_dir"`
	Scope      string           `toml:"scope" validate:"required"`
	Store      StoreConfig      `toml:"store"`
	Recording  RecordingConfig  `toml:"recording"`
	Catalog    CatalogConfig    `toml:"catalog"`
	Location   LocationConfig   `toml:"location"`
	Events     EventsConfig     `toml:"events"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// StoreConfig selects the trail store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type string `toml:"type" validate:"oneof=memory filesystem s3 sqlite postgres"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty" validate:"required_if=Type filesystem"`

	// SQLite-specific fields (only used when Type == "sqlite")
	DataDir string `toml:"data_dir,omitempty" validate:"required_if=Type sqlite"`

	// Postgres-specific fields (only used when Type == "postgres")
	PostgresURL string `toml:"postgres_url,omitempty" validate:"required_if=Type postgres"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty" validate:"required_if=Type s3"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty" validate:"omitempty,url"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// RecordingConfig holds the sampling and retry policy of a recording.
type RecordingConfig struct {
	MinDistanceM  float64 `toml:"min_distance_m" validate:"gt=0"`
	HighAccuracy  bool    `toml:"high_accuracy"`
	TimeoutMS     int     `toml:"timeout_ms" validate:"gte=0"`
	MaxCacheAgeMS int     `toml:"max_cache_age_ms" validate:"gte=0"`
	RetryDelayMS  int     `toml:"retry_delay_ms" validate:"gt=0"`
}

// CatalogConfig holds the catalog policy.
type CatalogConfig struct {
	UniqueNames bool     `toml:"unique_names"`
	Locale      string   `toml:"locale" validate:"required,bcp47_language_tag"`
	Palette     []string `toml:"palette" validate:"min=1,dive,required"`
}

// LocationConfig selects the location provider.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type LocationConfig struct {
	Type string `toml:"type" validate:"oneof=replay static"`

	// Replay-specific fields (only used when Type == "replay")
	ReplayFile       string `toml:"replay_file,omitempty" validate:"required_if=Type replay"`
	ReplayIntervalMS int    `toml:"replay_interval_ms,omitempty" validate:"gte=0"`

	// Static-specific fields (only used when Type == "static")
	StaticLatitude  float64 `toml:"static_latitude,omitempty" validate:"gte=-90,lte=90"`
	StaticLongitude float64 `toml:"static_longitude,omitempty" validate:"gte=-180,lte=180"`
}

// EventsConfig selects where catalog change events are published.
type EventsConfig struct {
	Type               string `toml:"type" validate:"oneof=none redis"`
	RedisAddr          string `toml:"redis_addr,omitempty" validate:"required_if=Type redis"`
	RedisPassword      string `toml:"redis_password,omitempty"`
	RedisChannelPrefix string `toml:"redis_channel_prefix,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for exports.
type EncryptionConfig struct {
	Type           string `toml:"type" validate:"omitempty,oneof=age test"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// Defaults applied by NewConfig.
const (
	DefaultMinDistanceM  = 10.0
	DefaultTimeoutMS     = 10000
	DefaultRetryDelayMS  = 5000
	DefaultLocale        = "und"
	DefaultChannelPrefix = "trail"
)

// DefaultPalette is the combined-view colour cycle.
var DefaultPalette = []string{"blue", "red", "green", "purple", "orange", "yellow"}

// NewConfig creates a new Config with the provided values and defaults for
// everything else: a sqlite store under baseDir and a static location
// provider.
func NewConfig(sessionID, baseDir, scope string) *Config {
	return &Config{
		SessionID: sessionID,
		BaseDir:   baseDir,
		LogDir:    filepath.Join(baseDir, "log"),
		Scope:     scope,
		Store: StoreConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Recording: RecordingConfig{
			MinDistanceM:  DefaultMinDistanceM,
			HighAccuracy:  true,
			TimeoutMS:     DefaultTimeoutMS,
			MaxCacheAgeMS: 0,
			RetryDelayMS:  DefaultRetryDelayMS,
		},
		Catalog: CatalogConfig{
			Locale:  DefaultLocale,
			Palette: append([]string(nil), DefaultPalette...),
		},
		Location: LocationConfig{Type: "static"},
		Events: EventsConfig{
			Type:               "none",
			RedisChannelPrefix: DefaultChannelPrefix,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "trail.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "trail.key"),
		},
	}
}

// applyDefaults fills sections a hand-written file left out.
func (c *Config) applyDefaults() {
	if c.LogDir == "" && c.BaseDir != "" {
		c.LogDir = filepath.Join(c.BaseDir, "log")
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Recording.MinDistanceM == 0 {
		c.Recording.MinDistanceM = DefaultMinDistanceM
	}
	if c.Recording.RetryDelayMS == 0 {
		c.Recording.RetryDelayMS = DefaultRetryDelayMS
	}
	if c.Catalog.Locale == "" {
		c.Catalog.Locale = DefaultLocale
	}
	if len(c.Catalog.Palette) == 0 {
		c.Catalog.Palette = append([]string(nil), DefaultPalette...)
	}
	if c.Location.Type == "" {
		c.Location.Type = "static"
	}
	if c.Events.Type == "" {
		c.Events.Type = "none"
	}
	if c.Events.RedisChannelPrefix == "" {
		c.Events.RedisChannelPrefix = DefaultChannelPrefix
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config against its field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
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
	cfg.applyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from the specified file path.
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
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The file may hold store credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
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

// Init validates cfg and writes it to a new config file at path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
