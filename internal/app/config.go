// Package app provides the application initialization and wiring.
package app

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/viper"

	"github.com/bnema/ocistore/internal/adapters/out/telemetry"
	"github.com/bnema/ocistore/internal/domain"
)

// Storage backends.
const (
	BackendFilesystem = "filesystem"
	BackendMemory     = "memory"
	BackendSQLite     = "sqlite"
	BackendStarskey   = "starskey"
)

// Config holds the application configuration.
type Config struct {
	Server struct {
		Port            int           `mapstructure:"port"`
		Hostname        string        `mapstructure:"hostname"`
		DataDir         string        `mapstructure:"data_dir"`
		MaxManifestSize string        `mapstructure:"max_manifest_size"` // e.g. "4MiB"
		MaxChunkSize    string        `mapstructure:"max_chunk_size"`
		AllowedCIDRs    []string      `mapstructure:"allowed_cidrs"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`

	Storage struct {
		Backend string `mapstructure:"backend"` // filesystem, memory, sqlite or starskey
		RootDir string `mapstructure:"root_dir"`
	} `mapstructure:"storage"`

	Registry struct {
		StrictManifestDigest bool   `mapstructure:"strict_manifest_digest"`
		MinChunkLength       string `mapstructure:"min_chunk_length"`
	} `mapstructure:"registry"`

	Events struct {
		BufferSize int  `mapstructure:"buffer_size"`
		Audit      bool `mapstructure:"audit"`
	} `mapstructure:"events"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   struct {
			Enabled    bool   `mapstructure:"enabled"`
			Path       string `mapstructure:"path"`
			MaxSize    int    `mapstructure:"max_size"`
			MaxBackups int    `mapstructure:"max_backups"`
			MaxAge     int    `mapstructure:"max_age"`
		} `mapstructure:"file"`
	} `mapstructure:"logging"`

	API struct {
		RateLimit struct {
			Enabled        bool          `mapstructure:"enabled"`
			Backend        string        `mapstructure:"backend"` // memory or starskey
			Dir            string        `mapstructure:"dir"`
			GlobalRPS      float64       `mapstructure:"global_rps"`
			PerIPRPS       float64       `mapstructure:"per_ip_rps"`
			Burst          int           `mapstructure:"burst"`
			TrustedProxies []string      `mapstructure:"trusted_proxies"`
			IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"api"`

	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// Limits holds the parsed size settings.
type Limits struct {
	MaxManifestSize int64
	MaxChunkSize    int64
	MinChunkLength  int64
}

// DefaultDataDir returns the default data directory path.
// Uses ~/.ocistore for user installations, /var/lib/ocistore as fallback.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".ocistore")
	}
	return "/var/lib/ocistore"
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: ocistore.toml
// Search paths (in order): /etc/ocistore, ~/.config/ocistore, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName("ocistore")
	v.SetConfigType("toml")
	v.AddConfigPath("/etc/ocistore")
	v.AddConfigPath("$HOME/.config/ocistore")
	v.AddConfigPath(".")
}

// LoadConfig reads configuration from file and environment on top of the
// defaults. A missing config file is not an error when none was requested.
func LoadConfig(configPath string) (Config, error) {
	_, cfg, err := initConfig(configPath)
	return cfg, err
}

func initConfig(configPath string) (*viper.Viper, Config, error) {
	v := viper.New()
	if err := loadConfig(v, configPath); err != nil {
		return nil, Config{}, fmt.Errorf("failed to load config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	cfg.Storage.RootDir = expandHome(cfg.Storage.RootDir)
	cfg.API.RateLimit.Dir = expandHome(cfg.API.RateLimit.Dir)

	if err := cfg.Validate(); err != nil {
		return nil, Config{}, err
	}

	return v, cfg, nil
}

// loadConfig loads configuration from file and sets defaults.
func loadConfig(v *viper.Viper, configPath string) error {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.hostname", "localhost")
	v.SetDefault("server.data_dir", DefaultDataDir())
	v.SetDefault("server.max_manifest_size", "4MiB")
	v.SetDefault("server.max_chunk_size", "100MiB")
	v.SetDefault("server.allowed_cidrs", []string{})
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("storage.backend", BackendFilesystem)
	v.SetDefault("storage.root_dir", "") // defaults to a backend-specific path under {data_dir}
	v.SetDefault("registry.strict_manifest_digest", true)
	v.SetDefault("registry.min_chunk_length", "0")
	v.SetDefault("events.buffer_size", 100)
	v.SetDefault("events.audit", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)
	v.SetDefault("api.rate_limit.enabled", true)
	v.SetDefault("api.rate_limit.backend", "memory")
	v.SetDefault("api.rate_limit.dir", "") // defaults to {data_dir}/ratelimit
	v.SetDefault("api.rate_limit.global_rps", 500)
	v.SetDefault("api.rate_limit.per_ip_rps", 50)
	v.SetDefault("api.rate_limit.burst", 100)
	v.SetDefault("api.rate_limit.trusted_proxies", []string{})
	v.SetDefault("api.rate_limit.idle_timeout", "10m")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.traces", true)
	v.SetDefault("telemetry.metrics", true)
	v.SetDefault("telemetry.trace_sample_rate", 1.0)

	ConfigureViper(v, configPath)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("OCISTORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// Validate checks the settings that cannot be corrected by defaults.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFilesystem, BackendMemory, BackendSQLite, BackendStarskey:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Server.Port <= 0 || c.Server.Port > math.MaxUint16 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Server.Hostname == "" {
		return fmt.Errorf("server.hostname is required")
	}
	if _, err := c.Limits(); err != nil {
		return err
	}
	return nil
}

// Host returns the registry host used to bound repository name length.
func (c Config) Host() domain.Host {
	return domain.Host{Name: c.Server.Hostname, Port: uint16(c.Server.Port)}
}

// Limits parses the human readable size settings.
func (c Config) Limits() (Limits, error) {
	var (
		l   Limits
		err error
	)
	if l.MaxManifestSize, err = parseSize("server.max_manifest_size", c.Server.MaxManifestSize); err != nil {
		return Limits{}, err
	}
	if l.MaxChunkSize, err = parseSize("server.max_chunk_size", c.Server.MaxChunkSize); err != nil {
		return Limits{}, err
	}
	if l.MinChunkLength, err = parseSize("registry.min_chunk_length", c.Registry.MinChunkLength); err != nil {
		return Limits{}, err
	}
	return l, nil
}

// StorageDir returns the configured storage location, or the backend's
// default under the data directory.
func (c Config) StorageDir() string {
	if c.Storage.RootDir != "" {
		return c.Storage.RootDir
	}
	switch c.Storage.Backend {
	case BackendSQLite:
		return filepath.Join(c.Server.DataDir, "ocistore.db")
	case BackendStarskey:
		return filepath.Join(c.Server.DataDir, "kv")
	default:
		return filepath.Join(c.Server.DataDir, "registry")
	}
}

func parseSize(key, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("invalid %s %q: too large", key, value)
	}
	return int64(n), nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
