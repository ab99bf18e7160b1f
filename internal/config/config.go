package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/claude/healthtrack/internal/models"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Tailscale   TailscaleConfig   `yaml:"tailscale"`
	Auth        AuthConfig        `yaml:"auth"`
	Log         LogConfig         `yaml:"log"`
	State       StateConfig       `yaml:"state"`
	Health      HealthConfig      `yaml:"health"`
	Destination DestinationConfig `yaml:"destination"`
	Sync        SyncConfig        `yaml:"sync"`

	// Seed is written to the config store at startup when none is saved.
	Seed *models.SyncConfig `yaml:"seed"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type StateConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	Dir      string         `yaml:"dir"`
	Database DatabaseConfig `yaml:"database"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// HealthConfig locates the Health Auto Export TCP server.
type HealthConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

type DestinationConfig struct {
	Type    string `yaml:"type"` // s3 or http
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

// SyncConfig tunes background execution. The upload target and interval
// live in the state store, not here.
type SyncConfig struct {
	Budget      time.Duration `yaml:"budget"`
	ExpiryLead  time.Duration `yaml:"expiry_lead"`
	ExpiryGrace time.Duration `yaml:"expiry_grace"`
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// NewLogger builds the process logger.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(l.Level)}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads config from a YAML file, then applies defaults and environment
// variable overrides. Env vars use the prefix HEALTHTRACK_:
//
//	HEALTHTRACK_SERVER_HOST, HEALTHTRACK_SERVER_PORT, HEALTHTRACK_AUTH_API_KEY,
//	HEALTHTRACK_LOG_LEVEL, HEALTHTRACK_STATE_DRIVER, HEALTHTRACK_STATE_DIR,
//	HEALTHTRACK_DB_HOST, HEALTHTRACK_DB_PORT, HEALTHTRACK_DB_NAME,
//	HEALTHTRACK_DB_USER, HEALTHTRACK_DB_PASSWORD, HEALTHTRACK_DB_SSLMODE,
//	HEALTHTRACK_HAE_HOST, HEALTHTRACK_HAE_PORT,
//	HEALTHTRACK_DESTINATION_TYPE, HEALTHTRACK_DESTINATION_BASE_URL,
//	HEALTHTRACK_DESTINATION_API_KEY,
//	HEALTHTRACK_SEED_ACCESS_KEY_ID, HEALTHTRACK_SEED_SECRET_ACCESS_KEY
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Tailscale.Hostname == "" {
		cfg.Tailscale.Hostname = "healthtrack"
	}
	if cfg.State.Driver == "" {
		cfg.State.Driver = "sqlite"
	}
	if cfg.State.Dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.State.Dir = home + string(os.PathSeparator) + ".healthtrack"
		}
	}
	if cfg.Health.Host == "" {
		cfg.Health.Host = "127.0.0.1"
	}
	if cfg.Health.Port == 0 {
		cfg.Health.Port = 9000
	}
	if cfg.Health.Timeout == 0 {
		cfg.Health.Timeout = 30 * time.Second
	}
	if cfg.Destination.Type == "" {
		cfg.Destination.Type = "s3"
	}
	if cfg.Sync.Budget == 0 {
		cfg.Sync.Budget = 30 * time.Second
	}
	if cfg.Sync.ExpiryLead == 0 {
		cfg.Sync.ExpiryLead = 5 * time.Second
	}
	if cfg.Sync.ExpiryGrace == 0 {
		cfg.Sync.ExpiryGrace = 5 * time.Second
	}
}

func applyEnvOverrides(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	setString("HEALTHTRACK_SERVER_HOST", &cfg.Server.Host)
	setInt("HEALTHTRACK_SERVER_PORT", &cfg.Server.Port)
	setString("HEALTHTRACK_AUTH_API_KEY", &cfg.Auth.APIKey)
	setString("HEALTHTRACK_LOG_LEVEL", &cfg.Log.Level)
	setString("HEALTHTRACK_STATE_DRIVER", &cfg.State.Driver)
	setString("HEALTHTRACK_STATE_DIR", &cfg.State.Dir)
	setString("HEALTHTRACK_DB_HOST", &cfg.State.Database.Host)
	setInt("HEALTHTRACK_DB_PORT", &cfg.State.Database.Port)
	setString("HEALTHTRACK_DB_NAME", &cfg.State.Database.Name)
	setString("HEALTHTRACK_DB_USER", &cfg.State.Database.User)
	setString("HEALTHTRACK_DB_PASSWORD", &cfg.State.Database.Password)
	setString("HEALTHTRACK_DB_SSLMODE", &cfg.State.Database.SSLMode)
	setString("HEALTHTRACK_HAE_HOST", &cfg.Health.Host)
	setInt("HEALTHTRACK_HAE_PORT", &cfg.Health.Port)
	setString("HEALTHTRACK_DESTINATION_TYPE", &cfg.Destination.Type)
	setString("HEALTHTRACK_DESTINATION_BASE_URL", &cfg.Destination.BaseURL)
	setString("HEALTHTRACK_DESTINATION_API_KEY", &cfg.Destination.APIKey)

	if cfg.Seed != nil {
		setString("HEALTHTRACK_SEED_ACCESS_KEY_ID", &cfg.Seed.AccessKeyID)
		setString("HEALTHTRACK_SEED_SECRET_ACCESS_KEY", &cfg.Seed.SecretAccessKey)
	}
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}

	switch c.State.Driver {
	case "sqlite":
		if c.State.Dir == "" {
			return fmt.Errorf("state.dir is required for the sqlite driver")
		}
	case "postgres":
		if c.State.Database.Host == "" {
			return fmt.Errorf("state.database.host is required")
		}
		if c.State.Database.Port == 0 {
			return fmt.Errorf("state.database.port is required")
		}
		if c.State.Database.Name == "" {
			return fmt.Errorf("state.database.name is required")
		}
		if c.State.Database.User == "" {
			return fmt.Errorf("state.database.user is required")
		}
	default:
		return fmt.Errorf("state.driver must be sqlite or postgres, got %q", c.State.Driver)
	}

	switch c.Destination.Type {
	case "s3":
	case "http":
		if c.Destination.BaseURL == "" {
			return fmt.Errorf("destination.base_url is required for the http destination")
		}
	default:
		return fmt.Errorf("destination.type must be s3 or http, got %q", c.Destination.Type)
	}

	if c.Sync.ExpiryLead >= c.Sync.Budget {
		return fmt.Errorf("sync.expiry_lead (%s) must be shorter than sync.budget (%s)", c.Sync.ExpiryLead, c.Sync.Budget)
	}

	if c.Seed != nil {
		if err := c.Seed.Validate(); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}
	return nil
}

// StateDSN returns the Postgres DSN, or "" for sqlite.
func (c *Config) StateDSN() string {
	if c.State.Driver != "postgres" {
		return ""
	}
	return c.State.Database.DSN()
}
