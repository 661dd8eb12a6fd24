package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultPath  = "trelog.db"
	defaultDelay = 2500 * time.Millisecond
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Tailscale  TailscaleConfig  `yaml:"tailscale"`
	AutoBackup AutoBackupConfig `yaml:"autobackup"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig selects the key-value store. Path is used by sqlite, the
// remaining fields by postgres.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// AuthConfig holds the optional API key. An empty key leaves the API open.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

type AutoBackupConfig struct {
	Delay time.Duration `yaml:"delay"`
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

// Target returns what the storage driver opens: a file path for sqlite, a DSN
// for postgres.
func (d DatabaseConfig) Target() string {
	if d.Driver == DriverPostgres {
		return d.DSN()
	}
	return d.Path
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix TRELOG_ and underscore-separated paths:
//
//	TRELOG_SERVER_HOST, TRELOG_SERVER_PORT,
//	TRELOG_DB_DRIVER, TRELOG_DB_PATH,
//	TRELOG_DB_HOST, TRELOG_DB_PORT, TRELOG_DB_NAME,
//	TRELOG_DB_USER, TRELOG_DB_PASSWORD, TRELOG_DB_SSLMODE,
//	TRELOG_AUTH_API_KEY,
//	TRELOG_TAILSCALE_ENABLED, TRELOG_TAILSCALE_HOSTNAME, TRELOG_TAILSCALE_STATE_DIR,
//	TRELOG_AUTOBACKUP_DELAY
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRELOG_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("TRELOG_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRELOG_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("TRELOG_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRELOG_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("TRELOG_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("TRELOG_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("TRELOG_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("TRELOG_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("TRELOG_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("TRELOG_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("TRELOG_TAILSCALE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = enabled
		}
	}
	if v := os.Getenv("TRELOG_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("TRELOG_TAILSCALE_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
	if v := os.Getenv("TRELOG_AUTOBACKUP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.AutoBackup.Delay = d
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Driver == DriverSQLite && c.Database.Path == "" {
		c.Database.Path = defaultPath
	}
	if c.AutoBackup.Delay == 0 {
		c.AutoBackup.Delay = defaultDelay
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = "trelog"
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 && !c.Tailscale.Enabled {
		return fmt.Errorf("server.port is required")
	}
	if c.AutoBackup.Delay < 0 {
		return fmt.Errorf("autobackup.delay must not be negative")
	}
	switch c.Database.Driver {
	case DriverSQLite:
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("database.driver %q is not one of sqlite, postgres", c.Database.Driver)
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	return nil
}
