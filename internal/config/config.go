// Package config loads and validates application configuration from
// environment variables (prefix LICENSE) with an optional YAML file overlay.
// Environment values take precedence over the file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix namespaces every environment variable, e.g. LICENSE_SERVER_PORT.
const envPrefix = "LICENSE"

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Security SecurityConfig `yaml:"security" envconfig:"SECURITY"`
	Logging  LoggingConfig  `yaml:"logging" envconfig:"LOGGING"`
	Storage  StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	Backup   BackupConfig   `yaml:"backup" envconfig:"BACKUP"`
	Auth     AuthConfig     `yaml:"auth" envconfig:"AUTH"`
}

// ServerConfig contains HTTP server configuration. Scalar defaults are
// applied after the env/file merge (applyDefaults), so a file value is not
// shadowed by an envconfig default the operator never set.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// SecurityConfig contains CORS and rate limiting configuration. The boolean
// toggles default on and are controlled through the environment.
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains API rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// StorageConfig locates the SQLite database file.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path" envconfig:"DATABASE_PATH"`
}

// BackupConfig controls the retention manager and its schedule.
type BackupConfig struct {
	Enabled    bool          `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	Dir        string        `yaml:"dir" envconfig:"DIR"`
	MaxBackups int           `yaml:"max_backups" envconfig:"MAX_BACKUPS"`
	Interval   time.Duration `yaml:"interval" envconfig:"INTERVAL"`
}

// Load reads configuration from the environment, overlaying values from the
// YAML file named by LICENSE_CONFIG_FILE (or ./licensed.yml if present).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	configFile := os.Getenv(envPrefix + "_CONFIG_FILE")
	if configFile == "" {
		configFile = "licensed.yml"
	}
	if _, err := os.Stat(configFile); err == nil {
		fileCfg, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	if err := cfg.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeConfigs fills zero-valued fields of the env config from the file
// config, so explicit environment variables keep precedence.
func mergeConfigs(fileCfg, envCfg Config) Config {
	if envCfg.Server.Port == 0 {
		envCfg.Server.Port = fileCfg.Server.Port
	}
	if envCfg.Server.ReadTimeout == 0 {
		envCfg.Server.ReadTimeout = fileCfg.Server.ReadTimeout
	}
	if envCfg.Server.WriteTimeout == 0 {
		envCfg.Server.WriteTimeout = fileCfg.Server.WriteTimeout
	}
	if envCfg.Server.IdleTimeout == 0 {
		envCfg.Server.IdleTimeout = fileCfg.Server.IdleTimeout
	}
	if envCfg.Server.ShutdownTimeout == 0 {
		envCfg.Server.ShutdownTimeout = fileCfg.Server.ShutdownTimeout
	}
	if len(envCfg.Security.AllowedOrigins) == 0 {
		envCfg.Security.AllowedOrigins = fileCfg.Security.AllowedOrigins
	}
	if envCfg.Security.RateLimit.RPS == 0 {
		envCfg.Security.RateLimit.RPS = fileCfg.Security.RateLimit.RPS
	}
	if envCfg.Security.RateLimit.Burst == 0 {
		envCfg.Security.RateLimit.Burst = fileCfg.Security.RateLimit.Burst
	}
	if envCfg.Logging.Level == "" {
		envCfg.Logging.Level = fileCfg.Logging.Level
	}
	if envCfg.Logging.Output == "" {
		envCfg.Logging.Output = fileCfg.Logging.Output
	}
	if envCfg.Logging.FilePath == "" {
		envCfg.Logging.FilePath = fileCfg.Logging.FilePath
	}
	if envCfg.Storage.DatabasePath == "" {
		envCfg.Storage.DatabasePath = fileCfg.Storage.DatabasePath
	}
	if envCfg.Backup.Dir == "" {
		envCfg.Backup.Dir = fileCfg.Backup.Dir
	}
	if envCfg.Backup.MaxBackups == 0 {
		envCfg.Backup.MaxBackups = fileCfg.Backup.MaxBackups
	}
	if envCfg.Backup.Interval == 0 {
		envCfg.Backup.Interval = fileCfg.Backup.Interval
	}
	if envCfg.Auth.OwnerID == "" {
		envCfg.Auth.OwnerID = fileCfg.Auth.OwnerID
	}
	if len(envCfg.Auth.AdminIDs) == 0 {
		envCfg.Auth.AdminIDs = fileCfg.Auth.AdminIDs
	}
	return envCfg
}

// applyDefaults fills in whatever neither the environment nor the file set.
// Precedence end to end: env > file > default.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}
	if len(c.Security.AllowedOrigins) == 0 {
		c.Security.AllowedOrigins = []string{"http://localhost:8080"}
	}
	if c.Security.RateLimit.RPS == 0 {
		c.Security.RateLimit.RPS = 100
	}
	if c.Security.RateLimit.Burst == 0 {
		c.Security.RateLimit.Burst = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/licensed.log"
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "data/licenses.db"
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = "backup"
	}
	if c.Backup.MaxBackups == 0 {
		c.Backup.MaxBackups = 10
	}
	if c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
}

// validate checks the merged configuration.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database path is required")
	}
	if c.Backup.MaxBackups < 1 {
		return fmt.Errorf("backup retention must keep at least 1 snapshot, got %d", c.Backup.MaxBackups)
	}
	if c.Backup.Interval < time.Minute {
		return fmt.Errorf("backup interval must be at least 1m, got %s", c.Backup.Interval)
	}
	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	return nil
}

// ensureDirectories creates the data, backup, and log directories.
func (c *Config) ensureDirectories() error {
	dirs := []string{
		filepath.Dir(c.Storage.DatabasePath),
		c.Backup.Dir,
	}
	if c.Logging.Output != "console" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
