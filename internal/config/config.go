// Package config loads service configuration from struct defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Artifact drivers.
const (
	ArtifactFS     = "fs"
	ArtifactBadger = "badger"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Storage   StorageConfig   `koanf:"storage"`
	Artifact  ArtifactConfig  `koanf:"artifact"`
	Admission AdmissionConfig `koanf:"admission"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	// RegisterRateLimit is the number of register requests allowed per IP per minute. 0 disables it.
	RegisterRateLimit int `koanf:"register_rate_limit"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	User            string        `koanf:"user"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name"`
	SSLMode         string        `koanf:"sslmode"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `koanf:"max_conn_idle_time"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// DSN builds a libpq-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// StorageConfig selects the registration record store.
type StorageConfig struct {
	Driver     string `koanf:"driver"`
	SQLitePath string `koanf:"sqlite_path"`
}

// ArtifactConfig configures identity document storage.
type ArtifactConfig struct {
	Driver        string   `koanf:"driver"`
	Root          string   `koanf:"root"`
	PublicBaseURL string   `koanf:"public_base_url"`
	MaxBytes      int64    `koanf:"max_bytes"`
	AllowedTypes  []string `koanf:"allowed_types"`
	// Breaker trips after this many consecutive backend failures.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type AdmissionConfig struct {
	StepTimeout time.Duration `koanf:"step_timeout"`
	MinAge      int           `koanf:"min_age"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			RegisterRateLimit: 30,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Name:            "volunteers",
			SSLMode:         "disable",
			MaxConns:        20,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			ConnectAttempts: 5,
		},
		Storage: StorageConfig{
			Driver:     DriverPostgres,
			SQLitePath: "data/volunteers.db",
		},
		Artifact: ArtifactConfig{
			Driver:          ArtifactFS,
			Root:            "data/id-cards",
			PublicBaseURL:   "http://localhost:8080/id-cards",
			MaxBytes:        5 << 20,
			AllowedTypes:    []string{"image/jpeg", "image/png", "application/pdf"},
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Admission: AdmissionConfig{
			StepTimeout: 5 * time.Second,
			MinAge:      17,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then config file, then environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps environment variable names (lower-cased) to config keys.
var envMappings = map[string]string{
	"port":                "server.port",
	"cors_origins":        "server.cors_origins",
	"register_rate_limit": "server.register_rate_limit",

	"db_host":     "database.host",
	"db_port":     "database.port",
	"db_user":     "database.user",
	"db_password": "database.password",
	"db_name":     "database.name",
	"db_sslmode":  "database.sslmode",

	"storage_driver": "storage.driver",
	"sqlite_path":    "storage.sqlite_path",

	"artifact_driver":          "artifact.driver",
	"artifact_root":            "artifact.root",
	"artifact_public_base_url": "artifact.public_base_url",
	"artifact_max_bytes":       "artifact.max_bytes",
	"artifact_allowed_types":   "artifact.allowed_types",

	"admission_step_timeout": "admission.step_timeout",
	"admission_min_age":      "admission.min_age",

	"log_level":  "logging.level",
	"log_format": "logging.format",
}

// envTransformFunc returns "" for variables the service does not use so koanf skips them.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

var sliceConfigPaths = []string{"server.cors_origins", "artifact.allowed_types"}

// splitSliceFields turns comma-separated env values into string slices.
func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	switch c.Artifact.Driver {
	case ArtifactFS, ArtifactBadger:
	default:
		errs = append(errs, fmt.Errorf("unknown artifact.driver %q", c.Artifact.Driver))
	}
	if strings.TrimSpace(c.Artifact.Root) == "" {
		errs = append(errs, errors.New("artifact.root is required"))
	}
	if _, err := url.Parse(c.Artifact.PublicBaseURL); err != nil {
		errs = append(errs, fmt.Errorf("artifact.public_base_url: %w", err))
	}
	if c.Artifact.MaxBytes <= 0 {
		errs = append(errs, errors.New("artifact.max_bytes must be positive"))
	}
	if c.Admission.StepTimeout <= 0 {
		errs = append(errs, errors.New("admission.step_timeout must be positive"))
	}
	if c.Admission.MinAge < 17 {
		errs = append(errs, fmt.Errorf("admission.min_age %d is below the legal minimum of 17", c.Admission.MinAge))
	}
	return errors.Join(errs...)
}
