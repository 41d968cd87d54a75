package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the database configuration
type Config struct {
	// Common fields
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`

	// BigQuery specific
	ProjectID       string `yaml:"project"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`

	// Snowflake specific
	Account            string `yaml:"account"`
	Warehouse          string `yaml:"warehouse"`
	Role               string `yaml:"role"`
	StorageIntegration string `yaml:"storage_integration"`

	// Databricks specific
	Workspace string `yaml:"workspace"`
	HTTPPath  string `yaml:"http_path"`
	Token     string `yaml:"token"`
	Catalog   string `yaml:"catalog"`

	Objects ObjectStoreConfig `yaml:"objects"`
	State   StateConfig       `yaml:"state"`
	Log     LogConfig         `yaml:"log"`
}

// ObjectStoreConfig configures where staged files live
type ObjectStoreConfig struct {
	S3    S3Config    `yaml:"s3"`
	GCS   GCSConfig   `yaml:"gcs"`
	Azure AzureConfig `yaml:"azure"`
}

// S3Config falls back to the default AWS credential chain when keys are empty
type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type GCSConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
}

type AzureConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

// StateConfig selects the run state backend
type StateConfig struct {
	Type      string        `yaml:"type"`
	Dir       string        `yaml:"dir"`
	Namespace string        `yaml:"namespace"`
	LockTTL   time.Duration `yaml:"lock_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with every optional field set
func Default() *Config {
	return &Config{
		SSLMode: "require",
		State: StateConfig{
			Type:      "memory",
			Dir:       ".sqlload",
			Namespace: "default",
			LockTTL:   time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML configuration file on top of the defaults. ${VAR}
// references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the fields required by the selected backend are set
func (c *Config) Validate() error {
	switch c.Type {
	case "":
		return fmt.Errorf("database type is required")
	case "postgres", "mssql":
		if c.Host == "" || c.Port == 0 || c.User == "" || c.Password == "" || c.Database == "" {
			return fmt.Errorf("host, port, user, password, and database name are required for %s", c.Type)
		}
	case "bigquery":
		if c.ProjectID == "" {
			return fmt.Errorf("project ID is required for BigQuery")
		}
	case "snowflake":
		if c.Account == "" || c.Warehouse == "" || c.Role == "" || c.User == "" || c.Password == "" {
			return fmt.Errorf("account, warehouse, role, user, and password are required for Snowflake")
		}
	case "databricks":
		if c.Workspace == "" || c.HTTPPath == "" || c.Token == "" || c.Catalog == "" {
			return fmt.Errorf("workspace, HTTP path, access token, and catalog are required for Databricks")
		}
	case "duckdb", "sqlite":
		if c.Database == "" {
			return fmt.Errorf("database file path is required for %s", c.Type)
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}

	switch c.State.Type {
	case "memory", "kubernetes":
	case "file":
		if c.State.Dir == "" {
			return fmt.Errorf("state directory is required for the file state backend")
		}
	default:
		return fmt.Errorf("unsupported state type: %s", c.State.Type)
	}
	if c.State.LockTTL <= 0 {
		return fmt.Errorf("state lock TTL must be positive")
	}
	return nil
}

// NewLogger builds the process logger from the log settings
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", l.Format)
	}
}
