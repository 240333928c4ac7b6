// Package config loads server settings from built-in defaults, an optional
// YAML file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the YAML file to load when no path is given.
const EnvConfigFile = "CONFIG_FILE"

type Config struct {
	ServerPort string `yaml:"server_port"`

	DBDriver   string        `yaml:"db_driver"`
	DBHost     string        `yaml:"db_host"`
	DBPort     string        `yaml:"db_port"`
	DBUser     string        `yaml:"db_user"`
	DBPassword string        `yaml:"db_password"`
	DBName     string        `yaml:"db_name"`
	DBSSLMode  string        `yaml:"db_sslmode"`
	SQLitePath string        `yaml:"sqlite_path"`
	DBTimeout  time.Duration `yaml:"db_timeout"`

	// OperationTimeout bounds one engine operation including retries.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	NotifyQueueSize int    `yaml:"notify_queue_size"`
	NotifyWorkers   int    `yaml:"notify_workers"`
	WebhookURL      string `yaml:"webhook_url"`
}

func Default() *Config {
	return &Config{
		ServerPort:       "8080",
		DBDriver:         "postgres",
		DBHost:           "localhost",
		DBPort:           "5432",
		DBUser:           "postgres",
		DBPassword:       "password",
		DBName:           "shared_transactions",
		DBSSLMode:        "disable",
		SQLitePath:       "./data/shares.db",
		DBTimeout:        5 * time.Second,
		OperationTimeout: 10 * time.Second,
		TokenTTL:         24 * time.Hour,
		LogLevel:         "info",
		LogFormat:        "text",
		NotifyQueueSize:  256,
		NotifyWorkers:    2,
	}
}

// Load reads path (or $CONFIG_FILE when path is empty) over the defaults and
// then applies environment overrides. A missing file is an error only when a
// path was given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	strs := map[string]*string{
		"SERVER_PORT": &c.ServerPort,
		"DB_DRIVER":   &c.DBDriver,
		"DB_HOST":     &c.DBHost,
		"DB_PORT":     &c.DBPort,
		"DB_USER":     &c.DBUser,
		"DB_PASSWORD": &c.DBPassword,
		"DB_NAME":     &c.DBName,
		"DB_SSLMODE":  &c.DBSSLMode,
		"SQLITE_PATH": &c.SQLitePath,
		"JWT_SECRET":  &c.JWTSecret,
		"LOG_LEVEL":   &c.LogLevel,
		"LOG_FORMAT":  &c.LogFormat,
		"WEBHOOK_URL": &c.WebhookURL,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"DB_TIMEOUT":        &c.DBTimeout,
		"OPERATION_TIMEOUT": &c.OperationTimeout,
		"TOKEN_TTL":         &c.TokenTTL,
	}
	for key, dst := range durations {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
	}

	ints := map[string]*int{
		"NOTIFY_QUEUE_SIZE": &c.NotifyQueueSize,
		"NOTIFY_WORKERS":    &c.NotifyWorkers,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
	}
	return nil
}

// GetDBConnectionString is the lib/pq DSN.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// DSN returns the data source for the configured driver.
func (c *Config) DSN() string {
	if c.IsSQLite() {
		return c.SQLitePath
	}
	return c.GetDBConnectionString()
}

func (c *Config) IsSQLite() bool {
	switch strings.ToLower(c.DBDriver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.DBDriver) {
	case "postgres", "postgresql", "pq":
		if c.DBHost == "" || c.DBName == "" {
			problems = append(problems, "db_host and db_name are required for postgres")
		}
	case "sqlite", "sqlite3":
		if c.SQLitePath == "" {
			problems = append(problems, "sqlite_path is required for sqlite")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported db_driver %q", c.DBDriver))
	}

	if port, err := strconv.Atoi(c.ServerPort); err != nil || port < 0 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid server_port %q", c.ServerPort))
	}
	if c.TokenTTL <= 0 {
		problems = append(problems, "token_ttl must be positive")
	}
	if c.NotifyQueueSize <= 0 || c.NotifyWorkers <= 0 {
		problems = append(problems, "notify_queue_size and notify_workers must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unsupported log_format %q", c.LogFormat))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ValidateForServe additionally requires a signing secret.
func (c *Config) ValidateForServe() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("invalid configuration: jwt_secret must be at least 16 characters")
	}
	return nil
}
