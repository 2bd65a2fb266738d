package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file.
const ConfigFileEnv = "DROPBUCKET_CONFIG"

// Config aggregates runtime configuration for the dropbucket API.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Postgres PostgresConfig `yaml:"postgres"`
	Storage  StorageConfig  `yaml:"storage"`
	MinIO    MinIOConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Expiry   ExpiryConfig   `yaml:"expiry"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the metadata repository implementation.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver string `yaml:"driver"`
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// StorageConfig selects where file content lives.
type StorageConfig struct {
	// Driver is "local" or "minio".
	Driver         string        `yaml:"driver"`
	LocalRoot      string        `yaml:"local_root"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
	PresignTTL     time.Duration `yaml:"presign_ttl"`
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
	Region          string `yaml:"region"`
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AdminAPIKey       string        `yaml:"admin_api_key"`
	AccessTokenSecret string        `yaml:"access_token_secret"`
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl"`
	BcryptCost        int           `yaml:"bcrypt_cost"`
}

// ExpiryConfig controls the background expiry sweep.
type ExpiryConfig struct {
	SweepEnabled  bool          `yaml:"sweep_enabled"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string `yaml:"prometheus_path"`
}

// LogConfig controls log verbosity and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{Driver: "postgres"},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "dropbucket_app",
			Password: "change-me",
			Database: "dropbucket",
			SSLMode:  "disable",
		},
		Storage: StorageConfig{
			Driver:         "local",
			LocalRoot:      "./data/files",
			MaxUploadBytes: 100_000_000,
		},
		MinIO: MinIOConfig{
			Endpoint:        "localhost:9000",
			AccessKeyID:     "dropbucket",
			SecretAccessKey: "change-me-strong-password",
			Bucket:          "dropbucket",
		},
		Auth: AuthConfig{
			AccessTokenSecret: "change-me-to-a-32-byte-secret",
			AccessTokenTTL:    15 * time.Minute,
			BcryptCost:        12,
		},
		Expiry: ExpiryConfig{
			SweepEnabled:  true,
			SweepInterval: 5 * time.Minute,
		},
		Metrics: MetricsConfig{PrometheusPath: "/metrics"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence. An empty path
// falls back to $DROPBUCKET_CONFIG.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getString("DROPBUCKET_API_HOST", cfg.Server.Host)
	cfg.Server.Port = getInt("DROPBUCKET_API_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getDuration("DROPBUCKET_API_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getDuration("DROPBUCKET_API_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getDuration("DROPBUCKET_API_IDLE_TIMEOUT", cfg.Server.IdleTimeout)

	cfg.Database.Driver = strings.ToLower(getString("DROPBUCKET_DB_DRIVER", cfg.Database.Driver))

	cfg.Postgres.Host = getString("POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = getInt("POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = getString("POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = getString("POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Database = getString("POSTGRES_DB", cfg.Postgres.Database)
	cfg.Postgres.SSLMode = strings.ToLower(getString("POSTGRES_SSL_MODE", cfg.Postgres.SSLMode))

	cfg.Storage.Driver = strings.ToLower(getString("DROPBUCKET_STORAGE_DRIVER", cfg.Storage.Driver))
	cfg.Storage.LocalRoot = getString("DROPBUCKET_STORAGE_ROOT", cfg.Storage.LocalRoot)
	cfg.Storage.MaxUploadBytes = int64(getInt("DROPBUCKET_MAX_UPLOAD_BYTES", int(cfg.Storage.MaxUploadBytes)))
	cfg.Storage.PresignTTL = getDuration("DROPBUCKET_PRESIGN_TTL", cfg.Storage.PresignTTL)

	cfg.MinIO.Endpoint = getString("MINIO_ENDPOINT", cfg.MinIO.Endpoint)
	cfg.MinIO.AccessKeyID = getString("MINIO_ROOT_USER", cfg.MinIO.AccessKeyID)
	cfg.MinIO.SecretAccessKey = getString("MINIO_ROOT_PASSWORD", cfg.MinIO.SecretAccessKey)
	cfg.MinIO.Bucket = getString("MINIO_BUCKET", cfg.MinIO.Bucket)
	cfg.MinIO.UseSSL = getBool("MINIO_USE_SSL", cfg.MinIO.UseSSL)
	cfg.MinIO.Region = getString("MINIO_REGION", cfg.MinIO.Region)

	cfg.Auth = loadAuthConfig(cfg.Auth)

	cfg.Expiry.SweepEnabled = getBool("DROPBUCKET_SWEEP_ENABLED", cfg.Expiry.SweepEnabled)
	cfg.Expiry.SweepInterval = getDuration("DROPBUCKET_SWEEP_INTERVAL", cfg.Expiry.SweepInterval)

	cfg.Metrics.PrometheusPath = getString("DROPBUCKET_METRICS_PATH", cfg.Metrics.PrometheusPath)

	cfg.Log.Level = getString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getString("LOG_FORMAT", cfg.Log.Format)
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	switch c.Storage.Driver {
	case "local", "minio":
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Expiry.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", c.Expiry.SweepInterval)
	}
	return nil
}

func getString(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.ToLower(strings.TrimSpace(val))
		switch val {
		case "1", "true", "t", "yes", "y":
			return true
		case "0", "false", "f", "no", "n":
			return false
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func loadAuthConfig(base AuthConfig) AuthConfig {
	cost := getInt("DROPBUCKET_AUTH_BCRYPT_COST", base.BcryptCost)
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AdminAPIKey:       getString("DROPBUCKET_ADMIN_API_KEY", base.AdminAPIKey),
		AccessTokenSecret: getString("DROPBUCKET_JWT_SECRET", base.AccessTokenSecret),
		AccessTokenTTL:    getDuration("DROPBUCKET_AUTH_ACCESS_TOKEN_TTL", base.AccessTokenTTL),
		BcryptCost:        cost,
	}
}
