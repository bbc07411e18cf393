package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// Storage and cache drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Secret backends.
const (
	SecretBackendLocal = "local"
	SecretBackendAWS   = "aws"
	SecretBackendVault = "vault"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Secrets  SecretsConfig
	EPX      EPXConfig
	Gateway  GatewayConfig
	Cron     CronConfig
	Logger   LoggerConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `env:"SERVER_PORT" env-default:"8080"`
	Host            string        `env:"SERVER_HOST" env-default:"0.0.0.0"`
	MetricsPort     int           `env:"METRICS_PORT" env-default:"9090"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"30s"`
	RateLimit       float64       `env:"SERVER_RATE_LIMIT" env-default:"10"`
	RateBurst       int           `env:"SERVER_RATE_BURST" env-default:"20"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" env-default:"localhost"`
	Port     int    `env:"DB_PORT" env-default:"5432"`
	User     string `env:"DB_USER" env-default:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME" env-default:"payment_engine"`
	SSLMode  string `env:"DB_SSL_MODE" env-default:"disable"`
	MaxConns int32  `env:"DB_MAX_CONNS" env-default:"25"`
	MinConns int32  `env:"DB_MIN_CONNS" env-default:"5"`
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// StorageConfig selects the persistence and cache backends.
type StorageConfig struct {
	Driver      string `env:"STORAGE_DRIVER" env-default:"postgres"`
	CacheDriver string `env:"CACHE_DRIVER" env-default:"memory"`
	CacheSize   int    `env:"CACHE_MAX_ENTRIES" env-default:"10000"`
}

// RedisConfig holds the token cache connection.
type RedisConfig struct {
	Addr      string `env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" env-default:"payment-engine:tokens:"`
}

// KafkaConfig holds the payment event publisher settings. No brokers
// disables publishing.
type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC" env-default:"payment-events"`
}

// SecretsConfig selects where gateway credentials are read from.
type SecretsConfig struct {
	Backend        string        `env:"SECRET_BACKEND" env-default:"local"`
	LocalPath      string        `env:"SECRETS_LOCAL_PATH" env-default:"./secrets"`
	AWSRegion      string        `env:"AWS_REGION" env-default:"us-east-1"`
	AWSProfile     string        `env:"AWS_PROFILE"`
	AWSEndpoint    string        `env:"AWS_SECRETS_ENDPOINT"`
	VaultAddress   string        `env:"VAULT_ADDR" env-default:"http://localhost:8200"`
	VaultToken     string        `env:"VAULT_TOKEN"`
	VaultRoleID    string        `env:"VAULT_ROLE_ID"`
	VaultSecretID  string        `env:"VAULT_SECRET_ID"`
	VaultMountPath string        `env:"VAULT_MOUNT_PATH" env-default:"secret"`
	CacheTTL       time.Duration `env:"SECRETS_CACHE_TTL" env-default:"5m"`
}

// EPXConfig overrides the EPX driver defaults. Zero values keep the
// environment's defaults.
type EPXConfig struct {
	CredentialsPath string        `env:"EPX_CREDENTIALS_PATH" env-default:"epx/credentials"`
	BaseURL         string        `env:"EPX_BASE_URL"`
	Timeout         time.Duration `env:"EPX_TIMEOUT"`
	RateLimit       float64       `env:"EPX_RATE_LIMIT"`
	Burst           int           `env:"EPX_BURST"`
}

// GatewayConfig points at the gateway settings document.
type GatewayConfig struct {
	SettingsFile string `env:"GATEWAY_SETTINGS_FILE" env-default:"gateway.yaml"`
}

// CronConfig protects the scheduler-facing endpoints.
type CronConfig struct {
	Secret string `env:"CRON_SECRET"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `env:"LOG_LEVEL" env-default:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" env-default:"false"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks driver names and the fields the selected drivers require.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	switch c.Storage.CacheDriver {
	case DriverMemory, DriverRedis:
	default:
		return fmt.Errorf("unsupported CACHE_DRIVER %q", c.Storage.CacheDriver)
	}

	switch c.Secrets.Backend {
	case SecretBackendLocal, SecretBackendAWS:
	case SecretBackendVault:
		if c.Secrets.VaultToken == "" && c.Secrets.VaultRoleID == "" {
			return fmt.Errorf("VAULT_TOKEN or VAULT_ROLE_ID is required")
		}
	default:
		return fmt.Errorf("unsupported SECRET_BACKEND %q", c.Secrets.Backend)
	}

	return nil
}

// Usage describes the environment variables LoadFromEnv reads.
func Usage() string {
	desc, err := cleanenv.GetDescription(&Config{}, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}

// LoadGatewaySettings reads a YAML settings document from path.
func LoadGatewaySettings(path string) (*domain.GatewaySettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway settings: %w", err)
	}
	return ParseGatewaySettingsYAML(data)
}

// ParseGatewaySettingsYAML decodes a YAML settings document.
func ParseGatewaySettingsYAML(data []byte) (*domain.GatewaySettings, error) {
	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInvalidConfiguration, "failed to parse gateway settings", err)
	}
	return domain.ParseGatewaySettings(raw)
}
