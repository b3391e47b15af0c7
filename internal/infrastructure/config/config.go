package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultAccessTokenLifetime is one hour
	DefaultAccessTokenLifetime = 3600 * time.Second
	// DefaultRefreshTokenLifetime is ten hours
	DefaultRefreshTokenLifetime = 36000 * time.Second
	// DefaultAuthorizationCodeLifetime is six minutes
	DefaultAuthorizationCodeLifetime = 360 * time.Second
	// DefaultTokenBytes is the random byte length of issued token values
	DefaultTokenBytes = 32
)

// OAuth2Config holds the token and storage policy of the authorization core
type OAuth2Config struct {
	AccessTokenLifetime       time.Duration
	RefreshTokenLifetime      time.Duration
	AuthorizationCodeLifetime time.Duration

	// Storage names the storage family. Empty means auto-detect.
	Storage string

	// Per-port storage family overrides. Empty means use the family.
	AccessTokenStorage       string
	RefreshTokenStorage      string
	AuthorizationCodeStorage string
	ClientStorage            string

	// RefreshTokenRotation invalidates a refresh token when it is used
	RefreshTokenRotation bool

	TokenBytes int
}

// RedisConfig holds the Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
}

// Config holds the application configuration
type Config struct {
	// Database configuration
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string

	Redis RedisConfig

	SQLitePath string

	OAuth2 OAuth2Config

	// Session configuration
	SessionDuration time.Duration
	// SessionKeyPath holds the PEM session signing key. Empty means a key per process.
	SessionKeyPath string
	// AdminUsers lists the resource owners allowed to manage clients
	AdminUsers []string
	// ResourceOwners is a comma separated list of username:bcrypt-hash pairs
	ResourceOwners string

	// Telemetry configuration
	TelemetryEnabled bool
	ServiceName      string
	ServiceVersion   string

	// Server configuration
	ServerPort int
	LogLevel   string
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	return &Config{
		DBPort: 5432,

		Redis: RedisConfig{
			PoolSize: 10,
		},

		OAuth2: OAuth2Config{
			AccessTokenLifetime:       DefaultAccessTokenLifetime,
			RefreshTokenLifetime:      DefaultRefreshTokenLifetime,
			AuthorizationCodeLifetime: DefaultAuthorizationCodeLifetime,
			TokenBytes:                DefaultTokenBytes,
		},

		SessionDuration: time.Hour,

		TelemetryEnabled: true,
		ServiceName:      "oauth2-provider",

		ServerPort: 8080,
		LogLevel:   "info",
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env from project root
	_ = godotenv.Load()

	cfg := NewConfig()
	var err error

	cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	cfg.DBHost = getEnv("DB_HOST", "")
	if cfg.DBPort, err = getEnvInt("DB_PORT", cfg.DBPort); err != nil {
		return nil, err
	}
	cfg.DBUser = getEnv("DB_USER", "owner")
	cfg.DBPassword = getEnv("DB_PASSWORD", "")
	cfg.DBName = getEnv("DB_NAME", "oauth2")

	cfg.Redis.Address = getEnv("REDIS_ADDRESS", "")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.PoolSize, err = getEnvInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return nil, err
	}

	cfg.SQLitePath = getEnv("SQLITE_PATH", "")

	if cfg.OAuth2.AccessTokenLifetime, err = getEnvSeconds("OAUTH2_ACCESS_TOKEN_LIFETIME", cfg.OAuth2.AccessTokenLifetime); err != nil {
		return nil, err
	}
	if cfg.OAuth2.RefreshTokenLifetime, err = getEnvSeconds("OAUTH2_REFRESH_TOKEN_LIFETIME", cfg.OAuth2.RefreshTokenLifetime); err != nil {
		return nil, err
	}
	if cfg.OAuth2.AuthorizationCodeLifetime, err = getEnvSeconds("OAUTH2_AUTHORIZATION_CODE_LIFETIME", cfg.OAuth2.AuthorizationCodeLifetime); err != nil {
		return nil, err
	}
	cfg.OAuth2.Storage = getEnv("OAUTH2_STORAGE", "")
	cfg.OAuth2.AccessTokenStorage = getEnv("OAUTH2_ACCESS_TOKEN_STORAGE", "")
	cfg.OAuth2.RefreshTokenStorage = getEnv("OAUTH2_REFRESH_TOKEN_STORAGE", "")
	cfg.OAuth2.AuthorizationCodeStorage = getEnv("OAUTH2_AUTHORIZATION_CODE_STORAGE", "")
	cfg.OAuth2.ClientStorage = getEnv("OAUTH2_CLIENT_STORAGE", "")
	if cfg.OAuth2.RefreshTokenRotation, err = getEnvBool("OAUTH2_REFRESH_TOKEN_ROTATION", false); err != nil {
		return nil, err
	}
	if cfg.OAuth2.TokenBytes, err = getEnvInt("OAUTH2_TOKEN_BYTES", cfg.OAuth2.TokenBytes); err != nil {
		return nil, err
	}

	if cfg.SessionDuration, err = getEnvDuration("SESSION_DURATION", cfg.SessionDuration); err != nil {
		return nil, err
	}
	cfg.SessionKeyPath = getEnv("SESSION_KEY_PATH", "")
	cfg.AdminUsers = getEnvList("OAUTH2_ADMIN_USERS")
	cfg.ResourceOwners = getEnv("OAUTH2_RESOURCE_OWNERS", "")

	if cfg.TelemetryEnabled, err = getEnvBool("OTEL_ENABLED", cfg.TelemetryEnabled); err != nil {
		return nil, err
	}
	cfg.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.ServiceName)
	cfg.ServiceVersion = getEnv("SERVICE_VERSION", "")

	if cfg.ServerPort, err = getEnvInt("PORT", cfg.ServerPort); err != nil {
		return nil, err
	}
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the values that cannot be caught while parsing
func (c *Config) Validate() error {
	if c.OAuth2.AccessTokenLifetime <= 0 {
		return fmt.Errorf("access token lifetime must be positive")
	}
	if c.OAuth2.RefreshTokenLifetime <= 0 {
		return fmt.Errorf("refresh token lifetime must be positive")
	}
	if c.OAuth2.AuthorizationCodeLifetime <= 0 {
		return fmt.Errorf("authorization code lifetime must be positive")
	}
	if c.OAuth2.TokenBytes < 16 {
		return fmt.Errorf("token byte length must be at least 16, got %d", c.OAuth2.TokenBytes)
	}
	return nil
}

// PostgresDSN returns the connection string for the configured database
func (c *Config) PostgresDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	host := c.DBHost
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, host, c.DBPort, c.DBName)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt gets an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return intValue, nil
}

// getEnvSeconds reads a lifetime expressed in whole seconds
func getEnvSeconds(key string, defaultValue time.Duration) (time.Duration, error) {
	seconds, err := getEnvInt(key, int(defaultValue/time.Second))
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getEnvList reads a comma separated list, dropping empty entries
func getEnvList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
