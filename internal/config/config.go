package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	NodeEnv  string
	LogLevel string
	Database DatabaseConfig
	Auth     AuthConfig
	Uploads  UploadConfig
	Redis    RedisConfig
	Server   ServerConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool // runs schema migration at startup
}

// AuthConfig holds the credential service settings
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
	Issuer     string
}

// UploadConfig holds photo intake limits
type UploadConfig struct {
	Dir      string
	MaxBytes int64
	MaxFiles int
}

// RedisConfig holds the optional token revocation backend
type RedisConfig struct {
	URL string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port      string
	PublicURL string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	ttl, err := ParseExpiry(getEnv("JWT_EXPIRE", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_EXPIRE: %w", err)
	}

	cost, err := strconv.Atoi(getEnv("BCRYPT_COST", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	maxBytes, err := strconv.ParseInt(getEnv("UPLOAD_MAX_BYTES", "5242880"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_BYTES: %w", err)
	}

	maxFiles, err := strconv.Atoi(getEnv("UPLOAD_MAX_FILES", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid UPLOAD_MAX_FILES: %w", err)
	}

	port := getEnv("PORT", "5000")

	return &Config{
		NodeEnv:  getEnv("NODE_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "commissariat"),
			Alter:    getEnv("DB_ALTER", "true") == "true",
		},
		Auth: AuthConfig{
			JWTSecret:  jwtSecret,
			TokenTTL:   ttl,
			BcryptCost: cost,
			Issuer:     getEnv("JWT_ISSUER", "commissariat"),
		},
		Uploads: UploadConfig{
			Dir:      getEnv("UPLOAD_DIR", "./uploads"),
			MaxBytes: maxBytes,
			MaxFiles: maxFiles,
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Server: ServerConfig{
			Port:      port,
			PublicURL: strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:"+port), "/"),
		},
	}, nil
}

// ParseExpiry accepts Go durations ("12h") and day counts ("30d")
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, err
		}
		if days <= 0 {
			return 0, fmt.Errorf("expiry must be positive")
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive")
	}
	return d, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
