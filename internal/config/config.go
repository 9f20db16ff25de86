// Package config loads server and client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"coinfolio/internal/logger"
)

// Server holds API server configuration.
type Server struct {
	Env  string
	Port string `validate:"required,numeric"`

	// Database
	DBDriver   string `validate:"oneof=postgres sqlite"`
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	MigrationsPath string `validate:"required"`

	// JWT
	JWTSecret        string        `validate:"required,min=16"`
	JWTExpirationDur time.Duration `validate:"gt=0"`

	// Market data
	CoinGeckoURL        string `validate:"required,url"`
	PriceRefreshSpec    string `validate:"required"`
	PriceRequestsPerSec float64

	// Withdrawals
	WithdrawalFlatFee decimal.Decimal
	WithdrawalFeeRate decimal.Decimal

	// Update fan-out; empty keeps updates in-process.
	RedisURL string

	LoginRatePerMinute int `validate:"gt=0"`

	// Seeded admin account; both empty skips seeding.
	AdminEmail    string `validate:"omitempty,email"`
	AdminPassword string `validate:"omitempty,min=8"`

	// Optional X-API-Key guarding /metrics.
	MetricsAPIKey string
}

// Client holds sync client configuration.
type Client struct {
	Env          string
	APIURL       string `validate:"required,url"`
	Email        string
	Password     string
	Token        string
	StatePath    string        `validate:"required"`
	PollInterval time.Duration `validate:"gt=0"`
	CacheTTL     time.Duration `validate:"gt=0"`
	FetchTimeout time.Duration `validate:"gt=0"`
	PriceTimeout time.Duration `validate:"gt=0"`
	MetricsAddr  string
}

var validate = validator.New()

// LoadServer loads the API server configuration.
func LoadServer() (*Server, error) {
	loadDotEnv()

	cfg := &Server{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "coinfolio"),
		DBPassword: getEnv("DB_PASSWORD", "coinfolio"),
		DBName:     getEnv("DB_NAME", "coinfolio"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "coinfolio.db"),

		MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		CoinGeckoURL:     getEnv("COINGECKO_URL", "https://api.coingecko.com/api/v3"),
		PriceRefreshSpec: getEnv("PRICE_REFRESH_SPEC", "@every 1m"),

		RedisURL: os.Getenv("REDIS_URL"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		MetricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}

	var err error
	if cfg.JWTExpirationDur, err = getDuration("JWT_EXPIRES_IN", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.PriceRequestsPerSec, err = getFloat("PRICE_REQUESTS_PER_SEC", 0.5); err != nil {
		return nil, err
	}
	if cfg.WithdrawalFlatFee, err = getDecimal("WITHDRAWAL_FLAT_FEE", "2"); err != nil {
		return nil, err
	}
	if cfg.WithdrawalFeeRate, err = getDecimal("WITHDRAWAL_FEE_RATE", "0.01"); err != nil {
		return nil, err
	}
	if cfg.LoginRatePerMinute, err = getInt("LOGIN_RATE_PER_MINUTE", 20); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid server configuration: %w", err)
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, fmt.Errorf("invalid server configuration: ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return cfg, nil
}

// PostgresURL returns the golang-migrate connection URL.
func (c *Server) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// PostgresDSN returns the gorm/pgx connection string.
func (c *Server) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// LoadClient loads the sync client configuration.
func LoadClient() (*Client, error) {
	loadDotEnv()

	cfg := &Client{
		Env:         getEnv("ENV", "development"),
		APIURL:      strings.TrimRight(getEnv("COINFOLIO_API_URL", "http://localhost:8080"), "/"),
		Email:       os.Getenv("COINFOLIO_EMAIL"),
		Password:    os.Getenv("COINFOLIO_PASSWORD"),
		Token:       os.Getenv("COINFOLIO_TOKEN"),
		StatePath:   getEnv("COINFOLIO_STATE", "coinfolio-client.db"),
		MetricsAddr: os.Getenv("COINFOLIO_METRICS_ADDR"),
	}

	var err error
	if cfg.PollInterval, err = getDuration("POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("BALANCE_CACHE_TTL", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("FETCH_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.PriceTimeout, err = getDuration("PRICE_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Get().Debug(".env file not found, using process environment")
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return n, nil
}

func getFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return f, nil
}

func getDecimal(key, def string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, def))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
