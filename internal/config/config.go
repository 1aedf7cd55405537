package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultDSN = "host=localhost user=postgres password=postgres dbname=ledger port=5432 sslmode=disable"

type Config struct {
	HTTPPort       string
	DatabaseDriver string // postgres / sqlite
	DatabaseDSN    string
	JWTSecret      string
	TokenTTL       time.Duration
	CORSOrigins    string
	LogLevel       string
	LogFormat      string // json / console

	// LockTimeout bounds how long posting waits on an account row lock.
	LockTimeout time.Duration
	// BalanceTolerance is the allowed gap in the balance sheet equation.
	BalanceTolerance decimal.Decimal

	ChartFile string // optional YAML chart of accounts for seeding
}

// Load reads an optional .env file and then the process environment.
// An explicit envPath must exist; the default ./.env is optional.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		HTTPPort:       getEnv("HTTP_PORT", "8080"),
		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseDSN:    getEnv("DATABASE_DSN", defaultDSN),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		CORSOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		ChartFile:      getEnv("CHART_FILE", ""),
	}

	var errs []error

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "24h"))
	if err != nil {
		errs = append(errs, fmt.Errorf("TOKEN_TTL: %w", err))
	}
	cfg.TokenTTL = ttl

	lockTimeout, err := time.ParseDuration(getEnv("LOCK_TIMEOUT", "5s"))
	if err != nil {
		errs = append(errs, fmt.Errorf("LOCK_TIMEOUT: %w", err))
	}
	cfg.LockTimeout = lockTimeout

	tolerance, err := decimal.NewFromString(getEnv("BALANCE_TOLERANCE", "0.01"))
	if err != nil {
		errs = append(errs, fmt.Errorf("BALANCE_TOLERANCE: %w", err))
	}
	cfg.BalanceTolerance = tolerance

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate reports every setting the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite" {
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if c.BalanceTolerance.IsNegative() {
		errs = append(errs, errors.New("BALANCE_TOLERANCE cannot be negative"))
	}
	return errors.Join(errs...)
}

// Warnings lists defaults that are fine locally but not in production.
func (c *Config) Warnings() []string {
	var w []string
	if c.DatabaseDriver == "postgres" && c.DatabaseDSN == defaultDSN {
		w = append(w, "DATABASE_DSN uses the default value, set your own Postgres connection for production")
	}
	if c.CORSOrigins == "http://localhost:5173" {
		w = append(w, "CORS_ALLOWED_ORIGINS uses the default value, set your own domain for production")
	}
	return w
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
