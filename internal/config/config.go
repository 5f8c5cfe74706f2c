package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values
type Config struct {
	Server          ServerConfig
	Database        DatabaseConfig
	Redis           RedisConfig
	JWT             JWTConfig
	PaymentProvider PaymentProviderConfig
	Monitor         MonitorConfig
	Funding         FundingConfig
	Reconcile       ReconcileConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds the shared secret used to verify identity provider tokens
type JWTConfig struct {
	Secret string
}

// PaymentProviderConfig holds the external wallet/payment API settings
type PaymentProviderConfig struct {
	BaseURL         string
	ClientID        string
	Timeout         time.Duration
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// MonitorConfig holds transaction monitor settings
type MonitorConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
}

// FundingConfig holds passive funding re-check settings
type FundingConfig struct {
	InitialDelay  time.Duration
	RetryInterval time.Duration
	MaxChecks     int
}

// ReconcileConfig holds the stale monitoring sweep settings
type ReconcileConfig struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	AbandonAfter time.Duration
	BatchSize    int
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "stablepay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-in-production"),
		},
		PaymentProvider: PaymentProviderConfig{
			BaseURL:         getEnv("PAYMENT_API_URL", "https://api.payments.example.com/v1"),
			ClientID:        getEnv("PAYMENT_API_CLIENT_ID", ""),
			Timeout:         getEnvAsDuration("PAYMENT_API_TIMEOUT", 15*time.Second),
			BreakerFailures: getEnvAsInt("PAYMENT_API_BREAKER_FAILURES", 5),
			BreakerTimeout:  getEnvAsDuration("PAYMENT_API_BREAKER_TIMEOUT", 30*time.Second),
		},
		Monitor: MonitorConfig{
			PollInterval: getEnvAsDuration("MONITOR_POLL_INTERVAL", 10*time.Second),
			MaxAttempts:  getEnvAsInt("MONITOR_MAX_ATTEMPTS", 30),
		},
		Funding: FundingConfig{
			InitialDelay:  getEnvAsDuration("FUNDING_INITIAL_DELAY", 10*time.Second),
			RetryInterval: getEnvAsDuration("FUNDING_RETRY_INTERVAL", 5*time.Second),
			MaxChecks:     getEnvAsInt("FUNDING_MAX_CHECKS", 60),
		},
		Reconcile: ReconcileConfig{
			Interval:     getEnvAsDuration("RECONCILE_INTERVAL", time.Minute),
			StaleAfter:   getEnvAsDuration("RECONCILE_STALE_AFTER", 10*time.Minute),
			AbandonAfter: getEnvAsDuration("RECONCILE_ABANDON_AFTER", 24*time.Hour),
			BatchSize:    getEnvAsInt("RECONCILE_BATCH_SIZE", 100),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
