package config

import (
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT / session cookie configuration
	JWT JWTConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Pending booking lifecycle
	Booking BookingConfig

	// Redis (optional, login throttling)
	Redis RedisConfig

	// Per-IP rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Security configuration
	Security SecurityConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	PublicURL   string // Base URL of the web front-end

	// TrustedProxies lists the IPs or CIDRs allowed to set X-Forwarded-For.
	// Empty means forwarding headers are ignored.
	TrustedProxies []string
}

// IsProduction reports whether the server runs in production
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	Driver             string // "postgres" (lib/pq) or "pgx"
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnMaxIdleTime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret     string
	Expiry     time.Duration
	Issuer     string
	CookieName string
}

// PaymentConfig holds Paystack configuration
type PaymentConfig struct {
	SecretKey         string // Paystack secret key (SECRET - never expose to client)
	PublicKey         string
	BaseURL           string
	Currency          string
	CallbackURL       string // Where Paystack sends the guest after checkout
	ReferencePrefix   string
	ReferenceAttempts int
	Timeout           time.Duration
	CollectionTimeout time.Duration // How long a collection watcher waits for a terminal outcome
	PollInterval      time.Duration
}

// BookingConfig holds pending booking expiry and re-verification settings
type BookingConfig struct {
	PendingTTL       time.Duration
	SweepInterval    time.Duration
	SweepBatchSize   int
	ReverifyAfter    time.Duration
	ReverifySchedule string
}

// RedisConfig holds Redis configuration; an empty URL disables login throttling
type RedisConfig struct {
	URL              string
	LoginMaxAttempts int
	LoginWindow      time.Duration
}

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
	IdleTTL           time.Duration // buckets unused for this long are dropped
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	BcryptCost int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			PublicURL:   getEnv("PUBLIC_URL", "http://localhost:3000"),

			TrustedProxies: getEnvAsSlice("TRUSTED_PROXIES", nil),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			Driver:             getEnv("DATABASE_DRIVER", "postgres"),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime:    getEnvAsDuration("DATABASE_CONN_MAX_IDLE_TIME", 150*time.Second),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiry:     getEnvAsDuration("JWT_EXPIRY", 7*24*time.Hour),
			Issuer:     getEnv("JWT_ISSUER", "greengrey-guesthouse"),
			CookieName: getEnv("AUTH_COOKIE_NAME", "auth-token"),
		},
		Payment: PaymentConfig{
			SecretKey:         getEnv("PAYSTACK_SECRET_KEY", ""),
			PublicKey:         getEnv("PAYSTACK_PUBLIC_KEY", ""),
			BaseURL:           getEnv("PAYSTACK_BASE_URL", "https://api.paystack.co"),
			Currency:          strings.ToUpper(getEnv("PAYMENT_CURRENCY", "GHS")),
			CallbackURL:       getEnv("PAYMENT_CALLBACK_URL", ""),
			ReferencePrefix:   getEnv("PAYMENT_REFERENCE_PREFIX", "GB"),
			ReferenceAttempts: getEnvAsInt("PAYMENT_REFERENCE_ATTEMPTS", 5),
			Timeout:           getEnvAsDuration("PAYSTACK_TIMEOUT", 30*time.Second),
			CollectionTimeout: getEnvAsDuration("PAYMENT_COLLECTION_TIMEOUT", 15*time.Minute),
			PollInterval:      getEnvAsDuration("PAYMENT_POLL_INTERVAL", 5*time.Second),
		},
		Booking: BookingConfig{
			PendingTTL:       getEnvAsDuration("BOOKING_PENDING_TTL", 30*time.Minute),
			SweepInterval:    getEnvAsDuration("BOOKING_SWEEP_INTERVAL", time.Minute),
			SweepBatchSize:   getEnvAsInt("BOOKING_SWEEP_BATCH_SIZE", 100),
			ReverifyAfter:    getEnvAsDuration("PAYMENT_REVERIFY_AFTER", 10*time.Minute),
			ReverifySchedule: getEnv("PAYMENT_REVERIFY_SCHEDULE", "0 */5 * * * *"),
		},
		Redis: RedisConfig{
			URL:              getEnv("REDIS_URL", ""),
			LoginMaxAttempts: getEnvAsInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:      getEnvAsDuration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvAsBool("RATE_LIMIT_ENABLED", true),
			RequestsPerSecond: getEnvAsFloat("RATE_LIMIT_RPS", 5),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 10),
			IdleTTL:           getEnvAsDuration("RATE_LIMIT_IDLE_TTL", 10*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		Security: SecurityConfig{
			BcryptCost: getEnvAsInt("BCRYPT_COST", 12),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "pgx" {
		return fmt.Errorf("invalid DATABASE_DRIVER: %s (must be 'postgres' or 'pgx')", c.Database.Driver)
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.JWT.Expiry <= 0 {
		return fmt.Errorf("JWT_EXPIRY must be positive")
	}

	if c.Server.IsProduction() && c.Payment.SecretKey == "" {
		return fmt.Errorf("PAYSTACK_SECRET_KEY is required in production")
	}

	if c.Payment.ReferenceAttempts < 1 {
		return fmt.Errorf("PAYMENT_REFERENCE_ATTEMPTS must be at least 1")
	}

	if c.Payment.Timeout <= 0 {
		return fmt.Errorf("PAYSTACK_TIMEOUT must be positive")
	}

	if c.Payment.CollectionTimeout <= 0 {
		return fmt.Errorf("PAYMENT_COLLECTION_TIMEOUT must be positive")
	}

	if c.Payment.PollInterval <= 0 {
		return fmt.Errorf("PAYMENT_POLL_INTERVAL must be positive")
	}

	if c.Booking.PendingTTL <= 0 || c.Booking.SweepInterval <= 0 {
		return fmt.Errorf("BOOKING_PENDING_TTL and BOOKING_SWEEP_INTERVAL must be positive")
	}

	if c.Booking.SweepBatchSize < 1 {
		return fmt.Errorf("BOOKING_SWEEP_BATCH_SIZE must be at least 1")
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Booking.ReverifySchedule); err != nil {
		return fmt.Errorf("invalid PAYMENT_REVERIFY_SCHEDULE: %w", err)
	}

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.IdleTTL <= 0) {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_IDLE_TTL must be positive")
	}

	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("invalid TRUSTED_PROXIES entry %q", proxy)
			}
		}
	}

	if c.Security.BcryptCost < bcrypt.MinCost || c.Security.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go durations ("30m") or plain seconds ("1800")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if seconds, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(seconds) * time.Second
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
