package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Redis        RedisConfig
	POS          POSConfig
	Stripe       StripeConfig
	SMS          SMSConfig
	Verification VerificationConfig
	Session      SessionConfig
	S3           S3Config
	Scheduler    SchedulerConfig
}

type ServerConfig struct {
	Port        string
	GinMode     string
	Environment string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	// Statements slower than this are logged as warnings; zero disables it.
	SlowQuery time.Duration
}

type JWTConfig struct {
	Secret             string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

// RedisConfig is optional; an empty Host means sessions and token
// bookkeeping are kept in process memory.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type POSConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	PriceMode   string // auto, cents, dollars
	PaymentType string
}

type StripeConfig struct {
	SecretKey   string
	BaseURL     string
	Currency    string
	Timeout     time.Duration
	MaxAttempts int
}

type SMSConfig struct {
	ServiceID  string
	AccessKey  string
	SecretKey  string
	FromNumber string
	BaseURL    string
}

type VerificationConfig struct {
	TokenSecret    string
	TokenMaxAge    time.Duration
	PublicBaseURL  string
	MaxPINAttempts int
}

type SessionConfig struct {
	TTL        time.Duration
	CookieName string
	Secure     bool
}

type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	BaseURL         string
}

// Enabled reports whether exports should be uploaded instead of streamed.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type SchedulerConfig struct {
	SweepCron  string
	PendingTTL time.Duration
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			GinMode:     getEnv("GIN_MODE", "debug"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "admin"),
			Password: getEnv("DB_PASSWORD", "1234"),
			DBName:   getEnv("DB_NAME", "tabline"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxIdleConns:    parseInt(getEnv("DB_MAX_IDLE_CONNS", "10"), 10),
			MaxOpenConns:    parseInt(getEnv("DB_MAX_OPEN_CONNS", "50"), 50),
			ConnMaxLifetime: parseDuration(getEnv("DB_CONN_MAX_LIFETIME", "30m"), 30*time.Minute),
			SlowQuery:       parseDuration(getEnv("DB_SLOW_QUERY", "500ms"), 500*time.Millisecond),
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", "your-secret-key"),
			AccessTokenExpiry:  parseDuration(getEnv("JWT_ACCESS_TOKEN_EXPIRY", "15m"), 15*time.Minute),
			RefreshTokenExpiry: parseDuration(getEnv("JWT_REFRESH_TOKEN_EXPIRY", "168h"), 168*time.Hour),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseSlice(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       parseInt(getEnv("REDIS_DB", "0"), 0),
		},
		POS: POSConfig{
			BaseURL:     getEnv("OMNIVORE_BASE_URL", "https://api.omnivore.io/1.0"),
			APIKey:      getEnv("OMNIVORE_API_KEY", ""),
			Timeout:     parseDuration(getEnv("OMNIVORE_TIMEOUT", "15s"), 15*time.Second),
			MaxAttempts: parseInt(getEnv("OMNIVORE_MAX_ATTEMPTS", "3"), 3),
			PriceMode:   getEnv("POS_PRICE_MODE", "auto"),
			PaymentType: getEnv("POS_PAYMENT_TYPE", "cash"),
		},
		Stripe: StripeConfig{
			SecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
			BaseURL:     getEnv("STRIPE_BASE_URL", "https://api.stripe.com"),
			Currency:    getEnv("STRIPE_CURRENCY", "usd"),
			Timeout:     parseDuration(getEnv("STRIPE_TIMEOUT", "30s"), 30*time.Second),
			MaxAttempts: parseInt(getEnv("STRIPE_MAX_ATTEMPTS", "3"), 3),
		},
		SMS: SMSConfig{
			ServiceID:  getEnv("SENS_SERVICE_ID", ""),
			AccessKey:  getEnv("SENS_ACCESS_KEY", ""),
			SecretKey:  getEnv("SENS_SECRET_KEY", ""),
			FromNumber: getEnv("SENS_FROM_NUMBER", ""),
			BaseURL:    getEnv("SENS_BASE_URL", "https://sens.apigw.ntruss.com"),
		},
		Verification: VerificationConfig{
			TokenSecret:    getEnv("VERIFY_TOKEN_SECRET", "verify-secret-key"),
			TokenMaxAge:    parseDuration(getEnv("VERIFY_TOKEN_MAX_AGE", "30m"), 30*time.Minute),
			PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			MaxPINAttempts: parseInt(getEnv("VERIFY_MAX_PIN_ATTEMPTS", "5"), 5),
		},
		Session: SessionConfig{
			TTL:        parseDuration(getEnv("SESSION_TTL", "12h"), 12*time.Hour),
			CookieName: getEnv("SESSION_COOKIE_NAME", "tabline_session"),
			Secure:     getEnv("SESSION_COOKIE_SECURE", "false") == "true",
		},
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Bucket:          getEnv("AWS_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			BaseURL:         getEnv("AWS_S3_BASE_URL", ""),
		},
		Scheduler: SchedulerConfig{
			SweepCron:  getEnv("SWEEP_CRON", "*/15 * * * *"),
			PendingTTL: parseDuration(getEnv("PENDING_TTL", "24h"), 24*time.Hour),
		},
	}

	return config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	duration, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Invalid duration %s, using default %s", s, fallback)
		return fallback
	}
	return duration
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("Invalid integer %s, using default %d", s, fallback)
		return fallback
	}
	return n
}

func parseSlice(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
