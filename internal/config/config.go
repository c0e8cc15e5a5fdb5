package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort            string
	JWTSecret           []byte
	EncryptionKey       string // base64, 16/24/32 bytes
	EncryptionAlgorithm string // for newly written credentials
	Database            DatabaseConfig
	Redis               RedisConfig
	Cache               CacheConfig
	Retry               RetryConfig
	RateLimits          RateLimitConfig
	Fallback            FallbackConfig
	Audit               AuditConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// CacheConfig holds TTLs for the read-through caches
type CacheConfig struct {
	ProviderTTL time.Duration // resolved provider configs
}

// RetryConfig holds the default outbound retry policy
type RetryConfig struct {
	// MaxRetries is already in transport form: negative means no retries.
	// RETRY_MAX_RETRIES=0 and any negative value load as -1.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
}

// Limit is a fixed-window budget for one capability
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimitConfig holds per-capability limits, applied per tenant
type RateLimitConfig struct {
	AI           Limit
	Email        Limit
	PeopleSearch Limit
}

// FallbackConfig holds operator-supplied AI keys used when a tenant has no AI provider
type FallbackConfig struct {
	OpenAIAPIKey    string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string
	GeminiAPIKey    string
	GeminiModel     string
}

// AuditConfig controls where administrative audit records go
type AuditConfig struct {
	Enabled  bool
	QueueKey string
	MaxSize  int64
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

// retryCount maps an operator's retry count onto transport.Options, where
// zero selects the default.
func retryCount(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(os.Getenv(key))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encryptionKey := os.Getenv("ENCRYPTION_KEY")
	if encryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required (generate one with cmd/keygen)")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		HTTPPort:            getEnvString("HTTP_PORT", "8080"),
		JWTSecret:           []byte(jwtSecret),
		EncryptionKey:       encryptionKey,
		EncryptionAlgorithm: getEnvString("ENCRYPTION_ALGORITHM", "aes-gcm"),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Cache: CacheConfig{
			ProviderTTL: getEnvDuration("CACHE_PROVIDER_TTL", 60*time.Second),
		},
		Retry: RetryConfig{
			MaxRetries: retryCount(getEnvInt("RETRY_MAX_RETRIES", 3)),
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", 1*time.Second),
			MaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),
			Timeout:    getEnvDuration("RETRY_TIMEOUT", 30*time.Second),
		},
		RateLimits: RateLimitConfig{
			AI: Limit{
				Requests: getEnvInt("RATE_LIMIT_AI_REQUESTS", 60),
				Window:   getEnvDuration("RATE_LIMIT_AI_WINDOW", time.Minute),
			},
			Email: Limit{
				Requests: getEnvInt("RATE_LIMIT_EMAIL_REQUESTS", 100),
				Window:   getEnvDuration("RATE_LIMIT_EMAIL_WINDOW", time.Hour),
			},
			PeopleSearch: Limit{
				Requests: getEnvInt("RATE_LIMIT_PEOPLE_SEARCH_REQUESTS", 30),
				Window:   getEnvDuration("RATE_LIMIT_PEOPLE_SEARCH_WINDOW", time.Minute),
			},
		},
		Fallback: FallbackConfig{
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
			OpenAIModel:     getEnvString("OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
			AnthropicModel:  getEnvString("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
			GeminiModel:     getEnvString("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Audit: AuditConfig{
			Enabled:  getEnvBool("AUDIT_ENABLED", true),
			QueueKey: getEnvString("AUDIT_QUEUE_KEY", "audit:queue"),
			MaxSize:  getEnvInt64("AUDIT_QUEUE_MAX_SIZE", 100_000),
		},
	}

	return cfg, nil
}
