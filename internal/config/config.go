// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`
	// Apply embedded migrations on startup.
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"false"`

	// Cache (Redis)
	RedisURL      string `env:"REDIS_URL,required"`
	RedisPoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"12"`

	// User tokens
	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTIssuer string        `env:"JWT_ISSUER" envDefault:"platformx"`
	TokenTTL  time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	OTPTTL    time.Duration `env:"OTP_TTL" envDefault:"5m"`

	// Signs one-time passcode hashes. Must differ from JWT_SECRET.
	OTPSecret string `env:"OTP_SECRET,required"`

	// Model providers
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL"`
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	GeminiBaseURL   string        `env:"GEMINI_BASE_URL"`
	GroqAPIKey      string        `env:"GROQ_API_KEY"`
	GroqBaseURL     string        `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`

	// Base model catalog seed file (YAML)
	BaseModelsFile string `env:"BASE_MODELS_FILE" envDefault:"configs/basemodels.yaml"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	// Usage pipeline
	UsageWorkerEnabled bool `env:"USAGE_WORKER_ENABLED" envDefault:"true"`
	UsageBatchSize     int  `env:"USAGE_BATCH_SIZE" envDefault:"200"`

	// Server timeouts. Generation requests wait on upstream providers,
	// so the write timeout has to exceed ProviderTimeout.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"90s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitIPEnabled  bool `env:"RATE_LIMIT_IP_ENABLED" envDefault:"true"`
	RateLimitIPRPS      int  `env:"RATE_LIMIT_IP_RPS" envDefault:"20"`
	RateLimitIPBurst    int  `env:"RATE_LIMIT_IP_BURST" envDefault:"40"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes. Datasets are posted inline, so
	// the default leaves room for a 1MB file plus JSON overhead.
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"2097152"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// KeyEnv returns the environment marker embedded in generated API keys.
func (c *Config) KeyEnv() string {
	if c.IsProduction() {
		return "live"
	}
	return "test"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < 32 && c.IsProduction() {
		return errors.New("JWT_SECRET must be at least 32 bytes in production")
	}
	if c.OTPSecret != "" && c.OTPSecret == c.JWTSecret {
		return errors.New("OTP_SECRET must differ from JWT_SECRET")
	}
	if c.ProviderTimeout <= 0 {
		return errors.New("PROVIDER_TIMEOUT must be positive")
	}
	if c.WriteTimeout <= c.ProviderTimeout {
		return fmt.Errorf("WRITE_TIMEOUT (%s) must exceed PROVIDER_TIMEOUT (%s)", c.WriteTimeout, c.ProviderTimeout)
	}
	return nil
}

// Load reads an optional .env file, parses environment variables and
// returns a Config. Returns an error if required variables are missing.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
