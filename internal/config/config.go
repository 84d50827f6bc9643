// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// ML scoring service
	MLServiceURL     string // scoring endpoint; built-in logistic scorer if not set
	MLModelVersion   string
	MLTimeout        time.Duration // hard deadline for one scoring call
	MLBreakerTrips   int           // consecutive failures before the breaker opens
	MLBreakerCooloff time.Duration

	// Rule thresholds
	HighAmountThreshold float64
	NewAccountDays      int
	NightHourStart      int // hour > start is "unusual transaction time"
	NightHourEnd        int // hour < end is "unusual transaction time"
	ATMAmountThreshold  float64

	// Behavioral evaluator
	BehavioralMinSamples int     // prior transactions required before checks fire
	BehavioralZThreshold float64 // |z| above this flags the amount
	BehavioralHourMargin int     // hours outside the observed range tolerated

	// Velocity windows
	VelocityBurstWindow time.Duration // short window for burst detection
	VelocityBurstCap    int
	VelocityHourlyCap   int
	VelocityDailyAmount float64

	// Risk aggregation
	WeightML        float64
	WeightFlags     float64
	FlagNormalizer  int // flag count mapped to count/normalizer, clamped to 1
	MediumThreshold float64
	HighThreshold   float64
	CriticalLevel   float64

	// Security / limits
	WebhookSecret string
	RateLimitRPS  int

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort     = "8080"
	DefaultEnv      = "development"
	DefaultLogLevel = "info"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set

		MLServiceURL:     os.Getenv("ML_SERVICE_URL"), // Optional, built-in scorer if not set
		MLModelVersion:   getEnv("ML_MODEL_VERSION", "1.0.0"),
		MLTimeout:        getEnvDuration("ML_TIMEOUT", 400*time.Millisecond),
		MLBreakerTrips:   int(getEnvInt64("ML_BREAKER_TRIPS", 5)),
		MLBreakerCooloff: getEnvDuration("ML_BREAKER_COOLOFF", 30*time.Second),

		HighAmountThreshold: getEnvFloat("RULE_HIGH_AMOUNT", 10000),
		NewAccountDays:      int(getEnvInt64("RULE_NEW_ACCOUNT_DAYS", 30)),
		NightHourStart:      int(getEnvInt64("RULE_NIGHT_HOUR_START", 22)),
		NightHourEnd:        int(getEnvInt64("RULE_NIGHT_HOUR_END", 6)),
		ATMAmountThreshold:  getEnvFloat("RULE_ATM_AMOUNT", 20000),

		BehavioralMinSamples: int(getEnvInt64("BEHAVIORAL_MIN_SAMPLES", 5)),
		BehavioralZThreshold: getEnvFloat("BEHAVIORAL_Z_THRESHOLD", 3.0),
		BehavioralHourMargin: int(getEnvInt64("BEHAVIORAL_HOUR_MARGIN", 2)),

		VelocityBurstWindow: getEnvDuration("VELOCITY_BURST_WINDOW", 10*time.Minute),
		VelocityBurstCap:    int(getEnvInt64("VELOCITY_BURST_CAP", 3)),
		VelocityHourlyCap:   int(getEnvInt64("VELOCITY_HOURLY_CAP", 10)),
		VelocityDailyAmount: getEnvFloat("VELOCITY_DAILY_AMOUNT", 100000),

		WeightML:        getEnvFloat("WEIGHT_ML", 0.6),
		WeightFlags:     getEnvFloat("WEIGHT_FLAGS", 0.4),
		FlagNormalizer:  int(getEnvInt64("FLAG_NORMALIZER", 6)),
		MediumThreshold: getEnvFloat("RISK_MEDIUM_THRESHOLD", 0.4),
		HighThreshold:   getEnvFloat("RISK_HIGH_THRESHOLD", 0.7),
		CriticalLevel:   getEnvFloat("RISK_CRITICAL_THRESHOLD", 0.9),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:  int(getEnvInt64("RATE_LIMIT_RPS", 100)),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent
func (c *Config) Validate() error {
	if c.MediumThreshold >= c.HighThreshold || c.HighThreshold >= c.CriticalLevel {
		return fmt.Errorf("risk thresholds must be strictly increasing: medium %.2f < high %.2f < critical %.2f",
			c.MediumThreshold, c.HighThreshold, c.CriticalLevel)
	}
	if c.WeightML < 0 || c.WeightFlags < 0 {
		return fmt.Errorf("aggregation weights must be non-negative")
	}
	if c.WeightML+c.WeightFlags == 0 {
		return fmt.Errorf("at least one aggregation weight must be positive")
	}
	if c.VelocityBurstWindow <= 0 || c.VelocityBurstWindow > 24*time.Hour {
		return fmt.Errorf("VELOCITY_BURST_WINDOW must be within (0, 24h]")
	}
	if c.BehavioralMinSamples < 1 {
		return fmt.Errorf("BEHAVIORAL_MIN_SAMPLES must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
