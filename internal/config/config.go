// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing

	// Decision policy
	AllowBelow float64 // aggregated score below this => ALLOW
	BlockAbove float64 // aggregated score at or above this => BLOCK

	// Ensemble
	ModelWeights    map[string]float64
	MinModelQuorum  int
	ModelMaxAgeDays int // models trained longer ago are treated as stale

	// Budgets (milliseconds)
	RequestBudgetMs int
	RuleTimeoutMs   int
	ModelTimeoutMs  int

	// Transaction limits
	MaxTransactionAmount float64 // hard ceiling; above this is a BLOCK rule
	SuspiciousAmount     float64
	HighAmount           float64

	// Counterparties that always trigger the blacklist rule
	Blacklist []string

	// What to do when account history cannot be loaded: "defaults" or "reject"
	OnMissingHistory string

	// Security
	RateLimitRPM   int
	AllowedOrigins []string
}

// Defaults. Decision thresholds and ensemble weights match the model
// configuration the scoring models were calibrated against.
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultAllowBelow      = 0.3
	DefaultBlockAbove      = 0.8
	DefaultMinQuorum       = 2
	DefaultModelMaxAgeDays = 90
	DefaultRequestBudgetMs = 800
	DefaultRuleTimeoutMs   = 50
	DefaultModelTimeoutMs  = 250
	DefaultMaxAmount       = 100000.00
	DefaultSuspiciousAmt   = 10000.00
	DefaultHighAmt         = 5000.00
	DefaultRateLimitRPM    = 100
)

// DefaultModelWeights is the calibrated ensemble combination policy.
func DefaultModelWeights() map[string]float64 {
	return map[string]float64{
		"xgboost":       0.4,
		"lightgbm":      0.3,
		"random_forest": 0.3,
	}
}

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AllowBelow:           getEnvFloat("SCORE_ALLOW_BELOW", DefaultAllowBelow),
		BlockAbove:           getEnvFloat("SCORE_BLOCK_ABOVE", DefaultBlockAbove),
		ModelWeights:         parseWeights(os.Getenv("MODEL_WEIGHTS")),
		MinModelQuorum:       getEnvInt("MIN_MODEL_QUORUM", DefaultMinQuorum),
		ModelMaxAgeDays:      getEnvInt("MODEL_MAX_AGE_DAYS", DefaultModelMaxAgeDays),
		RequestBudgetMs:      getEnvInt("REQUEST_BUDGET_MS", DefaultRequestBudgetMs),
		RuleTimeoutMs:        getEnvInt("RULE_TIMEOUT_MS", DefaultRuleTimeoutMs),
		ModelTimeoutMs:       getEnvInt("MODEL_TIMEOUT_MS", DefaultModelTimeoutMs),
		MaxTransactionAmount: getEnvFloat("MAX_TRANSACTION_AMOUNT", DefaultMaxAmount),
		SuspiciousAmount:     getEnvFloat("SUSPICIOUS_AMOUNT_THRESHOLD", DefaultSuspiciousAmt),
		HighAmount:           getEnvFloat("HIGH_AMOUNT_THRESHOLD", DefaultHighAmt),
		Blacklist:            splitList(os.Getenv("COUNTERPARTY_BLACKLIST")),
		OnMissingHistory:     getEnv("ON_MISSING_HISTORY", "defaults"),
		RateLimitRPM:         getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		AllowedOrigins:       splitList(getEnv("ALLOWED_ORIGINS", "*")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are internally consistent.
func (c *Config) Validate() error {
	if c.AllowBelow < 0 || c.AllowBelow > 1 || c.BlockAbove < 0 || c.BlockAbove > 1 {
		return fmt.Errorf("score thresholds must be in [0,1]: allowBelow=%v blockAbove=%v", c.AllowBelow, c.BlockAbove)
	}
	if c.AllowBelow > c.BlockAbove {
		return fmt.Errorf("SCORE_ALLOW_BELOW (%v) must not exceed SCORE_BLOCK_ABOVE (%v)", c.AllowBelow, c.BlockAbove)
	}
	if c.MinModelQuorum < 1 {
		return fmt.Errorf("MIN_MODEL_QUORUM must be at least 1, got %d", c.MinModelQuorum)
	}
	if c.RequestBudgetMs <= 0 {
		return fmt.Errorf("REQUEST_BUDGET_MS must be positive, got %d", c.RequestBudgetMs)
	}
	if c.RuleTimeoutMs <= 0 || c.ModelTimeoutMs <= 0 {
		return fmt.Errorf("rule and model timeouts must be positive")
	}
	if c.OnMissingHistory != "defaults" && c.OnMissingHistory != "reject" {
		return fmt.Errorf("ON_MISSING_HISTORY must be \"defaults\" or \"reject\", got %q", c.OnMissingHistory)
	}
	var total float64
	for id, w := range c.ModelWeights {
		if w < 0 {
			return fmt.Errorf("model weight for %q must not be negative", id)
		}
		total += w
	}
	if len(c.ModelWeights) > 0 && total == 0 {
		return fmt.Errorf("model weights must not all be zero")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// parseWeights parses "id=weight,id=weight" pairs. Malformed pairs are
// skipped; an empty input yields the default weights.
func parseWeights(s string) map[string]float64 {
	if strings.TrimSpace(s) == "" {
		return DefaultModelWeights()
	}
	weights := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			continue
		}
		weights[strings.TrimSpace(parts[0])] = w
	}
	if len(weights) == 0 {
		return DefaultModelWeights()
	}
	return weights
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
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
