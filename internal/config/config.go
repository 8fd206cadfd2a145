// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/txsentinel/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Chain data source
	RPCURL         string
	ChainID        int64
	RPCTimeout     time.Duration
	MaxTxs         int    // transactions kept per refresh window
	PlaceholderGas string // gasUsed reported when the receipt is not fetched
	FetchReceipts  bool

	// BlockPollInterval paces the head watcher; 0 disables it.
	BlockPollInterval time.Duration

	// AI explainer (Gemini)
	GeminiAPIKey   string // optional; explainer runs degraded without it
	GeminiModel    string
	GeminiTTSModel string
	GeminiVoice    string
	AITimeout      time.Duration
	EnrichWorkers  int

	// HTTP hygiene
	RateLimitRPM int
	CORSOrigins  []string

	// Tracing
	OTLPEndpoint string
}

// Ethereum mainnet defaults
const (
	DefaultRPCURL         = "https://ethereum-rpc.publicnode.com"
	DefaultChainID        = 1
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	DefaultGeminiVoice    = "Kore"
	DefaultMaxTxs         = 10
	DefaultPlaceholderGas = "21000"
	DefaultEnrichWorkers  = 4
	DefaultRateLimitRPM   = 120
	DefaultAITimeout      = 30 * time.Second
	DefaultRPCTimeout     = 15 * time.Second
	DefaultBlockPoll      = 12 * time.Second
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		RPCURL:            getEnv("RPC_URL", DefaultRPCURL),
		ChainID:           getEnvInt64("CHAIN_ID", DefaultChainID),
		RPCTimeout:        getEnvDuration("RPC_TIMEOUT", DefaultRPCTimeout),
		MaxTxs:            int(getEnvInt64("MAX_TRANSACTIONS", DefaultMaxTxs)),
		PlaceholderGas:    getEnv("PLACEHOLDER_GAS", DefaultPlaceholderGas),
		FetchReceipts:     getEnvBool("FETCH_RECEIPTS", false),
		BlockPollInterval: getEnvDuration("BLOCK_POLL_INTERVAL", DefaultBlockPoll),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", DefaultGeminiModel),
		GeminiTTSModel:    getEnv("GEMINI_TTS_MODEL", DefaultGeminiTTSModel),
		GeminiVoice:       getEnv("GEMINI_VOICE", DefaultGeminiVoice),
		AITimeout:         getEnvDuration("AI_TIMEOUT", DefaultAITimeout),
		EnrichWorkers:     int(getEnvInt64("ENRICH_WORKERS", DefaultEnrichWorkers)),
		RateLimitRPM:      int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		CORSOrigins:       getEnvList("CORS_ORIGINS"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if !getEnvBool("WATCH_BLOCKS", true) {
		cfg.BlockPollInterval = 0
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	// Local devnet nodes are fine outside production.
	if err := security.ValidateRPCURL(c.RPCURL, !c.IsProduction()); err != nil {
		return fmt.Errorf("RPC_URL: %w", err)
	}
	if c.MaxTxs <= 0 {
		return fmt.Errorf("MAX_TRANSACTIONS must be positive")
	}
	if _, err := strconv.ParseUint(c.PlaceholderGas, 10, 64); err != nil {
		return fmt.Errorf("PLACEHOLDER_GAS must be a non-negative integer")
	}
	if c.EnrichWorkers <= 0 {
		return fmt.Errorf("ENRICH_WORKERS must be positive")
	}
	return nil
}

// AIEnabled reports whether a Gemini key is configured.
func (c *Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
