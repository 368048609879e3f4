package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Networks a wallet can be registered on.
const (
	NetworkMainnet = "mainnet"
	NetworkDevnet  = "devnet"
)

// ErrUnknownNetwork is returned for a network other than mainnet or devnet.
var ErrUnknownNetwork = errors.New("unknown network")

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Solana configuration. The RPC URLs may hold several comma separated
	// endpoints; one is picked at random per process.
	SolanaRPCURL       string
	SolanaDevnetRPCURL string
	SolanaRequestDelay time.Duration

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Sync configuration
	DefaultSyncInterval time.Duration
	MinSyncInterval     time.Duration

	// Ledger view configuration
	RecommendedConfirmations int
	ConfirmationSettleDelay  time.Duration
	DisplayTimezone          string
	Location                 *time.Location
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Solana configuration
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	if cfg.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL is required"))
	}
	cfg.SolanaDevnetRPCURL = os.Getenv("SOLANA_DEVNET_RPC_URL")
	if cfg.SolanaDevnetRPCURL != "" && cfg.SolanaDevnetRPCURL == cfg.SolanaRPCURL {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL and SOLANA_DEVNET_RPC_URL must be different"))
	}

	requestDelay, err := parseDuration("SOLANA_REQUEST_DELAY", "600ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SolanaRequestDelay = requestDelay
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "txledger-wallet-sync")

	// Sync configuration
	defaultInterval, err := parseDuration("DEFAULT_SYNC_INTERVAL", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.DefaultSyncInterval = defaultInterval
	}

	minInterval, err := parseDuration("MIN_SYNC_INTERVAL", "10s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MinSyncInterval = minInterval
	}

	// Validate intervals
	if cfg.MinSyncInterval > cfg.DefaultSyncInterval {
		errs = append(errs, fmt.Errorf("MIN_SYNC_INTERVAL (%v) cannot be greater than DEFAULT_SYNC_INTERVAL (%v)",
			cfg.MinSyncInterval, cfg.DefaultSyncInterval))
	}

	// Ledger view configuration
	recommended, err := parseInt("RECOMMENDED_CONFIRMATIONS", 32)
	if err != nil {
		errs = append(errs, err)
	} else if recommended < 1 {
		errs = append(errs, fmt.Errorf("RECOMMENDED_CONFIRMATIONS must be at least 1, got %d", recommended))
	} else {
		cfg.RecommendedConfirmations = recommended
	}

	settle, err := parseDuration("CONFIRMATION_SETTLE_DELAY", "400ms")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmationSettleDelay = settle
	}

	cfg.DisplayTimezone = getEnvOrDefault("DISPLAY_TIMEZONE", "Local")
	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("DISPLAY_TIMEZONE: %w", err))
	} else {
		cfg.Location = loc
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.MinSyncInterval > c.DefaultSyncInterval {
		errs = append(errs, fmt.Errorf("MinSyncInterval cannot be greater than DefaultSyncInterval"))
	}

	if c.DefaultSyncInterval < time.Second {
		errs = append(errs, fmt.Errorf("DefaultSyncInterval must be at least 1 second"))
	}

	if c.RecommendedConfirmations < 1 {
		errs = append(errs, fmt.Errorf("RecommendedConfirmations must be at least 1"))
	}

	if c.ConfirmationSettleDelay < 0 {
		errs = append(errs, fmt.Errorf("ConfirmationSettleDelay cannot be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RPCURLFor returns the RPC endpoint list configured for a network.
func (c *Config) RPCURLFor(network string) (string, error) {
	switch network {
	case NetworkMainnet:
		return c.SolanaRPCURL, nil
	case NetworkDevnet:
		if c.SolanaDevnetRPCURL == "" {
			return "", fmt.Errorf("devnet requested but SOLANA_DEVNET_RPC_URL is not set")
		}
		return c.SolanaDevnetRPCURL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownNetwork, network)
	}
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
