package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string
	LogLevel    string

	// Backend REST API
	BackendURL     string
	BackendTimeout time.Duration
	JWTSecret      string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Wallet and chain
	WalletRPCURL          string
	ContractAddress       string
	NetworkChainID        uint64
	NetworkName           string
	NetworkRPCURL         string
	NetworkExplorerURL    string
	WalletPollInterval    time.Duration
	TxConfirmPollInterval time.Duration
	TxConfirmTimeout      time.Duration

	// Holds
	HoldDuration  time.Duration
	HoldRateLimit int
	APIRateLimit  int

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads the environment, after loading .env when one exists.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env", "error", err)
	}

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Backend
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:5000/api"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", "0s"),
		JWTSecret:      getEnv("JWT_SECRET", ""),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "cinema-booking-gateway"),

		// Wallet
		WalletRPCURL:          getEnv("WALLET_RPC_URL", ""),
		ContractAddress:       getEnv("CONTRACT_ADDRESS", ""),
		NetworkChainID:        getEnvAsUint64("NETWORK_CHAIN_ID", 11155111),
		NetworkName:           getEnv("NETWORK_NAME", "Sepolia"),
		NetworkRPCURL:         getEnv("NETWORK_RPC_URL", "https://rpc.sepolia.org"),
		NetworkExplorerURL:    getEnv("NETWORK_EXPLORER_URL", "https://sepolia.etherscan.io"),
		WalletPollInterval:    getEnvAsDuration("WALLET_POLL_INTERVAL", "2s"),
		TxConfirmPollInterval: getEnvAsDuration("TX_CONFIRM_POLL_INTERVAL", "1s"),
		TxConfirmTimeout:      getEnvAsDuration("TX_CONFIRM_TIMEOUT", "10m"),

		// Holds
		HoldDuration:  getEnvAsDuration("HOLD_DURATION", "15m"),
		HoldRateLimit: getEnvAsInt("HOLD_RATE_LIMIT", 10),
		APIRateLimit:  getEnvAsInt("API_RATE_LIMIT", 300),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// Validate rejects a configuration the gateway cannot run safely with.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET is required")
	}
	return nil
}

// IsDevelopment is true for local runs; logs are human readable there.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) SlogLevel() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsUint64(key string, defaultValue uint64) uint64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseUint(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
