package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mzeeshan-dev/position-indexer/internal/constants"
)

type Config struct {
	// Chain RPC settings
	RPCUrl          string
	WSUrl           string
	ContractAddress string
	DeployBlock     uint64
	ChunkSize       uint64

	// Pipeline toggles (live and historical modes are independent)
	EnableLive     bool
	EnableBackfill bool

	// Redis settings
	RedisAddr string

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// API server settings
	APIAddr string
	APIKey  string
	DevMode bool

	// AI settings (optional)
	OpenRouterAPIKey string
}

func Load() *Config {
	return &Config{
		// Chain
		RPCUrl:          getEnv("ETH_RPC_URL", ""),
		WSUrl:           getEnv("ETH_WS_URL", ""),
		ContractAddress: getEnv("POSITION_CONTRACT_ADDRESS", ""),
		DeployBlock:     getUint64Env("DEPLOY_BLOCK", 0),
		ChunkSize:       getUint64Env("CHUNK_SIZE", constants.DefaultChunkSize),

		// Toggles
		EnableLive:     getBoolEnv("ENABLE_LIVE", true),
		EnableBackfill: getBoolEnv("ENABLE_BACKFILL", true),

		// Redis
		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "positions"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// API
		APIAddr: getEnv("API_ADDR", ":8090"),
		APIKey:  getEnv("API_KEY", ""),
		DevMode: getBoolEnv("DEV_MODE", false),

		// AI
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
	}
}

// Validate reports fatal configuration errors. The pipeline refuses to
// construct without a chain endpoint and a contract address.
func (c *Config) Validate() error {
	if c.RPCUrl == "" {
		return fmt.Errorf("ETH_RPC_URL is required")
	}
	if c.ContractAddress == "" {
		return fmt.Errorf("POSITION_CONTRACT_ADDRESS is required")
	}
	if c.ChunkSize == 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.EnableLive && c.WSUrl == "" {
		return fmt.Errorf("ETH_WS_URL is required when live mode is enabled")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getUint64Env(key string, defaultVal uint64) uint64 {
	if val := os.Getenv(key); val != "" {
		if u, err := strconv.ParseUint(val, 10, 64); err == nil {
			return u
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
