package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzeeshan-dev/position-indexer/internal/constants"
)

func validConfig() *Config {
	return &Config{
		RPCUrl:          "https://rpc.example.com",
		WSUrl:           "wss://rpc.example.com",
		ContractAddress: "0x1111111111111111111111111111111111111111",
		ChunkSize:       3000,
		EnableLive:      true,
	}
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	t.Run("missing rpc url", func(t *testing.T) {
		cfg := validConfig()
		cfg.RPCUrl = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ETH_RPC_URL")
	})

	t.Run("missing contract address", func(t *testing.T) {
		cfg := validConfig()
		cfg.ContractAddress = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "POSITION_CONTRACT_ADDRESS")
	})

	t.Run("zero chunk size", func(t *testing.T) {
		cfg := validConfig()
		cfg.ChunkSize = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "CHUNK_SIZE")
	})

	t.Run("live mode requires websocket url", func(t *testing.T) {
		cfg := validConfig()
		cfg.WSUrl = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ETH_WS_URL")
	})

	t.Run("websocket url optional with live disabled", func(t *testing.T) {
		cfg := validConfig()
		cfg.WSUrl = ""
		cfg.EnableLive = false
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, uint64(constants.DefaultChunkSize), cfg.ChunkSize)
	assert.True(t, cfg.EnableLive)
	assert.True(t, cfg.EnableBackfill)
	assert.Equal(t, "localhost:9000", cfg.ClickHouseAddr)
	assert.Equal(t, "positions", cfg.ClickHouseDatabase)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, ":8090", cfg.APIAddr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ETH_RPC_URL", "https://rpc.test")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("ENABLE_LIVE", "false")
	t.Setenv("HTTP_TIMEOUT", "10s")
	t.Setenv("DEPLOY_BLOCK", "12345678")

	cfg := Load()

	assert.Equal(t, "https://rpc.test", cfg.RPCUrl)
	assert.Equal(t, uint64(500), cfg.ChunkSize)
	assert.False(t, cfg.EnableLive)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, uint64(12345678), cfg.DeployBlock)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "not-a-number")
	t.Setenv("ENABLE_LIVE", "maybe")
	t.Setenv("HTTP_TIMEOUT", "soon")

	cfg := Load()

	assert.Equal(t, uint64(constants.DefaultChunkSize), cfg.ChunkSize)
	assert.True(t, cfg.EnableLive)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
}
