package constants

import "time"

// Null sentinel address used by the position NFT contract to mark
// mint (from == null) and burn (to == null) transitions.
const NullAddress = "0x0000000000000000000000000000000000000000"

// ERC-721 Transfer(address,address,uint256) event signature topic.
const TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Redis keys
const (
	RedisKeyRecentActivity = "activity:recent"
	RedisKeySeenEvents     = "events:seen"
)

// Redis Pub/Sub channels
const (
	PubSubChannelAll          = "positions:all"
	PubSubChannelWalletPrefix = "positions:wallet:"
	PubSubChannelActionPrefix = "positions:action:"
)

// Limits
const (
	MaxRecentActivity = 100
	// SeenEventsTTL bounds the fast-path dedup set; the store's
	// transaction-hash key is the authoritative duplicate guard.
	SeenEventsTTL = 24 * time.Hour
)

// Crawler defaults
const (
	DefaultChunkSize = 3000 // blocks per historical window
	// ProgressStepPercent controls how often backfill progress is logged.
	ProgressStepPercent = 10
)

// Retry policy for chunk processing
const (
	ChunkMaxRetries   = 3
	ChunkRetryBackoff = 2 * time.Second
)

// Feature flag keys consulted by the indexer at startup.
const (
	FlagLiveEnabled     = "indexer.live.enabled"
	FlagBackfillEnabled = "indexer.backfill.enabled"
)
