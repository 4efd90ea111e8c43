package models

import "time"

// Wallet holds the cumulative per-address aggregates owned by the store.
// FirstActionAt is the minimum block timestamp ever observed for the
// address, LastActionAt the maximum; both only widen, never shrink.
type Wallet struct {
	Address         string    `json:"address"`
	SwapCount       uint64    `json:"swap_count"`
	Volume          float64   `json:"volume"`
	Fees            float64   `json:"fees"`
	TotalPositions  uint64    `json:"total_positions"`
	ActivePositions uint64    `json:"active_positions"`
	PoolCount       uint64    `json:"pool_count"`
	FirstActionAt   time.Time `json:"first_action_at"`
	LastActionAt    time.Time `json:"last_action_at"`
}

// Position is a single position NFT. TokenID is chain-assigned and
// immutable; a burned position stays in the store with Active=false.
type Position struct {
	TokenID    string    `json:"token_id"`
	Owner      string    `json:"owner"`
	Pool       string    `json:"pool"`
	Liquidity  string    `json:"liquidity"`
	TickLower  int32     `json:"tick_lower"`
	TickUpper  int32     `json:"tick_upper"`
	Active     bool      `json:"active"`
	Subscribed bool      `json:"subscribed"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WalletMutation is the upsert intent the pipeline issues per event.
// Counter deltas are applied with a floor at zero; SeenAt widens the
// first/last activity window. Pointer fields follow the store's
// keep-existing-unless-supplied rule and are nil for pipeline writes.
type WalletMutation struct {
	Address     string
	SeenAt      time.Time
	TotalDelta  int64
	ActiveDelta int64

	SwapCount *uint64
	Volume    *float64
	Fees      *float64
	PoolCount *uint64
}

// PositionMutation is the position upsert intent. Nil fields keep the
// stored value; Owner and Pool overwrite when supplied.
type PositionMutation struct {
	TokenID    string
	SeenAt     time.Time
	Owner      *string
	Pool       *string
	Liquidity  *string
	TickLower  *int32
	TickUpper  *int32
	Active     *bool
	Subscribed *bool
}
