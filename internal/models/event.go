package models

import "time"

// ActionKind classifies an ownership-transfer event.
type ActionKind string

const (
	ActionMint     ActionKind = "mint"
	ActionBurn     ActionKind = "burn"
	ActionTransfer ActionKind = "transfer"
)

// TransferEvent is one decoded Transfer log from the position NFT contract.
type TransferEvent struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	TokenID   string    `json:"token_id"`
	Height    uint64    `json:"height"`
	LogIndex  uint64    `json:"log_index"`
	Timestamp time.Time `json:"timestamp"`
	TxHash    string    `json:"tx_hash"`
}

// RawEvent is the immutable record of a processed on-chain transaction.
// Keyed by transaction hash; inserting the same hash twice is a no-op.
type RawEvent struct {
	TxHash    string     `json:"tx_hash"`
	Action    ActionKind `json:"action"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	TokenID   string     `json:"token_id"`
	Height    uint64     `json:"height"`
	Timestamp time.Time  `json:"timestamp"`
}

// TimelineEntry is an append-only per-wallet activity record.
type TimelineEntry struct {
	Wallet    string     `json:"wallet"`
	Action    ActionKind `json:"action"`
	Pool      string     `json:"pool"`
	TxHash    string     `json:"tx_hash"`
	Height    uint64     `json:"height"`
	Timestamp time.Time  `json:"timestamp"`
}
