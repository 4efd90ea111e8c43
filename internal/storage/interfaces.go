package storage

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// AggregateStore is the external persistence layer for wallets, positions,
// raw events, timeline entries and the pipeline cursor. Every write is an
// idempotent upsert keyed by an immutable identifier, so the pipeline's
// multi-step mutation per event stays recoverable after a partial failure.
type AggregateStore interface {
	// UpsertWallet applies a wallet mutation: counter deltas floor at zero,
	// the first/last activity window widens via min/max, and optional
	// fields only overwrite when supplied.
	UpsertWallet(ctx context.Context, mut *models.WalletMutation) error

	// UpsertPosition applies a position mutation keyed by token id.
	UpsertPosition(ctx context.Context, mut *models.PositionMutation) error

	// InsertRawEvent records a processed transaction. Returns false when
	// the transaction hash was already recorded (silent no-op).
	InsertRawEvent(ctx context.Context, ev *models.RawEvent) (bool, error)

	// InsertTimelineEntry appends a per-wallet activity record with
	// best-effort duplicate suppression.
	InsertTimelineEntry(ctx context.Context, entry *models.TimelineEntry) error

	// HasRawEvent reports whether a transaction hash was already processed.
	HasRawEvent(ctx context.Context, txHash string) (bool, error)

	// GetWallet retrieves a wallet aggregate, nil when unknown.
	GetWallet(ctx context.Context, address string) (*models.Wallet, error)

	// GetPosition retrieves a position by token id, nil when unknown.
	GetPosition(ctx context.Context, tokenID string) (*models.Position, error)

	// GetTimeline returns the most recent timeline entries for a wallet.
	GetTimeline(ctx context.Context, address string, limit int) ([]*models.TimelineEntry, error)

	// LoadCursor returns the durable last-processed height; ok is false
	// when no cursor has been stored yet.
	LoadCursor(ctx context.Context) (height uint64, ok bool, err error)

	// SaveCursor durably records the last fully processed height.
	SaveCursor(ctx context.Context, height uint64) error

	// Ping checks if the store is reachable
	Ping(ctx context.Context) error

	// Close closes the store connection
	io.Closer
}

// ActivityCache keeps a bounded recent-events feed for the read API.
type ActivityCache interface {
	// AddRecentEvent pushes an event onto the recent-activity feed.
	AddRecentEvent(ctx context.Context, ev *models.RawEvent) error

	// GetRecentEvents retrieves the most recent events
	GetRecentEvents(ctx context.Context, limit int64) ([]*models.RawEvent, error)

	// Ping checks if the cache is reachable
	Ping(ctx context.Context) error

	// Close closes the cache connection
	io.Closer
}

// Broadcaster fans classified events out to live subscribers. Notify is
// fire-and-forget: it never blocks the pipeline and delivery to absent
// subscribers is not guaranteed.
type Broadcaster interface {
	Notify(ctx context.Context, wallet string, action models.ActionKind, pool string, timestamp time.Time)
}

// ChainClient is the JSON-RPC surface the pipeline consumes.
type ChainClient interface {
	// CurrentHeight returns the chain head height.
	CurrentHeight(ctx context.Context) (uint64, error)

	// BlockTimestamp returns the block timestamp at height, failing with
	// rpc.ErrBlockNotFound when the node does not know the block.
	BlockTimestamp(ctx context.Context, height uint64) (time.Time, error)

	// TransferLogs returns the contract's Transfer events in
	// [fromHeight, toHeight] ordered by height then in-block log index.
	TransferLogs(ctx context.Context, fromHeight, toHeight uint64) ([]*models.TransferEvent, error)

	// SubscribeNewHeads streams new head heights until ctx is cancelled.
	SubscribeNewHeads(ctx context.Context) (<-chan uint64, error)

	// PositionLiquidity reads a position's current liquidity.
	PositionLiquidity(ctx context.Context, tokenID string) (*big.Int, error)
}
