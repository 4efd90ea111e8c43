package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

func ts(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

func TestMemoryStore_UpsertWallet_Counters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     "0xAAA",
		SeenAt:      ts(100),
		TotalDelta:  1,
		ActiveDelta: 1,
	})
	require.NoError(t, err)

	w, err := store.GetWallet(ctx, "0xaaa")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, uint64(1), w.TotalPositions)
	assert.Equal(t, uint64(1), w.ActivePositions)

	// Address lookup is case-insensitive.
	w2, err := store.GetWallet(ctx, "0xAAA")
	require.NoError(t, err)
	require.NotNil(t, w2)
	assert.Equal(t, w.Address, w2.Address)
}

func TestMemoryStore_UpsertWallet_CounterFloor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Decrement with no prior state must not wrap below zero.
	err := store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     "0xbbb",
		SeenAt:      ts(100),
		ActiveDelta: -1,
	})
	require.NoError(t, err)

	w, err := store.GetWallet(ctx, "0xbbb")
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, uint64(0), w.ActivePositions)
	assert.Equal(t, uint64(0), w.TotalPositions)

	// A later decrement past zero also floors.
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     "0xbbb",
		ActiveDelta: 1,
	}))
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     "0xbbb",
		ActiveDelta: -5,
	}))

	w, err = store.GetWallet(ctx, "0xbbb")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.ActivePositions)
}

func TestMemoryStore_UpsertWallet_ActivityWindow(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address: "0xccc",
		SeenAt:  ts(500),
	}))
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address: "0xccc",
		SeenAt:  ts(900),
	}))
	// Out-of-order arrival: earlier timestamp widens the front of the window
	// but never moves the back.
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address: "0xccc",
		SeenAt:  ts(200),
	}))

	w, err := store.GetWallet(ctx, "0xccc")
	require.NoError(t, err)
	assert.Equal(t, ts(200), w.FirstActionAt)
	assert.Equal(t, ts(900), w.LastActionAt)
}

func TestMemoryStore_UpsertWallet_OptionalFields(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	swaps := uint64(3)
	volume := 1234.5
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:   "0xddd",
		SeenAt:    ts(100),
		SwapCount: &swaps,
		Volume:    &volume,
	}))

	// Nil optional fields keep the stored values.
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:    "0xddd",
		SeenAt:     ts(200),
		TotalDelta: 1,
	}))

	w, err := store.GetWallet(ctx, "0xddd")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), w.SwapCount)
	assert.Equal(t, 1234.5, w.Volume)
	assert.Equal(t, uint64(1), w.TotalPositions)
}

func TestMemoryStore_UpsertPosition_KeepUnlessSupplied(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	owner := "0xAAA"
	liquidity := "500000"
	active := true
	require.NoError(t, store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID:   "42",
		SeenAt:    ts(100),
		Owner:     &owner,
		Liquidity: &liquidity,
		Active:    &active,
	}))

	// Burn-style mutation: only Active supplied, everything else survives.
	inactive := false
	require.NoError(t, store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID: "42",
		SeenAt:  ts(200),
		Active:  &inactive,
	}))

	p, err := store.GetPosition(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "0xaaa", p.Owner) // stored normalized
	assert.Equal(t, "500000", p.Liquidity)
	assert.False(t, p.Active)
	assert.Equal(t, ts(200), p.UpdatedAt)
}

func TestMemoryStore_UpsertPosition_UpdatedAtMonotonic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID: "7",
		SeenAt:  ts(300),
	}))
	// A replayed older event never rewinds the update timestamp.
	require.NoError(t, store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID: "7",
		SeenAt:  ts(100),
	}))

	p, err := store.GetPosition(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, ts(300), p.UpdatedAt)
}

func TestMemoryStore_InsertRawEvent_Dedup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ev := &models.RawEvent{
		TxHash:    "0xdead",
		Action:    models.ActionMint,
		TokenID:   "42",
		Height:    100,
		Timestamp: ts(100),
	}

	inserted, err := store.InsertRawEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertRawEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)

	seen, err := store.HasRawEvent(ctx, "0xdead")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = store.HasRawEvent(ctx, "0xbeef")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryStore_Timeline(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i, tx := range []string{"0x1", "0x2", "0x3"} {
		require.NoError(t, store.InsertTimelineEntry(ctx, &models.TimelineEntry{
			Wallet:    "0xAAA",
			Action:    models.ActionMint,
			TxHash:    tx,
			Height:    uint64(100 + i),
			Timestamp: ts(int64(100 + i)),
		}))
	}

	// Duplicate (tx, action) pair is absorbed.
	require.NoError(t, store.InsertTimelineEntry(ctx, &models.TimelineEntry{
		Wallet: "0xaaa",
		Action: models.ActionMint,
		TxHash: "0x2",
	}))

	entries, err := store.GetTimeline(ctx, "0xaaa", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "0x3", entries[0].TxHash)
	assert.Equal(t, "0x1", entries[2].TxHash)

	limited, err := store.GetTimeline(ctx, "0xAAA", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestMemoryStore_Cursor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := store.LoadCursor(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveCursor(ctx, 1234))

	height, ok, err := store.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1234), height)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	w, err := store.GetWallet(ctx, "0xnope")
	require.NoError(t, err)
	assert.Nil(t, w)

	p, err := store.GetPosition(ctx, "999")
	require.NoError(t, err)
	assert.Nil(t, p)
}
