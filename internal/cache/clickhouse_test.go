package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

func setupTestClickHouse(t *testing.T) *ClickHouseStore {
	addr := os.Getenv("CLICKHOUSE_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}

	store, err := NewClickHouseStore(ClickHouseConfig{
		Addr:     addr,
		Database: "default",
		Username: "default",
	})
	if err != nil {
		t.Skipf("ClickHouse not available: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestClickHouseStore_WalletUpsert(t *testing.T) {
	store := setupTestClickHouse(t)
	ctx := context.Background()

	addr := "0xtest" + time.Now().Format("150405.000000")
	seen := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     addr,
		SeenAt:      seen,
		TotalDelta:  1,
		ActiveDelta: 1,
	}))

	w, err := store.GetWallet(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, uint64(1), w.TotalPositions)
	assert.Equal(t, uint64(1), w.ActivePositions)

	// Second mutation merges with the stored row.
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     addr,
		SeenAt:      seen.Add(time.Minute),
		ActiveDelta: -1,
	}))

	w, err = store.GetWallet(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.TotalPositions)
	assert.Equal(t, uint64(0), w.ActivePositions)
	assert.Equal(t, seen, w.FirstActionAt)

	// Decrement past zero floors.
	require.NoError(t, store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     addr,
		SeenAt:      seen.Add(2 * time.Minute),
		ActiveDelta: -5,
	}))

	w, err = store.GetWallet(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), w.ActivePositions)
}

func TestClickHouseStore_PositionUpsert(t *testing.T) {
	store := setupTestClickHouse(t)
	ctx := context.Background()

	tokenID := "test-" + time.Now().Format("150405.000000")
	seen := time.Now().UTC().Truncate(time.Second)

	owner := "0xowner"
	liquidity := "500000"
	active := true
	require.NoError(t, store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID:   tokenID,
		SeenAt:    seen,
		Owner:     &owner,
		Liquidity: &liquidity,
		Active:    &active,
	}))

	// A burn-style mutation with only Active set keeps the rest.
	inactive := false
	require.NoError(t, store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID: tokenID,
		SeenAt:  seen.Add(time.Minute),
		Active:  &inactive,
	}))

	p, err := store.GetPosition(ctx, tokenID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "0xowner", p.Owner)
	assert.Equal(t, "500000", p.Liquidity)
	assert.False(t, p.Active)
}

func TestClickHouseStore_RawEventDedup(t *testing.T) {
	store := setupTestClickHouse(t)
	ctx := context.Background()

	tx := "0xtx" + time.Now().Format("150405.000000")
	ev := &models.RawEvent{
		TxHash:    tx,
		Action:    models.ActionMint,
		To:        "0xaaa",
		TokenID:   "42",
		Height:    100,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}

	inserted, err := store.InsertRawEvent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertRawEvent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, inserted)

	seen, err := store.HasRawEvent(ctx, tx)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestClickHouseStore_Cursor(t *testing.T) {
	store := setupTestClickHouse(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCursor(ctx, 987654))

	height, ok, err := store.LoadCursor(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(987654), height)
}

func TestClickHouseStore_GetMissing(t *testing.T) {
	store := setupTestClickHouse(t)
	ctx := context.Background()

	w, err := store.GetWallet(ctx, "0xdoes-not-exist")
	require.NoError(t, err)
	assert.Nil(t, w)

	p, err := store.GetPosition(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, p)
}
