package pipeline

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// fakeChain is a scripted storage.ChainClient for pipeline tests.
type fakeChain struct {
	mu sync.Mutex

	head      uint64
	events    []*models.TransferEvent
	heads     chan uint64
	liquidity map[string]*big.Int

	failLogsUntil int // TransferLogs fails this many times before succeeding
	logCalls      [][2]uint64
	liquidityErr  error
}

func newFakeChain(head uint64) *fakeChain {
	return &fakeChain{
		head:      head,
		heads:     make(chan uint64, 16),
		liquidity: make(map[string]*big.Int),
	}
}

func (f *fakeChain) addEvent(ev *models.TransferEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeChain) CurrentHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, height uint64) (time.Time, error) {
	return time.Unix(int64(height)*12, 0).UTC(), nil
}

func (f *fakeChain) TransferLogs(_ context.Context, fromHeight, toHeight uint64) ([]*models.TransferEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.logCalls = append(f.logCalls, [2]uint64{fromHeight, toHeight})
	if f.failLogsUntil > 0 {
		f.failLogsUntil--
		return nil, fmt.Errorf("simulated rpc failure")
	}

	var out []*models.TransferEvent
	for _, ev := range f.events {
		if ev.Height >= fromHeight && ev.Height <= toHeight {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeChain) SubscribeNewHeads(context.Context) (<-chan uint64, error) {
	return f.heads, nil
}

func (f *fakeChain) PositionLiquidity(_ context.Context, tokenID string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.liquidityErr != nil {
		return nil, f.liquidityErr
	}
	if l, ok := f.liquidity[tokenID]; ok {
		return l, nil
	}
	return big.NewInt(0), nil
}

// fakeBroadcaster records notifications.
type fakeBroadcaster struct {
	mu    sync.Mutex
	calls []models.Notification
}

func (f *fakeBroadcaster) Notify(_ context.Context, wallet string, action models.ActionKind, pool string, timestamp time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, models.Notification{
		Wallet:    wallet,
		Action:    action,
		Pool:      pool,
		Timestamp: timestamp,
	})
}

func (f *fakeBroadcaster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// countingApplier records applied events and optionally fails.
type countingApplier struct {
	mu      sync.Mutex
	applied []*models.TransferEvent
	failFor map[string]int // txHash -> remaining failures
}

func newCountingApplier() *countingApplier {
	return &countingApplier{failFor: make(map[string]int)}
}

func (a *countingApplier) Apply(_ context.Context, ev *models.TransferEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := a.failFor[ev.TxHash]; n > 0 {
		a.failFor[ev.TxHash] = n - 1
		return fmt.Errorf("simulated apply failure for %s", ev.TxHash)
	}
	a.applied = append(a.applied, ev)
	return nil
}

func (a *countingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

func blockTime(height uint64) time.Time {
	return time.Unix(int64(height)*12, 0).UTC()
}

func transferEvent(from, to, tokenID string, height uint64, tx string) *models.TransferEvent {
	return &models.TransferEvent{
		From:      from,
		To:        to,
		TokenID:   tokenID,
		Height:    height,
		Timestamp: blockTime(height),
		TxHash:    tx,
	}
}
