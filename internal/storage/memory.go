package storage

import (
	"context"
	"sync"

	"github.com/mzeeshan-dev/position-indexer/internal/classify"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// MemoryStore is an in-process AggregateStore with the same conflict
// resolution rules as the durable store. It backs the pipeline's unit
// tests and is handy for dry runs against a node without ClickHouse.
type MemoryStore struct {
	mu        sync.RWMutex
	wallets   map[string]*models.Wallet
	positions map[string]*models.Position
	events    map[string]*models.RawEvent
	timeline  map[string][]*models.TimelineEntry
	cursor    uint64
	hasCursor bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		wallets:   make(map[string]*models.Wallet),
		positions: make(map[string]*models.Position),
		events:    make(map[string]*models.RawEvent),
		timeline:  make(map[string][]*models.TimelineEntry),
	}
}

func (m *MemoryStore) UpsertWallet(_ context.Context, mut *models.WalletMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := classify.NormalizeAddress(mut.Address)
	w, ok := m.wallets[addr]
	if !ok {
		w = &models.Wallet{Address: addr}
		m.wallets[addr] = w
	}

	w.TotalPositions = applyDelta(w.TotalPositions, mut.TotalDelta)
	w.ActivePositions = applyDelta(w.ActivePositions, mut.ActiveDelta)

	if mut.SwapCount != nil {
		w.SwapCount = *mut.SwapCount
	}
	if mut.Volume != nil {
		w.Volume = *mut.Volume
	}
	if mut.Fees != nil {
		w.Fees = *mut.Fees
	}
	if mut.PoolCount != nil {
		w.PoolCount = *mut.PoolCount
	}

	// The activity window only widens, regardless of arrival order.
	if !mut.SeenAt.IsZero() {
		if w.FirstActionAt.IsZero() || mut.SeenAt.Before(w.FirstActionAt) {
			w.FirstActionAt = mut.SeenAt
		}
		if mut.SeenAt.After(w.LastActionAt) {
			w.LastActionAt = mut.SeenAt
		}
	}

	return nil
}

func (m *MemoryStore) UpsertPosition(_ context.Context, mut *models.PositionMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.positions[mut.TokenID]
	if !ok {
		p = &models.Position{TokenID: mut.TokenID}
		m.positions[mut.TokenID] = p
	}

	if mut.Owner != nil {
		p.Owner = classify.NormalizeAddress(*mut.Owner)
	}
	if mut.Pool != nil {
		p.Pool = *mut.Pool
	}
	if mut.Liquidity != nil {
		p.Liquidity = *mut.Liquidity
	}
	if mut.TickLower != nil {
		p.TickLower = *mut.TickLower
	}
	if mut.TickUpper != nil {
		p.TickUpper = *mut.TickUpper
	}
	if mut.Active != nil {
		p.Active = *mut.Active
	}
	if mut.Subscribed != nil {
		p.Subscribed = *mut.Subscribed
	}
	if !mut.SeenAt.IsZero() && mut.SeenAt.After(p.UpdatedAt) {
		p.UpdatedAt = mut.SeenAt
	}

	return nil
}

func (m *MemoryStore) InsertRawEvent(_ context.Context, ev *models.RawEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.events[ev.TxHash]; dup {
		return false, nil
	}
	cp := *ev
	m.events[ev.TxHash] = &cp
	return true, nil
}

func (m *MemoryStore) InsertTimelineEntry(_ context.Context, entry *models.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr := classify.NormalizeAddress(entry.Wallet)
	for _, e := range m.timeline[addr] {
		if e.TxHash == entry.TxHash && e.Action == entry.Action {
			return nil
		}
	}
	cp := *entry
	cp.Wallet = addr
	m.timeline[addr] = append(m.timeline[addr], &cp)
	return nil
}

func (m *MemoryStore) HasRawEvent(_ context.Context, txHash string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.events[txHash]
	return ok, nil
}

func (m *MemoryStore) GetWallet(_ context.Context, address string) (*models.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.wallets[classify.NormalizeAddress(address)]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *MemoryStore) GetPosition(_ context.Context, tokenID string) (*models.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[tokenID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetTimeline(_ context.Context, address string, limit int) ([]*models.TimelineEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.timeline[classify.NormalizeAddress(address)]
	if limit <= 0 || limit > len(entries) {
		limit = len(entries)
	}

	// Newest first.
	out := make([]*models.TimelineEntry, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) LoadCursor(_ context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, m.hasCursor, nil
}

func (m *MemoryStore) SaveCursor(_ context.Context, height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursor = height
	m.hasCursor = true
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }

func applyDelta(v uint64, delta int64) uint64 {
	if delta >= 0 {
		return v + uint64(delta)
	}
	dec := uint64(-delta)
	if dec >= v {
		return 0 // counters never go negative
	}
	return v - dec
}
