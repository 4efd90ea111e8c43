package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/classify"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
	"github.com/mzeeshan-dev/position-indexer/internal/storage"
)

// EventApplier folds one classified event into the aggregate state.
type EventApplier interface {
	Apply(ctx context.Context, ev *models.TransferEvent) error
}

// DedupCache is an optional fast-path duplicate check in front of the
// store's authoritative transaction-hash key.
type DedupCache interface {
	MarkSeen(ctx context.Context, txHash string) error
	WasSeen(ctx context.Context, txHash string) (bool, error)
	AddRecentEvent(ctx context.Context, ev *models.RawEvent) error
}

// Mutator issues the per-event ordered upsert sequence to the aggregate
// store and triggers the broadcast collaborator. Every write is keyed by
// an immutable identifier, so replaying an event is a no-op.
type Mutator struct {
	store     storage.AggregateStore
	chain     storage.ChainClient
	broadcast storage.Broadcaster
	cache     DedupCache // may be nil
	logger    *logrus.Logger
}

// MutatorConfig holds dependencies for the state mutator
type MutatorConfig struct {
	Store     storage.AggregateStore
	Chain     storage.ChainClient
	Broadcast storage.Broadcaster
	Cache     DedupCache
	Logger    *logrus.Logger
}

func NewMutator(cfg MutatorConfig) *Mutator {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Mutator{
		store:     cfg.Store,
		chain:     cfg.Chain,
		broadcast: cfg.Broadcast,
		cache:     cfg.Cache,
		logger:    cfg.Logger,
	}
}

// Apply classifies ev and issues its mutation sequence. Malformed events
// are discarded permanently; duplicate transactions are no-ops.
func (m *Mutator) Apply(ctx context.Context, ev *models.TransferEvent) error {
	action, err := classify.Classify(ev)
	if err != nil {
		if errors.Is(err, classify.ErrMissingTokenID) || errors.Is(err, classify.ErrNullToNull) {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"tx":     ev.TxHash,
				"height": ev.Height,
			}).Warn("discarding malformed event")
			return nil
		}
		return err
	}

	seen, err := m.alreadyProcessed(ctx, ev.TxHash)
	if err != nil {
		return err
	}
	if seen {
		m.logger.WithField("tx", ev.TxHash).Debug("skipping duplicate event")
		return nil
	}

	from := classify.NormalizeAddress(ev.From)
	to := classify.NormalizeAddress(ev.To)

	var wallet string
	switch action {
	case models.ActionMint:
		wallet = to
		err = m.applyMint(ctx, ev, to)
	case models.ActionBurn:
		wallet = from
		err = m.applyBurn(ctx, ev, from)
	case models.ActionTransfer:
		wallet = to
		err = m.applyTransfer(ctx, ev, from, to)
	}
	if err != nil {
		return fmt.Errorf("apply %s for token %s: %w", action, ev.TokenID, err)
	}

	pool := m.positionPool(ctx, ev.TokenID)

	raw := &models.RawEvent{
		TxHash:    ev.TxHash,
		Action:    action,
		From:      from,
		To:        to,
		TokenID:   ev.TokenID,
		Height:    ev.Height,
		Timestamp: ev.Timestamp,
	}
	if _, err := m.store.InsertRawEvent(ctx, raw); err != nil {
		return fmt.Errorf("record raw event: %w", err)
	}

	if err := m.appendTimeline(ctx, raw, pool, action, from, to); err != nil {
		return err
	}

	if m.cache != nil {
		if err := m.cache.MarkSeen(ctx, ev.TxHash); err != nil {
			m.logger.WithError(err).Debug("dedup cache write failed")
		}
		if err := m.cache.AddRecentEvent(ctx, raw); err != nil {
			m.logger.WithError(err).Debug("recent-activity cache write failed")
		}
	}

	// Fire-and-forget; the broadcaster never fails the pipeline.
	m.broadcast.Notify(ctx, wallet, action, pool, ev.Timestamp)

	m.logger.WithFields(logrus.Fields{
		"action": action,
		"token":  ev.TokenID,
		"wallet": wallet,
		"height": ev.Height,
	}).Info("event applied")

	return nil
}

func (m *Mutator) applyMint(ctx context.Context, ev *models.TransferEvent, to string) error {
	err := m.store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     to,
		SeenAt:      ev.Timestamp,
		TotalDelta:  1,
		ActiveDelta: 1,
	})
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}

	active := true
	mut := &models.PositionMutation{
		TokenID: ev.TokenID,
		SeenAt:  ev.Timestamp,
		Owner:   &to,
		Active:  &active,
	}

	// Best-effort enrichment: a failed liquidity read stores the position
	// without it rather than failing the mint.
	if liquidity, err := m.chain.PositionLiquidity(ctx, ev.TokenID); err != nil {
		m.logger.WithError(err).WithField("token", ev.TokenID).Warn("liquidity lookup failed, storing position without it")
	} else {
		s := liquidity.String()
		mut.Liquidity = &s
	}

	if err := m.store.UpsertPosition(ctx, mut); err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

func (m *Mutator) applyBurn(ctx context.Context, ev *models.TransferEvent, from string) error {
	active := false
	err := m.store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID: ev.TokenID,
		SeenAt:  ev.Timestamp,
		Active:  &active,
	})
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	// The active counter floors at zero inside the store, so a burn with
	// no recorded mint cannot push a wallet negative.
	err = m.store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     from,
		SeenAt:      ev.Timestamp,
		ActiveDelta: -1,
	})
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

func (m *Mutator) applyTransfer(ctx context.Context, ev *models.TransferEvent, from, to string) error {
	active := true
	err := m.store.UpsertPosition(ctx, &models.PositionMutation{
		TokenID: ev.TokenID,
		SeenAt:  ev.Timestamp,
		Owner:   &to,
		Active:  &active,
	})
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	// Both sides of the transfer are accounted: the receiver gains an
	// active position, the previous owner loses one.
	err = m.store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     to,
		SeenAt:      ev.Timestamp,
		TotalDelta:  1,
		ActiveDelta: 1,
	})
	if err != nil {
		return fmt.Errorf("upsert receiver wallet: %w", err)
	}

	err = m.store.UpsertWallet(ctx, &models.WalletMutation{
		Address:     from,
		SeenAt:      ev.Timestamp,
		ActiveDelta: -1,
	})
	if err != nil {
		return fmt.Errorf("upsert sender wallet: %w", err)
	}
	return nil
}

func (m *Mutator) appendTimeline(ctx context.Context, raw *models.RawEvent, pool string, action models.ActionKind, from, to string) error {
	wallets := []string{}
	switch action {
	case models.ActionMint:
		wallets = append(wallets, to)
	case models.ActionBurn:
		wallets = append(wallets, from)
	case models.ActionTransfer:
		wallets = append(wallets, to, from)
	}

	for _, w := range wallets {
		entry := &models.TimelineEntry{
			Wallet:    w,
			Action:    action,
			Pool:      pool,
			TxHash:    raw.TxHash,
			Height:    raw.Height,
			Timestamp: raw.Timestamp,
		}
		if err := m.store.InsertTimelineEntry(ctx, entry); err != nil {
			return fmt.Errorf("append timeline for %s: %w", w, err)
		}
	}
	return nil
}

func (m *Mutator) alreadyProcessed(ctx context.Context, txHash string) (bool, error) {
	if m.cache != nil {
		if seen, err := m.cache.WasSeen(ctx, txHash); err == nil && seen {
			return true, nil
		}
	}
	seen, err := m.store.HasRawEvent(ctx, txHash)
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return seen, nil
}

// positionPool returns the stored pool id for a token, empty when unknown.
func (m *Mutator) positionPool(ctx context.Context, tokenID string) string {
	p, err := m.store.GetPosition(ctx, tokenID)
	if err != nil || p == nil {
		return ""
	}
	return p.Pool
}
