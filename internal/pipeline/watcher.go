package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/storage"
)

// Cursor is the last block height whose events are fully applied. It is
// the single piece of shared mutable state between the crawler and the
// watcher, guarded by its own mutex.
type Cursor struct {
	mu     sync.Mutex
	height uint64
}

func NewCursor(height uint64) *Cursor {
	return &Cursor{height: height}
}

func (c *Cursor) Height() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *Cursor) Set(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if height > c.height {
		c.height = height
	}
}

// CursorStore persists the cursor so a restart resumes without a gap.
type CursorStore interface {
	SaveCursor(ctx context.Context, height uint64) error
}

// Watcher consumes new-head notifications and processes (cursor, head]
// through the shared apply path. Ranges are serialized with a mutex so a
// burst of heads never interleaves writes against the shared cursor; a
// failed range leaves the cursor alone, and the next head re-covers it.
type Watcher struct {
	chain   storage.ChainClient
	applier EventApplier
	cursor  *Cursor
	persist CursorStore
	logger  *logrus.Logger

	rangeMu sync.Mutex // single-flight over range processing
}

// WatcherConfig holds configuration for the live block watcher
type WatcherConfig struct {
	Chain   storage.ChainClient
	Applier EventApplier
	Cursor  *Cursor
	Persist CursorStore
	Logger  *logrus.Logger
}

func NewWatcher(cfg WatcherConfig) *Watcher {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Watcher{
		chain:   cfg.Chain,
		applier: cfg.Applier,
		cursor:  cfg.Cursor,
		persist: cfg.Persist,
		logger:  cfg.Logger,
	}
}

// Run subscribes to new heads and processes each until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	heads, err := w.chain.SubscribeNewHeads(ctx)
	if err != nil {
		return fmt.Errorf("subscribe new heads: %w", err)
	}

	w.logger.WithField("cursor", w.cursor.Height()).Info("live watcher started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				return fmt.Errorf("head subscription closed")
			}
			w.ProcessHead(ctx, head)
		}
	}
}

// ProcessHead applies the half-open range (cursor, head] and advances the
// cursor only when every event in the range applied cleanly.
func (w *Watcher) ProcessHead(ctx context.Context, head uint64) {
	w.rangeMu.Lock()
	defer w.rangeMu.Unlock()

	cur := w.cursor.Height()
	if head <= cur {
		return
	}

	events, err := w.chain.TransferLogs(ctx, cur+1, head)
	if err != nil {
		w.logger.WithError(err).WithFields(logrus.Fields{
			"from": cur + 1,
			"to":   head,
		}).Warn("range fetch failed, will re-cover on next head")
		return
	}

	for _, ev := range events {
		if err := w.applier.Apply(ctx, ev); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"from": cur + 1,
				"to":   head,
				"tx":   ev.TxHash,
			}).Warn("range apply failed, will re-cover on next head")
			return
		}
	}

	w.cursor.Set(head)

	if w.persist != nil {
		if err := w.persist.SaveCursor(ctx, head); err != nil {
			w.logger.WithError(err).WithField("height", head).Warn("cursor persist failed")
		}
	}

	if len(events) > 0 {
		w.logger.WithFields(logrus.Fields{
			"from":   cur + 1,
			"to":     head,
			"events": len(events),
		}).Info("range applied")
	}
}
