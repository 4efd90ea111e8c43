package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/storage"
)

// Controller owns the pipeline lifecycle: the shared cursor, the crawler
// and watcher goroutines, and the cooperative stop signal both observe
// between discrete units of work. Start is idempotent; Stop never cancels
// an in-flight store write, it waits for the current unit to finish.
type Controller struct {
	chain     storage.ChainClient
	store     storage.AggregateStore
	applier   EventApplier
	chunkSize uint64
	deploy    uint64
	live      bool
	backfill  bool
	logger    *logrus.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cursor *Cursor
}

// ControllerConfig wires the pipeline's collaborators
type ControllerConfig struct {
	Chain          storage.ChainClient
	Store          storage.AggregateStore
	Applier        EventApplier
	ChunkSize      uint64
	DeployBlock    uint64
	EnableLive     bool
	EnableBackfill bool
	Logger         *logrus.Logger
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Chain == nil || cfg.Store == nil || cfg.Applier == nil {
		return nil, fmt.Errorf("chain client, store and applier are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Controller{
		chain:     cfg.Chain,
		store:     cfg.Store,
		applier:   cfg.Applier,
		chunkSize: cfg.ChunkSize,
		deploy:    cfg.DeployBlock,
		live:      cfg.EnableLive,
		backfill:  cfg.EnableBackfill,
		logger:    cfg.Logger,
	}, nil
}

// Start launches the enabled drivers. Calling Start on a running pipeline
// is a no-op.
func (p *Controller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Debug("pipeline already running")
		return nil
	}

	cursor, err := p.initialCursor(ctx)
	if err != nil {
		return err
	}
	p.cursor = NewCursor(cursor)

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	if p.backfill {
		crawler := NewCrawler(CrawlerConfig{
			Chain:     p.chain,
			Applier:   p.applier,
			ChunkSize: p.chunkSize,
			Logger:    p.logger,
		})
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := crawler.Run(runCtx, p.deploy); err != nil && runCtx.Err() == nil {
				p.logger.WithError(err).Error("backfill crawler exited")
			}
		}()
	}

	if p.live {
		watcher := NewWatcher(WatcherConfig{
			Chain:   p.chain,
			Applier: p.applier,
			Cursor:  p.cursor,
			Persist: p.store,
			Logger:  p.logger,
		})
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			if err := watcher.Run(runCtx); err != nil && runCtx.Err() == nil {
				p.logger.WithError(err).Error("live watcher exited")
			}
		}()
	}

	p.logger.WithFields(logrus.Fields{
		"cursor":   cursor,
		"live":     p.live,
		"backfill": p.backfill,
	}).Info("pipeline started")

	return nil
}

// Stop raises the cooperative stop signal and waits for in-flight units
// of work to observe it.
func (p *Controller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("pipeline stopped")
}

// Running reports whether the pipeline is active.
func (p *Controller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Cursor returns the last fully processed height, zero before Start.
func (p *Controller) Cursor() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cursor == nil {
		return 0
	}
	return p.cursor.Height()
}

// initialCursor resumes from the durable cursor when one exists, so a
// restart re-covers the span missed while stopped instead of gapping.
// A fresh deployment starts the watcher from the current head.
func (p *Controller) initialCursor(ctx context.Context) (uint64, error) {
	if stored, ok, err := p.store.LoadCursor(ctx); err != nil {
		return 0, fmt.Errorf("load cursor: %w", err)
	} else if ok {
		p.logger.WithField("height", stored).Info("resuming from stored cursor")
		return stored, nil
	}

	head, err := p.chain.CurrentHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("resolve chain head: %w", err)
	}
	return head, nil
}
