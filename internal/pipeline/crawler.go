package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/storage"
)

// Crawler walks a fixed historical range to the chain head in bounded
// windows, feeding each window through the shared apply path. A failed
// window is retried with backoff; exhausted retries are reported at error
// level before moving on, so lost history is never silent.
type Crawler struct {
	chain        storage.ChainClient
	applier      EventApplier
	chunkSize    uint64
	maxRetries   int
	retryBackoff time.Duration
	logger       *logrus.Logger

	mu      sync.Mutex
	running bool
}

// CrawlerConfig holds configuration for the historical crawler
type CrawlerConfig struct {
	Chain        storage.ChainClient
	Applier      EventApplier
	ChunkSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *logrus.Logger
}

func NewCrawler(cfg CrawlerConfig) *Crawler {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = constants.DefaultChunkSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = constants.ChunkMaxRetries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = constants.ChunkRetryBackoff
	}
	return &Crawler{
		chain:        cfg.Chain,
		applier:      cfg.Applier,
		chunkSize:    cfg.ChunkSize,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
	}
}

// Run crawls [fromHeight, head-at-start] in chunkSize windows. It returns
// when the range is exhausted or ctx is cancelled between chunks.
func (c *Crawler) Run(ctx context.Context, fromHeight uint64) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("crawler already running")
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	head, err := c.chain.CurrentHeight(ctx)
	if err != nil {
		return fmt.Errorf("resolve chain head: %w", err)
	}
	if fromHeight > head {
		c.logger.WithFields(logrus.Fields{"from": fromHeight, "head": head}).Info("nothing to backfill")
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"from":  fromHeight,
		"head":  head,
		"chunk": c.chunkSize,
	}).Info("starting historical backfill")

	total := head - fromHeight + 1
	nextMilestone := uint64(constants.ProgressStepPercent)

	for start := fromHeight; start <= head; {
		select {
		case <-ctx.Done():
			c.logger.WithField("next", start).Info("backfill stopped")
			return ctx.Err()
		default:
		}

		end := start + c.chunkSize - 1
		if end > head {
			end = head
		}

		if err := c.processChunk(ctx, start, end); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Alert loudly: this window of history was not applied.
			c.logger.WithError(err).WithFields(logrus.Fields{
				"from": start,
				"to":   end,
			}).Error("chunk failed after retries, range not applied")
		}

		start = end + 1

		// Coarse progress reporting keeps long backfills readable.
		done := start - fromHeight
		for pct := done * 100 / total; nextMilestone <= pct && nextMilestone <= 100; nextMilestone += constants.ProgressStepPercent {
			c.logger.WithFields(logrus.Fields{
				"progress": fmt.Sprintf("%d%%", nextMilestone),
				"height":   start - 1,
			}).Info("backfill progress")
		}
	}

	c.logger.WithField("head", head).Info("historical backfill complete")
	return nil
}

// processChunk fetches and applies one window, retrying with exponential
// backoff on failure.
func (c *Crawler) processChunk(ctx context.Context, fromHeight, toHeight uint64) error {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"from":    fromHeight,
				"to":      toHeight,
			}).Warn("retrying chunk")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if lastErr = c.applyRange(ctx, fromHeight, toHeight); lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("chunk [%d,%d] failed: %w", fromHeight, toHeight, lastErr)
}

func (c *Crawler) applyRange(ctx context.Context, fromHeight, toHeight uint64) error {
	events, err := c.chain.TransferLogs(ctx, fromHeight, toHeight)
	if err != nil {
		return fmt.Errorf("fetch logs: %w", err)
	}

	// Events arrive ordered by (height, log index); later events in the
	// range can depend on earlier ones for the same token.
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.applier.Apply(ctx, ev); err != nil {
			return fmt.Errorf("apply event %s: %w", ev.TxHash, err)
		}
	}
	return nil
}

// Running reports whether a crawl is in progress.
func (c *Crawler) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
