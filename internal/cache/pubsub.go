package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/classify"
	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// PubSubManager is the broadcast collaborator. Notify is fire-and-forget:
// publish errors are logged and never surface to the pipeline.
type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewPubSubManager(addr string, logger *logrus.Logger) *PubSubManager {
	return NewPubSubManagerFromClient(redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	}), logger)
}

func NewPubSubManagerFromClient(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// Notify publishes the event to the global, per-wallet and per-action
// channels. Subscribers absent at publish time simply miss the message.
func (p *PubSubManager) Notify(ctx context.Context, wallet string, action models.ActionKind, pool string, timestamp time.Time) {
	wallet = classify.NormalizeAddress(wallet)

	n := models.Notification{
		Wallet:    wallet,
		Action:    action,
		Pool:      pool,
		Timestamp: timestamp,
	}
	data, err := json.Marshal(n)
	if err != nil {
		p.logger.WithError(err).Warn("failed to marshal notification")
		return
	}

	channels := []string{
		constants.PubSubChannelAll,
		constants.PubSubChannelWalletPrefix + wallet,
		constants.PubSubChannelActionPrefix + string(action),
	}

	pipe := p.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		p.logger.WithError(err).WithField("wallet", wallet).Warn("broadcast publish failed")
	}
}

// Subscribe consumes notifications from a channel until ctx is cancelled.
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler func(*models.Notification)) error {
	pubsub := p.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	p.logger.WithField("channel", channel).Info("subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				p.logger.WithError(err).Warn("failed to unmarshal notification")
				continue
			}
			handler(&n)
		}
	}
}

// PSubscribe consumes notifications matching a pattern, e.g. "positions:wallet:*".
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler func(*models.Notification)) error {
	pubsub := p.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	p.logger.WithField("pattern", pattern).Info("subscribed to pattern")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n models.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				p.logger.WithError(err).Warn("failed to unmarshal notification")
				continue
			}
			handler(&n)
		}
	}
}

func (p *PubSubManager) Close() error {
	return p.client.Close()
}
