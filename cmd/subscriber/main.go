// ============================================================================
// cmd/subscriber/main.go - Example Subscriber (Consumer)
// ============================================================================
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/cache"
	"github.com/mzeeshan-dev/position-indexer/internal/config"
	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	cfg := config.Load()
	pubsub := cache.NewPubSubManager(cfg.RedisAddr, logger)
	defer pubsub.Close()

	logger.Info("starting position activity subscriber")

	// Subscribe to everything
	go pubsub.Subscribe(ctx, constants.PubSubChannelAll, func(n *models.Notification) {
		logger.WithFields(logrus.Fields{
			"wallet": n.Wallet,
			"action": n.Action,
			"pool":   n.Pool,
			"time":   n.Timestamp,
		}).Info("activity")
	})

	// Subscribe to mints only
	go pubsub.Subscribe(ctx, constants.PubSubChannelActionPrefix+string(models.ActionMint), func(n *models.Notification) {
		logger.WithField("wallet", n.Wallet).Info("new position minted")
	})

	// Subscribe to every per-wallet channel
	go pubsub.PSubscribe(ctx, constants.PubSubChannelWalletPrefix+"*", func(n *models.Notification) {
		logger.WithFields(logrus.Fields{
			"wallet": n.Wallet,
			"action": n.Action,
		}).Debug("wallet channel match")
	})

	logger.Info("subscriber running, press Ctrl+C to stop")

	<-sigChan
	logger.Info("shutting down subscriber")
}
