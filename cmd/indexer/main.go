// ============================================================================
// cmd/indexer/main.go - Main Indexer Service
// ============================================================================
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/cache"
	"github.com/mzeeshan-dev/position-indexer/internal/config"
	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/flags"
	"github.com/mzeeshan-dev/position-indexer/internal/pipeline"
	"github.com/mzeeshan-dev/position-indexer/internal/rpc"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	// load .env BEFORE anything reads os.Getenv
	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Redis backs the broadcast channels, the recent-activity cache and
	// the runtime feature flags.
	rclient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   0,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	store, err := cache.NewClickHouseStore(cache.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to aggregate store")
	}
	defer store.Close()

	activityCache := cache.NewRedisCacheFromClient(rclient, logger)
	broadcast := cache.NewPubSubManagerFromClient(rclient, logger)

	chain := rpc.NewClient(rpc.ClientConfig{
		BaseURL:      cfg.RPCUrl,
		WSURL:        cfg.WSUrl,
		Contract:     cfg.ContractAddress,
		Timeout:      cfg.HTTPTimeout,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		Logger:       logger,
	})

	// Runtime flags can veto the env toggles without a redeploy.
	flagStore, err := flags.NewStore(rclient)
	if err != nil {
		logger.WithError(err).Fatal("failed to create flags store")
	}
	enableLive := cfg.EnableLive && flagStore.IsEnabled(ctx, constants.FlagLiveEnabled, true)
	enableBackfill := cfg.EnableBackfill && flagStore.IsEnabled(ctx, constants.FlagBackfillEnabled, true)

	mutator := pipeline.NewMutator(pipeline.MutatorConfig{
		Store:     store,
		Chain:     chain,
		Broadcast: broadcast,
		Cache:     activityCache,
		Logger:    logger,
	})

	controller, err := pipeline.NewController(pipeline.ControllerConfig{
		Chain:          chain,
		Store:          store,
		Applier:        mutator,
		ChunkSize:      cfg.ChunkSize,
		DeployBlock:    cfg.DeployBlock,
		EnableLive:     enableLive,
		EnableBackfill: enableBackfill,
		Logger:         logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create pipeline")
	}

	logger.WithFields(logrus.Fields{
		"contract": cfg.ContractAddress,
		"deploy":   cfg.DeployBlock,
		"live":     enableLive,
		"backfill": enableBackfill,
	}).Info("starting position indexer")

	if err := controller.Start(ctx); err != nil {
		logger.WithError(err).Fatal("failed to start pipeline")
	}

	<-sigCh
	logger.Info("shutting down")
	controller.Stop()
	cancel()
}
