package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/ai"
	"github.com/mzeeshan-dev/position-indexer/internal/cache"
	"github.com/mzeeshan-dev/position-indexer/internal/config"
	"github.com/mzeeshan-dev/position-indexer/internal/flags"
	"github.com/mzeeshan-dev/position-indexer/internal/server"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

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

	flagStore, err := flags.NewStore(rclient)
	if err != nil {
		logger.WithError(err).Fatal("failed to create flags store")
	}

	// Initialize AI agent for natural language queries (optional)
	var agent *ai.Agent
	aiBase := ai.AgentConfig{
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		Model:              "openai/gpt-4.1-mini",
		Logger:             logger,
	}
	if cfg.OpenRouterAPIKey != "" {
		a, err := ai.NewAgent(ctx, aiBase)
		if err != nil {
			logger.WithError(err).Warn("failed to initialize ai agent")
		} else {
			agent = a
			defer func() {
				_ = agent.Close()
			}()
		}
	}

	h := &server.Handlers{
		Store:        store,
		Cache:        activityCache,
		Flags:        flagStore,
		AI:           agent,
		AIBaseConfig: aiBase,
		DevMode:      cfg.DevMode,
		Logger:       logger,
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr,
			DevMode: cfg.DevMode,
			APIKey:  cfg.APIKey,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil {
		// "http: Server closed" is expected during graceful shutdown
		if err.Error() == "http: Server closed" {
			return
		}
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		fmt.Println(err)
	}
}
