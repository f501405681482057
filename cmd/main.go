package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/exlabs/exchange-engine/internal/app/api"
	app "github.com/exlabs/exchange-engine/internal/app/engine"
	"github.com/exlabs/exchange-engine/internal/infrastructure/postgresql"
	"github.com/exlabs/exchange-engine/internal/usecase/matching"
	orderreader "github.com/exlabs/exchange-engine/internal/usecase/order-reader"
	"github.com/exlabs/exchange-engine/internal/usecase/position"
	"github.com/exlabs/exchange-engine/internal/usecase/snapshot"
	tradepublisher "github.com/exlabs/exchange-engine/internal/usecase/trade-publisher"
	"github.com/exlabs/exchange-engine/pkg/config"
	"github.com/exlabs/exchange-engine/pkg/logger"
)

var cfg *config.Config
var log *logger.Logger

func init() {
	cfg = &config.Config{}
	if err := config.Load(cfg); err != nil {
		panic(err)
	}

	l, err := logger.NewLogger()
	if err != nil {
		panic(err)
	}
	log = l
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pgClient, err := postgresql.NewClient(ctx, cfg.Postgres)
	if err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_postgres",
		})
		return
	}
	defer pgClient.Close()
	store := postgresql.NewRepository(pgClient)

	rclient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		Username: cfg.Redis.Username,
		DB:       cfg.Redis.DB,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "connect_redis",
		})
		return
	}

	matcher := matching.NewEngine(cfg.Symbols, log)
	ledger := position.NewLedger()
	oReader := orderreader.NewReader(cfg.Kafka, log)
	snapshotStore := snapshot.NewSnapshotStore(rclient, cfg.Snapshot.Key, log)
	tradePublisher := tradepublisher.NewPublisher(cfg.Trades, log)

	options := app.DefaultEngineOptions()
	options.SnapshotInterval = cfg.Snapshot.Interval

	engine := app.NewEngine(
		matcher,
		ledger,
		oReader,
		snapshotStore,
		tradePublisher,
		store,
		log,
		options,
	)

	server := api.NewServer(engine, log)
	engine.SetBroadcaster(server.Hub())

	if err := engine.Start(ctx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "start_engine",
		})
		return
	}

	go func() {
		if err := server.Start(cfg.HTTPAddr); err != nil {
			log.Error(err, logger.Field{
				Key:   "action",
				Value: "start_api",
			})
			sigChan <- syscall.SIGTERM
		}
	}()

	log.Info("exchange engine started", logger.Field{
		Key:   "symbols",
		Value: cfg.Symbols,
	})

	sig := <-sigChan
	log.Info("received shutdown signal", logger.Field{
		Key:   "signal",
		Value: sig.String(),
	})

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "stop_api",
		})
	}

	if err := engine.Stop(shutdownCtx); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "stop_engine",
		})
	}

	if err := rclient.Close(); err != nil {
		log.Error(err, logger.Field{
			Key:   "action",
			Value: "close_redis_client",
		})
	}

	log.Info("exchange engine shutdown complete")
}
