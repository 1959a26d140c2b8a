package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/agrostore/order-core/internal/config"
	kafkax "github.com/agrostore/order-core/internal/kafka"
	"github.com/agrostore/order-core/internal/logging"
	"github.com/agrostore/order-core/internal/notifier"
	"github.com/agrostore/order-core/internal/orders"
	"github.com/agrostore/order-core/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.MustNewLogger(cfg.ServiceName+"-notifier", cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notifier.Service{Redis: rdb, Log: log}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderCreated, cfg.NotifierWorkers, log)
	log.Info("notifier consumer started",
		zap.String("group", cfg.NotifierGroup),
		zap.String("topic", orders.TopicOrderCreated),
		zap.Int("workers", cfg.NotifierWorkers))

	// Start returns after the workers drained, once ctx is cancelled by a signal.
	if err := cons.Start(ctx, svc.HandleOrderCreated); err != nil {
		log.Error("consumer exit", zap.Error(err))
		os.Exit(1)
	}
	log.Info("notifier stopped")
}
