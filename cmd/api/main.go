package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agrostore/order-core/internal/config"
	"github.com/agrostore/order-core/internal/httpx"
	"github.com/agrostore/order-core/internal/ids"
	kafkax "github.com/agrostore/order-core/internal/kafka"
	"github.com/agrostore/order-core/internal/logging"
	"github.com/agrostore/order-core/internal/memstore"
	"github.com/agrostore/order-core/internal/metrics"
	"github.com/agrostore/order-core/internal/orders"
	"github.com/agrostore/order-core/internal/postgres"
	"github.com/agrostore/order-core/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New("agro")

	// Store
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, cache lookups will miss", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024, log)
	prod.Start(ctx)

	svc := &orders.Service{
		Store:       store,
		IDs:         ids.New(cfg.IDStrategy, cfg.IDMaxAttempts, m),
		Publisher:   kafkax.NewOrderEvents(prod, cfg.ServiceName),
		Metrics:     m,
		TxTimeout:   cfg.OrderTxTimeout,
		IDAttempts:  cfg.IDMaxAttempts,
		PricePolicy: orders.PricePolicy(cfg.PricePolicy),
	}

	router := httpx.NewRouter(log, m)
	oh := &httpx.OrdersHandler{
		Orders: svc,
		Cache:  redisx.NewOrderCache(rdb),
	}
	oh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		log.Info("http listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.Store),
			zap.String("id_strategy", cfg.IDStrategy),
			zap.String("price_policy", cfg.PricePolicy))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	prod.Close()      // tutup inbox -> flush & close writer
	prod.WaitClosed() // drain
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (orders.Store, func(), error) {
	if cfg.Store == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), func() {}, nil
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
	}
	return &postgres.Store{DB: db}, db.Close, nil
}
