package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/bison360/sync-gateway/internal/config"
	"github.com/bison360/sync-gateway/internal/httpx"
	kafkax "github.com/bison360/sync-gateway/internal/kafka"
	"github.com/bison360/sync-gateway/internal/metrics"
	"github.com/bison360/sync-gateway/internal/postgres"
	"github.com/bison360/sync-gateway/internal/redisx"
	"github.com/bison360/sync-gateway/internal/syncx"
	"github.com/bison360/sync-gateway/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()
	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	cache := redisx.ClientCache{RDB: rdb}

	// Kafka producers
	orderEvents := kafkax.NewProducer(cfg.KafkaBrokers, syncx.TopicOrderSync, 1024, log)
	orderEvents.Start()
	inventoryEvents := kafkax.NewProducer(cfg.KafkaBrokers, syncx.TopicInventorySync, 1024, log)
	inventoryEvents.Start()

	// Repos & dispatcher
	orderRepo := &syncx.OrderRepo{DB: db}
	inventoryRepo := &syncx.InventoryRepo{DB: db}
	reservationRepo := &syncx.ReservationRepo{DB: db}
	alertRepo := &syncx.AlertRepo{DB: db}
	auditRepo := &syncx.AuditRepo{DB: db}

	dispatcher := &webhook.Dispatcher{
		Platform:        "grownby",
		Service:         cfg.ServiceName,
		Orders:          orderRepo,
		Inventory:       inventoryRepo,
		Reservations:    reservationRepo,
		Alerts:          alertRepo,
		Audit:           auditRepo,
		OrderEvents:     orderEvents,
		InventoryEvents: inventoryEvents,
		Log:             log,
	}

	router := httpx.NewRouter()
	wh := &httpx.WebhookHandler{
		Dispatcher: dispatcher,
		Secret:     cfg.GrownByWebhookSecret,
		AuthToken:  cfg.WebhookAuthToken,
		Log:        log,
	}
	wh.Register(router)
	ah := &httpx.AdminHandler{
		Platform:  "grownby",
		Orders:    orderRepo,
		Inventory: inventoryRepo,
		Alerts:    alertRepo,
		Audit:     auditRepo,
		Cache:     cache,
		Log:       log,
	}
	ah.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	orderEvents.Close() // flush & close writers
	inventoryEvents.Close()
	orderEvents.WaitClosed()
	inventoryEvents.WaitClosed()
}
