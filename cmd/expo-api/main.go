// README: Entry point; loads config, wires services, starts HTTP server and background loops.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"expo/internal/config"
	httptransport "expo/internal/http"
	"expo/internal/infra"
	"expo/internal/latch"
	"expo/internal/metrics"
	"expo/internal/modules/buffer"
	"expo/internal/modules/item"
	"expo/internal/modules/order"
	"expo/internal/modules/oven"
	"expo/internal/notify"
	"expo/internal/realtime"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		log.Fatalf("settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)

	collector := metrics.NewCollector()
	lt := latch.NewRedisLatch(redisClient)
	publisher := realtime.NewRedisPublisher(redisClient)

	var notifier notify.Notifier = notify.Nop{}
	var closer notify.Closer = notify.Nop{}
	if cfg.Notify.URL != "" {
		client := notify.NewHTTPClient(cfg.Notify.URL, cfg.Notify.Timeout)
		notifier = client
		closer = client
	}

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, notifier, closer, lt, publisher, collector, settings)
	defer orderSvc.Stop()

	itemStore := item.NewStore(dbPool)
	itemSvc := item.NewService(itemStore, orderSvc, publisher, collector, settings.Oven.DefaultSeconds)

	bufferSvc := buffer.NewService(orderStore, notifier, lt, publisher, collector, settings.Buffer)
	ovenSvc := oven.NewService(itemSvc, collector, settings.Oven)

	hub := realtime.NewHub(redisClient)

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Order:  orderSvc,
		Item:   itemSvc,
		Buffer: bufferSvc,
		Oven:   ovenSvc,
		Hub:    hub,
		Fifo:   settings.Fifo,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go hub.Run(ctx)
	go bufferSvc.Run(ctx)
	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	log.Printf("listening on %s", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}
