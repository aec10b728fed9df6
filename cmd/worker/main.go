package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	"github.com/ariefcatur/go-house-booking/internal/config"
	kafkax "github.com/ariefcatur/go-house-booking/internal/kafka"
	"github.com/ariefcatur/go-house-booking/internal/projector"
	"github.com/ariefcatur/go-house-booking/internal/redisx"
	"github.com/ariefcatur/go-house-booking/internal/sweeper"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-worker"
	log := cfg.NewLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	store, closeStore, err := booking.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.WithError(err).Fatal("store")
	}
	defer closeStore()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Expired holds are published like any other cancellation.
	prod := kafkax.NewProducer(cfg.KafkaBrokers, booking.TopicBookingEvents, 256, log)
	prod.Start()

	cache := &redisx.Cache{RDB: rdb}
	svc := &booking.Service{
		Store:    store,
		Events:   prod,
		Log:      log,
		HoldTTL:  cfg.HoldTTL,
		Producer: cfg.ServiceName,
	}
	sw := &sweeper.Sweeper{Expirer: svc, Interval: cfg.SweepInterval, Log: log}
	proj := &projector.Service{
		Cache: cache,
		Dedup: &redisx.Dedup{RDB: rdb, Scope: "projector"},
		Log:   log,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.WorkerGroup, booking.TopicBookingEvents, cfg.WorkerConcurrency, log)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sw.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		log.WithFields(logrus.Fields{
			"group":   cfg.WorkerGroup,
			"topic":   booking.TopicBookingEvents,
			"workers": cfg.WorkerConcurrency,
		}).Info("projector consumer started")
		if err := cons.Start(ctx, proj.HandleBookingEvent); err != nil {
			log.WithError(err).Error("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down worker")
	cancel()
	wg.Wait()
	prod.Close()
	prod.WaitClosed()
}
