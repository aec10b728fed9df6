package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-house-booking/internal/booking"
	"github.com/ariefcatur/go-house-booking/internal/config"
	"github.com/ariefcatur/go-house-booking/internal/httpx"
	kafkax "github.com/ariefcatur/go-house-booking/internal/kafka"
	"github.com/ariefcatur/go-house-booking/internal/media"
	"github.com/ariefcatur/go-house-booking/internal/redisx"
	"github.com/ariefcatur/go-house-booking/internal/tbank"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
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
	cache := &redisx.Cache{RDB: rdb}

	// Kafka producer
	prod := kafkax.NewProducer(cfg.KafkaBrokers, booking.TopicBookingEvents, 1024, log)
	prod.Start()

	svc := &booking.Service{
		Store:    store,
		Events:   prod,
		Dedup:    &redisx.Dedup{RDB: rdb, Scope: "tbank"},
		Log:      log,
		TBank:    cfg.TBank,
		HoldTTL:  cfg.HoldTTL,
		Producer: cfg.ServiceName,
		OnChange: func(ctx context.Context, b booking.Booking) {
			if err := cache.SetJSON(ctx, redisx.BookingStatusKey(b.ID), b.StatusView(), redisx.TTLStatusCache); err != nil {
				log.WithError(err).WithField("booking_id", b.ID).Debug("status cache write failed")
			}
		},
	}
	if cfg.TBank.Complete() {
		svc.Gateway = tbank.NewClient(cfg.TBank.TerminalKey, cfg.TBank.Password, cfg.TBank.InitURL)
	} else {
		log.Warn("T-Bank credentials incomplete, payment init will fail")
	}

	images, err := mediaStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("media store")
	}

	// Router & handlers
	v := validator.New()
	router := httpx.NewRouter(log)
	(&httpx.BookingHandler{Svc: svc, Cache: cache, Log: log, Validate: v}).Register(router)
	(&httpx.PaymentHandler{Svc: svc, Log: log}).Register(router)
	(&httpx.AdminHandler{
		Svc:      svc,
		Cache:    cache,
		Media:    images,
		Log:      log,
		Validate: v,
		User:     cfg.AdminUser,
		Password: cfg.AdminPassword,
	}).Register(router)
	if _, ok := images.(*media.Disk); ok {
		httpx.FileServer(router, cfg.UploadURLPrefix, http.Dir(cfg.UploadDir))
	}
	if cfg.AdminPassword == "" {
		log.Warn("ADMIN_PASSWORD not set, admin API disabled")
	}

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}

func mediaStore(cfg config.Config) (media.Store, error) {
	if cfg.CloudinaryURL != "" {
		return media.NewCloudinary(cfg.CloudinaryURL, "houses")
	}
	return &media.Disk{Dir: cfg.UploadDir, URLPrefix: cfg.UploadURLPrefix}, nil
}
