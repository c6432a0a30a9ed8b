package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/train-ticket-booking/internal/config"
	"github.com/iliyamo/train-ticket-booking/internal/database"
	"github.com/iliyamo/train-ticket-booking/internal/handler"
	"github.com/iliyamo/train-ticket-booking/internal/idempotency"
	"github.com/iliyamo/train-ticket-booking/internal/logger"
	"github.com/iliyamo/train-ticket-booking/internal/middleware"
	"github.com/iliyamo/train-ticket-booking/internal/queue"
	"github.com/iliyamo/train-ticket-booking/internal/repository"
	"github.com/iliyamo/train-ticket-booking/internal/router"
	"github.com/iliyamo/train-ticket-booking/internal/service"
)

func main() {
	cfg := config.Load()
	zl, err := logger.New("train-ticket-booking", cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("mysql connect failed", zap.Error(err))
	}
	defer db.Close()

	cacheCfg := config.LoadCacheConfig()
	rlCfg := config.LoadRateLimitConfig()
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		zl.Warn("redis unavailable; cache, rate limit and idempotency keys disabled")
	} else {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	stations := repository.NewStationRepo(db)
	trains := repository.NewTrainRepo(db)
	schedules := repository.NewScheduleRepo(db)
	bookings := repository.NewBookingRepo(db)
	store := repository.NewStore(db, schedules, bookings)

	// nil stores must stay untyped nil inside the service interfaces
	var idem service.IdempotencyStore
	if s := idempotency.NewRedisStore(rdb, "idem", cfg.IdempotencyTTL); s != nil {
		idem = s
	}
	var pub service.EventPublisher
	if cfg.EventsEnabled {
		pub = queue.NewPublisher(cfg.RabbitURL, zl)
	}
	bookingSvc := service.NewBookingService(store, idem, pub, zl, service.Options{
		StoreTimeout: cfg.StoreTimeout,
		CodeAttempts: cfg.BookingCodeAttempts,
	})

	bumper := queue.GenerationBumper{Client: rdb, Key: cacheCfg.GenerationKey}
	if cfg.EventsEnabled {
		go queue.NewConsumer(cfg.RabbitURL, bumper, zl).Run(ctx)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(zl))

	router.RegisterRoutes(e, router.Handlers{
		Health:    &handler.HealthHandler{DB: db},
		Auth:      handler.NewAuthHandler(cfg, users, tokens),
		Stations:  &handler.StationHandler{Stations: stations},
		Trains:    &handler.TrainHandler{Trains: trains},
		Schedules: &handler.ScheduleHandler{Schedules: schedules, Cache: bumper},
		Bookings:  &handler.BookingHandler{Bookings: bookingSvc},
	}, router.Deps{
		JWTSecret: cfg.JWTSecret,
		Cache:     cacheCfg,
		RateLimit: rlCfg,
		Redis:     rdb,
		Log:       zl,
	})

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}
