package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/uitgo/trip-service/internal/api/handlers"
	"github.com/uitgo/trip-service/internal/api/routes"
	"github.com/uitgo/trip-service/internal/config"
	"github.com/uitgo/trip-service/internal/domain/vehicle"
	"github.com/uitgo/trip-service/internal/events"
	"github.com/uitgo/trip-service/internal/service/geo"
	"github.com/uitgo/trip-service/internal/service/lifecycle"
	"github.com/uitgo/trip-service/internal/service/pricing"
	"github.com/uitgo/trip-service/internal/service/stats"
	"github.com/uitgo/trip-service/pkg/cache"
	"github.com/uitgo/trip-service/pkg/logger"
	"github.com/uitgo/trip-service/pkg/monitoring"
	"github.com/uitgo/trip-service/pkg/websocket"
)

const poolStatsInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting UIT-Go trip service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
		logger.String("store", cfg.Store.Driver),
	)

	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
		LogLevel:   cfg.NewRelic.LogLevel,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
	} else if nrApp.IsEnabled() {
		appLogger.Info("New Relic APM initialized", logger.String("app_name", cfg.NewRelic.AppName))
	} else {
		appLogger.Info("New Relic APM disabled")
	}
	defer nrApp.Shutdown(10 * time.Second)

	// ctx lives until shutdown and stops the background workers
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	trips, err := openStore(ctx, cfg, nrApp.IsEnabled(), appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open trip store", logger.Err(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trips.close(closeCtx); err != nil {
			appLogger.Warn("Failed to close trip store", logger.Err(err))
		}
	}()

	var redisClient *redis.Client
	if cfg.Features.EnableEvents || cfg.Features.EnableIdempotency {
		redisClient, err = cache.NewRedisClient(ctx, cache.Config{
			Host:        cfg.Redis.Host,
			Port:        cfg.Redis.Port,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			PoolSize:    cfg.Redis.PoolSize,
			MinIdleConn: cfg.Redis.MinIdleConn,
			DialTimeout: cfg.Redis.DialTimeout,
			ReadTimeout: cfg.Redis.ReadTimeout,
		})
		if err != nil {
			appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
		}
		defer cache.Close(redisClient)
		appLogger.Info("Connected to Redis", logger.String("addr", cfg.Redis.Host+":"+cfg.Redis.Port))
	}

	wsHub := websocket.NewHub(appLogger)
	go wsHub.Run(ctx)

	// With Redis every replica publishes and every replica fans out to its
	// own sockets; without it changes go straight to the local hub.
	var notifier lifecycle.Notifier = events.NewDirect(wsHub)
	if cfg.Features.EnableEvents {
		notifier = events.NewPublisher(redisClient, events.DefaultChannel, appLogger)
		sub := events.NewSubscriber(redisClient, events.DefaultChannel, wsHub, appLogger)
		go func() {
			if err := sub.Run(ctx, nil); err != nil {
				appLogger.Error("Trip event subscriber stopped", logger.Err(err))
			}
		}()
	}

	geoClient := geo.NewClient(geo.Config{
		APIKey:  cfg.Routing.APIKey,
		BaseURL: cfg.Routing.BaseURL,
		Timeout: cfg.Routing.Timeout,
	}, appLogger)
	fares := pricing.NewService(geoClient, pricingConfig(cfg.Pricing), appLogger)

	tripService := lifecycle.NewService(trips.repo, geoClient, geoClient, fares, appLogger,
		lifecycle.WithNotifier(notifier),
		lifecycle.WithMetrics(nrApp),
	)

	checks := []handlers.HealthCheck{{Name: cfg.Store.Driver, Check: trips.repo.Ping}}
	if redisClient != nil {
		checks = append(checks, handlers.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	h := handlers.NewHandlers(handlers.Handlers{
		Trips:    tripService,
		Stats:    stats.NewService(trips.repo, appLogger),
		Fares:    fares,
		Geocoder: geoClient,
		Hub:      wsHub,
		Metrics:  nrApp,
		Logger:   appLogger,
		Query:    cfg.Query,
		Info: handlers.ServiceInfo{
			Name:    "UIT-Go Trip Service",
			Version: cfg.Server.Version,
			Store:   cfg.Store.Driver,
		},
		Checks: checks,
		Upgrader: gorilla.Upgrader{
			ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		},
	})

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	opts := routes.Options{
		NewRelic:       nrApp.App(),
		IdempotencyTTL: cfg.Idempotency.TTL,
		Logger:         appLogger,
	}
	if cfg.Features.EnableIdempotency {
		opts.Redis = redisClient
	}
	routes.SetupRoutes(router, h, opts)
	appLogger.Info("Routes configured")

	if nrApp.IsEnabled() {
		go reportPoolStats(ctx, nrApp, trips, redisClient)
	}

	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}
	stop()

	appLogger.Info("Server stopped gracefully")
}

func pricingConfig(p config.PricingConfig) pricing.Config {
	rate := func(r config.FareRate) pricing.Rate {
		return pricing.Rate{BaseFare: r.BaseFare, PerKMRate: r.PerKMRate}
	}
	return pricing.Config{
		Rates: map[vehicle.Class]pricing.Rate{
			vehicle.Motorbike: rate(p.Motorbike),
			vehicle.Car4:      rate(p.Car4),
			vehicle.Car7:      rate(p.Car7),
		},
		Default: rate(p.Default),
		RoundTo: p.RoundTo,
	}
}

func reportPoolStats(ctx context.Context, nrApp *monitoring.NewRelicApp, s *store, redisClient *redis.Client) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.sqlDB != nil {
				nrApp.RecordDatabasePoolStats(s.sqlDB.Stats())
			}
			if redisClient != nil {
				nrApp.RecordRedisPoolStats(cache.GetClientStats(redisClient))
			}
		}
	}
}
