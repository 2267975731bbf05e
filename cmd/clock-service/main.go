package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lief/clock-service/internal/config"
	"lief/clock-service/internal/geo"
	"lief/clock-service/internal/httpapi"
	"lief/clock-service/internal/store/postgres"
	"lief/clock-service/internal/telemetry"
	"lief/clock-service/internal/watch"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()

	shutdownTelemetry := telemetry.Setup("clock-service")

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool, postgres.Options{
		SessionTTL: cfg.SessionTTL,
	})

	var sensor geo.Sensor = geo.UnavailableSensor{}
	if cfg.DeviceConfigured {
		sensor = geo.FixedSensor{Position: geo.Point{Lat: cfg.DeviceLat, Lng: cfg.DeviceLng}}
	}

	handler := httpapi.NewHandler(store, sensor, httpapi.Options{
		OpenSessionFetchLimit: cfg.OpenSessionFetchLimit,
		HistoryLimit:          cfg.HistoryLimit,
		LocationPollInterval:  cfg.LocationPollInterval,
		DashboardRefresh:      cfg.DashboardRefresh,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute:      cfg.RateLimitPerMinute,
		IPBurst:          cfg.RateLimitBurst,
		SessionPerMinute: cfg.WorkerRateLimitPerMinute,
		SessionBurst:     cfg.WorkerRateLimitBurst,
	})

	chain := httpapi.AuthMiddleware(store, handler.Routes())
	chain = limiter.Middleware(chain)
	otelHandler := otelhttp.NewHandler(httpapi.LoggingMiddleware(chain), "clock-service")

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("clock-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	if cfg.DeviceConfigured && cfg.LocationPollInterval > 0 {
		watcher := watch.New(sensor, store)
		go watch.Start(watchCtx, cfg.LocationPollInterval, watcher)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancelWatch()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("telemetry shutdown error: %v", err)
	}
}
