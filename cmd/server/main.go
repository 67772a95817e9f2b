// main wires high-level dependencies: the keyed store backend, the ledger,
// the event publisher, metrics, the sale service, and the HTTP server
// lifecycle. Sale rules live in internal/fairlaunch.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"fairlaunch/internal/fairlaunch/events"
	"fairlaunch/internal/fairlaunch/handler"
	"fairlaunch/internal/fairlaunch/ledger"
	dmetrics "fairlaunch/internal/fairlaunch/metrics"
	"fairlaunch/internal/fairlaunch/service"
	"fairlaunch/internal/fairlaunch/store"
	memorystore "fairlaunch/internal/fairlaunch/store/memory"
	pgstore "fairlaunch/internal/fairlaunch/store/postgres"
	redisstore "fairlaunch/internal/fairlaunch/store/redis"
	"fairlaunch/internal/platform/config"
	"fairlaunch/internal/platform/httpserver"
	"fairlaunch/internal/platform/logger"
	"fairlaunch/internal/platform/metrics"
	"fairlaunch/internal/platform/middleware"
	"fairlaunch/internal/platform/postgres"
	"fairlaunch/internal/platform/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New()

	keyedStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	publisher, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = publisher.Close() }()

	svc, err := service.New(keyedStore, ledger.NewMemoryLedger(),
		service.WithLogger(log),
		service.WithMetrics(dmetrics.New(prometheus.DefaultRegisterer)),
		service.WithPublisher(publisher),
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	router := chi.NewRouter()
	h := handler.New(svc, log, metrics.New(prometheus.DefaultRegisterer),
		middleware.NewHMACValidator(cfg.JWTSigningKey))
	h.Register(router)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	router.Handle("/metrics", promhttp.Handler())

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting fair-launch server", "addr", cfg.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildStore selects the keyed-store backend from config. The returned
// cleanup closes the backing connection, nil for the in-memory store.
func buildStore(ctx context.Context, cfg config.Config) (store.KeyedStore, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return memorystore.New(), nil, nil

	case "postgres":
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pgstore.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return pgstore.New(db), func() { _ = db.Close() }, nil

	case "redis":
		client, err := redis.New(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, fmt.Errorf("redis store selected but REDIS_URL is empty")
		}
		return redisstore.New(client.Client), func() { _ = client.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// buildPublisher connects to Kafka when brokers are configured and falls
// back to the in-memory publisher otherwise.
func buildPublisher(ctx context.Context, cfg config.Config, log *slog.Logger) (events.Publisher, error) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Info("no kafka brokers configured, events stay in process")
		return events.NewMemoryPublisher(), nil
	}
	return events.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
}
