package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lineup/internal/api"
	"lineup/internal/availability"
	"lineup/internal/config"
	"lineup/internal/database"
	"lineup/internal/domain"
	"lineup/internal/events"
	"lineup/internal/google"
	"lineup/internal/ledger"
	"lineup/internal/logging"
	"lineup/internal/metrics"
	"lineup/internal/notify"
	"lineup/internal/registry"
	"lineup/internal/repository"
	"lineup/internal/scheduler"
	"lineup/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	yamlv2 "gopkg.in/yaml.v2"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	venueFile, err := loadVenue(&logger)
	if err != nil {
		return err
	}

	reg, err := registry.New(venueFile.Venue, venueFile.Resources)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	// Persisted operator overrides survive restarts.
	overrides, err := db.ResourceStatusOverrides(context.Background())
	if err != nil {
		logger.Warn().Err(err).Msg("load resource overrides")
	} else {
		reg.ApplyOverrides(overrides)
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	holds := initHolds(redisClient, &logger)
	dispatcher := initDispatcher(redisClient, &logger)
	bus := events.NewBus()

	mirrorWorker := initMirror(cfg, db, redisClient, &logger)

	var sync domain.SyncWorker
	if mirrorWorker != nil {
		sync = mirrorWorker
	}

	led := ledger.New(db, reg, holds, bus, sync, cfg.Booking, &logger)
	engine := availability.New(db, reg, cfg.Booking, &logger)
	sweeper := scheduler.NewSweeper(db, led, engine, reg, dispatcher, bus, cfg.Booking, &logger)

	httpServer := api.NewHTTPServer(cfg.API, led, engine, sweeper, reg, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	go sweeper.Run(ctx)
	if mirrorWorker != nil {
		go mirrorWorker.Start(ctx)
	}

	return serveHTTP(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func loadVenue(logger *zerolog.Logger) (*config.VenueFile, error) {
	venuePath := os.Getenv("VENUE_PATH")
	if venuePath == "" {
		venuePath = "configs/venue.yaml"
	}

	data, err := os.ReadFile(venuePath)
	if err != nil {
		logger.Error().Err(err).Str("venue_path", venuePath).Msg("read venue file")
		return nil, err
	}

	var venueFile config.VenueFile
	if err := yamlv2.Unmarshal(data, &venueFile); err != nil {
		logger.Error().Err(err).Str("venue_path", venuePath).Msg("parse venue file")
		return nil, err
	}

	if err := config.ValidateResources(venueFile.Resources); err != nil {
		return nil, err
	}
	return &venueFile, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initHolds prefers redis with an in-memory fallback behind the failover
// wrapper; without redis, holds are process-local.
func initHolds(redisClient *redis.Client, logger *zerolog.Logger) domain.HoldRepository {
	memory := repository.NewMemoryHoldRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverHoldRepository(repository.NewRedisHoldRepository(redisClient), memory, logger)
}

func initDispatcher(redisClient *redis.Client, logger *zerolog.Logger) domain.Dispatcher {
	if redisClient != nil {
		return notify.NewRedisDispatcher(redisClient, notify.DefaultQueueKey)
	}
	return notify.NewLogDispatcher(logger)
}

func initMirror(cfg *config.Config, db *database.DB, redisClient *redis.Client, logger *zerolog.Logger) *worker.MirrorWorker {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ScheduleSpreadsheetID == "" {
		return nil
	}

	sheets, err := google.NewSheetsService(cfg.Google.CredentialsFile, cfg.Google.ScheduleSpreadsheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without schedule mirror")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return worker.NewMirrorWorker(db, sheets, redisClient, worker.RetryPolicy{}, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

func serveHTTP(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("server stopped")
	return nil
}
