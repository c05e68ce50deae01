package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Ludentes/RooDemo-sub001/internal/aggregation"
	"github.com/Ludentes/RooDemo-sub001/internal/application"
	"github.com/Ludentes/RooDemo-sub001/internal/domain"
	"github.com/Ludentes/RooDemo-sub001/internal/infrastructure/postgres"
	"github.com/Ludentes/RooDemo-sub001/internal/infrastructure/registry"
	"github.com/Ludentes/RooDemo-sub001/internal/infrastructure/watch"
	"github.com/Ludentes/RooDemo-sub001/internal/ingestion"
	httpHandler "github.com/Ludentes/RooDemo-sub001/internal/interfaces/http"
	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
	"github.com/Ludentes/RooDemo-sub001/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Vote Monitor Service...")

	db, err := postgres.NewConnection(&cfg.Database, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, log); err != nil {
		log.Fatalw("Failed to run migrations", "error", err)
	}

	elections := postgres.NewElectionRepository(db, log)
	constituencies := postgres.NewConstituencyRepository(db, log)
	transactions := postgres.NewTransactionRepository(db, log)
	hourlyStats := postgres.NewHourlyStatRepository(db, log)

	cache, err := aggregation.NewCache(cfg.Cache, log)
	if err != nil {
		log.Fatalw("Failed to initialize statistics cache", "error", err)
	}
	defer cache.Close()

	aggregator := aggregation.NewHourlyAggregator(constituencies, transactions, hourlyStats, log)
	calculator := aggregation.NewMetricsCalculator(
		elections,
		constituencies,
		hourlyStats,
		aggregation.PolicyFromConfig(cfg.Anomaly),
		log,
	)

	scheduler := aggregation.NewScheduler(aggregator, calculator, constituencies, cache, cfg.Scheduler, log)
	if err := scheduler.Start(); err != nil {
		log.Fatalw("Failed to start update scheduler", "error", err)
	}
	defer scheduler.Stop()

	parser := ingestion.NewParser(log)
	validator := ingestion.NewValidator(constituencies, transactions)
	batch := ingestion.NewBatchProcessor(validator, transactions, scheduler, log, cfg.Ingestion.BatchSize)

	service := application.NewService(
		parser,
		validator,
		batch,
		calculator,
		cache,
		transactions,
		&cfg.Ingestion,
		cfg.Cache.TTL,
		log,
	)

	watcher, err := watch.NewWatcher(cfg.Watch, func(path string) {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Errorw("Failed to read watched file", "path", path, "error", err)
			return
		}
		if _, err := service.ProcessUpload(context.Background(), path, data, domain.SourceWatch); err != nil {
			log.Errorw("Failed to process watched file", "path", path, "error", err)
		}
	}, log)
	if err != nil {
		log.Fatalw("Failed to initialize directory watcher", "error", err)
	}
	watcher.Start()
	defer watcher.Stop()

	if cfg.Registry.Enabled {
		client := registry.NewClient(
			cfg.Registry.BaseURL,
			cfg.Registry.RequestTimeout,
			cfg.Registry.MaxRetries,
			cfg.Registry.RetryDelay,
			log,
		)
		syncer := application.NewRegistrySyncer(client, elections, constituencies, &cfg.Registry, log)
		if err := syncer.Start(); err != nil {
			log.Fatalw("Failed to start registry sync", "error", err)
		}
		defer syncer.Stop()
	}

	// Initialize metrics with existing data
	initializeMetrics(transactions, log)

	router := httpHandler.NewRouter(service, scheduler, watcher, cfg.Server.RequestTimeout, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	if cfg.Metrics.Enabled {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			metricsServer := &http.Server{
				Addr:    ":" + cfg.Metrics.Port,
				Handler: metricsMux,
			}
			log.Infow("Starting metrics server", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("Metrics server error", "error", err)
			}
		}()
	}

	go func() {
		log.Infow("Starting HTTP server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete")
}

func initializeMetrics(transactions *postgres.TransactionRepository, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := transactions.Count(ctx)
	if err != nil {
		log.Errorw("Failed to get transaction count for metrics", "error", err)
		return
	}

	if count > 0 {
		metrics.TransactionsPersisted.Add(float64(count))
		log.Infow("Initialized metrics", "existing_transactions", count)
	}
}
