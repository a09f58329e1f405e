package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"pantry-service/config"
	"pantry-service/internal/api"
	"pantry-service/internal/broker"
	"pantry-service/internal/redisclient"
	"pantry-service/internal/service"
	"pantry-service/internal/store"
	"pantry-service/internal/util"
	"pantry-service/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting pantry service",
		zap.String("env", cfg.Server.Env),
		zap.String("port", cfg.Server.Port))

	loc, err := cfg.Business.Location()
	if err != nil {
		logger.Fatal("Invalid timezone", zap.Error(err))
	}
	time.Local = loc

	tp, err := util.InitTracer(util.ServiceName, cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				logger.Error("Error shutting down tracer", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewStore(cfg.Database.Options())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}
	if err := db.EnsureCounter(ctx, store.MainCounter, cfg.Business.CounterStart); err != nil {
		logger.Fatal("Failed to seed id counter", zap.Error(err))
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	var publisher service.EventPublisher = broker.NopPublisher{}
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents)
		defer producer.Close()
		publisher = broker.NewEventPublisher(producer)
		logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicEvents))
	}

	settings := cfg.Business.Settings()
	ids := service.NewIDAllocator(db)
	availability := service.NewAvailabilityService(db, redisClient, settings.AvailabilityCacheTTL)
	catalog := service.NewCatalogService(db, redisClient, ids, availability, settings)

	if err := catalog.EnsureSystemLocations(ctx); err != nil {
		logger.Fatal("Failed to create system locations", zap.Error(err))
	}
	if err := availability.WarmCache(ctx); err != nil {
		logger.Warn("Failed to warm availability cache", zap.Error(err))
	}

	svc := api.Services{
		Catalog:      catalog,
		Ledger:       service.NewLedgerService(db, ids, availability, publisher),
		Availability: availability,
		Carts:        service.NewCartService(db, redisClient, settings),
		Orders:       service.NewOrderService(db, redisClient, ids, availability, publisher, settings),
		Shop:         service.NewShopService(db, availability, settings),
		Reports:      service.NewReportService(db),
	}

	if cfg.Server.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(svc, map[string]api.Pinger{
		"database": db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	servers := []*http.Server{srv}
	if port := cfg.Observ.PrometheusPort; port != "" && port != cfg.Server.Port {
		metricsSrv := &http.Server{
			Addr:              fmt.Sprintf(":%s", port),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		servers = append(servers, metricsSrv)
		g.Go(func() error {
			logger.Info("Starting metrics server", zap.String("addr", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if cfg.Kafka.Enabled {
		projector := service.NewAvailabilityProjector(db, availability, settings.LowStockThreshold)
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicEvents, cfg.Kafka.ConsumerGroup)
		availabilityWorker := worker.NewAvailabilityWorker(consumer, projector)

		g.Go(func() error {
			if err := availabilityWorker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("availability worker: %w", err)
			}
			return nil
		})
		defer func() {
			if err := availabilityWorker.Stop(); err != nil {
				logger.Error("Error stopping availability worker", zap.Error(err))
			}
		}()
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		return
	}
	logger.Info("Server exited")
}
