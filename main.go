package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"clinic-frontdesk-server/internal/cache"
	"clinic-frontdesk-server/internal/config"
	"clinic-frontdesk-server/internal/logger"
	"clinic-frontdesk-server/internal/metrics"
	"clinic-frontdesk-server/internal/middleware"
	"clinic-frontdesk-server/internal/models"
	"clinic-frontdesk-server/internal/repository"
	"clinic-frontdesk-server/internal/routes"
	"clinic-frontdesk-server/internal/services"
	"clinic-frontdesk-server/internal/tracing"
)

func main() {
	// A missing .env is fine: the environment may already be set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	db, err := models.InitDB(models.DatabaseConfig{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	created, err := models.EnsureAdmin(db, cfg.Admin.Username, cfg.Admin.Password, cfg.Admin.FullName)
	if err != nil {
		return fmt.Errorf("bootstrapping admin: %w", err)
	}
	if created {
		zlog.Info("created bootstrap admin account", zap.String("username", cfg.Admin.Username))
	}

	m := metrics.NewCollector(prometheus.DefaultRegisterer)

	deps := routes.Dependencies{
		DB:       db,
		Cfg:      cfg,
		Log:      zlog,
		Gatherer: prometheus.DefaultGatherer,
	}

	var statsCache cache.Cache = cache.Nop{}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		rc := cache.NewRedis(client, cache.RedisOptions{
			Failures: cfg.Redis.BreakerFailures,
			OpenFor:  cfg.Redis.BreakerOpenDelay,
		}, zlog, m)
		statsCache = rc
		deps.Breaker = rc
		zlog.Info("queue stats cache enabled", zap.String("addr", cfg.Redis.Addr))
	}

	opts := services.Options{
		Location:               cfg.Clinic.Location,
		StrictTransitions:      cfg.Clinic.StrictTransitions(),
		DefaultDurationMinutes: cfg.Clinic.DefaultDurationMinutes,
		AvgConsultMinutes:      cfg.Clinic.AvgConsultMinutes,
		SlotMinutes:            cfg.Clinic.SlotMinutes,
	}
	deps.Appointments = services.NewAppointmentService(repository.NewAppointmentRepository(db), opts, zlog, m)
	deps.Queue = services.NewQueueService(repository.NewQueueRepository(db), statsCache, cfg.Redis.StatsTTL, opts, zlog, m)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Content-Disposition"}
	router.Use(cors.New(corsConfig))

	router.Use(
		middleware.RequestID(),
		middleware.RequestLogger(zlog),
		middleware.Metrics(m),
		middleware.Tracing(cfg.Tracing.ServiceName),
	)
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.NewIPRateLimiter(
			rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.BurstSize)))
		deps.AuthLimiter = middleware.NewIPRateLimiter(
			middleware.PerMinute(cfg.RateLimit.AuthPerMinute), cfg.RateLimit.AuthPerMinute)
	}

	routes.SetupRoutes(router, deps)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		zlog.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("http shutdown", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		zlog.Error("tracer shutdown", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
