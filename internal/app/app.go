package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hvaleng/garasje/internal/config"
	"github.com/hvaleng/garasje/internal/postgres"
	redisx "github.com/hvaleng/garasje/internal/redis"
	postgresrepo "github.com/hvaleng/garasje/internal/repository/postgres"
	redisrepo "github.com/hvaleng/garasje/internal/repository/redis"
	"github.com/hvaleng/garasje/internal/service"
	"github.com/hvaleng/garasje/internal/service/detection"
	"github.com/hvaleng/garasje/internal/service/occupancy"
	"github.com/hvaleng/garasje/internal/service/reservation"
	httpgin "github.com/hvaleng/garasje/internal/transport/http/gin"
	"github.com/hvaleng/garasje/internal/vision"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewSpotsPubSub(rdb)
	detectLimiter := redisrepo.NewSlidingWindowLimiter(
		rdb, "garasje:v1:rl:detect", cfg.Limiter.DetectionsPerMinute, time.Minute,
	)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)

	// Initialize vision clients; both share one outbound budget against
	// the metered hosted APIs.
	visionRate := rate.NewLimiter(rate.Limit(cfg.Vision.RequestsPerSecond), 1)
	detector := vision.NewDetectorClient(cfg.Vision.DetectorURL, cfg.Vision.Timeout, visionRate, logger)
	ocr := vision.NewOCRClient(cfg.Vision.PlateOCRURL, cfg.Vision.Timeout, visionRate, logger)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, detector, ocr, logger, service.Config{
		Occupancy:   occupancy.Config{Rows: cfg.Garage.Rows},
		Reservation: reservation.Config{Rows: cfg.Garage.Rows},
		Detection:   detection.Config{Rows: cfg.Garage.Rows},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(
		services,
		store.Users(),
		idempotencyStore,
		detectLimiter,
		logger,
	)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
