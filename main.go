package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/friendgraph/pkg/audit"
	"github.com/ekaya-inc/friendgraph/pkg/config"
	"github.com/ekaya-inc/friendgraph/pkg/database"
	"github.com/ekaya-inc/friendgraph/pkg/handlers"
	"github.com/ekaya-inc/friendgraph/pkg/kvstore"
	"github.com/ekaya-inc/friendgraph/pkg/logging"
	"github.com/ekaya-inc/friendgraph/pkg/middleware"
	"github.com/ekaya-inc/friendgraph/pkg/repositories"
	"github.com/ekaya-inc/friendgraph/pkg/retry"
	"github.com/ekaya-inc/friendgraph/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

// janitorInterval is how often the in-process rate limit store drops expired keys.
const janitorInterval = time.Minute

// application holds the wired services. They are constructed at startup so
// wiring errors fail fast; only the operational endpoints are served.
type application struct {
	Users          services.UserService
	FriendRequests services.FriendRequestService
	health         *handlers.HealthHandler
}

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.ZapLevel())
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("rate_limit_max_requests", cfg.RateLimit.MaxRequests),
		zap.Duration("rate_limit_window", cfg.RateLimit.Window()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCfg := retry.StartupConfig()
	startupCfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("Startup dependency not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			logging.Error(err))
	}

	db, err := retry.DoWithResultIfRetryable(ctx, startupCfg, func() (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.URL(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Error(err))
	}
	defer db.Close()

	if err := migrate(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", logging.Error(err))
	}

	rdb, err := retry.DoWithResultIfRetryable(ctx, startupCfg, func() (*redis.Client, error) {
		return database.NewRedisClient(ctx, &cfg.Redis)
	})
	if err != nil {
		logger.Fatal("Failed to connect to Redis", logging.Error(err))
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	app := newApplication(ctx, cfg, db, rdb, logger)

	mux := http.NewServeMux()
	app.health.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Recoverer(logger)(middleware.RequestLogger(logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting friendgraph", zap.String("addr", server.Addr), zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Fatal("Server failed", logging.Error(err))
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", logging.Error(err))
	}
}

// migrate applies schema migrations over a dedicated database/sql connection.
func migrate(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	return database.RunMigrations(sqlDB, logger)
}

func newApplication(ctx context.Context, cfg *config.Config, db *database.DB, rdb *redis.Client, logger *zap.Logger) *application {
	checks := []handlers.ReadinessCheck{
		{Name: "database", Pinger: handlers.PingFunc(db.Ping)},
	}

	var store kvstore.TimestampStore
	if rdb != nil {
		store = kvstore.NewRedisStore(rdb, kvstore.WithKeyPrefix("friendgraph:ratelimit"))
		checks = append(checks, handlers.ReadinessCheck{
			Name:   "redis",
			Pinger: handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		})
	} else {
		mem := kvstore.NewMemoryStore()
		mem.StartJanitor(ctx, janitorInterval)
		store = mem
		logger.Info("Redis not configured, rate limit window is kept in process memory")
	}

	scopeFn := services.NewScopeContextFunc(db)
	userRepo := repositories.NewUserRepository()
	requestRepo := repositories.NewFriendRequestRepository()

	users := services.NewUserService(userRepo, scopeFn, logger)
	graph := services.NewRelationshipGraph(requestRepo, logger)
	limiter := services.NewRateLimitWindow(store, cfg.RateLimit.Window(), cfg.RateLimit.MaxRequests, logger)
	view := services.NewFriendshipView(requestRepo, userRepo, scopeFn, logger)

	return &application{
		Users: users,
		FriendRequests: services.NewFriendRequestService(
			graph, limiter, view, users,
			services.NewSystemClock(), scopeFn,
			audit.NewSecurityAuditor(logger),
			logger,
		),
		health: handlers.NewHealthHandler(cfg, checks, logger),
	}
}
