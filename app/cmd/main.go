package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"jobtracker/app/config"
	"jobtracker/app/usecase"
	"jobtracker/internal/domain/repository"
	"jobtracker/internal/infrastructure/auth"
	"jobtracker/internal/infrastructure/metrics"
	"jobtracker/internal/infrastructure/ratelimit"
	"jobtracker/internal/infrastructure/store/memory"
	mongorepo "jobtracker/internal/infrastructure/store/mongodb"
	"jobtracker/internal/infrastructure/store/postgres"
	"jobtracker/internal/infrastructure/transport"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to HCL config file")
	flag.Parse()

	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	// store
	jobRepo, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("store init failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}

	// rate limiter
	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	var redisClient *redis.Client
	if cfg.RateLimit.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RateLimit.RedisAddr})
		limiter = ratelimit.NewRedisLimiter(redisClient)
		logger.Info("using redis rate limiter", "addr", cfg.RateLimit.RedisAddr)
	}

	// Usecases / services
	jobSvc := usecase.NewJobService(jobRepo, logger)
	jwt := auth.NewJWTProvider(cfg.Auth.JWTSecret)

	// Transport (HTTP handlers)
	handler := transport.NewJobHandler(
		jobSvc,
		jobRepo,
		logger,
		prometheus.DefaultRegisterer,
		transport.HandlerOptions{
			Authenticate:      jwt.Authenticate,
			Limiter:           limiter,
			RateLimit:         cfg.RateLimit.Limit,
			RateWindow:        cfg.RateLimit.Window,
			StatsPushInterval: cfg.Server.StatsPushInterval,
		},
	)

	// Router and server
	r := mux.NewRouter()
	handler.RegisterRoutes(r)
	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)(r)
	root := handlers.RecoveryHandler(handlers.PrintRecoveryStack(cfg.SlogLevel() == slog.LevelDebug))(corsHandler)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      root,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Addr != "" {
		go func() {
			logger.Info("starting metrics server", "addr", cfg.Metrics.Addr)
			if err := metrics.StartMetricsServer(cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			cancel()
		}
	}()

	// OS signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down http server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("redis close error", "err", err)
		}
	}

	logger.Info("closing store", "driver", cfg.Store.Driver)
	if err := closeStore(shutdownCtx); err != nil {
		logger.Error("store close error", "err", err)
	}

	logger.Info("service stopped")
}

// openStore returns the configured repository and a func releasing its
// connections.
func openStore(cfg *config.Config, logger *slog.Logger) (repository.JobRepository, func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.StorePostgres:
		db, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Postgres.DSN,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to postgres")
		return postgres.NewJobRepo(db), closeDB(db), nil

	case config.StoreMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.NewJobRepo(), func(context.Context) error { return nil }, nil

	default:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, err
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
		return mongorepo.NewMongoJobRepo(client.Database(cfg.Mongo.Database)), client.Disconnect, nil
	}
}

func closeDB(db *sql.DB) func(context.Context) error {
	return func(context.Context) error { return db.Close() }
}
