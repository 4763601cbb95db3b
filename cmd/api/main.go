package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/bizmatters/agent-builder/pages-builder/internal/attachments"
	"github.com/bizmatters/agent-builder/pages-builder/internal/auth"
	"github.com/bizmatters/agent-builder/pages-builder/internal/config"
	"github.com/bizmatters/agent-builder/pages-builder/internal/gateway"
	"github.com/bizmatters/agent-builder/pages-builder/internal/generation"
	"github.com/bizmatters/agent-builder/pages-builder/internal/logging"
	"github.com/bizmatters/agent-builder/pages-builder/internal/metrics"
	"github.com/bizmatters/agent-builder/pages-builder/internal/notify"
	"github.com/bizmatters/agent-builder/pages-builder/internal/orchestration"
	"github.com/bizmatters/agent-builder/pages-builder/internal/parser"
	"github.com/bizmatters/agent-builder/pages-builder/internal/publish"

	_ "github.com/bizmatters/agent-builder/pages-builder/docs" // swagger docs
)

// @title Pages Builder API
// @version 1.0
// @description Generates static web apps with a language model and publishes them to GitHub Pages.
// @description
// @description POST /task runs one round: generation, parsing, publishing and evaluator notification.
// @description The /api routes expose the run ledger to operators.

// @contact.name API Support
// @contact.email support@bizmatters.dev

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT token.

const dbConnectAttempts = 10

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	tp, err := initTracer()
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer tp.Shutdown(context.Background())

	var (
		pool  *pgxpool.Pool
		runs  orchestration.RunStore
		users auth.UserStore
		ready gateway.ReadinessCheck
	)
	if cfg.Database.URL != "" {
		pool, err = connectDB(cfg.Database.URL, logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		runs = orchestration.NewPgxRunStore(pool)
		users = auth.NewPgxUserStore(pool)
		ready = func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return errors.New("database connection failed")
			}
			return nil
		}
	} else {
		logger.Warn("DATABASE_URL not set; keeping the run ledger in memory and disabling operator login")
		runs = orchestration.NewMemoryRunStore()
	}

	var jwtManager *auth.JWTManager
	if cfg.Auth.JWTSecret != "" {
		jwtManager, err = auth.NewJWTManager(cfg.Auth.JWTSecret)
		if err != nil {
			return fmt.Errorf("failed to initialize JWT manager: %w", err)
		}
	} else {
		logger.Warn("JWT_SECRET not set; operator API disabled")
	}
	if cfg.Auth.AppSecret == "" {
		logger.Warn("APP_SECRET not set; every task request will be rejected")
	}

	generator, err := generation.New(cfg.Generation, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize generation backend: %w", err)
	}
	publisher, err := publish.NewGitHubPublisher(cfg.GitHub, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize publisher: %w", err)
	}
	roundMetrics, err := metrics.NewRoundMetrics(nil)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	contract, err := parser.ParseContract(cfg.Generation.Contract)
	if err != nil {
		return err
	}
	policy, err := parser.ParseFencePolicy(cfg.Generation.NestedFencePolicy)
	if err != nil {
		return err
	}

	service := orchestration.NewService(orchestration.Dependencies{
		Generator:   generator,
		Publisher:   publisher,
		Notifier:    notify.New(cfg.Notify, logger),
		Attachments: attachments.NewFetcher(logger),
		Runs:        runs,
		Metrics:     roundMetrics,
	}, orchestration.Options{
		Contract:    contract,
		FencePolicy: policy,
		ScratchDir:  cfg.Workspace.ScratchDir,
	}, logger)

	gin.SetMode(gin.ReleaseMode)
	handler := gateway.NewHandler(service, runs, users, jwtManager, cfg.Auth.AppSecret, logger)
	stream := gateway.NewRunStream(runs, jwtManager, logger)
	router := gateway.NewRouter(handler, stream, ready, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting pages-builder API server",
			zap.String("port", cfg.Server.Port),
			zap.String("contract", string(contract)),
			zap.String("provider", cfg.Generation.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	logger.Info("shutting down server")

	// Rounds in flight keep running on a detached context; give them the
	// configured write timeout to finish.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

// connectDB opens the pool, retrying while the database starts up.
func connectDB(url string, logger *zap.Logger) (*pgxpool.Pool, error) {
	ctx := context.Background()
	var lastErr error
	for i := 0; i < dbConnectAttempts; i++ {
		pool, err := pgxpool.New(ctx, url)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("connected to PostgreSQL database")
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		logger.Warn("waiting for database",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", dbConnectAttempts),
			zap.Error(err))
		time.Sleep(3 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to database after retries: %w", lastErr)
}

// initTracer initializes OpenTelemetry tracing
func initTracer() (*trace.TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)

	return tp, nil
}
