package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"redline/internal/auth"
	"redline/internal/config"
	suggestionRepo "redline/internal/domain/repositories/suggestion"
	suggestionSvc "redline/internal/domain/services/suggestion"
	"redline/internal/handler"
	"redline/internal/middleware"
	"redline/internal/repository/postgres"
	postgresDocsys "redline/internal/repository/postgres/docsystem"
	postgresSuggestion "redline/internal/repository/postgres/suggestion"
	redisrepo "redline/internal/repository/redis"
	"redline/internal/repository/retry"
	"redline/internal/service/stats"
	serviceSuggestion "redline/internal/service/suggestion"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	engine, err := config.LoadEngine(cfg.EngineConfigPath)
	if err != nil {
		log.Fatalf("Failed to load engine config: %v", err)
	}

	// Setup structured logging, optionally teeing into a rotated log file
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, "server", cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"store_backend", cfg.StoreBackend,
		"conflict_strategy", engine.Conflict.Strategy,
	)

	jwtVerifier, err := newVerifier(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	if err := postgres.EnsureSchema(ctx, pool, repoConfig.Tables); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}
	docRepo := postgresDocsys.NewDocumentRepository(repoConfig)

	checks := map[string]handler.Pinger{"postgres": pool}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redisrepo.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		logger.Info("redis connected")
	}

	// Suggestion store: backend adapter wrapped in the retry decorator
	var store suggestionRepo.SuggestionRepository
	switch cfg.StoreBackend {
	case "redis":
		if redisClient == nil {
			log.Fatalf("STORE_BACKEND=redis requires REDIS_URL")
		}
		store = redisrepo.NewSuggestionStore(redisClient, logger)
	case "postgres":
		store = postgresSuggestion.NewSuggestionRepository(repoConfig)
	default:
		log.Fatalf("Unknown STORE_BACKEND %q (want postgres or redis)", cfg.StoreBackend)
	}
	store = retry.NewStore(store, retry.PolicyFromConfig(engine.StoreRetry), logger)

	// Usage statistics are best effort; without Redis they only reach the log
	var statsSink suggestionSvc.StatsSink = stats.NewLogSink(logger)
	if redisClient != nil {
		statsSink = stats.NewRedisSink(redisClient)
	}

	suggestionService, err := serviceSuggestion.NewSuggestionService(docRepo, store, statsSink, engine, logger)
	if err != nil {
		log.Fatalf("Failed to create suggestion service: %v", err)
	}
	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.NewHealthHandler(checks).Health)
	handler.NewSuggestionHandler(suggestionService, logger).RegisterRoutes(mux)

	// Order: RequestLogger → CORS → Recovery → Auth → Routes
	var h http.Handler = mux
	h = middleware.AuthMiddleware(jwtVerifier, logger, "/health")(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)
	h = middleware.RequestLogger(logger)(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// newVerifier prefers the JWKS endpoint and falls back to a shared secret.
func newVerifier(cfg *config.Config, logger *slog.Logger) (auth.JWTVerifier, error) {
	if cfg.JWKSURL != "" {
		return auth.NewJWTVerifier(cfg.JWKSURL, logger)
	}
	if cfg.JWTSecret != "" {
		logger.Warn("using shared-secret JWT verification; set JWKS_URL in production")
		return auth.NewHMACVerifier([]byte(cfg.JWTSecret), logger)
	}
	return nil, errors.New("either JWKS_URL or JWT_SECRET must be set")
}
