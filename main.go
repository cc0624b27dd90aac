package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/brickfield/brickfield-engine/pkg/config"
	"github.com/brickfield/brickfield-engine/pkg/database"
	"github.com/brickfield/brickfield-engine/pkg/handlers"
	"github.com/brickfield/brickfield-engine/pkg/middleware"
	"github.com/brickfield/brickfield-engine/pkg/repositories"
	"github.com/brickfield/brickfield-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.String("redis_host", cfg.Redis.Host),
	)

	ctx := context.Background()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	redisClient, err := database.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Repositories
	entityRepo := repositories.NewEntityRepository(db)
	factRepo := repositories.NewFactRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	interactionRepo := repositories.NewInteractionRepository(db)

	// Services
	entityService := services.NewEntityService(entityRepo, logger)
	factService := services.NewFactService(db, factRepo, cfg.Ingestion.AppendRetries, logger)
	ingestionService := services.NewIngestionService(db, entityRepo, factRepo, cfg.Ingestion.AppendRetries, logger)
	sessionService := services.NewSessionService(db, sessionRepo, interactionRepo, entityRepo, factRepo, redisClient, services.SessionConfig{
		TokenBudget:      cfg.Session.TokenBudget,
		ContextFactLimit: cfg.Session.ContextFactLimit,
		ContextCacheTTL:  time.Duration(cfg.Redis.ContextTTLSeconds) * time.Second,
	}, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg).RegisterRoutes(mux)
	handlers.NewIngestionHandler(ingestionService, factService, logger).RegisterRoutes(mux)
	handlers.NewSessionHandler(sessionService, logger).RegisterRoutes(mux)
	handlers.NewInspectionHandler(entityService, factService, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting brickfield-engine", zap.String("addr", addr), zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations opens a short-lived database/sql connection, which
// golang-migrate requires, applies pending migrations, and closes it.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
}
