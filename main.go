package main

import (
	"log/slog"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/rehearsal-ai/backend/repository"
	"github.com/rehearsal-ai/backend/services"
)

func main() {
	// Setup structured logging with JSON format
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	config := services.LoadConfig()

	// Initialize the store
	store := openStore(config)

	// Seed development accounts and sample resumes
	if config.Database.Seed {
		if err := services.NewDatabaseSeeder(store).SeedDatabase(); err != nil {
			slog.Error("Failed to seed database", "error", err)
		}
	}

	server := services.NewServer(config)
	server.SetStore(store)

	if err := server.InitializeServices(); err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	server.Start()
}

// openStore connects to Postgres when a database URL is configured and
// falls back to the in-memory store otherwise. Either way the store is
// wrapped in the retry decorator.
func openStore(config *services.Config) repository.Store {
	policy := config.Store.RetryPolicy()

	if config.Database.URL == "" {
		slog.Warn("Database URL not configured, using the in-memory store")
		return repository.NewStore(repository.NewMemoryStore(), policy)
	}

	db, err := gorm.Open(postgres.Open(config.Database.URL), &gorm.Config{
		Logger:         gormLogger(config.Database.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		slog.Error("Failed to connect to database, using the in-memory store", "error", err)
		return repository.NewStore(repository.NewMemoryStore(), policy)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(config.Database.MaxIdleConns)
		sqlDB.SetMaxOpenConns(config.Database.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	slog.Info("Connected to database")

	gormStore := repository.NewGORMStore(db)
	if err := gormStore.Migrate(); err != nil {
		slog.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	return repository.NewStore(gormStore, policy)
}

// gormLogger maps the configured level onto GORM's logger.
func gormLogger(level string) gormlogger.Interface {
	switch level {
	case "info":
		return gormlogger.Default.LogMode(gormlogger.Info)
	case "warn":
		return gormlogger.Default.LogMode(gormlogger.Warn)
	case "error":
		return gormlogger.Default.LogMode(gormlogger.Error)
	default:
		return gormlogger.Default.LogMode(gormlogger.Silent)
	}
}
