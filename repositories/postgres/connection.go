package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/serenova/aicore/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger *zap.Logger
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:     db,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// InitSchema initializes the database schema
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
		-- Per-provider daily cost accumulators
		CREATE TABLE IF NOT EXISTS cost_records (
			provider VARCHAR(50) NOT NULL,
			day DATE NOT NULL,
			tokens_used BIGINT NOT NULL DEFAULT 0,
			cost_usd DECIMAL(12, 6) NOT NULL DEFAULT 0,
			query_count BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (provider, day)
		);

		-- Completion cache keyed by query hash and provider
		CREATE TABLE IF NOT EXISTS response_cache (
			query_hash VARCHAR(64) NOT NULL,
			provider VARCHAR(50) NOT NULL,
			response_text TEXT NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd DECIMAL(12, 6) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL,
			PRIMARY KEY (query_hash, provider)
		);

		-- Per-request provider performance samples
		CREATE TABLE IF NOT EXISTS provider_metrics (
			id BIGSERIAL PRIMARY KEY,
			provider VARCHAR(50) NOT NULL,
			latency_ms INTEGER NOT NULL,
			tokens_used INTEGER NOT NULL DEFAULT 0,
			cost_usd DECIMAL(12, 6) NOT NULL DEFAULT 0,
			rating INTEGER,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Structured audit event log
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			fields JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		-- Indexes for the analytics read path
		CREATE INDEX IF NOT EXISTS idx_response_cache_expires_at ON response_cache(expires_at);
		CREATE INDEX IF NOT EXISTS idx_provider_metrics_provider ON provider_metrics(provider);
		CREATE INDEX IF NOT EXISTS idx_provider_metrics_created_at ON provider_metrics(created_at);
		CREATE INDEX IF NOT EXISTS idx_audit_events_name ON audit_events(name);
		CREATE INDEX IF NOT EXISTS idx_audit_events_created_at ON audit_events(created_at);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully")
	return nil
}
