package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"image-collector/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL connection pool used by the item store.
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres opens a pool against cfg. The connection is verified lazily;
// call Ping during readiness checks.
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// GetDB returns the underlying *sql.DB.
func (c *PostgresClient) GetDB() *sql.DB {
	return c.DB
}
