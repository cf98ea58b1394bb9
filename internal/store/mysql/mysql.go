// Package mysql provides a MySQL-backed identity store for deployments
// that cannot run the pgvector extension. Embeddings are stored as JSON
// and nearest-neighbor search stays in the in-memory index, so the only
// queries this backend runs are exact lookups by employee ID.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
)

// Pool manages a MySQL connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MySQL connection pool.
func NewPool(dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MySQL DSN is required")
	}

	// DATETIME columns must scan into time.Time.
	dsnCfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	dsnCfg.ParseTime = true

	db, err := sql.Open("mysql", dsnCfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &Pool{db: db}, nil
}

// Open creates a connection pool and ensures the schema exists.
func Open(dsn string) (*Pool, error) {
	pool, err := NewPool(dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return pool, nil
}

// ensureSchema creates the identities table if it does not exist.
// MySQL DDL is not transactional, so this is a plain idempotent statement.
func (p *Pool) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS identities (
			employee_id   VARCHAR(255) PRIMARY KEY,
			name          VARCHAR(255) NOT NULL DEFAULT '',
			embedding     MEDIUMBLOB NOT NULL,
			dim           INT NOT NULL,
			model         VARCHAR(64) NOT NULL,
			metric        VARCHAR(32) NOT NULL,
			quality       DOUBLE NOT NULL DEFAULT 0,
			enrollment_id VARCHAR(64) NOT NULL,
			image_ref     VARCHAR(512) NOT NULL DEFAULT '',
			enrolled_at   DATETIME(6) NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
	`)
	if err != nil {
		return fmt.Errorf("create identities table: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}
