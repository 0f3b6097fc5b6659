// Package domain defines the core interfaces and types for Sentinel.
package domain

import (
	"context"
	"time"
)

// Page bounds a list query.
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Page size limits for list queries.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps the page to the supported bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Repository defines the interface for data persistence.
// Transactions are append-only.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *TransactionEvent) error
	GetTransaction(ctx context.Context, txID string) (*TransactionEvent, error)
	ListTransactions(ctx context.Context, page Page) ([]*TransactionEvent, error)
	ListTransactionsByUser(ctx context.Context, userID string, since time.Time, page Page) ([]*TransactionEvent, error)

	// Evaluation results
	SaveEvaluation(ctx context.Context, eval *Evaluation) error
	GetEvaluation(ctx context.Context, evalID string) (*Evaluation, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" validate:"oneof=sqlite postgres"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" validate:"required_if=Driver sqlite"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" validate:"required_if=Driver postgres"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime"`
}
