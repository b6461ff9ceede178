// Package domain defines the core types and collaborator interfaces for CreditLens.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Credit reports; one current report per subject and bureau.
	SaveReport(ctx context.Context, tenantID string, report *CreditReport) error
	GetReport(ctx context.Context, tenantID string, subjectID string, bureau Bureau) (*CreditReport, error)
	ListReports(ctx context.Context, tenantID string, subjectID string) ([]*CreditReport, error)

	// Cached analyses
	FindAnalysis(ctx context.Context, tenantID string, subjectID string, bureau Bureau) (*CachedAnalysis, error)
	UpsertAnalysis(ctx context.Context, tenantID string, cached *CachedAnalysis) error

	// Multi-bureau comparisons
	SaveComparison(ctx context.Context, tenantID string, result *ComparisonResult) error
	GetComparison(ctx context.Context, tenantID string, subjectID string) (*ComparisonResult, error)

	// Lender profile configuration
	SaveLenderProfile(ctx context.Context, tenantID string, profile *LenderProfile) error
	ListLenderProfiles(ctx context.Context, tenantID string) ([]*LenderProfile, error)
	DeleteLenderProfile(ctx context.Context, tenantID string, profileID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
