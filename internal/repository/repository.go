// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != ":memory:" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	return nil
}

// SaveReport stores the report as the subject's current one for its bureau,
// replacing any previous report.
func (r *SQLRepository) SaveReport(ctx context.Context, tenantID string, report *domain.CreditReport) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if report == nil || report.SubjectID == "" {
		return fmt.Errorf("%w: report subjectID is required", domain.ErrInvalidInput)
	}
	if !report.Bureau.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownBureau, report.Bureau)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	var score sql.NullInt64
	if report.BureauScore != nil {
		score = sql.NullInt64{Int64: int64(*report.BureauScore), Valid: true}
	}
	fetched := report.FetchedAt
	if fetched.IsZero() {
		fetched = r.now().UTC()
	}

	query := `
		INSERT INTO credit_reports (
			tenant_id, subject_id, bureau, bureau_score, report, fetched_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, subject_id, bureau) DO UPDATE SET
			bureau_score = excluded.bureau_score,
			report = excluded.report,
			fetched_at = excluded.fetched_at,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, report.SubjectID, string(report.Bureau), score,
		string(payload), fetched, r.now().UTC(),
	)
	return err
}

// GetReport retrieves the current report for a subject and bureau.
func (r *SQLRepository) GetReport(ctx context.Context, tenantID, subjectID string, bureau domain.Bureau) (*domain.CreditReport, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT report FROM credit_reports
		WHERE tenant_id = ? AND subject_id = ? AND bureau = ?
	`
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subjectID, string(bureau)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var report domain.CreditReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	return &report, nil
}

// ListReports returns every bureau report on file for a subject, ordered by
// bureau.
func (r *SQLRepository) ListReports(ctx context.Context, tenantID, subjectID string) ([]*domain.CreditReport, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT report FROM credit_reports
		WHERE tenant_id = ? AND subject_id = ?
		ORDER BY bureau
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []*domain.CreditReport{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var report domain.CreditReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, fmt.Errorf("failed to decode report: %w", err)
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// FindAnalysis retrieves the stored analysis for a subject and bureau.
func (r *SQLRepository) FindAnalysis(ctx context.Context, tenantID, subjectID string, bureau domain.Bureau) (*domain.CachedAnalysis, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT tenant_id, subject_id, bureau, data_hash, analysis_version, analyzed_at, payload
		FROM analyses
		WHERE tenant_id = ? AND subject_id = ? AND bureau = ?
	`
	var c domain.CachedAnalysis
	var b, payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subjectID, string(bureau)).Scan(
		&c.TenantID, &c.SubjectID, &b, &c.DataHash, &c.AnalysisVersion, &c.AnalyzedAt, &payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Bureau = domain.Bureau(b)
	c.Analysis = &domain.Analysis{}
	if err := json.Unmarshal([]byte(payload), c.Analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return &c, nil
}

// UpsertAnalysis stores an analysis, replacing the previous one for the
// same subject and bureau.
func (r *SQLRepository) UpsertAnalysis(ctx context.Context, tenantID string, cached *domain.CachedAnalysis) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if cached == nil || cached.Analysis == nil {
		return fmt.Errorf("%w: analysis is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(cached.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis: %w", err)
	}

	query := `
		INSERT INTO analyses (
			tenant_id, subject_id, bureau, data_hash, analysis_version, analyzed_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, subject_id, bureau) DO UPDATE SET
			data_hash = excluded.data_hash,
			analysis_version = excluded.analysis_version,
			analyzed_at = excluded.analyzed_at,
			payload = excluded.payload
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, cached.SubjectID, string(cached.Bureau), cached.DataHash,
		cached.AnalysisVersion, cached.AnalyzedAt.UTC(), string(payload),
	)
	return err
}

// SaveComparison stores the subject's latest comparison.
func (r *SQLRepository) SaveComparison(ctx context.Context, tenantID string, result *domain.ComparisonResult) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if result == nil || result.SubjectID == "" {
		return fmt.Errorf("%w: comparison subjectID is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode comparison: %w", err)
	}

	query := `
		INSERT INTO comparisons (
			tenant_id, subject_id, average_score, unified_grade, generated_at, payload
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, subject_id) DO UPDATE SET
			average_score = excluded.average_score,
			unified_grade = excluded.unified_grade,
			generated_at = excluded.generated_at,
			payload = excluded.payload
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tenantID, result.SubjectID, result.AverageScore, string(result.UnifiedGrade),
		result.GeneratedAt.UTC(), string(payload),
	)
	return err
}

// GetComparison retrieves the subject's latest comparison.
func (r *SQLRepository) GetComparison(ctx context.Context, tenantID, subjectID string) (*domain.ComparisonResult, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `SELECT payload FROM comparisons WHERE tenant_id = ? AND subject_id = ?`
	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, subjectID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var res domain.ComparisonResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, fmt.Errorf("failed to decode comparison: %w", err)
	}
	return &res, nil
}

// SaveLenderProfile stores a tenant's lender profile.
func (r *SQLRepository) SaveLenderProfile(ctx context.Context, tenantID string, profile *domain.LenderProfile) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	if profile == nil || profile.ID == "" {
		return fmt.Errorf("%w: profile id is required", domain.ErrInvalidInput)
	}

	stored := *profile
	stored.TenantID = tenantID
	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode lender profile: %w", err)
	}

	enabled := 0
	if profile.Enabled {
		enabled = 1
	}
	now := r.now().UTC()

	query := `
		INSERT INTO lender_profiles (
			id, tenant_id, name, tier, profile, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			tier = excluded.tier,
			profile = excluded.profile,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, r.rebind(query),
		profile.ID, tenantID, profile.Name, profile.Tier, string(payload), enabled, now, now,
	)
	return err
}

// ListLenderProfiles returns a tenant's enabled lender profiles ordered by
// tier then ID.
func (r *SQLRepository) ListLenderProfiles(ctx context.Context, tenantID string) ([]*domain.LenderProfile, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}

	query := `
		SELECT profile FROM lender_profiles
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY tier, id
	`
	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []*domain.LenderProfile{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var p domain.LenderProfile
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to decode lender profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	return profiles, rows.Err()
}

// DeleteLenderProfile soft-deletes a lender profile by setting enabled = 0.
func (r *SQLRepository) DeleteLenderProfile(ctx context.Context, tenantID, profileID string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}

	query := `
		UPDATE lender_profiles
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`
	result, err := r.db.ExecContext(ctx, r.rebind(query), r.now().UTC(), tenantID, profileID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var _ domain.Repository = (*SQLRepository)(nil)
