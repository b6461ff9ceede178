package repository

// Schema definitions for the CreditLens database.
// Compatible with both SQLite and PostgreSQL.

// schemaReports holds the current report per subject and bureau. A new
// ingestion replaces the previous row.
const schemaReports = `
CREATE TABLE IF NOT EXISTS credit_reports (
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    bureau TEXT NOT NULL,
    bureau_score INTEGER,
    report TEXT NOT NULL,
    fetched_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, subject_id, bureau)
);

CREATE INDEX IF NOT EXISTS idx_credit_reports_subject ON credit_reports(tenant_id, subject_id);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    bureau TEXT NOT NULL,
    data_hash TEXT NOT NULL,
    analysis_version TEXT NOT NULL,
    analyzed_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (tenant_id, subject_id, bureau)
);
`

const schemaComparisons = `
CREATE TABLE IF NOT EXISTS comparisons (
    tenant_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    average_score REAL NOT NULL,
    unified_grade TEXT NOT NULL,
    generated_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL,
    PRIMARY KEY (tenant_id, subject_id)
);
`

const schemaLenderProfiles = `
CREATE TABLE IF NOT EXISTS lender_profiles (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    tier INTEGER NOT NULL,
    profile TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_lender_profiles_tenant ON lender_profiles(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaReports,
		schemaAnalyses,
		schemaComparisons,
		schemaLenderProfiles,
	}
}
