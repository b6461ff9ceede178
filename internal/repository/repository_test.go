package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/creditlens/internal/domain"
)

func newTestRepo(t *testing.T) *SQLRepository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "creditlens-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleReport(subjectID string, bureau domain.Bureau, balance float64) *domain.CreditReport {
	score := 742
	opened := time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC)
	return &domain.CreditReport{
		SubjectID:   subjectID,
		Bureau:      bureau,
		Name:        "Ravi Kumar",
		PAN:         "ABCPK1234L",
		BureauScore: &score,
		Accounts: []domain.Account{{
			Type:           "Credit Card",
			Lender:         "HDFC Bank",
			DateOpened:     &opened,
			CreditLimit:    100000,
			CurrentBalance: balance,
			Revolving:      true,
		}},
		FetchedAt: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetReport", func(t *testing.T) {
		if err := repo.SaveReport(ctx, tenantID, sampleReport("subj-1", domain.BureauCIBIL, 25000)); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}

		got, err := repo.GetReport(ctx, tenantID, "subj-1", domain.BureauCIBIL)
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if got.BureauScore == nil || *got.BureauScore != 742 {
			t.Errorf("expected bureau score 742, got %v", got.BureauScore)
		}
		if len(got.Accounts) != 1 || got.Accounts[0].CurrentBalance != 25000 {
			t.Errorf("unexpected accounts: %+v", got.Accounts)
		}
	})

	t.Run("ReportIsReplaced", func(t *testing.T) {
		if err := repo.SaveReport(ctx, tenantID, sampleReport("subj-1", domain.BureauCIBIL, 5000)); err != nil {
			t.Fatalf("SaveReport failed: %v", err)
		}
		got, err := repo.GetReport(ctx, tenantID, "subj-1", domain.BureauCIBIL)
		if err != nil {
			t.Fatalf("GetReport failed: %v", err)
		}
		if got.Accounts[0].CurrentBalance != 5000 {
			t.Errorf("expected replaced balance 5000, got %.2f", got.Accounts[0].CurrentBalance)
		}
	})

	t.Run("ListReports", func(t *testing.T) {
		_ = repo.SaveReport(ctx, tenantID, sampleReport("subj-1", domain.BureauExperion, 1000))
		_ = repo.SaveReport(ctx, tenantID, sampleReport("subj-2", domain.BureauEquifax, 1000))

		reports, err := repo.ListReports(ctx, tenantID, "subj-1")
		if err != nil {
			t.Fatalf("ListReports failed: %v", err)
		}
		if len(reports) != 2 {
			t.Fatalf("expected 2 reports, got %d", len(reports))
		}
		if reports[0].Bureau != domain.BureauCIBIL || reports[1].Bureau != domain.BureauExperion {
			t.Errorf("expected CIBIL then EXPERION, got %s, %s", reports[0].Bureau, reports[1].Bureau)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetReport(ctx, "tenant-002", "subj-1", domain.BureauCIBIL)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RejectsInvalidReports", func(t *testing.T) {
		if err := repo.SaveReport(ctx, "", sampleReport("s", domain.BureauCIBIL, 0)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty tenantID, got %v", err)
		}
		if err := repo.SaveReport(ctx, tenantID, sampleReport("", domain.BureauCIBIL, 0)); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty subject, got %v", err)
		}
		if err := repo.SaveReport(ctx, tenantID, sampleReport("s", "HIGHMARK", 0)); !errors.Is(err, domain.ErrUnknownBureau) {
			t.Errorf("expected ErrUnknownBureau, got %v", err)
		}
	})
}

func TestAnalysisStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	analyzedAt := time.Date(2025, 2, 1, 12, 30, 0, 0, time.UTC)

	if _, err := repo.FindAnalysis(ctx, "tenant-001", "subj-1", domain.BureauCIBIL); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before insert, got %v", err)
	}

	cached := &domain.CachedAnalysis{
		TenantID:        "tenant-001",
		SubjectID:       "subj-1",
		Bureau:          domain.BureauCIBIL,
		DataHash:        "abc123",
		AnalysisVersion: "1.0.0",
		AnalyzedAt:      analyzedAt,
		Analysis: &domain.Analysis{
			SubjectID: "subj-1",
			Bureau:    domain.BureauCIBIL,
			Grade:     domain.GradeResult{Grade: domain.GradeB, Score: 64.5},
		},
	}
	if err := repo.UpsertAnalysis(ctx, "tenant-001", cached); err != nil {
		t.Fatalf("UpsertAnalysis failed: %v", err)
	}

	got, err := repo.FindAnalysis(ctx, "tenant-001", "subj-1", domain.BureauCIBIL)
	if err != nil {
		t.Fatalf("FindAnalysis failed: %v", err)
	}
	if got.DataHash != "abc123" || got.AnalysisVersion != "1.0.0" {
		t.Errorf("unexpected validity keys: %+v", got)
	}
	if !got.AnalyzedAt.Equal(analyzedAt) {
		t.Errorf("expected analyzedAt %v, got %v", analyzedAt, got.AnalyzedAt)
	}
	if got.Analysis.Grade.Score != 64.5 {
		t.Errorf("expected score 64.5, got %.2f", got.Analysis.Grade.Score)
	}

	t.Run("UpsertReplaces", func(t *testing.T) {
		cached.DataHash = "def456"
		if err := repo.UpsertAnalysis(ctx, "tenant-001", cached); err != nil {
			t.Fatalf("UpsertAnalysis failed: %v", err)
		}
		got, _ := repo.FindAnalysis(ctx, "tenant-001", "subj-1", domain.BureauCIBIL)
		if got.DataHash != "def456" {
			t.Errorf("expected updated hash, got %s", got.DataHash)
		}
	})

	t.Run("RequiresAnalysis", func(t *testing.T) {
		err := repo.UpsertAnalysis(ctx, "tenant-001", &domain.CachedAnalysis{SubjectID: "x"})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestComparisonStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	res := &domain.ComparisonResult{
		TenantID:     "tenant-001",
		SubjectID:    "subj-1",
		AverageScore: 700,
		UnifiedGrade: domain.GradeB,
		BestBureau:   domain.BureauCIBIL,
		GeneratedAt:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.SaveComparison(ctx, "tenant-001", res); err != nil {
		t.Fatalf("SaveComparison failed: %v", err)
	}

	got, err := repo.GetComparison(ctx, "tenant-001", "subj-1")
	if err != nil {
		t.Fatalf("GetComparison failed: %v", err)
	}
	if got.AverageScore != 700 || got.BestBureau != domain.BureauCIBIL {
		t.Errorf("unexpected comparison: %+v", got)
	}

	if _, err := repo.GetComparison(ctx, "tenant-002", "subj-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other tenant, got %v", err)
	}
}

func TestLenderProfileStore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	profiles := []*domain.LenderProfile{
		{ID: "coop-bank", Name: "Co-op Bank", Tier: 3, MinGrade: domain.GradeCPlus, Enabled: true},
		{ID: "city-nbfc", Name: "City NBFC", Tier: 2, Expression: "score >= 55.0", Enabled: true},
	}
	for _, p := range profiles {
		if err := repo.SaveLenderProfile(ctx, "tenant-001", p); err != nil {
			t.Fatalf("SaveLenderProfile failed: %v", err)
		}
	}

	list, err := repo.ListLenderProfiles(ctx, "tenant-001")
	if err != nil {
		t.Fatalf("ListLenderProfiles failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "city-nbfc" {
		t.Fatalf("expected city-nbfc first by tier, got %+v", list)
	}
	if list[0].TenantID != "tenant-001" || list[0].Expression != "score >= 55.0" {
		t.Errorf("unexpected profile: %+v", list[0])
	}

	t.Run("Delete", func(t *testing.T) {
		if err := repo.DeleteLenderProfile(ctx, "tenant-001", "city-nbfc"); err != nil {
			t.Fatalf("DeleteLenderProfile failed: %v", err)
		}
		list, _ := repo.ListLenderProfiles(ctx, "tenant-001")
		if len(list) != 1 {
			t.Errorf("expected 1 profile after delete, got %d", len(list))
		}
		if err := repo.DeleteLenderProfile(ctx, "tenant-001", "city-nbfc"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound on second delete, got %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		list, err := repo.ListLenderProfiles(ctx, "tenant-002")
		if err != nil {
			t.Fatalf("ListLenderProfiles failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected no profiles for other tenant, got %d", len(list))
		}
	})
}

func TestNewRepository(t *testing.T) {
	t.Run("InMemory", func(t *testing.T) {
		repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer repo.Close()

		if err := repo.SaveReport(context.Background(), "t", sampleReport("s", domain.BureauEquifax, 0)); err != nil {
			t.Errorf("SaveReport on in-memory db failed: %v", err)
		}
	})

	t.Run("UnsupportedDriver", func(t *testing.T) {
		if _, err := New(domain.RepositoryConfig{Driver: "mysql"}); err == nil {
			t.Error("expected error for unsupported driver")
		}
	})
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "postgres"}
	if got := pg.rebind("a = ? AND b = ? AND c = ?"); got != "a = $1 AND b = $2 AND c = $3" {
		t.Errorf("unexpected rebind: %s", got)
	}

	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite query should be unchanged, got %s", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	dsn := postgresDSN(domain.RepositoryConfig{PostgresUser: "cl", PostgresPassword: "pw"})
	want := "host=localhost port=5432 user=cl password=pw dbname=creditlens sslmode=disable application_name=creditlens connect_timeout=10"
	if dsn != want {
		t.Errorf("expected %q, got %q", want, dsn)
	}
}
