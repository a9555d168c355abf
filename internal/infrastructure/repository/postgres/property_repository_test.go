package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
)

func newPropertyRepoWithMock(t *testing.T) (*PropertyRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewPropertyRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock, func() { _ = db.Close() }
}

const ranchRecord = `{"property_id":"AZ-COC-001","name":"Flagstaff Ranch","price":425000,"location":{"city":"Flagstaff"},"hoa":{"name":"Pine Meadows","monthly_fee":85}}`

func TestFetchRecordExactMatch(t *testing.T) {
	repo, mock, done := newPropertyRepoWithMock(t)
	defer done()

	updated := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("WHERE lower\\(property_id\\) = lower\\(\\$1\\)").
		WithArgs("az-coc-001").
		WillReturnRows(sqlmock.NewRows([]string{"record", "updated_at"}).AddRow([]byte(ranchRecord), updated))

	p, err := repo.FetchRecord(context.Background(), " az-coc-001 ")
	if err != nil {
		t.Fatalf("FetchRecord() error = %v", err)
	}
	if p.ID != "AZ-COC-001" || p.Name != "Flagstaff Ranch" {
		t.Fatalf("unexpected property %+v", p)
	}
	if fee, ok := p.HOA.MonthlyFee.Get(); !ok || fee != 85 {
		t.Fatalf("unexpected hoa fee %+v", p.HOA)
	}
	if !p.UpdatedAt.Equal(updated) {
		t.Fatalf("expected updated_at from column, got %v", p.UpdatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFetchRecordFallsBackToPartialMatch(t *testing.T) {
	repo, mock, done := newPropertyRepoWithMock(t)
	defer done()

	mock.ExpectQuery("WHERE lower\\(property_id\\)").
		WithArgs("flagstaff").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("WHERE name ILIKE \\$1").
		WithArgs("%flagstaff%").
		WillReturnRows(sqlmock.NewRows([]string{"record", "updated_at"}).AddRow([]byte(ranchRecord), time.Now()))

	p, err := repo.FetchRecord(context.Background(), "flagstaff")
	if err != nil {
		t.Fatalf("FetchRecord() error = %v", err)
	}
	if p.ID != "AZ-COC-001" {
		t.Fatalf("unexpected property %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFetchRecordEscapesLikeWildcards(t *testing.T) {
	repo, mock, done := newPropertyRepoWithMock(t)
	defer done()

	mock.ExpectQuery("WHERE lower\\(property_id\\)").
		WithArgs("100%_lot").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("WHERE name ILIKE").
		WithArgs(`%100\%\_lot%`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FetchRecord(context.Background(), "100%_lot")
	if !domain.IsKind(err, domain.ErrPropertyNotFound) {
		t.Fatalf("expected ErrPropertyNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestFetchRecordPropagatesDatabaseErrors(t *testing.T) {
	repo, mock, done := newPropertyRepoWithMock(t)
	defer done()

	mock.ExpectQuery("WHERE lower\\(property_id\\)").
		WithArgs("AZ-1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FetchRecord(context.Background(), "AZ-1")
	if err == nil || domain.IsKind(err, domain.ErrPropertyNotFound) {
		t.Fatalf("expected database error, got %v", err)
	}
}

func TestFetchRecordRejectsEmptySubject(t *testing.T) {
	repo, _, done := newPropertyRepoWithMock(t)
	defer done()

	if _, err := repo.FetchRecord(context.Background(), "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestUpsertWritesRecordJSON(t *testing.T) {
	repo, mock, done := newPropertyRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO properties").
		WithArgs("AZ-COC-001", "Flagstaff Ranch", "Flagstaff", sqlmock.AnyArg(), time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), domain.Property{
		ID:       " AZ-COC-001 ",
		Name:     "Flagstaff Ranch",
		Price:    domain.Known[int64](425000),
		Location: domain.Location{City: "Flagstaff"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertRequiresID(t *testing.T) {
	repo, _, done := newPropertyRepoWithMock(t)
	defer done()

	if err := repo.Upsert(context.Background(), domain.Property{Name: "No id"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newPropertyRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(schemaLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS properties").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
