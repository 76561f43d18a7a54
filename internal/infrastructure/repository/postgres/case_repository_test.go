package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*CaseRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewCaseRepository(db)
	repo.now = func() time.Time { return fixedNow }
	return repo, mock, func() { _ = db.Close() }
}

func caseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_id", "file_path", "status", "verdict", "failure_stage", "title",
		"observations", "details", "verdict_fallback", "mandate_path", "created_at", "updated_at",
	})
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, owner_id, file_path").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDScansCompletedCase(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, owner_id, file_path").
		WithArgs("case-1").
		WillReturnRows(caseRows().AddRow(
			"case-1", "owner-1", "owner-1/a.pdf", "completed", "yellow", nil, "Resolución",
			"fecha ilegible", []byte(`{"debtor_name":"Ana","amount":"100"}`), false, nil, fixedNow, fixedNow,
		))

	rec, err := repo.GetByID(context.Background(), "case-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if rec.Verdict == nil || *rec.Verdict != domain.LightYellow {
		t.Fatalf("verdict = %v", rec.Verdict)
	}
	if rec.Title == nil || *rec.Title != "Resolución" {
		t.Fatalf("title = %v", rec.Title)
	}
	if rec.Details == nil || rec.Details.DebtorName != "Ana" || rec.Details.Amount != "100" {
		t.Fatalf("details = %+v", rec.Details)
	}
	if rec.FailureStage != "" || rec.MandatePath != nil {
		t.Fatalf("unexpected nullable fields: %+v", rec)
	}
	if rec.LegacyState() != "yellow" {
		t.Fatalf("legacy state = %q", rec.LegacyState())
	}
}

func TestGetByIDStorageFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, owner_id, file_path").
		WithArgs("case-1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "case-1")
	if !domain.IsKind(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestCreateBindsNullsForUnsetFields(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO cases").
		WithArgs("case-1", "owner-1", "owner-1/a.pdf", "processing", nil, nil, nil, "", nil, false, nil, fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.CaseRecord{
		ID: "case-1", OwnerID: "owner-1", FilePath: "owner-1/a.pdf",
		Status: domain.StatusProcessing, CreatedAt: fixedNow, UpdatedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionCompletesCase(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	light := domain.LightGreen
	title := "Sentencia"
	obs := "ok"
	mock.ExpectExec("UPDATE cases").
		WithArgs("case-1", "processed", "completed", "green", nil, &title, &obs, `{"title_type":"Sentencia"}`, false, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Transition(context.Background(), "case-1", domain.StatusProcessed, domain.CaseUpdate{
		Status:       domain.StatusCompleted,
		Verdict:      &light,
		Title:        &title,
		Observations: &obs,
		Details:      &domain.VerdictDetails{TitleType: "Sentencia"},
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionReturnsNotFoundWhenRowIsGone(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE cases").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM cases").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	err := repo.Transition(context.Background(), "missing", domain.StatusProcessing, domain.CaseUpdate{Status: domain.StatusProcessed})
	if !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestTransitionReturnsInvalidTransitionWhenStatusMoved(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE cases").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM cases").
		WithArgs("case-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

	err := repo.Transition(context.Background(), "case-1", domain.StatusProcessing, domain.CaseUpdate{Status: domain.StatusProcessed})
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionRejectsBackwardMoveWithoutQuery(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	err := repo.Transition(context.Background(), "case-1", domain.StatusCompleted, domain.CaseUpdate{Status: domain.StatusProcessing})
	if !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListStaleBuildsStatusPlaceholders(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	cutoff := fixedNow.Add(-15 * time.Minute)
	mock.ExpectQuery(`WHERE status IN \(\$1,\$2\) AND updated_at < \$3`).
		WithArgs("processing", "processed", cutoff, 50).
		WillReturnRows(caseRows().AddRow(
			"case-1", "owner-1", "owner-1/a.pdf", "processing", nil, nil, nil, "", nil, false, nil, cutoff, cutoff,
		))

	stale, err := repo.ListStale(context.Background(), []domain.PipelineStatus{domain.StatusProcessing, domain.StatusProcessed}, cutoff, 50)
	if err != nil {
		t.Fatalf("ListStale() error = %v", err)
	}
	if len(stale) != 1 || stale[0].ID != "case-1" || stale[0].Details != nil {
		t.Fatalf("unexpected stale cases: %+v", stale)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReturnsNotFoundForForeignOwner(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM cases").
		WithArgs("case-1", "someone-else").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "someone-else", "case-1")
	if !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}
