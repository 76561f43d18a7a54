package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

const caseColumns = `id, owner_id, file_path, status, verdict, failure_stage, title, observations, details, verdict_fallback, mandate_path, created_at, updated_at`

// OpenDB opens a SQLite database file. A single connection keeps writers
// serialized, which the compare-and-set transitions rely on.
func OpenDB(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

type CaseRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *CaseRepository) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS cases (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	status TEXT NOT NULL,
	verdict TEXT,
	failure_stage TEXT,
	title TEXT,
	observations TEXT NOT NULL DEFAULT '',
	details TEXT,
	verdict_fallback INTEGER NOT NULL DEFAULT 0,
	mandate_path TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cases_owner_created ON cases(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cases_status_updated ON cases(status, updated_at);
`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	return nil
}

func (r *CaseRepository) Create(ctx context.Context, rec *domain.CaseRecord) error {
	details, err := marshalDetails(rec.Details)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `INSERT INTO cases (`+caseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.OwnerID, rec.FilePath, string(rec.Status), lightArg(rec.Verdict), stageArg(rec.FailureStage),
		rec.Title, rec.Observations, details, rec.VerdictFallback, rec.MandatePath,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "insert case", err)
	}
	return nil
}

func (r *CaseRepository) GetByID(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = ?`, id)
	rec, err := scanCase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id %s", id))
		}
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "get case", err)
	}
	return rec, nil
}

func (r *CaseRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.CaseRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "list cases", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

func (r *CaseRepository) ListStale(ctx context.Context, statuses []domain.PipelineStatus, updatedBefore time.Time, limit int) ([]domain.CaseRecord, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(statuses)+2)
	for _, status := range statuses {
		args = append(args, string(status))
	}
	args = append(args, formatTime(updatedBefore), limit)

	query := `SELECT ` + caseColumns + ` FROM cases WHERE status IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",") +
		`) AND updated_at < ? ORDER BY updated_at ASC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "list stale cases", err)
	}
	defer rows.Close()
	return collectCases(rows)
}

// Transition applies update only while the stored status still equals from.
func (r *CaseRepository) Transition(ctx context.Context, id string, from domain.PipelineStatus, update domain.CaseUpdate) error {
	if err := domain.ValidateTransition(from, update.Status); err != nil {
		return err
	}
	if err := update.Validate(); err != nil {
		return err
	}
	details, err := marshalDetails(update.Details)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE cases
SET status = ?,
	verdict = ?,
	failure_stage = ?,
	title = COALESCE(?, title),
	observations = COALESCE(?, observations),
	details = COALESCE(?, details),
	verdict_fallback = ?,
	updated_at = ?
WHERE id = ? AND status = ?
`, string(update.Status), lightArg(update.Verdict), stageArg(update.FailureStage),
		update.Title, update.Observations, details, update.VerdictFallback, formatTime(r.now()),
		id, string(from))
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "transition case", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "transition case", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM cases WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrCaseNotFound, "transition case", fmt.Errorf("id %s", id))
	}
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "transition case", err)
	}
	return domain.WrapError(domain.ErrInvalidTransition, "transition case",
		fmt.Errorf("%s -> %s: current status is %s", from, update.Status, current))
}

func (r *CaseRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cases WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "delete case", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "delete case", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrCaseNotFound, "delete case", fmt.Errorf("id %s", id))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*domain.CaseRecord, error) {
	var rec domain.CaseRecord
	var status, createdAt, updatedAt string
	var verdict, stage, title, details, mandate sql.NullString

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.FilePath, &status, &verdict, &stage, &title,
		&rec.Observations, &details, &rec.VerdictFallback, &mandate, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.PipelineStatus(status)
	if verdict.Valid {
		light := domain.TrafficLight(verdict.String)
		rec.Verdict = &light
	}
	rec.FailureStage = domain.FailureStage(stage.String)
	if title.Valid {
		rec.Title = &title.String
	}
	if mandate.Valid {
		rec.MandatePath = &mandate.String
	}
	if details.Valid && details.String != "" {
		var d domain.VerdictDetails
		if err := json.Unmarshal([]byte(details.String), &d); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
		rec.Details = &d
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}

func collectCases(rows *sql.Rows) ([]domain.CaseRecord, error) {
	out := make([]domain.CaseRecord, 0)
	for rows.Next() {
		rec, err := scanCase(rows)
		if err != nil {
			return nil, domain.WrapError(domain.ErrStorageUnavailable, "scan case", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "iterate cases", err)
	}
	return out, nil
}

// formatTime keeps a fixed-width layout so stored timestamps sort lexically.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func marshalDetails(details *domain.VerdictDetails) (any, error) {
	if details == nil {
		return nil, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal details: %w", err)
	}
	return string(raw), nil
}

func lightArg(light *domain.TrafficLight) any {
	if light == nil {
		return nil
	}
	return string(*light)
}

func stageArg(stage domain.FailureStage) any {
	if stage == "" {
		return nil
	}
	return string(stage)
}
