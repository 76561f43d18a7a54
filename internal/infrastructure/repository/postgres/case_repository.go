package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

const caseColumns = `id, owner_id, file_path, status, verdict, failure_stage, title, observations, details, verdict_fallback, mandate_path, created_at, updated_at`

type CaseRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewCaseRepository(db *sql.DB) *CaseRepository {
	return &CaseRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *CaseRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101701)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

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
	details JSONB,
	verdict_fallback BOOLEAN NOT NULL DEFAULT FALSE,
	mandate_path TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT cases_verdict_only_when_completed CHECK (verdict IS NULL OR status = 'completed'),
	CONSTRAINT cases_stage_only_when_failed CHECK (failure_stage IS NULL OR status = 'failed')
);

CREATE INDEX IF NOT EXISTS idx_cases_owner_created ON cases(owner_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cases_status_updated ON cases(status, updated_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *CaseRepository) Create(ctx context.Context, rec *domain.CaseRecord) error {
	details, err := marshalDetails(rec.Details)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO cases (`+caseColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		rec.ID, rec.OwnerID, rec.FilePath, string(rec.Status), lightArg(rec.Verdict), stageArg(rec.FailureStage),
		rec.Title, rec.Observations, details, rec.VerdictFallback, rec.MandatePath, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "insert case", err)
	}
	return nil
}

func (r *CaseRepository) GetByID(ctx context.Context, id string) (*domain.CaseRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)

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
	rows, err := r.db.QueryContext(ctx, `
SELECT `+caseColumns+`
FROM cases
WHERE owner_id = $1
ORDER BY created_at DESC
`, ownerID)
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
	placeholders := make([]string, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, string(status))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	args = append(args, updatedBefore, limit)

	query := fmt.Sprintf(`
SELECT %s
FROM cases
WHERE status IN (%s) AND updated_at < $%d
ORDER BY updated_at ASC
LIMIT $%d
`, caseColumns, strings.Join(placeholders, ","), len(args)-1, len(args))

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
SET status = $3,
	verdict = $4,
	failure_stage = $5,
	title = COALESCE($6, title),
	observations = COALESCE($7, observations),
	details = COALESCE($8, details),
	verdict_fallback = $9,
	updated_at = $10
WHERE id = $1 AND status = $2
`, id, string(from), string(update.Status), lightArg(update.Verdict), stageArg(update.FailureStage),
		update.Title, update.Observations, details, update.VerdictFallback, r.now())
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
	return r.explainMissedTransition(ctx, id, from, update.Status)
}

func (r *CaseRepository) explainMissedTransition(ctx context.Context, id string, from, to domain.PipelineStatus) error {
	var current string
	err := r.db.QueryRowContext(ctx, `SELECT status FROM cases WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrCaseNotFound, "transition case", fmt.Errorf("id %s", id))
	}
	if err != nil {
		return domain.WrapError(domain.ErrStorageUnavailable, "transition case", err)
	}
	return domain.WrapError(domain.ErrInvalidTransition, "transition case",
		fmt.Errorf("%s -> %s: current status is %s", from, to, current))
}

func (r *CaseRepository) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cases WHERE id = $1 AND owner_id = $2`, id, ownerID)
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
	var status string
	var verdict, stage, title, mandate sql.NullString
	var details []byte

	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.FilePath, &status, &verdict, &stage, &title,
		&rec.Observations, &details, &rec.VerdictFallback, &mandate, &rec.CreatedAt, &rec.UpdatedAt,
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
	if len(details) > 0 {
		var d domain.VerdictDetails
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("unmarshal details: %w", err)
		}
		rec.Details = &d
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

// marshalDetails returns an untyped nil for absent details so the driver
// binds SQL NULL.
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
