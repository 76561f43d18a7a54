package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

// CaseRepository persists case records. Transition is a compare-and-set on
// the current status and must be atomic per call.
type CaseRepository interface {
	Create(ctx context.Context, rec *domain.CaseRecord) error
	GetByID(ctx context.Context, id string) (*domain.CaseRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.CaseRecord, error)
	ListStale(ctx context.Context, statuses []domain.PipelineStatus, updatedBefore time.Time, limit int) ([]domain.CaseRecord, error)
	Transition(ctx context.Context, id string, from domain.PipelineStatus, update domain.CaseUpdate) error
	Delete(ctx context.Context, ownerID, id string) error
}

// BlobStore holds uploaded file bytes.
type BlobStore interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// CaseDispatcher publishes and consumes "case created" events. Handlers run
// detached from the publishing request.
type CaseDispatcher interface {
	PublishCaseCreated(ctx context.Context, caseID string) error
	SubscribeCaseCreated(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor converts raw document bytes into plain text. The format is
// taken from the file name's extension.
type TextExtractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (string, error)
}

// CaseClassifier produces a verdict for extracted text. A reply that cannot be
// parsed yields a fallback verdict, not an error.
type CaseClassifier interface {
	Classify(ctx context.Context, text string) (domain.Verdict, error)
}

// PipelineObserver receives per-run telemetry from the case processor.
// outcome is the legacy state the run wrote, or "superseded" when another
// writer moved the record first.
type PipelineObserver interface {
	CaseStarted(queueLag time.Duration)
	CaseFinished(outcome string, duration time.Duration)
}

// CaseReportRenderer lays out case records as a report document.
type CaseReportRenderer interface {
	Render(ctx context.Context, cases []domain.CaseRecord) ([]byte, error)
	ContentType() string
}
