package ports

import (
	"context"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

// CaseSubmitter is the inbound contract for the upload layer: create the case
// record and hand the rest of the work to a detached run.
type CaseSubmitter interface {
	Submit(ctx context.Context, ownerID, filePath string) (*domain.CaseRecord, error)
}

// CaseReader is the inbound read model for case state.
type CaseReader interface {
	GetByID(ctx context.Context, id string) (*domain.CaseRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.CaseRecord, error)
}

// CaseProcessor runs the ingestion pipeline for one case.
type CaseProcessor interface {
	ProcessByID(ctx context.Context, caseID string) error
}

// CaseRemover deletes a case and its uploaded blob.
type CaseRemover interface {
	Delete(ctx context.Context, ownerID, caseID string) error
}

// CaseSweeper fails cases abandoned mid-pipeline.
type CaseSweeper interface {
	SweepStale(ctx context.Context) (int, error)
}

// CaseExporter renders an owner's cases as a downloadable report.
type CaseExporter interface {
	ExportCases(ctx context.Context, ownerID string) ([]byte, error)
	ContentType() string
}
