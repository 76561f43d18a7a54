package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

type DeleteCaseUseCase struct {
	repo   ports.CaseRepository
	blobs  ports.BlobStore
	logger *slog.Logger
}

func NewDeleteCaseUseCase(repo ports.CaseRepository, blobs ports.BlobStore, logger *slog.Logger) *DeleteCaseUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeleteCaseUseCase{repo: repo, blobs: blobs, logger: logger}
}

// Delete removes the uploaded blob, then the record. A blob that cannot be
// removed is logged and does not block deleting the record.
func (uc *DeleteCaseUseCase) Delete(ctx context.Context, ownerID, caseID string) error {
	ownerID = strings.TrimSpace(ownerID)
	caseID = strings.TrimSpace(caseID)
	if ownerID == "" || caseID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "delete case", errors.New("owner_id and case id are required"))
	}

	rec, err := uc.repo.GetByID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("fetch case by id: %w", err)
	}
	if rec.OwnerID != ownerID {
		return domain.WrapError(domain.ErrCaseNotFound, "delete case", fmt.Errorf("id=%s", caseID))
	}

	if rec.FilePath != "" {
		if err := uc.blobs.Remove(ctx, rec.FilePath); err != nil {
			uc.logger.Warn("case_blob_remove_failed", "case_id", caseID, "file_path", rec.FilePath, "error", err)
		}
	}

	if err := uc.repo.Delete(ctx, ownerID, caseID); err != nil {
		return fmt.Errorf("delete case record: %w", err)
	}
	return nil
}
