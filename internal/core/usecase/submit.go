package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

type SubmitCaseUseCase struct {
	repo       ports.CaseRepository
	dispatcher ports.CaseDispatcher
	logger     *slog.Logger
}

func NewSubmitCaseUseCase(
	repo ports.CaseRepository,
	dispatcher ports.CaseDispatcher,
	logger *slog.Logger,
) *SubmitCaseUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitCaseUseCase{
		repo:       repo,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Submit inserts the case as processing and publishes it for a detached run.
// It returns as soon as the event is published.
func (uc *SubmitCaseUseCase) Submit(ctx context.Context, ownerID, filePath string) (*domain.CaseRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit case", errors.New("owner_id is required"))
	}
	blobPath, err := normalizeBlobPath(filePath)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit case", err)
	}

	now := time.Now().UTC()
	rec := &domain.CaseRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		FilePath:  blobPath,
		Status:    domain.StatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create case record: %w", err)
	}

	if err := uc.dispatcher.PublishCaseCreated(ctx, rec.ID); err != nil {
		uc.logger.Error("case_dispatch_failed", "case_id", rec.ID, "stage", domain.StageDispatch, "error", err)
		obs := observationDispatchFailed
		update := domain.CaseUpdate{
			Status:       domain.StatusFailed,
			FailureStage: domain.StageDispatch,
			Observations: &obs,
		}
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
		defer cancel()
		if failErr := uc.repo.Transition(writeCtx, rec.ID, domain.StatusProcessing, update); failErr != nil {
			return nil, fmt.Errorf("publish case event: %w; mark failed status: %v", err, failErr)
		}
		return nil, fmt.Errorf("publish case event: %w", err)
	}

	return rec, nil
}

// normalizeBlobPath strips leading slashes and rejects paths escaping the bucket.
func normalizeBlobPath(raw string) (string, error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return "", errors.New("file_path is required")
	}
	cleaned := path.Clean(trimmed)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("file_path %q escapes the blob store", raw)
	}
	return cleaned, nil
}
