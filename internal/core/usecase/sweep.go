package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

const defaultSweepBatch = 100

// SweepStaleCasesUseCase fails records left in processing or processed by a
// run that died (worker crash, lost event), so no record stays stuck.
type SweepStaleCasesUseCase struct {
	repo       ports.CaseRepository
	staleAfter time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

func NewSweepStaleCasesUseCase(repo ports.CaseRepository, staleAfter time.Duration, logger *slog.Logger) *SweepStaleCasesUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &SweepStaleCasesUseCase{
		repo:       repo,
		staleAfter: staleAfter,
		batch:      defaultSweepBatch,
		logger:     logger,
		now:        time.Now,
	}
}

func (uc *SweepStaleCasesUseCase) SweepStale(ctx context.Context) (int, error) {
	cutoff := uc.now().UTC().Add(-uc.staleAfter)
	stale, err := uc.repo.ListStale(ctx, []domain.PipelineStatus{domain.StatusProcessing, domain.StatusProcessed}, cutoff, uc.batch)
	if err != nil {
		return 0, fmt.Errorf("list stale cases: %w", err)
	}

	swept := 0
	for _, rec := range stale {
		stage := domain.StageExtraction
		if rec.Status == domain.StatusProcessed {
			stage = domain.StageClassification
		}
		obs := observationInterrupted
		err := uc.repo.Transition(ctx, rec.ID, rec.Status, domain.CaseUpdate{
			Status:       domain.StatusFailed,
			FailureStage: stage,
			Observations: &obs,
		})
		if err != nil {
			if domain.IsKind(err, domain.ErrInvalidTransition) || domain.IsKind(err, domain.ErrCaseNotFound) {
				continue
			}
			return swept, fmt.Errorf("fail stale case %s: %w", rec.ID, err)
		}
		uc.logger.Warn("case_swept_stale", "case_id", rec.ID, "stage", stage, "updated_at", rec.UpdatedAt)
		swept++
	}
	return swept, nil
}
