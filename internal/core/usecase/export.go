package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

type ExportCasesUseCase struct {
	repo     ports.CaseRepository
	renderer ports.CaseReportRenderer
	logger   *slog.Logger
}

func NewExportCasesUseCase(repo ports.CaseRepository, renderer ports.CaseReportRenderer, logger *slog.Logger) *ExportCasesUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExportCasesUseCase{repo: repo, renderer: renderer, logger: logger}
}

func (uc *ExportCasesUseCase) ExportCases(ctx context.Context, ownerID string) ([]byte, error) {
	start := time.Now()
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "export cases", errors.New("owner_id is required"))
	}

	cases, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list cases for export: %w", err)
	}
	report, err := uc.renderer.Render(ctx, cases)
	if err != nil {
		return nil, fmt.Errorf("render case report: %w", err)
	}

	uc.logger.Info("cases_exported",
		"owner_id", ownerID,
		"rows", len(cases),
		"bytes", len(report),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return report, nil
}

func (uc *ExportCasesUseCase) ContentType() string {
	return uc.renderer.ContentType()
}
