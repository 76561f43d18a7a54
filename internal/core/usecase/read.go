package usecase

import (
	"context"
	"errors"
	"strings"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

type ReadCasesUseCase struct {
	repo ports.CaseRepository
}

func NewReadCasesUseCase(repo ports.CaseRepository) *ReadCasesUseCase {
	return &ReadCasesUseCase{repo: repo}
}

func (uc *ReadCasesUseCase) GetByID(ctx context.Context, id string) (*domain.CaseRecord, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get case", errors.New("case id is required"))
	}
	return uc.repo.GetByID(ctx, id)
}

// ListByOwner returns the owner's cases, newest first.
func (uc *ReadCasesUseCase) ListByOwner(ctx context.Context, ownerID string) ([]domain.CaseRecord, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list cases", errors.New("owner_id is required"))
	}
	return uc.repo.ListByOwner(ctx, ownerID)
}
