package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

func TestDeleteRemovesBlobThenRecord(t *testing.T) {
	repo := newMemoryRepoFake()
	repo.seed(newProcessingCase("case-1", "titulo.pdf"))
	blobs := &blobFake{}
	uc := NewDeleteCaseUseCase(repo, blobs, nil)

	if err := uc.Delete(context.Background(), "owner-1", "case-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(blobs.removed) != 1 || blobs.removed[0] != "titulo.pdf" {
		t.Fatalf("expected blob removal, got %v", blobs.removed)
	}
	if _, err := repo.GetByID(context.Background(), "case-1"); !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected record to be gone, got %v", err)
	}
}

func TestDeleteIgnoresBlobFailure(t *testing.T) {
	repo := newMemoryRepoFake()
	repo.seed(newProcessingCase("case-1", "titulo.pdf"))
	uc := NewDeleteCaseUseCase(repo, &blobFake{removeErr: errors.New("bucket gone")}, nil)

	if err := uc.Delete(context.Background(), "owner-1", "case-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(repo.deleteCalls) != 1 {
		t.Fatalf("expected record delete despite blob failure")
	}
}

func TestDeleteHidesOtherOwnersCases(t *testing.T) {
	repo := newMemoryRepoFake()
	repo.seed(newProcessingCase("case-1", "titulo.pdf"))
	blobs := &blobFake{}
	uc := NewDeleteCaseUseCase(repo, blobs, nil)

	err := uc.Delete(context.Background(), "owner-2", "case-1")
	if !domain.IsKind(err, domain.ErrCaseNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(blobs.removed) != 0 {
		t.Fatalf("blob of another owner must not be removed")
	}
}
