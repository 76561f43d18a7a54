package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
)

const failureWriteTimeout = 10 * time.Second

// OutcomeSuperseded is the observed outcome of a run whose record was moved
// or deleted by someone else before the run could write its result.
const OutcomeSuperseded = "superseded"

const (
	observationDispatchFailed             = "the document could not be queued for processing"
	observationDownloadFailed             = "the uploaded file could not be retrieved"
	observationExtractionFailed           = "the document text could not be extracted"
	observationUnsupportedFormat          = "unsupported file format: only .pdf and .docx documents are accepted"
	observationRecordNotUpdated           = "the case record could not be updated"
	observationClassificationUnavailable  = "the classification service could not be reached"
	observationClassificationNotPersisted = "the classification result could not be saved"
	observationInterrupted                = "processing was interrupted before completion"
)

// ProcessCaseUseCase drives one case record through
// processing -> processed -> completed, or into failed at the stage that broke.
// Every run ends with a terminal status written to the record.
type ProcessCaseUseCase struct {
	repo       ports.CaseRepository
	blobs      ports.BlobStore
	extractor  ports.TextExtractor
	classifier ports.CaseClassifier
	observer   ports.PipelineObserver
	logger     *slog.Logger
}

func NewProcessCaseUseCase(
	repo ports.CaseRepository,
	blobs ports.BlobStore,
	extractor ports.TextExtractor,
	classifier ports.CaseClassifier,
	observer ports.PipelineObserver,
	logger *slog.Logger,
) *ProcessCaseUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessCaseUseCase{
		repo:       repo,
		blobs:      blobs,
		extractor:  extractor,
		classifier: classifier,
		observer:   observer,
		logger:     logger,
	}
}

func (uc *ProcessCaseUseCase) ProcessByID(ctx context.Context, caseID string) error {
	rec, err := uc.repo.GetByID(ctx, caseID)
	if err != nil {
		return fmt.Errorf("fetch case by id: %w", err)
	}
	if rec.Status != domain.StatusProcessing {
		// One attempt per record: redelivered events for a moved record are dropped.
		return domain.WrapError(
			domain.ErrInvalidTransition,
			"process case",
			fmt.Errorf("case %s is %s, expected %s", rec.ID, rec.Status, domain.StatusProcessing),
		)
	}

	start := time.Now()
	if uc.observer != nil {
		uc.observer.CaseStarted(start.Sub(rec.CreatedAt))
	}
	outcome, err := uc.run(ctx, rec)
	if recordMoved(err) {
		outcome = OutcomeSuperseded
	}
	if uc.observer != nil {
		uc.observer.CaseFinished(outcome, time.Since(start))
	}
	return err
}

// run returns the legacy state the record ended in alongside any stage error.
func (uc *ProcessCaseUseCase) run(ctx context.Context, rec *domain.CaseRecord) (string, error) {
	logger := uc.logger.With("case_id", rec.ID)

	data, err := uc.download(ctx, rec)
	if err != nil {
		return domain.LegacyStateError, uc.fail(ctx, logger, rec.ID, domain.StatusProcessing, domain.StageDownload, observationDownloadFailed, err)
	}

	text, err := uc.extract(ctx, rec, data)
	if err != nil {
		obs := observationExtractionFailed
		if domain.IsKind(err, domain.ErrUnsupportedFormat) {
			obs = observationUnsupportedFormat
		}
		return domain.LegacyStateError, uc.fail(ctx, logger, rec.ID, domain.StatusProcessing, domain.StageExtraction, obs, err)
	}
	logger.Info("case_text_extracted", "chars", len([]rune(text)), "preview", preview(text, 200))

	if err := uc.repo.Transition(ctx, rec.ID, domain.StatusProcessing, domain.CaseUpdate{Status: domain.StatusProcessed}); err != nil {
		err = fmt.Errorf("set status=processed: %w", err)
		return domain.LegacyStateError, uc.fail(ctx, logger, rec.ID, domain.StatusProcessing, domain.StageExtraction, observationRecordNotUpdated, err)
	}

	verdict, err := uc.classify(ctx, text)
	if err != nil {
		return domain.LegacyStateErrorClassification, uc.fail(ctx, logger, rec.ID, domain.StatusProcessed, domain.StageClassification, observationClassificationUnavailable, err)
	}
	if verdict.Fallback {
		logger.Warn("classification_fallback", "stage", domain.StageClassification, "error", verdict.ParseErr)
	}

	if err := uc.repo.Transition(ctx, rec.ID, domain.StatusProcessed, completedUpdate(verdict)); err != nil {
		err = fmt.Errorf("set status=completed: %w", err)
		return domain.LegacyStateErrorClassification, uc.fail(ctx, logger, rec.ID, domain.StatusProcessed, domain.StageClassification, observationClassificationNotPersisted, err)
	}

	logger.Info("case_completed", "verdict", verdict.Light, "fallback", verdict.Fallback)
	return string(verdict.Light), nil
}

func (uc *ProcessCaseUseCase) download(ctx context.Context, rec *domain.CaseRecord) ([]byte, error) {
	reader, err := uc.blobs.Open(ctx, rec.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open blob: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "read blob", err)
	}
	return data, nil
}

func (uc *ProcessCaseUseCase) extract(ctx context.Context, rec *domain.CaseRecord, data []byte) (string, error) {
	text, err := uc.extractor.Extract(ctx, rec.FilePath, data)
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return text, nil
}

func (uc *ProcessCaseUseCase) classify(ctx context.Context, text string) (domain.Verdict, error) {
	verdict, err := uc.classifier.Classify(ctx, text)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("classify case: %w", err)
	}
	return verdict, nil
}

// fail logs the stage error and moves the record to failed. The write uses a
// context detached from ctx so a cancelled run still leaves a terminal state.
func (uc *ProcessCaseUseCase) fail(
	ctx context.Context,
	logger *slog.Logger,
	caseID string,
	from domain.PipelineStatus,
	stage domain.FailureStage,
	observation string,
	cause error,
) error {
	if recordMoved(cause) {
		logger.Warn("case_superseded", "stage", stage, "from", from, "error", cause)
		return cause
	}
	logger.Error("case_stage_failed", "stage", stage, "from", from, "error", cause)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	update := domain.CaseUpdate{
		Status:       domain.StatusFailed,
		FailureStage: stage,
		Observations: &observation,
	}
	if err := uc.repo.Transition(writeCtx, caseID, from, update); err != nil {
		if recordMoved(err) {
			logger.Warn("case_superseded", "stage", stage, "from", from, "error", err)
			return fmt.Errorf("%w; mark failed status: %w", cause, err)
		}
		logger.Error("case_failure_not_recorded", "stage", stage, "error", err)
		return fmt.Errorf("%w; mark failed status: %v", cause, err)
	}
	return cause
}

// recordMoved reports a transition lost to another writer, typically the
// stale sweeper, or a record deleted mid-run.
func recordMoved(err error) bool {
	return domain.IsKind(err, domain.ErrInvalidTransition) || domain.IsKind(err, domain.ErrCaseNotFound)
}

func completedUpdate(verdict domain.Verdict) domain.CaseUpdate {
	light := verdict.Light
	observation := verdict.Observation
	update := domain.CaseUpdate{
		Status:          domain.StatusCompleted,
		Verdict:         &light,
		Observations:    &observation,
		VerdictFallback: verdict.Fallback,
	}
	if title := strings.TrimSpace(verdict.Details.TitleType); title != "" {
		update.Title = &title
	}
	if !verdict.Fallback {
		details := verdict.Details
		update.Details = &details
	}
	return update
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
