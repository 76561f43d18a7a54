package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

type memoryRepoFake struct {
	mu          sync.Mutex
	records     map[string]*domain.CaseRecord
	history     map[string][]domain.PipelineStatus
	createErr   error
	transitErr  map[domain.PipelineStatus]error
	deleteCalls []string
}

func newMemoryRepoFake() *memoryRepoFake {
	return &memoryRepoFake{
		records:    make(map[string]*domain.CaseRecord),
		history:    make(map[string][]domain.PipelineStatus),
		transitErr: make(map[domain.PipelineStatus]error),
	}
}

func (f *memoryRepoFake) seed(rec domain.CaseRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyRec := rec
	f.records[rec.ID] = &copyRec
	f.history[rec.ID] = []domain.PipelineStatus{rec.Status}
}

func (f *memoryRepoFake) Create(_ context.Context, rec *domain.CaseRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.seed(*rec)
	return nil
}

func (f *memoryRepoFake) GetByID(_ context.Context, id string) (*domain.CaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrCaseNotFound, "get case", fmt.Errorf("id=%s", id))
	}
	copyRec := *rec
	return &copyRec, nil
}

func (f *memoryRepoFake) ListByOwner(_ context.Context, ownerID string) ([]domain.CaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CaseRecord
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *memoryRepoFake) ListStale(_ context.Context, statuses []domain.PipelineStatus, before time.Time, limit int) ([]domain.CaseRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CaseRecord
	for _, rec := range f.records {
		for _, st := range statuses {
			if rec.Status == st && rec.UpdatedAt.Before(before) {
				out = append(out, *rec)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *memoryRepoFake) Transition(_ context.Context, id string, from domain.PipelineStatus, update domain.CaseUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.transitErr[update.Status]; err != nil {
		return err
	}
	if err := domain.ValidateTransition(from, update.Status); err != nil {
		return err
	}
	rec, ok := f.records[id]
	if !ok {
		return domain.WrapError(domain.ErrCaseNotFound, "transition case", fmt.Errorf("id=%s", id))
	}
	if rec.Status != from {
		return domain.WrapError(domain.ErrInvalidTransition, "transition case", fmt.Errorf("%s is %s", id, rec.Status))
	}
	rec.Status = update.Status
	rec.FailureStage = update.FailureStage
	rec.VerdictFallback = update.VerdictFallback
	if update.Verdict != nil {
		rec.Verdict = update.Verdict
	}
	if update.Title != nil {
		rec.Title = update.Title
	}
	if update.Observations != nil {
		rec.Observations = *update.Observations
	}
	if update.Details != nil {
		rec.Details = update.Details
	}
	rec.UpdatedAt = time.Now().UTC()
	f.history[id] = append(f.history[id], update.Status)
	return nil
}

func (f *memoryRepoFake) Delete(_ context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.OwnerID != ownerID {
		return domain.WrapError(domain.ErrCaseNotFound, "delete case", fmt.Errorf("id=%s", id))
	}
	delete(f.records, id)
	f.deleteCalls = append(f.deleteCalls, id)
	return nil
}

func (f *memoryRepoFake) statusHistory(id string) []domain.PipelineStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.PipelineStatus(nil), f.history[id]...)
}

type blobFake struct {
	data      map[string][]byte
	openErr   error
	removeErr error
	removed   []string
}

func (f *blobFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.data == nil {
		f.data = make(map[string][]byte)
	}
	f.data[key] = raw
	return nil
}

func (f *blobFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	raw, ok := f.data[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrStorageUnavailable, "open blob", errors.New("not found"))
	}
	return io.NopCloser(strings.NewReader(string(raw))), nil
}

func (f *blobFake) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	return f.removeErr
}

type extractorFake struct {
	text    string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *extractorFake) Extract(context.Context, string, []byte) (string, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type classifierFake struct {
	verdict domain.Verdict
	err     error
	calls   int
	gotText string
	started chan struct{}
	release chan struct{}
}

func (f *classifierFake) Classify(_ context.Context, text string) (domain.Verdict, error) {
	f.calls++
	f.gotText = text
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return domain.Verdict{}, f.err
	}
	return f.verdict, nil
}

type dispatcherFake struct {
	published []string
	err       error
}

func (f *dispatcherFake) PublishCaseCreated(_ context.Context, caseID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, caseID)
	return nil
}

func (f *dispatcherFake) SubscribeCaseCreated(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

type observerFake struct {
	mu       sync.Mutex
	started  int
	outcomes []string
}

func (f *observerFake) CaseStarted(time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *observerFake) CaseFinished(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}
