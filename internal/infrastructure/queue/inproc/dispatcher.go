package inproc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/coactivo-intake/internal/core/domain"
)

// Scheduler starts fn on some goroutine. It must not block the caller.
type Scheduler interface {
	Go(fn func())
}

// Pool runs at most size functions at once. Go never blocks: excess work
// waits on its own goroutine for a free slot.
type Pool struct {
	slots chan struct{}
}

func NewPool(size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{slots: make(chan struct{}, size)}
}

func (p *Pool) Go(fn func()) {
	go func() {
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		fn()
	}()
}

type Options struct {
	Scheduler Scheduler
	// CaseTimeout bounds a single handler invocation. Zero means no bound.
	CaseTimeout time.Duration
	Logger      *slog.Logger
}

// Dispatcher hands "case created" events to a handler in the same process.
// Events published before a subscriber attaches are buffered and delivered
// on subscribe.
type Dispatcher struct {
	scheduler   Scheduler
	caseTimeout time.Duration
	logger      *slog.Logger

	mu       sync.Mutex
	handler  func(context.Context, string) error
	runCtx   context.Context
	pending  []string
	closed   bool
	inflight sync.WaitGroup
}

func New(options Options) *Dispatcher {
	scheduler := options.Scheduler
	if scheduler == nil {
		scheduler = NewPool(4)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		scheduler:   scheduler,
		caseTimeout: options.CaseTimeout,
		logger:      logger,
	}
}

var errDispatcherClosed = errors.New("dispatcher is closed")

func (d *Dispatcher) PublishCaseCreated(_ context.Context, caseID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return domain.WrapError(domain.ErrTemporary, "publish case", errDispatcherClosed)
	}
	if d.handler == nil {
		d.pending = append(d.pending, caseID)
		return nil
	}
	d.startLocked(caseID)
	return nil
}

// SubscribeCaseCreated blocks until ctx is done, then waits for in-flight
// runs. Only one subscriber may be attached.
func (d *Dispatcher) SubscribeCaseCreated(ctx context.Context, handler func(context.Context, string) error) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return errDispatcherClosed
	}
	if d.handler != nil {
		d.mu.Unlock()
		return errors.New("dispatcher already has a subscriber")
	}
	d.handler = handler
	// Runs outlive the subscription so shutdown lets them reach a terminal status.
	d.runCtx = context.WithoutCancel(ctx)
	pending := d.pending
	d.pending = nil
	for _, caseID := range pending {
		d.startLocked(caseID)
	}
	d.mu.Unlock()

	<-ctx.Done()

	d.mu.Lock()
	d.closed = true
	d.handler = nil
	d.mu.Unlock()

	d.inflight.Wait()
	return nil
}

func (d *Dispatcher) startLocked(caseID string) {
	handler := d.handler
	runCtx := d.runCtx
	d.inflight.Add(1)
	d.scheduler.Go(func() {
		defer d.inflight.Done()

		ctx := runCtx
		if d.caseTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.caseTimeout)
			defer cancel()
		}
		if err := handler(ctx, caseID); err != nil {
			d.logger.Error("case_handler_failed", "case_id", caseID, "error", err)
		}
	})
}
