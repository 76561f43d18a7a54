package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/coactivo-intake/internal/infrastructure/resilience"
)

const queueGroup = "case-workers"

// Queue carries "case created" events over a NATS subject. Every worker joins
// the same queue group, so each case is handled by exactly one subscriber.
type Queue struct {
	conn         *nats.Conn
	subject      string
	executor     *resilience.Executor
	concurrency  int
	caseTimeout  time.Duration
	drainTimeout time.Duration
	logger       *slog.Logger
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	// Concurrency caps the pipeline runs one subscriber executes at once.
	Concurrency int
	// CaseTimeout bounds a single handler invocation. Zero means no bound.
	CaseTimeout  time.Duration
	// DrainTimeout bounds how long shutdown waits for buffered messages.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	concurrency := options.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	drainTimeout := options.DrainTimeout
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("coactivo-intake"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:         conn,
		subject:      subject,
		executor:     options.ResilienceExecutor,
		concurrency:  concurrency,
		caseTimeout:  options.CaseTimeout,
		drainTimeout: drainTimeout,
		logger:       logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishCaseCreated(ctx context.Context, caseID string) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, []byte(caseID)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishFailure(err)
	}
	return nil
}

// SubscribeCaseCreated blocks until ctx is done. Each message runs in its own
// goroutine; at most Concurrency runs are in flight, and the subscription
// stops pulling messages while the limit is reached. Every delivered message
// is handled, including those that arrive while draining. On shutdown the
// subscription is drained, and runs are awaited once no callback can start
// another.
func (q *Queue) SubscribeCaseCreated(ctx context.Context, handler func(context.Context, string) error) error {
	slots := make(chan struct{}, q.concurrency)
	var inflight sync.WaitGroup

	sub, err := q.conn.QueueSubscribe(q.subject, queueGroup, func(msg *nats.Msg) {
		caseID := strings.TrimSpace(string(msg.Data))
		if caseID == "" {
			return
		}

		slots <- struct{}{}
		inflight.Add(1)
		go func() {
			defer inflight.Done()
			defer func() { <-slots }()
			q.handle(ctx, handler, caseID)
		}()
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	drainErr := sub.Drain()
	if drainErr == nil && !awaitDrained(sub, q.drainTimeout) {
		q.logger.Warn("nats_drain_timeout", "subject", q.subject, "timeout", q.drainTimeout.String())
		_ = sub.Unsubscribe()
	}
	inflight.Wait()
	if drainErr != nil {
		return fmt.Errorf("nats drain subscription: %w", drainErr)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func (q *Queue) handle(ctx context.Context, handler func(context.Context, string) error, caseID string) {
	// Runs outlive the subscription context so shutdown waits for them to
	// write a terminal status instead of aborting mid-stage.
	handlerCtx := context.WithoutCancel(ctx)
	if q.caseTimeout > 0 {
		var cancel context.CancelFunc
		handlerCtx, cancel = context.WithTimeout(handlerCtx, q.caseTimeout)
		defer cancel()
	}
	if err := handler(handlerCtx, caseID); err != nil {
		q.logger.Error("case_handler_failed", "case_id", caseID, "error", err)
	}
}

// awaitDrained reports whether the subscription finished draining within
// timeout. A drained subscription is invalid and delivers no more callbacks.
func awaitDrained(sub *nats.Subscription, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for sub.IsValid() {
		if time.Now().After(deadline) {
			return false
		}
		<-ticker.C
	}
	return true
}
