package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/coactivo-intake/internal/config"
	"github.com/kirillkom/coactivo-intake/internal/core/ports"
	"github.com/kirillkom/coactivo-intake/internal/core/usecase"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/extractor/document"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/llm/openrouter"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/repository/sqlite"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/coactivo-intake/internal/infrastructure/storage/minio"
	"github.com/kirillkom/coactivo-intake/internal/observability/metrics"
)

type Options struct {
	// Service labels logs and metrics ("api" or "worker").
	Service string
	// Registry receives pipeline metrics. Nil gives the app a private registry.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Repo       ports.CaseRepository
	Blobs      ports.BlobStore
	Dispatcher ports.CaseDispatcher

	SubmitUC  *usecase.SubmitCaseUseCase
	ReadUC    *usecase.ReadCasesUseCase
	DeleteUC  *usecase.DeleteCaseUseCase
	ExportUC  *usecase.ExportCasesUseCase
	ProcessUC *usecase.ProcessCaseUseCase
	SweepUC   *usecase.SweepStaleCasesUseCase

	PipelineMetrics *metrics.PipelineMetrics

	closers []func()
}

type caseStore interface {
	ports.CaseRepository
	EnsureSchema(ctx context.Context) error
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.PipelineMetrics = metrics.NewPipelineMetrics(opts.Service, opts.Registry)

	repo, err := app.openCaseStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Repo = repo

	blobs, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Blobs = blobs

	dispatcher, err := app.openDispatcher(cfg)
	if err != nil {
		return nil, err
	}
	app.Dispatcher = dispatcher

	classifierExec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        cfg.ClassifierRetryMaxAttempts,
		RetryInitialBackoff:     cfg.ClassifierRetryBackoff,
		RetryMaxBackoff:         4 * cfg.ClassifierRetryBackoff,
		RetryMultiplier:         2,
		BreakerEnabled:          cfg.ClassifierBreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.ClassifierBreakerMinRequests, 1)),
		BreakerFailureRatio:     cfg.ClassifierBreakerFailureRatio,
		BreakerOpenTimeout:      cfg.ClassifierBreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: 1,
		OnBreakerStateChange: func(operation, _, to string) {
			app.PipelineMetrics.BreakerStateChanged(operation, to)
		},
		Logger: logger,
	})
	classifier := newClassifier(cfg, classifierExec)

	app.SubmitUC = usecase.NewSubmitCaseUseCase(repo, dispatcher, logger)
	app.ReadUC = usecase.NewReadCasesUseCase(repo)
	app.DeleteUC = usecase.NewDeleteCaseUseCase(repo, blobs, logger)
	app.ExportUC = usecase.NewExportCasesUseCase(repo, xlsx.NewRenderer(), logger)
	app.ProcessUC = usecase.NewProcessCaseUseCase(repo, blobs, document.NewExtractor(), classifier, app.PipelineMetrics, logger)
	app.SweepUC = usecase.NewSweepStaleCasesUseCase(repo, cfg.StaleCaseAfter, logger)

	return app, nil
}

func newClassifier(cfg config.Config, exec *resilience.Executor) ports.CaseClassifier {
	if cfg.ClassifierBackend == config.ClassifierOllama {
		return ollama.NewClassifier(ollama.Options{
			BaseURL:       cfg.OllamaURL,
			Model:         cfg.OllamaModel,
			Timeout:       cfg.ClassifierTimeout,
			MaxInputChars: cfg.ClassifierMaxInputChars,
		}, exec)
	}
	return openrouter.NewClassifier(openrouter.Options{
		BaseURL:       cfg.ClassifierURL,
		APIKey:        cfg.ClassifierAPIKey,
		Model:         cfg.ClassifierModel,
		Timeout:       cfg.ClassifierTimeout,
		MaxInputChars: cfg.ClassifierMaxInputChars,
		Referer:       cfg.ClassifierReferer,
		AppTitle:      cfg.ClassifierAppTitle,
	}, exec)
}

func (a *App) openCaseStore(ctx context.Context, cfg config.Config) (caseStore, error) {
	var (
		db    *sql.DB
		store caseStore
		err   error
	)
	switch cfg.CaseStore {
	case config.CaseStoreSQLite:
		db, err = sqlite.OpenDB(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		store = sqlite.NewCaseRepository(db)
	default:
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store = postgres.NewCaseRepository(db)
	}
	a.closers = append(a.closers, func() { _ = db.Close() })

	if err := store.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

func openBlobStore(ctx context.Context, cfg config.Config) (ports.BlobStore, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendMinIO:
		storage, err := minio.New(minio.Config{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("init minio storage: %w", err)
		}
		if err := storage.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket: %w", err)
		}
		return storage, nil
	default:
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return storage, nil
	}
}

func (a *App) openDispatcher(cfg config.Config) (ports.CaseDispatcher, error) {
	switch cfg.DispatchMode {
	case config.DispatchNATS:
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resilience.Config{
				RetryMaxAttempts: 3,
				BreakerEnabled:   true,
				OnBreakerStateChange: func(operation, _, to string) {
					a.PipelineMetrics.BreakerStateChanged(operation, to)
				},
				Logger: a.Logger,
			}),
			Concurrency: cfg.WorkerConcurrency,
			CaseTimeout: cfg.CaseProcessTimeout,
			Logger:      a.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		a.closers = append(a.closers, queue.Close)
		return queue, nil
	default:
		return inproc.New(inproc.Options{
			Scheduler:   inproc.NewPool(cfg.WorkerConcurrency),
			CaseTimeout: cfg.CaseProcessTimeout,
			Logger:      a.Logger,
		}), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
