package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/screenware/reportflow/internal/config"
	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
	"github.com/screenware/reportflow/internal/core/usecase"
	"github.com/screenware/reportflow/internal/infrastructure/archive"
	"github.com/screenware/reportflow/internal/infrastructure/engine"
	"github.com/screenware/reportflow/internal/infrastructure/extractor/pdftext"
	"github.com/screenware/reportflow/internal/infrastructure/queue/nats"
	"github.com/screenware/reportflow/internal/infrastructure/repository/postgres"
	"github.com/screenware/reportflow/internal/infrastructure/resilience"
	"github.com/screenware/reportflow/internal/infrastructure/storage/localfs"
	"github.com/screenware/reportflow/internal/observability/metrics"
)

type App struct {
	Config config.Config

	Queue ports.PredictionQueue

	PipelineUC ports.DocumentSubmitter
	RetryUC    ports.StageRetrier
	BatchUC    ports.BatchSubmitter
	QueryUC    ports.DocumentReader
	ReviewUC   ports.ReviewUpdater
	PredictUC  ports.PredictionProcessor

	PredictionEngine ports.PredictionEngine

	APIMetrics    *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	Subscribe func(ctx context.Context) error

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	docRepo := postgres.NewDocumentRepository(db)
	if err := docRepo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	stageRepo := postgres.NewStageResultRepository(db)
	predictionRepo := postgres.NewPredictionRepository(db)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queueExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: queueExecutor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	engineExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	engineTimeout := time.Duration(cfg.EngineTimeoutSecs) * time.Second
	structurer := engine.NewStructuringClient(engine.NewClient(cfg.StructuringURL, engineTimeout, engineExecutor))
	predictor := engine.NewPredictionClient(engine.NewClient(cfg.PredictionURL, engineTimeout, engineExecutor))

	var extractor ports.ExtractionEngine
	if cfg.ExtractionMode == "remote" {
		extractor = engine.NewExtractionClient(engine.NewClient(cfg.ExtractionURL, engineTimeout, engineExecutor), storage)
	} else {
		extractor = pdftext.NewExtractor(storage)
	}

	taxonomy := domain.DefaultTaxonomy()
	if cfg.TaxonomyPath != "" {
		taxonomy, err = domain.LoadTaxonomy(cfg.TaxonomyPath)
		if err != nil {
			return nil, fmt.Errorf("load risk taxonomy: %w", err)
		}
	}

	limits := usecase.DefaultPipelineLimits()
	limits.MaxFileBytes = cfg.MaxFileBytes
	if cfg.EngineTimeoutSecs > 0 {
		limits.StructuringTimeout = engineTimeout
	}

	apiMetrics := metrics.NewHTTPServerMetrics("api")
	workerMetrics := metrics.NewWorkerMetrics("worker")

	pipelineUC := usecase.NewPipelineUseCase(
		docRepo, stageRepo, predictionRepo, storage, queue, extractor, structurer, limits,
	).WithStageObserver(stageObserver{metrics: apiMetrics, service: "api"})

	expander := archive.NewZipExpander(limits.AllowedExtensions, cfg.MaxEntryBytes)
	batchUC := usecase.NewBatchIntakeUseCase(pipelineUC, expander, cfg.BatchMaxConcurrent, cfg.BatchRatePerSec)
	queryUC := usecase.NewStatusQueryUseCase(docRepo, stageRepo, predictionRepo)
	reviewUC := usecase.NewReviewUseCase(docRepo, predictionRepo)

	predictTimeout := time.Duration(cfg.PredictTimeoutSecs) * time.Second
	predictUC := usecase.NewPredictUseCase(
		stageRepo, predictionRepo, predictor, taxonomy, predictTimeout, workerMetrics,
	)

	return &App{
		Config: cfg,
		Queue:  queue,

		PipelineUC: pipelineUC,
		RetryUC:    pipelineUC,
		BatchUC:    batchUC,
		QueryUC:    queryUC,
		ReviewUC:   reviewUC,
		PredictUC:  predictUC,

		PredictionEngine: predictor,

		APIMetrics:    apiMetrics,
		WorkerMetrics: workerMetrics,

		Subscribe: func(ctx context.Context) error {
			return queue.SubscribePredictionRequested(ctx, predictUC.Process)
		},

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// stageObserver bridges pipeline stage outcomes into the HTTP server's
// metric registry.
type stageObserver struct {
	metrics *metrics.HTTPServerMetrics
	service string
}

func (o stageObserver) StageRun(stage domain.Stage, status domain.StageStatus, duration time.Duration) {
	o.metrics.RecordStageRun(o.service, string(stage), string(status), duration)
}
