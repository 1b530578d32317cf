package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

// PredictObserver receives background-runner outcomes for metrics.
type PredictObserver interface {
	PredictionStarted()
	PredictionFinished(duration time.Duration, err error)
	PredictionCoalesced()
	StaleWriteDiscarded()
}

// PredictUseCase is the background runner body: it consumes prediction
// dispatches, enforces at most one in-flight prediction per document in this
// process, and writes results back guarded by the dispatch generation so a
// superseded run can never overwrite a newer one. The store advances the
// document status inside the same guarded write, so this use case never
// touches document status directly.
type PredictUseCase struct {
	stages      ports.StageResultStore
	predictions ports.PredictionStore
	engine      ports.PredictionEngine
	taxonomy    domain.Taxonomy
	timeout     time.Duration
	observer    PredictObserver

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewPredictUseCase(
	stages ports.StageResultStore,
	predictions ports.PredictionStore,
	engine ports.PredictionEngine,
	taxonomy domain.Taxonomy,
	timeout time.Duration,
	observer PredictObserver,
) *PredictUseCase {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &PredictUseCase{
		stages:      stages,
		predictions: predictions,
		engine:      engine,
		taxonomy:    taxonomy,
		timeout:     timeout,
		observer:    observer,
		inFlight:    make(map[string]struct{}),
	}
}

// Process handles one dispatch. Engine failures are persisted as the
// prediction generation's failed state and returned for logging only; they
// never reach a submission caller, who returned at structured.
func (uc *PredictUseCase) Process(ctx context.Context, dispatch domain.PredictionDispatch) error {
	if !uc.begin(dispatch.DocumentID) {
		if uc.observer != nil {
			uc.observer.PredictionCoalesced()
		}
		return nil
	}
	defer uc.end(dispatch.DocumentID)

	if uc.observer != nil {
		uc.observer.PredictionStarted()
	}
	start := time.Now()
	err := uc.run(ctx, dispatch)
	if uc.observer != nil {
		uc.observer.PredictionFinished(time.Since(start), err)
	}
	return err
}

func (uc *PredictUseCase) run(ctx context.Context, dispatch domain.PredictionDispatch) error {
	fields, err := uc.currentStructuredFields(ctx, dispatch.DocumentID)
	if err != nil {
		return uc.fail(ctx, dispatch, err)
	}

	engineCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()
	out, err := uc.engine.Predict(engineCtx, fields)
	if err != nil {
		return uc.fail(ctx, dispatch, err)
	}

	candidate := &domain.Prediction{Confidence: out.Confidence, Probabilities: out.Probabilities}
	if err := candidate.ValidateBounds(); err != nil {
		return uc.fail(ctx, dispatch, err)
	}

	riskLevel := uc.taxonomy.RiskLevelFor(out.Label)
	applied, err := uc.predictions.CompleteIfCurrent(ctx, dispatch.DocumentID, dispatch.Generation, out, riskLevel)
	if err != nil {
		return fmt.Errorf("persist prediction result: %w", err)
	}
	if !applied {
		// A newer generation owns the document now; this result is stale.
		if uc.observer != nil {
			uc.observer.StaleWriteDiscarded()
		}
	}
	return nil
}

func (uc *PredictUseCase) currentStructuredFields(ctx context.Context, documentID string) (domain.StructuredFields, error) {
	current, err := uc.stages.GetCurrent(ctx, documentID, domain.StageStructuring)
	if err != nil {
		return domain.StructuredFields{}, fmt.Errorf("load structuring result: %w", err)
	}
	if current.Status != domain.StageCompleted {
		return domain.StructuredFields{}, errors.New("structuring result is not completed")
	}
	return current.DecodeStructuredFields()
}

func (uc *PredictUseCase) fail(ctx context.Context, dispatch domain.PredictionDispatch, cause error) error {
	stageErr := domain.NewStageError(domain.StagePrediction, cause)
	applied, err := uc.predictions.FailIfCurrent(ctx, dispatch.DocumentID, dispatch.Generation, stageErr.Message)
	if err != nil {
		return fmt.Errorf("persist prediction failure: %w", err)
	}
	if !applied {
		if uc.observer != nil {
			uc.observer.StaleWriteDiscarded()
		}
		return nil
	}
	return stageErr
}

func (uc *PredictUseCase) begin(documentID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, running := uc.inFlight[documentID]; running {
		return false
	}
	uc.inFlight[documentID] = struct{}{}
	return true
}

func (uc *PredictUseCase) end(documentID string) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	delete(uc.inFlight, documentID)
}
