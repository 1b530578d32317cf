package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/screenware/reportflow/internal/core/domain"
)

func seedStructuring(t *testing.T, stages *stageStoreFake, documentID string) {
	t.Helper()
	if _, err := stages.Append(context.Background(), &domain.StageResult{
		DocumentID: documentID,
		Stage:      domain.StageStructuring,
		Status:     domain.StageCompleted,
		Payload:    mustJSON(domain.StructuredFields{BIRADS: "4", Age: "52"}),
	}); err != nil {
		t.Fatalf("seed structuring: %v", err)
	}
}

func TestProcessCompletesCurrentGeneration(t *testing.T) {
	stages := &stageStoreFake{}
	seedStructuring(t, stages, "doc-1")
	predictions := &predictionStoreFake{completeOK: true}
	engine := &predictEngineFake{out: domain.PredictionOutput{
		Label:         "4",
		Confidence:    0.87,
		Probabilities: map[string]float64{"4": 0.87, "2": 0.13},
		ModelVersion:  "v3",
	}}
	uc := NewPredictUseCase(stages, predictions, engine, domain.DefaultTaxonomy(), time.Minute, nil)

	err := uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 3})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(predictions.completeCalls) != 1 {
		t.Fatalf("expected one write-back, got %d", len(predictions.completeCalls))
	}
	call := predictions.completeCalls[0]
	if call.generation != 3 || call.riskLevel != "high" {
		t.Fatalf("unexpected write-back: %+v", call)
	}
	if len(predictions.statusWrites) != 1 || predictions.statusWrites[0].status != domain.StatusPredictionCompleted {
		t.Fatalf("expected prediction_completed status write, got %+v", predictions.statusWrites)
	}
}

func TestProcessDiscardsStaleResult(t *testing.T) {
	stages := &stageStoreFake{}
	seedStructuring(t, stages, "doc-1")
	predictions := &predictionStoreFake{completeOK: false}
	engine := &predictEngineFake{out: domain.PredictionOutput{Label: "2", Confidence: 0.9}}
	uc := NewPredictUseCase(stages, predictions, engine, domain.DefaultTaxonomy(), time.Minute, nil)

	err := uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 1})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(predictions.statusWrites) != 0 {
		t.Fatalf("stale result must not touch document status, got %+v", predictions.statusWrites)
	}
}

func TestProcessRecordsEngineFailure(t *testing.T) {
	stages := &stageStoreFake{}
	seedStructuring(t, stages, "doc-1")
	predictions := &predictionStoreFake{failOK: true}
	engine := &predictEngineFake{err: domain.WrapError(domain.ErrTemporary, "predict", errors.New("model loading"))}
	uc := NewPredictUseCase(stages, predictions, engine, domain.DefaultTaxonomy(), time.Minute, nil)

	err := uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 1})
	if err == nil {
		t.Fatalf("expected error for logging")
	}
	if len(predictions.failMessages) != 1 {
		t.Fatalf("expected one failure write-back, got %d", len(predictions.failMessages))
	}
	if len(predictions.statusWrites) != 1 {
		t.Fatalf("expected one status write, got %+v", predictions.statusWrites)
	}
	if w := predictions.statusWrites[0]; w.status != domain.StatusPredictionFailed || w.failedStage != domain.StagePrediction {
		t.Fatalf("failure not recorded: %+v", w)
	}
}

func TestProcessRejectsOutOfRangeConfidence(t *testing.T) {
	stages := &stageStoreFake{}
	seedStructuring(t, stages, "doc-1")
	predictions := &predictionStoreFake{failOK: true}
	engine := &predictEngineFake{out: domain.PredictionOutput{Label: "2", Confidence: 1.7}}
	uc := NewPredictUseCase(stages, predictions, engine, domain.DefaultTaxonomy(), time.Minute, nil)

	if err := uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if len(predictions.completeCalls) != 0 {
		t.Fatalf("invalid output must not be completed, got %+v", predictions.completeCalls)
	}
	if len(predictions.failMessages) != 1 {
		t.Fatalf("expected failure write-back, got %d", len(predictions.failMessages))
	}
}

func TestProcessFailsWithoutCompletedStructuring(t *testing.T) {
	predictions := &predictionStoreFake{failOK: true}
	engine := &predictEngineFake{}
	uc := NewPredictUseCase(&stageStoreFake{}, predictions, engine, domain.DefaultTaxonomy(), time.Minute, nil)

	if err := uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if engine.callCount() != 0 {
		t.Fatalf("engine must not run without structuring input")
	}
}

func TestProcessCoalescesConcurrentDispatchesPerDocument(t *testing.T) {
	stages := &stageStoreFake{}
	seedStructuring(t, stages, "doc-1")
	predictions := &predictionStoreFake{completeOK: true}
	engine := &predictEngineFake{
		out:     domain.PredictionOutput{Label: "1", Confidence: 0.6},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	uc := NewPredictUseCase(stages, predictions, engine, domain.DefaultTaxonomy(), time.Minute, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 1})
	}()
	<-engine.started

	// Second dispatch for the same document while the first is in flight.
	if err := uc.Process(context.Background(), domain.PredictionDispatch{DocumentID: "doc-1", Generation: 2}); err != nil {
		t.Fatalf("coalesced dispatch returned error: %v", err)
	}
	if engine.callCount() != 1 {
		t.Fatalf("expected single in-flight prediction, engine ran %d times", engine.callCount())
	}

	close(engine.release)
	wg.Wait()

	if len(predictions.completeCalls) != 1 {
		t.Fatalf("expected one write-back, got %d", len(predictions.completeCalls))
	}
}
