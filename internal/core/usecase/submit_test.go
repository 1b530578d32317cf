package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/screenware/reportflow/internal/core/domain"
)

func newPipelineFixture() (*PipelineUseCase, *docStoreFake, *stageStoreFake, *predictionStoreFake, *queueFake) {
	docs := newDocStoreFake()
	stages := &stageStoreFake{}
	predictions := &predictionStoreFake{}
	queue := &queueFake{}
	uc := NewPipelineUseCase(
		docs, stages, predictions,
		&storageFake{}, queue,
		&extractorFake{text: "mammography report text"},
		&structurerFake{fields: domain.StructuredFields{BIRADS: "2"}},
		DefaultPipelineLimits(),
	)
	return uc, docs, stages, predictions, queue
}

func submission(name, body string) domain.Submission {
	return domain.Submission{
		Filename:    name,
		ContentType: "text/plain",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
		SubmitterID: "tech-1",
	}
}

func TestSubmitRunsSynchronousStagesAndDispatchesPrediction(t *testing.T) {
	uc, docs, stages, _, queue := newPipelineFixture()

	doc, err := uc.Submit(context.Background(), submission("report.txt", "raw body"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.Status != domain.StatusStructured {
		t.Fatalf("submit reply should stop at structured, got %s", doc.Status)
	}

	want := []domain.DocumentStatus{
		domain.StatusExtracting,
		domain.StatusExtracted,
		domain.StatusStructuring,
		domain.StatusStructured,
		domain.StatusPredictionPending,
	}
	if len(docs.statusCalls) != len(want) {
		t.Fatalf("expected %d status updates, got %d: %+v", len(want), len(docs.statusCalls), docs.statusCalls)
	}
	for i, status := range want {
		if docs.statusCalls[i].status != status {
			t.Fatalf("status update %d = %s, want %s", i, docs.statusCalls[i].status, status)
		}
	}
	if last := docs.lastStatus(); last.status != domain.StatusPredictionPending {
		t.Fatalf("stored status must already be prediction_pending, got %s", last.status)
	}

	if len(stages.appended) != 2 {
		t.Fatalf("expected extraction + structuring results, got %d", len(stages.appended))
	}
	if len(queue.dispatches) != 1 {
		t.Fatalf("expected one prediction dispatch, got %d", len(queue.dispatches))
	}
	if queue.dispatches[0].DocumentID != doc.ID || queue.dispatches[0].Generation != 1 {
		t.Fatalf("unexpected dispatch: %+v", queue.dispatches[0])
	}
}

func TestSubmitRejectsDisallowedExtension(t *testing.T) {
	uc, _, _, _, _ := newPipelineFixture()

	_, err := uc.Submit(context.Background(), submission("report.exe", "x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestSubmitRejectsOversizedFile(t *testing.T) {
	uc, docs, _, _, _ := newPipelineFixture()
	uc.limits.MaxFileBytes = 4

	_, err := uc.Submit(context.Background(), submission("report.txt", "too large"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(docs.statusCalls) != 0 {
		t.Fatalf("rejected submission must not touch the store, got %+v", docs.statusCalls)
	}
}

func TestSubmitRecordsExtractionFailureWithoutReturningError(t *testing.T) {
	docs := newDocStoreFake()
	stages := &stageStoreFake{}
	uc := NewPipelineUseCase(
		docs, stages, &predictionStoreFake{},
		&storageFake{}, &queueFake{},
		&extractorFake{err: errors.New("scanner produced garbage")},
		&structurerFake{},
		DefaultPipelineLimits(),
	)

	doc, err := uc.Submit(context.Background(), submission("report.txt", "raw body"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.Status != domain.StatusExtractingFailed {
		t.Fatalf("expected extracting_failed, got %s", doc.Status)
	}
	last := docs.lastStatus()
	if last.failedStage != domain.StageExtraction || last.errMsg == "" {
		t.Fatalf("failure not recorded on document: %+v", last)
	}
	if len(stages.appended) != 1 || stages.appended[0].Status != domain.StageFailed {
		t.Fatalf("expected failed extraction result, got %+v", stages.appended)
	}
}

func TestSubmitTreatsEmptyExtractionAsFailure(t *testing.T) {
	docs := newDocStoreFake()
	uc := NewPipelineUseCase(
		docs, &stageStoreFake{}, &predictionStoreFake{},
		&storageFake{}, &queueFake{},
		&extractorFake{text: "   \n\t "},
		&structurerFake{},
		DefaultPipelineLimits(),
	)

	doc, err := uc.Submit(context.Background(), submission("report.txt", "raw body"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.Status != domain.StatusExtractingFailed {
		t.Fatalf("expected extracting_failed, got %s", doc.Status)
	}
}

func TestSubmitRecordsPublishFailureAsPredictionFailure(t *testing.T) {
	docs := newDocStoreFake()
	uc := NewPipelineUseCase(
		docs, &stageStoreFake{}, &predictionStoreFake{},
		&storageFake{}, &queueFake{publishErr: errors.New("broker down")},
		&extractorFake{text: "text"},
		&structurerFake{},
		DefaultPipelineLimits(),
	)

	doc, err := uc.Submit(context.Background(), submission("report.txt", "raw body"))
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if doc.Status != domain.StatusPredictionFailed {
		t.Fatalf("expected prediction_failed, got %s", doc.Status)
	}
}

func TestRetryRejectsUnknownStage(t *testing.T) {
	uc, _, _, _, _ := newPipelineFixture()

	_, err := uc.Retry(context.Background(), "doc-1", "reticulation")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRetryRejectsInProgressDocument(t *testing.T) {
	docs := newDocStoreFake(&domain.Document{ID: "doc-1", Status: domain.StatusStructuring})
	uc := NewPipelineUseCase(
		docs, &stageStoreFake{}, &predictionStoreFake{},
		&storageFake{}, &queueFake{},
		&extractorFake{}, &structurerFake{},
		DefaultPipelineLimits(),
	)

	_, err := uc.Retry(context.Background(), "doc-1", domain.StageStructuring)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRetryRejectsStageWithoutPredecessor(t *testing.T) {
	docs := newDocStoreFake(&domain.Document{
		ID:          "doc-1",
		Status:      domain.StatusExtractingFailed,
		FailedStage: domain.StageExtraction,
	})
	uc := NewPipelineUseCase(
		docs, &stageStoreFake{}, &predictionStoreFake{},
		&storageFake{}, &queueFake{},
		&extractorFake{}, &structurerFake{},
		DefaultPipelineLimits(),
	)

	_, err := uc.Retry(context.Background(), "doc-1", domain.StagePrediction)
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRetryStructuringReusesCurrentExtraction(t *testing.T) {
	docs := newDocStoreFake(&domain.Document{
		ID:          "doc-1",
		Status:      domain.StatusStructuringFailed,
		FailedStage: domain.StageStructuring,
	})
	stages := &stageStoreFake{}
	if _, err := stages.Append(context.Background(), &domain.StageResult{
		DocumentID: "doc-1",
		Stage:      domain.StageExtraction,
		Status:     domain.StageCompleted,
		Payload:    mustJSON(domain.ExtractedText{Text: "earlier extraction"}),
	}); err != nil {
		t.Fatalf("seed extraction: %v", err)
	}
	queue := &queueFake{}
	uc := NewPipelineUseCase(
		docs, stages, &predictionStoreFake{},
		&storageFake{}, queue,
		&extractorFake{err: errors.New("must not be called")},
		&structurerFake{fields: domain.StructuredFields{BIRADS: "1"}},
		DefaultPipelineLimits(),
	)

	doc, err := uc.Retry(context.Background(), "doc-1", domain.StageStructuring)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if doc.Status != domain.StatusPredictionPending {
		t.Fatalf("expected prediction_pending after retry, got %s", doc.Status)
	}
	if len(queue.dispatches) != 1 {
		t.Fatalf("expected prediction dispatch after retried structuring, got %d", len(queue.dispatches))
	}
}

func TestRetryPredictionFromPendingRedispatches(t *testing.T) {
	// A crashed runner leaves the document parked at prediction_pending.
	// Retrying the prediction stage mints a fresh generation, so the lost
	// run's write-back is stale even if it eventually lands.
	docs := newDocStoreFake(&domain.Document{ID: "doc-1", Status: domain.StatusPredictionPending})
	stages := &stageStoreFake{}
	if _, err := stages.Append(context.Background(), &domain.StageResult{
		DocumentID: "doc-1",
		Stage:      domain.StageStructuring,
		Status:     domain.StageCompleted,
		Payload:    mustJSON(domain.StructuredFields{BIRADS: "2"}),
	}); err != nil {
		t.Fatalf("seed structuring: %v", err)
	}
	predictions := &predictionStoreFake{nextGen: 1}
	queue := &queueFake{}
	uc := NewPipelineUseCase(
		docs, stages, predictions,
		&storageFake{}, queue,
		&extractorFake{}, &structurerFake{},
		DefaultPipelineLimits(),
	)

	doc, err := uc.Retry(context.Background(), "doc-1", domain.StagePrediction)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if doc.Status != domain.StatusPredictionPending {
		t.Fatalf("expected prediction_pending, got %s", doc.Status)
	}
	if len(queue.dispatches) != 1 || queue.dispatches[0].Generation != 2 {
		t.Fatalf("expected redispatch with generation 2, got %+v", queue.dispatches)
	}

	// Earlier stages still conflict while the prediction is pending.
	if _, err := uc.Retry(context.Background(), "doc-1", domain.StageStructuring); !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for structuring retry, got %v", err)
	}
}

func TestRetryPredictionFromCompletedForcesNewGeneration(t *testing.T) {
	docs := newDocStoreFake(&domain.Document{ID: "doc-1", Status: domain.StatusPredictionCompleted})
	stages := &stageStoreFake{}
	if _, err := stages.Append(context.Background(), &domain.StageResult{
		DocumentID: "doc-1",
		Stage:      domain.StageStructuring,
		Status:     domain.StageCompleted,
		Payload:    mustJSON(domain.StructuredFields{BIRADS: "3"}),
	}); err != nil {
		t.Fatalf("seed structuring: %v", err)
	}
	predictions := &predictionStoreFake{nextGen: 1}
	queue := &queueFake{}
	uc := NewPipelineUseCase(
		docs, stages, predictions,
		&storageFake{}, queue,
		&extractorFake{}, &structurerFake{},
		DefaultPipelineLimits(),
	)

	doc, err := uc.Retry(context.Background(), "doc-1", domain.StagePrediction)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if doc.Status != domain.StatusPredictionPending {
		t.Fatalf("expected prediction_pending, got %s", doc.Status)
	}
	if len(queue.dispatches) != 1 || queue.dispatches[0].Generation != 2 {
		t.Fatalf("expected dispatch with generation 2, got %+v", queue.dispatches)
	}
}

func TestSubmitLogsFailedStatusPersistence(t *testing.T) {
	var buf strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	docs := newDocStoreFake()
	docs.statusErr = errors.New("database is down")
	uc := NewPipelineUseCase(
		docs, &stageStoreFake{}, &predictionStoreFake{nextGen: 0},
		&storageFake{}, &queueFake{},
		&extractorFake{text: "text"},
		&structurerFake{fields: domain.StructuredFields{BIRADS: "2"}},
		DefaultPipelineLimits(),
	)

	if _, err := uc.Submit(context.Background(), submission("report.txt", "raw body")); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if !strings.Contains(buf.String(), "persist status transition") {
		t.Fatalf("dropped status write must be logged, got: %s", buf.String())
	}
}

func TestSanitizeFilenameStripsPathAndSpecials(t *testing.T) {
	got := sanitizeFilename("../uploads/My Report (final).pdf")
	if strings.ContainsAny(got, "/\\ ()") {
		t.Fatalf("sanitized name still carries specials: %q", got)
	}
	if !strings.HasSuffix(got, ".pdf") {
		t.Fatalf("extension lost: %q", got)
	}
}
