package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

// PipelineLimits are the intake validation and stage timeout knobs.
type PipelineLimits struct {
	MaxFileBytes       int64
	AllowedExtensions  map[string]string
	ExtractionTimeout  time.Duration
	StructuringTimeout time.Duration
}

func DefaultPipelineLimits() PipelineLimits {
	return PipelineLimits{
		MaxFileBytes: 10 << 20,
		AllowedExtensions: map[string]string{
			".pdf": "application/pdf",
			".txt": "text/plain",
		},
		ExtractionTimeout:  60 * time.Second,
		StructuringTimeout: 120 * time.Second,
	}
}

// PipelineUseCase owns the document state machine: it is the only writer of
// document status. Extraction and structuring run synchronously inside
// Submit; prediction is handed to the queue and never blocks the caller.
type PipelineUseCase struct {
	docs        ports.DocumentStore
	stages      ports.StageResultStore
	predictions ports.PredictionStore
	storage     ports.ObjectStorage
	queue       ports.PredictionQueue
	extractor   ports.ExtractionEngine
	structurer  ports.StructuringEngine
	limits      PipelineLimits
	observer    StageObserver
}

// StageObserver receives the outcome of each synchronous stage run.
type StageObserver interface {
	StageRun(stage domain.Stage, status domain.StageStatus, duration time.Duration)
}

func NewPipelineUseCase(
	docs ports.DocumentStore,
	stages ports.StageResultStore,
	predictions ports.PredictionStore,
	storage ports.ObjectStorage,
	queue ports.PredictionQueue,
	extractor ports.ExtractionEngine,
	structurer ports.StructuringEngine,
	limits PipelineLimits,
) *PipelineUseCase {
	if limits.MaxFileBytes <= 0 {
		limits = DefaultPipelineLimits()
	}
	return &PipelineUseCase{
		docs:        docs,
		stages:      stages,
		predictions: predictions,
		storage:     storage,
		queue:       queue,
		extractor:   extractor,
		structurer:  structurer,
		limits:      limits,
	}
}

// WithStageObserver attaches a stage outcome sink. Returns the receiver for
// call chaining at wiring time.
func (uc *PipelineUseCase) WithStageObserver(observer StageObserver) *PipelineUseCase {
	uc.observer = observer
	return uc
}

// Submit validates and persists a raw file, then drives the synchronous
// stages. A stage failure is recorded on the document and does not surface as
// an error: the returned document carries the failed status.
func (uc *PipelineUseCase) Submit(ctx context.Context, sub domain.Submission) (*domain.Document, error) {
	raw, err := uc.validate(sub)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(sub.Filename))
	if err := uc.storage.Save(ctx, storageKey, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("save raw file: %w", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:               id,
		Filename:         storageKey,
		OriginalFilename: sub.Filename,
		StoragePath:      storageKey,
		ContentType:      sub.ContentType,
		FileSize:         int64(len(raw)),
		SubmitterID:      sub.SubmitterID,
		ClinicName:       sub.ClinicName,
		PatientID:        sub.PatientID,
		Description:      sub.Description,
		Status:           domain.StatusReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document record: %w", err)
	}

	uc.runFrom(ctx, doc, domain.StageExtraction)

	// The synchronous reply stops at structured. The prediction handoff has
	// already happened and shows up on the next poll.
	view := *doc
	if view.Status == domain.StatusPredictionPending {
		view.Status = domain.StatusStructured
	}
	return &view, nil
}

// Retry re-invokes a stage from its last successful predecessor. Allowed from
// that stage's failed state, from a terminal completed state (forced
// recompute), or for prediction from prediction_pending: a dispatch that was
// lost before write-back parks the document there, and re-dispatching mints a
// new generation that turns the lost run's eventual write-back stale.
// Retrying while a synchronous stage is still in progress is a conflict.
func (uc *PipelineUseCase) Retry(ctx context.Context, documentID string, stage domain.Stage) (*domain.Document, error) {
	if !domain.ValidStage(stage) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retry", fmt.Errorf("unknown stage %q", stage))
	}
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	redispatch := stage == domain.StagePrediction && doc.Status == domain.StatusPredictionPending
	if !doc.Status.IsTerminal() && !redispatch {
		return nil, domain.WrapError(domain.ErrConflict, "retry",
			fmt.Errorf("document %s is %s, retry allowed only from a failed or completed state", documentID, doc.Status))
	}
	if doc.Status.IsFailed() && doc.FailedStage != stage && doc.Status.Rank() < stage.RunningStatus().Rank() {
		return nil, domain.WrapError(domain.ErrConflict, "retry",
			fmt.Errorf("stage %s has no successful predecessor for document %s (status %s)", stage, documentID, doc.Status))
	}

	uc.runFrom(ctx, doc, stage)
	return doc, nil
}

// runFrom executes the synchronous stage chain starting at stage, then hands
// off to prediction. Each stage's failure is terminal for this run.
func (uc *PipelineUseCase) runFrom(ctx context.Context, doc *domain.Document, stage domain.Stage) {
	switch stage {
	case domain.StageExtraction:
		text, ok := uc.runExtraction(ctx, doc)
		if !ok {
			return
		}
		if !uc.runStructuring(ctx, doc, text) {
			return
		}
	case domain.StageStructuring:
		current, err := uc.stages.GetCurrent(ctx, doc.ID, domain.StageExtraction)
		if err != nil || current.Status != domain.StageCompleted {
			uc.recordFailure(ctx, doc, domain.StageStructuring, errors.New("no completed extraction result to structure"))
			return
		}
		extracted, err := current.DecodeExtractedText()
		if err != nil {
			uc.recordFailure(ctx, doc, domain.StageStructuring, err)
			return
		}
		if !uc.runStructuring(ctx, doc, extracted.Text) {
			return
		}
	case domain.StagePrediction:
		// Dispatch below; structuring output must already exist.
		current, err := uc.stages.GetCurrent(ctx, doc.ID, domain.StageStructuring)
		if err != nil || current.Status != domain.StageCompleted {
			uc.recordFailure(ctx, doc, domain.StagePrediction, errors.New("no completed structuring result to predict from"))
			return
		}
	}
	uc.dispatchPrediction(ctx, doc)
}

func (uc *PipelineUseCase) runExtraction(ctx context.Context, doc *domain.Document) (string, bool) {
	uc.transition(ctx, doc, domain.StatusExtracting)
	started := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, uc.limits.ExtractionTimeout)
	defer cancel()
	extracted, err := uc.extractor.Extract(stageCtx, doc)
	if err == nil && strings.TrimSpace(extracted.Text) == "" {
		err = errors.New("extraction produced empty text")
	}
	if err != nil {
		uc.observeStage(domain.StageExtraction, domain.StageFailed, started)
		uc.recordFailure(ctx, doc, domain.StageExtraction, err)
		return "", false
	}

	if _, err := uc.stages.Append(ctx, &domain.StageResult{
		DocumentID: doc.ID,
		Stage:      domain.StageExtraction,
		Status:     domain.StageCompleted,
		Payload:    mustJSON(extracted),
		ComputedAt: time.Now().UTC(),
	}); err != nil {
		uc.observeStage(domain.StageExtraction, domain.StageFailed, started)
		uc.recordFailure(ctx, doc, domain.StageExtraction, err)
		return "", false
	}
	uc.observeStage(domain.StageExtraction, domain.StageCompleted, started)
	uc.transition(ctx, doc, domain.StatusExtracted)
	return extracted.Text, true
}

func (uc *PipelineUseCase) runStructuring(ctx context.Context, doc *domain.Document, text string) bool {
	uc.transition(ctx, doc, domain.StatusStructuring)
	started := time.Now()

	stageCtx, cancel := context.WithTimeout(ctx, uc.limits.StructuringTimeout)
	defer cancel()
	fields, err := uc.structurer.Structure(stageCtx, text)
	if err != nil {
		uc.observeStage(domain.StageStructuring, domain.StageFailed, started)
		uc.recordFailure(ctx, doc, domain.StageStructuring, err)
		return false
	}

	if _, err := uc.stages.Append(ctx, &domain.StageResult{
		DocumentID: doc.ID,
		Stage:      domain.StageStructuring,
		Status:     domain.StageCompleted,
		Payload:    mustJSON(fields),
		ComputedAt: time.Now().UTC(),
	}); err != nil {
		uc.observeStage(domain.StageStructuring, domain.StageFailed, started)
		uc.recordFailure(ctx, doc, domain.StageStructuring, err)
		return false
	}
	uc.observeStage(domain.StageStructuring, domain.StageCompleted, started)
	uc.transition(ctx, doc, domain.StatusStructured)
	return true
}

// dispatchPrediction creates the next prediction generation and publishes it.
// The generation travels with the dispatch so the background write-back can
// be rejected if a later retry supersedes it.
func (uc *PipelineUseCase) dispatchPrediction(ctx context.Context, doc *domain.Document) {
	pending, err := uc.predictions.CreatePending(ctx, doc.ID)
	if err != nil {
		uc.recordFailure(ctx, doc, domain.StagePrediction, err)
		return
	}
	err = uc.queue.PublishPredictionRequested(ctx, domain.PredictionDispatch{
		DocumentID: doc.ID,
		Generation: pending.Generation,
	})
	if err != nil {
		uc.recordFailure(ctx, doc, domain.StagePrediction, err)
		return
	}
	uc.transition(ctx, doc, domain.StatusPredictionPending)
}

func (uc *PipelineUseCase) observeStage(stage domain.Stage, status domain.StageStatus, started time.Time) {
	if uc.observer != nil {
		uc.observer.StageRun(stage, status, time.Since(started))
	}
}

func (uc *PipelineUseCase) transition(ctx context.Context, doc *domain.Document, status domain.DocumentStatus) {
	doc.Status = status
	doc.FailedStage = ""
	doc.ErrorMessage = ""
	doc.UpdatedAt = time.Now().UTC()
	if err := uc.docs.UpdateStatus(ctx, doc.ID, status, "", ""); err != nil {
		slog.Error("persist status transition", "document_id", doc.ID, "status", string(status), "error", err)
	}
}

func (uc *PipelineUseCase) recordFailure(ctx context.Context, doc *domain.Document, stage domain.Stage, cause error) {
	stageErr := domain.NewStageError(stage, cause)
	doc.Status = stage.FailedStatus()
	doc.FailedStage = stage
	doc.ErrorMessage = stageErr.Message
	doc.UpdatedAt = time.Now().UTC()
	if err := uc.docs.UpdateStatus(ctx, doc.ID, doc.Status, stage, stageErr.Message); err != nil {
		slog.Error("persist failed status", "document_id", doc.ID, "stage", string(stage), "error", err)
	}

	if stage != domain.StagePrediction {
		_, _ = uc.stages.Append(ctx, &domain.StageResult{
			DocumentID: doc.ID,
			Stage:      stage,
			Status:     domain.StageFailed,
			Error:      stageErr.Message,
			ComputedAt: time.Now().UTC(),
		})
	}
}

func (uc *PipelineUseCase) validate(sub domain.Submission) ([]byte, error) {
	if strings.TrimSpace(sub.Filename) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate submission", errors.New("filename is required"))
	}
	ext := strings.ToLower(filepath.Ext(sub.Filename))
	if _, ok := uc.limits.AllowedExtensions[ext]; !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate submission",
			fmt.Errorf("file type %q not allowed", ext))
	}
	if sub.Size > uc.limits.MaxFileBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate submission",
			fmt.Errorf("file exceeds %d byte ceiling", uc.limits.MaxFileBytes))
	}

	raw, err := io.ReadAll(io.LimitReader(sub.Body, uc.limits.MaxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read submission body: %w", err)
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate submission", errors.New("file is empty"))
	}
	if int64(len(raw)) > uc.limits.MaxFileBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate submission",
			fmt.Errorf("file exceeds %d byte ceiling", uc.limits.MaxFileBytes))
	}
	return raw, nil
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "document.bin"
	}
	return base
}
