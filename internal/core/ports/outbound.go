package ports

import (
	"context"
	"io"

	"github.com/screenware/reportflow/internal/core/domain"
)

// DocumentStore persists document state. Status transitions go through
// UpdateStatus only; stage payloads live in the stage-result and prediction
// stores so concurrent writers never overwrite whole documents.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Document, int, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, failedStage domain.Stage, errMessage string) error
}

// StageResultStore appends per-stage computations. Append assigns the next
// generation for (document, stage), marks prior generations superseded and
// returns the assigned generation.
type StageResultStore interface {
	Append(ctx context.Context, result *domain.StageResult) (int, error)
	GetCurrent(ctx context.Context, documentID string, stage domain.Stage) (*domain.StageResult, error)
}

// PredictionStore persists prediction generations and the review annotation.
// CompleteIfCurrent and FailIfCurrent report false when the targeted
// generation has been superseded, so stale background write-backs are
// discarded instead of applied. When they do apply, the document status
// advances in the same transaction, leaving no window in which a retry's
// fresh generation can be overwritten by the older runner's status write.
type PredictionStore interface {
	CreatePending(ctx context.Context, documentID string) (*domain.Prediction, error)
	CompleteIfCurrent(ctx context.Context, documentID string, generation int, out domain.PredictionOutput, riskLevel string) (bool, error)
	FailIfCurrent(ctx context.Context, documentID string, generation int, errMessage string) (bool, error)
	GetCurrentByDocument(ctx context.Context, documentID string) (*domain.Prediction, error)
	UpdateReview(ctx context.Context, documentID string, update domain.ReviewUpdate) (*domain.Prediction, error)
}

// ObjectStorage stores raw submitted files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// PredictionQueue hands prediction work to the background runner.
type PredictionQueue interface {
	PublishPredictionRequested(ctx context.Context, dispatch domain.PredictionDispatch) error
	SubscribePredictionRequested(ctx context.Context, handler func(context.Context, domain.PredictionDispatch) error) error
}

// ExtractionEngine turns a stored raw file into text.
type ExtractionEngine interface {
	Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error)
}

// StructuringEngine turns extracted text into the structured report record.
type StructuringEngine interface {
	Structure(ctx context.Context, text string) (domain.StructuredFields, error)
}

// PredictionEngine scores a structured record. Ready exposes model cold-start
// state for the status surface; Predict may block for the full model load on
// first use.
type PredictionEngine interface {
	Predict(ctx context.Context, fields domain.StructuredFields) (domain.PredictionOutput, error)
	Ready(ctx context.Context) (bool, error)
}

// ArchiveExpander unpacks a batch archive into candidate files, silently
// dropping entries that fail type or artifact filtering.
type ArchiveExpander interface {
	Expand(archive []byte) (entries []domain.ArchiveEntry, rejected int, err error)
}
