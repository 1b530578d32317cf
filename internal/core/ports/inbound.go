package ports

import (
	"context"

	"github.com/screenware/reportflow/internal/core/domain"
)

// DocumentSubmitter is the inbound contract for single-file submission. The
// call returns once the synchronous stages have settled; prediction continues
// in the background.
type DocumentSubmitter interface {
	Submit(ctx context.Context, sub domain.Submission) (*domain.Document, error)
}

// BatchSubmitter fans an archive out into independent pipeline entries.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, archive []byte, sub domain.Submission) (*domain.BatchResult, error)
}

// StageRetrier re-runs a stage after failure or forces a recompute.
type StageRetrier interface {
	Retry(ctx context.Context, documentID string, stage domain.Stage) (*domain.Document, error)
}

// DocumentReader is the polling read model. Implementations never invoke a
// stage engine and never block on in-flight background work.
type DocumentReader interface {
	Get(ctx context.Context, id string) (*domain.DocumentView, error)
	List(ctx context.Context, filter domain.ListFilter) (*domain.DocumentPage, error)
}

// ReviewUpdater mutates the review annotation of an existing prediction.
type ReviewUpdater interface {
	UpdateReview(ctx context.Context, documentID string, update domain.ReviewUpdate) (*domain.Prediction, error)
}

// PredictionProcessor is the background runner's inbound contract.
type PredictionProcessor interface {
	Process(ctx context.Context, dispatch domain.PredictionDispatch) error
}
