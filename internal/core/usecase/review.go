package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

// ReviewUseCase records coordinator review annotations on the current
// prediction of a document.
type ReviewUseCase struct {
	docs        ports.DocumentStore
	predictions ports.PredictionStore
}

func NewReviewUseCase(docs ports.DocumentStore, predictions ports.PredictionStore) *ReviewUseCase {
	return &ReviewUseCase{docs: docs, predictions: predictions}
}

func (uc *ReviewUseCase) UpdateReview(ctx context.Context, documentID string, update domain.ReviewUpdate) (*domain.Prediction, error) {
	if update.Status != "" && !domain.ValidReviewStatus(update.Status) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update review",
			fmt.Errorf("unknown review status %q", update.Status))
	}
	if update.Status == "" && update.Notes == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update review", errors.New("no changes supplied"))
	}

	if _, err := uc.docs.GetByID(ctx, documentID); err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}

	current, err := uc.predictions.GetCurrentByDocument(ctx, documentID)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrConflict, "update review",
				errors.New("document has no prediction to review"))
		}
		return nil, fmt.Errorf("load prediction for %s: %w", documentID, err)
	}
	if current.Status != domain.StageCompleted {
		return nil, domain.WrapError(domain.ErrConflict, "update review",
			errors.New("prediction is not completed yet"))
	}

	updated, err := uc.predictions.UpdateReview(ctx, documentID, update)
	if err != nil {
		return nil, fmt.Errorf("update review for %s: %w", documentID, err)
	}
	return updated, nil
}
