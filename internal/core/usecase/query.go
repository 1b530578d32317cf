package usecase

import (
	"context"
	"fmt"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// StatusQueryUseCase assembles the polling read model. It only reads stores;
// it never touches a stage engine or waits on background work.
type StatusQueryUseCase struct {
	docs        ports.DocumentStore
	stages      ports.StageResultStore
	predictions ports.PredictionStore
}

func NewStatusQueryUseCase(docs ports.DocumentStore, stages ports.StageResultStore, predictions ports.PredictionStore) *StatusQueryUseCase {
	return &StatusQueryUseCase{docs: docs, stages: stages, predictions: predictions}
}

// Get returns the document plus the current result of every stage that has
// run. Missing stage results are omitted, not errors: a document polled
// mid-pipeline simply has fewer sections.
func (uc *StatusQueryUseCase) Get(ctx context.Context, id string) (*domain.DocumentView, error) {
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}

	view := &domain.DocumentView{Document: *doc}

	extraction, err := uc.currentStage(ctx, id, domain.StageExtraction)
	if err != nil {
		return nil, err
	}
	view.Extraction = extraction

	structuring, err := uc.currentStage(ctx, id, domain.StageStructuring)
	if err != nil {
		return nil, err
	}
	view.Structuring = structuring

	prediction, err := uc.predictions.GetCurrentByDocument(ctx, id)
	if err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load prediction for %s: %w", id, err)
	}
	view.Prediction = prediction

	return view, nil
}

func (uc *StatusQueryUseCase) List(ctx context.Context, filter domain.ListFilter) (*domain.DocumentPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	if filter.Status != "" && filter.Status.Rank() == 0 && filter.Status != domain.StatusReceived {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list documents",
			fmt.Errorf("unknown status %q", filter.Status))
	}

	docs, total, err := uc.docs.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return &domain.DocumentPage{
		Documents: docs,
		Total:     total,
		Page:      filter.Page,
		Limit:     filter.Limit,
	}, nil
}

func (uc *StatusQueryUseCase) currentStage(ctx context.Context, id string, stage domain.Stage) (*domain.StageResult, error) {
	result, err := uc.stages.GetCurrent(ctx, id, stage)
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s result for %s: %w", stage, id, err)
	}
	return result, nil
}
