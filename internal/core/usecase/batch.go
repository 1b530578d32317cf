package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/screenware/reportflow/internal/core/domain"
	"github.com/screenware/reportflow/internal/core/ports"
)

// BatchIntakeUseCase expands one archive into independent pipeline entries.
// Fan-out is bounded by a worker limit and a shared rate limiter so a large
// archive cannot overwhelm the extraction and structuring engines; one
// member's stage failure never aborts its siblings.
type BatchIntakeUseCase struct {
	submitter     ports.DocumentSubmitter
	expander      ports.ArchiveExpander
	maxConcurrent int
	limiter       *rate.Limiter
}

func NewBatchIntakeUseCase(
	submitter ports.DocumentSubmitter,
	expander ports.ArchiveExpander,
	maxConcurrent int,
	submitsPerSecond float64,
) *BatchIntakeUseCase {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if submitsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(submitsPerSecond), maxConcurrent)
	}
	return &BatchIntakeUseCase{
		submitter:     submitter,
		expander:      expander,
		maxConcurrent: maxConcurrent,
		limiter:       limiter,
	}
}

// SubmitBatch returns after every member has reached its synchronous
// completion point; predictions for the batch continue in the background.
func (uc *BatchIntakeUseCase) SubmitBatch(ctx context.Context, archive []byte, sub domain.Submission) (*domain.BatchResult, error) {
	if len(archive) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", errors.New("archive is empty"))
	}

	entries, rejected, err := uc.expander.Expand(archive)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch", err)
	}
	if len(entries) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit batch",
			fmt.Errorf("0 of %d archive entries eligible for processing", rejected))
	}

	result := &domain.BatchResult{
		TotalCandidates:  len(entries) + rejected,
		RejectedAtFilter: rejected,
		Documents:        make([]domain.BatchEntry, len(entries)),
	}

	group := &errgroup.Group{}
	group.SetLimit(uc.maxConcurrent)
	for i, entry := range entries {
		group.Go(func() error {
			// Member outcomes are recorded per slot; never an error return,
			// which would cancel unrelated siblings.
			if err := uc.limiter.Wait(ctx); err != nil {
				result.Documents[i] = domain.BatchEntry{Filename: entry.Filename, Error: err.Error()}
				return nil
			}
			doc, err := uc.submitter.Submit(ctx, domain.Submission{
				Filename:    entry.Filename,
				ContentType: entry.ContentType,
				Size:        int64(len(entry.Data)),
				Body:        bytes.NewReader(entry.Data),
				SubmitterID: sub.SubmitterID,
				ClinicName:  sub.ClinicName,
				PatientID:   sub.PatientID,
				Description: sub.Description,
			})
			if err != nil {
				result.Documents[i] = domain.BatchEntry{Filename: entry.Filename, Error: err.Error()}
				return nil
			}
			result.Documents[i] = domain.BatchEntry{
				DocumentID: doc.ID,
				Filename:   entry.Filename,
				Status:     doc.Status,
			}
			return nil
		})
	}
	_ = group.Wait()

	for _, entry := range result.Documents {
		if entry.DocumentID != "" {
			result.Accepted++
		}
	}
	return result, nil
}
