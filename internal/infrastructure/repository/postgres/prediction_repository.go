package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/screenware/reportflow/internal/core/domain"
)

// PredictionRepository owns prediction generations. CreatePending assigns the
// next generation and supersedes prior ones; the guarded write-backs apply
// only while the targeted generation is still current, which is what rejects
// a stale background result after a retry.
type PredictionRepository struct {
	db *sql.DB
}

func NewPredictionRepository(db *sql.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

func (r *PredictionRepository) CreatePending(ctx context.Context, documentID string) (*domain.Prediction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin prediction tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
UPDATE predictions
SET superseded = TRUE
WHERE document_id = $1 AND NOT superseded
`, documentID); err != nil {
		return nil, fmt.Errorf("supersede predictions: %w", err)
	}

	var generation int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(generation), 0) + 1
FROM predictions
WHERE document_id = $1
`, documentID).Scan(&generation); err != nil {
		return nil, fmt.Errorf("next prediction generation: %w", err)
	}

	pred := &domain.Prediction{
		ID:           uuid.NewString(),
		DocumentID:   documentID,
		Generation:   generation,
		Status:       domain.StagePending,
		ReviewStatus: domain.ReviewNew,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO predictions (id, document_id, generation, status, review_status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, pred.ID, pred.DocumentID, pred.Generation, string(pred.Status), string(pred.ReviewStatus), pred.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert pending prediction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit prediction tx: %w", err)
	}
	return pred, nil
}

// CompleteIfCurrent writes the result and advances the document to
// prediction_completed in one transaction. The document write happens only
// when the guarded row update matched, so a superseded run can neither keep
// its result nor touch document status.
func (r *PredictionRepository) CompleteIfCurrent(ctx context.Context, documentID string, generation int, out domain.PredictionOutput, riskLevel string) (bool, error) {
	probsJSON, err := json.Marshal(out.Probabilities)
	if err != nil {
		return false, fmt.Errorf("marshal probabilities: %w", err)
	}
	if len(out.Probabilities) == 0 {
		probsJSON = []byte(`{}`)
	}

	return r.applyIfCurrent(ctx, "complete prediction", documentID, `
UPDATE predictions
SET label = $3, confidence = $4, probabilities = $5, risk_level = $6,
	model_version = $7, processing_seconds = $8, status = $9
WHERE document_id = $1 AND generation = $2 AND NOT superseded
`, []any{documentID, generation, out.Label, out.Confidence, probsJSON, riskLevel,
		out.ModelVersion, out.ProcessingSecs, string(domain.StageCompleted)},
		domain.StatusPredictionCompleted, "", "")
}

// FailIfCurrent records the failure and moves the document to
// prediction_failed under the same generation guard as CompleteIfCurrent.
func (r *PredictionRepository) FailIfCurrent(ctx context.Context, documentID string, generation int, errMessage string) (bool, error) {
	return r.applyIfCurrent(ctx, "fail prediction", documentID, `
UPDATE predictions
SET status = $3, error_message = $4
WHERE document_id = $1 AND generation = $2 AND NOT superseded
`, []any{documentID, generation, string(domain.StageFailed), errMessage},
		domain.StatusPredictionFailed, domain.StagePrediction, errMessage)
}

func (r *PredictionRepository) applyIfCurrent(
	ctx context.Context,
	operation string,
	documentID string,
	query string,
	args []any,
	docStatus domain.DocumentStatus,
	failedStage domain.Stage,
	errMessage string,
) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s tx: %w", operation, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", operation, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", operation, err)
	}
	if n == 0 {
		// Generation superseded since dispatch; leave the document alone.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit %s tx: %w", operation, err)
		}
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, failed_stage = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, documentID, string(docStatus), string(failedStage), errMessage, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("%s document status: %w", operation, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s tx: %w", operation, err)
	}
	return true, nil
}

const predictionColumns = `id, document_id, generation, label, confidence, probabilities, risk_level,
	model_version, processing_seconds, status, error_message,
	review_status, coordinator_notes, reviewed_by, reviewed_at, created_at`

func (r *PredictionRepository) GetCurrentByDocument(ctx context.Context, documentID string) (*domain.Prediction, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+predictionColumns+`
FROM predictions
WHERE document_id = $1 AND NOT superseded
ORDER BY generation DESC
LIMIT 1
`, documentID)

	pred, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get prediction", fmt.Errorf("document %s", documentID))
		}
		return nil, fmt.Errorf("scan prediction: %w", err)
	}
	return pred, nil
}

func (r *PredictionRepository) UpdateReview(ctx context.Context, documentID string, update domain.ReviewUpdate) (*domain.Prediction, error) {
	now := time.Now().UTC()
	set := "reviewed_by = $2, reviewed_at = $3"
	args := []any{documentID, update.ReviewerID, now}
	if update.Status != "" {
		args = append(args, string(update.Status))
		set += fmt.Sprintf(", review_status = $%d", len(args))
	}
	if update.Notes != nil {
		args = append(args, *update.Notes)
		set += fmt.Sprintf(", coordinator_notes = $%d", len(args))
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE predictions
SET %s
WHERE document_id = $1 AND NOT superseded
`, set), args...)
	if err != nil {
		return nil, fmt.Errorf("update review: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, domain.WrapError(domain.ErrNotFound, "update review", fmt.Errorf("document %s", documentID))
	}
	return r.GetCurrentByDocument(ctx, documentID)
}

func scanPrediction(row rowScanner) (*domain.Prediction, error) {
	var pred domain.Prediction
	var statusRaw, reviewRaw string
	var probsRaw []byte
	var reviewedAt sql.NullTime
	err := row.Scan(
		&pred.ID, &pred.DocumentID, &pred.Generation, &pred.Label, &pred.Confidence, &probsRaw, &pred.RiskLevel,
		&pred.ModelVersion, &pred.ProcessingSecs, &statusRaw, &pred.ErrorMessage,
		&reviewRaw, &pred.CoordinatorNotes, &pred.ReviewedBy, &reviewedAt, &pred.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(probsRaw) > 0 {
		if err := json.Unmarshal(probsRaw, &pred.Probabilities); err != nil {
			return nil, fmt.Errorf("unmarshal probabilities: %w", err)
		}
	}
	pred.Status = domain.StageStatus(statusRaw)
	pred.ReviewStatus = domain.ReviewStatus(reviewRaw)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		pred.ReviewedAt = &t
	}
	return &pred, nil
}
