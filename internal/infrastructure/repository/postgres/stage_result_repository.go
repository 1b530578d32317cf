package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/screenware/reportflow/internal/core/domain"
)

// StageResultRepository appends extraction and structuring results. A new
// generation supersedes prior ones inside the same transaction, so readers
// always see exactly one current row per (document, stage).
type StageResultRepository struct {
	db *sql.DB
}

func NewStageResultRepository(db *sql.DB) *StageResultRepository {
	return &StageResultRepository{db: db}
}

func (r *StageResultRepository) Append(ctx context.Context, result *domain.StageResult) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin stage result tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
UPDATE stage_results
SET superseded = TRUE
WHERE document_id = $1 AND stage = $2 AND NOT superseded
`, result.DocumentID, string(result.Stage)); err != nil {
		return 0, fmt.Errorf("supersede stage results: %w", err)
	}

	var generation int
	if err := tx.QueryRowContext(ctx, `
SELECT COALESCE(MAX(generation), 0) + 1
FROM stage_results
WHERE document_id = $1 AND stage = $2
`, result.DocumentID, string(result.Stage)).Scan(&generation); err != nil {
		return 0, fmt.Errorf("next stage generation: %w", err)
	}

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	result.Generation = generation
	if _, err := tx.ExecContext(ctx, `
INSERT INTO stage_results (
	id, document_id, stage, generation, status, payload, error_message, superseded, computed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE,$8)
`,
		result.ID, result.DocumentID, string(result.Stage), generation,
		string(result.Status), []byte(result.Payload), result.Error, result.ComputedAt,
	); err != nil {
		return 0, fmt.Errorf("insert stage result: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit stage result tx: %w", err)
	}
	return generation, nil
}

func (r *StageResultRepository) GetCurrent(ctx context.Context, documentID string, stage domain.Stage) (*domain.StageResult, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, stage, generation, status, payload, error_message, superseded, computed_at
FROM stage_results
WHERE document_id = $1 AND stage = $2 AND NOT superseded
ORDER BY generation DESC
LIMIT 1
`, documentID, string(stage))

	var result domain.StageResult
	var stageRaw, statusRaw string
	var payload []byte
	err := row.Scan(
		&result.ID, &result.DocumentID, &stageRaw, &result.Generation,
		&statusRaw, &payload, &result.Error, &result.Superseded, &result.ComputedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get stage result",
				fmt.Errorf("document %s stage %s", documentID, stage))
		}
		return nil, fmt.Errorf("scan stage result: %w", err)
	}
	result.Stage = domain.Stage(stageRaw)
	result.Status = domain.StageStatus(statusRaw)
	result.Payload = payload
	return &result, nil
}
