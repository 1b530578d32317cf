package domain

import (
	"fmt"
	"time"
)

type ReviewStatus string

const (
	ReviewNew               ReviewStatus = "New"
	ReviewUnderReview       ReviewStatus = "Under Review"
	ReviewFollowUpInitiated ReviewStatus = "Follow-up Initiated"
	ReviewComplete          ReviewStatus = "Review Complete"
)

func ValidReviewStatus(s ReviewStatus) bool {
	switch s {
	case ReviewNew, ReviewUnderReview, ReviewFollowUpInitiated, ReviewComplete:
		return true
	}
	return false
}

// Prediction is the prediction stage result plus the reviewer annotation.
// The annotation fields are the only part mutable after creation, and only
// through the review-update operation.
type Prediction struct {
	ID             string             `json:"id"`
	DocumentID     string             `json:"document_id"`
	Generation     int                `json:"generation"`
	Label          string             `json:"predicted_birads"`
	Confidence     float64            `json:"confidence_score"`
	Probabilities  map[string]float64 `json:"probabilities"`
	RiskLevel      string             `json:"risk_level"`
	ModelVersion   string             `json:"model_version"`
	ProcessingSecs float64            `json:"processing_time_seconds"`
	Status         StageStatus        `json:"status"`
	ErrorMessage   string             `json:"error_message,omitempty"`

	ReviewStatus     ReviewStatus `json:"review_status"`
	CoordinatorNotes string       `json:"coordinator_notes,omitempty"`
	ReviewedBy       string       `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ValidateBounds rejects outputs with out-of-range confidence or
// probabilities before they are persisted.
func (p *Prediction) ValidateBounds() error {
	if p.Confidence < 0 || p.Confidence > 1 {
		return WrapError(ErrInvalidInput, "validate prediction",
			fmt.Errorf("confidence %f outside [0,1]", p.Confidence))
	}
	for label, prob := range p.Probabilities {
		if prob < 0 || prob > 1 {
			return WrapError(ErrInvalidInput, "validate prediction",
				fmt.Errorf("probability %f for label %q outside [0,1]", prob, label))
		}
	}
	return nil
}

// PredictionOutput is what the prediction engine returns for one invocation.
type PredictionOutput struct {
	Label          string             `json:"predicted_birads"`
	Confidence     float64            `json:"confidence_score"`
	Probabilities  map[string]float64 `json:"probabilities"`
	ModelVersion   string             `json:"model_version"`
	ProcessingSecs float64            `json:"processing_time_seconds"`
}

// ReviewUpdate carries the reviewer-mutable fields of a prediction. A nil
// Notes leaves existing notes untouched; an empty non-nil value clears them.
type ReviewUpdate struct {
	Status     ReviewStatus `json:"review_status"`
	Notes      *string      `json:"coordinator_notes"`
	ReviewerID string       `json:"-"`
}
