package domain

import "time"

type DocumentStatus string

const (
	StatusReceived            DocumentStatus = "received"
	StatusExtracting          DocumentStatus = "extracting"
	StatusExtracted           DocumentStatus = "extracted"
	StatusStructuring         DocumentStatus = "structuring"
	StatusStructured          DocumentStatus = "structured"
	StatusPredictionPending   DocumentStatus = "prediction_pending"
	StatusPredictionCompleted DocumentStatus = "prediction_completed"
	StatusExtractingFailed    DocumentStatus = "extracting_failed"
	StatusStructuringFailed   DocumentStatus = "structuring_failed"
	StatusPredictionFailed    DocumentStatus = "prediction_failed"
)

type Stage string

const (
	StageExtraction  Stage = "extraction"
	StageStructuring Stage = "structuring"
	StagePrediction  Stage = "prediction"
)

// statusRank orders the happy path so monotonic progression can be checked.
// Failed statuses share the rank of the stage they interrupt.
var statusRank = map[DocumentStatus]int{
	StatusReceived:            0,
	StatusExtracting:          1,
	StatusExtractingFailed:    1,
	StatusExtracted:           2,
	StatusStructuring:         3,
	StatusStructuringFailed:   3,
	StatusStructured:          4,
	StatusPredictionPending:   5,
	StatusPredictionFailed:    5,
	StatusPredictionCompleted: 6,
}

func (s DocumentStatus) Rank() int {
	return statusRank[s]
}

func (s DocumentStatus) IsFailed() bool {
	switch s {
	case StatusExtractingFailed, StatusStructuringFailed, StatusPredictionFailed:
		return true
	}
	return false
}

func (s DocumentStatus) IsTerminal() bool {
	return s.IsFailed() || s == StatusPredictionCompleted
}

// RunningStatus is the in-progress status entered while the stage executes.
func (s Stage) RunningStatus() DocumentStatus {
	switch s {
	case StageExtraction:
		return StatusExtracting
	case StageStructuring:
		return StatusStructuring
	default:
		return StatusPredictionPending
	}
}

func (s Stage) CompletedStatus() DocumentStatus {
	switch s {
	case StageExtraction:
		return StatusExtracted
	case StageStructuring:
		return StatusStructured
	default:
		return StatusPredictionCompleted
	}
}

func (s Stage) FailedStatus() DocumentStatus {
	switch s {
	case StageExtraction:
		return StatusExtractingFailed
	case StageStructuring:
		return StatusStructuringFailed
	default:
		return StatusPredictionFailed
	}
}

func ValidStage(s Stage) bool {
	switch s {
	case StageExtraction, StageStructuring, StagePrediction:
		return true
	}
	return false
}

type Document struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	StoragePath      string         `json:"storage_path"`
	ContentType      string         `json:"content_type"`
	FileSize         int64          `json:"file_size"`
	SubmitterID      string         `json:"submitter_id"`
	ClinicName       string         `json:"clinic_name,omitempty"`
	PatientID        string         `json:"patient_id,omitempty"`
	Description      string         `json:"description,omitempty"`
	Status           DocumentStatus `json:"status"`
	FailedStage      Stage          `json:"failed_stage,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DocumentView is the composite read model: the document plus the current
// (non-superseded) result of each stage that has run.
type DocumentView struct {
	Document    Document     `json:"document"`
	Extraction  *StageResult `json:"extraction,omitempty"`
	Structuring *StageResult `json:"structuring,omitempty"`
	Prediction  *Prediction  `json:"prediction,omitempty"`
}

type ListFilter struct {
	Status      DocumentStatus
	SubmitterID string
	Page        int
	Limit       int
}

type DocumentPage struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Page      int        `json:"page"`
	Limit     int        `json:"limit"`
}
