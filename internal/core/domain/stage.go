package domain

import (
	"encoding/json"
	"time"
)

type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// StageResult is one computation of a stage for a document. Generations are
// per (document, stage) and strictly increase; a recompute inserts a new
// generation and marks the old one superseded instead of deleting it.
type StageResult struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Stage      Stage           `json:"stage"`
	Generation int             `json:"generation"`
	Status     StageStatus     `json:"status"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	Superseded bool            `json:"superseded,omitempty"`
	ComputedAt time.Time       `json:"computed_at"`
}

// ExtractedText is the extraction stage payload.
type ExtractedText struct {
	Text      string `json:"text"`
	PageCount int    `json:"page_count,omitempty"`
	Engine    string `json:"engine,omitempty"`
}

// StructuredFields is the structuring stage payload, one field per item the
// structuring engine pulls out of a mammography report. Absent values carry
// the literal "unknown" so downstream prompt assembly can skip them.
type StructuredFields struct {
	MedicalUnit     string `json:"medical_unit"`
	FullReport      string `json:"full_report"`
	LMP             string `json:"lmp"`
	HormonalTherapy string `json:"hormonal_therapy"`
	FamilyHistory   string `json:"family_history"`
	Reason          string `json:"reason"`
	Observations    string `json:"observations"`
	Conclusion      string `json:"conclusion"`
	Recommendations string `json:"recommendations"`
	BIRADS          string `json:"birads"`
	Age             string `json:"age"`
	Children        string `json:"children"`
}

func (r *StageResult) DecodeExtractedText() (ExtractedText, error) {
	var out ExtractedText
	if err := json.Unmarshal(r.Payload, &out); err != nil {
		return ExtractedText{}, WrapError(ErrInvalidInput, "decode extraction payload", err)
	}
	return out, nil
}

func (r *StageResult) DecodeStructuredFields() (StructuredFields, error) {
	var out StructuredFields
	if err := json.Unmarshal(r.Payload, &out); err != nil {
		return StructuredFields{}, WrapError(ErrInvalidInput, "decode structuring payload", err)
	}
	return out, nil
}
