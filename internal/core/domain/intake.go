package domain

import "io"

// Submission is a single raw file handed to the pipeline.
type Submission struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
	SubmitterID string
	ClinicName  string
	PatientID   string
	Description string
}

// ArchiveEntry is one candidate file unpacked from a batch archive.
type ArchiveEntry struct {
	Filename    string
	ContentType string
	Data        []byte
}

// BatchEntry is the immediate post-submit outcome for one archive member.
type BatchEntry struct {
	DocumentID string         `json:"document_id,omitempty"`
	Filename   string         `json:"filename"`
	Status     DocumentStatus `json:"status,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// BatchResult reports a whole batch submission: how many archive entries were
// seen, how many passed filtering, and the per-document outcomes in archive
// order.
type BatchResult struct {
	TotalCandidates  int          `json:"total_candidates"`
	Accepted         int          `json:"accepted"`
	RejectedAtFilter int          `json:"rejected_at_filter"`
	Documents        []BatchEntry `json:"documents"`
}

// PredictionDispatch is the background-runner handoff: which document to
// predict and which generation the write-back must target.
type PredictionDispatch struct {
	DocumentID string `json:"document_id"`
	Generation int    `json:"generation"`
}
