package models

import "time"

// AnalysisResult is the immutable outcome of one analysis run over an upload.
// UserID duplicates the owning upload's UserID.
type AnalysisResult struct {
	ID            int64     `json:"id"`
	UploadID      int64     `json:"upload_id"`
	UserID        int64     `json:"user_id"`
	FileName      string    `json:"filename"`
	Transcript    string    `json:"transcript"`
	TruthScore    float64   `json:"truth_score"`
	FacesDetected *int      `json:"faces_detected"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

// SortOrder orders analysis history by analysis time.
type SortOrder string

const (
	SortAscending  SortOrder = "asc"
	SortDescending SortOrder = "desc"
)
