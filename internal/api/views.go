package api

import (
	"time"

	"github.com/samber/lo"

	"honestai/internal/models"
)

type userView struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenView struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type uploadView struct {
	ID          int64     `json:"id"`
	FileName    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ContentHash string    `json:"content_hash"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// analysisView renders faces_detected as null for non-video uploads.
type analysisView struct {
	ID            int64     `json:"id"`
	UploadID      int64     `json:"upload_id"`
	FileName      string    `json:"filename"`
	Transcript    string    `json:"transcript"`
	TruthScore    float64   `json:"truth_score"`
	FacesDetected *int      `json:"faces_detected"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}

func newUploadView(u *models.Upload) uploadView {
	return uploadView{
		ID:          u.ID,
		FileName:    u.FileName,
		ContentType: u.ContentType,
		Size:        u.Size,
		ContentHash: u.ContentHash,
		UploadedAt:  u.UploadedAt,
	}
}

func newAnalysisView(r models.AnalysisResult) analysisView {
	return analysisView{
		ID:            r.ID,
		UploadID:      r.UploadID,
		FileName:      r.FileName,
		Transcript:    r.Transcript,
		TruthScore:    r.TruthScore,
		FacesDetected: r.FacesDetected,
		AnalyzedAt:    r.AnalyzedAt,
	}
}

func newAnalysisViews(results []models.AnalysisResult) []analysisView {
	return lo.Map(results, func(r models.AnalysisResult, _ int) analysisView { return newAnalysisView(r) })
}
