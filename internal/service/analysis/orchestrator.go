package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"honestai/internal/models"
	"honestai/internal/service/ai"
	"honestai/internal/service/media"
)

// Uploads is the slice of the ownership layer the pipeline needs.
type Uploads interface {
	FindOwnedUpload(ctx context.Context, user *models.User, filename string) (*models.Upload, error)
	OpenUpload(ctx context.Context, user *models.User, upload *models.Upload) (string, func(), error)
	RecordAnalysis(ctx context.Context, user *models.User, upload *models.Upload, out media.Outcome) (*models.AnalysisResult, error)
}

// Orchestrator runs locate, transcribe, score, detect and persist in order
// and stops at the first failure. Nothing is written unless every step succeeds.
type Orchestrator struct {
	uploads     Uploads
	transcriber ai.Transcriber
	scorer      ai.Scorer
	faces       ai.FaceDetector
	videoExt    map[string]struct{}
}

// NewOrchestrator wires the collaborators. videoExtensions are matched
// case-insensitively against the upload's file extension.
func NewOrchestrator(uploads Uploads, transcriber ai.Transcriber, scorer ai.Scorer, faces ai.FaceDetector, videoExtensions []string) *Orchestrator {
	exts := make(map[string]struct{}, len(videoExtensions))
	for _, ext := range videoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	return &Orchestrator{
		uploads:     uploads,
		transcriber: transcriber,
		scorer:      scorer,
		faces:       faces,
		videoExt:    exts,
	}
}

// IsVideo reports whether filename has one of the configured video extensions.
func (o *Orchestrator) IsVideo(filename string) bool {
	_, ok := o.videoExt[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Run analyzes the caller's most recent upload named filename.
func (o *Orchestrator) Run(ctx context.Context, user *models.User, filename string) (*models.AnalysisResult, error) {
	start := time.Now()
	upload, err := o.uploads.FindOwnedUpload(ctx, user, filename)
	if err != nil {
		return nil, err
	}
	path, release, err := o.uploads.OpenUpload(ctx, user, upload)
	if err != nil {
		return nil, err
	}
	defer release()

	transcript, err := o.transcriber.Transcribe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: transcribe: %w", models.ErrAnalysisFailed, err)
	}
	score, err := o.scorer.Score(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("%w: score: %w", models.ErrAnalysisFailed, err)
	}

	out := media.Outcome{Transcript: transcript, TruthScore: score}
	if o.IsVideo(upload.FileName) {
		n, err := o.faces.DetectFaces(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%w: detect faces: %w", models.ErrAnalysisFailed, err)
		}
		out.FacesDetected = &n
	}

	result, err := o.uploads.RecordAnalysis(ctx, user, upload, out)
	if err != nil {
		return nil, err
	}
	log.Info("analysis recorded",
		"user_id", user.ID,
		"analysis_id", result.ID,
		"filename", upload.FileName,
		"video", out.FacesDetected != nil,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}
