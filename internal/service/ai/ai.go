// Package ai holds the media analysis collaborators: speech-to-text,
// truthfulness scoring and face detection.
package ai

import "context"

// Transcriber turns an audio or video file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// Scorer rates how truthful a transcript sounds, in [0, 1].
type Scorer interface {
	Score(ctx context.Context, transcript string) (float64, error)
}

// FaceDetector counts faces in a video file.
type FaceDetector interface {
	DetectFaces(ctx context.Context, path string) (int, error)
}

const (
	MockTranscript = "This is a mocked transcript from wav2vec."
	MockTruthScore = 0.87
)

type MockTranscriber struct{}

func (MockTranscriber) Transcribe(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return MockTranscript, nil
}

type MockScorer struct{}

func (MockScorer) Score(ctx context.Context, _ string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return MockTruthScore, nil
}

// MockFaceDetector reports a fixed face count.
type MockFaceDetector struct {
	Faces int
}

func (m MockFaceDetector) DetectFaces(ctx context.Context, _ string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return m.Faces, nil
}
