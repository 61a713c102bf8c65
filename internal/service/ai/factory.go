package ai

import (
	"context"
	"fmt"

	"honestai/internal/config"
)

// NewTranscriber selects the configured speech-to-text backend.
func NewTranscriber(cfg config.TranscriberConfig) (Transcriber, error) {
	switch cfg.Backend {
	case "", "mock":
		return MockTranscriber{}, nil
	case "whisperx":
		return WhisperxTranscriber{Binary: cfg.WhisperxBinary, Model: cfg.Model}, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai transcriber requires inference.transcriber.api_key")
		}
		return NewOpenAITranscriber(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown transcriber backend %q", cfg.Backend)
	}
}

// NewScorer selects the configured truthfulness scorer.
func NewScorer(ctx context.Context, cfg config.ScorerConfig) (Scorer, error) {
	switch cfg.Backend {
	case "", "mock":
		return MockScorer{}, nil
	case "llm":
		if cfg.Model == "" {
			return nil, fmt.Errorf("llm scorer requires inference.scorer.model")
		}
		chat, err := newChatModel(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("llm scorer: %w", err)
		}
		return NewLLMScorer(chat), nil
	default:
		return nil, fmt.Errorf("unknown scorer backend %q", cfg.Backend)
	}
}

// NewFaceDetector selects the configured face detector. Only the mock exists.
func NewFaceDetector(cfg config.FaceDetectorConfig) (FaceDetector, error) {
	switch cfg.Backend {
	case "", "mock":
		return MockFaceDetector{Faces: cfg.MockFaces}, nil
	default:
		return nil, fmt.Errorf("unknown face detector backend %q", cfg.Backend)
	}
}
