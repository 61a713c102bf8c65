package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"honestai/internal/config"
)

const scorerSystemPrompt = `You rate how truthful a spoken statement sounds.
Reply with a single decimal number between 0 and 1 and nothing else.
0 means certainly deceptive, 1 means certainly truthful.`

// LLMScorer asks a chat model to rate the transcript.
type LLMScorer struct {
	chat model.BaseChatModel
}

// NewLLMScorer wraps an existing chat model.
func NewLLMScorer(chat model.BaseChatModel) *LLMScorer {
	return &LLMScorer{chat: chat}
}

func (s *LLMScorer) Score(ctx context.Context, transcript string) (float64, error) {
	if strings.TrimSpace(transcript) == "" {
		return 0, errors.New("empty transcript")
	}
	reply, err := s.chat.Generate(ctx, []*schema.Message{
		schema.SystemMessage(scorerSystemPrompt),
		schema.UserMessage(transcript),
	})
	if err != nil {
		return 0, fmt.Errorf("generate score: %w", err)
	}
	return parseScore(reply.Content)
}

func parseScore(reply string) (float64, error) {
	raw := strings.TrimSpace(reply)
	raw = strings.TrimSuffix(raw, ".")
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("score reply %q is not a number", reply)
	}
	if d.LessThan(decimal.Zero) || d.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("score %s outside [0, 1]", d)
	}
	return d.InexactFloat64(), nil
}

func newChatModel(ctx context.Context, cfg config.ScorerConfig) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURL *string
		if cfg.BaseURL != "" {
			baseURL = &cfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURL,
			MaxTokens: 16,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", cfg.Provider)
	}
}
