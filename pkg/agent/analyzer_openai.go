package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/refinehq/refinery/pkg/version"
)

// OpenAIConfig configures the OpenAI-compatible analysis backend.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // empty = library default endpoint
	Model   string
}

// OpenAIAnalyzer calls an OpenAI-compatible chat completion API. Any
// backend speaking that protocol works through the BaseURL override.
type OpenAIAnalyzer struct {
	client openai.Client
	model  string
}

// NewOpenAIAnalyzer creates an analyzer backed by chat completions.
func NewOpenAIAnalyzer(cfg OpenAIConfig) (*OpenAIAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHeader("User-Agent", version.Full()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIAnalyzer{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Analyze implements Analyzer.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req AnalysisRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("analysis call failed: %w", err)
	}

	slog.DebugContext(ctx, "analysis call completed",
		"role", req.Role,
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: response carried no choices", ErrUpstreamUnavailable)
	}

	return resp.Choices[0].Message.Content, nil
}
