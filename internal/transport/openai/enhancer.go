package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/stashbox-io/stashbox/internal/domain"
)

const enhancePrompt = `You expand search queries for a personal notes archive.
Rewrite the user's query by adding close synonyms and, if the query is not in
English, an English translation of the key terms. Keep the original words.
Reply with the expanded query only, on a single line, no explanations.`

// Enhancer rewrites a raw user query via a small chat-completion call.
// Callers treat every failure as "use the raw query"; the Enhancer only
// reports the failure, it never hides it behind a silent fallback.
type Enhancer struct {
	client     *openai.Client
	model      string
	maxRewrite int
	logger     *zap.Logger
}

// EnhancerConfig holds the query enhancement settings.
type EnhancerConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRewrite int
	Logger     *zap.Logger
}

// NewEnhancer creates a chat-based query enhancer.
func NewEnhancer(cfg *EnhancerConfig) *Enhancer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRewrite := cfg.MaxRewrite
	if maxRewrite <= 0 {
		maxRewrite = 256
	}
	return &Enhancer{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRewrite: maxRewrite,
		logger:     logger,
	}
}

// Enhance implements domain.Enhancer.
func (e *Enhancer) Enhance(ctx context.Context, rawQuery string) (string, error) {
	if strings.TrimSpace(rawQuery) == "" {
		return "", fmt.Errorf("%w: nothing to enhance", domain.ErrEmptyInput)
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enhancePrompt},
			{Role: openai.ChatMessageRoleUser, Content: rawQuery},
		},
		MaxTokens:   128,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("enhance query: %w: %v", domain.ErrEmbeddingProviderError, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("enhance query: empty response: %w", domain.ErrEmbeddingProviderError)
	}

	enhanced := strings.TrimSpace(resp.Choices[0].Message.Content)
	if enhanced == "" {
		return "", fmt.Errorf("enhance query: blank rewrite: %w", domain.ErrEmbeddingProviderError)
	}
	if runes := []rune(enhanced); len(runes) > e.maxRewrite {
		enhanced = string(runes[:e.maxRewrite])
	}

	e.logger.Debug("query enhanced",
		zap.String("raw", rawQuery),
		zap.String("enhanced", enhanced),
	)
	return enhanced, nil
}
