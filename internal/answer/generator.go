package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"

	"github.com/mike-a-ellis/bookrag/internal/embedding"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o"

// Generator sends a system message and a prompt to a language model.
type Generator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// OpenAIGenerator calls chat completions on an OpenAI-compatible API such as
// OpenAI or OpenRouter.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	retry  embedding.RetryPolicy
	logger *slog.Logger
}

// NewOpenAIGenerator creates a generator for model. Rate limits and server
// errors are retried according to retry.
func NewOpenAIGenerator(client *embedding.Client, model string, retry embedding.RetryPolicy, logger *slog.Logger) *OpenAIGenerator {
	if model == "" {
		model = DefaultModel
	}
	if retry.MaxAttempts <= 0 {
		retry = embedding.DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGenerator{
		client: client.Client(),
		model:  model,
		retry:  retry,
		logger: logger,
	}
}

// Complete returns the content of the first choice unmodified.
func (g *OpenAIGenerator) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
	}

	var content string
	attempt := 0
	operation := func() error {
		attempt++
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if embedding.IsTransient(err) {
				g.logger.Warn("Chat completion failed, retrying", "attempt", attempt, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("response has no choices"))
		}
		content = resp.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, g.retry.BackOff(ctx)); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return content, nil
}
