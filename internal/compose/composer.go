// Package compose builds the role-conditioned prompt from retrieved context
// and calls the generative model.
package compose

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
)

var (
	// ErrEmptyGeneration means the model returned no text.
	ErrEmptyGeneration = errors.New("generative model returned no text")

	ErrGenerationUnauthorized = errors.New("generative provider rejected credentials")
	ErrGenerationRateLimited  = errors.New("generative provider rate limited")
)

// Composer produces answers through the generative model provider.
type Composer struct {
	client *openai.Client
	model  string
}

// NewComposer creates a Composer. The API key is read from OPENAI_API_KEY;
// a missing key fails fast before any network call.
func NewComposer(model string) (*Composer, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	client := openai.NewClient()
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Composer{client: &client, model: model}, nil
}

// Compose builds the prompt and runs a single-turn completion. Provider
// auth and rate-limit failures surface as distinct errors; an empty result
// fails with ErrEmptyGeneration.
func (c *Composer) Compose(ctx context.Context, question, contextText, personality, agentName, agentDescription string) (string, error) {
	prompt := BuildPrompt(question, contextText, personality, agentName, agentDescription)

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(c.model),
	})
	if err != nil {
		return "", classifyGenerationError(err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyGeneration
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", ErrEmptyGeneration
	}
	return answer, nil
}

func classifyGenerationError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401:
			return fmt.Errorf("%w: %v", ErrGenerationUnauthorized, err)
		case 429:
			return fmt.Errorf("%w: %v", ErrGenerationRateLimited, err)
		}
	}
	return fmt.Errorf("generation failed: %w", err)
}
