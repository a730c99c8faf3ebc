package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ChatConfig configures the answer-generation client.
type ChatConfig struct {
	Model       string
	Temperature float64
	APIKey      string
	BaseURL     string
}

// ChatEngine generates answers from fully rendered prompts.
type ChatEngine struct {
	config ChatConfig
	client llms.Model
}

func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	}

	opts := []openai.Option{openai.WithModel(config.Model)}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat client: %w", err)
	}

	return &ChatEngine{config: config, client: client}, nil
}

// Generate returns the model's answer for prompt. An empty completion is a
// contract violation, not a retryable condition.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string) (string, error) {
	answer, err := llms.GenerateFromSinglePrompt(ctx, ce.client, prompt,
		llms.WithTemperature(ce.config.Temperature))
	if err != nil {
		return "", fmt.Errorf("chat error: %w", err)
	}
	if answer == "" {
		return "", fmt.Errorf("chat model returned an empty completion")
	}
	return answer, nil
}
