// internal/common/llm/client.go
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"pricing-workers/internal/common/config"
)

// Client is a thin wrapper around the chat-completion API. Every engine
// prompt is a single user-role message; the caller picks the temperature.
type Client struct {
	api   *openai.Client
	model string
}

func NewClient(cfg config.LLMConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
	}
}

// Complete sends one user prompt and returns the raw model text.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choice list")
	}
	return resp.Choices[0].Message.Content, nil
}
