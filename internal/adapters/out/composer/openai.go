// Package composer writes delay notifications with an OpenAI chat model.
package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"freight/internal/core/ports"
	"freight/internal/pkg/errs"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultModel = openai.GPT4oMini
	temperature  = 0.5

	systemPrompt = "You are a friendly logistics assistant. Respond with a SHORT, friendly SMS " +
		"apology + update. MAX 200 characters. Do NOT add placeholders or quotation marks."
)

var ErrEmptyCompletion = errors.New("completion has no content")

var _ ports.MessageComposer = (*OpenAIComposer)(nil)

// Config selects the model and, for tests or proxies, the API base URL.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIComposer implements ports.MessageComposer.
type OpenAIComposer struct {
	client *openai.Client
	model  string
}

// NewOpenAIComposer creates a composer backed by the chat completions API.
func NewOpenAIComposer(cfg Config) (*OpenAIComposer, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errs.NewValueIsRequiredError("apiKey")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	return &OpenAIComposer{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}, nil
}

// ComposeDelayMessage asks the model for a short delay notice.
func (c *OpenAIComposer) ComposeDelayMessage(ctx context.Context, msg ports.DelayMessage) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(msg)},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func userPrompt(msg ports.DelayMessage) string {
	return fmt.Sprintf(
		"Shipment from %s to %s delayed by %d min. Compose the SMS in 200 chars or fewer, personable tone.",
		msg.Origin, msg.Destination, msg.DelayMinutes,
	)
}
