// Package claude implements llm.Gateway on the Anthropic Messages API.
package claude

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/daviddao/mailtriage/internal/llm"
)

// DefaultMaxTokens bounds the reply; a triage decision is a small JSON object.
const DefaultMaxTokens = 1024

// Client implements llm.Gateway for Claude models.
type Client struct {
	api       anthropic.Client
	maxTokens int64
}

// New creates a new Claude client with the given API key. Extra request
// options (base URL, HTTP client) are passed through to the SDK.
func New(apiKey string, opts ...option.RequestOption) *Client {
	// The triage client owns retries; the SDK must not add its own.
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &Client{
		api:       anthropic.NewClient(append(base, opts...)...),
		maxTokens: DefaultMaxTokens,
	}
}

// Chat sends the conversation and returns the concatenated text blocks of the reply.
func (c *Client) Chat(ctx context.Context, model string, messages []llm.Message, temperature float64) (string, error) {
	params := toSDKParams(model, messages, temperature, c.maxTokens)
	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude messages: %w", err)
	}
	return fromSDKMessage(msg), nil
}

// toSDKParams moves system messages into the System field and maps the rest
// onto user and assistant turns.
func toSDKParams(model string, messages []llm.Message, temperature float64, maxTokens int64) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(temperature),
	}
	for _, m := range messages {
		switch m.Role {
		case llm.RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

func fromSDKMessage(msg *anthropic.Message) string {
	if msg == nil {
		return ""
	}
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "")
}
