package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/echoprompt/echomem-go/pkg/llm"
)

// Client is an OpenAI completion gateway.
// It implements the llm.Provider interface on top of the OpenAI chat
// completions API.
type Client struct {
	client *openai.Client
	model  string
}

// Config is the configuration for the OpenAI completion gateway.
// APIKey: OpenAI API key (required)
// OrgID: OpenAI organization ID (optional)
// Model: Model name to use, defaults to "gpt-4-turbo-preview"
// BaseURL: API base URL, defaults to the OpenAI official address
type Config struct {
	APIKey  string
	OrgID   string
	Model   string
	BaseURL string
}

// NewClient creates a new OpenAI completion gateway.
func NewClient(cfg *Config) (*Client, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		config.OrgID = cfg.OrgID
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4-turbo-preview"
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}, nil
}

// Complete generates assistant text grounding the user prompt in the
// retrieved memory context.
//
// The prompt shape follows the conversational-memory flow: the system prompt
// as a system message, then a single user message carrying the retrieved
// context and the user's prompt.
func (c *Client) Complete(ctx context.Context, systemPrompt, memoryContext, userPrompt string, opts ...llm.GenerateOption) (string, error) {
	user := userPrompt
	if memoryContext != "" {
		user = fmt.Sprintf("Context: %s\n\nUser: %s", memoryContext, userPrompt)
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
	return c.CompleteWithMessages(ctx, messages, opts...)
}

// CompleteWithMessages generates text using an explicit message history.
// Supports multi-turn conversations including system, user, and assistant
// messages.
func (c *Client) CompleteWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	options := llm.ApplyGenerateOptions(opts)

	chatMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    chatMessages,
		Temperature: float32(options.Temperature),
		MaxTokens:   options.MaxTokens,
		TopP:        float32(options.TopP),
		Stop:        options.Stop,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("completion failed: no choices returned from OpenAI API")
	}

	return resp.Choices[0].Message.Content, nil
}

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}
