package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// defaultMaxRetries bounds the retry loop for transient failures.
	defaultMaxRetries = 3

	// defaultBackoff is the initial wait before the first retry; it doubles
	// on each attempt.
	defaultBackoff = time.Second
)

// Client is an OpenAI embedding gateway.
// It implements the embedder.Provider interface and provides text vectorization
// based on the OpenAI Embeddings API, with bounded exponential-backoff retry
// on transient transport failures.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxRetries int
	backoff    time.Duration
}

// Config is the configuration for the OpenAI embedding gateway.
// APIKey: OpenAI API key (required)
// OrgID: OpenAI organization ID (optional)
// BaseURL: API base URL, defaults to the OpenAI official address
// Dimensions: Vector dimensions, defaults to 1536 (dimension of AdaEmbeddingV2)
// MaxRetries: Retry attempts for transient failures, defaults to 3
type Config struct {
	APIKey     string
	OrgID      string
	BaseURL    string
	Dimensions int
	MaxRetries int
}

// NewClient creates a new OpenAI embedding gateway.
//
// Args:
//   - cfg: Configuration containing APIKey, BaseURL, Dimensions, etc.
//
// Returns:
//   - *Client: OpenAI embedding gateway instance
//   - error: Returns an error if the configuration is invalid
func NewClient(cfg *Config) (*Client, error) {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.OrgID != "" {
		config.OrgID = cfg.OrgID
	}

	client := openai.NewClientWithConfig(config)

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536 // Dimension of AdaEmbeddingV2
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = defaultMaxRetries
	}

	return &Client{
		client:     client,
		model:      openai.AdaEmbeddingV2,
		dimensions: dimensions,
		maxRetries: maxRetries,
		backoff:    defaultBackoff,
	}, nil
}

// Embed converts a single text to a vector.
//
// Transient provider failures (rate limits, 5xx responses, transport errors)
// are retried with exponential backoff up to the configured attempt bound.
// Authentication and validation errors are surfaced immediately.
//
// Args:
//   - ctx: Context for controlling the request lifecycle
//   - text: Text content to vectorize
//
// Returns:
//   - []float64: Vector representation of the text
//   - error: Returns an error if vectorization fails after retries
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts multiple texts to vectors in batch, with the same retry
// behavior as Embed.
//
// Args:
//   - ctx: Context for controlling the request lifecycle
//   - texts: List of texts to vectorize
//
// Returns:
//   - [][]float64: Vector representation for each text (order matches input)
//   - error: Returns an error if vectorization fails or the result count does not match
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	var resp openai.EmbeddingResponse
	var err error

	wait := c.backoff
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		resp, err = c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: c.model,
		})
		if err == nil {
			break
		}
		if !isTransient(err) {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding generation failed: unexpected number of results (got %d, expected %d)",
			len(resp.Data), len(texts))
	}

	embeddings := make([][]float64, len(texts))
	for i, data := range resp.Data {
		embedding32 := data.Embedding
		embedding64 := make([]float64, len(embedding32))
		for j, v := range embedding32 {
			embedding64[j] = float64(v)
		}
		embeddings[i] = embedding64
	}

	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// Model returns the embedding model name recorded in stored payloads.
func (c *Client) Model() string {
	return c.model.String()
}

// Close closes the client connection.
// The OpenAI SDK client does not require explicit closing; this method is
// retained for interface compatibility.
func (c *Client) Close() error {
	return nil
}

// isTransient reports whether the provider error is worth retrying.
// Rate limits, server errors, and transport failures are transient;
// authentication and validation errors are not.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	// Anything that is not a structured provider response is treated as a
	// transport failure.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
