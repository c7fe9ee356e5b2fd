// Package genai provides a Google Generative AI embeddings client.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "text-embedding-004"

	DefaultMaxRetries = 3
	DefaultBaseDelay  = 100 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second

	// DefaultBatchSize is the maximum texts per request accepted upstream.
	DefaultBatchSize = 100
)

type Config struct {
	APIKey string
	Model  string
}

// Client embeds documents through the Gemini API with exponential-backoff
// retries.
type Client struct {
	client *genai.Client
	model  string
	log    *slog.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

type ClientOption func(*Client)

func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

func WithBaseDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.baseDelay = d }
}

func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

func NewClient(ctx context.Context, cfg Config, opts ...ClientOption) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY is required for the genai embedding provider")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	c := &Client{
		client:     client,
		model:      cfg.Model,
		log:        slog.Default(),
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultBaseDelay,
		maxDelay:   DefaultMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// EmbedDocuments generates embeddings for multiple documents.
func (c *Client) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	var all [][]float32
	for i := 0; i < len(documents); i += DefaultBatchSize {
		end := i + DefaultBatchSize
		if end > len(documents) {
			end = len(documents)
		}

		vectors, err := c.embedWithRetry(ctx, documents[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			c.log.Debug("retrying embedding request",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		vectors, err := c.embedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		lastErr = err
		c.log.Warn("embedding request failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("all retries exhausted: %w", lastErr)
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))

	for _, text := range texts {
		result, err := c.client.Models.EmbedContent(
			ctx,
			c.model,
			genai.Text(text),
			&genai.EmbedContentConfig{
				TaskType: "RETRIEVAL_DOCUMENT",
			},
		)
		if err != nil {
			return nil, fmt.Errorf("embed text: %w", err)
		}
		if len(result.Embeddings) == 0 {
			return nil, fmt.Errorf("no embeddings returned for text")
		}
		vectors = append(vectors, result.Embeddings[0].Values)
	}

	return vectors, nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}
	return time.Duration(delay)
}
