// Package local provides an embeddings client for a self-hosted
// text-embeddings-inference style server.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// MaxBatchSize caps inputs per request; larger input sets are split into
	// sequential micro-batches.
	MaxBatchSize = 32

	defaultTimeout = 2 * time.Minute
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the /embed endpoint: POST {"inputs": [...]} returns a JSON
// array of float vectors, one per input.
type Client struct {
	httpClient *http.Client
	baseURL    string
	log        *slog.Logger
}

func NewClient(cfg Config, log *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		log:        log,
	}
}

type embedRequest struct {
	Inputs []string `json:"inputs"`
}

func (c *Client) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(documents))
	for i := 0; i < len(documents); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(documents) {
			end = len(documents)
		}
		vectors, err := c.embedBatch(ctx, documents[i:end])
		if err != nil {
			return nil, fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Inputs: inputs})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service unavailable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding service status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(vectors), len(inputs))
	}

	c.log.Debug("embedded batch",
		slog.Int("inputs", len(inputs)),
		slog.Duration("duration", time.Since(start)),
	)
	return vectors, nil
}
