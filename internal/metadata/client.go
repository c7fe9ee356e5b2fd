// Package metadata provides the HTTP client for the upstream document
// metadata API that lists projects and their documents.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/logger"
)

var Module = fx.Module("metadata",
	fx.Provide(NewClient),
)

// Project is a project descriptor returned by the metadata API.
type Project struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
}

// Document is a document descriptor returned by the metadata API.
type Document struct {
	DocumentID string `json:"document_id"`
	Name       string `json:"name"`
	S3Key      string `json:"s3_key"`
}

type projectsPage struct {
	Items    []Project `json:"items"`
	NextPage *int      `json:"next_page"`
}

type documentsPage struct {
	Items    []Document `json:"items"`
	NextPage *int       `json:"next_page"`
}

// Client fetches project and document listings page by page.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	projectPageSize int
	docsPageSize    int
	log             *slog.Logger
}

// NewClient creates a metadata API client.
func NewClient(cfg *config.Config, log *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL:         strings.TrimRight(cfg.Metadata.BaseURL, "/"),
		projectPageSize: cfg.Metadata.ProjectPageSize,
		docsPageSize:    cfg.Metadata.DocsPageSize,
		log:             log.With(logger.Scope("metadata")),
	}
}

// ListProjects returns all projects, following next_page until exhausted.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var all []Project
	page := 1

	for {
		var resp projectsPage
		endpoint := fmt.Sprintf("%s/projects?page=%d&size=%d", c.baseURL, page, c.projectPageSize)
		if err := c.getJSON(ctx, endpoint, &resp); err != nil {
			return nil, fmt.Errorf("list projects page %d: %w", page, err)
		}

		all = append(all, resp.Items...)
		if resp.NextPage == nil {
			break
		}
		page = *resp.NextPage
	}

	c.log.Debug("projects listed", slog.Int("count", len(all)))
	return all, nil
}

// ListDocuments streams a project's documents page by page to fn. Returning
// an error from fn stops paging and is returned to the caller; this lets the
// orchestrator stop admission mid-listing on budget expiry.
func (c *Client) ListDocuments(ctx context.Context, projectID string, fn func(Document) error) error {
	page := 1

	for {
		var resp documentsPage
		endpoint := fmt.Sprintf("%s/projects/%s/documents?page=%d&size=%d",
			c.baseURL, url.PathEscape(projectID), page, c.docsPageSize)
		if err := c.getJSON(ctx, endpoint, &resp); err != nil {
			return fmt.Errorf("list documents for %s page %d: %w", projectID, page, err)
		}

		for _, doc := range resp.Items {
			if err := fn(doc); err != nil {
				return err
			}
		}

		if resp.NextPage == nil {
			return nil
		}
		page = *resp.NextPage
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
