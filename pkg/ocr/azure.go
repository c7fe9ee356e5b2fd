package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/textextract"
)

const (
	azureAPIVersion   = "2023-07-31"
	azureModelID      = "prebuilt-read"
	azurePollInterval = 2 * time.Second
)

// Azure runs OCR through the Azure Document Intelligence read model. The
// analyze call is asynchronous: submit, then poll the Operation-Location
// until the result is ready.
type Azure struct {
	httpClient *http.Client
	endpoint   string
	key        string
	timeout    time.Duration
	log        *slog.Logger
}

func NewAzure(cfg *config.Config, log *slog.Logger) (*Azure, error) {
	if cfg.OCR.AzureEndpoint == "" || cfg.OCR.AzureKey == "" {
		return nil, fmt.Errorf("azure OCR requires AZURE_DI_ENDPOINT and AZURE_DI_KEY")
	}
	return &Azure{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		endpoint:   strings.TrimRight(cfg.OCR.AzureEndpoint, "/"),
		key:        cfg.OCR.AzureKey,
		timeout:    cfg.OCR.Timeout(),
		log:        log.With(logger.Scope("ocr.azure")),
	}, nil
}

func (a *Azure) Name() string { return "azure" }

type azureAnalyzeResult struct {
	Status        string      `json:"status"`
	Error         *azureError `json:"error"`
	AnalyzeResult *struct {
		Pages []struct {
			PageNumber int `json:"pageNumber"`
			Lines      []struct {
				Content string `json:"content"`
			} `json:"lines"`
		} `json:"pages"`
	} `json:"analyzeResult"`
}

type azureError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *azureError) Error() string {
	return fmt.Sprintf("azure document intelligence: %s: %s", e.Code, e.Message)
}

func (a *Azure) ExtractPages(ctx context.Context, blob []byte) ([]textextract.PageText, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	opURL, err := a.submit(ctx, blob)
	if err != nil {
		return nil, err
	}

	result, err := a.poll(ctx, opURL)
	if err != nil {
		return nil, err
	}

	var pages []textextract.PageText
	for _, p := range result.AnalyzeResult.Pages {
		lines := make([]string, 0, len(p.Lines))
		for _, l := range p.Lines {
			lines = append(lines, l.Content)
		}
		cleaned := textextract.CleanText(strings.Join(lines, "\n"))
		if cleaned == "" {
			continue
		}
		pages = append(pages, textextract.PageText{Page: p.PageNumber, Text: cleaned})
	}
	return pages, nil
}

// submit starts an analyze operation and returns the polling URL from the
// Operation-Location header.
func (a *Azure) submit(ctx context.Context, blob []byte) (string, error) {
	url := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		a.endpoint, azureModelID, azureAPIVersion)

	body, err := json.Marshal(map[string]string{
		"base64Source": base64.StdEncoding.EncodeToString(blob),
	})
	if err != nil {
		return "", fmt.Errorf("marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", a.responseError(resp)
	}

	opURL := resp.Header.Get("Operation-Location")
	if opURL == "" {
		return "", fmt.Errorf("analyze accepted but Operation-Location header missing")
	}
	return opURL, nil
}

func (a *Azure) poll(ctx context.Context, opURL string) (*azureAnalyzeResult, error) {
	ticker := time.NewTicker(azurePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, opURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", a.key)

		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("poll analyze: %w", err)
		}
		if resp.StatusCode >= 400 {
			err := a.responseError(resp)
			resp.Body.Close()
			return nil, err
		}

		var result azureAnalyzeResult
		err = json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode analyze result: %w", err)
		}

		switch result.Status {
		case "succeeded":
			if result.AnalyzeResult == nil {
				return nil, fmt.Errorf("analyze succeeded without a result body")
			}
			return &result, nil
		case "failed":
			if result.Error != nil {
				return nil, result.Error
			}
			return nil, fmt.Errorf("azure analyze failed")
		default:
			a.log.Debug("analyze pending", slog.String("status", result.Status))
		}
	}
}

func (a *Azure) responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var wrapper struct {
		Error *azureError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil {
		return wrapper.Error
	}
	return fmt.Errorf("azure document intelligence: status %d: %s",
		resp.StatusCode, strings.TrimSpace(string(body)))
}

var _ Provider = (*Azure)(nil)
