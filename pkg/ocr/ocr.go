// Package ocr recovers text from scanned or image-only PDFs. Two providers
// are supported: a local tesseract pipeline and the Azure Document
// Intelligence service. The provider is fixed at startup; there is no
// fallback from one provider to the other.
package ocr

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/textextract"
)

// Module provides the configured OCR provider as an fx module.
var Module = fx.Module("ocr",
	fx.Provide(NewProvider),
)

// Provider extracts page text from a PDF that has no usable text layer.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string
	// ExtractPages runs OCR over every page of the blob. Pages yielding no
	// text are omitted from the result.
	ExtractPages(ctx context.Context, blob []byte) ([]textextract.PageText, error)
}

// NewProvider selects the provider named by OCR_PROVIDER. Returns a disabled
// provider when OCR is turned off so downstream code gets a uniform surface.
func NewProvider(cfg *config.Config, log *slog.Logger) (Provider, error) {
	if !cfg.OCR.Enabled {
		return disabledProvider{}, nil
	}
	switch cfg.OCR.Provider {
	case "tesseract":
		return NewTesseract(cfg, log), nil
	case "azure":
		return NewAzure(cfg, log)
	default:
		return nil, fmt.Errorf("unknown OCR provider %q", cfg.OCR.Provider)
	}
}

type disabledProvider struct{}

func (disabledProvider) Name() string { return "disabled" }

func (disabledProvider) ExtractPages(context.Context, []byte) ([]textextract.PageText, error) {
	return nil, fmt.Errorf("ocr is disabled")
}

var _ Provider = disabledProvider{}
