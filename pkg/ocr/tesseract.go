package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/textextract"
)

// Tesseract rasterizes PDF pages with pdftoppm and runs the tesseract binary
// on each page image. Both tools must be on PATH.
type Tesseract struct {
	dpi      int
	language string
	timeout  time.Duration
	log      *slog.Logger
}

func NewTesseract(cfg *config.Config, log *slog.Logger) *Tesseract {
	return &Tesseract{
		dpi:      cfg.OCR.DPI,
		language: cfg.OCR.Language,
		timeout:  cfg.OCR.Timeout(),
		log:      log.With(logger.Scope("ocr.tesseract")),
	}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) ExtractPages(ctx context.Context, blob []byte) ([]textextract.PageText, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	workDir, err := os.MkdirTemp("", "docpipe-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create ocr workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	pdfPath := filepath.Join(workDir, "input.pdf")
	if err := os.WriteFile(pdfPath, blob, 0o600); err != nil {
		return nil, fmt.Errorf("write ocr input: %w", err)
	}

	start := time.Now()
	images, err := t.rasterize(ctx, workDir, pdfPath)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no page images")
	}
	t.log.Debug("rasterized pdf",
		slog.Int("pages", len(images)),
		slog.Duration("duration", time.Since(start)),
	)

	var pages []textextract.PageText
	for _, img := range images {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		text, err := t.recognize(ctx, img.path)
		if err != nil {
			return nil, fmt.Errorf("tesseract page %d: %w", img.page, err)
		}
		cleaned := textextract.CleanText(text)
		if cleaned == "" {
			continue
		}
		pages = append(pages, textextract.PageText{Page: img.page, Text: cleaned})
	}
	return pages, nil
}

type pageImage struct {
	page int
	path string
}

// rasterize renders every page to a PNG named page-N.png in workDir and
// returns them in page order.
func (t *Tesseract) rasterize(ctx context.Context, workDir, pdfPath string) ([]pageImage, error) {
	prefix := filepath.Join(workDir, "page")
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-r", strconv.Itoa(t.dpi),
		pdfPath, prefix,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, strings.TrimSpace(string(out)))
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("glob page images: %w", err)
	}

	images := make([]pageImage, 0, len(matches))
	for _, m := range matches {
		// pdftoppm pads page numbers: page-01.png, page-1.png etc.
		base := strings.TrimSuffix(filepath.Base(m), ".png")
		numStr := strings.TrimPrefix(base, "page-")
		num, err := strconv.Atoi(strings.TrimLeft(numStr, "0"))
		if err != nil {
			continue
		}
		images = append(images, pageImage{page: num, path: m})
	}
	sort.Slice(images, func(i, j int) bool { return images[i].page < images[j].page })
	return images, nil
}

func (t *Tesseract) recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "tesseract",
		imagePath, "stdout",
		"-l", t.language,
	)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}

var _ Provider = (*Tesseract)(nil)
