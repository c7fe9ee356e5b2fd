package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emergent-company/docpipe/domain/chunks"
	"github.com/emergent-company/docpipe/domain/documents"
	"github.com/emergent-company/docpipe/domain/proclog"
	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/internal/metadata"
	"github.com/emergent-company/docpipe/internal/storage"
	"github.com/emergent-company/docpipe/pkg/embeddings"
	"github.com/emergent-company/docpipe/pkg/keywords"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/ocr"
	"github.com/emergent-company/docpipe/pkg/pdfinspect"
	"github.com/emergent-company/docpipe/pkg/pgutils"
	"github.com/emergent-company/docpipe/pkg/procerror"
	"github.com/emergent-company/docpipe/pkg/textextract"
	"github.com/emergent-company/docpipe/pkg/textsplitter"
)

// Narrow views of the collaborators so tests can substitute fakes.

type blobFetcher interface {
	FetchObject(ctx context.Context, key string) ([]byte, int64, error)
}

type embedder interface {
	EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error)
	ModelName() string
}

type keywordExtractor interface {
	Extract(text string) []string
}

type persister interface {
	PersistDocument(ctx context.Context, doc *documents.Document, chs []*chunks.Chunk, enrich documents.Enrichment) (int, error)
	AppendLog(ctx context.Context, entry *proclog.Entry) error
}

const (
	extractionMethodText     = "standard_pdf"
	extractionMethodFallback = "standard_pdf_fallback"
	extractionMethodOCR      = "ocr" // suffixed with the provider name

	documentKeywordCap = 20
	documentHeadingCap = 10

	logAppendTimeout = 30 * time.Second
)

// Result is the outcome of one document attempt.
type Result struct {
	Status  procerror.Status
	Reason  procerror.Reason
	Metrics proclog.Metrics
}

// Processor runs one document through fetch, validation, extraction,
// chunking, embedding, keyword extraction and persistence. Every exit path
// appends exactly one processing log entry.
type Processor struct {
	fetcher  blobFetcher
	ocr      ocr.Provider
	embedder embedder
	keywords keywordExtractor
	store    persister

	ocrEnabled     bool
	chunkCfg       textsplitter.Config
	keywordWorkers int
	log            *slog.Logger
}

func NewProcessor(
	cfg *config.Config,
	fetcher *storage.Fetcher,
	provider ocr.Provider,
	svc *embeddings.Service,
	store *Store,
	log *slog.Logger,
) *Processor {
	kw, _ := config.ResolveKeywordWorkers(cfg.Keywords.Workers, runtime.NumCPU())
	if kw < 1 {
		kw = 1
	}

	return &Processor{
		fetcher:  fetcher,
		ocr:      provider,
		embedder: svc,
		keywords: keywords.NewExtractor(cfg.Keywords.MaxPerChunk),
		store:    store,

		ocrEnabled: cfg.OCR.Enabled,
		chunkCfg: textsplitter.Config{
			ChunkSize:    cfg.Chunking.Size,
			ChunkOverlap: cfg.Chunking.Overlap,
		},
		keywordWorkers: kw,
		log:            log.With(logger.Scope("ingest.processor")),
	}
}

// Process handles a single document and appends its log entry. It never
// panics: unexpected failures are caught at this boundary and recorded as
// unexpected_error.
func (p *Processor) Process(ctx context.Context, projectID string, doc metadata.Document) Result {
	start := time.Now()

	metrics, perr := p.runProtected(ctx, projectID, doc)
	metrics.TotalMs = time.Since(start).Milliseconds()

	var result Result
	entry := &proclog.Entry{
		DocumentID:  doc.DocumentID,
		ProjectID:   projectID,
		Metrics:     metrics,
		ProcessedAt: time.Now(),
	}

	if perr == nil {
		result.Status = procerror.StatusSuccess
		entry.Status = procerror.StatusSuccess
	} else {
		result.Reason = perr.Reason
		result.Status = perr.Reason.Status()
		entry.Status = result.Status
		entry.Reason = string(perr.Reason)
		entry.Error = procerror.Truncate(perr.Error(), procerror.MaxStackBytes)
	}
	result.Metrics = metrics

	// The log row must land even when the run context is already cancelled
	// during shutdown, so the append runs on a detached, bounded context.
	logCtx, cancelLog := context.WithTimeout(context.WithoutCancel(ctx), logAppendTimeout)
	defer cancelLog()
	if err := p.store.AppendLog(logCtx, entry); err != nil {
		p.log.Error("failed to append processing log",
			logger.Error(err),
			slog.String("document_id", doc.DocumentID),
		)
	}

	logAttrs := []any{
		slog.String("document_id", doc.DocumentID),
		slog.String("status", string(result.Status)),
		slog.Duration("duration", time.Since(start)),
	}
	if result.Reason != "" {
		logAttrs = append(logAttrs, slog.String("reason", string(result.Reason)))
	}
	p.log.Info("document processed", logAttrs...)

	return result
}

// runProtected wraps run with panic recovery. A panic becomes
// unexpected_error with a truncated stack in the log entry.
func (p *Processor) runProtected(ctx context.Context, projectID string, doc metadata.Document) (m proclog.Metrics, perr *procerror.Error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, procerror.MaxStackBytes)
			n := runtime.Stack(buf, false)
			perr = procerror.New(procerror.ReasonUnexpected,
				fmt.Sprintf("panic: %v\n%s", r, buf[:n]))
		}
	}()
	return p.run(ctx, projectID, doc)
}

func (p *Processor) run(ctx context.Context, projectID string, doc metadata.Document) (proclog.Metrics, *procerror.Error) {
	var m proclog.Metrics

	// fetching
	stage := time.Now()
	blob, _, err := p.fetcher.FetchObject(ctx, doc.S3Key)
	m.FetchMs = time.Since(stage).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return m, procerror.Wrap(procerror.ReasonCancelled, "fetch interrupted by shutdown", err)
		}
		return m, procerror.Wrap(procerror.ReasonFetchError, fmt.Sprintf("fetch %s", doc.S3Key), err)
	}

	// validating
	insp := pdfinspect.Inspect(blob)
	m.FileSize = insp.Metadata.FileSize
	m.PageCount = insp.Metadata.PageCount
	m.DocMetadata = metadataSnapshot(insp)

	var pages []textextract.PageText
	method := extractionMethodText

	switch insp.Class {
	case pdfinspect.NotPDF:
		return m, procerror.New(procerror.ReasonPrecheckFailed, "object is not a PDF")

	case pdfinspect.Corrupt:
		return m, procerror.Wrap(procerror.ReasonPDFParseError, "PDF failed to open", insp.Err)

	case pdfinspect.Extractable:
		stage = time.Now()
		pages, err = textextract.ExtractPages(blob)
		m.ExtractMs = time.Since(stage).Milliseconds()
		if err != nil {
			return m, procerror.Wrap(procerror.ReasonPDFParseError, "text extraction failed", err)
		}
		if textextract.TotalChars(pages) == 0 {
			if !p.ocrEnabled {
				return m, procerror.New(procerror.ReasonEmptyText, "no extractable text and OCR disabled")
			}
			pages, err = p.runOCR(ctx, blob, &m)
			if err != nil {
				return m, p.classifyOCRError(ctx, err)
			}
			method = p.ocrMethod()
		}

	case pdfinspect.ScannedDevice:
		if !p.ocrEnabled {
			return m, procerror.New(procerror.ReasonScannedOrImagePDF, "scanner-produced PDF and OCR disabled")
		}
		pages, err = p.runOCR(ctx, blob, &m)
		if err != nil {
			// A scanned-device PDF that still carried real text was routed
			// to OCR only for quality; fall back to its text layer.
			if insp.ProbeChars >= pdfinspect.DeviceTextThreshold {
				stage = time.Now()
				fallback, exErr := textextract.ExtractPages(blob)
				m.ExtractMs = time.Since(stage).Milliseconds()
				if exErr == nil && textextract.TotalChars(fallback) > 0 {
					p.log.Warn("OCR failed, using extractable text layer",
						logger.Error(err),
						slog.String("document_id", doc.DocumentID),
					)
					pages = fallback
					method = extractionMethodFallback
					break
				}
			}
			return m, p.classifyOCRError(ctx, err)
		}
		method = p.ocrMethod()

	case pdfinspect.NoText:
		if !p.ocrEnabled {
			return m, procerror.New(procerror.ReasonScannedOrImagePDF, "image-only PDF and OCR disabled")
		}
		pages, err = p.runOCR(ctx, blob, &m)
		if err != nil {
			return m, p.classifyOCRError(ctx, err)
		}
		method = p.ocrMethod()
	}

	m.ExtractionMethod = method
	if textextract.TotalChars(pages) == 0 {
		if strings.HasPrefix(method, extractionMethodOCR) {
			return m, procerror.New(procerror.ReasonOCRFailed, "OCR produced no meaningful text")
		}
		return m, procerror.New(procerror.ReasonEmptyText, "extraction produced no text")
	}

	// chunking
	stage = time.Now()
	split := textsplitter.SplitPages(pages, p.chunkCfg)
	m.ChunkMs = time.Since(stage).Milliseconds()
	if len(split) == 0 {
		return m, procerror.New(procerror.ReasonEmptyAfterChunking, "chunker produced no chunks")
	}
	m.ChunkCount = len(split)

	// embedding
	stage = time.Now()
	texts := make([]string, len(split))
	for i, c := range split {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	m.EmbedMs = time.Since(stage).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			return m, procerror.Wrap(procerror.ReasonCancelled, "embedding interrupted by shutdown", err)
		}
		return m, procerror.Wrap(procerror.ReasonEmbeddingFailed, "embedding failed", err)
	}

	// keyword extraction, bounded per-document parallelism
	chunkKeywords := p.extractKeywords(ctx, texts)
	for _, kws := range chunkKeywords {
		if len(kws) > 0 {
			m.KeywordChunks++
		}
	}

	// persisting
	stage = time.Now()
	docRow, chunkRows, enrich := p.buildRows(projectID, doc, insp, method, split, vectors, chunkKeywords, pages)
	retries, err := p.store.PersistDocument(ctx, docRow, chunkRows, enrich)
	m.PersistMs = time.Since(stage).Milliseconds()
	m.DBRetries = retries
	if err != nil {
		if ctx.Err() != nil {
			return m, procerror.Wrap(procerror.ReasonCancelled, "persistence interrupted by shutdown", err)
		}
		return m, procerror.Wrap(procerror.ReasonDBWriteFailed, "chunk persistence failed", err)
	}

	return m, nil
}

func (p *Processor) ocrMethod() string {
	return extractionMethodOCR + "_" + p.ocr.Name()
}

// metadataSnapshot captures what inspection could read. It is recorded in
// the log row even when the attempt fails.
func metadataSnapshot(insp pdfinspect.Inspection) map[string]string {
	meta := map[string]string{}
	if insp.Metadata.Producer != "" {
		meta["producer"] = insp.Metadata.Producer
	}
	if insp.Metadata.Creator != "" {
		meta["creator"] = insp.Metadata.Creator
	}
	if insp.Metadata.Title != "" {
		meta["title"] = insp.Metadata.Title
	}
	if insp.Metadata.PDFVersion != "" {
		meta["pdf_version"] = insp.Metadata.PDFVersion
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

func (p *Processor) runOCR(ctx context.Context, blob []byte, m *proclog.Metrics) ([]textextract.PageText, error) {
	stage := time.Now()
	pages, err := p.ocr.ExtractPages(ctx, blob)
	m.OcrMs = time.Since(stage).Milliseconds()
	return pages, err
}

func (p *Processor) classifyOCRError(ctx context.Context, err error) *procerror.Error {
	if ctx.Err() != nil {
		return procerror.Wrap(procerror.ReasonCancelled, "OCR interrupted by shutdown", err)
	}
	return procerror.Wrap(procerror.ReasonOCRFailed, "OCR extraction failed", err)
}

// extractKeywords runs the extractor over chunk texts with at most
// keywordWorkers goroutines. Per-chunk failures yield empty keyword lists.
func (p *Processor) extractKeywords(ctx context.Context, texts []string) [][]string {
	results := make([][]string, len(texts))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(p.keywordWorkers)
	for i, text := range texts {
		g.Go(func() error {
			results[i] = p.keywords.Extract(text)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (p *Processor) buildRows(
	projectID string,
	doc metadata.Document,
	insp pdfinspect.Inspection,
	method string,
	split []textsplitter.Chunk,
	vectors [][]float32,
	chunkKeywords [][]string,
	pages []textextract.PageText,
) (*documents.Document, []*chunks.Chunk, documents.Enrichment) {
	docRow := &documents.Document{
		DocumentID: doc.DocumentID,
		ProjectID:  projectID,
		Name:       doc.Name,
		S3Key:      doc.S3Key,
	}

	docMeta := metadataSnapshot(insp)

	chunkRows := make([]*chunks.Chunk, len(split))
	for i, c := range split {
		chunkRows[i] = &chunks.Chunk{
			DocumentID: doc.DocumentID,
			ProjectID:  projectID,
			ChunkIndex: c.Index,
			Page:       c.Page,
			Content:    c.Content,
			CharCount:  c.CharCount,
			Keywords:   chunkKeywords[i],
			Metadata: &chunks.ChunkMetadata{
				DocumentName:   doc.Name,
				S3Key:          doc.S3Key,
				EmbeddingModel: p.embedder.ModelName(),
				Extraction:     method,
				DocMetadata:    docMeta,
			},
			Embedding: pgutils.FormatVector(vectors[i]),
		}
	}

	tags := []string{method}
	if insp.Class == pdfinspect.ScannedDevice {
		tags = append(tags, "scanned-device")
	}

	enrich := documents.Enrichment{
		PageCount:        insp.Metadata.PageCount,
		ExtractionMethod: method,
		Keywords:         keywords.Merge(chunkKeywords, documentKeywordCap),
		Tags:             tags,
		Headings:         textextract.Headings(pages, documentHeadingCap),
		Metadata:         docMeta,
		Embedding:        embeddings.MeanVector(vectors),
	}

	return docRow, chunkRows, enrich
}
