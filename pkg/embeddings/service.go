package embeddings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/embeddings/genai"
	"github.com/emergent-company/docpipe/pkg/embeddings/local"
	"github.com/emergent-company/docpipe/pkg/logger"
)

// Module provides the embeddings service as an fx module.
var Module = fx.Module("embeddings",
	fx.Provide(NewService),
)

// Service selects the provider named by EMBEDDING_PROVIDER and enforces the
// configured vector dimension. The provider is built lazily on first use so
// a run that processes no documents never dials the embedding backend.
type Service struct {
	cfg config.EmbeddingsConfig
	log *slog.Logger

	initOnce sync.Once
	client   Client
	initErr  error
}

func NewService(cfg *config.Config, log *slog.Logger) *Service {
	return &Service{
		cfg: cfg.Embeddings,
		log: log.With(logger.Scope("embeddings")),
	}
}

func (s *Service) init(ctx context.Context) error {
	s.initOnce.Do(func() {
		switch s.cfg.Provider {
		case "local":
			s.client = local.NewClient(local.Config{
				BaseURL: s.cfg.ServiceURL,
				Timeout: s.cfg.BatchTimeout,
			}, s.log)
			s.log.Info("local embeddings client initialized",
				slog.String("url", s.cfg.ServiceURL),
				slog.String("model", s.cfg.ModelName),
			)
		case "genai":
			client, err := genai.NewClient(ctx, genai.Config{
				APIKey: s.cfg.GoogleAPIKey,
				Model:  s.cfg.ModelName,
			}, genai.WithLogger(s.log))
			if err != nil {
				s.initErr = fmt.Errorf("initialize genai embeddings client: %w", err)
				return
			}
			s.client = client
			s.log.Info("genai embeddings client initialized",
				slog.String("model", s.cfg.ModelName),
			)
		default:
			s.initErr = fmt.Errorf("unknown embedding provider %q", s.cfg.Provider)
		}
	})
	return s.initErr
}

// ModelName reports the configured model, used for chunk metadata.
func (s *Service) ModelName() string { return s.cfg.ModelName }

// Dimensions reports the expected vector width.
func (s *Service) Dimensions() int { return s.cfg.Dimensions }

// EmbedDocuments embeds the inputs and verifies every returned vector has
// the configured dimension.
func (s *Service) EmbedDocuments(ctx context.Context, documents []string) ([][]float32, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	if err := s.init(ctx); err != nil {
		return nil, err
	}

	vectors, err := s.client.EmbedDocuments(ctx, documents)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(documents) {
		return nil, fmt.Errorf("embedding count mismatch: %d inputs, %d vectors", len(documents), len(vectors))
	}
	for i, v := range vectors {
		if len(v) != s.cfg.Dimensions {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), s.cfg.Dimensions)
		}
	}
	return vectors, nil
}

// MeanVector averages chunk vectors into a document-level vector. Returns nil
// for empty input.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	mean := make([]float32, dims)
	for _, v := range vectors {
		for i := 0; i < dims && i < len(v); i++ {
			mean[i] += v[i]
		}
	}
	n := float32(len(vectors))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}

var _ Client = (*Service)(nil)
