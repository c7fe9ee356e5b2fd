package documents

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// offlineDB renders queries without ever opening a connection.
func offlineDB() *bun.DB {
	return bun.NewDB(sql.OpenDB(offlineConnector{}), pgdialect.New())
}

type offlineConnector struct{}

func (offlineConnector) Connect(context.Context) (driver.Conn, error) {
	return nil, errors.New("offline")
}

func (offlineConnector) Driver() driver.Driver { return offlineDriver{} }

type offlineDriver struct{}

func (offlineDriver) Open(string) (driver.Conn, error) { return nil, errors.New("offline") }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnrichmentQueryColumnNames(t *testing.T) {
	repo := NewRepository(offlineDB(), quietLogger())

	query := repo.enrichmentQuery(nil, "doc-1", Enrichment{
		PageCount:        3,
		ExtractionMethod: "standard_pdf",
		Keywords:         []string{"policy"},
		Tags:             []string{"standard_pdf"},
		Headings:         []string{"Coverage"},
		Metadata:         map[string]string{"producer": "LibreOffice"},
		Embedding:        []float32{0.1, 0.2},
	}).String()

	for _, col := range []string{
		"document_keywords = ",
		"document_tags = ",
		"document_headings = ",
		"document_metadata = ",
	} {
		assert.Contains(t, query, col)
	}
	assert.Contains(t, query, "::vector")
	assert.Contains(t, query, "document_id = 'doc-1'")
}

func TestEnrichmentQuerySkipsOptionalColumns(t *testing.T) {
	repo := NewRepository(offlineDB(), quietLogger())

	query := repo.enrichmentQuery(nil, "doc-2", Enrichment{
		PageCount:        1,
		ExtractionMethod: "standard_pdf",
	}).String()

	assert.NotContains(t, query, "document_metadata")
	assert.NotContains(t, query, "::vector")
	assert.Contains(t, query, "document_keywords = ")
}
