package pdfinspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
		want bool
	}{
		{"standard header", []byte("%PDF-1.7\n%binary"), true},
		{"leading junk", append([]byte("\xef\xbb\xbfjunk"), []byte("%PDF-1.4")...), true},
		{"xlsx magic", []byte("PK\x03\x04 rest of zip"), false},
		{"plain text", []byte("hello world"), false},
		{"empty", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPDF(tt.blob))
		})
	}
}

func TestHeaderVersion(t *testing.T) {
	assert.Equal(t, "1.7", headerVersion([]byte("%PDF-1.7\nrest")))
	assert.Equal(t, "1.4", headerVersion([]byte("junk%PDF-1.4\r\n")))
	assert.Equal(t, "", headerVersion([]byte("not a pdf")))
}

func TestHasScannerSignature(t *testing.T) {
	tests := []struct {
		name     string
		producer string
		creator  string
		want     bool
	}{
		{"ricoh producer", "RICOH Aficio MP C3003", "", true},
		{"hp digital sending", "", "HP Digital Sending Device", true},
		{"xerox lowercase", "xerox workcentre", "", true},
		{"canon", "Canon iR-ADV C5235", "", true},
		{"epson", "", "EPSON Scan", true},
		{"generic scan word", "NAPS2 (Not Another PDF Scanner)", "", true},
		{"office suite", "Microsoft Word", "Microsoft Office", false},
		{"latex", "pdfTeX-1.40.25", "LaTeX", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasScannerSignature(tt.producer, tt.creator))
		})
	}
}

func TestInspectNonPDF(t *testing.T) {
	insp := Inspect([]byte("PK\x03\x04 spreadsheet bytes"))
	assert.Equal(t, NotPDF, insp.Class)
	assert.Equal(t, int64(22), insp.Metadata.FileSize)
}

func TestInspectCorrupt(t *testing.T) {
	// Valid magic but truncated body: the parser must not escape as a panic.
	insp := Inspect([]byte("%PDF-1.5\n1 0 obj\n<< /Type /Catalog"))
	assert.Equal(t, Corrupt, insp.Class)
	assert.Error(t, insp.Err)
	assert.Equal(t, "1.5", insp.Metadata.PDFVersion)
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "not_pdf", NotPDF.String())
	assert.Equal(t, "corrupt", Corrupt.String())
	assert.Equal(t, "extractable", Extractable.String())
	assert.Equal(t, "scanned_device", ScannedDevice.String())
	assert.Equal(t, "no_text", NoText.String())
}
