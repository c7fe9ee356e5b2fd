// Package pdfinspect opens PDF blobs, reads their metadata and probes for an
// extractable text layer, classifying each document for pipeline routing.
package pdfinspect

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Class is the routing classification of a PDF blob.
type Class int

const (
	// NotPDF means the magic-byte precheck failed.
	NotPDF Class = iota
	// Corrupt means the blob claims to be a PDF but could not be parsed.
	Corrupt
	// Extractable means the text layer is usable directly.
	Extractable
	// ScannedDevice means producer/creator metadata matches a known
	// scanner signature; OCR gives better text than the embedded layer.
	ScannedDevice
	// NoText means the blob parsed but has no meaningful text layer.
	NoText
)

func (c Class) String() string {
	switch c {
	case NotPDF:
		return "not_pdf"
	case Corrupt:
		return "corrupt"
	case Extractable:
		return "extractable"
	case ScannedDevice:
		return "scanned_device"
	case NoText:
		return "no_text"
	default:
		return "unknown"
	}
}

// Tunable thresholds for text-layer probing.
const (
	// MinProbeChars is the minimum extractable characters across probed
	// pages below which a document is classified as having no text.
	MinProbeChars = 50

	// DeviceTextThreshold is the character count under which a document
	// with a scanner signature is routed to OCR even though some text
	// extracted.
	DeviceTextThreshold = 200

	// probePages caps how many leading pages the text probe reads.
	probePages = 3
)

// scannerSignatures are matched case-insensitively as substrings against the
// producer and creator metadata fields.
var scannerSignatures = []string{
	"hp digital sending",
	"ricoh",
	"xerox",
	"canon",
	"epson",
	"scanner",
	"scan",
}

// Metadata is what could be read from the document, populated best-effort
// even when classification fails.
type Metadata struct {
	Producer  string `json:"producer,omitempty"`
	Creator   string `json:"creator,omitempty"`
	Title     string `json:"title,omitempty"`
	PageCount int    `json:"page_count,omitempty"`
	FileSize  int64  `json:"file_size"`
	PDFVersion string `json:"pdf_version,omitempty"`
}

// Inspection is the result of classifying a blob.
type Inspection struct {
	Class      Class
	Metadata   Metadata
	ProbeChars int
	ProbeText  string
	Err        error
}

var pdfMagic = []byte("%PDF-")

// IsPDF checks the magic bytes. A PDF may start with a small amount of
// leading junk, which real-world scanners occasionally produce.
func IsPDF(blob []byte) bool {
	limit := len(blob)
	if limit > 1024 {
		limit = 1024
	}
	return bytes.Contains(blob[:limit], pdfMagic)
}

// HasScannerSignature matches producer/creator metadata against the known
// scanning-device signatures.
func HasScannerSignature(producer, creator string) bool {
	combined := strings.ToLower(producer + " " + creator)
	for _, sig := range scannerSignatures {
		if strings.Contains(combined, sig) {
			return true
		}
	}
	return false
}

// Inspect classifies a blob. It never panics: the underlying PDF parser
// aborts on malformed structures, which is recovered and reported as a
// Corrupt classification.
func Inspect(blob []byte) (insp Inspection) {
	insp.Metadata.FileSize = int64(len(blob))

	if !IsPDF(blob) {
		insp.Class = NotPDF
		return insp
	}
	insp.Metadata.PDFVersion = headerVersion(blob)

	defer func() {
		if r := recover(); r != nil {
			insp.Class = Corrupt
			insp.Err = fmt.Errorf("pdf parse panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		insp.Class = Corrupt
		insp.Err = fmt.Errorf("open pdf: %w", err)
		return insp
	}

	insp.Metadata.PageCount = reader.NumPage()
	readInfo(reader, &insp.Metadata)

	insp.ProbeText, insp.ProbeChars = probeText(reader)

	device := HasScannerSignature(insp.Metadata.Producer, insp.Metadata.Creator)
	switch {
	case device:
		// A device signature always routes to OCR; with ProbeChars at or
		// above DeviceTextThreshold the text layer remains usable as a
		// fallback.
		insp.Class = ScannedDevice
	case insp.ProbeChars < MinProbeChars:
		insp.Class = NoText
	default:
		insp.Class = Extractable
	}
	return insp
}

// headerVersion reads the version declared in the %PDF- header.
func headerVersion(blob []byte) string {
	idx := bytes.Index(blob, pdfMagic)
	if idx < 0 {
		return ""
	}
	rest := blob[idx+len(pdfMagic):]
	end := 0
	for end < len(rest) && end < 8 && rest[end] != '\r' && rest[end] != '\n' && rest[end] != ' ' {
		end++
	}
	return string(rest[:end])
}

// readInfo copies producer/creator/title from the trailer Info dictionary.
func readInfo(reader *pdf.Reader, meta *Metadata) {
	trailer := reader.Trailer()
	if trailer.IsNull() {
		return
	}
	info := trailer.Key("Info")
	if info.IsNull() {
		return
	}
	meta.Producer = infoString(info.Key("Producer"))
	meta.Creator = infoString(info.Key("Creator"))
	meta.Title = infoString(info.Key("Title"))
}

func infoString(v pdf.Value) string {
	if v.IsNull() || v.Kind() != pdf.String {
		return ""
	}
	return strings.TrimSpace(v.Text())
}

// probeText extracts text from the leading pages to measure how much of a
// text layer exists.
func probeText(reader *pdf.Reader) (string, int) {
	var sb strings.Builder
	pages := reader.NumPage()
	if pages > probePages {
		pages = probePages
	}

	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}

	probed := strings.TrimSpace(sb.String())
	return probed, len([]rune(probed))
}
