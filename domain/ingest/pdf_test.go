package ingest

import (
	"bytes"
	"fmt"
)

// buildPDF assembles a minimal single-page PDF with the given page text and
// optional Producer metadata. Offsets are computed while writing so the xref
// table is always valid.
func buildPDF(producer, text string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	offsets := []int{0}
	add := func(obj string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(obj)
	}

	content := "BT ET"
	if text != "" {
		content = fmt.Sprintf("BT /F1 12 Tf (%s) Tj ET", text)
	}

	add("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	add("2 0 obj\n<< /Type /Pages /Kids [3 0 R] /Count 1 >>\nendobj\n")
	add("3 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] " +
		"/Resources << /Font << /F1 5 0 R >> >> /Contents 4 0 R >>\nendobj\n")
	add(fmt.Sprintf("4 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n", len(content), content))
	add("5 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")
	infoRef := ""
	if producer != "" {
		add(fmt.Sprintf("6 0 obj\n<< /Producer (%s) >>\nendobj\n", producer))
		infoRef = " /Info 6 0 R"
	}

	n := len(offsets)
	xrefPos := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", n)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < n; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n", n, infoRef, xrefPos)
	return buf.Bytes()
}
