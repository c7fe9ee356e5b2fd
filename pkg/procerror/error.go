// Package procerror defines the typed processing outcomes used across the
// ingestion pipeline. Every document attempt terminates in exactly one
// status, and failures and skips always carry one of the enumerated
// validation reasons.
package procerror

import (
	"errors"
	"fmt"
)

// Status is the terminal state of a document processing attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Reason is the enumerated validation reason recorded with non-success
// outcomes. The set is fixed; free-form reasons are never written.
type Reason string

const (
	// Skips (intentional non-processing).
	ReasonPrecheckFailed    Reason = "precheck_failed"
	ReasonScannedOrImagePDF Reason = "scanned_or_image_pdf"

	// Failures.
	ReasonOCRFailed          Reason = "ocr_failed"
	ReasonPDFParseError      Reason = "pdf_parse_error"
	ReasonFetchError         Reason = "fetch_error"
	ReasonEmptyText          Reason = "empty_text"
	ReasonEmptyAfterChunking Reason = "empty_after_chunking"
	ReasonEmbeddingFailed    Reason = "embedding_failed"
	ReasonDBWriteFailed      Reason = "db_write_failed"
	ReasonCancelled          Reason = "cancelled"
	ReasonUnexpected         Reason = "unexpected_error"
)

// Status returns the processing status implied by the reason.
func (r Reason) Status() Status {
	switch r {
	case ReasonPrecheckFailed, ReasonScannedOrImagePDF:
		return StatusSkipped
	default:
		return StatusFailure
	}
}

// Error is a classified processing error. It wraps the underlying cause so
// callers can still errors.Is/As through it.
type Error struct {
	Reason   Reason
	Message  string
	Internal error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// New creates a classified error without an underlying cause.
func New(reason Reason, message string) *Error {
	return &Error{Reason: reason, Message: message}
}

// Wrap creates a classified error around an underlying cause.
func Wrap(reason Reason, message string, err error) *Error {
	return &Error{Reason: reason, Message: message, Internal: err}
}

// ReasonOf extracts the classified reason from an error chain. Unclassified
// errors map to unexpected_error; the processor boundary relies on this so
// the orchestrator never sees an unclassified failure.
func ReasonOf(err error) Reason {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonUnexpected
}

// Truncate bounds a message to max bytes. Stack traces recorded in log
// metrics go through this with a 4 KB cap.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}

// MaxStackBytes is the cap applied to stack traces stored in log metrics.
const MaxStackBytes = 4096
