package pgutils

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// PostgreSQL error codes.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	// Class 23 — Integrity Constraint Violation
	CodeUniqueViolation     = "23505"
	CodeForeignKeyViolation = "23503"
	CodeNotNullViolation    = "23502"

	// Class 08 — Connection Exception
	ClassConnection = "08"
	// Class 40 — Transaction Rollback (serialization failures, deadlocks)
	ClassRollback = "40"
	// Class 57 — Operator Intervention (admin shutdown, crash recovery)
	ClassIntervention = "57"
)

// IsUniqueViolation checks for a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	return containsErrorCode(err, CodeUniqueViolation)
}

// IsForeignKeyViolation checks for a foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return containsErrorCode(err, CodeForeignKeyViolation)
}

// IsTransient reports whether a database error is worth retrying.
// Connection failures, serialization failures, deadlocks and server
// shutdown errors are transient; constraint violations are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if code := sqlState(err); code != "" {
		switch code[:2] {
		case ClassConnection, ClassRollback, ClassIntervention:
			return true
		}
		return false
	}

	// Driver errors that never made it to the server.
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "conn closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// sqlState extracts a five-character SQLSTATE code from an error message,
// relying on the "SQLSTATE XXXXX" suffix pgx appends.
func sqlState(err error) string {
	msg := err.Error()
	idx := strings.LastIndex(msg, "SQLSTATE ")
	if idx < 0 || len(msg) < idx+len("SQLSTATE ")+5 {
		return ""
	}
	code := msg[idx+len("SQLSTATE "):]
	code = strings.TrimRight(code, ")")
	if len(code) < 5 {
		return ""
	}
	return code[:5]
}

func containsErrorCode(err error, code string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), code)
}
