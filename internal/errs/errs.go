// Package errs defines the error taxonomy shared by the ingestion pipeline.
//
// Each kind is a distinct type so callers can branch with errors.As:
//
//	ConfigurationError - a file type is absent or malformed
//	ReadError          - a file is corrupt, unsupported or undecodable
//	ValidationError    - a column holds values that do not fit its declared type
//	PermissionError    - the sink lacks a critical grant
//	UploadError        - the sink rejected a write
//
// Detection failure is not an error: detectors return ok=false.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports an absent or malformed file type configuration.
type ConfigurationError struct {
	Type   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Type == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error for type %q: %s", e.Type, e.Reason)
}

// Configf builds a ConfigurationError with a formatted reason.
func Configf(typeName, format string, args ...any) error {
	return &ConfigurationError{Type: typeName, Reason: fmt.Sprintf(format, args...)}
}

// ReadError reports a file that could not be read into a table.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Validation checks.
const (
	CheckMissingColumn = "missing_column"
	CheckNumeric       = "numeric"
	CheckDate          = "date"
	CheckStringLength  = "string_length"
	CheckBoolean       = "boolean"
	CheckHighNull      = "high_null"
)

// ValidationError describes one column whose values do not fit the declared type.
type ValidationError struct {
	Column   string
	Check    string
	Expected string   // declared SQL type, e.g. DECIMAL(18,2)
	Examples []string // distinct offending values, bounded
	Invalid  int
	Total    int
	Percent  float64 // share of rows affected, rounded to 2 decimals
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	switch e.Check {
	case CheckMissingColumn:
		fmt.Fprintf(&b, "missing required column %q", e.Column)
		return b.String()
	case CheckNumeric:
		fmt.Fprintf(&b, "invalid number in column %q", e.Column)
	case CheckDate:
		fmt.Fprintf(&b, "invalid date in column %q", e.Column)
	case CheckStringLength:
		fmt.Fprintf(&b, "string too long in column %q", e.Column)
	case CheckBoolean:
		fmt.Fprintf(&b, "invalid boolean in column %q", e.Column)
	case CheckHighNull:
		fmt.Fprintf(&b, "mostly empty column %q", e.Column)
	default:
		fmt.Fprintf(&b, "%s check failed for column %q", e.Check, e.Column)
	}
	if e.Expected != "" {
		fmt.Fprintf(&b, " (expected %s)", e.Expected)
	}
	fmt.Fprintf(&b, ": %d of %d rows (%.2f%%)", e.Invalid, e.Total, e.Percent)
	if len(e.Examples) > 0 {
		fmt.Fprintf(&b, ", e.g. %s", quoteAll(e.Examples))
	}
	return b.String()
}

// PermissionError reports missing critical grants on the sink.
type PermissionError struct {
	Schema  string
	Missing []string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied on schema %q: missing %s", e.Schema, strings.Join(e.Missing, ", "))
}

// UploadError reports a write the sink rejected.
type UploadError struct {
	Type  string
	Table string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s to %s: %v", e.Type, e.Table, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// ErrSchemaMismatch is wrapped by UploadError when an existing table must be
// recreated but the write is not allowed to be destructive.
var ErrSchemaMismatch = errors.New("table schema does not match configuration")

// ErrUnsupportedFormat is wrapped by ReadError for extensions the reader cannot parse.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrUndecodable is wrapped by ReadError when no candidate encoding fits the file.
var ErrUndecodable = errors.New("encoding error: no supported encoding decodes the file")

// IsFileLevel reports whether err should be recorded against a single file
// without aborting the run.
func IsFileLevel(err error) bool {
	var re *ReadError
	var ve *ValidationError
	var ce *ConfigurationError
	return errors.As(err, &re) || errors.As(err, &ve) || errors.As(err, &ce)
}

func quoteAll(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return strings.Join(quoted, ", ")
}
