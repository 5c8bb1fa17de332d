package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "configuration error",
			err:      Configf("orders", "duplicate target column %q", "amount"),
			wantCode: "CF001",
		},
		{
			name:     "wrapped permission error",
			err:      fmt.Errorf("preflight: %w", &PermissionError{Schema: "bronze", Missing: []string{"CREATE TABLE"}}),
			wantCode: "PM001",
		},
		{
			name:     "numeric validation",
			err:      &ValidationError{Column: "amount", Check: CheckNumeric},
			wantCode: "VL002",
		},
		{
			name:     "missing column",
			err:      &ValidationError{Column: "amount", Check: CheckMissingColumn},
			wantCode: "VL001",
		},
		{
			name:     "unsupported format through read error",
			err:      &ReadError{Path: "a.xls", Err: ErrUnsupportedFormat},
			wantCode: "FL001",
		},
		{
			name:     "undecodable file",
			err:      &ReadError{Path: "a.csv", Err: ErrUndecodable},
			wantCode: "FL002",
		},
		{
			name:     "schema mismatch",
			err:      &UploadError{Type: "orders", Table: "bronze.orders", Err: ErrSchemaMismatch},
			wantCode: "DB005",
		},
		{
			name:     "cancellation",
			err:      context.Canceled,
			wantCode: "UP002",
		},
		{
			name:     "unknown error",
			err:      errors.New("something odd"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_PatternsHaveCodes(t *testing.T) {
	for _, p := range errorPatterns {
		if p.msg.Code == "" || p.msg.Message == "" {
			t.Errorf("pattern %q is missing code or message", p.pattern)
		}
		if p.pattern != strings.ToLower(p.pattern) {
			t.Errorf("pattern %q must be lowercase", p.pattern)
		}
	}
}

// =============================================================================
// ValidationError formatting
// =============================================================================

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{
		Column:   "amount",
		Check:    CheckNumeric,
		Expected: "DECIMAL(18,2)",
		Examples: []string{"bad"},
		Invalid:  1,
		Total:    2,
		Percent:  50,
	}

	got := err.Error()
	for _, want := range []string{`"amount"`, "DECIMAL(18,2)", "1 of 2 rows", "50.00%", `"bad"`} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestIsFileLevel(t *testing.T) {
	if !IsFileLevel(&ReadError{Path: "x", Err: errors.New("boom")}) {
		t.Error("ReadError should be file level")
	}
	if !IsFileLevel(fmt.Errorf("wrap: %w", &ValidationError{Column: "a"})) {
		t.Error("wrapped ValidationError should be file level")
	}
	if IsFileLevel(&PermissionError{Schema: "s"}) {
		t.Error("PermissionError must not be file level")
	}
	if IsFileLevel(&UploadError{Type: "t"}) {
		t.Error("UploadError must not be file level")
	}
}

func TestSummary(t *testing.T) {
	got := Summary(&ReadError{Path: "a.xls", Err: ErrUnsupportedFormat})
	if !strings.HasSuffix(got, "(FL001)") {
		t.Errorf("Summary() = %q, want FL001 suffix", got)
	}

	got = Summary(errors.New("kaboom"))
	if !strings.Contains(got, "kaboom") {
		t.Errorf("Summary() = %q, want original text for unknown errors", got)
	}
}
