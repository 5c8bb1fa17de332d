package errs

// messages.go maps technical errors to user-facing summaries with support codes.
//
// Codes are grouped by category:
//
//	CF001-CF099  Configuration   (file type settings)
//	FL001-FL099  File            (reading, decoding, relocation)
//	VL001-VL099  Validation      (column content)
//	PM001-PM099  Permission      (sink grants)
//	DB001-DB099  Database        (connection, constraints)
//	UP001-UP099  Upload/run      (cancellation, concurrency)
//	ERR000       Fallback
//
// Typed errors are classified first; anything else is matched case-insensitively
// against errorPatterns using strings.Contains. The first matching pattern wins,
// so specific patterns come before general ones.

import (
	"errors"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// =========================================================================
	// File Errors
	// =========================================================================
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "This file format is not supported",
			Action:  "Save the file as .xlsx or .csv",
			Code:    "FL001",
		},
	},
	{
		pattern: "encoding error",
		msg: UserMessage{
			Message: "File contains characters that could not be decoded",
			Action:  "Save the file as UTF-8, Windows-874 or Latin-1",
			Code:    "FL002",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "File not found",
			Action:  "Check that the file still exists in the input folder",
			Code:    "FL003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file has no data rows",
			Action:  "Check that the file contains a header and data",
			Code:    "FL004",
		},
	},
	{
		pattern: "move file",
		msg: UserMessage{
			Message: "Data was loaded but the file could not be moved",
			Action:  "Move the file out of the input folder manually",
			Code:    "FL005",
		},
	},
	{
		pattern: "no matching file type",
		msg: UserMessage{
			Message: "The header does not match any configured file type",
			Action:  "Add a file type or check the header row",
			Code:    "FL006",
		},
	},

	// =========================================================================
	// Database Errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "Two rows share the same key",
			Action:  "Check the upsert keys for duplicate values",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},
	{
		pattern: "does not match configuration",
		msg: UserMessage{
			Message: "The existing table does not match the file type",
			Action:  "Run a replace load to recreate the table",
			Code:    "DB005",
		},
	},

	// =========================================================================
	// Run Errors
	// =========================================================================
	{
		pattern: "run already in progress",
		msg: UserMessage{
			Message: "Another load is already running",
			Action:  "Wait for the current load to finish",
			Code:    "UP001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The load was cancelled",
			Action:  "Start a new load when ready",
			Code:    "UP002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The request timed out",
			Action:  "Try again with fewer files",
			Code:    "UP003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "UP004",
		},
	},
}

// MapError converts an error into a UserMessage. Returns the zero value for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return UserMessage{
			Message: "The file type configuration is invalid: " + ce.Reason,
			Action:  "Fix the file type settings and retry",
			Code:    "CF001",
		}
	}

	var pe *PermissionError
	if errors.As(err, &pe) {
		return UserMessage{
			Message: "The database user lacks required permissions: " + strings.Join(pe.Missing, ", "),
			Action:  "Ask a database administrator to grant the missing permissions",
			Code:    "PM001",
		}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return validationMessage(ve)
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or check the logs",
		Code:    "ERR000",
	}
}

func validationMessage(ve *ValidationError) UserMessage {
	msg := UserMessage{Message: ve.Error()}
	switch ve.Check {
	case CheckMissingColumn:
		msg.Code = "VL001"
		msg.Action = "Check that all configured columns are present in the file"
	case CheckNumeric:
		msg.Code = "VL002"
		msg.Action = "Remove text from numeric columns"
	case CheckDate:
		msg.Code = "VL003"
		msg.Action = "Use dates matching the configured UK/US format"
	case CheckStringLength:
		msg.Code = "VL004"
		msg.Action = "Shorten the values or widen the column type"
	case CheckBoolean:
		msg.Code = "VL005"
		msg.Action = "Use true/false, yes/no or 1/0"
	default:
		msg.Code = "VL000"
		msg.Action = "Review the column values"
	}
	return msg
}

// Summary renders err as "message (CODE)" for reports.
func Summary(err error) string {
	m := MapError(err)
	if m.Code == "ERR000" {
		return err.Error() + " (" + m.Code + ")"
	}
	return m.Message + " (" + m.Code + ")"
}
