package core

// error_messages.go turns ingestion errors into messages people can act on.
//
// Codes by category:
//
//	FILE001-FILE004  upload input (size, type, missing, empty)
//	XLS001-XLS004    workbook content (unreadable, no sheets, no data)
//	UPL001-UPL003    ingestion slots and request lifetime
//	REC001           record set or stored file not found
//	DB001-DB004      storage availability and integrity
//	RATE001          request throttling
//	ERR000           anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains and the first
// match wins, so specific patterns sit above general ones.

import (
	"fmt"
	"strings"
)

// UserMessage is what a client is shown for an error.
type UserMessage struct {
	Message string
	Action  string
	Code    string
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File
	{"file too large", UserMessage{
		Message: "File exceeds the maximum upload size",
		Action:  "Split the workbook into smaller files",
		Code:    "FILE001",
	}},
	{"unsupported file type", UserMessage{
		Message: "Only Excel workbooks can be uploaded",
		Action:  "Save the file as .xlsx or .xls and try again",
		Code:    "FILE002",
	}},
	{"no file provided", UserMessage{
		Message: "No file was selected",
		Action:  "Choose an Excel workbook to upload",
		Code:    "FILE003",
	}},
	{"empty file", UserMessage{
		Message: "The uploaded file is empty",
		Action:  "Upload a workbook with a header row and data rows",
		Code:    "FILE004",
	}},

	// Workbook
	{"unable to read workbook", UserMessage{
		Message: "The file could not be read as an Excel workbook",
		Action:  "Open the file in Excel, save it again and re-upload",
		Code:    "XLS001",
	}},
	{"workbook contains no sheets", UserMessage{
		Message: "The workbook has no sheets",
		Action:  "Add a sheet with a header row and data rows",
		Code:    "XLS002",
	}},
	{"must contain header and data", UserMessage{
		Message: "Sheet must contain header and data rows",
		Action:  "Put column names in the first row and at least one row of data below",
		Code:    "XLS003",
	}},
	{"no valid data found", UserMessage{
		Message: "No valid data found in any sheet",
		Action:  "Check that each sheet has a header row and data rows",
		Code:    "XLS004",
	}},

	// Upload lifecycle
	{"too many uploads", UserMessage{
		Message: "The registry is busy processing other uploads",
		Action:  "Wait a moment and try again",
		Code:    "UPL001",
	}},
	{"context canceled", UserMessage{
		Message: "The request was cancelled",
		Action:  "Try the upload again",
		Code:    "UPL002",
	}},
	{"context deadline exceeded", UserMessage{
		Message: "The request timed out",
		Action:  "Try a smaller workbook or try again later",
		Code:    "UPL003",
	}},

	// Storage
	{"references a missing blob", UserMessage{
		Message: "The stored file for this upload is missing",
		Action:  "Upload the workbook again",
		Code:    "DB003",
	}},
	{"violates foreign key", UserMessage{
		Message: "The stored file for this upload is missing",
		Action:  "Upload the workbook again",
		Code:    "DB003",
	}},
	{"not found", UserMessage{
		Message: "The requested record set was not found",
		Action:  "Refresh the list of uploaded files",
		Code:    "REC001",
	}},
	{"connection refused", UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Try again in a few moments",
		Code:    "DB001",
	}},
	{"connection reset", UserMessage{
		Message: "The database connection was interrupted",
		Action:  "Try again",
		Code:    "DB002",
	}},
	{"timeout", UserMessage{
		Message: "The operation timed out",
		Action:  "Try a smaller workbook or try again later",
		Code:    "DB004",
	}},

	{"rate limit", UserMessage{
		Message: "Too many requests",
		Action:  "Wait a moment before trying again",
		Code:    "RATE001",
	}},
}

// GenericMessage is the ERR000 fallback. The web layer also shows it for
// every 5xx response.
var GenericMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError returns the first message whose pattern occurs in err, or the
// ERR000 fallback. A nil error maps to the zero UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return GenericMessage
}

// FormatUserError renders err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
