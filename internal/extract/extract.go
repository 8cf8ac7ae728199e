// Package extract turns uploaded files into raw text and structured tables.
// Each format has its own extractor; Processor routes by file extension.
package extract

import (
	"fmt"
	"os"
)

// MaxFileSize is the shared upload limit applied by every extractor.
const MaxFileSize = 50 * 1024 * 1024

// Table is a normalized table detected in a document.
type Table struct {
	Page    int        `json:"page"`
	Index   int        `json:"index"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// RawExtraction is the uniform output of every format extractor.
type RawExtraction struct {
	RawText    string         `json:"raw_text"`
	Tables     []Table        `json:"structured_tables,omitempty"`
	Structured map[string]any `json:"structured_data,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ErrorCode identifies an extraction failure class.
type ErrorCode string

const (
	ErrUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	ErrInvalidFile       ErrorCode = "INVALID_FILE"
	ErrFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrEmptyFile         ErrorCode = "EMPTY_FILE"
	ErrParseFailure      ErrorCode = "PARSE_FAILURE"
	ErrOCRFailure        ErrorCode = "OCR_FAILURE"
)

// Error is a structured extraction failure. The orchestrator treats any
// extraction error as terminal for the document.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ValidateFile applies the uniform pre-checks shared by all extractors:
// the path must exist, be a regular readable file, be non-empty and not
// exceed MaxFileSize.
func ValidateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return wrapError(ErrInvalidFile, err, "stat %s", path)
	}
	if !info.Mode().IsRegular() {
		return newError(ErrInvalidFile, "%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return newError(ErrEmptyFile, "%s is empty", path)
	}
	if info.Size() > MaxFileSize {
		return newError(ErrFileTooLarge, "%s is %d bytes (limit %d)", path, info.Size(), MaxFileSize)
	}
	f, err := os.Open(path)
	if err != nil {
		return wrapError(ErrInvalidFile, err, "open %s", path)
	}
	return f.Close()
}
