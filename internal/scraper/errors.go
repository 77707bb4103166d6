package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/maltedev/vendor-scraper/internal/models"
)

var ErrScraperPanic = errors.New("scraper panicked")

// Error codes reported in batch outcomes and metrics.
const (
	CodeUnsupportedVendor = "unsupported_vendor"
	CodeFetchFailed       = "fetch_failed"
	CodeParseFailed       = "parse_failed"
	CodeValidationFailed  = "validation_failed"
	CodeCancelled         = "cancelled"
	CodeInternal          = "internal"
)

// UnsupportedVendorError means no registered scraper handles the input.
type UnsupportedVendorError struct {
	Input string
}

func (e *UnsupportedVendorError) Error() string {
	return fmt.Sprintf("no scraper registered for %q", e.Input)
}

// FetchError is a retrieval failure after Attempts tries.
type FetchError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// ParseError reports a required field that is absent (Missing) or a field
// whose raw text could not be normalized.
type ParseError struct {
	Field    string
	RawValue string
	Missing  bool
	Err      error
}

func MissingField(field string) *ParseError {
	return &ParseError{Field: field, Missing: true}
}

func MalformedField(field, raw string, err error) *ParseError {
	return &ParseError{Field: field, RawValue: raw, Err: err}
}

func (e *ParseError) Error() string {
	if e.Missing {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("malformed %s: %q", e.Field, e.RawValue)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ErrorCode classifies err into one of the Code constants.
func ErrorCode(err error) string {
	var (
		unsupported *UnsupportedVendorError
		fetchErr    *FetchError
		parseErr    *ParseError
		validation  *models.ValidationError
	)

	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.As(err, &unsupported):
		return CodeUnsupportedVendor
	case errors.As(err, &fetchErr):
		return CodeFetchFailed
	case errors.As(err, &parseErr):
		return CodeParseFailed
	case errors.As(err, &validation):
		return CodeValidationFailed
	default:
		return CodeInternal
	}
}
