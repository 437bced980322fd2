package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrorCategory represents different types of errors that can occur in
// the pipeline
type ErrorCategory string

const (
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryExtraction    ErrorCategory = "extraction"
	ErrorCategoryMalformedData ErrorCategory = "malformed_data"
	ErrorCategoryDatabase      ErrorCategory = "database"
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryValidation    ErrorCategory = "validation"
	ErrorCategoryProcessing    ErrorCategory = "processing"
)

// PipelineError represents a standardized error with additional context
type PipelineError struct {
	Category    ErrorCategory `json:"category"`
	Code        string        `json:"code"`
	Message     string        `json:"message"`
	Details     interface{}   `json:"details,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	ServiceName string        `json:"service_name"`
	Operation   string        `json:"operation"`
	Retryable   bool          `json:"retryable"`
	Cause       error         `json:"-"` // Original error, not serialized
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewPipelineError creates a new pipeline error
func NewPipelineError(category ErrorCategory, code, message, serviceName, operation string, retryable bool, cause error) *PipelineError {
	return &PipelineError{
		Category:    category,
		Code:        code,
		Message:     message,
		Timestamp:   time.Now(),
		ServiceName: serviceName,
		Operation:   operation,
		Retryable:   retryable,
		Cause:       cause,
	}
}

// NewFetchError creates a network-category error for a failed feed or
// lookup API call
func NewFetchError(code, message, serviceName, operation string, cause error) *PipelineError {
	return NewPipelineError(ErrorCategoryNetwork, code, message, serviceName, operation, true, cause)
}

// NewExtractionError creates an extraction-category error for a detail
// page that could not be retrieved or located within its bounded wait
func NewExtractionError(code, message, operation string, cause error) *PipelineError {
	return NewPipelineError(ErrorCategoryExtraction, code, message, "Label_Extractor", operation, true, cause)
}

// NewMalformedDataError creates a malformed-data error for persisted
// cache content that could not be parsed; callers treat it as a cache
// miss rather than a failure
func NewMalformedDataError(code, message, serviceName string, cause error) *PipelineError {
	return NewPipelineError(ErrorCategoryMalformedData, code, message, serviceName, "parse_cached_record", false, cause)
}

// WithDetails adds additional details to the error
func (e *PipelineError) WithDetails(details interface{}) *PipelineError {
	e.Details = details
	return e
}

// IsRetryable returns whether the error is retryable
func (e *PipelineError) IsRetryable() bool {
	return e.Retryable
}

// GetCategory returns the error category
func (e *PipelineError) GetCategory() ErrorCategory {
	return e.Category
}

// LogError logs the error with structured fields
func (e *PipelineError) LogError() {
	logrus.WithFields(logrus.Fields{
		"error_category":   e.Category,
		"error_code":       e.Code,
		"error_message":    e.Message,
		"service_name":     e.ServiceName,
		"operation":        e.Operation,
		"retryable":        e.Retryable,
		"timestamp":        e.Timestamp,
		"details":          e.Details,
		"underlying_error": e.Cause,
	}).Error("Pipeline error occurred")
}

// WrapError wraps an existing error with pipeline error context
func WrapError(err error, category ErrorCategory, code, serviceName, operation string, retryable bool) *PipelineError {
	if err == nil {
		return nil
	}
	return NewPipelineError(category, code, err.Error(), serviceName, operation, retryable, err)
}

// IsCategory reports whether err is a PipelineError of the given category
func IsCategory(err error, category ErrorCategory) bool {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Category == category
	}
	return false
}

// IsExtractionError reports whether err represents a failed page extraction
func IsExtractionError(err error) bool {
	return IsCategory(err, ErrorCategoryExtraction) || IsCategory(err, ErrorCategoryTimeout)
}

// IsFetchError reports whether err represents a failed feed or lookup call
func IsFetchError(err error) bool {
	return IsCategory(err, ErrorCategoryNetwork)
}

// IsMalformedDataError reports whether err represents unparsable cached data
func IsMalformedDataError(err error) bool {
	return IsCategory(err, ErrorCategoryMalformedData)
}
