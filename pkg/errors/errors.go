// Package errors defines the error taxonomy for the reconciliation engine.
//
// Errors are grouped into categories that determine both propagation policy
// and, for the CLI, the process exit code. Line-item level failures
// (parse failures, missing candidates) are non-fatal and are absorbed into
// the owning line item's classification; invoice-level failures abort the
// run with no partial writes.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of engine errors
type ErrorCategory string

const (
	CategoryParse       ErrorCategory = "parse"
	CategoryMatching    ErrorCategory = "matching"
	CategoryLifecycle   ErrorCategory = "lifecycle"
	CategoryConcurrency ErrorCategory = "concurrency"
	CategoryUpstream    ErrorCategory = "upstream"
	CategoryStorage     ErrorCategory = "storage"
	CategoryInternal    ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// Parse errors (per line item, non-fatal to the invoice)
	CodeParseFailure ErrorCode = "parse_failure"
	CodeUnparseable  ErrorCode = "unparseable_line_item"

	// Matching errors (non-fatal)
	CodeNoCandidate ErrorCode = "no_candidate"

	// Lifecycle errors (fatal to the operation, invoice unchanged)
	CodeInvalidTransition        ErrorCode = "invalid_transition"
	CodeIncompleteReconciliation ErrorCode = "incomplete_reconciliation"
	CodeMissingDisputeReason     ErrorCode = "missing_dispute_reason"

	// Concurrency errors (caller should retry)
	CodeConcurrentRun ErrorCode = "concurrent_run_in_progress"

	// Upstream errors (retryable, invoice unchanged)
	CodeUpstreamTimeout ErrorCode = "upstream_timeout"

	// Storage errors
	CodeNotFound     ErrorCode = "not_found"
	CodeWriteFailure ErrorCode = "write_failure"

	// Internal errors
	CodeInvalidConfig   ErrorCode = "invalid_config"
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// EngineError is the base error type for all reconciliation engine errors
type EngineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may retry the failed operation as-is
func (e *EngineError) Retryable() bool {
	return e.Category == CategoryConcurrency || e.Category == CategoryUpstream
}

// GetExitCode returns an appropriate process exit code for the error
func (e *EngineError) GetExitCode() int {
	switch e.Category {
	case CategoryParse:
		return 2
	case CategoryMatching, CategoryLifecycle:
		return 3
	case CategoryConcurrency, CategoryUpstream:
		return 4
	case CategoryStorage:
		return 5
	case CategoryInternal:
		return 6
	default:
		return 1
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error
func (e *EngineError) WithSuggestion(suggestion string) *EngineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new EngineError
func New(category ErrorCategory, code ErrorCode, message string) *EngineError {
	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with EngineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *EngineError {
	if err == nil {
		return nil
	}

	return &EngineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Specific error constructors

// ParseFailure records a field that could not be normalized. It is attached
// to the owning line item's diagnostics, never raised past the normalizer.
func ParseFailure(field, value string, err error) *EngineError {
	message := fmt.Sprintf("could not parse field '%s' from value '%s'", field, value)

	var result *EngineError
	if err != nil {
		result = Wrap(err, CategoryParse, CodeParseFailure, message)
	} else {
		result = New(CategoryParse, CodeParseFailure, message)
	}

	return result.
		WithSuggestion("correct the field on the invoice line item and re-run reconciliation").
		WithContext("field", field).
		WithContext("value", value)
}

// NoCandidate indicates that no PO line item scored above the candidate
// floor for an invoice line item. The line item is classified unmatched.
func NoCandidate(invoiceLineItemID uint) *EngineError {
	return New(CategoryMatching, CodeNoCandidate,
		fmt.Sprintf("no purchase order line item scored above the floor for invoice line item %d", invoiceLineItemID)).
		WithSuggestion("verify the invoice is linked to the right purchase orders").
		WithContext("invoice_line_item_id", invoiceLineItemID)
}

// InvalidTransition rejects an illegal lifecycle move. No state change occurs.
func InvalidTransition(from, to string) *EngineError {
	return New(CategoryLifecycle, CodeInvalidTransition,
		fmt.Sprintf("invalid invoice transition from '%s' to '%s'", from, to)).
		WithContext("from", from).
		WithContext("to", to)
}

// IncompleteReconciliation rejects an approval attempted while line items
// remain unmatched, manual, or unacknowledged.
func IncompleteReconciliation(blocking int) *EngineError {
	return New(CategoryLifecycle, CodeIncompleteReconciliation,
		fmt.Sprintf("cannot approve invoice: %d line item(s) are not fully reconciled", blocking)).
		WithSuggestion("resolve or acknowledge every line item before approving").
		WithContext("blocking_line_items", blocking)
}

// ConcurrentRunInProgress indicates the per-invoice advisory lock is held
// by another reconciliation run.
func ConcurrentRunInProgress(invoiceID uint) *EngineError {
	return New(CategoryConcurrency, CodeConcurrentRun,
		fmt.Sprintf("a reconciliation run is already in progress for invoice %d", invoiceID)).
		WithSuggestion("retry after the current run completes").
		WithContext("invoice_id", invoiceID)
}

// UpstreamTimeout indicates a bounded external read (invoice, PO store)
// exceeded its deadline. The invoice keeps its prior state.
func UpstreamTimeout(operation string, err error) *EngineError {
	return Wrap(err, CategoryUpstream, CodeUpstreamTimeout,
		fmt.Sprintf("upstream operation '%s' timed out", operation)).
		WithSuggestion("retry the reconciliation run").
		WithContext("operation", operation)
}

// NotFound indicates a referenced entity does not exist
func NotFound(entity string, id uint) *EngineError {
	return New(CategoryStorage, CodeNotFound,
		fmt.Sprintf("%s %d not found", entity, id)).
		WithContext("entity", entity).
		WithContext("id", id)
}

// StorageError wraps a persistence failure
func StorageError(operation string, err error) *EngineError {
	return Wrap(err, CategoryStorage, CodeWriteFailure,
		fmt.Sprintf("storage operation '%s' failed", operation)).
		WithContext("operation", operation)
}

// ConfigError indicates invalid engine or matcher configuration
func ConfigError(message string) *EngineError {
	return New(CategoryInternal, CodeInvalidConfig, message)
}

// Predicates used by callers to branch on failure modes

func codeOf(err error) ErrorCode {
	if ee, ok := AsEngineError(err); ok {
		return ee.Code
	}
	return ""
}

// IsInvalidTransition reports whether err is a lifecycle transition rejection
func IsInvalidTransition(err error) bool {
	return codeOf(err) == CodeInvalidTransition
}

// IsIncompleteReconciliation reports whether err is an approval gate rejection
func IsIncompleteReconciliation(err error) bool {
	return codeOf(err) == CodeIncompleteReconciliation
}

// IsConcurrentRun reports whether err is advisory lock contention
func IsConcurrentRun(err error) bool {
	return codeOf(err) == CodeConcurrentRun
}

// IsUpstreamTimeout reports whether err is a bounded external call timeout
func IsUpstreamTimeout(err error) bool {
	return codeOf(err) == CodeUpstreamTimeout
}

// IsNotFound reports whether err is a missing-entity error
func IsNotFound(err error) bool {
	return codeOf(err) == CodeNotFound
}

// AsEngineError extracts an *EngineError from an error chain
func AsEngineError(err error) (*EngineError, bool) {
	for err != nil {
		if ee, ok := err.(*EngineError); ok {
			return ee, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
