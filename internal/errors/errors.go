package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/quietbeacon/epi/internal/types"
)

// Error types for the emergency-procedure-index engine
type ErrorType string

const (
	// Load errors
	ErrorTypeMalformed   ErrorType = "malformed_procedure"
	ErrorTypeDuplicate   ErrorType = "duplicate_identifier"
	ErrorTypeLoadTimeout ErrorType = "load_timeout"

	// Query errors
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInvalidQuery ErrorType = "invalid_query"

	// Source file errors
	ErrorTypeSource     ErrorType = "source"
	ErrorTypePermission ErrorType = "permission"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// LoadError represents an error that aborted a manual load. No store is
// published when one occurs; a previously loaded store stays in effect.
type LoadError struct {
	Type       ErrorType
	ID         types.ProcedureID
	Path       string
	Line       int
	Heading    string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewMalformedProcedure reports a heading with zero steps, zero notes
// and zero children.
func NewMalformedProcedure(id types.ProcedureID, heading string) *LoadError {
	return &LoadError{
		Type:       ErrorTypeMalformed,
		ID:         id,
		Heading:    heading,
		Underlying: fmt.Errorf("procedure %q has no steps, no notes and no children", heading),
		Timestamp:  time.Now(),
	}
}

// NewDuplicateIdentifier reports two headings normalizing to the same id.
func NewDuplicateIdentifier(id types.ProcedureID, heading string) *LoadError {
	return &LoadError{
		Type:       ErrorTypeDuplicate,
		ID:         id,
		Heading:    heading,
		Underlying: fmt.Errorf("heading %q collides with an existing procedure id", heading),
		Timestamp:  time.Now(),
	}
}

// NewMalformedStructure reports a record that violates tree structure,
// such as a parent reference to an id that never appeared before it.
func NewMalformedStructure(id types.ProcedureID, heading, reason string) *LoadError {
	return &LoadError{
		Type:       ErrorTypeMalformed,
		ID:         id,
		Heading:    heading,
		Underlying: fmt.Errorf("procedure %q is malformed: %s", heading, reason),
		Timestamp:  time.Now(),
	}
}

// NewLoadTimeout wraps a context cancellation or deadline hit during load.
func NewLoadTimeout(op string, err error) *LoadError {
	return &LoadError{
		Type:       ErrorTypeLoadTimeout,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithSource adds the originating file position to the error.
func (e *LoadError) WithSource(path string, line int) *LoadError {
	e.Path = path
	e.Line = line
	return e
}

// Error implements the error interface
func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s at %s:%d: %v", e.Type, e.Path, e.Line, e.Underlying)
	}
	if e.Operation != "" {
		return fmt.Sprintf("%s during %s: %v", e.Type, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("%s: %v", e.Type, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *LoadError) Unwrap() error {
	return e.Underlying
}

// NotFoundError represents a lookup of an id that is not in the store.
type NotFoundError struct {
	Type      ErrorType
	ID        types.ProcedureID
	Timestamp time.Time
}

// NewNotFound creates a new not-found error
func NewNotFound(id types.ProcedureID) *NotFoundError {
	return &NotFoundError{
		Type:      ErrorTypeNotFound,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no procedure with id %q", e.ID)
}

// QueryError represents a query rejected before matching. An empty
// result is never an error; QueryError covers malformed input only.
type QueryError struct {
	Type      ErrorType
	Query     string
	Reason    string
	Timestamp time.Time
}

// NewInvalidQuery creates a new invalid-query error
func NewInvalidQuery(query, reason string) *QueryError {
	return &QueryError{
		Type:      ErrorTypeInvalidQuery,
		Query:     query,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *QueryError) Error() string {
	return fmt.Sprintf("invalid query %q: %s", e.Query, e.Reason)
}

// SourceError represents a manual-source file error
type SourceError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewSourceError creates a new source file error
func NewSourceError(op, path string, err error) *SourceError {
	errorType := ErrorTypeSource
	if isPermissionError(err) {
		errorType = ErrorTypePermission
	}

	return &SourceError{
		Type:       errorType,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// isPermissionError checks if the error is a permission error
func isPermissionError(err error) bool {
	return stderrors.Is(err, fs.ErrPermission)
}

// Error implements the error interface
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

// Unwrap returns the underlying error
func (e *SourceError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new config error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// MultiError represents multiple errors
type MultiError struct {
	Errors []error
}

// NewMultiError creates a new multi-error
func NewMultiError(errs []error) *MultiError {
	// Filter out nil errors
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap returns all errors
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// IsMalformed reports whether err carries a MalformedProcedure load failure.
func IsMalformed(err error) bool { return hasLoadType(err, ErrorTypeMalformed) }

// IsDuplicate reports whether err carries a DuplicateIdentifier load failure.
func IsDuplicate(err error) bool { return hasLoadType(err, ErrorTypeDuplicate) }

// IsLoadTimeout reports whether err carries a LoadTimeout failure.
func IsLoadTimeout(err error) bool { return hasLoadType(err, ErrorTypeLoadTimeout) }

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return stderrors.As(err, &nf)
}

// IsInvalidQuery reports whether err is an invalid-query rejection.
func IsInvalidQuery(err error) bool {
	var qe *QueryError
	return stderrors.As(err, &qe) && qe.Type == ErrorTypeInvalidQuery
}

func hasLoadType(err error, t ErrorType) bool {
	var le *LoadError
	return stderrors.As(err, &le) && le.Type == t
}
