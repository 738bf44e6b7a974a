package errors

import (
	"fmt"
)

// ParseError represents a definition or config file that could not be decoded.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration or definition validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ScanError reports a structural failure while scanning one category of a bundle.
// A bundle whose merge produced a ScanError is never registered.
type ScanError struct {
	Bundle   string
	Category string
	Dir      string
	Err      error
}

// NewScanError constructs a ScanError.
func NewScanError(bundle, category, dir string, err error) error {
	return &ScanError{Bundle: bundle, Category: category, Dir: dir, Err: err}
}

func (e *ScanError) Error() string {
	if e == nil {
		return ""
	}
	if e.Bundle != "" {
		return fmt.Sprintf("scan error [%s] %s (%s): %v", e.Bundle, e.Category, e.Dir, e.Err)
	}
	return fmt.Sprintf("scan error %s (%s): %v", e.Category, e.Dir, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ScanError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ReferenceError indicates a malformed manual bundle reference such as a
// missing name or version separator.
type ReferenceError struct {
	Reference string
	Message   string
}

// NewReferenceError constructs a ReferenceError.
func NewReferenceError(reference, message string) error {
	return &ReferenceError{Reference: reference, Message: message}
}

func (e *ReferenceError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("reference error %q: %s", e.Reference, e.Message)
}

// SubsystemError wraps a failure reported by the external materialization
// subsystem during activation.
type SubsystemError struct {
	Phase string
	Err   error
}

// NewSubsystemError constructs a SubsystemError for the given activation phase.
func NewSubsystemError(phase string, err error) error {
	return &SubsystemError{Phase: phase, Err: err}
}

func (e *SubsystemError) Error() string {
	if e == nil {
		return ""
	}
	if e.Phase != "" {
		return fmt.Sprintf("subsystem error during %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("subsystem error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *SubsystemError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
