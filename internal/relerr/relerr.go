// Package relerr provides the structured error type used across
// releng-tools for classifying fatal build failures.
package relerr

import (
	"errors"
	"fmt"
)

// Category identifies which stage or precondition of a run failed.
type Category string

const (
	// Preconditions on the invoking environment
	CategoryEnvironment Category = "environment" // not running under CI or a recognized container
	CategoryProvider    Category = "provider"    // no CI provider marker matched
	CategoryUnsupported Category = "unsupported" // operation the matched provider forbids
	CategoryPolicy      Category = "policy"      // e.g. extra repos outside a feature branch

	// Repository and staging failures
	CategoryUpstreamTag Category = "upstream-tag" // upstream/<version> ref missing
	CategoryGit         Category = "git"
	CategoryFileSystem  Category = "filesystem"

	// External toolchain failures
	CategoryChangelog  Category = "changelog"
	CategoryDependency Category = "dependency"
	CategoryBuild      Category = "build"

	CategoryInternal Category = "internal"
)

// Severity indicates how an error affects the run. Every error in this
// system is fatal to the run; Severity exists for log classification.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ContextFields carries structured context attached to an Error.
type ContextFields map[string]any

// Error is a classified releng-tools error.
type Error struct {
	Category Category
	Severity Severity
	Message  string
	Cause    error
	Context  ContextFields
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext attaches a context field and returns the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a fatal Error in the given category.
func New(category Category, message string) *Error {
	return &Error{
		Category: category,
		Severity: SeverityFatal,
		Message:  message,
	}
}

// Wrap creates a fatal Error wrapping an existing cause.
func Wrap(err error, category Category, message string) *Error {
	return &Error{
		Category: category,
		Severity: SeverityFatal,
		Message:  message,
		Cause:    err,
	}
}

// IsCategory reports whether err (or anything it wraps) is a releng
// Error of the given category.
func IsCategory(err error, category Category) bool {
	var re *Error
	if errors.As(err, &re) {
		return re.Category == category
	}
	return false
}

// GetCategory extracts the category from an error chain, defaulting to
// CategoryInternal for foreign errors.
func GetCategory(err error) Category {
	var re *Error
	if errors.As(err, &re) {
		return re.Category
	}
	return CategoryInternal
}
