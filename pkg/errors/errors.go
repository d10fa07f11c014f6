package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
)

// Code classifies a failure by how the caller should react to it.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConcurrency   Code = "CONCURRENCY_ERROR"
	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodePersistence   Code = "PERSISTENCE_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata is the fixed policy attached to a code.
type Metadata struct {
	// Retryable means the same input may succeed on a later attempt.
	Retryable bool
	Summary   string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {Summary: "input rejected"},
	CodeNotFound:      {Summary: "record not found"},
	CodeConcurrency:   {Retryable: true, Summary: "row lock not acquired"},
	CodeConfiguration: {Summary: "basket configuration unresolved"},
	CodePersistence:   {Retryable: true, Summary: "write failed"},
	CodeInternal:      {Summary: "internal error"},
	CodeDependency:    {Retryable: true, Summary: "dependency unavailable"},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional cause.
type Error struct {
	code    Code
	message string
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
	return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether redelivering the work that produced err may
// succeed. Uncoded errors are treated as permanent, except deadlines.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return false
}
