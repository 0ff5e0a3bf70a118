// Package errors provides structured error handling for the ntuple output layer.
//
// Every failure raised by a Column, Table or container carries an ErrorType so
// callers can tell a schema mistake (config, state) from a data mistake
// (length_mismatch, unknown_column) without matching on message text.
package errors

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeInternal represents internal system errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeConfig represents configuration errors, including unrecognized element types
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeLengthMismatch is raised when a fixed-length column is filled with the wrong element count
	ErrorTypeLengthMismatch ErrorType = "length_mismatch"
	// ErrorTypeUnknownColumn is raised when a column name was never declared
	ErrorTypeUnknownColumn ErrorType = "unknown_column"
	// ErrorTypeState is raised when an operation is not valid in the table's current state
	ErrorTypeState ErrorType = "state"
	// ErrorTypeNotFound represents missing container keys
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeFile represents storage and serialization errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeData represents malformed values or payloads
	ErrorTypeData ErrorType = "data"
)

// Error represents a structured error with context
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]any
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack
type StackFrame struct {
	Function string
	File     string
	Line     int
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a format string.
func Newf(errType ErrorType, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type. Only the outermost
// structured error in the chain is consulted.
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// TypeOf returns the type of the outermost structured error, or "" if err
// carries none.
func TypeOf(err error) ErrorType {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Type
}

// MarshalLogObject lets zap log the error type and details as structured
// fields instead of a flattened message.
func (e *Error) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("type", string(e.Type))
	enc.AddString("message", e.Message)
	if e.Cause != nil {
		enc.AddString("cause", e.Cause.Error())
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return enc.AddObject("details", zapcore.ObjectMarshalerFunc(func(enc zapcore.ObjectEncoder) error {
			for _, k := range keys {
				if err := enc.AddReflected(k, e.Details[k]); err != nil {
					return err
				}
			}
			return nil
		}))
	}
	return nil
}

// Field returns a zap field for err: a structured object when err carries
// an *Error, zap.Error otherwise.
func Field(err error) zap.Field {
	var e *Error
	if errors.As(err, &e) {
		return zap.Object("error", e)
	}
	return zap.Error(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// captureStack captures the current call stack
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
