// Package errors defines the structured error taxonomy shared by the kiln
// runtime packages.
//
// Only malformed compiler input and invalid configuration are fatal. Every
// other error type is recoverable: the runtime logs it through an
// ErrorHandler and keeps the affected component mounted.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeTemplate   ErrorType = "template"
	ErrorTypeExpression ErrorType = "expression"
	ErrorTypeReplay     ErrorType = "replay"
	ErrorTypeHandler    ErrorType = "handler"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeInvalidTemplate      = "ERR_INVALID_TEMPLATE"
	ErrCodeExpressionResolution = "ERR_EXPRESSION_RESOLUTION"
	ErrCodeRenderReplay         = "ERR_RENDER_REPLAY"
	ErrCodeHandlerNotFound      = "ERR_HANDLER_NOT_FOUND"
	ErrCodeInvalidConfig        = "ERR_INVALID_CONFIG"
	ErrCodeComponentNotFound    = "ERR_COMPONENT_NOT_FOUND"
	ErrCodeFileNotFound         = "ERR_FILE_NOT_FOUND"
	ErrCodeFileAccess           = "ERR_FILE_ACCESS"
	ErrCodeInternalError        = "ERR_INTERNAL"
)

// KilnError is a structured error type with context.
type KilnError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	Recoverable bool
}

// Error implements the error interface.
func (e *KilnError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *KilnError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison. Two KilnErrors match when type and code
// agree, so sentinel values built by the constructors below work with
// errors.Is.
func (e *KilnError) Is(target error) bool {
	var t *KilnError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *KilnError) WithContext(key string, value interface{}) *KilnError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *KilnError) WithComponent(component string) *KilnError {
	e.Component = component

	return e
}

// WithCause attaches an underlying error.
func (e *KilnError) WithCause(cause error) *KilnError {
	e.Cause = cause

	return e
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidTemplate      = &KilnError{Type: ErrorTypeTemplate, Code: ErrCodeInvalidTemplate}
	ErrExpressionResolution = &KilnError{Type: ErrorTypeExpression, Code: ErrCodeExpressionResolution}
	ErrRenderReplay         = &KilnError{Type: ErrorTypeReplay, Code: ErrCodeRenderReplay}
	ErrHandlerNotFound      = &KilnError{Type: ErrorTypeHandler, Code: ErrCodeHandlerNotFound}
	ErrInvalidConfig        = &KilnError{Type: ErrorTypeConfig, Code: ErrCodeInvalidConfig}
)

// NewInvalidTemplateError reports a template source that cannot be compiled.
func NewInvalidTemplateError(message string) *KilnError {
	return &KilnError{
		Type:        ErrorTypeTemplate,
		Code:        ErrCodeInvalidTemplate,
		Message:     message,
		Recoverable: false,
	}
}

// NewExpressionError reports a binding expression that could not be resolved.
func NewExpressionError(expr, message string) *KilnError {
	return (&KilnError{
		Type:        ErrorTypeExpression,
		Code:        ErrCodeExpressionResolution,
		Message:     message,
		Recoverable: true,
	}).WithContext("expression", expr)
}

// NewReplayError reports an instruction replay that failed against a live root.
func NewReplayError(message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeReplay,
		Code:        ErrCodeRenderReplay,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewHandlerNotFoundError reports an event whose bound handler does not exist.
func NewHandlerNotFoundError(handler, event string) *KilnError {
	return (&KilnError{
		Type:        ErrorTypeHandler,
		Code:        ErrCodeHandlerNotFound,
		Message:     fmt.Sprintf("handler %q is not defined for event %q", handler, event),
		Recoverable: true,
	}).WithContext("handler", handler).WithContext("event", event)
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *KilnError {
	return &KilnError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeInvalidConfig,
		Message:     message,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *KilnError {
	return &KilnError{
		Type:        ErrorTypeInternal,
		Code:        ErrCodeInternalError,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// ErrComponentNotFound creates a component not found error.
func ErrComponentNotFound(selector string) *KilnError {
	return &KilnError{
		Type:        ErrorTypeConfig,
		Code:        ErrCodeComponentNotFound,
		Message:     "component not found: " + selector,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ke *KilnError
	if errors.As(err, &ke) {
		return ke.Recoverable
	}

	return false
}

// TypeOf returns the ErrorType of err, or ErrorTypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var ke *KilnError
	if errors.As(err, &ke) {
		return ke.Type
	}

	return ErrorTypeInternal
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger    Logger
	collector *Collector
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler. Either argument may be nil.
func NewErrorHandler(logger Logger, collector *Collector) *ErrorHandler {
	return &ErrorHandler{
		logger:    logger,
		collector: collector,
	}
}

// Handle processes an error with appropriate logging and collection.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil {
		return
	}

	if h.collector != nil {
		h.collector.Add(err)
	}

	var ke *KilnError
	if errors.As(err, &ke) {
		h.handleKilnError(ctx, ke)
	} else {
		h.handleGenericError(ctx, err)
	}
}

func (h *ErrorHandler) handleKilnError(ctx context.Context, err *KilnError) {
	if h.logger == nil {
		return
	}

	switch err.Type {
	case ErrorTypeReplay:
		h.logger.Error(ctx, err, "Error rendering component",
			"type", err.Type,
			"code", err.Code,
			"component", err.Component)
	case ErrorTypeHandler:
		h.logger.Warn(ctx, err, "Handler is not defined in component",
			"type", err.Type,
			"code", err.Code,
			"component", err.Component,
			"handler", err.Context["handler"])
	case ErrorTypeExpression:
		h.logger.Warn(ctx, err, "Expression could not be resolved",
			"type", err.Type,
			"code", err.Code,
			"component", err.Component,
			"expression", err.Context["expression"])
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", err.Type,
			"code", err.Code,
			"component", err.Component)
	}
}

func (h *ErrorHandler) handleGenericError(ctx context.Context, err error) {
	if h.logger != nil {
		h.logger.Error(ctx, err, "Unhandled error occurred")
	}
}
