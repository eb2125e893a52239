// Package errors provides standardized error handling for Chameleon components.
// It includes error classification, standard error variables, and helper functions
// for consistent error wrapping across the synchronization core.
package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransport represents connection open/send/close failures.
	// Non-fatal; drives the dispatcher's reconnection state machine.
	ErrorTransport ErrorClass = iota
	// ErrorProtocol represents malformed or unparseable inbound messages.
	// Reported and dropped; the stream continues uninterrupted.
	ErrorProtocol
	// ErrorComponent represents render/update capability failures or
	// unregistered component kinds. The specific call fails, the rest of
	// the system keeps operating.
	ErrorComponent
	// ErrorConfig represents invalid or unavailable configuration.
	// Fatal to initialization but never affects a running stream session.
	ErrorConfig
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransport:
		return "transport"
	case ErrorProtocol:
		return "protocol"
	case ErrorComponent:
		return "component"
	case ErrorConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Dispatcher lifecycle errors
	ErrAlreadyConnected  = errors.New("dispatcher already connected")
	ErrNotConnected      = errors.New("dispatcher not connected")
	ErrDispatcherFailed  = errors.New("dispatcher failed permanently")
	ErrReconnectDisabled = errors.New("reconnection disabled")

	// Transport errors
	ErrConnectionLost     = errors.New("connection lost")
	ErrConnectionTimeout  = errors.New("connection timeout")
	ErrSendNotReady       = errors.New("transport not open for sending")
	ErrNotBidirectional   = errors.New("transport is not bidirectional")
	ErrMaxRetriesExceeded = errors.New("maximum reconnect attempts exceeded")

	// Protocol errors
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrInvalidPayload   = errors.New("invalid event payload")

	// Component errors
	ErrKindNotRegistered  = errors.New("component kind not registered")
	ErrInstanceNotFound   = errors.New("component instance not found")
	ErrNoUpdateCapability = errors.New("instance has no update capability")
	ErrCapabilityPanic    = errors.New("capability panicked")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransport checks if an error is a transport failure
func IsTransport(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransport
	}

	return errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrSendNotReady) ||
		errors.Is(err, ErrMaxRetriesExceeded)
}

// IsProtocol checks if an error is a malformed-message condition
func IsProtocol(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorProtocol
	}

	return errors.Is(err, ErrMalformedMessage) ||
		errors.Is(err, ErrUnknownEventKind) ||
		errors.Is(err, ErrInvalidPayload)
}

// IsComponent checks if an error is a capability or registry failure
func IsComponent(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorComponent
	}

	return errors.Is(err, ErrKindNotRegistered) ||
		errors.Is(err, ErrInstanceNotFound) ||
		errors.Is(err, ErrNoUpdateCapability) ||
		errors.Is(err, ErrCapabilityPanic)
}

// IsConfig checks if an error is a configuration failure
func IsConfig(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorConfig
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrMissingConfig)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	switch {
	case IsProtocol(err):
		return ErrorProtocol
	case IsComponent(err):
		return ErrorComponent
	case IsConfig(err):
		return ErrorConfig
	default:
		// Unknown errors default to transport so the dispatcher may retry
		return ErrorTransport
	}
}

// newClassified creates a new classified error.
// This is an internal helper - use the Wrap* functions instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransport wraps an error as a transport failure with context
func WrapTransport(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransport, wrappedErr, component, method, wrappedErr.Error())
}

// WrapProtocol wraps an error as a protocol failure with context
func WrapProtocol(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorProtocol, wrappedErr, component, method, wrappedErr.Error())
}

// WrapComponent wraps an error as a component failure with context
func WrapComponent(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorComponent, wrappedErr, component, method, wrappedErr.Error())
}

// WrapConfig wraps an error as a configuration failure with context
func WrapConfig(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorConfig, wrappedErr, component, method, wrappedErr.Error())
}
