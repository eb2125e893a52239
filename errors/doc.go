// Package errors provides standardized error handling patterns for Chameleon components.
//
// # Overview
//
// The errors package implements a four-class error classification system matching
// the failure taxonomy of the synchronization core: Transport (connection failures,
// retryable), Protocol (malformed inbound messages, drop and continue), Component
// (capability failures, localized) and Config (initialization failures, fatal).
//
// This classification enables the dispatcher and display controller to make informed
// decisions about reconnection, message dropping, and error surfacing without
// hardcoded error string matching.
//
// # Error Classification
//
//   - Transport: connection open/send/close failures. Drives the dispatcher's
//     Reconnecting state and capped exponential backoff. Becomes terminal only
//     after the configured maximum attempts.
//   - Protocol: malformed or unparseable inbound messages. Reported through the
//     dispatcher's error channel, the message is dropped, the stream continues.
//   - Component: a render/update capability fails or a requested component kind
//     is unregistered. The specific call fails; the dispatcher and other layers
//     keep operating.
//   - Config: invalid or unavailable configuration or theme source. Fatal to
//     initialization, never affects an already-running stream session.
//
// The classification system integrates with Go's standard error handling,
// supporting errors.Is(), errors.As(), and error wrapping chains.
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Four wrapper functions provide classification-aware wrapping:
//
//	errors.WrapTransport(err, "Dispatcher", "Connect", "dial")
//	errors.WrapProtocol(err, "Dispatcher", "handleMessage", "parse envelope")
//	errors.WrapComponent(err, "Registry", "Render", "capability invocation")
//	errors.WrapConfig(err, "Session", "New", "load theme settings")
//
// The generic Wrap() function preserves the original error's classification:
//
//	errors.Wrap(err, "Component", "Method", "action")
//
// # Standard Error Variables
//
// Pre-defined error variables cover common conditions, organized by category:
//
//   - Dispatcher lifecycle: ErrAlreadyConnected, ErrNotConnected, ErrDispatcherFailed
//   - Transport: ErrConnectionLost, ErrSendNotReady, ErrMaxRetriesExceeded
//   - Protocol: ErrMalformedMessage, ErrUnknownEventKind, ErrInvalidPayload
//   - Component: ErrKindNotRegistered, ErrInstanceNotFound, ErrNoUpdateCapability
//   - Config: ErrInvalidConfig, ErrMissingConfig
//
// Use these variables instead of creating custom error messages for consistency.
//
// # Thread Safety
//
// All classification and wrapping operations are thread-safe. Error variables
// are immutable and safe for concurrent access.
package errors
