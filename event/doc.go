// Package event defines the wire model of the Chameleon protocol: typed
// stream events, their kind-specific payloads, and the classification
// rules that turn raw transport messages into events.
//
// # Wire Format
//
// The logical schema is transport-agnostic:
//
//	StreamEvent := { "event": "status"|"ui_delta"|"interaction"|"blocker"|"log", "data": <payload> }
//
// Inbound messages are classified in priority order: an explicit envelope
// carrying both "event" and "data" is used verbatim; a kind supplied
// out-of-band by the transport wraps the payload under that kind;
// everything else is default-wrapped as a ui_delta event.
//
// Explicit envelopes are validated against a JSON Schema before
// acceptance; failures are protocol errors that callers report and drop
// without disturbing the stream.
//
// # Descriptors and Deltas
//
// ComponentDescriptor describes a unit of visual content to render;
// StateDelta is a path-addressed partial update targeting a live
// instance by id. Both are embedded in ui_delta payloads. Descriptors
// accept the legacy "stream_id" field as an alias for "instance_id".
package event
