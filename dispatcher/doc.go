// Package dispatcher owns the transport lifecycle and event fan-out.
//
// A Dispatcher wraps one transport.Adapter and maintains a connection state
// machine: Disconnected, Connecting, Connected, Reconnecting, Failed.
// Transport loss while connected schedules capped exponential reconnection
// through pkg/backoff; the attempt counter resets on every successful
// connection and the dispatcher goes Failed with a terminal error once the
// retry budget is spent. Disconnect cancels pending retry timers
// synchronously, so no reconnection outlives an explicit stop.
//
// Inbound raw messages are parsed and classified by the event package and
// fanned out to subscribers: handlers for the event's kind first, wildcard
// handlers after, each group in registration order. Malformed messages are
// reported on the error channel and dropped without disturbing the stream.
package dispatcher
