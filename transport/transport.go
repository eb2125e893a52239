// Package transport defines the adapter contract between the stream
// dispatcher and a concrete message transport.
//
// An Adapter delivers raw inbound messages and connection lifecycle signals
// through registered callbacks. It performs no reconnection of its own: a
// failed or closed connection is reported through OnError/OnClose and the
// dispatcher decides whether and when to connect again. Adapters that can
// attach an out-of-band event kind to a message (for example a subject
// token) pass it alongside the raw bytes; adapters without one pass an
// empty kind.
package transport

import (
	"context"

	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
)

// MessageHandler receives one raw inbound message. kind is the transport's
// out-of-band event kind, or empty when the transport carries none.
type MessageHandler func(kind event.Kind, raw []byte)

// Adapter is the contract a concrete transport implements.
//
// Connect establishes one connection attempt and returns when the
// connection is open or the attempt failed; it does not retry. Disconnect
// tears the connection down and is safe to call in any state. Send is valid
// only while Open reports true and Bidirectional is true.
//
// Callback registration must happen before Connect; adapters are not
// required to support swapping callbacks on a live connection.
type Adapter interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Send(data []byte) error

	Open() bool
	Bidirectional() bool

	OnOpen(func())
	OnMessage(MessageHandler)
	OnError(func(error))
	OnClose(func())
}

// MetricsReporter is implemented by adapters that carry transport-specific
// metrics beyond the dispatcher's core set. RegisterMetrics must be called
// before Connect; UnregisterMetrics releases the registered names so a
// later session can register against the same registrar.
type MetricsReporter interface {
	RegisterMetrics(registrar metric.MetricsRegistrar) error
	UnregisterMetrics(registrar metric.MetricsRegistrar)
}
