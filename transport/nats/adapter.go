// Package nats provides a NATS transport adapter. The trailing subject
// token of the subscription carries the event kind out-of-band, so payloads
// arriving on "events.status" are classified as status events without an
// explicit envelope.
package nats

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/transport"
)

const metricsComponent = "nats-transport"

// Config holds NATS adapter settings. SubscribePrefix is subscribed with a
// ">" wildcard; the token after the prefix names the event kind.
// PublishSubject receives outbound interaction messages; leave it empty for
// a receive-only adapter.
type Config struct {
	URL             string
	SubscribePrefix string
	PublishSubject  string
	ConnectTimeout  time.Duration
	ClientName      string
}

// DefaultConfig returns adapter settings for the standard subject layout.
func DefaultConfig(url string) Config {
	return Config{
		URL:             url,
		SubscribePrefix: "chameleon.events",
		PublishSubject:  "chameleon.interactions",
		ConnectTimeout:  5 * time.Second,
		ClientName:      "chameleon-client",
	}
}

// Adapter is a NATS-backed transport. NATS-internal reconnection is
// disabled: a lost connection surfaces through OnError/OnClose and the
// dispatcher owns the retry schedule.
type Adapter struct {
	config Config

	conn   *nats.Conn
	sub    *nats.Subscription
	connMu sync.Mutex
	open   atomic.Bool

	onOpen    func()
	onMessage transport.MessageHandler
	onError   func(error)
	onClose   func()

	messagesReceived *prometheus.CounterVec
	publishes        prometheus.Counter
}

var (
	_ transport.Adapter         = (*Adapter)(nil)
	_ transport.MetricsReporter = (*Adapter)(nil)
)

// NewAdapter creates a NATS adapter.
func NewAdapter(config Config) (*Adapter, error) {
	if config.URL == "" {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "NATSAdapter", "NewAdapter", "url validation")
	}
	if config.SubscribePrefix == "" {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "NATSAdapter", "NewAdapter", "subject validation")
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	return &Adapter{config: config}, nil
}

// RegisterMetrics registers the adapter's transport metrics with the
// registrar. Call before Connect.
func (a *Adapter) RegisterMetrics(registrar metric.MetricsRegistrar) error {
	messagesReceived := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chameleon",
		Subsystem: "transport_nats",
		Name:      "messages_received_total",
		Help:      "Total number of messages received by subject kind token",
	}, []string{"kind"})
	if err := registrar.RegisterCounterVec(metricsComponent, "messages_received_total", messagesReceived); err != nil {
		return err
	}
	publishes := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chameleon",
		Subsystem: "transport_nats",
		Name:      "publishes_total",
		Help:      "Total number of interaction messages published",
	})
	if err := registrar.RegisterCounter(metricsComponent, "publishes_total", publishes); err != nil {
		registrar.Unregister(metricsComponent, "messages_received_total")
		return err
	}

	a.messagesReceived = messagesReceived
	a.publishes = publishes
	return nil
}

// UnregisterMetrics releases the adapter's metric names so another adapter
// can register against the same registrar.
func (a *Adapter) UnregisterMetrics(registrar metric.MetricsRegistrar) {
	registrar.Unregister(metricsComponent, "messages_received_total")
	registrar.Unregister(metricsComponent, "publishes_total")
	a.messagesReceived = nil
	a.publishes = nil
}

// OnOpen registers the open callback.
func (a *Adapter) OnOpen(fn func()) { a.onOpen = fn }

// OnMessage registers the inbound message callback.
func (a *Adapter) OnMessage(fn transport.MessageHandler) { a.onMessage = fn }

// OnError registers the error callback.
func (a *Adapter) OnError(fn func(error)) { a.onError = fn }

// OnClose registers the close callback.
func (a *Adapter) OnClose(fn func()) { a.onClose = fn }

// Connect establishes the NATS connection and subscribes to the event
// subject tree.
func (a *Adapter) Connect(ctx context.Context) error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if a.open.Load() {
		return errors.WrapTransport(errors.ErrAlreadyConnected, "NATSAdapter", "Connect", "state check")
	}

	timeout := a.config.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return errors.WrapTransport(errors.ErrConnectionTimeout, "NATSAdapter", "Connect", "deadline check")
	}

	conn, err := nats.Connect(a.config.URL,
		nats.Name(a.config.ClientName),
		nats.Timeout(timeout),
		nats.NoReconnect(),
		nats.DisconnectErrHandler(func(_ *nats.Conn, cause error) {
			a.handleLost(cause)
		}),
	)
	if err != nil {
		return errors.WrapTransport(err, "NATSAdapter", "Connect", "dial")
	}

	sub, err := conn.Subscribe(a.config.SubscribePrefix+".>", a.handleMessage)
	if err != nil {
		conn.Close()
		return errors.WrapTransport(err, "NATSAdapter", "Connect", "subscribe")
	}

	a.conn = conn
	a.sub = sub
	a.open.Store(true)

	if a.onOpen != nil {
		a.onOpen()
	}
	return nil
}

// Disconnect drains the subscription and closes the connection. Safe to
// call when not connected.
func (a *Adapter) Disconnect() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()

	if !a.open.Load() {
		return nil
	}
	a.open.Store(false)

	if a.sub != nil {
		_ = a.sub.Unsubscribe()
		a.sub = nil
	}
	a.conn.Close()
	a.conn = nil
	return nil
}

// Send publishes one interaction message. Valid only when connected and a
// publish subject is configured.
func (a *Adapter) Send(data []byte) error {
	if !a.open.Load() {
		return errors.WrapTransport(errors.ErrSendNotReady, "NATSAdapter", "Send", "state check")
	}
	if a.config.PublishSubject == "" {
		return errors.WrapTransport(errors.ErrNotBidirectional, "NATSAdapter", "Send", "subject check")
	}

	a.connMu.Lock()
	conn := a.conn
	a.connMu.Unlock()
	if conn == nil {
		return errors.WrapTransport(errors.ErrSendNotReady, "NATSAdapter", "Send", "state check")
	}
	if err := conn.Publish(a.config.PublishSubject, data); err != nil {
		return errors.WrapTransport(err, "NATSAdapter", "Send", "publish")
	}
	if a.publishes != nil {
		a.publishes.Inc()
	}
	return nil
}

// Open reports whether the connection is established.
func (a *Adapter) Open() bool { return a.open.Load() }

// Bidirectional reports whether outbound interactions are possible.
func (a *Adapter) Bidirectional() bool { return a.config.PublishSubject != "" }

func (a *Adapter) handleMessage(msg *nats.Msg) {
	// The token after the subscribe prefix is the out-of-band event kind
	kind := ""
	if rest := strings.TrimPrefix(msg.Subject, a.config.SubscribePrefix+"."); rest != msg.Subject {
		if idx := strings.IndexByte(rest, '.'); idx >= 0 {
			rest = rest[:idx]
		}
		kind = rest
	}
	if a.messagesReceived != nil {
		label := kind
		if label == "" {
			label = "envelope"
		}
		a.messagesReceived.WithLabelValues(label).Inc()
	}
	if a.onMessage == nil {
		return
	}
	a.onMessage(event.Kind(kind), msg.Data)
}

func (a *Adapter) handleLost(cause error) {
	if !a.open.Swap(false) {
		return
	}
	if cause == nil {
		cause = errors.ErrConnectionLost
	}
	if a.onError != nil {
		a.onError(errors.WrapTransport(cause, "NATSAdapter", "connection", "lost"))
	}
	if a.onClose != nil {
		a.onClose()
	}
}
