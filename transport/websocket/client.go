// Package websocket provides a client-mode WebSocket transport adapter.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/transport"
)

const metricsComponent = "websocket-transport"

// Config holds WebSocket client settings.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Headers          http.Header
}

// DefaultConfig returns client settings with standard timeouts.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 45 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Client is a client-mode WebSocket adapter. It dials one connection per
// Connect call and reads until the connection drops; reconnection belongs
// to the dispatcher.
type Client struct {
	config Config
	dialer *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex
	connMu  sync.Mutex
	open    atomic.Bool
	stopped chan struct{}

	onOpen    func()
	onMessage transport.MessageHandler
	onError   func(error)
	onClose   func()

	framesReceived prometheus.Counter
	framesSent     prometheus.Counter
	connected      prometheus.Gauge
}

var (
	_ transport.Adapter         = (*Client)(nil)
	_ transport.MetricsReporter = (*Client)(nil)
)

// NewClient creates a WebSocket adapter for the given endpoint.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "WebSocketClient", "NewClient", "url validation")
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = 45 * time.Second
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 10 * time.Second
	}
	return &Client{
		config: config,
		dialer: &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
	}, nil
}

// RegisterMetrics registers the client's transport metrics with the
// registrar. Call before Connect.
func (c *Client) RegisterMetrics(registrar metric.MetricsRegistrar) error {
	framesReceived := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chameleon",
		Subsystem: "transport_websocket",
		Name:      "frames_received_total",
		Help:      "Total number of frames read from the connection",
	})
	if err := registrar.RegisterCounter(metricsComponent, "frames_received_total", framesReceived); err != nil {
		return err
	}
	framesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chameleon",
		Subsystem: "transport_websocket",
		Name:      "frames_sent_total",
		Help:      "Total number of frames written to the connection",
	})
	if err := registrar.RegisterCounter(metricsComponent, "frames_sent_total", framesSent); err != nil {
		registrar.Unregister(metricsComponent, "frames_received_total")
		return err
	}
	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chameleon",
		Subsystem: "transport_websocket",
		Name:      "connected",
		Help:      "Connection state (0=closed, 1=open)",
	})
	if err := registrar.RegisterGauge(metricsComponent, "connected", connected); err != nil {
		registrar.Unregister(metricsComponent, "frames_received_total")
		registrar.Unregister(metricsComponent, "frames_sent_total")
		return err
	}

	c.framesReceived = framesReceived
	c.framesSent = framesSent
	c.connected = connected
	return nil
}

// UnregisterMetrics releases the client's metric names so another client
// can register against the same registrar.
func (c *Client) UnregisterMetrics(registrar metric.MetricsRegistrar) {
	registrar.Unregister(metricsComponent, "frames_received_total")
	registrar.Unregister(metricsComponent, "frames_sent_total")
	registrar.Unregister(metricsComponent, "connected")
	c.framesReceived = nil
	c.framesSent = nil
	c.connected = nil
}

// OnOpen registers the open callback.
func (c *Client) OnOpen(fn func()) { c.onOpen = fn }

// OnMessage registers the inbound message callback.
func (c *Client) OnMessage(fn transport.MessageHandler) { c.onMessage = fn }

// OnError registers the error callback.
func (c *Client) OnError(fn func(error)) { c.onError = fn }

// OnClose registers the close callback.
func (c *Client) OnClose(fn func()) { c.onClose = fn }

// Connect dials the endpoint once. On success the open callback fires and a
// read loop runs until the connection drops.
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.open.Load() {
		return errors.WrapTransport(errors.ErrAlreadyConnected, "WebSocketClient", "Connect", "state check")
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, c.config.Headers)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return errors.WrapTransport(err, "WebSocketClient", "Connect", "dial")
	}

	c.conn = conn
	c.stopped = make(chan struct{})
	c.open.Store(true)
	if c.connected != nil {
		c.connected.Set(1)
	}

	if c.onOpen != nil {
		c.onOpen()
	}
	go c.readLoop(conn, c.stopped)
	return nil
}

// Disconnect closes the connection. Safe to call when not connected.
func (c *Client) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if !c.open.Load() {
		return nil
	}
	c.open.Store(false)
	if c.connected != nil {
		c.connected.Set(0)
	}
	close(c.stopped)

	// Best-effort close handshake before dropping the socket
	c.writeMu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return errors.WrapTransport(err, "WebSocketClient", "Disconnect", "close")
	}
	return nil
}

// Send writes one text message. Valid only while the connection is open.
func (c *Client) Send(data []byte) error {
	if !c.open.Load() {
		return errors.WrapTransport(errors.ErrSendNotReady, "WebSocketClient", "Send", "state check")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn := c.conn
	if conn == nil {
		return errors.WrapTransport(errors.ErrSendNotReady, "WebSocketClient", "Send", "state check")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransport(err, "WebSocketClient", "Send", "write")
	}
	if c.framesSent != nil {
		c.framesSent.Inc()
	}
	return nil
}

// Open reports whether the connection is established.
func (c *Client) Open() bool { return c.open.Load() }

// Bidirectional is always true: a WebSocket carries interactions upstream.
func (c *Client) Bidirectional() bool { return true }

func (c *Client) readLoop(conn *websocket.Conn, stopped chan struct{}) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			wasOpen := c.open.Swap(false)
			if c.connected != nil {
				c.connected.Set(0)
			}
			select {
			case <-stopped:
				// Deliberate disconnect: the close was requested, not an error
			default:
				if wasOpen {
					if c.onError != nil {
						c.onError(errors.WrapTransport(err, "WebSocketClient", "readLoop", "read"))
					}
					if c.onClose != nil {
						c.onClose()
					}
				}
			}
			return
		}
		if c.framesReceived != nil {
			c.framesReceived.Inc()
		}
		if c.onMessage != nil {
			// WebSocket frames carry the full envelope; no out-of-band kind
			c.onMessage(event.Kind(""), message)
		}
	}
}
