package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/pkg/backoff"
	"github.com/TheGoodCatalyst/chameleon/transport"
)

// State is the dispatcher's connection state.
type State int

// Connection states. Connecting is entered by an explicit Connect call,
// Connected on the adapter's open signal, Reconnecting on transport loss
// while retries remain, Failed once the retry budget is spent.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Handler receives one dispatched event.
type Handler func(ev event.StreamEvent)

// Subscription is the handle returned by Subscribe; Unsubscribe through it
// is idempotent and takes effect before the next dispatched event.
type Subscription struct {
	id   uint64
	kind event.Kind
	d    *Dispatcher
}

// Unsubscribe removes the handler. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.d.unsubscribe(s.kind, s.id)
}

type registeredHandler struct {
	id      uint64
	handler Handler
}

// Config holds dispatcher settings. Session labels this dispatcher's
// metrics and log lines. With DisableReconnect set, a transport loss is
// surfaced once and the dispatcher returns to Disconnected instead of
// retrying.
type Config struct {
	Session          string
	Backoff          backoff.Policy
	DisableReconnect bool
}

// Dispatcher manages one logical subscription to an event source with
// transparent reconnection and routes parsed events to registered handlers.
// Events are dispatched synchronously in arrival order: one event runs to
// completion before the next is processed.
type Dispatcher struct {
	adapter transport.Adapter
	policy  backoff.Policy
	session string
	auto    bool
	logger  *slog.Logger
	metrics *metric.Metrics

	mu          sync.Mutex
	state       State
	attempt     int
	retryArmed  bool
	rootCtx     context.Context
	retryCancel context.CancelFunc

	subsMu sync.RWMutex
	subs   map[event.Kind][]registeredHandler
	nextID uint64

	errs chan error
}

// New creates a dispatcher over an adapter. Metrics may be nil. Callbacks
// are registered on the adapter here, so the adapter must not be connected
// yet.
func New(
	adapter transport.Adapter, cfg Config,
	logger *slog.Logger, metrics *metric.Metrics,
) (*Dispatcher, error) {
	if adapter == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "Dispatcher", "New", "adapter validation")
	}
	if !cfg.DisableReconnect {
		if err := cfg.Backoff.Validate(); err != nil {
			return nil, errors.WrapConfig(err, "Dispatcher", "New", "backoff validation")
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		adapter: adapter,
		policy:  cfg.Backoff,
		session: cfg.Session,
		auto:    !cfg.DisableReconnect,
		logger:  logger,
		metrics: metrics,
		state:   StateDisconnected,
		subs:    make(map[event.Kind][]registeredHandler),
		errs:    make(chan error, 16),
	}

	adapter.OnOpen(d.handleOpen)
	adapter.OnMessage(d.handleRaw)
	adapter.OnError(d.handleTransportError)
	adapter.OnClose(d.handleClose)

	return d, nil
}

// State returns the current connection state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Errors returns the error-reporting channel. Transport, protocol and send
// failures surface here, kept separate from the event flow. The channel is
// buffered; when full, errors are logged and dropped rather than blocking
// event processing.
func (d *Dispatcher) Errors() <-chan error {
	return d.errs
}

// Connect starts the connection. The given context bounds this attempt and
// every reconnection attempt that follows. Returns the first attempt's
// error; when retries are enabled the retry schedule runs regardless.
func (d *Dispatcher) Connect(ctx context.Context) error {
	d.mu.Lock()
	if d.state == StateConnecting || d.state == StateConnected || d.state == StateReconnecting {
		d.mu.Unlock()
		return errors.WrapTransport(errors.ErrAlreadyConnected, "Dispatcher", "Connect", "state check")
	}
	d.retryArmed = d.auto
	d.attempt = 0
	d.rootCtx = ctx
	d.cancelRetryLocked()
	attemptCtx, cancel := context.WithCancel(ctx)
	d.retryCancel = cancel
	d.setStateLocked(StateConnecting)
	d.mu.Unlock()

	if err := d.adapter.Connect(attemptCtx); err != nil {
		d.handleConnectFailure(err)
		return errors.Wrap(err, "Dispatcher", "Connect", "transport connect")
	}
	return nil
}

// Disconnect forces Disconnected, synchronously cancelling any pending
// reconnect timer and aborting an in-flight connection attempt. No further
// reconnection happens until the next explicit Connect.
func (d *Dispatcher) Disconnect() error {
	d.mu.Lock()
	d.retryArmed = false
	d.cancelRetryLocked()
	d.setStateLocked(StateDisconnected)
	d.mu.Unlock()

	if err := d.adapter.Disconnect(); err != nil {
		return errors.Wrap(err, "Dispatcher", "Disconnect", "transport disconnect")
	}
	return nil
}

// Subscribe registers a handler for one event kind. Fan-out invokes
// kind-specific handlers before wildcard handlers, each group in
// registration order.
func (d *Dispatcher) Subscribe(kind event.Kind, handler Handler) (*Subscription, error) {
	if kind != event.Wildcard && !kind.Valid() {
		return nil, errors.WrapProtocol(errors.ErrUnknownEventKind, "Dispatcher", "Subscribe", "kind validation")
	}
	if handler == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "Dispatcher", "Subscribe", "handler validation")
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	d.nextID++
	id := d.nextID
	d.subs[kind] = append(d.subs[kind], registeredHandler{id: id, handler: handler})
	return &Subscription{id: id, kind: kind, d: d}, nil
}

// SubscribeAll registers a wildcard handler invoked for every event kind
// after the kind-specific handlers.
func (d *Dispatcher) SubscribeAll(handler Handler) (*Subscription, error) {
	return d.Subscribe(event.Wildcard, handler)
}

func (d *Dispatcher) unsubscribe(kind event.Kind, id uint64) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	handlers := d.subs[kind]
	for i, h := range handlers {
		if h.id == id {
			d.subs[kind] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Send serializes and transmits an event. Valid only while the transport is
// open and bidirectional; failures are returned, never injected into the
// event flow.
func (d *Dispatcher) Send(ev event.StreamEvent) error {
	if !d.adapter.Open() {
		return errors.WrapTransport(errors.ErrSendNotReady, "Dispatcher", "Send", "open check")
	}
	if !d.adapter.Bidirectional() {
		return errors.WrapTransport(errors.ErrNotBidirectional, "Dispatcher", "Send", "direction check")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return errors.WrapProtocol(err, "Dispatcher", "Send", "serialize")
	}
	if err := d.adapter.Send(data); err != nil {
		return errors.Wrap(err, "Dispatcher", "Send", "transport send")
	}
	return nil
}

// handleRaw parses, classifies and fans out one inbound message. Malformed
// messages are reported and dropped; they never stop the stream.
func (d *Dispatcher) handleRaw(kind event.Kind, raw []byte) {
	if d.metrics != nil {
		d.metrics.RecordEventReceived(d.session)
	}

	var ev event.StreamEvent
	var err error
	if kind == "" {
		ev, err = event.Parse(raw)
	} else {
		ev, err = event.ParseWithKind(kind, raw)
	}
	if err != nil {
		if d.metrics != nil {
			d.metrics.RecordEventDropped(d.session, "malformed")
		}
		d.report(err)
		return
	}

	d.dispatch(ev)
}

func (d *Dispatcher) dispatch(ev event.StreamEvent) {
	d.subsMu.RLock()
	handlers := make([]registeredHandler, 0, len(d.subs[ev.Kind])+len(d.subs[event.Wildcard]))
	handlers = append(handlers, d.subs[ev.Kind]...)
	handlers = append(handlers, d.subs[event.Wildcard]...)
	d.subsMu.RUnlock()

	start := time.Now()
	for _, h := range handlers {
		h.handler(ev)
	}

	if d.metrics != nil {
		d.metrics.RecordEventDispatched(d.session, string(ev.Kind))
		d.metrics.RecordDispatchDuration(d.session, string(ev.Kind), time.Since(start))
	}
}

func (d *Dispatcher) handleOpen() {
	d.mu.Lock()
	if d.state != StateConnecting {
		// Disconnect won the race against an in-flight attempt
		d.mu.Unlock()
		_ = d.adapter.Disconnect()
		return
	}
	d.attempt = 0
	// The attempt that reached open has settled; release its context
	d.cancelRetryLocked()
	d.setStateLocked(StateConnected)
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordConnection()
	}
	d.logger.Info("transport connected", "session", d.session)
}

func (d *Dispatcher) handleTransportError(err error) {
	d.report(err)
}

func (d *Dispatcher) handleClose() {
	d.handleConnectFailure(errors.ErrConnectionLost)
}

// handleConnectFailure drives the retry schedule after a failed attempt or
// a lost connection.
func (d *Dispatcher) handleConnectFailure(cause error) {
	d.mu.Lock()

	if d.state == StateDisconnected || d.state == StateFailed {
		d.mu.Unlock()
		return
	}
	if !d.retryArmed {
		d.cancelRetryLocked()
		d.setStateLocked(StateDisconnected)
		d.mu.Unlock()
		d.report(errors.WrapTransport(cause, "Dispatcher", "connect", "attempt failed"))
		return
	}

	d.attempt++
	if d.policy.Exhausted(d.attempt) {
		d.retryArmed = false
		d.cancelRetryLocked()
		d.setStateLocked(StateFailed)
		attempts := d.attempt - 1
		d.mu.Unlock()
		d.report(errors.WrapTransport(errors.ErrMaxRetriesExceeded, "Dispatcher", "reconnect", "retry budget spent"))
		d.logger.Error("dispatcher failed",
			"session", d.session, "attempts", attempts, "cause", cause)
		return
	}

	delay := d.policy.Delay(d.attempt)
	d.cancelRetryLocked()
	retryCtx, cancel := context.WithCancel(d.rootCtx)
	d.retryCancel = cancel
	d.setStateLocked(StateReconnecting)
	attempt := d.attempt
	d.mu.Unlock()

	if d.metrics != nil {
		d.metrics.RecordReconnectAttempt()
	}
	d.logger.Warn("transport lost, scheduling reconnect",
		"session", d.session, "attempt", attempt, "delay", delay, "cause", cause)

	go d.retryAfter(retryCtx, delay)
}

func (d *Dispatcher) retryAfter(ctx context.Context, delay time.Duration) {
	if err := backoff.Wait(ctx, delay); err != nil {
		return
	}

	d.mu.Lock()
	if d.state != StateReconnecting || !d.retryArmed {
		d.mu.Unlock()
		return
	}
	d.setStateLocked(StateConnecting)
	d.mu.Unlock()

	if err := d.adapter.Connect(ctx); err != nil {
		d.handleConnectFailure(err)
	}
}

// cancelRetryLocked releases the current attempt or retry context. Callers
// hold d.mu.
func (d *Dispatcher) cancelRetryLocked() {
	if d.retryCancel != nil {
		d.retryCancel()
		d.retryCancel = nil
	}
}

func (d *Dispatcher) setStateLocked(state State) {
	d.state = state
	if d.metrics != nil {
		d.metrics.RecordDispatcherState(d.session, int(state))
	}
}

// Report delivers a downstream consumer's error to the error channel, so
// routing and render failures surface beside transport errors. Same
// non-blocking semantics as internal reporting.
func (d *Dispatcher) Report(err error) {
	d.report(err)
}

// report delivers an error to the error channel without ever blocking
// event processing.
func (d *Dispatcher) report(err error) {
	if d.metrics != nil {
		d.metrics.RecordError(d.session, errors.Classify(err).String())
	}
	select {
	case d.errs <- err:
	default:
		d.logger.Warn("error channel full, dropping", "session", d.session, "error", err)
	}
}
