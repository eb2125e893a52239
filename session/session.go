package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/TheGoodCatalyst/chameleon/compositor"
	"github.com/TheGoodCatalyst/chameleon/config"
	"github.com/TheGoodCatalyst/chameleon/dispatcher"
	"github.com/TheGoodCatalyst/chameleon/display"
	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/registry"
	"github.com/TheGoodCatalyst/chameleon/transport"
	natstransport "github.com/TheGoodCatalyst/chameleon/transport/nats"
	wstransport "github.com/TheGoodCatalyst/chameleon/transport/websocket"
)

// Session wires a transport adapter, dispatcher, registry, compositor and
// display controller into one runnable client. Sessions are explicitly
// constructed and independent: two sessions share no registries or stores
// unless deliberately composed.
type Session struct {
	config     *config.Config
	adapter    transport.Adapter
	dispatcher *dispatcher.Dispatcher
	registry   *registry.Registry
	compositor *compositor.Compositor
	display    *display.Controller
	logger     *slog.Logger
	metrics    *metric.Metrics
	registrar  metric.MetricsRegistrar

	mu      sync.Mutex
	started bool
}

// Options carry the embedding application's contribution to a session: the
// opaque rendering surfaces per layer and an optional pre-built adapter
// (tests use this; production normally lets the config pick one).
type Options struct {
	Surfaces map[event.Layer]registry.Surface
	Adapter  transport.Adapter
	Logger   *slog.Logger
	Metrics  *metric.Metrics

	// Registrar, when set, receives the transport adapter's own metrics.
	// Stop unregisters them so a later session can reuse the registrar.
	Registrar metric.MetricsRegistrar
}

// New builds a session from validated configuration. Capabilities must be
// registered through Registry before Start; the registration table is
// fixed once the session starts.
func New(cfg *config.Config, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "Session", "New", "config validation")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "Session", "New", "config validation")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("session", cfg.Session)

	adapter := opts.Adapter
	if adapter == nil {
		var err error
		adapter, err = buildAdapter(cfg)
		if err != nil {
			return nil, err
		}
	}

	if opts.Registrar != nil {
		if reporter, ok := adapter.(transport.MetricsReporter); ok {
			if err := reporter.RegisterMetrics(opts.Registrar); err != nil {
				return nil, errors.Wrap(err, "Session", "New", "transport metrics registration")
			}
		}
	}

	disp, err := dispatcher.New(adapter, dispatcher.Config{
		Session:          cfg.Session,
		Backoff:          cfg.BackoffPolicy(),
		DisableReconnect: cfg.Reconnect.Disabled,
	}, logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(logger, opts.Metrics)
	comp := compositor.NewCompositor(reg, compositor.ThemeSettings{
		Density:   cfg.Theme.Density,
		Animation: cfg.Theme.Animation,
		Palette:   cfg.Theme.Palette,
		Effects:   cfg.Theme.Effects,
	}, logger, opts.Metrics)

	ctrl, err := display.NewController(disp, reg, comp, opts.Surfaces, logger, opts.Metrics)
	if err != nil {
		return nil, err
	}

	return &Session{
		config:     cfg,
		adapter:    adapter,
		dispatcher: disp,
		registry:   reg,
		compositor: comp,
		display:    ctrl,
		logger:     logger,
		metrics:    opts.Metrics,
		registrar:  opts.Registrar,
	}, nil
}

func buildAdapter(cfg *config.Config) (transport.Adapter, error) {
	switch cfg.Transport.Kind {
	case config.TransportWebSocket:
		return wstransport.NewClient(wstransport.DefaultConfig(cfg.Transport.URL))
	case config.TransportNATS:
		natsCfg := natstransport.DefaultConfig(cfg.Transport.URL)
		natsCfg.SubscribePrefix = cfg.Transport.SubscribePrefix
		natsCfg.PublishSubject = cfg.Transport.PublishSubject
		return natstransport.NewAdapter(natsCfg)
	default:
		return nil, errors.WrapConfig(errors.ErrInvalidConfig, "Session", "buildAdapter", "transport kind")
	}
}

// Registry exposes the capability table for pre-start registration.
func (s *Session) Registry() *registry.Registry { return s.registry }

// Display exposes the layer state machine, including interrupt resolution.
func (s *Session) Display() *display.Controller { return s.display }

// Dispatcher exposes the connection state machine and subscriptions.
func (s *Session) Dispatcher() *dispatcher.Dispatcher { return s.dispatcher }

// Errors returns the session's error-reporting channel.
func (s *Session) Errors() <-chan error { return s.dispatcher.Errors() }

// Start attaches the display controller to the event flow and connects the
// transport. The given context bounds the connection and every
// reconnection attempt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.WrapConfig(errors.ErrAlreadyConnected, "Session", "Start", "state check")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.display.Attach(); err != nil {
		return err
	}
	s.logger.Info("session starting", "transport", s.config.Transport.Kind)
	if err := s.dispatcher.Connect(ctx); err != nil {
		return errors.Wrap(err, "Session", "Start", "connect")
	}
	return nil
}

// Stop disconnects the transport and tears down all rendered state. Safe
// to call more than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	err := s.dispatcher.Disconnect()
	s.display.Teardown()
	if s.registrar != nil {
		if reporter, ok := s.adapter.(transport.MetricsReporter); ok {
			reporter.UnregisterMetrics(s.registrar)
		}
	}
	s.logger.Info("session stopped")
	return err
}
