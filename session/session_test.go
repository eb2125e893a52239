package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGoodCatalyst/chameleon/config"
	"github.com/TheGoodCatalyst/chameleon/dispatcher"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/registry"
	"github.com/TheGoodCatalyst/chameleon/transport"
)

// loopAdapter feeds scripted messages and records outbound sends.
type loopAdapter struct {
	mu   sync.Mutex
	open bool
	sent [][]byte

	onOpen    func()
	onMessage transport.MessageHandler
	onError   func(error)
	onClose   func()
}

var _ transport.Adapter = (*loopAdapter)(nil)

func (a *loopAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	a.open = true
	onOpen := a.onOpen
	a.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}
	return nil
}

func (a *loopAdapter) Disconnect() error {
	a.mu.Lock()
	a.open = false
	a.mu.Unlock()
	return nil
}

func (a *loopAdapter) Send(data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, data)
	return nil
}

func (a *loopAdapter) Open() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.open
}

func (a *loopAdapter) Bidirectional() bool { return true }

func (a *loopAdapter) OnOpen(fn func()) { a.onOpen = fn }

func (a *loopAdapter) OnMessage(fn transport.MessageHandler) { a.onMessage = fn }

func (a *loopAdapter) OnError(fn func(error)) { a.onError = fn }

func (a *loopAdapter) OnClose(fn func()) { a.onClose = fn }

func (a *loopAdapter) push(raw string) {
	a.onMessage("", []byte(raw))
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Session = "test"
	cfg.Transport.URL = "ws://localhost:0/stream"
	return cfg
}

func newTestSession(t *testing.T) (*Session, *loopAdapter) {
	t.Helper()
	adapter := &loopAdapter{}
	s, err := New(testConfig(), Options{Adapter: adapter})
	require.NoError(t, err)
	return s, adapter
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default() // no URL
	_, err := New(cfg, Options{})
	require.Error(t, err)

	_, err = New(nil, Options{})
	require.Error(t, err)
}

func TestEndToEndRenderAndDelta(t *testing.T) {
	s, adapter := newTestSession(t)

	var renders, updates []map[string]any
	require.NoError(t, s.Registry().RegisterCapability("card",
		func(props map[string]any, _ registry.Surface) (*registry.RenderedComponent, error) {
			renders = append(renders, props)
			return &registry.RenderedComponent{
				Update: func(p map[string]any) error {
					updates = append(updates, p)
					return nil
				},
				Destroy: func() error { return nil },
			}, nil
		}))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, dispatcher.StateConnected, s.Dispatcher().State())

	adapter.push(`{"event":"ui_delta","data":{"component":{"component_name":"card","instance_id":"c1","data":{"title":"Hi"}}}}`)
	adapter.push(`{"event":"ui_delta","data":{"delta":{"target_id":"c1","operation":"update","payload":{"title":"X"}}}}`)

	require.Len(t, renders, 1)
	assert.Equal(t, "Hi", renders[0]["title"])
	require.Len(t, updates, 1)
	assert.Equal(t, map[string]any{"title": "X"}, updates[0])

	focus := s.Display().Focus()
	require.NotNil(t, focus)
	assert.Equal(t, "card", focus.Descriptors[0].ComponentKind)

	require.NoError(t, s.Stop())
	assert.Equal(t, 0, s.Registry().Len())
	assert.Nil(t, s.Display().Focus())
}

func TestStatusAndBlockerFlow(t *testing.T) {
	s, adapter := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))

	adapter.push(`{"event":"status","data":{"phase":"thinking","progress":10}}`)
	peripheral := s.Display().Peripheral()
	require.NotNil(t, peripheral)
	assert.Equal(t, "thinking", peripheral.Phase)

	adapter.push(`{"event":"blocker","data":{"requires":"confirm","message":"go?","actions":[{"id":"ok","label":"OK"}]}}`)
	require.NotNil(t, s.Display().Interrupt())

	require.NoError(t, s.Display().ResolveInterrupt("ok"))
	assert.Nil(t, s.Display().Interrupt())

	require.Len(t, adapter.sent, 1)
	var interaction event.StreamEvent
	require.NoError(t, json.Unmarshal(adapter.sent[0], &interaction))
	assert.Equal(t, event.KindInteraction, interaction.Kind)
}

func TestMalformedMessageSurfacesOnErrorChannel(t *testing.T) {
	s, adapter := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))

	adapter.push(`not even json`)

	select {
	case err := <-s.Errors():
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected a reported protocol error")
	}
	assert.Equal(t, dispatcher.StateConnected, s.Dispatcher().State())
}

func TestStartTwiceRejected(t *testing.T) {
	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop()) // idempotent
}

func TestSessionsAreIndependent(t *testing.T) {
	first, firstAdapter := newTestSession(t)
	second, _ := newTestSession(t)

	require.NoError(t, first.Registry().RegisterCapability("card",
		func(map[string]any, registry.Surface) (*registry.RenderedComponent, error) {
			return &registry.RenderedComponent{}, nil
		}))

	require.NoError(t, first.Start(context.Background()))
	firstAdapter.push(`{"event":"ui_delta","data":{"component":{"component_name":"card","instance_id":"c1"}}}`)

	assert.Equal(t, 1, first.Registry().Len())
	assert.Equal(t, 0, second.Registry().Len())
	_, ok := second.Registry().Capability("card")
	assert.False(t, ok)
}

// meteredAdapter is a loopAdapter that records metrics registrar calls.
type meteredAdapter struct {
	loopAdapter
	registered   int
	unregistered int
}

var _ transport.MetricsReporter = (*meteredAdapter)(nil)

func (a *meteredAdapter) RegisterMetrics(metric.MetricsRegistrar) error {
	a.registered++
	return nil
}

func (a *meteredAdapter) UnregisterMetrics(metric.MetricsRegistrar) {
	a.unregistered++
}

func TestRegistrarWiredThroughAdapterLifecycle(t *testing.T) {
	adapter := &meteredAdapter{}
	registrar := metric.NewMetricsRegistry()

	s, err := New(testConfig(), Options{Adapter: adapter, Registrar: registrar})
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.registered)
	assert.Zero(t, adapter.unregistered)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
	assert.Equal(t, 1, adapter.unregistered)

	// With the names released, a fresh session can reuse the registrar
	next, err := New(testConfig(), Options{Adapter: &meteredAdapter{}, Registrar: registrar})
	require.NoError(t, err)
	assert.NotNil(t, next)
}
