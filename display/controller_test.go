package display

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGoodCatalyst/chameleon/compositor"
	"github.com/TheGoodCatalyst/chameleon/dispatcher"
	chamerrors "github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/pkg/backoff"
	"github.com/TheGoodCatalyst/chameleon/registry"
	"github.com/TheGoodCatalyst/chameleon/transport"
)

// renderLog tracks capability invocations across kinds.
type renderLog struct {
	renders  []string
	updates  []map[string]any
	destroys []string
}

func (l *renderLog) capability(kind string) registry.RenderCapability {
	return func(props map[string]any, _ registry.Surface) (*registry.RenderedComponent, error) {
		l.renders = append(l.renders, kind)
		return &registry.RenderedComponent{
			Handle: kind,
			Update: func(p map[string]any) error {
				l.updates = append(l.updates, p)
				return nil
			},
			Destroy: func() error {
				l.destroys = append(l.destroys, kind)
				return nil
			},
		}, nil
	}
}

func newTestController(t *testing.T) (*Controller, *registry.Registry, *renderLog) {
	t.Helper()
	log := &renderLog{}
	reg := registry.NewRegistry(nil, nil)
	for _, kind := range []string{"card", "form", "auth_prompt"} {
		require.NoError(t, reg.RegisterCapability(kind, log.capability(kind)))
	}
	comp := compositor.NewCompositor(reg, compositor.ThemeSettings{}, nil, nil)
	c, err := NewController(nil, reg, comp, nil, nil, nil)
	require.NoError(t, err)
	return c, reg, log
}

func mustEvent(t *testing.T, kind event.Kind, payload any) event.StreamEvent {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return event.StreamEvent{Kind: kind, Data: data}
}

func TestStatusUpdatesOnlyPeripheral(t *testing.T) {
	c, _, _ := newTestController(t)

	// Occupy focus and interrupt first
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "card", "instance_id": "c1"},
	})))
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindBlocker, map[string]any{
		"requires": "auth", "message": "sign in",
	})))
	focusBefore := c.Focus()
	interruptBefore := c.Interrupt()

	progress := 42.0
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindStatus, event.StatusPayload{
		Phase:    "thinking",
		Progress: &progress,
		Message:  "working",
	})))

	peripheral := c.Peripheral()
	require.NotNil(t, peripheral)
	assert.Equal(t, "thinking", peripheral.Phase)
	require.NotNil(t, peripheral.Progress)
	assert.Equal(t, 42.0, *peripheral.Progress)

	assert.Same(t, focusBefore, c.Focus())
	assert.Same(t, interruptBefore, c.Interrupt())
}

func TestComponentDefaultsToFocusAndReplacesPrior(t *testing.T) {
	c, reg, log := newTestController(t)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "card", "instance_id": "c1"},
	})))
	require.NotNil(t, c.Focus())
	assert.NotNil(t, reg.Instance("c1"))

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "form", "instance_id": "f1"},
	})))

	// Prior focus content is destroyed before the new content shows
	assert.Equal(t, []string{"card"}, log.destroys)
	assert.Nil(t, reg.Instance("c1"))
	require.NotNil(t, reg.Instance("f1"))
	require.NotNil(t, c.Focus())
	assert.Equal(t, "form", c.Focus().Descriptors[0].ComponentKind)
}

func TestDeltaForwardedWithoutTouchingLayers(t *testing.T) {
	c, _, log := newTestController(t)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "card", "instance_id": "c1"},
	})))
	focusBefore := c.Focus()

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"delta": map[string]any{
			"target_id": "c1",
			"operation": "update",
			"payload":   map[string]any{"title": "X"},
		},
	})))

	assert.Equal(t, []string{"card"}, log.renders)
	require.Len(t, log.updates, 1)
	assert.Equal(t, map[string]any{"title": "X"}, log.updates[0])
	assert.Same(t, focusBefore, c.Focus())
}

func TestBareDeltaPayloadAccepted(t *testing.T) {
	// Legacy servers send the delta at the top level of a wrapped payload
	c, _, log := newTestController(t)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "card", "instance_id": "c1"},
	})))
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"target_id": "c1",
		"operation": "update",
		"payload":   map[string]any{"title": "Y"},
	})))

	require.Len(t, log.updates, 1)
	assert.Equal(t, map[string]any{"title": "Y"}, log.updates[0])
}

func TestDeltaForUnknownInstanceReportedNotFatal(t *testing.T) {
	c, _, _ := newTestController(t)

	err := c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"delta": map[string]any{
			"target_id": "ghost",
			"operation": "update",
			"payload":   map[string]any{},
		},
	}))
	assert.Error(t, err)

	// Controller keeps operating afterwards
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "card"},
	})))
}

func TestBlockersReplaceNotStack(t *testing.T) {
	c, reg, log := newTestController(t)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindBlocker, map[string]any{
		"requires": "auth",
		"message":  "sign in",
		"component": map[string]any{
			"component_name": "auth_prompt", "instance_id": "b1",
		},
	})))
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindBlocker, map[string]any{
		"requires": "confirm",
		"message":  "are you sure",
		"actions": []map[string]any{
			{"id": "yes", "label": "Yes"},
			{"id": "no", "label": "No"},
		},
	})))

	state := c.Interrupt()
	require.NotNil(t, state)
	assert.Equal(t, "confirm", state.Requires)
	assert.Len(t, state.Actions, 2)

	// The first blocker's embedded component was destroyed on replace
	assert.Equal(t, []string{"auth_prompt"}, log.destroys)
	assert.Nil(t, reg.Instance("b1"))
}

func TestResolveInterruptSendsInteraction(t *testing.T) {
	adapter := &stubAdapter{bidi: true}
	disp, err := dispatcher.New(adapter, dispatcher.Config{
		Session: "t",
		Backoff: backoff.DefaultPolicy(),
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, disp.Connect(context.Background()))

	reg := registry.NewRegistry(nil, nil)
	comp := compositor.NewCompositor(reg, compositor.ThemeSettings{}, nil, nil)
	c, err := NewController(disp, reg, comp, nil, nil, nil)
	require.NoError(t, err)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindBlocker, map[string]any{
		"requires": "confirm",
		"message":  "proceed?",
		"actions":  []map[string]any{{"id": "ok", "label": "OK"}},
	})))

	require.NoError(t, c.ResolveInterrupt("ok"))
	assert.Nil(t, c.Interrupt())

	require.Len(t, adapter.sent, 1)
	var sent event.StreamEvent
	require.NoError(t, json.Unmarshal(adapter.sent[0], &sent))
	assert.Equal(t, event.KindInteraction, sent.Kind)
	payload, err := sent.Interaction()
	require.NoError(t, err)
	assert.Equal(t, "select", payload.EventType)
	assert.Equal(t, "ok", payload.Payload["action_id"])

	// Resolving an empty layer is a no-op
	require.NoError(t, c.ResolveInterrupt("ok"))
	assert.Len(t, adapter.sent, 1)
}

func TestRoutingFailureSurfacesOnErrorChannel(t *testing.T) {
	adapter := &stubAdapter{}
	disp, err := dispatcher.New(adapter, dispatcher.Config{
		Session: "t",
		Backoff: backoff.DefaultPolicy(),
	}, nil, nil)
	require.NoError(t, err)

	reg := registry.NewRegistry(nil, nil)
	comp := compositor.NewCompositor(reg, compositor.ThemeSettings{}, nil, nil)
	c, err := NewController(disp, reg, comp, nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Attach())
	require.NoError(t, disp.Connect(context.Background()))

	// A delta against an unknown instance fails during routing; the
	// embedder watching the error channel must see it
	adapter.push("", []byte(`{"event":"ui_delta","data":{"delta":{"target_id":"ghost","operation":"update","payload":{"x":1}}}}`))

	select {
	case err := <-disp.Errors():
		assert.ErrorIs(t, err, chamerrors.ErrInstanceNotFound)
	case <-time.After(time.Second):
		t.Fatal("routing failure never reached the error channel")
	}

	require.NoError(t, disp.Disconnect())
}

func TestTeardownDestroysEverything(t *testing.T) {
	c, reg, log := newTestController(t)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{"component_name": "card", "instance_id": "c1"},
	})))
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindStatus, event.StatusPayload{Phase: "idle"})))
	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindBlocker, map[string]any{
		"requires": "auth", "message": "sign in",
		"component": map[string]any{"component_name": "auth_prompt", "instance_id": "b1"},
	})))

	c.Teardown()

	assert.Equal(t, 0, reg.Len())
	assert.Len(t, log.destroys, 2)
	assert.Nil(t, c.Peripheral())
	assert.Nil(t, c.Focus())
	assert.Nil(t, c.Interrupt())
}

func TestFocusContentExpiresByTTL(t *testing.T) {
	c, _, _ := newTestController(t)

	require.NoError(t, c.HandleEvent(mustEvent(t, event.KindUIDelta, map[string]any{
		"component": map[string]any{
			"component_name": "card",
			"instance_id":    "c1",
			"metadata":       map[string]any{"transient": true, "ttl": 1},
		},
	})))

	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, c.Focus())
}

// stubAdapter is a minimal in-memory transport for the attached-flow tests.
type stubAdapter struct {
	mu   sync.Mutex
	open bool
	bidi bool
	sent [][]byte

	onOpen    func()
	onMessage transport.MessageHandler
}

var _ transport.Adapter = (*stubAdapter)(nil)

func (s *stubAdapter) Connect(_ context.Context) error {
	s.mu.Lock()
	s.open = true
	onOpen := s.onOpen
	s.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}
	return nil
}

func (s *stubAdapter) Disconnect() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

func (s *stubAdapter) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, data)
	return nil
}

func (s *stubAdapter) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *stubAdapter) Bidirectional() bool { return s.bidi }

func (s *stubAdapter) OnOpen(fn func()) { s.onOpen = fn }

func (s *stubAdapter) OnMessage(fn transport.MessageHandler) { s.onMessage = fn }

func (s *stubAdapter) push(kind event.Kind, raw []byte) { s.onMessage(kind, raw) }

func (s *stubAdapter) OnError(func(error)) {}

func (s *stubAdapter) OnClose(func()) {}
