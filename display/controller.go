package display

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/TheGoodCatalyst/chameleon/compositor"
	"github.com/TheGoodCatalyst/chameleon/dispatcher"
	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/registry"
)

// PeripheralState is the ambient status shown on the peripheral layer.
type PeripheralState struct {
	Phase    string
	Progress *float64
	Message  string
	Updated  time.Time
}

// FocusState is the primary content set occupying the focus layer.
type FocusState struct {
	ViewID      string
	Descriptors []event.ComponentDescriptor
	Deadline    time.Time // zero when the content has no expiry
}

// InterruptState is the modal content set occupying the interrupt layer.
// While present it owns exclusive user attention.
type InterruptState struct {
	Requires    string
	Message     string
	Actions     []event.BlockerAction
	ComponentID string // instance id of the embedded component, if any
	ViewID      string
}

// Controller is the three-layer display state machine. It consumes
// dispatched events and decides which layer each affects: status drives
// the peripheral layer, component descriptors and deltas the focus layer,
// blockers the interrupt layer. Layers are independent; an event for one
// never disturbs the other two.
type Controller struct {
	dispatcher *dispatcher.Dispatcher
	registry   *registry.Registry
	compositor *compositor.Compositor
	surfaces   map[event.Layer]registry.Surface
	logger     *slog.Logger
	metrics    *metric.Metrics

	mu         sync.Mutex
	peripheral *PeripheralState
	focus      *FocusState
	interrupt  *InterruptState
	subs       []*dispatcher.Subscription
}

// NewController creates a display controller. surfaces maps each layer to
// the opaque rendering surface handed to capabilities; a missing entry
// means capabilities for that layer receive a nil surface. The dispatcher
// may be nil for embeddings that feed events directly through HandleEvent
// (interaction resolution then has nowhere to send).
func NewController(
	disp *dispatcher.Dispatcher,
	reg *registry.Registry,
	comp *compositor.Compositor,
	surfaces map[event.Layer]registry.Surface,
	logger *slog.Logger,
	metrics *metric.Metrics,
) (*Controller, error) {
	if reg == nil || comp == nil {
		return nil, errors.WrapConfig(errors.ErrMissingConfig, "Controller", "NewController", "dependency validation")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		dispatcher: disp,
		registry:   reg,
		compositor: comp,
		surfaces:   surfaces,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Attach subscribes the controller to the dispatcher's event flow. Events
// arrive on the host loop; each runs to completion before the next.
func (c *Controller) Attach() error {
	if c.dispatcher == nil {
		return errors.WrapConfig(errors.ErrMissingConfig, "Controller", "Attach", "dispatcher check")
	}
	for _, kind := range []event.Kind{event.KindStatus, event.KindUIDelta, event.KindBlocker, event.KindLog} {
		sub, err := c.dispatcher.Subscribe(kind, func(ev event.StreamEvent) {
			if err := c.HandleEvent(ev); err != nil {
				c.logger.Warn("event handling failed", "kind", string(ev.Kind), "error", err)
				c.dispatcher.Report(err)
			}
		})
		if err != nil {
			return errors.Wrap(err, "Controller", "Attach", "subscribe")
		}
		c.subs = append(c.subs, sub)
	}
	return nil
}

// HandleEvent routes one event to its layer. Component and protocol
// failures are returned for reporting; they never leave a layer in a
// half-updated state.
func (c *Controller) HandleEvent(ev event.StreamEvent) error {
	switch ev.Kind {
	case event.KindStatus:
		return c.handleStatus(ev)
	case event.KindUIDelta:
		return c.handleUIDelta(ev)
	case event.KindBlocker:
		return c.handleBlocker(ev)
	case event.KindLog:
		return c.handleLog(ev)
	case event.KindInteraction:
		// Inbound interactions are agent-bound; nothing to display
		return nil
	default:
		return errors.WrapProtocol(errors.ErrUnknownEventKind, "Controller", "HandleEvent", "kind routing")
	}
}

// handleStatus updates the peripheral layer in place. It never touches the
// focus or interrupt layers.
func (c *Controller) handleStatus(ev event.StreamEvent) error {
	payload, err := ev.Status()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.peripheral = &PeripheralState{
		Phase:    payload.Phase,
		Progress: payload.Progress,
		Message:  payload.Message,
		Updated:  time.Now().UTC(),
	}
	c.mu.Unlock()

	c.recordOccupancy(event.LayerPeripheral, true)
	return nil
}

func (c *Controller) handleUIDelta(ev event.StreamEvent) error {
	payload, err := ev.UIDelta()
	if err != nil {
		return err
	}

	if payload.Component != nil {
		return c.showComponent(payload.Layer, *payload.Component)
	}
	if payload.Delta != nil {
		return c.registry.ApplyDelta(*payload.Delta)
	}

	// Default-wrapped payloads carry the descriptor or delta at top level
	var desc event.ComponentDescriptor
	if json.Unmarshal(ev.Data, &desc) == nil && desc.ComponentKind != "" {
		return c.showComponent(payload.Layer, desc)
	}
	var d event.StateDelta
	if json.Unmarshal(ev.Data, &d) == nil && d.TargetID != "" && d.Operation != "" {
		return c.registry.ApplyDelta(d)
	}
	return errors.WrapProtocol(errors.ErrInvalidPayload, "Controller", "handleUIDelta", "payload classification")
}

// showComponent composes and renders a descriptor into its target layer.
// The payload layer wins over the descriptor layer; both default to focus.
// New focus content clears the previous focus content first.
func (c *Controller) showComponent(override event.Layer, desc event.ComponentDescriptor) error {
	layer := desc.TargetLayer()
	if override.Valid() {
		layer = override
	}

	if layer == event.LayerFocus {
		c.clearFocus()
	}

	view, err := c.compositor.ComposeView(layer, []event.ComponentDescriptor{desc}, "")
	if err != nil {
		return err
	}
	if _, err := c.registry.Render(desc, c.surfaces[layer]); err != nil {
		c.compositor.DestroyView(view.ID)
		return err
	}

	if layer == event.LayerFocus {
		c.mu.Lock()
		c.focus = &FocusState{
			ViewID:      view.ID,
			Descriptors: view.Components,
			Deadline:    contentDeadline(desc.Meta),
		}
		c.mu.Unlock()
		c.recordOccupancy(event.LayerFocus, true)
	}
	return nil
}

// handleBlocker unconditionally replaces the interrupt layer's content. A
// second blocker replaces the first; blockers never stack.
func (c *Controller) handleBlocker(ev event.StreamEvent) error {
	payload, err := ev.Blocker()
	if err != nil {
		return err
	}

	c.clearInterrupt()

	state := &InterruptState{
		Requires: payload.Requires,
		Message:  payload.Message,
		Actions:  payload.Actions,
	}

	if payload.Component != nil {
		view, err := c.compositor.ComposeView(
			event.LayerInterrupt, []event.ComponentDescriptor{*payload.Component}, "")
		if err != nil {
			return err
		}
		if _, err := c.registry.Render(*payload.Component, c.surfaces[event.LayerInterrupt]); err != nil {
			c.compositor.DestroyView(view.ID)
			return err
		}
		state.ViewID = view.ID
		state.ComponentID = payload.Component.InstanceID
	}

	c.mu.Lock()
	c.interrupt = state
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.BlockersTotal.Inc()
	}
	c.recordOccupancy(event.LayerInterrupt, true)
	c.logger.Info("interrupt raised", "requires", payload.Requires)
	return nil
}

func (c *Controller) handleLog(ev event.StreamEvent) error {
	payload, err := ev.Log()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	switch payload.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	c.logger.Log(context.Background(), level, payload.Message, "source", "agent")
	return nil
}

// ResolveInterrupt clears the interrupt layer and signals the chosen
// action back to the agent. This is the one user-driven transition back to
// empty for that layer. Resolving an empty interrupt layer is a no-op.
func (c *Controller) ResolveInterrupt(actionID string) error {
	c.mu.Lock()
	state := c.interrupt
	c.interrupt = nil
	c.mu.Unlock()

	if state == nil {
		return nil
	}
	if state.ViewID != "" {
		c.compositor.DestroyView(state.ViewID)
	}
	c.recordOccupancy(event.LayerInterrupt, false)

	if c.dispatcher == nil {
		return nil
	}

	componentID := state.ComponentID
	if componentID == "" {
		componentID = "blocker"
	}
	interaction, err := event.NewInteraction(event.InteractionPayload{
		ComponentID: componentID,
		EventType:   "select",
		Payload:     map[string]any{"action_id": actionID},
		Timestamp:   time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	if err := c.dispatcher.Send(interaction); err != nil {
		return errors.Wrap(err, "Controller", "ResolveInterrupt", "send interaction")
	}
	return nil
}

// Peripheral returns the peripheral layer state, or nil when empty.
func (c *Controller) Peripheral() *PeripheralState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peripheral
}

// Focus returns the focus layer state, or nil when empty or expired.
func (c *Controller) Focus() *FocusState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.focus != nil && !c.focus.Deadline.IsZero() && time.Now().After(c.focus.Deadline) {
		return nil
	}
	return c.focus
}

// Interrupt returns the interrupt layer state, or nil when empty.
func (c *Controller) Interrupt() *InterruptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interrupt
}

// Teardown destroys every registry instance and clears all three layers.
// The controller must not be used afterwards.
func (c *Controller) Teardown() {
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.subs = nil

	c.registry.DestroyAll()

	c.mu.Lock()
	c.peripheral = nil
	c.focus = nil
	c.interrupt = nil
	c.mu.Unlock()

	c.recordOccupancy(event.LayerPeripheral, false)
	c.recordOccupancy(event.LayerFocus, false)
	c.recordOccupancy(event.LayerInterrupt, false)
}

func (c *Controller) clearFocus() {
	c.mu.Lock()
	state := c.focus
	c.focus = nil
	c.mu.Unlock()

	if state == nil {
		return
	}
	c.compositor.DestroyView(state.ViewID)
	c.recordOccupancy(event.LayerFocus, false)
}

func (c *Controller) clearInterrupt() {
	c.mu.Lock()
	state := c.interrupt
	c.interrupt = nil
	c.mu.Unlock()

	if state == nil {
		return
	}
	if state.ViewID != "" {
		c.compositor.DestroyView(state.ViewID)
	}
	c.recordOccupancy(event.LayerInterrupt, false)
}

func (c *Controller) recordOccupancy(layer event.Layer, occupied bool) {
	if c.metrics != nil {
		c.metrics.RecordLayerOccupied(string(layer), occupied)
	}
}

func contentDeadline(meta *event.Metadata) time.Time {
	if meta == nil || meta.TTLMillis <= 0 {
		return time.Time{}
	}
	return time.Now().Add(time.Duration(meta.TTLMillis) * time.Millisecond)
}
