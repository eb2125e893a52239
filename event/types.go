package event

import (
	"encoding/json"
	"fmt"

	"github.com/TheGoodCatalyst/chameleon/errors"
)

// Kind identifies the type of a stream event
type Kind string

// Stream event kinds emitted by the agent side
const (
	KindStatus      Kind = "status"
	KindUIDelta     Kind = "ui_delta"
	KindInteraction Kind = "interaction"
	KindBlocker     Kind = "blocker"
	KindLog         Kind = "log"
)

// Wildcard subscribes a handler to every event kind
const Wildcard Kind = "*"

// Valid reports whether k is a recognized event kind
func (k Kind) Valid() bool {
	switch k {
	case KindStatus, KindUIDelta, KindInteraction, KindBlocker, KindLog:
		return true
	default:
		return false
	}
}

// Layer identifies one of the three display regions
type Layer string

// Display layers with distinct occupancy rules
const (
	LayerPeripheral Layer = "peripheral"
	LayerFocus      Layer = "focus"
	LayerInterrupt  Layer = "interrupt"
)

// Valid reports whether l is a recognized layer
func (l Layer) Valid() bool {
	switch l {
	case LayerPeripheral, LayerFocus, LayerInterrupt:
		return true
	default:
		return false
	}
}

// StreamEvent is one typed event within a transport session.
// Events are transient: created per inbound message, consumed
// synchronously, discarded. Arrival order within one session is
// authoritative.
type StreamEvent struct {
	Kind Kind            `json:"event"`
	Data json.RawMessage `json:"data"`
}

// StatusPayload carries an ambient status update for the peripheral layer
type StatusPayload struct {
	Phase    string   `json:"phase"`
	Progress *float64 `json:"progress,omitempty"` // 0-100 when present
	Message  string   `json:"message,omitempty"`
}

// Metadata carries optional descriptor hints
type Metadata struct {
	Priority  int   `json:"priority,omitempty"`
	Transient bool  `json:"transient,omitempty"`
	TTLMillis int64 `json:"ttl,omitempty"`
}

// ComponentDescriptor is a serializable description of a unit of visual
// content the agent wants shown. InstanceID, when present, must be unique
// for the session lifetime; it is the only handle by which later deltas
// may target the rendered instance.
type ComponentDescriptor struct {
	ComponentKind string         `json:"component_name"`
	Props         map[string]any `json:"data,omitempty"`
	Interactive   bool           `json:"interactive,omitempty"`
	InstanceID    string         `json:"instance_id,omitempty"`
	Layer         Layer          `json:"layer,omitempty"`
	Meta          *Metadata      `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both "instance_id" and the legacy "stream_id"
// field emitted by older agent servers.
func (d *ComponentDescriptor) UnmarshalJSON(data []byte) error {
	type alias ComponentDescriptor
	aux := struct {
		*alias
		StreamID string `json:"stream_id,omitempty"`
	}{alias: (*alias)(d)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if d.InstanceID == "" && aux.StreamID != "" {
		d.InstanceID = aux.StreamID
	}
	return nil
}

// TargetLayer returns the descriptor's layer, defaulting to focus
func (d *ComponentDescriptor) TargetLayer() Layer {
	if d.Layer.Valid() {
		return d.Layer
	}
	return LayerFocus
}

// Validate performs basic structural validation on the descriptor
func (d *ComponentDescriptor) Validate() error {
	if d.ComponentKind == "" {
		return errors.WrapProtocol(errors.ErrInvalidPayload,
			"ComponentDescriptor", "Validate", "component kind required")
	}
	if d.Layer != "" && !d.Layer.Valid() {
		return errors.WrapProtocol(
			fmt.Errorf("unknown layer %q", d.Layer),
			"ComponentDescriptor", "Validate", "layer validation")
	}
	return nil
}

// Operation identifies how a delta mutates its target
type Operation string

// Delta operations
const (
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
	OpAppend  Operation = "append"
	OpPatch   Operation = "patch"
	OpReplace Operation = "replace"
)

// Valid reports whether op is a recognized delta operation
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpUpdate, OpDelete, OpAppend, OpPatch, OpReplace:
		return true
	default:
		return false
	}
}

// StateDelta is a path-addressed partial update applied to
// already-rendered state. A delta whose TargetID matches no live
// instance is a no-op, reported but never fatal.
type StateDelta struct {
	TargetID  string    `json:"target_id"`
	Operation Operation `json:"operation"`
	Payload   any       `json:"payload,omitempty"`
	Path      string    `json:"path,omitempty"` // JSON-Pointer syntax
}

// Validate performs basic structural validation on the delta
func (sd *StateDelta) Validate() error {
	if !sd.Operation.Valid() {
		return errors.WrapProtocol(
			fmt.Errorf("unknown operation %q", sd.Operation),
			"StateDelta", "Validate", "operation validation")
	}
	return nil
}

// UIDeltaPayload carries either a new component descriptor or a state
// delta targeting an existing instance
type UIDeltaPayload struct {
	Layer     Layer                `json:"layer,omitempty"`
	Component *ComponentDescriptor `json:"component,omitempty"`
	Delta     *StateDelta          `json:"delta,omitempty"`
}

// BlockerAction is one selectable choice on a blocking interrupt
type BlockerAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
}

// BlockerPayload occupies the interrupt layer until an action resolves it
type BlockerPayload struct {
	Requires  string               `json:"requires"`
	Message   string               `json:"message"`
	Component *ComponentDescriptor `json:"component,omitempty"`
	Actions   []BlockerAction      `json:"actions,omitempty"`
}

// LogPayload carries a diagnostic line from the agent side
type LogPayload struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

// InteractionPayload is the outbound client-to-agent message sent when
// the user interacts with a rendered component
type InteractionPayload struct {
	ComponentID string         `json:"component_id"`
	EventType   string         `json:"event_type"` // click, submit, change, select, drag, custom
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   int64          `json:"timestamp"` // Unix milliseconds
}

// Status decodes the event data as a StatusPayload
func (e StreamEvent) Status() (StatusPayload, error) {
	var p StatusPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, errors.WrapProtocol(err, "StreamEvent", "Status", "decode status payload")
	}
	return p, nil
}

// UIDelta decodes the event data as a UIDeltaPayload
func (e StreamEvent) UIDelta() (UIDeltaPayload, error) {
	var p UIDeltaPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, errors.WrapProtocol(err, "StreamEvent", "UIDelta", "decode ui_delta payload")
	}
	return p, nil
}

// Blocker decodes the event data as a BlockerPayload
func (e StreamEvent) Blocker() (BlockerPayload, error) {
	var p BlockerPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, errors.WrapProtocol(err, "StreamEvent", "Blocker", "decode blocker payload")
	}
	return p, nil
}

// Log decodes the event data as a LogPayload
func (e StreamEvent) Log() (LogPayload, error) {
	var p LogPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, errors.WrapProtocol(err, "StreamEvent", "Log", "decode log payload")
	}
	return p, nil
}

// Interaction decodes the event data as an InteractionPayload
func (e StreamEvent) Interaction() (InteractionPayload, error) {
	var p InteractionPayload
	if err := json.Unmarshal(e.Data, &p); err != nil {
		return p, errors.WrapProtocol(err, "StreamEvent", "Interaction", "decode interaction payload")
	}
	return p, nil
}

// NewInteraction builds an outbound interaction event
func NewInteraction(p InteractionPayload) (StreamEvent, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return StreamEvent{}, errors.WrapProtocol(err, "event", "NewInteraction", "encode interaction payload")
	}
	return StreamEvent{Kind: KindInteraction, Data: data}, nil
}
