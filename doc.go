// Package chameleon provides a transport-agnostic synchronization core for
// agent-driven layered workspaces: it turns a stream of agent events into
// deterministic updates on three display layers, leaving the actual painting
// to whatever renderer the embedding application registers.
//
// # Philosophy: Synchronization, Not Rendering
//
// Chameleon draws a hard line between stream state and pixels:
//
// Synchronization core (this module):
//   - Transport: WebSocket and NATS adapters, shared reconnection policy
//   - Protocol: event envelopes, classification, schema validation
//   - State: copy-on-write delta application over JSON-shaped trees
//   - Composition: layout inference and theming for composed views
//   - Orchestration: three-layer display state machine
//
// Renderer (the embedding application):
//   - Registers render capabilities per component kind
//   - Receives opaque surfaces and paints onto them
//   - Never sees the transport or the wire format
//
// Chameleon MUST NOT contain:
//   - Widget toolkits or drawing code
//   - Renderer-specific surface types (surfaces are opaque handles)
//   - Agent-side logic (planning, tool use, conversation state)
//
// # Architecture
//
// Events flow through four stages before a renderer is invoked:
//
//	┌─────────────────────────────────────┐
//	│       Stream Dispatcher             │  Connection lifecycle,
//	│  (connect, reconnect, fan-out)      │  backoff, subscriptions
//	└─────────────────────────────────────┘
//	           ↓ classified events
//	┌─────────────────────────────────────┐
//	│     Layered Display Controller      │  peripheral / focus /
//	│   (status, ui_delta, blocker, log)  │  interrupt routing
//	└─────────────────────────────────────┘
//	           ↓ descriptors and deltas
//	┌──────────────────┐ ┌─────────────────┐
//	│    Compositor    │ │ Delta Applicator│  layout inference,
//	│ (views, theming) │ │ (copy-on-write) │  pointer-addressed merges
//	└──────────────────┘ └─────────────────┘
//	           ↓ render / update / destroy
//	┌─────────────────────────────────────┐
//	│       Component Registry            │  capabilities, instances,
//	│   (render capabilities, instances)  │  panic containment
//	└─────────────────────────────────────┘
//
// # Packages
//
// Core:
//   - dispatcher: connection state machine and event fan-out
//   - display: three-layer controller (peripheral, focus, interrupt)
//   - compositor: layout inference, theming, composed views
//   - registry: render capabilities and live component instances
//   - delta: copy-on-write state delta application
//   - event: envelope types, parsing, classification
//
// Transport:
//   - transport: adapter contract shared by all transports
//   - transport/websocket: gorilla/websocket client adapter
//   - transport/nats: NATS subscription adapter
//
// Infrastructure:
//   - session: wires config, transport, dispatcher and display together
//   - config: configuration loading and validation
//   - metric: Prometheus metrics
//   - errors: classified error handling
//   - pkg/backoff: exponential backoff policy
//
// # Usage
//
// Embedding applications create a session, register capabilities for the
// component kinds their renderer understands, and start the stream:
//
//	cfg, _ := config.NewLoader().LoadFile("chameleon.json")
//	sess, _ := session.New(cfg, session.Options{Logger: logger})
//
//	sess.Registry().RegisterCapability("card", func(props map[string]any, surface registry.Surface) (*registry.RenderedComponent, error) {
//	    widget := paintCard(surface, props)
//	    return &registry.RenderedComponent{
//	        Handle:  widget,
//	        Update:  widget.Apply,
//	        Destroy: widget.Close,
//	    }, nil
//	})
//
//	_ = sess.Start(ctx)
//	defer sess.Stop()
//
// User responses to interrupt-layer blockers go back over the same
// connection:
//
//	_ = sess.Display().ResolveInterrupt("approve")
//
// # Design Principles
//
// Determinism:
//   - Same event sequence, same layer state, regardless of transport
//   - Deltas apply copy-on-write so handlers never observe partial writes
//
// Isolation:
//   - A panicking render capability is contained, not fatal
//   - Malformed messages are dropped and reported, never break the stream
//   - Errors surface on a channel distinct from event flow
//
// Testability:
//   - Explicit dependencies (no globals, no package-level registries)
//   - Transport adapters are an interface; tests use in-memory fakes
package chameleon
