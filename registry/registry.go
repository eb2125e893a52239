package registry

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/TheGoodCatalyst/chameleon/delta"
	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
)

// Surface is the opaque rendering surface handle passed through to render
// capabilities. The registry never inspects or mutates it.
type Surface any

// RenderedComponent is what a render capability returns: an opaque handle
// plus optional update and destroy hooks. Update and Destroy may be nil when
// the renderer does not support them.
type RenderedComponent struct {
	Handle  any
	Update  func(props map[string]any) error
	Destroy func() error
}

// RenderCapability renders one component kind onto a surface.
// Capabilities are provided by the embedding application; the registry
// treats them as untrusted and contains their panics.
type RenderCapability func(props map[string]any, surface Surface) (*RenderedComponent, error)

// Instance is the live result of rendering a descriptor. The registry
// retains the descriptor's props so later deltas have a tree to apply to.
type Instance struct {
	ID       string
	Kind     string
	Props    map[string]any
	Rendered *RenderedComponent
}

// Registry holds the capability table (component kind -> render capability)
// and the live instance store. All mutation goes through Render, Update,
// ApplyDelta, Destroy and DestroyAll; callers must not retain and mutate
// instance state outside those entry points.
type Registry struct {
	capabilities map[string]RenderCapability
	instances    map[string]*Instance
	logger       *slog.Logger
	metrics      *metric.Metrics
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry. Metrics may be nil.
func NewRegistry(logger *slog.Logger, metrics *metric.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		capabilities: make(map[string]RenderCapability),
		instances:    make(map[string]*Instance),
		logger:       logger,
		metrics:      metrics,
	}
}

// RegisterCapability registers a render capability for a component kind.
// The last registration for a kind wins; replacing an existing capability
// is logged as an override, not treated as an error.
func (r *Registry) RegisterCapability(kind string, capability RenderCapability) error {
	if kind == "" {
		return errors.WrapConfig(errors.ErrInvalidConfig, "Registry", "RegisterCapability", "kind validation")
	}
	if capability == nil {
		return errors.WrapConfig(errors.ErrInvalidConfig, "Registry", "RegisterCapability", "capability validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[kind]; exists {
		r.logger.Warn("replacing registered capability", "kind", kind)
	}
	r.capabilities[kind] = capability
	return nil
}

// Capability returns the registered capability for a kind.
func (r *Registry) Capability(kind string) (RenderCapability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capability, exists := r.capabilities[kind]
	return capability, exists
}

// Kinds returns all registered component kind names.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.capabilities))
	for kind := range r.capabilities {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Render looks up the capability for the descriptor's kind and invokes it
// against the given surface. An unregistered kind is reported as a component
// error; the caller decides whether that is fatal. When the descriptor
// carries an instance id the resulting instance is stored for later updates.
func (r *Registry) Render(desc event.ComponentDescriptor, surface Surface) (*Instance, error) {
	if err := desc.Validate(); err != nil {
		return nil, errors.Wrap(err, "Registry", "Render", "descriptor validation")
	}

	r.mu.RLock()
	capability, exists := r.capabilities[desc.ComponentKind]
	r.mu.RUnlock()

	if !exists {
		r.recordRender(desc.ComponentKind, "missing")
		return nil, errors.WrapComponent(
			fmt.Errorf("%w: %q", errors.ErrKindNotRegistered, desc.ComponentKind),
			"Registry", "Render", "capability lookup")
	}

	props := cloneProps(desc.Props)
	rendered, err := r.invokeRender(capability, props, surface)
	if err != nil {
		r.recordRender(desc.ComponentKind, "error")
		return nil, errors.WrapComponent(err, "Registry", "Render", "capability execution")
	}

	instance := &Instance{
		ID:       desc.InstanceID,
		Kind:     desc.ComponentKind,
		Props:    props,
		Rendered: rendered,
	}

	if desc.InstanceID != "" {
		r.mu.Lock()
		if _, replaced := r.instances[desc.InstanceID]; replaced {
			r.logger.Warn("replacing live instance", "instance_id", desc.InstanceID, "kind", desc.ComponentKind)
		}
		r.instances[desc.InstanceID] = instance
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.InstancesActive.Set(float64(r.Len()))
		}
	}

	r.recordRender(desc.ComponentKind, "ok")
	return instance, nil
}

// Update invokes the stored instance's update capability with the given
// props and retains them as the instance's new state. A missing instance or
// an instance without an update capability is reported and leaves the store
// unchanged.
func (r *Registry) Update(instanceID string, props map[string]any) error {
	r.mu.RLock()
	instance, exists := r.instances[instanceID]
	r.mu.RUnlock()

	if !exists {
		r.recordUpdate("missing")
		return errors.WrapComponent(
			fmt.Errorf("%w: %q", errors.ErrInstanceNotFound, instanceID),
			"Registry", "Update", "instance lookup")
	}
	if instance.Rendered == nil || instance.Rendered.Update == nil {
		r.recordUpdate("unsupported")
		return errors.WrapComponent(
			fmt.Errorf("%w: %q", errors.ErrNoUpdateCapability, instanceID),
			"Registry", "Update", "capability check")
	}

	if err := r.invokeUpdate(instance.Rendered.Update, props); err != nil {
		r.recordUpdate("error")
		return errors.WrapComponent(err, "Registry", "Update", "capability execution")
	}

	r.mu.Lock()
	instance.Props = mergeProps(instance.Props, props)
	r.mu.Unlock()

	r.recordUpdate("ok")
	return nil
}

// ApplyDelta applies a path-addressed delta to the targeted instance's
// retained props and repaints through the update capability. A delta whose
// target matches no live instance is a reported no-op.
func (r *Registry) ApplyDelta(d event.StateDelta) error {
	if err := d.Validate(); err != nil {
		return errors.Wrap(err, "Registry", "ApplyDelta", "delta validation")
	}

	r.mu.RLock()
	instance, exists := r.instances[d.TargetID]
	r.mu.RUnlock()

	if !exists {
		r.recordUpdate("missing")
		return errors.WrapComponent(
			fmt.Errorf("%w: %q", errors.ErrInstanceNotFound, d.TargetID),
			"Registry", "ApplyDelta", "target lookup")
	}
	if instance.Rendered == nil || instance.Rendered.Update == nil {
		r.recordUpdate("unsupported")
		return errors.WrapComponent(
			fmt.Errorf("%w: %q", errors.ErrNoUpdateCapability, d.TargetID),
			"Registry", "ApplyDelta", "capability check")
	}

	merged, err := delta.Apply(instance.Props, d)
	if err != nil {
		r.recordUpdate("error")
		return errors.Wrap(err, "Registry", "ApplyDelta", "delta application")
	}
	mergedProps, ok := merged.(map[string]any)
	if !ok {
		r.recordUpdate("error")
		return errors.WrapProtocol(
			fmt.Errorf("%w: delta result is not a record", errors.ErrInvalidPayload),
			"Registry", "ApplyDelta", "result check")
	}

	// The capability owns how much it repaints: for an untargeted
	// update/patch it receives just the changed keys, otherwise the
	// full merged props.
	repaint := mergedProps
	if d.Path == "" && (d.Operation == event.OpUpdate || d.Operation == event.OpPatch) {
		if partial, isRecord := d.Payload.(map[string]any); isRecord {
			repaint = partial
		}
	}

	if err := r.invokeUpdate(instance.Rendered.Update, repaint); err != nil {
		r.recordUpdate("error")
		return errors.WrapComponent(err, "Registry", "ApplyDelta", "capability execution")
	}

	r.mu.Lock()
	instance.Props = mergedProps
	r.mu.Unlock()

	r.recordUpdate("ok")
	return nil
}

// Destroy invokes the instance's destroy capability if present and removes
// it from the store. Destroying an unknown id is a no-op, which makes
// double-destroy safe.
func (r *Registry) Destroy(instanceID string) error {
	r.mu.Lock()
	instance, exists := r.instances[instanceID]
	if exists {
		delete(r.instances, instanceID)
	}
	r.mu.Unlock()

	if !exists {
		return nil
	}
	if r.metrics != nil {
		r.metrics.InstancesActive.Set(float64(r.Len()))
	}

	if instance.Rendered != nil && instance.Rendered.Destroy != nil {
		if err := r.invokeDestroy(instance.Rendered.Destroy); err != nil {
			r.recordDestroy("error")
			return errors.WrapComponent(err, "Registry", "Destroy", "capability execution")
		}
	}

	r.recordDestroy("ok")
	return nil
}

// DestroyAll destroys every stored instance exactly once. Individual
// destroy failures are logged and do not stop the sweep.
func (r *Registry) DestroyAll() {
	r.mu.Lock()
	instances := r.instances
	r.instances = make(map[string]*Instance)
	r.mu.Unlock()

	for id, instance := range instances {
		if instance.Rendered == nil || instance.Rendered.Destroy == nil {
			continue
		}
		if err := r.invokeDestroy(instance.Rendered.Destroy); err != nil {
			r.recordDestroy("error")
			r.logger.Warn("destroy failed during teardown", "instance_id", id, "error", err)
			continue
		}
		r.recordDestroy("ok")
	}

	if r.metrics != nil {
		r.metrics.InstancesActive.Set(0)
	}
}

// Instance returns the stored instance for an id, or nil.
func (r *Registry) Instance(instanceID string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.instances[instanceID]
}

// Len returns the number of live instances.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.instances)
}

// invokeRender runs a capability with panic containment. A panicking
// renderer must not take down the host loop.
func (r *Registry) invokeRender(
	capability RenderCapability, props map[string]any, surface Surface,
) (rendered *RenderedComponent, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rendered = nil
			err = fmt.Errorf("%w: %v", errors.ErrCapabilityPanic, rec)
		}
	}()
	return capability(props, surface)
}

func (r *Registry) invokeUpdate(update func(map[string]any) error, props map[string]any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errors.ErrCapabilityPanic, rec)
		}
	}()
	return update(props)
}

func (r *Registry) invokeDestroy(destroy func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", errors.ErrCapabilityPanic, rec)
		}
	}()
	return destroy()
}

func (r *Registry) recordRender(kind, status string) {
	if r.metrics != nil {
		r.metrics.RendersTotal.WithLabelValues(kind, status).Inc()
	}
}

func (r *Registry) recordUpdate(status string) {
	if r.metrics != nil {
		r.metrics.UpdatesTotal.WithLabelValues(status).Inc()
	}
}

func (r *Registry) recordDestroy(status string) {
	if r.metrics != nil {
		r.metrics.DestroysTotal.WithLabelValues(status).Inc()
	}
}

func cloneProps(props map[string]any) map[string]any {
	cloned := make(map[string]any, len(props))
	maps.Copy(cloned, props)
	return cloned
}

func mergeProps(base, overlay map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(overlay))
	maps.Copy(merged, base)
	maps.Copy(merged, overlay)
	return merged
}
