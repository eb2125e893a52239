package compositor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/registry"
)

// LayoutType identifies the arrangement strategy for a composed view.
type LayoutType string

const (
	LayoutSingle LayoutType = "single"
	LayoutGrid   LayoutType = "grid"
	LayoutStack  LayoutType = "stack"
)

// Spacing is the inter-item spacing tier of a stack layout.
type Spacing string

const (
	SpacingStandard Spacing = "standard"
	SpacingRelaxed  Spacing = "relaxed"
	SpacingLoose    Spacing = "loose"
)

// LayoutPlan is the concrete arrangement decided for a set of descriptors.
// Columns is meaningful only for grid layouts.
type LayoutPlan struct {
	Type    LayoutType
	Columns int
	Spacing Spacing
}

// ComposedView is a laid-out bundle of descriptors destined for one layer.
// Views are retained until explicitly destroyed; destroying a view cascades
// into registry destroys for every contained instance id.
type ComposedView struct {
	ID         string
	Layer      event.Layer
	Components []event.ComponentDescriptor
	Plan       LayoutPlan
	StyleHints map[string]any
	CreatedAt  time.Time
}

// ThemeSettings are the deployment-supplied styling inputs consumed by the
// theme merge step. Unknown or zero fields simply contribute no hints.
type ThemeSettings struct {
	Density   string
	Animation string
	Effects   map[string]any
	Palette   string
}

// Compositor turns ordered descriptor sets into layout plans and retains
// the resulting views. It holds a reference to the registry only to cascade
// view destruction into instance destruction.
type Compositor struct {
	registry *registry.Registry
	theme    ThemeSettings
	views    map[string]*ComposedView
	logger   *slog.Logger
	metrics  *metric.Metrics
	mu       sync.RWMutex
}

// NewCompositor creates a compositor bound to a registry. Metrics may be nil.
func NewCompositor(reg *registry.Registry, theme ThemeSettings, logger *slog.Logger, metrics *metric.Metrics) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		registry: reg,
		theme:    theme,
		views:    make(map[string]*ComposedView),
		logger:   logger,
		metrics:  metrics,
	}
}

// cardKinds are treated as card-like for grid inference.
var cardKinds = map[string]bool{
	"card":        true,
	"metric_card": true,
	"stat_card":   true,
}

// formKinds force the relaxed vertical stack.
var formKinds = map[string]bool{
	"form":   true,
	"input":  true,
	"survey": true,
}

// wideKinds (charts and tables) force the loose vertical stack.
var wideKinds = map[string]bool{
	"chart":     true,
	"bar_chart": true,
	"pie_chart": true,
	"table":     true,
	"timeline":  true,
}

// InferLayout decides a layout plan for an ordered descriptor set.
// The rules are applied in priority order and are deterministic:
// a single descriptor gets a single-column layout; a homogeneous card set
// gets a grid capped at three columns; any form-like descriptor forces a
// relaxed stack; any chart- or table-like descriptor forces a loose stack;
// everything else stacks with standard spacing.
func InferLayout(descs []event.ComponentDescriptor) LayoutPlan {
	if len(descs) == 1 {
		return LayoutPlan{Type: LayoutSingle, Columns: 1, Spacing: SpacingStandard}
	}

	// The grid needs one shared card-like kind; a mix of card kinds stacks
	sharedCardKind := len(descs) > 0 && cardKinds[descs[0].ComponentKind]
	for _, d := range descs {
		if d.ComponentKind != descs[0].ComponentKind {
			sharedCardKind = false
			break
		}
	}
	if sharedCardKind {
		return LayoutPlan{Type: LayoutGrid, Columns: min(len(descs), 3), Spacing: SpacingStandard}
	}

	for _, d := range descs {
		if formKinds[d.ComponentKind] {
			return LayoutPlan{Type: LayoutStack, Spacing: SpacingRelaxed}
		}
	}
	for _, d := range descs {
		if wideKinds[d.ComponentKind] {
			return LayoutPlan{Type: LayoutStack, Spacing: SpacingLoose}
		}
	}
	return LayoutPlan{Type: LayoutStack, Spacing: SpacingStandard}
}

// MergeTheme produces styling hints for a plan from theme settings. It is a
// pure function: the plan is never altered and the merge never fails.
func MergeTheme(plan LayoutPlan, theme ThemeSettings) map[string]any {
	hints := make(map[string]any)
	if theme.Density != "" {
		hints["density"] = theme.Density
	}
	if theme.Animation != "" {
		hints["animation"] = theme.Animation
	}
	if theme.Palette != "" {
		hints["palette"] = theme.Palette
	}
	for k, v := range theme.Effects {
		hints["effect_"+k] = v
	}
	if plan.Type == LayoutGrid {
		hints["grid_columns"] = plan.Columns
	}
	return hints
}

// ComposeView lays out the descriptors for a layer and retains the view.
// An explicit layout type overrides inference; pass an empty LayoutType to
// infer. Composition never renders; rendering the view's descriptors is the
// caller's step.
func (c *Compositor) ComposeView(
	layer event.Layer, descs []event.ComponentDescriptor, override LayoutType,
) (*ComposedView, error) {
	if !layer.Valid() {
		return nil, errors.WrapProtocol(errors.ErrInvalidPayload, "Compositor", "ComposeView", "layer validation")
	}

	plan := InferLayout(descs)
	if override != "" {
		plan.Type = override
		if override == LayoutGrid && plan.Columns == 0 {
			plan.Columns = min(len(descs), 3)
		}
	}

	view := &ComposedView{
		ID:         uuid.NewString(),
		Layer:      layer,
		Components: append([]event.ComponentDescriptor(nil), descs...),
		Plan:       plan,
		StyleHints: MergeTheme(plan, c.theme),
		CreatedAt:  time.Now().UTC(),
	}

	c.mu.Lock()
	c.views[view.ID] = view
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ViewsComposed.WithLabelValues(string(plan.Type)).Inc()
	}
	c.logger.Debug("composed view",
		"view_id", view.ID, "layer", string(layer),
		"layout", string(plan.Type), "components", len(descs))

	return view, nil
}

// View returns a retained view by id, or nil.
func (c *Compositor) View(viewID string) *ComposedView {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.views[viewID]
}

// Views returns the ids of all retained views.
func (c *Compositor) Views() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.views))
	for id := range c.views {
		ids = append(ids, id)
	}
	return ids
}

// DestroyView removes a view and destroys every contained instance that
// carries an id. Destroying an unknown view is a no-op.
func (c *Compositor) DestroyView(viewID string) {
	c.mu.Lock()
	view, exists := c.views[viewID]
	if exists {
		delete(c.views, viewID)
	}
	c.mu.Unlock()

	if !exists || c.registry == nil {
		return
	}

	for _, desc := range view.Components {
		if desc.InstanceID == "" {
			continue
		}
		if err := c.registry.Destroy(desc.InstanceID); err != nil {
			c.logger.Warn("cascaded destroy failed",
				"view_id", viewID, "instance_id", desc.InstanceID, "error", err)
		}
	}
}

// DestroyLayerViews removes every view retained for a layer, cascading
// instance destroys. Used when a layer is cleared or replaced.
func (c *Compositor) DestroyLayerViews(layer event.Layer) {
	c.mu.RLock()
	ids := make([]string, 0)
	for id, view := range c.views {
		if view.Layer == layer {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	for _, id := range ids {
		c.DestroyView(id)
	}
}
