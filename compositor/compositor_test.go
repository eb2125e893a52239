package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGoodCatalyst/chameleon/event"
	"github.com/TheGoodCatalyst/chameleon/registry"
)

func descs(kinds ...string) []event.ComponentDescriptor {
	out := make([]event.ComponentDescriptor, len(kinds))
	for i, k := range kinds {
		out[i] = event.ComponentDescriptor{ComponentKind: k}
	}
	return out
}

func TestInferLayoutSingleDescriptor(t *testing.T) {
	plan := InferLayout(descs("form"))
	assert.Equal(t, LayoutSingle, plan.Type)
	assert.Equal(t, 1, plan.Columns)
}

func TestInferLayoutCardGrid(t *testing.T) {
	plan := InferLayout(descs("card", "card", "card", "card", "card"))
	assert.Equal(t, LayoutGrid, plan.Type)
	assert.Equal(t, 3, plan.Columns)

	plan = InferLayout(descs("card", "card"))
	assert.Equal(t, LayoutGrid, plan.Type)
	assert.Equal(t, 2, plan.Columns)
}

func TestInferLayoutMixedCardKindsDoNotGrid(t *testing.T) {
	// Card-like kinds must all match; a mix falls through to the stack rules
	plan := InferLayout(descs("card", "stat_card", "metric_card"))
	assert.Equal(t, LayoutStack, plan.Type)
	assert.Equal(t, SpacingStandard, plan.Spacing)

	plan = InferLayout(descs("metric_card", "metric_card"))
	assert.Equal(t, LayoutGrid, plan.Type)
	assert.Equal(t, 2, plan.Columns)
}

func TestInferLayoutFormStack(t *testing.T) {
	plan := InferLayout(descs("card", "form"))
	assert.Equal(t, LayoutStack, plan.Type)
	assert.Equal(t, SpacingRelaxed, plan.Spacing)
}

func TestInferLayoutChartStack(t *testing.T) {
	plan := InferLayout(descs("card", "bar_chart"))
	assert.Equal(t, LayoutStack, plan.Type)
	assert.Equal(t, SpacingLoose, plan.Spacing)
}

func TestInferLayoutFormBeatsChart(t *testing.T) {
	// Form-like presence wins over chart-like presence
	plan := InferLayout(descs("table", "form"))
	assert.Equal(t, SpacingRelaxed, plan.Spacing)
}

func TestInferLayoutDefaultStack(t *testing.T) {
	plan := InferLayout(descs("card", "text", "text"))
	assert.Equal(t, LayoutStack, plan.Type)
	assert.Equal(t, SpacingStandard, plan.Spacing)
}

func TestMergeThemeIsPure(t *testing.T) {
	plan := LayoutPlan{Type: LayoutGrid, Columns: 3, Spacing: SpacingStandard}
	theme := ThemeSettings{
		Density:   "compact",
		Animation: "reduced",
		Effects:   map[string]any{"blur": true},
	}

	hints := MergeTheme(plan, theme)
	assert.Equal(t, "compact", hints["density"])
	assert.Equal(t, "reduced", hints["animation"])
	assert.Equal(t, true, hints["effect_blur"])
	assert.Equal(t, 3, hints["grid_columns"])

	// Plan unchanged
	assert.Equal(t, LayoutPlan{Type: LayoutGrid, Columns: 3, Spacing: SpacingStandard}, plan)

	// Empty theme contributes nothing but never fails
	empty := MergeTheme(LayoutPlan{Type: LayoutStack}, ThemeSettings{})
	assert.Empty(t, empty)
}

func TestComposeViewAssignsIDAndRetains(t *testing.T) {
	c := NewCompositor(nil, ThemeSettings{}, nil, nil)

	view, err := c.ComposeView(event.LayerFocus, descs("card", "card"), "")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.NotEmpty(t, view.ID)
	assert.False(t, view.CreatedAt.IsZero())
	assert.Equal(t, LayoutGrid, view.Plan.Type)
	assert.Same(t, view, c.View(view.ID))

	other, err := c.ComposeView(event.LayerFocus, descs("card"), "")
	require.NoError(t, err)
	assert.NotEqual(t, view.ID, other.ID)
}

func TestComposeViewExplicitOverrideWins(t *testing.T) {
	c := NewCompositor(nil, ThemeSettings{}, nil, nil)

	view, err := c.ComposeView(event.LayerFocus, descs("form", "form"), LayoutGrid)
	require.NoError(t, err)
	assert.Equal(t, LayoutGrid, view.Plan.Type)
	assert.Equal(t, 2, view.Plan.Columns)
}

func TestComposeViewRejectsInvalidLayer(t *testing.T) {
	c := NewCompositor(nil, ThemeSettings{}, nil, nil)

	_, err := c.ComposeView(event.Layer("backdrop"), descs("card"), "")
	assert.Error(t, err)
}

func TestDestroyViewCascadesIntoRegistry(t *testing.T) {
	reg := registry.NewRegistry(nil, nil)
	destroyed := 0
	require.NoError(t, reg.RegisterCapability("card", func(map[string]any, registry.Surface) (*registry.RenderedComponent, error) {
		return &registry.RenderedComponent{
			Destroy: func() error { destroyed++; return nil },
		}, nil
	}))

	c := NewCompositor(reg, ThemeSettings{}, nil, nil)

	set := []event.ComponentDescriptor{
		{ComponentKind: "card", InstanceID: "a"},
		{ComponentKind: "card", InstanceID: "b"},
		{ComponentKind: "card"},
	}
	for _, d := range set {
		_, err := reg.Render(d, nil)
		require.NoError(t, err)
	}
	view, err := c.ComposeView(event.LayerFocus, set, "")
	require.NoError(t, err)

	c.DestroyView(view.ID)
	assert.Equal(t, 2, destroyed)
	assert.Equal(t, 0, reg.Len())
	assert.Nil(t, c.View(view.ID))

	// Unknown view id is a no-op
	c.DestroyView("missing")
	assert.Equal(t, 2, destroyed)
}

func TestDestroyLayerViews(t *testing.T) {
	c := NewCompositor(nil, ThemeSettings{}, nil, nil)

	focus, err := c.ComposeView(event.LayerFocus, descs("card"), "")
	require.NoError(t, err)
	peripheral, err := c.ComposeView(event.LayerPeripheral, descs("card"), "")
	require.NoError(t, err)

	c.DestroyLayerViews(event.LayerFocus)
	assert.Nil(t, c.View(focus.ID))
	assert.NotNil(t, c.View(peripheral.ID))
}
