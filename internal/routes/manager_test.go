package routes_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/logging"
	"cgmanager/internal/routes"
	"cgmanager/internal/services"
	"cgmanager/internal/testsupport"
)

type harness struct {
	engine *amcp.MockServer
	exec   *caspar.Executor
	store  *routes.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	engine := testsupport.StartEngine(t)
	conn := testsupport.Connect(t, engine.Addr())
	exec := caspar.NewExecutor(conn, logging.NewNop())
	for _, id := range []int{1, 2} {
		ch, err := exec.AllocateChannel(id)
		require.NoError(t, err)
		ch.Group("background")
		ch.Group("main")
	}
	cfg := testsupport.NewConfig(t)
	return &harness{
		engine: engine,
		exec:   exec,
		store:  routes.NewStore(testsupport.MustOpenDB(t, cfg)),
	}
}

func (h *harness) manager() *routes.Manager {
	return routes.NewManager(h.store, h.exec, logging.NewNop())
}

func TestCreateStartsRoute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.manager()

	r, err := m.Create(ctx, routes.Spec{Name: "program", SourceChannel: 2, DestChannel: 1, DestGroup: "main"})
	require.NoError(t, err)
	require.True(t, r.Enabled)

	producer, ok := h.engine.Layer(amcp.At(1, 1))
	require.True(t, ok)
	require.Equal(t, "route://2", producer)

	status, err := m.Get(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, status.Active)
	require.NotEmpty(t, status.EffectID)
	require.Equal(t, "program", status.Name)
}

func TestCreateDisabledSendsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	disabled := false

	r, err := h.manager().Create(ctx, routes.Spec{SourceChannel: 2, SourceLayer: 10, DestChannel: 1, DestGroup: "main", Enabled: &disabled})
	require.NoError(t, err)
	require.False(t, r.Enabled)
	require.Empty(t, h.engine.Layers(1))
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	m := newHarness(t).manager()

	_, err := m.Create(ctx, routes.Spec{SourceChannel: 0, DestChannel: 1, DestGroup: "main"})
	require.ErrorIs(t, err, services.ErrValidation)
	_, err = m.Create(ctx, routes.Spec{SourceChannel: 1, DestChannel: 1, DestGroup: "main"})
	require.ErrorIs(t, err, services.ErrValidation)
	_, err = m.Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 9, DestGroup: "main"})
	require.ErrorIs(t, err, services.ErrNotFound)
	_, err = m.Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 1, DestGroup: "nowhere"})
	require.ErrorIs(t, err, services.ErrNotFound)
}

func TestDisableAndEnable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.manager()
	r, err := m.Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 1, DestGroup: "main"})
	require.NoError(t, err)

	status, err := m.Disable(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, status.Enabled)
	require.False(t, status.Active)
	require.Empty(t, h.engine.Layers(1))

	stored, err := h.store.Get(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, stored.Enabled)

	status, err = m.Enable(ctx, r.ID)
	require.NoError(t, err)
	require.True(t, status.Active)
	producer, ok := h.engine.Layer(amcp.At(1, 1))
	require.True(t, ok)
	require.Equal(t, "route://2", producer)
}

func TestEnableRejectedByEngineKeepsRouteDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.manager()
	disabled := false
	r, err := m.Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 1, DestGroup: "main", Enabled: &disabled})
	require.NoError(t, err)

	h.engine.Fail("PLAY", 404)
	_, err = m.Enable(ctx, r.ID)
	require.ErrorIs(t, err, services.ErrEngine)

	stored, err := h.store.Get(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, stored.Enabled)
	_, live := m.Effect(r.ID)
	require.False(t, live)
	ch, _ := h.exec.Channel(1)
	g, _ := ch.LookupGroup("main")
	require.Empty(t, g.Effects())
}

func TestCreateRejectedByEngineStoresRouteDisabled(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.engine.Fail("PLAY", 404)

	r, err := h.manager().Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 1, DestGroup: "main"})
	require.ErrorIs(t, err, services.ErrEngine)
	require.NotNil(t, r)
	require.False(t, r.Enabled)

	stored, err := h.store.Get(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, stored.Enabled)
}

func TestRestoreStartsEnabledRoutes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	disabled := false
	first := h.manager()
	a, err := first.Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 1, DestGroup: "main", Enabled: &disabled})
	require.NoError(t, err)
	_, err = h.store.SetEnabled(ctx, a.ID, true, a.UpdatedAt)
	require.NoError(t, err)
	_, err = first.Create(ctx, routes.Spec{SourceChannel: 1, SourceLayer: 5, DestChannel: 2, DestGroup: "background", Enabled: &disabled})
	require.NoError(t, err)

	second := h.manager()
	require.NoError(t, second.Restore(ctx))

	list, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].Active)
	require.False(t, list[1].Active)
	require.Len(t, h.engine.Layers(1), 1)
	require.Empty(t, h.engine.Layers(2))
}

func TestDeleteStopsRoute(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	m := h.manager()
	r, err := m.Create(ctx, routes.Spec{SourceChannel: 2, DestChannel: 1, DestGroup: "main"})
	require.NoError(t, err)

	require.NoError(t, m.Delete(ctx, r.ID))
	require.Empty(t, h.engine.Layers(1))
	require.ErrorIs(t, m.Delete(ctx, r.ID), services.ErrNotFound)

	list, err := m.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)
}
