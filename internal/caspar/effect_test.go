package caspar_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/services"
)

func TestDeactivateInactiveEffectSendsNothing(t *testing.T) {
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})

	require.NoError(t, e.Deactivate(context.Background()))
	require.Empty(t, transport.Batches())
	require.False(t, e.Active())
}

func TestActivateSendsOnceAndRegistersOnce(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})

	require.NoError(t, e.Activate(ctx))
	require.NoError(t, e.Activate(ctx))

	require.Equal(t, []string{"PLAY 1-1 AMB"}, transport.Lines())
	require.True(t, e.Active())
	require.Equal(t, []caspar.Effect{e}, e.Layers()[0].ActiveEffects())
}

func TestActivateAfterDeactivateSendsAgain(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})

	require.NoError(t, e.Activate(ctx))
	require.NoError(t, e.Deactivate(ctx))
	require.Empty(t, e.Layers()[0].ActiveEffects())
	require.NoError(t, e.Activate(ctx))

	require.Equal(t, []string{"PLAY 1-1 AMB", "CLEAR 1-1", "PLAY 1-1 AMB"}, transport.Lines())
}

func TestActivationRejectedByEngineRollsBack(t *testing.T) {
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "MISSING", 1, caspar.BaseOptions{})
	transport.fail("PLAY", 404)

	err := e.Activate(context.Background())

	var amcpErr *amcp.Error
	require.ErrorAs(t, err, &amcpErr)
	require.Equal(t, 404, amcpErr.Code)
	require.True(t, errors.Is(err, services.ErrEngine))
	require.False(t, e.Active())
	require.Empty(t, e.Layers()[0].ActiveEffects())
	require.Equal(t, 1, e.Layers()[0].CasparLayer(), "allocation was reconciled before the rejected command")
}

func TestActivateWhileDisconnectedFails(t *testing.T) {
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})
	transport.setConnected(false)

	err := e.Activate(context.Background())

	require.ErrorIs(t, err, amcp.ErrNotConnected)
	require.False(t, e.Active())
	require.Empty(t, transport.Batches())
}

func TestActivateBatchUsesOneTransmission(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	main := ch.Group("main")
	a := newClipEffect(main, "A", 1, caspar.BaseOptions{})
	b := newClipEffect(main, "B", 1, caspar.BaseOptions{})
	c := newClipEffect(main, "C", 1, caspar.BaseOptions{})

	require.NoError(t, caspar.ActivateBatch(ctx, a, b, c, a))
	require.Equal(t, [][]string{{"PLAY 1-1 A", "PLAY 1-2 B", "PLAY 1-3 C"}}, transport.Batches())

	transport.reset()
	require.NoError(t, caspar.DeactivateBatch(ctx, c, a))
	require.Equal(t, [][]string{{"CLEAR 1-3", "CLEAR 1-1"}}, transport.Batches())
	require.True(t, b.Active())
	require.False(t, a.Active())
}

func TestActivateBatchFailureLeavesNothingActive(t *testing.T) {
	_, ch, transport := newTestChannel(t)
	main := ch.Group("main")
	a := newClipEffect(main, "A", 1, caspar.BaseOptions{})
	b := newClipEffect(main, "B", 1, caspar.BaseOptions{})
	transport.setErr(errors.New("broken pipe"))

	err := caspar.ActivateBatch(context.Background(), a, b)

	require.Error(t, err)
	require.False(t, a.Active())
	require.False(t, b.Active())
}

func TestDisposeReleasesLayers(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	main := ch.Group("main")
	e := newClipEffect(main, "AMB", 2, caspar.BaseOptions{})
	require.NoError(t, e.Activate(ctx))
	layers := e.Layers()

	require.NoError(t, e.Dispose(ctx))
	require.NoError(t, e.Dispose(ctx))

	require.True(t, e.Disposed())
	require.False(t, e.Active())
	require.Empty(t, e.Layers())
	require.Empty(t, main.Effects())
	for _, l := range layers {
		_, ok := ch.Layer(l.ID())
		require.False(t, ok)
		require.Zero(t, l.ChannelID())
	}
	require.Equal(t, []string{"PLAY 1-1 AMB", "PLAY 1-2 AMB", "CLEAR 1-1", "CLEAR 1-2"}, transport.Lines())

	err := e.Activate(ctx)
	require.ErrorIs(t, err, caspar.ErrDisposed)
}

func TestDisposeDeactivatesBorrowingEffects(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	owner := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})
	require.NoError(t, owner.Activate(ctx))
	fade := newOverlayEffect(owner)
	require.NoError(t, fade.Activate(ctx))
	transport.reset()

	require.NoError(t, owner.Dispose(ctx))

	require.False(t, fade.Active())
	require.Equal(t, [][]string{{"CLEAR 1-1"}, {"MIXER 1-1 CLEAR"}}, transport.Batches())

	transport.reset()
	require.NoError(t, fade.Dispose(ctx))
	require.Empty(t, transport.Batches())
}

func TestDisposingBorrowingEffectKeepsOwnerActive(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	owner := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})
	fade := newOverlayEffect(owner)
	require.NoError(t, caspar.ActivateBatch(ctx, owner, fade))
	transport.reset()

	require.NoError(t, fade.Dispose(ctx))

	require.True(t, owner.Active())
	require.True(t, fade.Disposed())
	require.Equal(t, [][]string{{"MIXER 1-1 CLEAR"}}, transport.Batches())
	require.Equal(t, []caspar.Effect{owner}, owner.Layers()[0].ActiveEffects())
}

func TestBorrowingEffectDoesNotReleaseLayers(t *testing.T) {
	ctx := context.Background()
	_, ch, _ := newTestChannel(t)
	owner := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})
	fade := newOverlayEffect(owner)

	require.NoError(t, fade.Dispose(ctx))

	_, ok := ch.Layer(owner.Layers()[0].ID())
	require.True(t, ok)
	require.Equal(t, []caspar.Effect{owner}, ch.Group("main").Effects())
}

func TestDisposeOnStop(t *testing.T) {
	ctx := context.Background()
	_, ch, _ := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{DisposeOnStop: true})
	require.NoError(t, e.Activate(ctx))
	layer := e.Layers()[0]

	require.NoError(t, e.Deactivate(ctx))

	require.True(t, e.Disposed())
	_, ok := ch.Layer(layer.ID())
	require.False(t, ok)
}

func TestDisposeOnStopSkippedWhenReactivatedDuringDeactivation(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{DisposeOnStop: true})
	require.NoError(t, e.Activate(ctx))

	var once sync.Once
	var reactivateErr error
	transport.setHook(func(lines []string) {
		if lines[0] != "CLEAR 1-1" {
			return
		}
		once.Do(func() { reactivateErr = e.Activate(ctx) })
	})

	require.NoError(t, e.Deactivate(ctx))

	require.NoError(t, reactivateErr)
	require.False(t, e.Disposed())
	require.True(t, e.Active())
	require.Equal(t, []caspar.Effect{e}, e.Layers()[0].ActiveEffects())
}

func TestDeactivationFailureDoesNotDispose(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{DisposeOnStop: true})
	require.NoError(t, e.Activate(ctx))
	transport.fail("CLEAR", 500)

	require.Error(t, e.Deactivate(ctx))

	require.False(t, e.Active())
	require.False(t, e.Disposed())
}

func TestEffectEvents(t *testing.T) {
	ctx := context.Background()
	exec, ch, _ := newTestChannel(t)
	var mu sync.Mutex
	var kinds []caspar.EventKind
	exec.OnEvent(func(ev caspar.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	})

	e := newClipEffect(ch.Group("main"), "AMB", 1, caspar.BaseOptions{})
	require.NoError(t, e.Activate(ctx))
	require.NoError(t, e.Dispose(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []caspar.EventKind{
		caspar.EventReconciled,
		caspar.EventEffectActivated,
		caspar.EventEffectDeactivated,
		caspar.EventEffectDisposed,
	}, kinds)
}

type recordingEffect struct {
	*clipEffect
	mu      sync.Mutex
	updates int
	started int
	stopped int
}

func (e *recordingEffect) UpdatePositions(context.Context) error {
	e.mu.Lock()
	e.updates++
	e.mu.Unlock()
	return nil
}

func (e *recordingEffect) OnActivated(context.Context) {
	e.mu.Lock()
	e.started++
	e.mu.Unlock()
}

func (e *recordingEffect) OnDeactivated() {
	e.mu.Lock()
	e.stopped++
	e.mu.Unlock()
}

func newRecordingEffect(group *caspar.EffectGroup, clip string) *recordingEffect {
	e := &recordingEffect{clipEffect: &clipEffect{clip: clip}}
	e.Base = caspar.NewBase(group, e, caspar.BaseOptions{Name: "recording"})
	e.AllocateLayers(1)
	return e
}

func TestHooksAndPositionUpdates(t *testing.T) {
	ctx := context.Background()
	_, ch, _ := newTestChannel(t)
	main := ch.Group("main")
	rec := newRecordingEffect(main, "AMB")
	require.NoError(t, rec.Activate(ctx))
	require.Equal(t, 1, rec.started)
	require.Zero(t, rec.updates, "effects only hear about reconciliations while active")

	ch.AllocateLayers(1, 0)
	require.NoError(t, ch.ExecuteAllocation(ctx))
	require.Equal(t, 1, rec.updates)
	require.Equal(t, 2, rec.Layers()[0].CasparLayer())

	require.NoError(t, rec.Deactivate(ctx))
	require.Equal(t, 1, rec.stopped)
}

type pair struct {
	*caspar.Base
	children []caspar.Effect
}

func (p *pair) Children() []caspar.Effect { return p.children }

func (p *pair) ActivationCommand() amcp.Command { return nil }

func (p *pair) DeactivationCommand() amcp.Command { return nil }

func TestParentEffectsActivateChildrenTogether(t *testing.T) {
	ctx := context.Background()
	_, ch, transport := newTestChannel(t)
	main := ch.Group("main")
	a := newClipEffect(main, "A", 1, caspar.BaseOptions{})
	b := newClipEffect(main, "B", 1, caspar.BaseOptions{})
	p := &pair{children: []caspar.Effect{a, b, a}}
	p.Base = caspar.NewBase(main, p, caspar.BaseOptions{Name: "pair"})

	require.NoError(t, caspar.ActivateBatch(ctx, p))
	require.Equal(t, [][]string{{"PLAY 1-1 A", "PLAY 1-2 B"}}, transport.Batches())
	require.True(t, a.Active())
	require.True(t, b.Active())

	require.NoError(t, caspar.DeactivateBatch(ctx, p))
	require.False(t, a.Active())
	require.False(t, b.Active())
}
