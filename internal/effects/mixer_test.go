package effects

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/caspar"
	"cgmanager/internal/services"
)

func TestMixerAdjustsTargetLayers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.create(t, KindVideo, f.group(t, 1, "main"), `{"clip":"AMB","loop":true}`)
	m := f.create(t, KindMixer, target.Group(), `{"target":"`+target.ID()+`","opacity":1.5,"volume":0.25,"blend":"screen"}`)
	require.Equal(t, target.Layers(), m.Layers())

	require.NoError(t, caspar.ActivateBatch(ctx, target, m))
	require.Equal(t, []string{
		"PLAY 1-1 AMB LOOP",
		"MIXER 1-1 OPACITY 1",
		"MIXER 1-1 VOLUME 0.25",
		"MIXER 1-1 BLEND SCREEN",
	}, f.transport.Lines())

	f.transport.reset()
	require.NoError(t, m.Deactivate(ctx))
	require.Equal(t, []string{"MIXER 1-1 CLEAR"}, f.transport.Lines())
	require.True(t, target.Active())
}

func TestMixerDeactivatedWhenTargetDisposed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.create(t, KindColor, f.group(t, 1, "main"), `{"color":"#00FF00"}`)
	m := f.create(t, KindMixer, target.Group(), `{"target":"`+target.ID()+`","opacity":0.5}`)
	require.NoError(t, caspar.ActivateBatch(ctx, target, m))

	require.NoError(t, target.Dispose(ctx))
	require.False(t, m.Active())
	require.False(t, m.Disposed())
}

func TestDisposingMixerKeepsTargetOnAir(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	target := f.create(t, KindColor, f.group(t, 1, "main"), `{"color":"#00FF00"}`)
	m := f.create(t, KindMixer, target.Group(), `{"target":"`+target.ID()+`","opacity":0.5}`)
	require.NoError(t, caspar.ActivateBatch(ctx, target, m))
	f.transport.reset()

	require.NoError(t, m.Dispose(ctx))

	require.True(t, target.Active())
	require.False(t, target.Disposed())
	require.True(t, m.Disposed())
	for _, line := range f.transport.Lines() {
		require.NotEqual(t, "CLEAR 1-1", line, "disposing the mixer must not clear its target")
	}
}

func TestMixerValidation(t *testing.T) {
	f := newFixture(t)
	target := f.create(t, KindColor, f.group(t, 1, "main"), `{"color":"#00FF00"}`)
	for _, opts := range []string{
		`{"opacity":0.5}`,
		`{"target":"` + target.ID() + `"}`,
		`{"target":"` + target.ID() + `","blend":"sparkle"}`,
	} {
		_, err := f.registry.Create(KindMixer, target.Group(), []byte(opts))
		require.ErrorIs(t, err, services.ErrValidation, opts)
	}
}
