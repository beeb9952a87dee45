package effects

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/amcp"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
	"cgmanager/internal/services"
)

func TestVideoPlaysClip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.create(t, KindVideo, f.group(t, 1, "main"), `{"clip":"AMB","loop":true,"transition":"MIX","duration":25}`)

	require.NoError(t, v.Activate(ctx))
	require.NoError(t, v.Deactivate(ctx))

	require.Equal(t, []string{
		"PLAY 1-1 AMB MIX 25 LOOP",
		"STOP 1-1",
		"CLEAR 1-1",
	}, f.transport.Lines())
}

func TestVideoWithKeyUsesLowerLayerAsMatte(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.create(t, KindVideo, f.group(t, 1, "main"), `{"clip":"FILL","key":"MATTE","auto_stop":false}`)
	require.Len(t, v.Layers(), 2)

	require.NoError(t, v.Activate(ctx))
	require.Equal(t, []string{
		"PLAY 1-1 MATTE",
		"MIXER 1-1 KEYER 1",
		"PLAY 1-2 FILL",
	}, f.transport.Lines())

	f.transport.reset()
	require.NoError(t, v.Deactivate(ctx))
	require.Equal(t, []string{
		"STOP 1-1", "CLEAR 1-1",
		"STOP 1-2", "CLEAR 1-2",
		"MIXER 1-1 CLEAR",
	}, f.transport.Lines())
}

func TestVideoPositionedOnEveryLayer(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, KindVideo, f.group(t, 1, "main"), `{"clip":"FILL","key":"MATTE","fill":{"x":0.5,"y":0,"width":0.5,"height":0.5}}`)

	require.NoError(t, v.Activate(context.Background()))
	require.Contains(t, f.transport.Lines(), "MIXER 1-1 FILL 0.5 0 0.5 0.5")
	require.Contains(t, f.transport.Lines(), "MIXER 1-2 FILL 0.5 0 0.5 0.5")
}

func TestVideoValidation(t *testing.T) {
	f := newFixture(t)
	g := f.group(t, 1, "main")
	for name, opts := range map[string]VideoOptions{
		"missing clip":       {},
		"negative seek":      {Clip: "AMB", PlayOptions: amcp.PlayOptions{Seek: -1}},
		"tween without type": {Clip: "AMB", PlayOptions: amcp.PlayOptions{Tween: "linear"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewVideo(g, opts, Deps{Logger: logging.NewNop()})
			require.ErrorIs(t, err, services.ErrValidation)
		})
	}
}

func TestVideoAutoStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.media["CLIPS/INTRO"] = &media.Item{ID: "CLIPS/INTRO", Type: media.TypeMovie, Frames: 250, FrameNum: 1, FrameDen: 25}
	v, err := NewVideo(f.group(t, 1, "main"), VideoOptions{Clip: "clips/intro", PlayOptions: amcp.PlayOptions{Seek: 50}}, f.registry.Deps())
	require.NoError(t, err)
	timer := &manualTimer{}
	v.schedule = timer.schedule

	require.NoError(t, v.Activate(ctx))
	require.Equal(t, []time.Duration{8 * time.Second}, timer.after)

	timer.fire(0)
	require.False(t, v.Active())
	require.Contains(t, f.transport.Lines(), "CLEAR 1-1")
}

func TestVideoAutoStopIgnoresStaleTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.media["AMB"] = &media.Item{ID: "AMB", Frames: 50, FrameNum: 1, FrameDen: 25}
	v, err := NewVideo(f.group(t, 1, "main"), VideoOptions{Clip: "AMB"}, f.registry.Deps())
	require.NoError(t, err)
	timer := &manualTimer{}
	v.schedule = timer.schedule

	require.NoError(t, v.Activate(ctx))
	require.NoError(t, v.Deactivate(ctx))
	require.NoError(t, v.Activate(ctx))
	require.Len(t, timer.fns, 2)

	timer.fire(0)
	require.True(t, v.Active())
	timer.fire(1)
	require.False(t, v.Active())
}

func TestVideoAutoStopSkippedForLoopsAndUnknownClips(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.media["AMB"] = &media.Item{ID: "AMB", Frames: 50, FrameNum: 1, FrameDen: 25}
	g := f.group(t, 1, "main")
	timer := &manualTimer{}

	loop, err := NewVideo(g, VideoOptions{Clip: "AMB", PlayOptions: amcp.PlayOptions{Loop: true}}, f.registry.Deps())
	require.NoError(t, err)
	loop.schedule = timer.schedule
	unknown, err := NewVideo(g, VideoOptions{Clip: "GONE"}, f.registry.Deps())
	require.NoError(t, err)
	unknown.schedule = timer.schedule

	require.NoError(t, loop.Activate(ctx))
	require.NoError(t, unknown.Activate(ctx))
	require.Empty(t, timer.after)
}

func TestPlayLength(t *testing.T) {
	item := media.Item{Frames: 100, FrameNum: 1001, FrameDen: 30000}
	require.Equal(t, time.Duration(100*1001)*time.Second/30000, playLength(item, amcp.PlayOptions{}))
	require.Equal(t, 10*1001*time.Second/30000, playLength(item, amcp.PlayOptions{Length: 10}))
	require.Zero(t, playLength(item, amcp.PlayOptions{Seek: 100}))
}
