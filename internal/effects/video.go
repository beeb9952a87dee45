package effects

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
)

// VideoOptions configures a video effect.
type VideoOptions struct {
	Common
	amcp.PlayOptions
	caspar.Positioned
	Clip string `json:"clip"`
	// Key is an optional matte clip. It plays on the lower layer with the
	// keyer enabled so it masks the fill above it.
	Key string `json:"key,omitempty"`
	// AutoStop deactivates the effect when the clip runs out. It defaults to
	// true and is ignored for looping playback.
	AutoStop *bool `json:"auto_stop,omitempty"`
}

func (o VideoOptions) autoStop() bool {
	return !o.Loop && (o.AutoStop == nil || *o.AutoStop)
}

func (o VideoOptions) validate() error {
	if !validClip(o.Clip) {
		return invalid(KindVideo, "clip is required")
	}
	if o.Key != "" && !validClip(o.Key) {
		return invalid(KindVideo, "key is not a valid clip name")
	}
	if o.Seek < 0 || o.Length < 0 {
		return invalid(KindVideo, "seek and length must not be negative")
	}
	if err := (Transition{o.Transition, o.Duration, o.Tween, o.Direction}).validate(KindVideo); err != nil {
		return err
	}
	return validatePositioned(KindVideo, o.Positioned)
}

type scheduleFunc func(d time.Duration, fn func()) (stop func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// Video plays a clip, optionally through a key, and stops itself when the
// clip ends.
type Video struct {
	*caspar.Base
	opts     VideoOptions
	media    MediaLookup
	schedule scheduleFunc

	mu   sync.Mutex
	gen  uint64
	stop func() bool
}

// NewVideo creates a video effect in group and allocates its layers.
func NewVideo(group *caspar.EffectGroup, opts VideoOptions, deps Deps) (*Video, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	v := &Video{opts: opts, media: deps.Media, schedule: afterFunc}
	v.Base = caspar.NewBase(group, v, caspar.BaseOptions{Name: KindVideo, DisposeOnStop: opts.DisposeOnStop, Logger: deps.Logger})
	count := 1
	if opts.Key != "" {
		count = 2
	}
	v.AllocateLayers(count)
	return v, nil
}

func newVideoFromOptions(r *Registry, group *caspar.EffectGroup, raw json.RawMessage) (caspar.Effect, error) {
	var opts VideoOptions
	if err := decodeOptions(KindVideo, raw, &opts); err != nil {
		return nil, err
	}
	return NewVideo(group, opts, r.deps)
}

// Options returns the configuration the effect was created with.
func (v *Video) Options() VideoOptions { return v.opts }

func (v *Video) ActivationCommand() amcp.Command {
	layers := v.Layers()
	if len(layers) == 0 {
		return nil
	}
	fill := layers[len(layers)-1]
	g := amcp.NewGroup()
	if v.opts.Key != "" && len(layers) > 1 {
		key := layers[0]
		g.Add(
			amcp.Allocate(amcp.Play(v.opts.Key, v.opts.PlayOptions), key),
			amcp.Allocate(amcp.MixerKeyer(true), key),
		)
	}
	g.Add(amcp.Allocate(amcp.Play(v.opts.Clip, v.opts.PlayOptions), fill))
	g.Add(v.opts.PositionCommands(layers...))
	return g
}

func (v *Video) DeactivationCommand() amcp.Command {
	layers := v.Layers()
	g := amcp.NewGroup()
	for _, l := range layers {
		g.Add(amcp.Allocate(amcp.Stop(), l), amcp.Allocate(amcp.Clear(), l))
	}
	if reset := v.opts.ResetCommands(layers...); reset != nil {
		g.Add(reset)
	} else if v.opts.Key != "" && len(layers) > 1 {
		g.Add(amcp.Allocate(amcp.MixerClear(), layers[0]))
	}
	return g
}

// OnActivated arms the auto-stop timer from the catalogued clip length.
func (v *Video) OnActivated(ctx context.Context) {
	if !v.opts.autoStop() || v.media == nil {
		return
	}
	item, err := v.media.Get(ctx, media.NormalizeID(v.opts.Clip))
	if err != nil {
		logging.WarnWithContext(v.Logger(), "clip length lookup failed", "video_autostop_lookup",
			logging.Error(err),
			logging.String(logging.FieldImpact, "video will not stop on its own"),
			logging.String(logging.FieldErrorHint, "refresh the media catalogue"))
		return
	}
	if item == nil {
		v.Logger().Debug("clip not catalogued; auto-stop disabled", logging.String("clip", v.opts.Clip))
		return
	}
	remaining := playLength(*item, v.opts.PlayOptions)
	if remaining <= 0 {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stop != nil {
		v.stop()
	}
	v.gen++
	gen := v.gen
	v.stop = v.schedule(remaining, func() { v.expire(gen) })
	v.Logger().Debug("auto-stop armed", logging.Duration("after", remaining))
}

// OnDeactivated cancels a pending auto-stop.
func (v *Video) OnDeactivated() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen++
	if v.stop != nil {
		v.stop()
		v.stop = nil
	}
}

func (v *Video) expire(gen uint64) {
	v.mu.Lock()
	current := v.gen == gen
	if current {
		v.stop = nil
	}
	v.mu.Unlock()
	if !current {
		return
	}
	v.Logger().Info("clip finished; stopping video", logging.String("clip", v.opts.Clip))
	if err := v.Deactivate(context.Background()); err != nil {
		logging.WarnWithContext(v.Logger(), "auto-stop failed", "video_autostop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "last frame stays on air"),
			logging.String(logging.FieldErrorHint, "stop the effect manually"))
	}
}

// playLength is the time the clip plays for given seek and length frames.
func playLength(item media.Item, opts amcp.PlayOptions) time.Duration {
	frames := item.Frames - int64(opts.Seek)
	if opts.Length > 0 && int64(opts.Length) < frames {
		frames = int64(opts.Length)
	}
	if frames <= 0 {
		return 0
	}
	item.Frames = frames
	return item.Duration()
}
