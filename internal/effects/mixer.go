package effects

import (
	"encoding/json"
	"strings"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
)

var blendModes = map[string]struct{}{
	"normal": {}, "lighten": {}, "darken": {}, "multiply": {}, "average": {},
	"add": {}, "subtract": {}, "difference": {}, "negation": {}, "exclusion": {},
	"screen": {}, "overlay": {}, "soft_light": {}, "hard_light": {},
	"color_dodge": {}, "color_burn": {}, "linear_dodge": {}, "linear_burn": {},
	"linear_light": {}, "vivid_light": {}, "pin_light": {}, "hard_mix": {},
	"reflect": {}, "glow": {}, "phoenix": {}, "contrast": {}, "saturation": {},
	"color": {}, "luminosity": {},
}

// MixerOptions configures a mixer effect. At least one property must be set.
type MixerOptions struct {
	Common
	// Target is the id of the effect whose layers are adjusted.
	Target    string         `json:"target"`
	Fill      *caspar.Rect   `json:"fill,omitempty"`
	Opacity   *float64       `json:"opacity,omitempty"`
	Volume    *float64       `json:"volume,omitempty"`
	Blend     string         `json:"blend,omitempty"`
	Animation amcp.Animation `json:"animation,omitempty"`
}

// Mixer adjusts the mixer properties of another effect's layers. It owns no
// layers and is deactivated when the target is disposed.
type Mixer struct {
	*caspar.Base
	opts   MixerOptions
	target caspar.Effect
}

func NewMixer(target caspar.Effect, opts MixerOptions, deps Deps) (*Mixer, error) {
	if target == nil || target.Disposed() {
		return nil, invalid(KindMixer, "target effect is required")
	}
	if opts.Fill == nil && opts.Opacity == nil && opts.Volume == nil && opts.Blend == "" {
		return nil, invalid(KindMixer, "at least one of fill, opacity, volume or blend is required")
	}
	if opts.Blend != "" {
		if _, ok := blendModes[strings.ToLower(opts.Blend)]; !ok {
			return nil, invalid(KindMixer, "unknown blend mode "+opts.Blend)
		}
	}
	if opts.Fill != nil && (opts.Fill.Width < 0 || opts.Fill.Height < 0) {
		return nil, invalid(KindMixer, "fill width and height must not be negative")
	}
	layers := target.Layers()
	if len(layers) == 0 {
		return nil, invalid(KindMixer, "target effect has no layers")
	}
	m := &Mixer{opts: opts, target: target}
	m.Base = caspar.NewBase(target.Group(), m, caspar.BaseOptions{Name: KindMixer, DisposeOnStop: opts.DisposeOnStop, Logger: deps.Logger})
	m.AttachLayers(layers)
	return m, nil
}

func newMixerFromOptions(r *Registry, _ *caspar.EffectGroup, raw json.RawMessage) (caspar.Effect, error) {
	var opts MixerOptions
	if err := decodeOptions(KindMixer, raw, &opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.Target) == "" {
		return nil, invalid(KindMixer, "target is required")
	}
	target, err := r.resolve(KindMixer, opts.Target)
	if err != nil {
		return nil, err
	}
	return NewMixer(target, opts, r.deps)
}

// Target returns the adjusted effect.
func (m *Mixer) Target() caspar.Effect { return m.target }

func (m *Mixer) ActivationCommand() amcp.Command {
	g := amcp.NewGroup()
	for _, l := range m.Layers() {
		if f := m.opts.Fill; f != nil {
			g.Add(amcp.Allocate(amcp.MixerFill(f.X, f.Y, f.Width, f.Height, m.opts.Animation), l))
		}
		if m.opts.Opacity != nil {
			g.Add(amcp.Allocate(amcp.MixerOpacity(clamp(*m.opts.Opacity, 0, 1), m.opts.Animation), l))
		}
		if m.opts.Volume != nil {
			g.Add(amcp.Allocate(amcp.MixerVolume(clamp(*m.opts.Volume, 0, 1), m.opts.Animation), l))
		}
		if m.opts.Blend != "" {
			g.Add(amcp.Allocate(amcp.MixerBlend(strings.ToUpper(m.opts.Blend)), l))
		}
	}
	return g
}

func (m *Mixer) DeactivationCommand() amcp.Command {
	g := amcp.NewGroup()
	for _, l := range m.Layers() {
		g.Add(amcp.Allocate(amcp.MixerClear(), l))
	}
	return g
}
