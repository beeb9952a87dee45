package effects

import (
	"encoding/json"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
)

// ColorOptions configures a solid color effect.
type ColorOptions struct {
	Common
	Transition
	caspar.Positioned
	// Color is #RRGGBB or #AARRGGBB.
	Color string `json:"color"`
}

// Color fills one layer with a solid color.
type Color struct {
	*caspar.Base
	opts ColorOptions
}

func NewColor(group *caspar.EffectGroup, opts ColorOptions, deps Deps) (*Color, error) {
	if !hexColor.MatchString(opts.Color) {
		return nil, invalid(KindColor, "color must be #RRGGBB or #AARRGGBB")
	}
	if err := opts.Transition.validate(KindColor); err != nil {
		return nil, err
	}
	if err := validatePositioned(KindColor, opts.Positioned); err != nil {
		return nil, err
	}
	c := &Color{opts: opts}
	c.Base = caspar.NewBase(group, c, caspar.BaseOptions{Name: KindColor, DisposeOnStop: opts.DisposeOnStop, Logger: deps.Logger})
	c.AllocateLayers(1)
	return c, nil
}

func newColorFromOptions(r *Registry, group *caspar.EffectGroup, raw json.RawMessage) (caspar.Effect, error) {
	var opts ColorOptions
	if err := decodeOptions(KindColor, raw, &opts); err != nil {
		return nil, err
	}
	return NewColor(group, opts, r.deps)
}

func (c *Color) ActivationCommand() amcp.Command {
	layers := c.Layers()
	if len(layers) == 0 {
		return nil
	}
	g := amcp.NewGroup(amcp.Allocate(amcp.Play(amcp.ColorSource(c.opts.Color), c.opts.Transition.play()), layers[0]))
	g.Add(c.opts.PositionCommands(layers...))
	return g
}

func (c *Color) DeactivationCommand() amcp.Command {
	layers := c.Layers()
	g := amcp.NewGroup()
	for _, l := range layers {
		g.Add(amcp.Allocate(amcp.Clear(), l))
	}
	g.Add(c.opts.ResetCommands(layers...))
	return g
}
