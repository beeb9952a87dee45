package effects

import (
	"context"
	"encoding/json"
	"sync"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/logging"
)

// RouteOptions configures a route effect. The source is either a fixed
// channel/layer pair or another effect, whose topmost layer is followed as
// it moves.
type RouteOptions struct {
	Common
	Transition
	caspar.Positioned
	SourceChannel int    `json:"source_channel,omitempty"`
	SourceLayer   int    `json:"source_layer,omitempty"`
	SourceEffect  string `json:"source_effect,omitempty"`
}

// Route mirrors another channel or layer onto one layer.
type Route struct {
	*caspar.Base
	opts   RouteOptions
	source caspar.Effect

	mu         sync.Mutex
	lastSource amcp.Position
}

// NewRoute creates a route in group. source is required when
// opts.SourceEffect is set and ignored otherwise.
func NewRoute(group *caspar.EffectGroup, opts RouteOptions, source caspar.Effect, deps Deps) (*Route, error) {
	switch {
	case opts.SourceEffect != "" && opts.SourceChannel != 0:
		return nil, invalid(KindRoute, "set either source_effect or source_channel, not both")
	case opts.SourceEffect != "":
		if source == nil {
			return nil, invalid(KindRoute, "source effect is not available")
		}
		if len(source.Layers()) == 0 {
			return nil, invalid(KindRoute, "source effect has no layers")
		}
	case opts.SourceChannel < 1:
		return nil, invalid(KindRoute, "source_channel or source_effect is required")
	case opts.SourceLayer < 0:
		return nil, invalid(KindRoute, "source_layer must not be negative")
	case opts.SourceLayer == 0 && opts.SourceChannel == group.Channel().ID():
		return nil, invalid(KindRoute, "a channel cannot be routed onto itself")
	}
	if err := opts.Transition.validate(KindRoute); err != nil {
		return nil, err
	}
	if err := validatePositioned(KindRoute, opts.Positioned); err != nil {
		return nil, err
	}
	if opts.SourceEffect == "" {
		source = nil
	}
	r := &Route{opts: opts, source: source}
	r.Base = caspar.NewBase(group, r, caspar.BaseOptions{Name: KindRoute, DisposeOnStop: opts.DisposeOnStop, Logger: deps.Logger})
	r.AllocateLayers(1)
	return r, nil
}

func newRouteFromOptions(r *Registry, group *caspar.EffectGroup, raw json.RawMessage) (caspar.Effect, error) {
	var opts RouteOptions
	if err := decodeOptions(KindRoute, raw, &opts); err != nil {
		return nil, err
	}
	var source caspar.Effect
	if opts.SourceEffect != "" && opts.SourceChannel == 0 {
		var err error
		if source, err = r.resolve(KindRoute, opts.SourceEffect); err != nil {
			return nil, err
		}
	}
	return NewRoute(group, opts, source, r.deps)
}

// Source returns the engine position currently routed, if known.
func (r *Route) Source() (amcp.Position, bool) {
	if r.source == nil {
		return amcp.At(r.opts.SourceChannel, r.opts.SourceLayer).AMCPPosition()
	}
	layers := r.source.Layers()
	if len(layers) == 0 {
		return amcp.Position{}, false
	}
	return layers[len(layers)-1].AMCPPosition()
}

// WatchesChannel reports whether the routed layer lives on channel, so its
// renumbering must trigger UpdatePositions.
func (r *Route) WatchesChannel(channel int) bool {
	if r.source == nil {
		return false
	}
	for _, l := range r.source.Layers() {
		if l.ChannelID() == channel {
			return true
		}
	}
	return false
}

func (r *Route) ActivationCommand() amcp.Command {
	layers := r.Layers()
	pos, ok := r.Source()
	if len(layers) == 0 || !ok {
		logging.WarnWithContext(r.Logger(), "route source unavailable", "route_source_missing",
			logging.String(logging.FieldImpact, "destination layer stays empty"),
			logging.String(logging.FieldErrorHint, "check that the source effect still exists"))
		return nil
	}
	r.mu.Lock()
	r.lastSource = pos
	r.mu.Unlock()
	g := amcp.NewGroup(amcp.Allocate(amcp.Play(amcp.RouteSource(pos), r.opts.Transition.play()), layers[0]))
	g.Add(r.opts.PositionCommands(layers...))
	return g
}

func (r *Route) DeactivationCommand() amcp.Command {
	layers := r.Layers()
	g := amcp.NewGroup()
	for _, l := range layers {
		g.Add(amcp.Allocate(amcp.Clear(), l))
	}
	g.Add(r.opts.ResetCommands(layers...))
	return g
}

// UpdatePositions re-issues the route when the source layer was renumbered.
func (r *Route) UpdatePositions(ctx context.Context) error {
	if !r.Active() {
		return nil
	}
	pos, ok := r.Source()
	layers := r.Layers()
	if !ok || len(layers) == 0 {
		return nil
	}
	r.mu.Lock()
	if pos == r.lastSource {
		r.mu.Unlock()
		return nil
	}
	previous := r.lastSource
	r.lastSource = pos
	r.mu.Unlock()

	r.Logger().Debug("route source moved", logging.String("from", previous.String()), logging.String("to", pos.String()))
	_, err := r.Executor().Execute(ctx, amcp.Allocate(amcp.Play(amcp.RouteSource(pos), amcp.PlayOptions{}), layers[0]))
	return err
}
