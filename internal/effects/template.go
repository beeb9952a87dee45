package effects

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/services"
)

const defaultCGLayer = 1

// TemplateOptions configures an HTML/Flash template effect.
type TemplateOptions struct {
	Common
	caspar.Positioned
	Template string          `json:"template"`
	Data     json.RawMessage `json:"data,omitempty"`
	CGLayer  int             `json:"cg_layer,omitempty"`
}

// Template plays a template graphic and accepts data updates while on air.
type Template struct {
	*caspar.Base
	opts    TemplateOptions
	cgLayer int

	mu   sync.Mutex
	data json.RawMessage
}

func NewTemplate(group *caspar.EffectGroup, opts TemplateOptions, deps Deps) (*Template, error) {
	if !validClip(opts.Template) {
		return nil, invalid(KindTemplate, "template is required")
	}
	if len(opts.Data) > 0 && !json.Valid(opts.Data) {
		return nil, invalid(KindTemplate, "data must be valid JSON")
	}
	if opts.CGLayer < 0 {
		return nil, invalid(KindTemplate, "cg_layer must not be negative")
	}
	if err := validatePositioned(KindTemplate, opts.Positioned); err != nil {
		return nil, err
	}
	cgLayer := opts.CGLayer
	if cgLayer == 0 {
		cgLayer = defaultCGLayer
	}
	t := &Template{opts: opts, cgLayer: cgLayer, data: opts.Data}
	t.Base = caspar.NewBase(group, t, caspar.BaseOptions{Name: KindTemplate, DisposeOnStop: opts.DisposeOnStop, Logger: deps.Logger})
	t.AllocateLayers(1)
	return t, nil
}

func newTemplateFromOptions(r *Registry, group *caspar.EffectGroup, raw json.RawMessage) (caspar.Effect, error) {
	var opts TemplateOptions
	if err := decodeOptions(KindTemplate, raw, &opts); err != nil {
		return nil, err
	}
	return NewTemplate(group, opts, r.deps)
}

func (t *Template) currentData() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.data) == 0 {
		return nil
	}
	return t.data
}

func (t *Template) ActivationCommand() amcp.Command {
	layers := t.Layers()
	if len(layers) == 0 {
		return nil
	}
	g := amcp.NewGroup(amcp.Allocate(amcp.CgAdd(t.cgLayer, t.opts.Template, true, t.currentData()), layers[0]))
	g.Add(t.opts.PositionCommands(layers...))
	return g
}

func (t *Template) DeactivationCommand() amcp.Command {
	layers := t.Layers()
	g := amcp.NewGroup()
	for _, l := range layers {
		g.Add(amcp.Allocate(amcp.CgStop(t.cgLayer), l), amcp.Allocate(amcp.Clear(), l))
	}
	g.Add(t.opts.ResetCommands(layers...))
	return g
}

// Update replaces the template data. While active the new data is sent
// immediately; otherwise it is used by the next activation.
func (t *Template) Update(ctx context.Context, data json.RawMessage) error {
	if !json.Valid(data) {
		return invalid(KindTemplate, "data must be valid JSON")
	}
	t.mu.Lock()
	t.data = append(json.RawMessage(nil), data...)
	t.mu.Unlock()
	if !t.Active() {
		return nil
	}
	layers := t.Layers()
	if len(layers) == 0 {
		return nil
	}
	_, err := t.Executor().Execute(ctx, amcp.Allocate(amcp.CgUpdate(t.cgLayer, data), layers[0]))
	return err
}

// Invoke calls a method exposed by the running template.
func (t *Template) Invoke(ctx context.Context, method string) error {
	method = strings.TrimSpace(method)
	if method == "" {
		return invalid(KindTemplate, "method is required")
	}
	if !t.Active() {
		return services.Wrap(services.ErrConflict, "effects", "invoke", fmt.Sprintf("template %s is not active", t.ID()), nil)
	}
	layers := t.Layers()
	if len(layers) == 0 {
		return nil
	}
	_, err := t.Executor().Execute(ctx, amcp.Allocate(amcp.CgInvoke(t.cgLayer, method), layers[0]))
	return err
}
