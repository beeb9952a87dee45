package effects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
)

// ChildSpec describes one member of a composite.
type ChildSpec struct {
	Type string `json:"type"`
	// Group names an existing group on the composite's channel. Empty means
	// the composite's own group.
	Group   string          `json:"group,omitempty"`
	Options json.RawMessage `json:"options,omitempty"`
}

// CompositeOptions configures a composite effect. Children may refer to
// earlier siblings as "#0", "#1" and so on wherever an effect id is expected.
type CompositeOptions struct {
	Common
	Children []ChildSpec `json:"children"`
}

// Composite starts and stops several effects as one. Batch operations act on
// the children directly, in a single transmission.
type Composite struct {
	*caspar.Base
	opts     CompositeOptions
	children []caspar.Effect
}

func newCompositeFromOptions(r *Registry, group *caspar.EffectGroup, raw json.RawMessage) (caspar.Effect, error) {
	var opts CompositeOptions
	if err := decodeOptions(KindComposite, raw, &opts); err != nil {
		return nil, err
	}
	return NewComposite(r, group, opts)
}

// NewComposite creates every child through r. If any child fails the ones
// already created are disposed.
func NewComposite(r *Registry, group *caspar.EffectGroup, opts CompositeOptions) (*Composite, error) {
	if len(opts.Children) == 0 {
		return nil, invalid(KindComposite, "at least one child is required")
	}
	var created []caspar.Effect
	scoped := r.withSiblings(&created)
	for i, spec := range opts.Children {
		target := group
		if name := strings.TrimSpace(spec.Group); name != "" {
			g, ok := group.Channel().LookupGroup(name)
			if !ok {
				disposeAll(created)
				return nil, invalid(KindComposite, fmt.Sprintf("child %d: unknown group %q", i, name))
			}
			target = g
		}
		child, err := scoped.Create(spec.Type, target, spec.Options)
		if err != nil {
			disposeAll(created)
			return nil, fmt.Errorf("composite child %d: %w", i, err)
		}
		created = append(created, child)
	}

	c := &Composite{opts: opts, children: created}
	c.Base = caspar.NewBase(group, c, r.base(KindComposite, opts.Common))
	return c, nil
}

func disposeAll(effects []caspar.Effect) {
	for i := len(effects) - 1; i >= 0; i-- {
		_ = effects[i].Dispose(context.Background())
	}
}

// Children returns the member effects in creation order.
func (c *Composite) Children() []caspar.Effect {
	return append([]caspar.Effect(nil), c.children...)
}

// Layers returns the distinct layers of every child.
func (c *Composite) Layers() []*caspar.Layer {
	var out []*caspar.Layer
	seen := make(map[*caspar.Layer]struct{})
	for _, child := range c.children {
		for _, l := range child.Layers() {
			if _, dup := seen[l]; dup {
				continue
			}
			seen[l] = struct{}{}
			out = append(out, l)
		}
	}
	return out
}

// Active reports whether any child is active.
func (c *Composite) Active() bool {
	for _, child := range c.children {
		if child.Active() {
			return true
		}
	}
	return false
}

// Deactivate stops every child and disposes the composite afterwards when
// configured to, unless a child was restarted in the meantime.
func (c *Composite) Deactivate(ctx context.Context) error {
	if err := caspar.DeactivateBatch(ctx, c); err != nil {
		return err
	}
	if c.opts.DisposeOnStop && !c.Active() {
		return c.Dispose(ctx)
	}
	return nil
}

// UpdatePositions forwards to the children.
func (c *Composite) UpdatePositions(ctx context.Context) error {
	var errs []error
	for _, child := range c.children {
		if err := child.UpdatePositions(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispose disposes the children in reverse order, then the composite.
func (c *Composite) Dispose(ctx context.Context) error {
	if c.Disposed() {
		return nil
	}
	var errs []error
	if err := caspar.DeactivateBatch(ctx, c); err != nil {
		errs = append(errs, err)
	}
	for i := len(c.children) - 1; i >= 0; i-- {
		if err := c.children[i].Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Base.Dispose(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// The composite itself sends nothing; its children do.
func (c *Composite) ActivationCommand() amcp.Command { return nil }

func (c *Composite) DeactivationCommand() amcp.Command { return nil }
