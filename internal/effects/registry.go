package effects

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"cgmanager/internal/caspar"
	"cgmanager/internal/media"
	"cgmanager/internal/services"
)

// Built-in kinds.
const (
	KindVideo     = "video"
	KindColor     = "color"
	KindRoute     = "route"
	KindMixer     = "mixer"
	KindTemplate  = "template"
	KindComposite = "composite"
)

// MediaLookup finds catalogue entries. *media.Store implements it.
type MediaLookup interface {
	Get(ctx context.Context, id string) (*media.Item, error)
}

// Resolver finds live effects by id for kinds that act on other effects.
type Resolver interface {
	Effect(id string) (caspar.Effect, bool)
}

// Deps are the collaborators handed to every constructor.
type Deps struct {
	Media   MediaLookup
	Effects Resolver
	Logger  *slog.Logger
}

// Constructor builds an effect of one kind in group from raw JSON options.
// It allocates the effect's layers but does not activate it.
type Constructor func(r *Registry, group *caspar.EffectGroup, options json.RawMessage) (caspar.Effect, error)

type constructorTable struct {
	mu      sync.RWMutex
	entries map[string]Constructor
}

// Registry maps kind names to constructors.
type Registry struct {
	deps  Deps
	table *constructorTable
}

// NewRegistry returns a registry with the built-in kinds.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{deps: deps, table: &constructorTable{entries: make(map[string]Constructor)}}
	for name, c := range map[string]Constructor{
		KindVideo:     newVideoFromOptions,
		KindColor:     newColorFromOptions,
		KindRoute:     newRouteFromOptions,
		KindMixer:     newMixerFromOptions,
		KindTemplate:  newTemplateFromOptions,
		KindComposite: newCompositeFromOptions,
	} {
		if err := r.Register(name, c); err != nil {
			panic(err)
		}
	}
	return r
}

// Deps returns the registry's collaborators.
func (r *Registry) Deps() Deps { return r.deps }

// Register adds a kind. Names are case-insensitive and must be unique.
func (r *Registry) Register(name string, c Constructor) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || c == nil {
		return fmt.Errorf("register effect kind %q: name and constructor are required", name)
	}
	r.table.mu.Lock()
	defer r.table.mu.Unlock()
	if _, exists := r.table.entries[key]; exists {
		return services.Wrap(services.ErrConflict, "effects", "register", fmt.Sprintf("kind %q already registered", key), nil)
	}
	r.table.entries[key] = c
	return nil
}

// Names returns the registered kinds in order.
func (r *Registry) Names() []string {
	r.table.mu.RLock()
	defer r.table.mu.RUnlock()
	out := make([]string, 0, len(r.table.entries))
	for name := range r.table.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Create constructs an effect of kind name in group.
func (r *Registry) Create(name string, group *caspar.EffectGroup, options json.RawMessage) (caspar.Effect, error) {
	if group == nil {
		return nil, services.Wrap(services.ErrValidation, "effects", "create "+name, "group is required", nil)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	r.table.mu.RLock()
	c, ok := r.table.entries[key]
	r.table.mu.RUnlock()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "effects", "create", fmt.Sprintf("unknown effect type %q", name), nil)
	}
	return c(r, group, options)
}

func (r *Registry) resolve(kind, id string) (caspar.Effect, error) {
	if r.deps.Effects == nil {
		return nil, invalid(kind, "no effect resolver configured")
	}
	e, ok := r.deps.Effects.Effect(strings.TrimSpace(id))
	if !ok || e.Disposed() {
		return nil, services.Wrap(services.ErrNotFound, "effects", "create "+kind, fmt.Sprintf("effect %q not found", id), nil)
	}
	return e, nil
}

func (r *Registry) base(name string, common Common) caspar.BaseOptions {
	return caspar.BaseOptions{Name: name, DisposeOnStop: common.DisposeOnStop, Logger: r.deps.Logger}
}

// withSiblings returns a registry whose resolver also understands "#n",
// the n-th effect created so far by a composite.
func (r *Registry) withSiblings(siblings *[]caspar.Effect) *Registry {
	scoped := *r
	scoped.deps.Effects = siblingResolver{siblings: siblings, parent: r.deps.Effects}
	return &scoped
}

type siblingResolver struct {
	siblings *[]caspar.Effect
	parent   Resolver
}

func (s siblingResolver) Effect(id string) (caspar.Effect, bool) {
	if rest, ok := strings.CutPrefix(id, "#"); ok {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 || n >= len(*s.siblings) {
			return nil, false
		}
		return (*s.siblings)[n], true
	}
	if s.parent == nil {
		return nil, false
	}
	return s.parent.Effect(id)
}
