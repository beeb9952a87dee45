package routes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cgmanager/internal/caspar"
	"cgmanager/internal/effects"
	"cgmanager/internal/logging"
	"cgmanager/internal/services"
)

// Spec describes a route to create.
type Spec struct {
	Name          string
	SourceChannel int
	SourceLayer   int
	DestChannel   int
	DestGroup     string
	// Enabled defaults to true.
	Enabled *bool
}

// Status is a stored route together with its live effect, if any.
type Status struct {
	Route
	Active   bool
	EffectID string
}

// Manager keeps the route effects in line with the stored routes.
type Manager struct {
	store  *Store
	exec   *caspar.Executor
	logger *slog.Logger
	now    func() time.Time

	mu   sync.Mutex
	live map[string]*effects.Route
}

func NewManager(store *Store, exec *caspar.Executor, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		exec:   exec,
		logger: logging.NewComponentLogger(logger, "routes"),
		now:    time.Now,
		live:   make(map[string]*effects.Route),
	}
}

// Restore starts the effect of every enabled route. Routes that fail to start
// stay enabled in the store so the next restore retries them.
func (m *Manager) Restore(ctx context.Context) error {
	stored, err := m.store.List(ctx)
	if err != nil {
		return err
	}
	var errs []error
	started := 0
	for _, r := range stored {
		if !r.Enabled {
			continue
		}
		if err := m.start(ctx, *r); err != nil {
			m.warnStart(*r, err, "route restored as inactive")
			errs = append(errs, err)
			continue
		}
		started++
	}
	m.logger.Info("routes restored", logging.Int("stored", len(stored)), logging.Int("started", started))
	return errors.Join(errs...)
}

// Create stores a new route and starts it when enabled. If the route cannot
// start it is stored disabled and the start error is returned with it.
func (m *Manager) Create(ctx context.Context, spec Spec) (*Route, error) {
	if err := m.validate(spec); err != nil {
		return nil, err
	}
	now := m.now()
	r := Route{
		ID:            uuid.NewString(),
		Name:          strings.TrimSpace(spec.Name),
		SourceChannel: spec.SourceChannel,
		SourceLayer:   spec.SourceLayer,
		DestChannel:   spec.DestChannel,
		DestGroup:     spec.DestGroup,
		Enabled:       spec.Enabled == nil || *spec.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var startErr error
	if r.Enabled {
		if startErr = m.start(ctx, r); startErr != nil {
			m.warnStart(r, startErr, "route stored disabled")
			r.Enabled = false
		}
	}
	if err := m.store.Insert(ctx, r); err != nil {
		_ = m.stop(ctx, r.ID)
		return nil, err
	}
	m.logger.Info("route created",
		logging.RouteID(r.ID),
		logging.String("source", r.Source().String()),
		logging.Channel(r.DestChannel),
		logging.String("group", r.DestGroup),
		logging.Bool("enabled", r.Enabled))
	return &r, startErr
}

// Get returns the status of one route.
func (m *Manager) Get(ctx context.Context, id string) (*Status, error) {
	r, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	status := m.status(*r)
	return &status, nil
}

// List returns the status of every route.
func (m *Manager) List(ctx context.Context) ([]Status, error) {
	stored, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(stored))
	for _, r := range stored {
		out = append(out, m.status(*r))
	}
	return out, nil
}

// Enable starts the route and records it as enabled. When the engine rejects
// the route the stored flag is not changed.
func (m *Manager) Enable(ctx context.Context, id string) (*Status, error) {
	r, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.start(ctx, *r); err != nil {
		m.warnStart(*r, err, "route stays disabled")
		return nil, err
	}
	if _, err := m.store.SetEnabled(ctx, id, true, m.now()); err != nil {
		_ = m.stop(ctx, id)
		return nil, err
	}
	r.Enabled = true
	status := m.status(*r)
	return &status, nil
}

// Disable stops the route and records it as disabled. When the engine
// rejects the clearing commands the route stays enabled.
func (m *Manager) Disable(ctx context.Context, id string) (*Status, error) {
	r, err := m.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := m.stop(ctx, id); err != nil {
		logging.WarnWithContext(m.logger, "route stop failed", "route_stop_failed",
			logging.RouteID(id),
			logging.Error(err),
			logging.String(logging.FieldImpact, "route stays enabled and on air"),
			logging.String(logging.FieldErrorHint, "check the engine connection and retry"))
		return nil, err
	}
	if _, err := m.store.SetEnabled(ctx, id, false, m.now()); err != nil {
		return nil, err
	}
	r.Enabled = false
	status := m.status(*r)
	return &status, nil
}

// Delete stops and removes a route.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if _, err := m.lookup(ctx, id); err != nil {
		return err
	}
	if err := m.stop(ctx, id); err != nil {
		return err
	}
	if _, err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.logger.Info("route deleted", logging.RouteID(id))
	return nil
}

// Effect returns the live effect of a route.
func (m *Manager) Effect(id string) (*effects.Route, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live[id]
	return e, ok
}

func (m *Manager) lookup(ctx context.Context, id string) (*Route, error) {
	r, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, services.Wrap(services.ErrNotFound, "routes", "lookup", fmt.Sprintf("route %q not found", id), nil)
	}
	return r, nil
}

func (m *Manager) validate(spec Spec) error {
	if spec.SourceChannel < 1 {
		return services.Wrap(services.ErrValidation, "routes", "create", "source_channel must be at least 1", nil)
	}
	if spec.SourceLayer < 0 {
		return services.Wrap(services.ErrValidation, "routes", "create", "source_layer must not be negative", nil)
	}
	if spec.SourceLayer == 0 && spec.SourceChannel == spec.DestChannel {
		return services.Wrap(services.ErrValidation, "routes", "create", "a channel cannot be routed onto itself", nil)
	}
	_, err := m.group(spec.DestChannel, spec.DestGroup)
	return err
}

func (m *Manager) group(channel int, name string) (*caspar.EffectGroup, error) {
	ch, ok := m.exec.Channel(channel)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "routes", "resolve", fmt.Sprintf("channel %d is not managed", channel), nil)
	}
	g, ok := ch.LookupGroup(name)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "routes", "resolve", fmt.Sprintf("channel %d has no group %q", channel, name), nil)
	}
	return g, nil
}

func (m *Manager) start(ctx context.Context, r Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.live[r.ID]; ok {
		return nil
	}
	g, err := m.group(r.DestChannel, r.DestGroup)
	if err != nil {
		return err
	}
	effect, err := effects.NewRoute(g, effects.RouteOptions{
		SourceChannel: r.SourceChannel,
		SourceLayer:   r.SourceLayer,
	}, nil, effects.Deps{Logger: m.logger})
	if err != nil {
		return err
	}
	if err := effect.Activate(ctx); err != nil {
		_ = effect.Dispose(context.WithoutCancel(ctx))
		return err
	}
	m.live[r.ID] = effect
	return nil
}

func (m *Manager) stop(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	effect, ok := m.live[id]
	if !ok {
		return nil
	}
	if err := effect.Deactivate(ctx); err != nil {
		return err
	}
	delete(m.live, id)
	return effect.Dispose(ctx)
}

func (m *Manager) status(r Route) Status {
	s := Status{Route: r}
	if e, ok := m.Effect(r.ID); ok {
		s.Active = e.Active()
		s.EffectID = e.ID()
	}
	return s
}

func (m *Manager) warnStart(r Route, err error, impact string) {
	logging.WarnWithContext(m.logger, "route start failed", "route_start_failed",
		logging.RouteID(r.ID),
		logging.String("source", r.Source().String()),
		logging.Channel(r.DestChannel),
		logging.Error(err),
		logging.String(logging.FieldImpact, impact),
		logging.String(logging.FieldErrorHint, "check that the engine is connected and the source channel exists"))
}
