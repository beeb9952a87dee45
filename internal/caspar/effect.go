package caspar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"cgmanager/internal/amcp"
	"cgmanager/internal/logging"
)

// ErrDisposed is returned when activating an effect after disposal.
var ErrDisposed = errors.New("effect disposed")

// Effect is a unit of playback behaviour bound to layers.
type Effect interface {
	ID() string
	// Name is the registry name of the effect kind.
	Name() string
	Group() *EffectGroup
	Layers() []*Layer
	Active() bool
	Disposed() bool
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
	Dispose(ctx context.Context) error
	// UpdatePositions is called after a reconciliation pass that may have
	// renumbered layers the effect depends on.
	UpdatePositions(ctx context.Context) error
}

// Variant is the part of an effect that differs per kind: the commands that
// start and stop it. Commands are built when needed so they address the
// layers' current engine numbers.
type Variant interface {
	Effect
	ActivationCommand() amcp.Command
	DeactivationCommand() amcp.Command
}

// Hooks is implemented by variants that run timers or other side work.
// OnActivated runs once the activation commands were acknowledged;
// OnDeactivated runs when a deactivation begins.
type Hooks interface {
	OnActivated(ctx context.Context)
	OnDeactivated()
}

// Parent is implemented by effects composed of other effects. Batch
// operations act on the children.
type Parent interface {
	Children() []Effect
}

// BaseOptions configures a Base.
type BaseOptions struct {
	Name string
	// DisposeOnStop disposes the effect once a deactivation completes and no
	// activation happened in the meantime.
	DisposeOnStop bool
	Logger        *slog.Logger
}

// Base implements the lifecycle shared by every effect. Effect kinds embed
// *Base and pass themselves as the Variant.
type Base struct {
	id            string
	name          string
	self          Variant
	exec          *Executor
	group         *EffectGroup
	disposeOnStop bool
	logger        *slog.Logger

	mu        sync.Mutex
	layers    []*Layer
	borrowed  bool
	active    bool
	disposed  bool
	disposing bool
	epoch     uint64
}

// NewBase prepares the lifecycle for self within group. Call AllocateLayers
// or AttachLayers afterwards to bind layers.
func NewBase(group *EffectGroup, self Variant, opts BaseOptions) *Base {
	id := uuid.NewString()
	return &Base{
		id:            id,
		name:          opts.Name,
		self:          self,
		exec:          group.channel.exec,
		group:         group,
		disposeOnStop: opts.DisposeOnStop,
		logger: logging.NewComponentLogger(opts.Logger, "effect").With(
			logging.Channel(group.channel.id),
			logging.EffectID(id),
			logging.String("effect", opts.Name)),
	}
}

// AllocateLayers joins the group and requests count fresh layers positioned
// after the group's current tail. A count of 0 only joins the group.
func (b *Base) AllocateLayers(count int) []*Layer {
	layers := b.group.allocateFor(b.self, count)
	b.mu.Lock()
	b.layers = append(b.layers, layers...)
	b.mu.Unlock()
	return layers
}

// AttachLayers joins the group using layers owned by another effect. They are
// not released on disposal.
func (b *Base) AttachLayers(layers []*Layer) {
	b.group.allocateFor(b.self, 0)
	b.mu.Lock()
	b.layers = append(b.layers, layers...)
	b.borrowed = true
	b.mu.Unlock()
}

func (b *Base) ID() string { return b.id }

func (b *Base) Name() string { return b.name }

func (b *Base) Group() *EffectGroup { return b.group }

func (b *Base) Executor() *Executor { return b.exec }

func (b *Base) Logger() *slog.Logger { return b.logger }

func (b *Base) SetDisposeOnStop(v bool) {
	b.mu.Lock()
	b.disposeOnStop = v
	b.mu.Unlock()
}

// Layers returns the effect's layers. It is safe on a nil Base so effects
// under construction can be inspected.
func (b *Base) Layers() []*Layer {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Layer(nil), b.layers...)
}

func (b *Base) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Base) Disposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// Activate reconciles pending allocations, registers the effect on its
// layers and sends its activation commands. It is a no-op when already
// active. If the engine rejects the commands the registration is undone.
func (b *Base) Activate(ctx context.Context) error {
	return ActivateBatch(ctx, b.self)
}

// Deactivate sends the clearing commands and unregisters the effect. It is a
// no-op when the effect is not active.
func (b *Base) Deactivate(ctx context.Context) error {
	return DeactivateBatch(ctx, b.self)
}

// UpdatePositions does nothing by default.
func (b *Base) UpdatePositions(context.Context) error { return nil }

// Dispose deactivates the effect if needed, deactivates any other effect
// still registered on its layers, releases its layers and leaves its group.
// An effect on borrowed layers only deactivates itself; the owner and other
// borrowers stay on air. It is idempotent.
func (b *Base) Dispose(ctx context.Context) error {
	b.mu.Lock()
	if b.disposed || b.disposing {
		b.mu.Unlock()
		return nil
	}
	b.disposing = true
	active := b.active
	borrowed := b.borrowed
	layers := append([]*Layer(nil), b.layers...)
	b.mu.Unlock()

	var errs []error
	if active {
		if err := DeactivateBatch(ctx, b.self); err != nil {
			errs = append(errs, err)
		}
	}

	var others []Effect
	if !borrowed {
		for _, l := range layers {
			for _, other := range l.ActiveEffects() {
				if other == Effect(b.self) || containsEffect(others, other) {
					continue
				}
				others = append(others, other)
			}
		}
	}
	if len(others) > 0 {
		if err := DeactivateBatch(ctx, others...); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	b.layers = nil
	b.active = false
	b.disposed = true
	b.mu.Unlock()

	if !borrowed {
		for _, l := range layers {
			l.Dispose()
		}
	}
	b.group.remove(b.self)

	b.logger.Debug("effect disposed", logging.Int("layers", len(layers)))
	b.exec.publish(Event{
		Kind:     EventEffectDisposed,
		Channel:  b.group.channel.id,
		EffectID: b.id,
		Effect:   b.name,
		Group:    b.group.name,
	})
	return errors.Join(errs...)
}

func (b *Base) base() *Base { return b }

func (b *Base) beginActivate() (uint64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.disposed || b.disposing {
		return 0, false, fmt.Errorf("activate %s %s: %w", b.name, b.id, ErrDisposed)
	}
	if b.active {
		return 0, false, nil
	}
	b.active = true
	b.epoch++
	return b.epoch, true, nil
}

// abortActivate undoes beginActivate unless a deactivation or a newer
// activation already took over.
func (b *Base) abortActivate(epoch uint64) {
	b.mu.Lock()
	current := b.epoch == epoch && b.active
	if current {
		b.active = false
	}
	layers := b.layers
	b.mu.Unlock()
	if current {
		for _, l := range layers {
			l.removeEffect(b.self)
		}
	}
}

func (b *Base) beginDeactivate() (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return 0, false
	}
	b.active = false
	return b.epoch, true
}

// finishDeactivate unregisters the effect if it was not re-activated while
// the clearing commands were in flight, and reports whether it is still the
// same inactive instance.
func (b *Base) finishDeactivate(epoch uint64) bool {
	b.mu.Lock()
	unchanged := b.epoch == epoch && !b.active
	layers := b.layers
	b.mu.Unlock()
	if unchanged {
		for _, l := range layers {
			l.removeEffect(b.self)
		}
	}
	return unchanged
}

func (b *Base) register() {
	for _, l := range b.Layers() {
		l.addEffect(b.self)
	}
}

func (b *Base) event(kind EventKind) Event {
	ev := Event{
		Kind:     kind,
		Channel:  b.group.channel.id,
		EffectID: b.id,
		Effect:   b.name,
		Group:    b.group.name,
	}
	for _, l := range b.Layers() {
		ev.Layers = append(ev.Layers, l.CasparLayer())
	}
	return ev
}

type baseHolder interface {
	base() *Base
}

func baseOf(e Effect) *Base {
	h, ok := e.(baseHolder)
	if !ok {
		panic(fmt.Sprintf("caspar: effect %T does not embed *caspar.Base", e))
	}
	return h.base()
}

// flatten expands Parent effects into their children.
func flatten(effects []Effect) []Effect {
	var out []Effect
	for _, e := range effects {
		if p, ok := e.(Parent); ok {
			for _, child := range flatten(p.Children()) {
				if !containsEffect(out, child) {
					out = append(out, child)
				}
			}
			continue
		}
		if !containsEffect(out, e) {
			out = append(out, e)
		}
	}
	return out
}

func containsEffect(list []Effect, e Effect) bool {
	for _, existing := range list {
		if existing == e {
			return true
		}
	}
	return false
}

type transition struct {
	b     *Base
	epoch uint64
}

// ActivateBatch activates effects with a single transmission: pending
// allocations on the involved channels, and on channels a ChannelWatcher
// reads from, are reconciled first, then every
// activation command is sent as one group. Effects that are already active
// are skipped. On failure none of the effects stays active.
func ActivateBatch(ctx context.Context, effects ...Effect) error {
	var started []transition
	rollback := func() {
		for _, t := range started {
			t.b.abortActivate(t.epoch)
		}
	}
	for _, e := range flatten(effects) {
		b := baseOf(e)
		epoch, ok, err := b.beginActivate()
		if err != nil {
			rollback()
			return err
		}
		if ok {
			started = append(started, transition{b: b, epoch: epoch})
		}
	}
	if len(started) == 0 {
		return nil
	}

	reconciled := make(map[*Channel]struct{})
	for _, t := range started {
		channels := []*Channel{t.b.group.channel}
		if w, ok := t.b.self.(ChannelWatcher); ok {
			for _, ch := range t.b.exec.Channels() {
				if w.WatchesChannel(ch.id) {
					channels = append(channels, ch)
				}
			}
		}
		for _, ch := range channels {
			if _, done := reconciled[ch]; done {
				continue
			}
			reconciled[ch] = struct{}{}
			if err := ch.ExecuteAllocation(ctx); err != nil {
				rollback()
				return err
			}
		}
	}

	batch := amcp.NewGroup()
	for _, t := range started {
		t.b.register()
		batch.Add(t.b.self.ActivationCommand())
	}
	if _, err := started[0].b.exec.Execute(ctx, batch); err != nil {
		rollback()
		for _, t := range started {
			logging.WarnWithContext(t.b.logger, "effect activation failed", "effect_activate_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "effect is not playing"),
				logging.String(logging.FieldErrorHint, "check the engine response and the effect options"))
		}
		return err
	}

	for _, t := range started {
		if h, ok := t.b.self.(Hooks); ok {
			h.OnActivated(ctx)
		}
		t.b.logger.Debug("effect activated")
		t.b.exec.publish(t.b.event(EventEffectActivated))
	}
	return nil
}

// DeactivateBatch deactivates effects with a single transmission. Effects
// that are not active are skipped. Effects configured to dispose on stop are
// disposed afterwards unless they were re-activated while the clearing
// commands were in flight.
func DeactivateBatch(ctx context.Context, effects ...Effect) error {
	var stopped []transition
	for _, e := range flatten(effects) {
		b := baseOf(e)
		if epoch, ok := b.beginDeactivate(); ok {
			stopped = append(stopped, transition{b: b, epoch: epoch})
		}
	}
	if len(stopped) == 0 {
		return nil
	}

	batch := amcp.NewGroup()
	for _, t := range stopped {
		if h, ok := t.b.self.(Hooks); ok {
			h.OnDeactivated()
		}
		batch.Add(t.b.self.DeactivationCommand())
	}
	_, sendErr := stopped[0].b.exec.Execute(ctx, batch)

	var dispose []*Base
	for _, t := range stopped {
		unchanged := t.b.finishDeactivate(t.epoch)
		t.b.exec.publish(t.b.event(EventEffectDeactivated))
		if sendErr != nil || !unchanged {
			continue
		}
		t.b.mu.Lock()
		wanted := t.b.disposeOnStop && !t.b.disposing
		t.b.mu.Unlock()
		if wanted {
			dispose = append(dispose, t.b)
		}
	}
	if sendErr != nil {
		return sendErr
	}

	var errs []error
	for _, b := range dispose {
		if err := b.Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
