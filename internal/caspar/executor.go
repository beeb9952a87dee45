package caspar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/logging"
	"cgmanager/internal/services"
)

// Transport delivers protocol lines to the engine and returns one response
// per line, in order. *amcp.Connection implements it.
type Transport interface {
	Send(ctx context.Context, lines []string) ([]amcp.Response, error)
	Connected() bool
}

// EventKind classifies executor events.
type EventKind string

const (
	EventReconciled        EventKind = "channel.reconciled"
	EventEffectActivated   EventKind = "effect.activated"
	EventEffectDeactivated EventKind = "effect.deactivated"
	EventEffectDisposed    EventKind = "effect.disposed"
)

// Event reports a change in channel or effect state.
type Event struct {
	Kind     EventKind `json:"kind"`
	Time     time.Time `json:"time"`
	Channel  int       `json:"channel"`
	EffectID string    `json:"effect_id,omitempty"`
	Effect   string    `json:"effect,omitempty"`
	Group    string    `json:"group,omitempty"`
	Layers   []int     `json:"layers,omitempty"`
	Swaps    int       `json:"swaps,omitempty"`
	Clears   int       `json:"clears,omitempty"`
}

// Executor owns the channels of one engine and is the sink every command is
// submitted to.
type Executor struct {
	transport Transport
	logger    *slog.Logger

	mu        sync.RWMutex
	channels  map[int]*Channel
	observers []func(Event)
}

// NewExecutor creates an executor sending through transport.
func NewExecutor(transport Transport, logger *slog.Logger) *Executor {
	return &Executor{
		transport: transport,
		logger:    logging.NewComponentLogger(logger, "executor"),
		channels:  make(map[int]*Channel),
	}
}

// AllocateChannel constructs and registers the channel with the given engine id.
func (e *Executor) AllocateChannel(id int) (*Channel, error) {
	if id < 1 {
		return nil, services.Wrap(services.ErrValidation, "executor", "allocate channel", fmt.Sprintf("invalid channel id %d", id), nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.channels[id]; exists {
		return nil, services.Wrap(services.ErrConflict, "executor", "allocate channel", fmt.Sprintf("channel %d already allocated", id), nil)
	}
	ch := newChannel(e, id)
	e.channels[id] = ch
	return ch, nil
}

// Channel returns the channel with the given id.
func (e *Executor) Channel(id int) (*Channel, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ch, ok := e.channels[id]
	return ch, ok
}

// Channels returns every channel ordered by id.
func (e *Executor) Channels() []*Channel {
	e.mu.RLock()
	out := make([]*Channel, 0, len(e.channels))
	for _, ch := range e.channels {
		out = append(out, ch)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Connected reports whether commands can currently be sent.
func (e *Executor) Connected() bool {
	return e.transport != nil && e.transport.Connected()
}

// Execute submits cmd and returns one response per transmitted line. A
// command with nothing to send succeeds without touching the transport. An
// engine failure code is returned as an error wrapping *amcp.Error alongside
// the responses.
func (e *Executor) Execute(ctx context.Context, cmd amcp.Command) ([]amcp.Response, error) {
	if cmd == nil {
		return nil, nil
	}
	lines := cmd.Lines()
	if len(lines) == 0 {
		return nil, nil
	}
	if !e.Connected() {
		return nil, services.Wrap(services.ErrTransport, "executor", "execute", lines[0], amcp.ErrNotConnected)
	}
	responses, err := e.transport.Send(ctx, lines)
	if err != nil {
		return responses, services.Wrap(services.ErrTransport, "executor", "execute", lines[0], err)
	}
	if err := amcp.FirstError(responses); err != nil {
		return responses, services.Wrap(services.ErrEngine, "executor", "execute", "", err)
	}
	return responses, nil
}

// ExecuteAllocations reconciles every channel with pending changes.
func (e *Executor) ExecuteAllocations(ctx context.Context) error {
	var errs []error
	for _, ch := range e.Channels() {
		if err := ch.ExecuteAllocation(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Resync rebuilds every channel after the engine connection was replaced.
// See Channel.Resync.
func (e *Executor) Resync(ctx context.Context) error {
	var errs []error
	for _, ch := range e.Channels() {
		if err := ch.Resync(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OnEvent registers fn to receive every event. Callbacks run synchronously on
// the goroutine that caused the event and must not block.
func (e *Executor) OnEvent(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Executor) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	e.mu.RLock()
	observers := append([]func(Event){}, e.observers...)
	e.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}
