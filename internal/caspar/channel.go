package caspar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/btree"

	"cgmanager/internal/amcp"
	"cgmanager/internal/logging"
)

// Channel is one output channel of the engine.
//
// currentOrder is the desired bottom-to-top arrangement of layer ids, where
// index i maps to engine layer i+1 and 0 marks an empty slot. lastOrder is
// the arrangement last confirmed on the engine.
type Channel struct {
	id     int
	exec   *Executor
	logger *slog.Logger

	mu           sync.Mutex
	layers       *btree.BTreeG[*Layer]
	currentOrder []int64
	lastOrder    []int64
	groups       []*EffectGroup
	pending      bool
	reconciling  bool
	passDone     chan struct{}
}

func newChannel(exec *Executor, id int) *Channel {
	return &Channel{
		id:     id,
		exec:   exec,
		logger: exec.logger.With(logging.Channel(id)),
		layers: btree.NewG[*Layer](8, layerLess),
	}
}

// ID returns the engine channel number.
func (c *Channel) ID() int { return c.id }

// Executor returns the executor owning the channel.
func (c *Channel) Executor() *Executor { return c.exec }

// AMCPPosition implements amcp.PositionInput for the whole channel.
func (c *Channel) AMCPPosition() (amcp.Position, bool) {
	if c == nil {
		return amcp.Position{}, false
	}
	return amcp.At(c.id), true
}

// Group returns the named group, creating it after the existing groups on
// first use.
func (c *Channel) Group(name string) *EffectGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.groups {
		if g.name == name {
			return g
		}
	}
	g := &EffectGroup{channel: c, name: name}
	c.groups = append(c.groups, g)
	return g
}

// LookupGroup returns the named group without creating it.
func (c *Channel) LookupGroup(name string) (*EffectGroup, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.groups {
		if g.name == name {
			return g, true
		}
	}
	return nil, false
}

// Groups returns the groups in precedence order.
func (c *Channel) Groups() []*EffectGroup {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*EffectGroup(nil), c.groups...)
}

// Layer returns the allocated layer with the given id.
func (c *Channel) Layer(id int64) (*Layer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layers.Get(&Layer{id: id})
}

// Layers returns the allocated layers in allocation order.
func (c *Channel) Layers() []*Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Layer, 0, c.layers.Len())
	c.layers.Ascend(func(l *Layer) bool {
		out = append(out, l)
		return true
	})
	return out
}

// CurrentOrder returns a copy of the desired order.
func (c *Channel) CurrentOrder() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.currentOrder...)
}

// LastOrder returns a copy of the order last confirmed on the engine.
func (c *Channel) LastOrder() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.lastOrder...)
}

// Pending reports whether the channel has changes awaiting reconciliation.
func (c *Channel) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// AllocateLayers inserts count new layers at index (negative or out of range
// means the end) and returns them in order. To keep other layers from moving,
// up to count empty slots after the inserted run are removed. count < 1 is a
// programming error.
func (c *Channel) AllocateLayers(count, index int) []*Layer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocateLocked(count, index, "")
}

func (c *Channel) allocateLocked(count, index int, group string) []*Layer {
	if count < 1 {
		panic(fmt.Sprintf("caspar: cannot allocate %d layers on channel %d", count, c.id))
	}
	if index < 0 || index > len(c.currentOrder) {
		index = len(c.currentOrder)
	}

	layers := make([]*Layer, count)
	ids := make([]int64, count)
	for i := range layers {
		l := newLayer(c.exec, c.id, group)
		layers[i] = l
		ids[i] = l.id
		c.layers.ReplaceOrInsert(l)
	}

	order := make([]int64, 0, len(c.currentOrder)+count)
	order = append(order, c.currentOrder[:index]...)
	order = append(order, ids...)
	order = append(order, c.currentOrder[index:]...)

	removed := 0
	for i := index + count; i < len(order) && removed < count; {
		if order[i] == 0 {
			order = append(order[:i], order[i+1:]...)
			removed++
			continue
		}
		i++
	}

	c.currentOrder = order
	c.pending = true
	return layers
}

// DeallocateLayers releases layers. Their slots stay in the order as empty
// entries until the next reconciliation so other layers keep their numbers.
func (c *Channel) DeallocateLayers(layers ...*Layer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range layers {
		if l == nil || l.ChannelID() != c.id {
			continue
		}
		if _, ok := c.layers.Delete(l); !ok {
			continue
		}
		l.detach()
		for i, id := range c.currentOrder {
			if id == l.id {
				c.currentOrder[i] = 0
				break
			}
		}
		c.pending = true
	}
}

// ExecuteAllocation reconciles the engine's layers with currentOrder when
// changes are pending. The SWAP and CLEAR commands of one pass go out as a
// single batch. When the engine rejects some lines, lastOrder advances to the
// arrangement its accepted lines produced, so a retry does not repeat them;
// without any response lastOrder stays put. Changes made while a pass is in
// picked up by that pass before it returns, and concurrent callers wait for
// it. Active effects on the channel, and effects elsewhere that watch it, are
// notified afterwards.
func (c *Channel) ExecuteAllocation(ctx context.Context) error {
	c.mu.Lock()
	if err := c.waitIdleLocked(ctx); err != nil {
		return err
	}
	if !c.pending {
		c.mu.Unlock()
		return nil
	}
	c.reconciling = true
	c.passDone = make(chan struct{})

	var total reconcileStats
	for c.pending {
		c.pending = false
		c.trimOrderLocked()
		snapshot := append([]int64(nil), c.currentOrder...)
		plan := planReconcile(c.id, c.lastOrder, snapshot)
		c.mu.Unlock()

		responses, err := c.exec.Execute(ctx, plan.batch)

		c.mu.Lock()
		if err != nil {
			impact := "engine layer numbers are unchanged; the pass is retried on the next allocation"
			if len(responses) > 0 {
				c.commitLocked(plan.reached(c.lastOrder, snapshot, responses))
				impact = "accepted lines were applied; the rest is retried on the next allocation"
			}
			c.pending = true
			c.finishPassLocked()
			c.mu.Unlock()
			logging.WarnWithContext(c.logger, "layer reconciliation failed", "reconcile_failed",
				logging.Int("swaps", plan.stats.swaps),
				logging.Int("clears", plan.stats.clears),
				logging.Int("responses", len(responses)),
				logging.Error(err),
				logging.String(logging.FieldImpact, impact),
				logging.String(logging.FieldErrorHint, "check the engine connection and the rejected command"))
			return fmt.Errorf("channel %d reconcile: %w", c.id, err)
		}
		c.commitLocked(snapshot)
		stats := plan.stats
		total.swaps += stats.swaps
		total.clears += stats.clears
	}
	c.finishPassLocked()
	effects := c.activeEffectsLocked()
	c.mu.Unlock()

	c.logger.Debug("layers reconciled",
		logging.Int("swaps", total.swaps),
		logging.Int("clears", total.clears),
		logging.Int("active_effects", len(effects)))
	c.exec.publish(Event{Kind: EventReconciled, Channel: c.id, Swaps: total.swaps, Clears: total.clears})

	for _, other := range c.exec.Channels() {
		if other == c {
			continue
		}
		effects = append(effects, other.watchersOf(c.id)...)
	}

	var errs []error
	for _, e := range effects {
		if err := e.UpdatePositions(ctx); err != nil {
			errs = append(errs, fmt.Errorf("update positions of %s %s: %w", e.Name(), e.ID(), err))
		}
	}
	return errors.Join(errs...)
}

// waitIdleLocked blocks until no reconciliation pass is in flight. It returns
// with c.mu held, or unlocked with ctx's error.
func (c *Channel) waitIdleLocked(ctx context.Context) error {
	for c.reconciling {
		wait := c.passDone
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}
	return nil
}

// Resync rebuilds the channel on an engine whose layer contents are unknown,
// as after a reconnect: the engine channel is cleared, layers are renumbered
// straight from the desired order and every active effect sends its
// activation commands again, owners before effects on borrowed layers.
func (c *Channel) Resync(ctx context.Context) error {
	c.mu.Lock()
	if err := c.waitIdleLocked(ctx); err != nil {
		return err
	}
	c.lastOrder = nil
	c.pending = true
	c.mu.Unlock()

	if _, err := c.exec.Execute(ctx, amcp.Allocate(amcp.Clear(), amcp.At(c.id))); err != nil {
		return fmt.Errorf("channel %d resync: %w", c.id, err)
	}
	if err := c.ExecuteAllocation(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	effects := c.activeEffectsLocked()
	c.mu.Unlock()
	var owners, borrowers []Effect
	for _, e := range effects {
		b := baseOf(e)
		b.mu.Lock()
		borrowed := b.borrowed
		b.mu.Unlock()
		if borrowed {
			borrowers = append(borrowers, e)
		} else {
			owners = append(owners, e)
		}
	}

	batch := amcp.NewGroup()
	for _, e := range append(owners, borrowers...) {
		if cmd := baseOf(e).self.ActivationCommand(); cmd != nil {
			batch.Add(cmd)
		}
	}
	if _, err := c.exec.Execute(ctx, batch); err != nil {
		return fmt.Errorf("channel %d resync: %w", c.id, err)
	}
	c.logger.Info("channel resynced", logging.Int("active_effects", len(effects)))
	return nil
}

func (c *Channel) finishPassLocked() {
	c.reconciling = false
	if c.passDone != nil {
		close(c.passDone)
		c.passDone = nil
	}
}

func (c *Channel) trimOrderLocked() {
	n := len(c.currentOrder)
	for n > 0 && c.currentOrder[n-1] == 0 {
		n--
	}
	c.currentOrder = c.currentOrder[:n]
}

func (c *Channel) commitLocked(order []int64) {
	n := len(order)
	for n > 0 && order[n-1] == 0 {
		n--
	}
	c.lastOrder = order[:n]
	for i, id := range c.lastOrder {
		if id == 0 {
			continue
		}
		if l, ok := c.layers.Get(&Layer{id: id}); ok {
			l.caspar.Store(int64(i + 1))
		}
	}
}

func (c *Channel) activeEffectsLocked() []Effect {
	var out []Effect
	seen := make(map[Effect]struct{})
	for _, id := range c.currentOrder {
		if id == 0 {
			continue
		}
		l, ok := c.layers.Get(&Layer{id: id})
		if !ok {
			continue
		}
		for _, e := range l.ActiveEffects() {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// watchersOf returns active effects on c that depend on positions of channel.
func (c *Channel) watchersOf(channel int) []Effect {
	c.mu.Lock()
	effects := c.activeEffectsLocked()
	c.mu.Unlock()
	var out []Effect
	for _, e := range effects {
		if w, ok := e.(ChannelWatcher); ok && w.WatchesChannel(channel) {
			out = append(out, e)
		}
	}
	return out
}

// ChannelWatcher is implemented by effects whose commands reference another
// channel's layers, so they are re-notified when that channel reconciles.
type ChannelWatcher interface {
	WatchesChannel(id int) bool
}

type reconcileStats struct {
	swaps  int
	clears int
}

// reconcileOp is one line of a reconciliation batch: a CLEAR of slot a, or a
// SWAP of slots a and b. Slots are 0-based.
type reconcileOp struct {
	clear bool
	a, b  int
}

type reconcilePlan struct {
	batch *amcp.Group
	ops   []reconcileOp
	stats reconcileStats
}

// planReconcile computes the batch that turns last into current on the
// engine: one CLEAR per slot whose occupant is gone, then a left-to-right
// walk that swaps each occupant into place against a working copy of last.
func planReconcile(channel int, last, current []int64) reconcilePlan {
	plan := reconcilePlan{batch: amcp.NewGroup()}

	present := make(map[int64]struct{}, len(current))
	for _, id := range current {
		if id != 0 {
			present[id] = struct{}{}
		}
	}

	work := make([]int64, max(len(last), len(current)))
	copy(work, last)

	for i, id := range last {
		if id == 0 {
			continue
		}
		if _, ok := present[id]; ok {
			continue
		}
		plan.batch.Add(amcp.Allocate(amcp.Clear(), amcp.At(channel, i+1)))
		plan.ops = append(plan.ops, reconcileOp{clear: true, a: i})
		work[i] = 0
		plan.stats.clears++
	}

	for i, id := range current {
		if id == 0 || work[i] == id {
			continue
		}
		j := indexOf(work, id)
		if j < 0 {
			continue
		}
		plan.batch.Add(amcp.Allocate(amcp.Swap(amcp.At(channel, j+1), false), amcp.At(channel, i+1)))
		plan.ops = append(plan.ops, reconcileOp{a: i, b: j})
		work[i], work[j] = work[j], work[i]
		plan.stats.swaps++
	}
	return plan
}

// reached replays the lines the engine accepted against last and returns the
// arrangement the engine now holds. Lines without a response count as not
// executed. New layers of current take their slot once it is empty.
func (p reconcilePlan) reached(last, current []int64, responses []amcp.Response) []int64 {
	state := make([]int64, max(len(last), len(current)))
	copy(state, last)
	for k, op := range p.ops {
		if k >= len(responses) || !responses[k].OK() {
			continue
		}
		if op.clear {
			state[op.a] = 0
			continue
		}
		state[op.a], state[op.b] = state[op.b], state[op.a]
	}

	known := make(map[int64]struct{}, len(last))
	for _, id := range last {
		known[id] = struct{}{}
	}
	for i, id := range current {
		if _, ok := known[id]; !ok && id != 0 && state[i] == 0 {
			state[i] = id
		}
	}
	return state
}

func indexOf(order []int64, id int64) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}
