package caspar

import (
	"context"
	"errors"
	"fmt"
)

// EffectGroup is a named ordering bucket of effects on one channel. Effects
// in a later group stack above effects in an earlier one; within a group,
// effects stack in insertion order. The group tracks membership only and
// does not own its effects' lifecycle.
type EffectGroup struct {
	channel *Channel
	name    string
	// effects is guarded by channel.mu.
	effects []Effect
}

// Name returns the group name.
func (g *EffectGroup) Name() string { return g.name }

// Channel returns the channel the group belongs to.
func (g *EffectGroup) Channel() *Channel { return g.channel }

// Effects returns the member effects in insertion order.
func (g *EffectGroup) Effects() []Effect {
	g.channel.mu.Lock()
	defer g.channel.mu.Unlock()
	return append([]Effect(nil), g.effects...)
}

// EffectIndex returns the order index at which e's layers belong: directly
// after the layers of the closest earlier member of the group that holds
// layers, else after the last layer of the nearest earlier group that holds
// any, else 0. Looking up an effect that is not a member is a programming
// error.
func (g *EffectGroup) EffectIndex(e Effect) int {
	g.channel.mu.Lock()
	defer g.channel.mu.Unlock()
	return g.effectIndexLocked(e)
}

// DisposeAll disposes every member effect.
func (g *EffectGroup) DisposeAll(ctx context.Context) error {
	var errs []error
	for _, e := range g.Effects() {
		if err := e.Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *EffectGroup) effectIndexLocked(e Effect) int {
	pos := -1
	for i, member := range g.effects {
		if member == e {
			pos = i
			break
		}
	}
	if pos < 0 {
		panic(fmt.Sprintf("caspar: effect %s is not a member of group %q", e.ID(), g.name))
	}

	c := g.channel
	for k := pos - 1; k >= 0; k-- {
		if idx, ok := c.tailIndexLocked(g.effects[k]); ok {
			return idx + 1
		}
	}

	gi := -1
	for i, other := range c.groups {
		if other == g {
			gi = i
			break
		}
	}
	for k := gi - 1; k >= 0; k-- {
		members := c.groups[k].effects
		for m := len(members) - 1; m >= 0; m-- {
			if idx, ok := c.tailIndexLocked(members[m]); ok {
				return idx + 1
			}
		}
	}
	return 0
}

func (g *EffectGroup) addLocked(e Effect) {
	for _, member := range g.effects {
		if member == e {
			return
		}
	}
	g.effects = append(g.effects, e)
}

func (g *EffectGroup) remove(e Effect) {
	g.channel.mu.Lock()
	defer g.channel.mu.Unlock()
	for i, member := range g.effects {
		if member == e {
			g.effects = append(g.effects[:i], g.effects[i+1:]...)
			return
		}
	}
}

// allocateFor adds e to g and allocates count layers at e's index in one
// critical section.
func (g *EffectGroup) allocateFor(e Effect, count int) []*Layer {
	c := g.channel
	c.mu.Lock()
	defer c.mu.Unlock()
	g.addLocked(e)
	if count == 0 {
		return nil
	}
	return c.allocateLocked(count, g.effectIndexLocked(e), g.name)
}

// tailIndexLocked returns the highest order index among e's layers on c.
func (c *Channel) tailIndexLocked(e Effect) (int, bool) {
	tail, found := -1, false
	for _, l := range e.Layers() {
		if l.ChannelID() != c.id {
			continue
		}
		if idx := indexOf(c.currentOrder, l.id); idx > tail {
			tail, found = idx, true
		}
	}
	return tail, found
}
