package caspar

import (
	"sync"
	"sync/atomic"

	"cgmanager/internal/amcp"
)

var layerSeq atomic.Int64

// Layer is a logical slot on a channel. Its engine layer number is assigned
// by reconciliation and may change whenever the channel's order changes.
type Layer struct {
	id    int64
	group string
	exec  *Executor

	channel atomic.Int64
	caspar  atomic.Int64

	mu      sync.Mutex
	effects []Effect
}

func newLayer(exec *Executor, channel int, group string) *Layer {
	l := &Layer{id: layerSeq.Add(1), group: group, exec: exec}
	l.channel.Store(int64(channel))
	return l
}

// ID returns the process-wide layer identifier.
func (l *Layer) ID() int64 { return l.id }

// Group returns the name of the group the layer was allocated for.
func (l *Layer) Group() string { return l.group }

// ChannelID returns the owning channel, or 0 once deallocated.
func (l *Layer) ChannelID() int { return int(l.channel.Load()) }

// CasparLayer returns the engine layer number, or 0 when not yet reconciled
// or deallocated.
func (l *Layer) CasparLayer() int { return int(l.caspar.Load()) }

// AMCPPosition implements amcp.PositionInput.
func (l *Layer) AMCPPosition() (amcp.Position, bool) {
	if l == nil {
		return amcp.Position{}, false
	}
	ch, layer := l.ChannelID(), l.CasparLayer()
	if ch <= 0 || layer <= 0 {
		return amcp.Position{}, false
	}
	return amcp.At(ch, layer), true
}

// ActiveEffects returns the effects currently registered on the layer.
func (l *Layer) ActiveEffects() []Effect {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Effect(nil), l.effects...)
}

// Dispose hands the layer back to its channel.
func (l *Layer) Dispose() {
	if l.exec == nil {
		return
	}
	if ch, ok := l.exec.Channel(l.ChannelID()); ok {
		ch.DeallocateLayers(l)
	}
}

func (l *Layer) addEffect(e Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, existing := range l.effects {
		if existing == e {
			return
		}
	}
	l.effects = append(l.effects, e)
}

func (l *Layer) removeEffect(e Effect) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, existing := range l.effects {
		if existing == e {
			l.effects = append(l.effects[:i], l.effects[i+1:]...)
			return
		}
	}
}

func (l *Layer) detach() {
	l.channel.Store(0)
	l.caspar.Store(0)
}

func layerLess(a, b *Layer) bool { return a.id < b.id }
