package caspar_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/logging"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	batches   [][]string
	failures  map[string]int
	err       error
	onSend    func(lines []string)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{connected: true, failures: make(map[string]int)}
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) Send(_ context.Context, lines []string) ([]amcp.Response, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), lines...))
	hook := f.onSend
	err := f.err
	failures := make(map[string]int, len(f.failures))
	for k, v := range f.failures {
		failures[k] = v
	}
	f.mu.Unlock()

	if hook != nil {
		hook(lines)
	}
	if err != nil {
		return nil, err
	}
	responses := make([]amcp.Response, len(lines))
	for i, line := range lines {
		keyword := strings.Fields(line)[0]
		if code, ok := failures[line]; ok {
			responses[i] = amcp.Response{Code: code, Command: keyword, Status: "FAILED"}
			continue
		}
		if code, ok := failures[keyword]; ok {
			responses[i] = amcp.Response{Code: code, Command: keyword, Status: "FAILED"}
			continue
		}
		responses[i] = amcp.Response{Code: 202, Command: keyword, Status: "OK"}
	}
	return responses, nil
}

func (f *fakeTransport) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeTransport) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fail answers every line starting with keyword, or exactly matching a full
// line, with code.
func (f *fakeTransport) fail(keyword string, code int) {
	f.mu.Lock()
	f.failures[keyword] = code
	f.mu.Unlock()
}

// rejects reports whether line is answered with a failure code.
func (f *fakeTransport) rejects(line string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.failures[line]; ok {
		return true
	}
	_, ok := f.failures[strings.Fields(line)[0]]
	return ok
}

func (f *fakeTransport) clearFailures() {
	f.mu.Lock()
	f.failures = make(map[string]int)
	f.mu.Unlock()
}

func (f *fakeTransport) setHook(fn func(lines []string)) {
	f.mu.Lock()
	f.onSend = fn
	f.mu.Unlock()
}

func (f *fakeTransport) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.batches))
	copy(out, f.batches)
	return out
}

func (f *fakeTransport) Lines() []string {
	var out []string
	for _, batch := range f.Batches() {
		out = append(out, batch...)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	f.batches = nil
	f.mu.Unlock()
}

func newTestChannel(t *testing.T) (*caspar.Executor, *caspar.Channel, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	exec := caspar.NewExecutor(transport, logging.NewNop())
	ch, err := exec.AllocateChannel(1)
	if err != nil {
		t.Fatalf("AllocateChannel: %v", err)
	}
	return exec, ch, transport
}

// clipEffect plays one clip on each of its layers.
type clipEffect struct {
	*caspar.Base
	clip string
}

func newClipEffect(group *caspar.EffectGroup, clip string, layers int, opts caspar.BaseOptions) *clipEffect {
	e := &clipEffect{clip: clip}
	if opts.Name == "" {
		opts.Name = "clip"
	}
	e.Base = caspar.NewBase(group, e, opts)
	e.AllocateLayers(layers)
	return e
}

func (e *clipEffect) ActivationCommand() amcp.Command {
	g := amcp.NewGroup()
	for _, l := range e.Layers() {
		g.Add(amcp.Allocate(amcp.Play(e.clip, amcp.PlayOptions{}), l))
	}
	return g
}

func (e *clipEffect) DeactivationCommand() amcp.Command {
	g := amcp.NewGroup()
	for _, l := range e.Layers() {
		g.Add(amcp.Allocate(amcp.Clear(), l))
	}
	return g
}

// overlayEffect borrows another effect's layers and adjusts their opacity.
type overlayEffect struct {
	*caspar.Base
}

func newOverlayEffect(target caspar.Effect) *overlayEffect {
	e := &overlayEffect{}
	e.Base = caspar.NewBase(target.Group(), e, caspar.BaseOptions{Name: "overlay"})
	e.AttachLayers(target.Layers())
	return e
}

func (e *overlayEffect) ActivationCommand() amcp.Command {
	g := amcp.NewGroup()
	for _, l := range e.Layers() {
		g.Add(amcp.Allocate(amcp.MixerOpacity(0.5, amcp.Animation{}), l))
	}
	return g
}

func (e *overlayEffect) DeactivationCommand() amcp.Command {
	g := amcp.NewGroup()
	for _, l := range e.Layers() {
		g.Add(amcp.Allocate(amcp.MixerClear(), l))
	}
	return g
}

func layerIDs(layers []*caspar.Layer) []int64 {
	out := make([]int64, len(layers))
	for i, l := range layers {
		out[i] = l.ID()
	}
	return out
}

// engineSlots mirrors the layer contents of one engine channel by applying
// the CLEAR and SWAP lines the transport accepted.
type engineSlots map[int]int64

func (e engineSlots) apply(t *testing.T, f *fakeTransport, lines []string) {
	t.Helper()
	for _, line := range lines {
		if f.rejects(line) {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "CLEAR":
			delete(e, slotOf(t, fields[1]))
		case "SWAP":
			a, b := slotOf(t, fields[1]), slotOf(t, fields[2])
			va, aok := e[a]
			vb, bok := e[b]
			delete(e, a)
			delete(e, b)
			if aok {
				e[b] = va
			}
			if bok {
				e[a] = vb
			}
		}
	}
}
