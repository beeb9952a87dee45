package effects

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/logging"
	"cgmanager/internal/media"
)

type recordingTransport struct {
	mu       sync.Mutex
	lines    []string
	failures map[string]int
}

func (r *recordingTransport) Connected() bool { return true }

func (r *recordingTransport) Send(_ context.Context, lines []string) ([]amcp.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, lines...)
	out := make([]amcp.Response, len(lines))
	for i, line := range lines {
		keyword := strings.Fields(line)[0]
		if code, ok := r.failures[keyword]; ok {
			out[i] = amcp.Response{Code: code, Command: keyword, Status: "FAILED"}
			continue
		}
		out[i] = amcp.Response{Code: 202, Command: keyword, Status: "OK"}
	}
	return out, nil
}

func (r *recordingTransport) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func (r *recordingTransport) reset() {
	r.mu.Lock()
	r.lines = nil
	r.mu.Unlock()
}

type catalogue map[string]*media.Item

func (c catalogue) Get(_ context.Context, id string) (*media.Item, error) {
	return c[id], nil
}

// effectTable resolves effects by id like the service's registry does.
type effectTable struct {
	mu      sync.Mutex
	effects map[string]caspar.Effect
}

func (t *effectTable) Effect(id string) (caspar.Effect, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.effects[id]
	return e, ok
}

func (t *effectTable) add(e caspar.Effect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.effects == nil {
		t.effects = make(map[string]caspar.Effect)
	}
	t.effects[e.ID()] = e
}

type fixture struct {
	exec      *caspar.Executor
	transport *recordingTransport
	table     *effectTable
	media     catalogue
	registry  *Registry
}

func newFixture(t *testing.T, channels ...int) *fixture {
	t.Helper()
	if len(channels) == 0 {
		channels = []int{1}
	}
	f := &fixture{
		transport: &recordingTransport{failures: make(map[string]int)},
		table:     &effectTable{},
		media:     catalogue{},
	}
	f.exec = caspar.NewExecutor(f.transport, logging.NewNop())
	for _, id := range channels {
		_, err := f.exec.AllocateChannel(id)
		require.NoError(t, err)
	}
	f.registry = NewRegistry(Deps{Media: f.media, Effects: f.table, Logger: logging.NewNop()})
	return f
}

func (f *fixture) group(t *testing.T, channel int, name string) *caspar.EffectGroup {
	t.Helper()
	ch, ok := f.exec.Channel(channel)
	require.True(t, ok)
	return ch.Group(name)
}

func (f *fixture) create(t *testing.T, kind string, group *caspar.EffectGroup, options string) caspar.Effect {
	t.Helper()
	e, err := f.registry.Create(kind, group, json.RawMessage(options))
	require.NoError(t, err)
	f.table.add(e)
	return e
}

// manualTimer captures scheduled auto-stops so tests fire them explicitly.
type manualTimer struct {
	mu      sync.Mutex
	after   []time.Duration
	fns     []func()
	stopped int
}

func (m *manualTimer) schedule(d time.Duration, fn func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.after = append(m.after, d)
	m.fns = append(m.fns, fn)
	return func() bool {
		m.mu.Lock()
		m.stopped++
		m.mu.Unlock()
		return true
	}
}

func (m *manualTimer) fire(i int) {
	m.mu.Lock()
	fn := m.fns[i]
	m.mu.Unlock()
	fn()
}
