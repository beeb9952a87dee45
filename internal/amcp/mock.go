package amcp

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
)

// MockServer simulates the engine's AMCP endpoint. It answers every line with
// the framing the real server uses and tracks which producer occupies each
// layer, applying PLAY, LOADBG+PLAY, STOP, CLEAR and SWAP.
type MockServer struct {
	listener net.Listener

	mu         sync.Mutex
	conns      []net.Conn
	received   []string
	layers     map[Position]string
	background map[Position]string

	Version string
	// Media lines returned by CLS, in the engine's listing format.
	Media []string
	// Failures maps a keyword to the failure code returned for it.
	Failures map[string]int
}

// NewMockServer listens on an ephemeral loopback port.
func NewMockServer() (*MockServer, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	m := &MockServer{
		listener:   ln,
		layers:     make(map[Position]string),
		background: make(map[Position]string),
		Version:    "2.3.3 LTS",
		Failures:   make(map[string]int),
	}
	go m.serve()
	return m, nil
}

// Addr returns the host:port the server listens on.
func (m *MockServer) Addr() string {
	return m.listener.Addr().String()
}

// Close stops listening and drops every connection.
func (m *MockServer) Close() error {
	err := m.listener.Close()
	m.DropConnections()
	return err
}

// DropConnections closes all client connections without stopping the
// listener.
func (m *MockServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, conn := range m.conns {
		conn.Close()
	}
	m.conns = nil
}

// Reset forgets every layer assignment and received line, as after an
// engine restart.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = nil
	m.layers = make(map[Position]string)
	m.background = make(map[Position]string)
}

// SetMedia replaces the CLS listing.
func (m *MockServer) SetMedia(lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Media = append([]string(nil), lines...)
}

// Fail makes every command with keyword answer with code.
func (m *MockServer) Fail(keyword string, code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failures[strings.ToUpper(keyword)] = code
}

// Received returns every line received so far.
func (m *MockServer) Received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.received...)
}

// Layer returns the producer occupying pos.
func (m *MockServer) Layer(pos Position) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.layers[pos]
	return v, ok
}

// Layers returns the occupied layers of channel in ascending order.
func (m *MockServer) Layers(channel int) []Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Position
	for pos := range m.layers {
		if pos.Channel == channel {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Layer < out[j].Layer })
	return out
}

func (m *MockServer) serve() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.conns = append(m.conns, conn)
		m.mu.Unlock()
		go m.handleConn(conn)
	}
}

func (m *MockServer) handleConn(conn net.Conn) {
	buf := make([]byte, 0, 65536)
	tmp := make([]byte, 4096)
	for {
		n, err := conn.Read(tmp)
		if err != nil {
			return
		}
		buf = append(buf, tmp[:n]...)
		for {
			idx := strings.Index(string(buf), "\r\n")
			if idx < 0 {
				break
			}
			line := string(buf[:idx])
			buf = buf[idx+2:]
			if strings.TrimSpace(line) == "" {
				continue
			}
			reply := m.handleLine(line)
			if _, err := conn.Write([]byte(reply)); err != nil {
				return
			}
		}
	}
}

func (m *MockServer) handleLine(line string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = append(m.received, line)

	args := SplitParams(line)
	keyword := strings.ToUpper(args[0])
	if code, ok := m.Failures[keyword]; ok {
		if code == 400 {
			return "400 ERROR\r\n" + line + "\r\n"
		}
		return fmt.Sprintf("%d %s FAILED\r\n", code, keyword)
	}

	switch keyword {
	case KeywordVersion:
		return "201 VERSION OK\r\n" + m.Version + "\r\n"
	case KeywordCLS:
		var b strings.Builder
		b.WriteString("200 CLS OK\r\n")
		for _, media := range m.Media {
			b.WriteString(media)
			b.WriteString("\r\n")
		}
		b.WriteString("\r\n")
		return b.String()
	}

	if len(args) < 2 {
		return "400 ERROR\r\n" + line + "\r\n"
	}
	pos, ok := parsePosition(args[1])
	if !ok {
		return "400 ERROR\r\n" + line + "\r\n"
	}

	switch keyword {
	case KeywordPlay:
		if len(args) > 2 {
			m.layers[pos] = args[2]
			delete(m.background, pos)
		} else if bg, ok := m.background[pos]; ok {
			m.layers[pos] = bg
			delete(m.background, pos)
		}
	case KeywordLoadBG:
		if len(args) > 2 {
			m.background[pos] = args[2]
		}
	case KeywordLoad:
		if len(args) > 2 {
			m.layers[pos] = args[2]
		}
	case KeywordStop:
		delete(m.layers, pos)
	case KeywordClear:
		if pos.HasLayer() {
			delete(m.layers, pos)
			delete(m.background, pos)
		} else {
			for p := range m.layers {
				if p.Channel == pos.Channel {
					delete(m.layers, p)
				}
			}
		}
	case KeywordSwap:
		if len(args) < 3 {
			return "400 ERROR\r\n" + line + "\r\n"
		}
		other, ok := parsePosition(args[2])
		if !ok {
			return "400 ERROR\r\n" + line + "\r\n"
		}
		a, aok := m.layers[pos]
		b, bok := m.layers[other]
		delete(m.layers, pos)
		delete(m.layers, other)
		if aok {
			m.layers[other] = a
		}
		if bok {
			m.layers[pos] = b
		}
	}
	return fmt.Sprintf("202 %s OK\r\n", keyword)
}

func parsePosition(token string) (Position, bool) {
	var p Position
	if strings.Contains(token, "-") {
		if _, err := fmt.Sscanf(token, "%d-%d", &p.Channel, &p.Layer); err != nil {
			return Position{}, false
		}
	} else if _, err := fmt.Sscanf(token, "%d", &p.Channel); err != nil {
		return Position{}, false
	}
	return p, p.Valid()
}

// SplitParams splits an AMCP line into parameters, honouring double quotes
// and backslash escapes inside them.
func SplitParams(line string) []string {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
		escaped bool
		started bool
	)
	for _, r := range line {
		switch {
		case escaped:
			if r == 'n' {
				cur.WriteRune('\n')
			} else {
				cur.WriteRune(r)
			}
			escaped = false
		case inQuote && r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
			started = true
		case !inQuote && (r == ' ' || r == '\t'):
			if started {
				out = append(out, cur.String())
				cur.Reset()
				started = false
			}
		default:
			cur.WriteRune(r)
			started = true
		}
	}
	if started {
		out = append(out, cur.String())
	}
	if len(out) == 0 {
		out = []string{""}
	}
	return out
}
