package amcp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrNotConnected is returned when a command is submitted while no
	// engine connection is established.
	ErrNotConnected = errors.New("amcp: not connected")
	// ErrClosed is returned to requests still waiting when the connection
	// drops.
	ErrClosed = errors.New("amcp: connection closed")
)

// Response is one parsed reply block.
type Response struct {
	Code    int      `json:"code"`
	Command string   `json:"command,omitempty"`
	Status  string   `json:"status,omitempty"`
	Data    []string `json:"data,omitempty"`
}

// OK reports whether the engine accepted the command.
func (r Response) OK() bool {
	return r.Code > 0 && r.Code < 400
}

// Err returns an *Error for failure codes and nil otherwise.
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &Error{Code: r.Code, Command: r.Command, Status: r.Status, Data: r.Data}
}

// Error is a failure response from the engine.
type Error struct {
	Code    int
	Command string
	Status  string
	Data    []string
}

func (e *Error) Error() string {
	parts := []string{"amcp:", strconv.Itoa(e.Code)}
	if e.Command != "" {
		parts = append(parts, e.Command)
	}
	if e.Status != "" {
		parts = append(parts, e.Status)
	}
	if len(e.Data) > 0 {
		parts = append(parts, "("+strings.Join(e.Data, "; ")+")")
	}
	return strings.Join(parts, " ")
}

// FirstError returns the first failure among responses.
func FirstError(responses []Response) error {
	for _, r := range responses {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}

// dataLines returns how many data lines follow a status line with code, or
// -1 for a block terminated by an empty line.
func dataLines(code int) int {
	switch code {
	case 200:
		return -1
	case 101, 201, 400:
		return 1
	default:
		return 0
	}
}

// parseStatus splits "<code> <COMMAND> <STATUS>" or "<code> <STATUS>".
func parseStatus(line string) (Response, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Response{}, errors.New("empty status line")
	}
	code, err := strconv.Atoi(fields[0])
	if err != nil || code < 100 || code > 599 {
		return Response{}, fmt.Errorf("invalid status line %q", line)
	}
	resp := Response{Code: code}
	switch len(fields) {
	case 1:
	case 2:
		resp.Status = fields[1]
	default:
		resp.Command = fields[1]
		resp.Status = strings.Join(fields[2:], " ")
	}
	return resp, nil
}

// StatusMalformed marks a response synthesized for a status line that could
// not be parsed. It keeps FIFO correlation aligned: the line still answers
// one request, as a failure.
const StatusMalformed = "MALFORMED"

// Parser turns a byte stream from the engine into responses.
type Parser struct {
	buf       []byte
	current   *Response
	remaining int
	// Malformed counts status lines that could not be parsed.
	Malformed int
}

// Feed consumes data and returns every response completed by it.
func (p *Parser) Feed(data []byte) []Response {
	p.buf = append(p.buf, data...)
	var out []Response
	for {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(string(p.buf[:idx]), "\r")
		p.buf = p.buf[idx+1:]
		if resp, done := p.line(line); done {
			out = append(out, resp)
		}
	}
	return out
}

func (p *Parser) line(line string) (Response, bool) {
	if p.current == nil {
		if strings.TrimSpace(line) == "" {
			return Response{}, false
		}
		resp, err := parseStatus(line)
		if err != nil {
			p.Malformed++
			return Response{Status: StatusMalformed, Data: []string{line}}, true
		}
		p.remaining = dataLines(resp.Code)
		if p.remaining == 0 {
			return resp, true
		}
		p.current = &resp
		return Response{}, false
	}

	if p.remaining < 0 {
		if line == "" {
			return p.finish(), true
		}
		p.current.Data = append(p.current.Data, line)
		return Response{}, false
	}

	p.current.Data = append(p.current.Data, line)
	p.remaining--
	if p.remaining == 0 {
		return p.finish(), true
	}
	return Response{}, false
}

func (p *Parser) finish() Response {
	resp := *p.current
	p.current = nil
	p.remaining = 0
	return resp
}
