package effects

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/exp/constraints"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/services"
)

// Common holds options every effect kind accepts.
type Common struct {
	DisposeOnStop bool `json:"dispose_on_stop,omitempty"`
}

var hexColor = regexp.MustCompile(`^#?(?:[0-9A-Fa-f]{6}|[0-9A-Fa-f]{8})$`)

// decodeOptions strictly decodes raw into dst. Empty input leaves dst at its
// zero value.
func decodeOptions(kind string, raw json.RawMessage, dst any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return invalid(kind, fmt.Sprintf("decode options: %v", err))
	}
	return nil
}

func invalid(kind, message string) error {
	return services.Wrap(services.ErrValidation, "effects", "create "+kind, message, nil)
}

func clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func validClip(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && !strings.ContainsAny(name, "\r\n")
}

// Transition is the optional transition block of a PLAY command.
type Transition struct {
	Transition string `json:"transition,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	Tween      string `json:"tween,omitempty"`
	Direction  string `json:"direction,omitempty"`
}

func (t Transition) play() amcp.PlayOptions {
	return amcp.PlayOptions{
		Transition: t.Transition,
		Duration:   t.Duration,
		Tween:      t.Tween,
		Direction:  t.Direction,
	}
}

func (t Transition) validate(kind string) error {
	if t.Duration < 0 {
		return invalid(kind, "transition duration must not be negative")
	}
	if t.Transition == "" && (t.Duration > 0 || t.Tween != "" || t.Direction != "") {
		return invalid(kind, "transition parameters require a transition type")
	}
	return nil
}

func validatePositioned(kind string, p caspar.Positioned) error {
	if p.Fill != nil && (p.Fill.Width < 0 || p.Fill.Height < 0) {
		return invalid(kind, "fill width and height must not be negative")
	}
	if m := p.Edgeblend; m != nil {
		for _, v := range []float64{m.Left, m.Top, m.Right, m.Bottom} {
			if v < 0 || v >= 1 {
				return invalid(kind, "edgeblend margins must be within [0, 1)")
			}
		}
		if m.Left+m.Right >= 1 || m.Top+m.Bottom >= 1 {
			return invalid(kind, "edgeblend margins leave nothing visible")
		}
	}
	if p.Animation.Duration < 0 {
		return invalid(kind, "animation duration must not be negative")
	}
	return nil
}
