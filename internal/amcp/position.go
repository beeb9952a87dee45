package amcp

import "strconv"

// Position addresses a channel, or a layer within a channel, on the engine.
// A zero Layer means the position refers to the whole channel.
type Position struct {
	Channel int
	Layer   int
}

// At builds a numeric position. Extra layer values are ignored.
func At(channel int, layer ...int) Position {
	p := Position{Channel: channel}
	if len(layer) > 0 {
		p.Layer = layer[0]
	}
	return p
}

// Valid reports whether the position can be serialized.
func (p Position) Valid() bool {
	return p.Channel > 0 && p.Layer >= 0
}

// HasLayer reports whether the position addresses a single layer.
func (p Position) HasLayer() bool {
	return p.Layer > 0
}

// String returns the wire token: "<channel>" or "<channel>-<layer>". Invalid
// positions serialize to the empty string.
func (p Position) String() string {
	if !p.Valid() {
		return ""
	}
	if p.Layer == 0 {
		return strconv.Itoa(p.Channel)
	}
	return strconv.Itoa(p.Channel) + "-" + strconv.Itoa(p.Layer)
}

// AMCPPosition makes a numeric Position usable wherever a PositionInput is
// accepted.
func (p Position) AMCPPosition() (Position, bool) {
	return p, p.Valid()
}

// PositionInput is anything a command can be addressed to: a numeric
// Position, or a channel or layer handle that resolves to one once the
// engine has assigned it a number.
type PositionInput interface {
	AMCPPosition() (Position, bool)
}

// PositionFrom normalizes an input to a single canonical Position. The
// boolean is false when the input is nil or not yet bound to the engine.
func PositionFrom(in PositionInput) (Position, bool) {
	if in == nil {
		return Position{}, false
	}
	p, ok := in.AMCPPosition()
	if !ok || !p.Valid() {
		return Position{}, false
	}
	return p, true
}
