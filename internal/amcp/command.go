package amcp

import "strings"

// LineSeparator terminates every AMCP line on the wire.
const LineSeparator = "\r\n"

// Command is a unit of protocol text.
//
// String returns the wire text, or "" when the command is not sufficiently
// configured to be sent (for example no position bound yet). An empty result
// is a valid outcome meaning "nothing to send", not an error.
type Command interface {
	String() string
	// Lines returns the non-empty protocol lines this command transmits.
	Lines() []string
}

// LayeredCommand is a command addressed at a position.
type LayeredCommand interface {
	Command
	Allocate(in PositionInput)
}

// Allocate binds cmd to in and returns cmd, for use in expressions.
func Allocate[C LayeredCommand](cmd C, in PositionInput) C {
	cmd.Allocate(in)
	return cmd
}

// Layered holds the position binding shared by every keyword command. The
// input is resolved when the command is formatted, so a command bound to a
// layer handle picks up the layer's current engine number.
type Layered struct {
	target PositionInput
}

// Allocate binds the command to a position.
func (l *Layered) Allocate(in PositionInput) {
	l.target = in
}

// Position resolves the bound input.
func (l *Layered) Position() (Position, bool) {
	return PositionFrom(l.target)
}

// RawCommand sends its text unchanged.
type RawCommand struct {
	Text string
}

// Raw wraps literal protocol text.
func Raw(text string) *RawCommand {
	return &RawCommand{Text: text}
}

func (c *RawCommand) String() string {
	return c.Text
}

func (c *RawCommand) Lines() []string {
	return splitLines(c.Text)
}

// Group batches commands so they are transmitted in one write and their
// responses are returned together, in order.
type Group struct {
	commands []Command
}

// NewGroup creates a group from cmds.
func NewGroup(cmds ...Command) *Group {
	g := &Group{}
	g.Add(cmds...)
	return g
}

// Add appends commands; nil entries are ignored.
func (g *Group) Add(cmds ...Command) {
	for _, cmd := range cmds {
		if cmd == nil {
			continue
		}
		g.commands = append(g.commands, cmd)
	}
}

// Commands returns the grouped commands.
func (g *Group) Commands() []Command {
	return g.commands
}

// Len returns the number of grouped commands.
func (g *Group) Len() int {
	return len(g.commands)
}

// Allocate propagates one position to every layered member.
func (g *Group) Allocate(in PositionInput) {
	for _, cmd := range g.commands {
		if lc, ok := cmd.(LayeredCommand); ok {
			lc.Allocate(in)
		}
	}
}

// Lines flattens the members' lines. Members with nothing to send are
// skipped so every transmitted line receives exactly one response.
func (g *Group) Lines() []string {
	var lines []string
	for _, cmd := range g.commands {
		lines = append(lines, cmd.Lines()...)
	}
	return lines
}

func (g *Group) String() string {
	return strings.Join(g.Lines(), LineSeparator)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func singleLine(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// format assembles "<KEYWORD> <position> <args...>", dropping empty args.
func format(keyword string, pos Position, args ...string) string {
	var b strings.Builder
	b.WriteString(keyword)
	b.WriteByte(' ')
	b.WriteString(pos.String())
	for _, arg := range args {
		if arg == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	return b.String()
}

// Quote returns s as a single AMCP parameter, wrapping it in double quotes
// when it is empty or contains whitespace, quotes or backslashes.
func Quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\r\n\"\\") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}
