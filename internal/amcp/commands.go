package amcp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Keywords understood by the engine.
const (
	KeywordLoadBG  = "LOADBG"
	KeywordLoad    = "LOAD"
	KeywordPlay    = "PLAY"
	KeywordPause   = "PAUSE"
	KeywordResume  = "RESUME"
	KeywordStop    = "STOP"
	KeywordClear   = "CLEAR"
	KeywordSwap    = "SWAP"
	KeywordCG      = "CG"
	KeywordCall    = "CALL"
	KeywordMixer   = "MIXER"
	KeywordCLS     = "CLS"
	KeywordVersion = "VERSION"
	KeywordInfo    = "INFO"
)

// BasicCommand is a keyword followed by a position and nothing else, such
// as "CLEAR 1-3" or "PAUSE 1-10".
type BasicCommand struct {
	Layered
	Keyword string
}

// Clear removes everything on the position.
func Clear() *BasicCommand { return &BasicCommand{Keyword: KeywordClear} }

// Pause pauses the foreground producer.
func Pause() *BasicCommand { return &BasicCommand{Keyword: KeywordPause} }

// Resume resumes a paused producer.
func Resume() *BasicCommand { return &BasicCommand{Keyword: KeywordResume} }

// Stop removes the foreground producer.
func Stop() *BasicCommand { return &BasicCommand{Keyword: KeywordStop} }

func (c *BasicCommand) String() string {
	pos, ok := c.Position()
	if !ok {
		return ""
	}
	return format(c.Keyword, pos)
}

func (c *BasicCommand) Lines() []string { return singleLine(c.String()) }

// SwapCommand exchanges the contents of two positions.
type SwapCommand struct {
	Layered
	Other      PositionInput
	Transforms bool
}

// Swap builds "SWAP <pos> <other> [TRANSFORMS]".
func Swap(other PositionInput, transforms bool) *SwapCommand {
	return &SwapCommand{Other: other, Transforms: transforms}
}

func (c *SwapCommand) String() string {
	pos, ok := c.Position()
	if !ok {
		return ""
	}
	other, ok := PositionFrom(c.Other)
	if !ok {
		return ""
	}
	args := []string{other.String()}
	if c.Transforms {
		args = append(args, "TRANSFORMS")
	}
	return format(KeywordSwap, pos, args...)
}

func (c *SwapCommand) Lines() []string { return singleLine(c.String()) }

// PlayOptions carries the optional arguments of LOADBG, LOAD and PLAY.
type PlayOptions struct {
	Transition string `json:"transition,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	Tween      string `json:"tween,omitempty"`
	Direction  string `json:"direction,omitempty"`
	Seek       int    `json:"seek,omitempty"`
	Length     int    `json:"length,omitempty"`
	Filter     string `json:"filter,omitempty"`
	Loop       bool   `json:"loop,omitempty"`
	Auto       bool   `json:"auto,omitempty"`
}

// args renders the options in the order the engine parses them: transition
// block first, then SEEK, LENGTH, FILTER, LOOP and AUTO.
func (o PlayOptions) args() []string {
	var out []string
	if t := strings.ToUpper(strings.TrimSpace(o.Transition)); t != "" {
		out = append(out, t, strconv.Itoa(o.Duration))
		if o.Tween != "" {
			out = append(out, o.Tween)
		}
		if o.Direction != "" {
			out = append(out, strings.ToUpper(o.Direction))
		}
	}
	if o.Seek > 0 {
		out = append(out, "SEEK", strconv.Itoa(o.Seek))
	}
	if o.Length > 0 {
		out = append(out, "LENGTH", strconv.Itoa(o.Length))
	}
	if o.Filter != "" {
		out = append(out, "FILTER", Quote(o.Filter))
	}
	if o.Loop {
		out = append(out, "LOOP")
	}
	if o.Auto {
		out = append(out, "AUTO")
	}
	return out
}

// MediaCommand loads or plays a producer source: a clip, a color, a route or
// any other producer the engine resolves from its first parameter.
type MediaCommand struct {
	Layered
	Keyword string
	Source  string
	Options PlayOptions
}

// LoadBG preloads source into the background of the position.
func LoadBG(source string, opts PlayOptions) *MediaCommand {
	return &MediaCommand{Keyword: KeywordLoadBG, Source: source, Options: opts}
}

// Load loads source into the foreground paused on its first frame.
func Load(source string, opts PlayOptions) *MediaCommand {
	return &MediaCommand{Keyword: KeywordLoad, Source: source, Options: opts}
}

// Play plays source, or the loaded background when source is empty.
func Play(source string, opts PlayOptions) *MediaCommand {
	return &MediaCommand{Keyword: KeywordPlay, Source: source, Options: opts}
}

// LoadBGVideo is LoadBG for a media clip.
func LoadBGVideo(clip string, opts PlayOptions) *MediaCommand {
	return LoadBG(clip, opts)
}

// ColorSource formats a color producer parameter such as "#FF0000".
func ColorSource(hex string) string {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	return "#" + strings.ToUpper(hex)
}

// RouteSource formats a route producer parameter for pos.
func RouteSource(pos Position) string {
	return "route://" + pos.String()
}

func (c *MediaCommand) String() string {
	pos, ok := c.Position()
	if !ok {
		return ""
	}
	if c.Source == "" {
		if c.Keyword != KeywordPlay {
			return ""
		}
		return format(c.Keyword, pos)
	}
	args := append([]string{Quote(c.Source)}, c.Options.args()...)
	return format(c.Keyword, pos, args...)
}

func (c *MediaCommand) Lines() []string { return singleLine(c.String()) }

// CG subcommands.
const (
	CGAdd    = "ADD"
	CGPlay   = "PLAY"
	CGStop   = "STOP"
	CGNext   = "NEXT"
	CGRemove = "REMOVE"
	CGClear  = "CLEAR"
	CGUpdate = "UPDATE"
	CGInvoke = "INVOKE"
)

// CgCommand controls template graphics on a position.
type CgCommand struct {
	Layered
	Sub  string
	Args []string
}

// CgAdd builds "CG <pos> ADD <cg-layer> <template> <0|1> [data]". data may be
// a string, json.RawMessage, or any JSON-marshalable value; it panics when
// data cannot be marshaled. Compact JSON is sent bare: {"a":1}.
func CgAdd(cgLayer int, template string, playOnLoad bool, data any) *CgCommand {
	args := []string{strconv.Itoa(cgLayer), Quote(template), boolArg(playOnLoad)}
	if encoded := encodeData(data); encoded != "" {
		args = append(args, encoded)
	}
	return &CgCommand{Sub: CGAdd, Args: args}
}

// CgPlay plays the template on cgLayer.
func CgPlay(cgLayer int) *CgCommand {
	return &CgCommand{Sub: CGPlay, Args: []string{strconv.Itoa(cgLayer)}}
}

// CgStop stops the template on cgLayer.
func CgStop(cgLayer int) *CgCommand {
	return &CgCommand{Sub: CGStop, Args: []string{strconv.Itoa(cgLayer)}}
}

// CgNext advances the template on cgLayer.
func CgNext(cgLayer int) *CgCommand {
	return &CgCommand{Sub: CGNext, Args: []string{strconv.Itoa(cgLayer)}}
}

// CgRemove removes the template on cgLayer.
func CgRemove(cgLayer int) *CgCommand {
	return &CgCommand{Sub: CGRemove, Args: []string{strconv.Itoa(cgLayer)}}
}

// CgClear removes every template on the position.
func CgClear() *CgCommand {
	return &CgCommand{Sub: CGClear}
}

// CgUpdate sends new data to the template on cgLayer.
func CgUpdate(cgLayer int, data any) *CgCommand {
	return &CgCommand{Sub: CGUpdate, Args: []string{strconv.Itoa(cgLayer), encodeData(data)}}
}

// CgInvoke calls method on the template on cgLayer.
func CgInvoke(cgLayer int, method string) *CgCommand {
	return &CgCommand{Sub: CGInvoke, Args: []string{strconv.Itoa(cgLayer), Quote(method)}}
}

func (c *CgCommand) String() string {
	pos, ok := c.Position()
	if !ok {
		return ""
	}
	return format(KeywordCG, pos, append([]string{c.Sub}, c.Args...)...)
}

func (c *CgCommand) Lines() []string { return singleLine(c.String()) }

// CallCommand invokes a producer method, for example "CALL 1-1 SEEK 25".
type CallCommand struct {
	Layered
	Method string
	Args   []string
}

// Call builds a CALL command.
func Call(method string, args ...string) *CallCommand {
	return &CallCommand{Method: method, Args: args}
}

// String panics when no method is set: a CALL without a method is a
// construction defect in the caller.
func (c *CallCommand) String() string {
	if strings.TrimSpace(c.Method) == "" {
		panic("amcp: CALL command requires a method")
	}
	pos, ok := c.Position()
	if !ok {
		return ""
	}
	return format(KeywordCall, pos, append([]string{strings.ToUpper(c.Method)}, c.Args...)...)
}

func (c *CallCommand) Lines() []string { return singleLine(c.String()) }

// Animation describes an optional mixer transition.
type Animation struct {
	Duration int    `json:"duration,omitempty"`
	Tween    string `json:"tween,omitempty"`
}

func (a Animation) args() []string {
	if a.Duration <= 0 {
		return nil
	}
	out := []string{strconv.Itoa(a.Duration)}
	if a.Tween != "" {
		out = append(out, a.Tween)
	}
	return out
}

// Mixer subcommands.
const (
	MixerSubFill        = "FILL"
	MixerSubOpacity     = "OPACITY"
	MixerSubVolume      = "VOLUME"
	MixerSubKeyer       = "KEYER"
	MixerSubCrop        = "CROP"
	MixerSubClip        = "CLIP"
	MixerSubPerspective = "PERSPECTIVE"
	MixerSubBlend       = "BLEND"
	MixerSubClear       = "CLEAR"
	MixerSubCommit      = "COMMIT"
)

// MixerCommand changes a mixer property of a position.
type MixerCommand struct {
	Layered
	Sub  string
	Args []string
}

// MixerFill positions and scales the layer in normalized coordinates.
func MixerFill(x, y, scaleX, scaleY float64, anim Animation) *MixerCommand {
	args := append(floats(x, y, scaleX, scaleY), anim.args()...)
	return &MixerCommand{Sub: MixerSubFill, Args: args}
}

// MixerOpacity sets the layer opacity (0..1).
func MixerOpacity(opacity float64, anim Animation) *MixerCommand {
	return &MixerCommand{Sub: MixerSubOpacity, Args: append(floats(opacity), anim.args()...)}
}

// MixerVolume sets the layer audio volume (0..1).
func MixerVolume(volume float64, anim Animation) *MixerCommand {
	return &MixerCommand{Sub: MixerSubVolume, Args: append(floats(volume), anim.args()...)}
}

// MixerKeyer makes the layer act as the key for the layer above it.
func MixerKeyer(enabled bool) *MixerCommand {
	return &MixerCommand{Sub: MixerSubKeyer, Args: []string{boolArg(enabled)}}
}

// MixerCrop crops the layer edges in normalized coordinates.
func MixerCrop(left, top, right, bottom float64, anim Animation) *MixerCommand {
	args := append(floats(left, top, right, bottom), anim.args()...)
	return &MixerCommand{Sub: MixerSubCrop, Args: args}
}

// MixerClip masks the layer to a rectangle in normalized coordinates.
func MixerClip(x, y, width, height float64, anim Animation) *MixerCommand {
	args := append(floats(x, y, width, height), anim.args()...)
	return &MixerCommand{Sub: MixerSubClip, Args: args}
}

// MixerPerspective pins the four corners (upper-left, upper-right,
// lower-right, lower-left) of the layer.
func MixerPerspective(corners [8]float64, anim Animation) *MixerCommand {
	args := append(floats(corners[:]...), anim.args()...)
	return &MixerCommand{Sub: MixerSubPerspective, Args: args}
}

// MixerBlend sets the layer blend mode.
func MixerBlend(mode string) *MixerCommand {
	return &MixerCommand{Sub: MixerSubBlend, Args: []string{strings.ToUpper(mode)}}
}

// MixerClear resets every mixer property of the position.
func MixerClear() *MixerCommand {
	return &MixerCommand{Sub: MixerSubClear}
}

// MixerCommit applies deferred mixer changes on a channel.
func MixerCommit() *MixerCommand {
	return &MixerCommand{Sub: MixerSubCommit}
}

func (c *MixerCommand) String() string {
	pos, ok := c.Position()
	if !ok {
		return ""
	}
	return format(KeywordMixer, pos, append([]string{c.Sub}, c.Args...)...)
}

func (c *MixerCommand) Lines() []string { return singleLine(c.String()) }

func floats(values ...float64) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return out
}

func boolArg(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func encodeData(data any) string {
	switch v := data.(type) {
	case nil:
		return ""
	case string:
		return Quote(v)
	case json.RawMessage:
		if len(v) == 0 {
			return ""
		}
		return jsonArg(string(v))
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		panic(fmt.Sprintf("amcp: encode template data: %v", err))
	}
	return jsonArg(string(encoded))
}

// jsonArg passes compact JSON through as one bare token. Only JSON holding
// whitespace, which would split the token, is quoted.
func jsonArg(encoded string) string {
	if strings.ContainsAny(encoded, " \t\r\n") {
		return Quote(encoded)
	}
	return encoded
}

// InfoCommand queries the engine and addresses no layer: CLS, VERSION and
// INFO.
type InfoCommand struct {
	Keyword string
	Args    []string
}

// Cls lists the media files known to the engine.
func Cls() *InfoCommand { return &InfoCommand{Keyword: KeywordCLS} }

// Version asks for the engine version.
func Version() *InfoCommand { return &InfoCommand{Keyword: KeywordVersion} }

// Info lists the channels, or describes one when channel > 0.
func Info(channel int) *InfoCommand {
	c := &InfoCommand{Keyword: KeywordInfo}
	if channel > 0 {
		c.Args = []string{strconv.Itoa(channel)}
	}
	return c
}

func (c *InfoCommand) String() string {
	return strings.Join(append([]string{c.Keyword}, c.Args...), " ")
}

func (c *InfoCommand) Lines() []string { return singleLine(c.String()) }
