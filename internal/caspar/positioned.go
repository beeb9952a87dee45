package caspar

import "cgmanager/internal/amcp"

// Rect is a fill rectangle in normalized channel coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Margins are edge-blend overlaps, as fractions of the frame, cut from each
// side of the layer.
type Margins struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Positioned is the geometry capability shared by effects that place their
// output on the frame: a fill rectangle, edge-blend margins and perspective
// corner pins (upper-left, upper-right, lower-right, lower-left as x,y
// pairs). Effects embed it and add its commands to their activation batch.
type Positioned struct {
	Fill        *Rect          `json:"fill,omitempty"`
	Edgeblend   *Margins       `json:"edgeblend,omitempty"`
	Perspective *[8]float64    `json:"perspective,omitempty"`
	Animation   amcp.Animation `json:"animation,omitempty"`
}

// Empty reports whether no geometry is configured.
func (p Positioned) Empty() bool {
	return p.Fill == nil && p.Edgeblend == nil && p.Perspective == nil
}

// PositionCommands returns the MIXER commands applying the geometry to every
// layer, or nil when no geometry is configured.
func (p Positioned) PositionCommands(layers ...*Layer) amcp.Command {
	if p.Empty() {
		return nil
	}
	g := amcp.NewGroup()
	for _, l := range layers {
		if p.Fill != nil {
			g.Add(amcp.Allocate(amcp.MixerFill(p.Fill.X, p.Fill.Y, p.Fill.Width, p.Fill.Height, p.Animation), l))
		}
		if p.Edgeblend != nil {
			m := p.Edgeblend
			g.Add(amcp.Allocate(amcp.MixerCrop(m.Left, m.Top, 1-m.Right, 1-m.Bottom, p.Animation), l))
		}
		if p.Perspective != nil {
			g.Add(amcp.Allocate(amcp.MixerPerspective(*p.Perspective, p.Animation), l))
		}
	}
	return g
}

// ResetCommands clears the mixer state of every layer when geometry was
// applied, or returns nil.
func (p Positioned) ResetCommands(layers ...*Layer) amcp.Command {
	if p.Empty() {
		return nil
	}
	g := amcp.NewGroup()
	for _, l := range layers {
		g.Add(amcp.Allocate(amcp.MixerClear(), l))
	}
	return g
}
