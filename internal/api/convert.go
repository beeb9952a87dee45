package api

import (
	"time"

	"cgmanager/internal/amcp"
	"cgmanager/internal/caspar"
	"cgmanager/internal/media"
	"cgmanager/internal/routes"
)

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// FromEffect converts a live effect.
func FromEffect(e caspar.Effect) Effect {
	dto := Effect{
		ID:     e.ID(),
		Type:   e.Name(),
		Active: e.Active(),
		Layers: []int{},
	}
	if g := e.Group(); g != nil {
		dto.Group = g.Name()
		dto.Channel = g.Channel().ID()
	}
	for _, l := range e.Layers() {
		dto.Layers = append(dto.Layers, l.CasparLayer())
	}
	return dto
}

// FromChannel converts a channel's logical layout.
func FromChannel(ch *caspar.Channel) Channel {
	dto := Channel{
		ID:      ch.ID(),
		Pending: ch.Pending(),
		Groups:  []Group{},
		Layers:  []Layer{},
	}
	for _, g := range ch.Groups() {
		group := Group{Name: g.Name(), Effects: []Effect{}}
		for _, e := range g.Effects() {
			group.Effects = append(group.Effects, FromEffect(e))
		}
		dto.Groups = append(dto.Groups, group)
	}
	for _, l := range ch.Layers() {
		layer := Layer{ID: l.ID(), Group: l.Group(), CasparLayer: l.CasparLayer()}
		for _, e := range l.ActiveEffects() {
			layer.Effects = append(layer.Effects, e.ID())
		}
		dto.Layers = append(dto.Layers, layer)
	}
	return dto
}

// FromResponses converts engine responses.
func FromResponses(responses []amcp.Response) []CommandResponse {
	out := make([]CommandResponse, 0, len(responses))
	for _, r := range responses {
		out = append(out, CommandResponse{Code: r.Code, Command: r.Command, Status: r.Status, Data: r.Data})
	}
	return out
}

// FromMediaItem converts a catalogue entry.
func FromMediaItem(item *media.Item) MediaItem {
	return MediaItem{
		ID:         item.ID,
		Type:       item.Type,
		Size:       item.Size,
		Modified:   formatTime(item.Modified),
		Frames:     item.Frames,
		FrameRate:  item.FrameRate(),
		DurationMS: item.Duration().Milliseconds(),
	}
}

// FromMediaItems converts a slice of catalogue entries.
func FromMediaItems(items []*media.Item) []MediaItem {
	out := make([]MediaItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, FromMediaItem(item))
	}
	return out
}

// FromRefreshResult converts a scanner result.
func FromRefreshResult(r media.RefreshResult) RefreshResult {
	return RefreshResult{Items: r.Items, Removed: r.Removed, Skipped: r.Skipped, At: formatTime(r.At)}
}

// FromRoute converts a route with its live state.
func FromRoute(s routes.Status) Route {
	return Route{
		ID:            s.ID,
		Name:          s.Name,
		SourceChannel: s.SourceChannel,
		SourceLayer:   s.SourceLayer,
		DestChannel:   s.DestChannel,
		DestGroup:     s.DestGroup,
		Enabled:       s.Enabled,
		Active:        s.Active,
		EffectID:      s.EffectID,
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

// ToRouteSpec converts a create request.
func ToRouteSpec(req RouteRequest) routes.Spec {
	return routes.Spec{
		Name:          req.Name,
		SourceChannel: req.SourceChannel,
		SourceLayer:   req.SourceLayer,
		DestChannel:   req.DestChannel,
		DestGroup:     req.DestGroup,
		Enabled:       req.Enabled,
	}
}

// FromEvent converts an executor event, tagging it with id.
func FromEvent(id string, ev caspar.Event) Event {
	return Event{
		ID:       id,
		Kind:     string(ev.Kind),
		Time:     formatTime(ev.Time),
		Channel:  ev.Channel,
		EffectID: ev.EffectID,
		Effect:   ev.Effect,
		Group:    ev.Group,
		Layers:   ev.Layers,
		Swaps:    ev.Swaps,
		Clears:   ev.Clears,
	}
}
