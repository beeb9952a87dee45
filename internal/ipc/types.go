package ipc

import "cgmanager/internal/api"

// ServiceName is the net/rpc service the daemon registers.
const ServiceName = "CGManager"

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse mirrors the HTTP status payload.
type StatusResponse = api.DaemonStatus

// ChannelsRequest fetches the layout of every managed channel.
type ChannelsRequest struct{}

// ChannelsResponse contains channel layouts ordered by id.
type ChannelsResponse struct {
	Channels []api.Channel `json:"channels"`
}

// MediaRequest filters the media catalogue.
type MediaRequest struct {
	Type   string `json:"type"`
	Prefix string `json:"prefix"`
}

// MediaResponse contains catalogue entries ordered by id.
type MediaResponse = api.MediaListResponse

// RefreshMediaRequest rescans the engine's media listing.
type RefreshMediaRequest struct{}

// RefreshMediaResponse summarizes the rescan.
type RefreshMediaResponse = api.RefreshResult

// RoutesRequest lists stored routes.
type RoutesRequest struct{}

// RoutesResponse contains stored routes with their live state.
type RoutesResponse = api.RouteListResponse

// RouteToggleRequest enables or disables a stored route.
type RouteToggleRequest struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

// RouteToggleResponse carries the route after the toggle.
type RouteToggleResponse struct {
	Route api.Route `json:"route"`
}

// SendRequest carries a raw AMCP command.
type SendRequest struct {
	Command string `json:"command"`
}

// SendResponse contains one response per transmitted line.
type SendResponse = api.CommandResult
