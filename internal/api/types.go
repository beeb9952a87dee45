package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// EngineStatus describes the AMCP connection.
type EngineStatus struct {
	Address   string `json:"address"`
	Connected bool   `json:"connected"`
}

// MediaSummary describes the media catalogue.
type MediaSummary struct {
	Count       int    `json:"count"`
	LastRefresh string `json:"lastRefresh,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	StartedAt    string       `json:"startedAt,omitempty"`
	DatabasePath string       `json:"databasePath,omitempty"`
	LockFilePath string       `json:"lockFilePath,omitempty"`
	SocketPath   string       `json:"socketPath,omitempty"`
	APIBind      string       `json:"apiBind,omitempty"`
	Engine       EngineStatus `json:"engine"`
	Channels     int          `json:"channels"`
	Effects      int          `json:"effects"`
	Routes       int          `json:"routes"`
	Media        MediaSummary `json:"media"`
}

// Effect is a live effect.
type Effect struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Channel int    `json:"channel"`
	Group   string `json:"group"`
	Active  bool   `json:"active"`
	// Layers are the engine layer numbers, 0 while not yet reconciled.
	Layers []int `json:"layers"`
}

// Layer is one logical layer of a channel.
type Layer struct {
	ID          int64    `json:"id"`
	Group       string   `json:"group,omitempty"`
	CasparLayer int      `json:"casparLayer"`
	Effects     []string `json:"effects,omitempty"`
}

// Group is an effect group in stacking order.
type Group struct {
	Name    string   `json:"name"`
	Effects []Effect `json:"effects"`
}

// Channel is the logical layout of a managed channel.
type Channel struct {
	ID      int     `json:"id"`
	Pending bool    `json:"pending"`
	Groups  []Group `json:"groups"`
	Layers  []Layer `json:"layers"`
}

// CreateEffectRequest creates an effect in a group of a channel.
type CreateEffectRequest struct {
	Type    string          `json:"type"`
	Group   string          `json:"group"`
	Options json.RawMessage `json:"options,omitempty"`
	// Activate defaults to true.
	Activate *bool `json:"activate,omitempty"`
}

// TemplateUpdateRequest sends new data to a template effect.
type TemplateUpdateRequest struct {
	Data json.RawMessage `json:"data"`
}

// TemplateInvokeRequest calls a method of a template effect.
type TemplateInvokeRequest struct {
	Method string `json:"method"`
}

// CommandRequest carries a raw AMCP command, possibly several lines.
type CommandRequest struct {
	Command string `json:"command"`
}

// CommandResponse mirrors one engine response.
type CommandResponse struct {
	Code    int      `json:"code"`
	Command string   `json:"command,omitempty"`
	Status  string   `json:"status,omitempty"`
	Data    []string `json:"data,omitempty"`
}

// CommandResult wraps the responses to a raw command.
type CommandResult struct {
	Responses []CommandResponse `json:"responses"`
}

// MediaItem is a media catalogue entry.
type MediaItem struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Size       int64   `json:"size"`
	Modified   string  `json:"modified,omitempty"`
	Frames     int64   `json:"frames"`
	FrameRate  float64 `json:"frameRate,omitempty"`
	DurationMS int64   `json:"durationMs,omitempty"`
}

// MediaListResponse wraps a collection of media items.
type MediaListResponse struct {
	Items []MediaItem `json:"items"`
}

// RefreshResult summarizes a media refresh.
type RefreshResult struct {
	Items   int    `json:"items"`
	Removed int64  `json:"removed"`
	Skipped int    `json:"skipped"`
	At      string `json:"at"`
}

// Route is a stored route with its live state.
type Route struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	SourceChannel int    `json:"sourceChannel"`
	SourceLayer   int    `json:"sourceLayer,omitempty"`
	DestChannel   int    `json:"destChannel"`
	DestGroup     string `json:"destGroup"`
	Enabled       bool   `json:"enabled"`
	Active        bool   `json:"active"`
	EffectID      string `json:"effectId,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// RouteRequest creates a route.
type RouteRequest struct {
	Name          string `json:"name,omitempty"`
	SourceChannel int    `json:"sourceChannel"`
	SourceLayer   int    `json:"sourceLayer,omitempty"`
	DestChannel   int    `json:"destChannel"`
	DestGroup     string `json:"destGroup"`
	Enabled       *bool  `json:"enabled,omitempty"`
}

// RouteListResponse wraps a collection of routes.
type RouteListResponse struct {
	Routes []Route `json:"routes"`
}

// Event is an executor event as streamed to subscribers.
type Event struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Time     string `json:"time"`
	Channel  int    `json:"channel"`
	EffectID string `json:"effectId,omitempty"`
	Effect   string `json:"effect,omitempty"`
	Group    string `json:"group,omitempty"`
	Layers   []int  `json:"layers,omitempty"`
	Swaps    int    `json:"swaps,omitempty"`
	Clears   int    `json:"clears,omitempty"`
}

// ErrorResponse is the body of every failed HTTP request.
type ErrorResponse struct {
	Error string `json:"error"`
}
