// Package api defines the wire-format types and the Service shared by the
// HTTP server and the IPC socket.
//
// # Key Types
//
// DaemonStatus: process, engine connection, media catalogue and effect
// counts.
//
// Channel/Group/Layer/Effect: the logical layout of a managed channel with the
// engine layer number each logical layer currently occupies.
//
// MediaItem, Route, Event: catalogue entries, stored routes and executor
// events in transport form.
//
// # Service
//
// Service owns the table of live effects created through the API, keyed by
// effect id, and is the resolver effect kinds use to find each other. Effects
// that dispose themselves (dispose_on_stop) leave the table through the
// executor's disposal event.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Effect options are passed through as json.RawMessage and decoded by the
// effect kind.
package api
