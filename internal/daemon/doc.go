// Package daemon coordinates the long-running cgmanager process.
//
// It wires configuration, the sqlite database, the supervised AMCP
// connection, the channel executor, the media scanner and the route manager
// into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon also owns the HTTP API and the WebSocket event hub.
//
// Keep orchestration logic here: effect and reconciliation behaviour lives in
// internal/caspar and internal/effects while the daemon focuses on startup,
// shutdown, and reacting to engine connects.
package daemon
