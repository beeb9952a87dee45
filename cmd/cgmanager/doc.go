// Command cgmanager runs the CasparCG control-plane daemon and talks to it.
//
// `cgmanager serve` starts the daemon in the foreground. The remaining
// commands reach a running daemon over its JSON-RPC socket and render
// results as tables, or as JSON with --json. `cgmanager events` follows the
// daemon's WebSocket event feed instead.
package main
