// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. Responses
// reuse the HTTP API types so both surfaces report the same shapes. The client
// bounds every call with a timeout so CLI commands fail fast when the daemon
// is wedged.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc
