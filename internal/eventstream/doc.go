// Package eventstream follows the daemon's WebSocket event feed from the CLI.
//
// The client dials /api/events on the daemon's HTTP bind, decodes each frame
// into an api.Event and hands matching events to a callback until the caller
// cancels, the callback asks to stop, or the daemon closes the stream. A
// going-away close from a daemon shutdown ends the stream without error.
package eventstream
