// Package services defines shared utilities consumed by the channel manager,
// the effect implementations and the daemon's outer surfaces.
//
// Key responsibilities:
//   - Context helpers that stamp correlation identifiers and target channels
//     for logging.
//   - Structured error markers plus the Wrap helper so the HTTP API and the
//     IPC server classify failures the same way.
package services
