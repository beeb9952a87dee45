// Package media keeps a local catalogue of the clips, stills and audio files
// the playout engine can play.
//
// The catalogue lives in the shared SQLite database. Scanner rebuilds it from
// the engine's CLS listing, either on demand or whenever the engine
// connection is (re-)established. Effects use Store.Get to look up clip
// metadata such as duration when they need to schedule work around playback.
package media
