// Package caspar models the playout engine's channels as logical layers and
// effects, and keeps the engine's numeric layer assignment in step with them.
//
// An Executor owns Channels. A Channel owns Layers, which effects request
// through their EffectGroup, and runs the reconciliation pass that turns the
// desired layer order into the SWAP and CLEAR commands the engine needs.
// Effects share their lifecycle through Base: activation registers an effect
// on its layers and sends its commands, deactivation clears them, and
// disposal hands the layers back to the channel.
//
// Channel state is guarded by a per-channel mutex that is never held across
// network I/O.
package caspar
