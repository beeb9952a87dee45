// Package routes manages persisted channel routes.
//
// A route mirrors a source channel, or one layer of it, into an effect group
// on a destination channel. Routes are stored in the routes table and
// re-created as route effects when the daemon starts. Enabling or disabling a
// route starts or stops its effect; when the engine rejects the change the
// stored flag is left as it was and the failure is logged.
package routes
