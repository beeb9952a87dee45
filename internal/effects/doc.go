// Package effects provides the built-in effect kinds and the registry that
// constructs them by name.
//
// Every kind embeds *caspar.Base for its lifecycle and only describes the
// commands that start and stop it. Options arrive as JSON from the API and
// the route manager, are decoded strictly, and are validated before any layer
// is allocated so that a rejected request leaves the channel untouched.
//
// Kinds:
//
//	video      plays a clip, optionally with a key clip, and stops itself at
//	           the clip's end when the media catalogue knows its duration
//	color      fills a layer with a solid color
//	route      mirrors another channel or effect layer and follows it when
//	           reconciliation renumbers the source
//	mixer      applies fill, opacity, volume or blend to another effect's
//	           layers
//	template   adds an HTML or Flash template through CG
//	composite  groups child effects so they start and stop in one batch
package effects
