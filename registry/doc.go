// Package registry owns the component capability table and the live
// instance store.
//
// The embedding application registers one RenderCapability per component
// kind before the session starts; there is no dynamic capability loading.
// Rendering a descriptor looks up the capability by kind, runs it against
// an opaque Surface handle, and stores the result keyed by the descriptor's
// instance id so later deltas can address it.
//
// Capabilities are external code: the registry contains their panics and
// converts them into component errors so one broken renderer cannot stop
// the event stream. Missing kinds and missing instances are likewise
// reported to the caller rather than treated as fatal.
package registry
