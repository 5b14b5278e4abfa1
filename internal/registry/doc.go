// Package registry is the authoritative store of registered hosts for one
// build context.
//
// The registry enforces:
//   - one output path per host id for the lifetime of the record
//   - reserved owners (core generators) never share a host or path with
//     non-reserved owners
//   - multiple owners share a host only when their specs are content-equal
//     under a mode-specific compatibility check
//
// IR pushes are appended to the target's per-channel store in arrival order;
// pushes addressed to hosts that are not registered yet wait in a pending
// buffer keyed by target id. Every push whose origin differs from its target
// records a dependency edge origin -> target.
//
// The runtime never reads live registry state. It reads a Snapshot, a deep
// sorted copy taken under the registry lock.
package registry
