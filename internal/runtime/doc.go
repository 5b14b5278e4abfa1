// Package runtime turns a registry snapshot into files on disk.
//
// A Runtime materializes every host of a snapshot, compares the normalized
// artifacts against the persisted state, and commits only what changed.
// After Start it also listens to watch subscriptions: an event on a host
// marks that host and every host downstream of it dirty, and a debounced
// flush re-renders just the dirty set.
//
// Every render or persist operation runs as a job on one FIFO queue, so
// two passes never overlap. Watch callbacks only mark hosts dirty and
// schedule the flush; they never touch the disk themselves.
//
// Lifecycle:
//
//	idle -> starting -> running -> closing -> stopped
//
// Close is the only cancellation primitive. It waits for queued jobs,
// cancels a pending flush (dropping its dirty set) and disposes every
// subscription exactly once.
package runtime
