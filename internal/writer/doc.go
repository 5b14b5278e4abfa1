// Package writer persists generated artifacts.
//
// Every file is written to a temporary sibling, synced and renamed over its
// destination, so an observer sees either the old or the new content and
// never a partial file. Writes run on a bounded pool.
//
// The writer also owns the persisted state file: a versioned map of every
// managed output path to its content hash, size and write time. Only paths
// recorded in that state are ever removed as orphans; files the generator
// never wrote are left alone.
package writer
