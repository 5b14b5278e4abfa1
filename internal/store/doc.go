// Package store provides SQLite-backed run history for hostgen.
//
// Every reported pass appends one row to runs and one row per touched
// output path to run_files. Rows are never updated. With WithRetention only
// the newest runs are kept and older ones are deleted as new runs arrive.
//
// # Ordering
//
// Runs are listed newest first by (started_at DESC, seq DESC), where seq is
// the insertion rowid. Files of a run are listed by path with binary
// collation so output is identical across platforms.
//
// # Connection
//
// Pragmas are passed as go-sqlite3 DSN parameters (WAL journal,
// synchronous=NORMAL, a 5s busy timeout, foreign keys on). Schema changes
// are numbered migrations tracked in PRAGMA user_version.
package store
