// Package ir provides the canonical value form used for content identity.
//
// Everything that must compare or hash deterministically goes through this
// package: generated artifact bytes, host spec fingerprints used for
// cross-owner compatibility, and JSON payloads merged by the registry-table
// slot preset.
//
// Key design constraints:
//   - Canonical JSON follows RFC 8785 key ordering (UTF-16 code units)
//   - Strings are NFC normalized before serialization
//   - Hashes are SHA-256 with a versioned domain prefix
//   - ir imports nothing internal
package ir
