package ir

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainContent = "hostgen/content/v1"
	DomainSpec    = "hostgen/spec/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the identity of generated artifact bytes.
// Persisted state compares these hashes between passes.
func ContentHash(data []byte) string {
	return hashWithDomain(DomainContent, data)
}

// Fingerprint computes the identity of a canonicalizable value under the
// spec domain. Used for comparing host declarations from different owners.
func Fingerprint(v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// CanonicalEqual reports whether a and b have identical canonical JSON.
func CanonicalEqual(a, b any) (bool, error) {
	ca, err := MarshalCanonical(a)
	if err != nil {
		return false, err
	}
	cb, err := MarshalCanonical(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ca, cb), nil
}
