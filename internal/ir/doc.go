// Package ir provides the value model for catalog feature records and the
// canonical encoding used to fingerprint them.
//
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Records are opaque: nothing here interprets catalog fields
//   - Fingerprints are computed ONLY from MarshalCanonical output (RFC 8785)
//   - Fingerprinting is pure: no clock, no randomness, no I/O
package ir
