package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainFeature is the domain prefix for feature fingerprints.
// The version suffix leaves room for a future algorithm migration.
const DomainFeature = "baselinewatch/feature/v1"

// FingerprintLen is the length of a hex-encoded fingerprint.
const FingerprintLen = sha256.Size * 2

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes the content fingerprint of a feature record.
// Two records with the same canonical encoding always share a fingerprint;
// any change to any field changes it.
//
// Returns a *SerializationError if the record has no canonical encoding.
func Fingerprint(record any) (string, error) {
	canonical, err := MarshalCanonical(record)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainFeature, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFingerprint(record any) string {
	fp, err := Fingerprint(record)
	if err != nil {
		panic(err)
	}
	return fp
}

// IsFingerprint reports whether s looks like a value produced by Fingerprint.
func IsFingerprint(s string) bool {
	if len(s) != FingerprintLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
