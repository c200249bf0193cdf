package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainValue   = "dataspace/value/v1"
	DomainPattern = "dataspace/pattern/v1"
)

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

// ValueHash computes the content-addressed hash of a value.
// Equal values always hash equally; the trace journal stores it so rows
// for the same assertion can be grouped without decoding the payload.
func ValueHash(v IRValue) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("ValueHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// PatternHash computes the hash of a pattern value. It lives in a separate
// domain so a pattern and a value with the same encoding never collide.
func PatternHash(p IRValue) (string, error) {
	canonical, err := MarshalCanonical(p)
	if err != nil {
		return "", fmt.Errorf("PatternHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPattern, canonical), nil
}

// MustValueHash is like ValueHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValueHash(v IRValue) string {
	h, err := ValueHash(v)
	if err != nil {
		panic(err)
	}
	return h
}
