// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package totp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const (
	// Step is the code rotation interval.
	Step = 30 * time.Second

	// Digits is the code length.
	Digits = 6

	// skewSteps is how many steps before and after the current one a
	// code is still accepted. One step in each direction absorbs
	// clock drift between the authenticator device and the server.
	skewSteps = 1
)

// Generate returns the code for the given seed at the given time.
// The seed is standard base32 (RFC 4648, no padding required, case
// and internal spaces ignored).
func Generate(seed string, at time.Time) (string, error) {
	key, err := decodeSeed(seed)
	if err != nil {
		return "", err
	}
	return hotp(key, uint64(at.Unix())/uint64(Step/time.Second)), nil
}

// Verify reports whether code matches the seed at the given time,
// accepting one step of clock skew in either direction. Returns false
// (never an error) for a malformed seed: a misconfigured seed must
// fail closed.
func Verify(seed string, code string, at time.Time) bool {
	key, err := decodeSeed(seed)
	if err != nil {
		return false
	}
	if len(code) != Digits {
		return false
	}

	counter := uint64(at.Unix()) / uint64(Step/time.Second)
	for offset := -skewSteps; offset <= skewSteps; offset++ {
		candidate := hotp(key, counter+uint64(offset)) //nolint:gosec // wraps only near the epoch
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(code)) == 1 {
			return true
		}
	}
	return false
}

// decodeSeed decodes a base32 seed, tolerating lowercase, internal
// spaces, and missing padding.
func decodeSeed(seed string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(seed, " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("totp: invalid base32 seed: %w", err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("totp: empty seed")
	}
	return key, nil
}

// hotp computes the RFC 4226 truncated HMAC-SHA1 code for a counter.
func hotp(key []byte, counter uint64) string {
	var message [8]byte
	binary.BigEndian.PutUint64(message[:], counter)

	mac := hmac.New(sha1.New, key)
	mac.Write(message[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(sum[offset:offset+4]) & 0x7fffffff

	return fmt.Sprintf("%06d", truncated%1000000)
}
