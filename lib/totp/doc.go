// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package totp implements time-based one-time passwords (RFC 6238 over
// RFC 4226 HOTP): base32 seeds, 30-second steps, 6-digit codes,
// HMAC-SHA1. Verification tolerates one step of clock skew in either
// direction, matching common authenticator-app behavior.
package totp
