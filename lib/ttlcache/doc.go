// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ttlcache provides a bounded map whose entries expire after a
// fixed time-to-live.
//
// The bot keeps two of these: recent chat events (so reply chains can
// be walked backward) and live command instances keyed by their root
// event ID. Both are best-effort — a miss means an expired or evicted
// entry, which callers treat as "no correlation", never as an error.
// There is deliberately no iteration API.
package ttlcache
