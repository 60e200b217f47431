// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability.
//
// Production code injects Real(); tests inject a Fake with manual time
// control. Everything in this repository that reads the wall clock or
// sleeps — TTL cache expiry, admin API retry backoff, TOTP verification
// — takes a Clock instead of calling the time package directly, so
// tests of 24-hour expiries and multi-second backoffs run instantly.
package clock
