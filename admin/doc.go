// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package admin is a client for the Synapse admin API, covering the
// account management endpoints the bot's commands drive: device
// listing, password reset, deactivation, account validity, server
// notices, and the paginated user directory.
//
// Admin operations are the side-effecting tail of a command, so every
// request retries transient failures (connection errors, 429, 5xx) up
// to ten attempts with a linearly growing backoff before giving up.
// Non-retryable API errors surface as *messaging.MatrixError. A shared
// rate limiter spaces requests so bulk commands (a server notice to
// every local user) do not trip the homeserver's rate limits.
package admin
