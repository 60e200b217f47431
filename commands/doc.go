// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands implements the administrative chat commands: bulk
// password resets, account deactivation, account validity extension,
// server notices, and the ping/help utilities. Each command is a
// pipeline over the bot engine; the Synapse admin API does the actual
// work.
package commands
