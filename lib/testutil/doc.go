// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides channel helpers for tests that coordinate
// goroutines: receive/send with a timeout safety valve so a broken
// test fails instead of hanging.
package testutil
