// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is a Matrix client-server API client scoped to what
// the admin bot needs: password login, room message and reaction
// sending, redaction, media upload, and a long-polling sync listener.
//
// Client is the unauthenticated entry point; Login returns a Session
// whose access token lives in mmap-backed memory (locked against swap,
// excluded from core dumps). Listener drives the /sync long-poll loop
// and hands timeline events to a handler callback.
//
// Event carries its content as a raw map; the relation accessors
// (ReplyTo, ThreadRoot, Replaces, NewContentBody) extract the m.relates_to
// structure the command engine uses to correlate replies and edits with
// in-flight commands.
package messaging
